package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Operation торговая операция (сигнал), опубликованная администратором
type Operation struct {
	ID          uint                `gorm:"primaryKey" json:"-"`
	OperationID string              `gorm:"column:operation_id;size:64;not null;uniqueIndex" json:"operation_id"`
	Asset       string              `gorm:"size:20;not null;index" json:"asset"`
	OrderType   string              `gorm:"column:order_type;size:10;not null;check:order_type IN ('BUY','SELL')" json:"order_type"`
	EntryPrice  decimal.Decimal     `gorm:"column:entry_price;type:decimal(20,8);not null" json:"entry_price"`
	TakeProfit1 decimal.NullDecimal `gorm:"column:take_profit_1;type:decimal(20,8)" json:"take_profit_1"`
	TakeProfit2 decimal.NullDecimal `gorm:"column:take_profit_2;type:decimal(20,8)" json:"take_profit_2"`
	StopLoss    decimal.NullDecimal `gorm:"column:stop_loss;type:decimal(20,8)" json:"stop_loss"`
	Status      Status              `gorm:"size:20;not null;default:OPEN;index;check:status IN ('OPEN','BE','TP1','TP2','TP3','CLOSED','STOPPED')" json:"status"`
	Notes       string              `gorm:"type:text" json:"notes,omitempty"`
	CreatedBy   string              `gorm:"column:created_by;size:64;not null" json:"created_by"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
}

// TableName имя таблицы операций
func (Operation) TableName() string {
	return "trading_operations"
}

// ShortID укороченный идентификатор для списков
func (o *Operation) ShortID() string {
	const n = 12
	if len(o.OperationID) <= n {
		return o.OperationID
	}
	return o.OperationID[:n] + "..."
}

// OperationUpdate запись аудита изменений операции (только добавление)
type OperationUpdate struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	OperationID string    `gorm:"column:operation_id;size:64;not null;index" json:"operation_id"`
	UpdateType  string    `gorm:"column:update_type;size:20;not null" json:"update_type"`
	OldValue    string    `gorm:"column:old_value;type:text" json:"old_value,omitempty"`
	NewValue    string    `gorm:"column:new_value;type:text" json:"new_value,omitempty"`
	Notes       string    `gorm:"type:text" json:"notes,omitempty"`
	UpdatedBy   string    `gorm:"column:updated_by;size:64;not null" json:"updated_by"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoCreateTime" json:"updated_at"`
}

// TableName имя таблицы аудита
func (OperationUpdate) TableName() string {
	return "operation_updates"
}

// ConfigParam параметр конфигурации бота
type ConfigParam struct {
	Key         string    `gorm:"primaryKey;size:100" json:"key"`
	Value       string    `gorm:"type:text;not null" json:"value"`
	Description string    `gorm:"type:text" json:"description,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName имя таблицы конфигурации
func (ConfigParam) TableName() string {
	return "bot_config"
}

// OperationPatch частичное обновление операции. nil означает "не менять".
type OperationPatch struct {
	Status     *Status
	TakeProfit *decimal.Decimal
	StopLoss   *decimal.Decimal
	Notes      *string
}

// Empty true если ни одно поле не задано
func (p OperationPatch) Empty() bool {
	return p.Status == nil && p.TakeProfit == nil && p.StopLoss == nil && p.Notes == nil
}

// DatabaseStats сводка по содержимому базы
type DatabaseStats struct {
	Driver          string           `json:"driver"`
	TotalOperations int64            `json:"total_operations"`
	TotalUpdates    int64            `json:"total_updates"`
	ByStatus        map[Status]int64 `json:"by_status"`
	LastPurgeAt     string           `json:"last_purge_at,omitempty"`
}

// PurgeResult количество удаленных строк
type PurgeResult struct {
	Operations int64 `json:"operations"`
	Updates    int64 `json:"updates"`
}
