package domain

import "strings"

// Order types
const (
	SideBuy  = "BUY"
	SideSell = "SELL"
)

// Status состояние торговой операции
type Status string

// Operation statuses
const (
	StatusOpen    Status = "OPEN"
	StatusBE      Status = "BE"
	StatusTP1     Status = "TP1"
	StatusTP2     Status = "TP2"
	StatusTP3     Status = "TP3"
	StatusClosed  Status = "CLOSED"
	StatusStopped Status = "STOPPED"
)

// AllStatuses в порядке жизненного цикла
var AllStatuses = []Status{
	StatusOpen, StatusBE, StatusTP1, StatusTP2, StatusTP3, StatusClosed, StatusStopped,
}

// ActiveStatuses нетерминальные статусы
var ActiveStatuses = []Status{StatusOpen, StatusBE, StatusTP1, StatusTP2, StatusTP3}

// UpdatableStatuses статусы, которые можно выбрать в процессе обновления
var UpdatableStatuses = []Status{StatusBE, StatusTP1, StatusTP2, StatusTP3, StatusStopped}

// ParseStatus нормализует строку в статус
func ParseStatus(s string) (Status, bool) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	return st, st.Valid()
}

// Valid проверяет, что статус входит в перечисление
func (s Status) Valid() bool {
	for _, st := range AllStatuses {
		if s == st {
			return true
		}
	}
	return false
}

// IsActive true для OPEN, BE и TP1-TP3
func (s Status) IsActive() bool {
	for _, st := range ActiveStatuses {
		if s == st {
			return true
		}
	}
	return false
}

// IsTakeProfit true для TP1-TP3
func (s Status) IsTakeProfit() bool {
	return s == StatusTP1 || s == StatusTP2 || s == StatusTP3
}

// Emoji возвращает иконку статуса
func (s Status) Emoji() string {
	switch s {
	case StatusOpen:
		return "🟢"
	case StatusBE:
		return "⚖️"
	case StatusTP1, StatusTP2, StatusTP3:
		return "🎯"
	case StatusStopped:
		return "🛑"
	case StatusClosed:
		return "🔒"
	default:
		return "❓"
	}
}

func (s Status) String() string {
	return string(s)
}

// SideEmoji иконка направления сделки
func SideEmoji(orderType string) string {
	if strings.EqualFold(orderType, SideSell) {
		return "🔴"
	}
	return "🟢"
}

// Update types for the audit table
const (
	UpdateTypeCreate = "CREATE"
	UpdateTypeStatus = "STATUS"
	UpdateTypeNotes  = "NOTES"
	UpdateTypePrice  = "PRICE"
)

// bot_config keys
const (
	ConfigLastPurgeAt   = "last_purge_at"
	ConfigLastPurgeBy   = "last_purge_by"
	ConfigSchemaVersion = "schema_version"
)
