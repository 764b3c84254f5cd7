package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/kirillm/signal-desk/internal/domain"
)

// OperationRepository реализует работу с торговыми операциями
type OperationRepository struct {
	db     *gorm.DB
	logger *logrus.Entry
}

// NewOperationRepository создает новый репозиторий для торговых операций
func NewOperationRepository(db *gorm.DB, logger *logrus.Entry) *OperationRepository {
	return &OperationRepository{
		db:     db,
		logger: logger.WithField("repo", "OperationRepository"),
	}
}

// WithDB возвращает копию репозитория поверх другой сессии (например, транзакции)
func (r *OperationRepository) WithDB(db *gorm.DB) *OperationRepository {
	return &OperationRepository{db: db, logger: r.logger}
}

// Create сохраняет новую операцию. Повтор operation_id дает domain.ErrDuplicateID.
func (r *OperationRepository) Create(ctx context.Context, op *domain.Operation) error {
	if op.Status == "" {
		op.Status = domain.StatusOpen
	}

	if err := r.db.WithContext(ctx).Create(op).Error; err != nil {
		if isDuplicate(err) {
			return domain.ErrDuplicateID
		}
		r.logger.WithFields(logrus.Fields{
			"op":           "Create",
			"operation_id": op.OperationID,
		}).WithError(err).Error("Failed to create operation")
		return err
	}

	return nil
}

// Get получает операцию по operation_id. Возвращает (nil, nil) если не найдена.
func (r *OperationRepository) Get(ctx context.Context, operationID string) (*domain.Operation, error) {
	var op domain.Operation

	err := r.db.WithContext(ctx).
		Where("operation_id = ?", operationID).
		Take(&op).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return &op, nil
}

// Update обновляет только переданные поля и updated_at. Никогда не создает строку.
func (r *OperationRepository) Update(ctx context.Context, operationID string, patch domain.OperationPatch) (*domain.Operation, error) {
	updates := map[string]interface{}{
		"updated_at": r.db.NowFunc(),
	}
	if patch.Status != nil {
		updates["status"] = string(*patch.Status)
	}
	if patch.TakeProfit != nil {
		updates["take_profit_1"] = decimal.NewNullDecimal(*patch.TakeProfit)
	}
	if patch.StopLoss != nil {
		updates["stop_loss"] = decimal.NewNullDecimal(*patch.StopLoss)
	}
	if patch.Notes != nil {
		updates["notes"] = *patch.Notes
	}

	res := r.db.WithContext(ctx).
		Model(&domain.Operation{}).
		Where("operation_id = ?", operationID).
		Updates(updates)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, domain.ErrNotFound
	}

	op, err := r.Get(ctx, operationID)
	if err != nil {
		return nil, err
	}
	if op == nil {
		return nil, domain.ErrNotFound
	}

	return op, nil
}

// GetAll возвращает все операции, новые первыми
func (r *OperationRepository) GetAll(ctx context.Context) ([]domain.Operation, error) {
	var ops []domain.Operation
	err := r.db.WithContext(ctx).
		Order("created_at DESC, id DESC").
		Find(&ops).Error
	return ops, err
}

// GetByStatus возвращает операции с любым из статусов, новые первыми
func (r *OperationRepository) GetByStatus(ctx context.Context, statuses ...domain.Status) ([]domain.Operation, error) {
	if len(statuses) == 0 {
		return nil, nil
	}

	values := make([]string, len(statuses))
	for i, s := range statuses {
		values[i] = string(s)
	}

	var ops []domain.Operation
	err := r.db.WithContext(ctx).
		Where("status IN ?", values).
		Order("created_at DESC, id DESC").
		Find(&ops).Error
	return ops, err
}

// GetByAsset возвращает операции по инструменту, новые первыми
func (r *OperationRepository) GetByAsset(ctx context.Context, asset string) ([]domain.Operation, error) {
	var ops []domain.Operation
	err := r.db.WithContext(ctx).
		Where("asset = ?", strings.ToUpper(asset)).
		Order("created_at DESC, id DESC").
		Find(&ops).Error
	return ops, err
}

// Count возвращает количество операций
func (r *OperationRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&domain.Operation{}).Count(&n).Error
	return n, err
}

// CountByStatus возвращает количество операций по статусам
func (r *OperationRepository) CountByStatus(ctx context.Context) (map[domain.Status]int64, error) {
	var rows []struct {
		Status string
		Total  int64
	}
	err := r.db.WithContext(ctx).
		Model(&domain.Operation{}).
		Select("status, COUNT(*) AS total").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make(map[domain.Status]int64, len(rows))
	for _, row := range rows {
		out[domain.Status(row.Status)] = row.Total
	}
	return out, nil
}

// DeleteAll удаляет все операции
func (r *OperationRepository) DeleteAll(ctx context.Context) (int64, error) {
	res := r.db.WithContext(ctx).
		Session(&gorm.Session{AllowGlobalUpdate: true}).
		Delete(&domain.Operation{})
	return res.RowsAffected, res.Error
}
