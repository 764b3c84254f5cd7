package repository

import (
	"context"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/kirillm/signal-desk/internal/domain"
)

// OperationUpdateRepository журнал изменений операций (только добавление)
type OperationUpdateRepository struct {
	db     *gorm.DB
	logger *logrus.Entry
}

// NewOperationUpdateRepository создает новый репозиторий журнала
func NewOperationUpdateRepository(db *gorm.DB, logger *logrus.Entry) *OperationUpdateRepository {
	return &OperationUpdateRepository{
		db:     db,
		logger: logger.WithField("repo", "OperationUpdateRepository"),
	}
}

// WithDB возвращает копию репозитория поверх другой сессии
func (r *OperationUpdateRepository) WithDB(db *gorm.DB) *OperationUpdateRepository {
	return &OperationUpdateRepository{db: db, logger: r.logger}
}

// Save добавляет запись в журнал
func (r *OperationUpdateRepository) Save(ctx context.Context, update *domain.OperationUpdate) error {
	if update.UpdatedAt.IsZero() {
		update.UpdatedAt = r.db.NowFunc()
	}

	if err := r.db.WithContext(ctx).Create(update).Error; err != nil {
		r.logger.WithFields(logrus.Fields{
			"op":           "Save",
			"operation_id": update.OperationID,
			"update_type":  update.UpdateType,
		}).WithError(err).Error("Failed to append operation update")
		return err
	}
	return nil
}

// GetByOperation возвращает историю операции в хронологическом порядке
func (r *OperationUpdateRepository) GetByOperation(ctx context.Context, operationID string) ([]domain.OperationUpdate, error) {
	var updates []domain.OperationUpdate
	err := r.db.WithContext(ctx).
		Where("operation_id = ?", operationID).
		Order("updated_at ASC, id ASC").
		Find(&updates).Error
	return updates, err
}

// Count возвращает количество записей журнала
func (r *OperationUpdateRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&domain.OperationUpdate{}).Count(&n).Error
	return n, err
}

// DeleteAll очищает журнал (только для административной очистки)
func (r *OperationUpdateRepository) DeleteAll(ctx context.Context) (int64, error) {
	res := r.db.WithContext(ctx).
		Session(&gorm.Session{AllowGlobalUpdate: true}).
		Delete(&domain.OperationUpdate{})
	return res.RowsAffected, res.Error
}
