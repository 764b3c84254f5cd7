package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/kirillm/signal-desk/internal/domain"
)

// ConfigRepository реализует работу с параметрами конфигурации
type ConfigRepository struct {
	db *gorm.DB
}

// NewConfigRepository создает новый репозиторий для конфигурации
func NewConfigRepository(db *gorm.DB) *ConfigRepository {
	return &ConfigRepository{db: db}
}

// WithDB возвращает копию репозитория поверх другой сессии
func (r *ConfigRepository) WithDB(db *gorm.DB) *ConfigRepository {
	return &ConfigRepository{db: db}
}

// Set устанавливает параметр конфигурации
func (r *ConfigRepository) Set(ctx context.Context, key, value, description string) error {
	param := domain.ConfigParam{
		Key:         key,
		Value:       value,
		Description: description,
		UpdatedAt:   r.db.NowFunc(),
	}

	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "description", "updated_at"}),
		}).
		Create(&param).Error
}

// Get получает параметр конфигурации. Отсутствующий ключ дает пустую строку.
func (r *ConfigRepository) Get(ctx context.Context, key string) (string, error) {
	var param domain.ConfigParam
	err := r.db.WithContext(ctx).Where("key = ?", key).Take(&param).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}

	return param.Value, nil
}
