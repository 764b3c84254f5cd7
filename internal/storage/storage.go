package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/kirillm/signal-desk/internal/config"
	"github.com/kirillm/signal-desk/internal/domain"
	"github.com/kirillm/signal-desk/internal/storage/repository"
)

// Storage является фасадом для работы с базой через репозитории
type Storage struct {
	db         *gorm.DB
	driver     string
	logger     *logrus.Entry
	operations *repository.OperationRepository
	updates    *repository.OperationUpdateRepository
	config     *repository.ConfigRepository
}

// Open подключается к базе по конфигурации и запускает миграции
func Open(cfg config.DatabaseConfig, logger *logrus.Entry) (*Storage, error) {
	var dialector gorm.Dialector

	switch cfg.Driver {
	case config.DriverSQLite:
		if dir := filepath.Dir(cfg.Path); cfg.Path != ":memory:" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		dialector = sqlite.Open(sqliteDSN(cfg.Path))
	case config.DriverPostgres:
		dialector = postgres.New(postgres.Config{
			DriverName: "postgres",
			DSN:        cfg.PostgresDSN(),
		})
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	logLevel := gormlogger.Silent
	if cfg.LogSQL {
		logLevel = gormlogger.Info
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrDatabaseConnection, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	// Настройка connection pool из конфигурации.
	// SQLite сериализует запись, одно соединение исключает SQLITE_BUSY.
	if cfg.Driver == config.DriverSQLite {
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrDatabaseConnection, err)
	}

	return New(db, cfg.Driver, logger)
}

// New оборачивает готовое соединение gorm и запускает миграции
func New(db *gorm.DB, driver string, logger *logrus.Entry) (*Storage, error) {
	logger = logger.WithField("component", "storage")

	s := &Storage{
		db:         db,
		driver:     driver,
		logger:     logger,
		operations: repository.NewOperationRepository(db, logger),
		updates:    repository.NewOperationUpdateRepository(db, logger),
		config:     repository.NewConfigRepository(db),
	}

	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return s, nil
}

func sqliteDSN(path string) string {
	if strings.Contains(path, "?") {
		return path
	}
	return path + "?_busy_timeout=5000&_journal_mode=WAL"
}

const schemaVersion = "1"

func (s *Storage) migrate() error {
	if err := s.db.AutoMigrate(
		&domain.Operation{},
		&domain.OperationUpdate{},
		&domain.ConfigParam{},
	); err != nil {
		return err
	}

	ctx := context.Background()
	current, err := s.config.Get(ctx, domain.ConfigSchemaVersion)
	if err != nil {
		return err
	}
	if current != schemaVersion {
		if err := s.config.Set(ctx, domain.ConfigSchemaVersion, schemaVersion, "schema version of trading tables"); err != nil {
			return err
		}
		s.logger.WithField("schema_version", schemaVersion).Info("Database schema initialized")
	}

	return nil
}

// === Operations ===

// CreateOperation сохраняет операцию и запись CREATE в журнале одной транзакцией
func (s *Storage) CreateOperation(ctx context.Context, op *domain.Operation) (*domain.Operation, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.operations.WithDB(tx).Create(ctx, op); err != nil {
			return err
		}
		return s.updates.WithDB(tx).Save(ctx, &domain.OperationUpdate{
			OperationID: op.OperationID,
			UpdateType:  domain.UpdateTypeCreate,
			NewValue:    string(op.Status),
			Notes:       op.Notes,
			UpdatedBy:   op.CreatedBy,
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"event":        "operation_created",
		"operation_id": op.OperationID,
		"asset":        op.Asset,
		"order_type":   op.OrderType,
		"entry_price":  op.EntryPrice.String(),
		"user_id":      op.CreatedBy,
	}).Info("Operation created")

	return op, nil
}

// GetOperation возвращает операцию или (nil, nil)
func (s *Storage) GetOperation(ctx context.Context, operationID string) (*domain.Operation, error) {
	return s.operations.Get(ctx, operationID)
}

// UpdateOperation обновляет только переданные поля без записи в журнал
func (s *Storage) UpdateOperation(ctx context.Context, operationID string, patch domain.OperationPatch) (*domain.Operation, error) {
	if patch.Empty() {
		return nil, fmt.Errorf("%w: empty patch", domain.ErrInvalidInput)
	}
	if patch.Status != nil && !patch.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", domain.ErrInvalidInput, *patch.Status)
	}
	return s.operations.Update(ctx, operationID, patch)
}

// UpdateOperationAudited обновляет операцию и добавляет запись в журнал одной транзакцией
func (s *Storage) UpdateOperationAudited(ctx context.Context, operationID string, patch domain.OperationPatch, updatedBy string) (*domain.Operation, error) {
	if patch.Empty() {
		return nil, fmt.Errorf("%w: empty patch", domain.ErrInvalidInput)
	}
	if patch.Status != nil && !patch.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", domain.ErrInvalidInput, *patch.Status)
	}

	var updated *domain.Operation
	var audit domain.OperationUpdate

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ops := s.operations.WithDB(tx)

		before, err := ops.Get(ctx, operationID)
		if err != nil {
			return err
		}
		if before == nil {
			return domain.ErrNotFound
		}

		updated, err = ops.Update(ctx, operationID, patch)
		if err != nil {
			return err
		}

		audit = auditFor(before, updated, patch, updatedBy)
		return s.updates.WithDB(tx).Save(ctx, &audit)
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"event":        "operation_updated",
		"operation_id": operationID,
		"update_type":  audit.UpdateType,
		"old_value":    audit.OldValue,
		"new_value":    audit.NewValue,
		"user_id":      updatedBy,
	}).Info("Operation updated")

	return updated, nil
}

// auditFor строит запись журнала по изменению
func auditFor(before, after *domain.Operation, patch domain.OperationPatch, updatedBy string) domain.OperationUpdate {
	u := domain.OperationUpdate{
		OperationID: after.OperationID,
		UpdatedBy:   updatedBy,
	}

	switch {
	case patch.Status != nil:
		u.UpdateType = domain.UpdateTypeStatus
		u.OldValue = string(before.Status)
		u.NewValue = string(after.Status)
		if patch.Notes != nil {
			u.Notes = *patch.Notes
		}
	case patch.Notes != nil:
		u.UpdateType = domain.UpdateTypeNotes
		u.OldValue = before.Notes
		u.NewValue = after.Notes
		u.Notes = *patch.Notes
	default:
		u.UpdateType = domain.UpdateTypePrice
		if patch.TakeProfit != nil {
			u.OldValue = nullString(before.TakeProfit1.Valid, before.TakeProfit1.Decimal.String())
			u.NewValue = after.TakeProfit1.Decimal.String()
			u.Notes = "take_profit_1"
		} else {
			u.OldValue = nullString(before.StopLoss.Valid, before.StopLoss.Decimal.String())
			u.NewValue = after.StopLoss.Decimal.String()
			u.Notes = "stop_loss"
		}
	}

	return u
}

func nullString(valid bool, s string) string {
	if !valid {
		return ""
	}
	return s
}

// GetAllOperations возвращает все операции, новые первыми
func (s *Storage) GetAllOperations(ctx context.Context) ([]domain.Operation, error) {
	return s.operations.GetAll(ctx)
}

// GetActiveOperations возвращает нетерминальные операции (OPEN, BE, TP1-TP3)
func (s *Storage) GetActiveOperations(ctx context.Context) ([]domain.Operation, error) {
	return s.operations.GetByStatus(ctx, domain.ActiveStatuses...)
}

// GetClosedOperations возвращает операции со статусом CLOSED
func (s *Storage) GetClosedOperations(ctx context.Context) ([]domain.Operation, error) {
	return s.operations.GetByStatus(ctx, domain.StatusClosed)
}

// GetOperationsByStatus возвращает операции с любым из статусов
func (s *Storage) GetOperationsByStatus(ctx context.Context, statuses ...domain.Status) ([]domain.Operation, error) {
	return s.operations.GetByStatus(ctx, statuses...)
}

// GetOperationsByAsset возвращает операции по инструменту
func (s *Storage) GetOperationsByAsset(ctx context.Context, asset string) ([]domain.Operation, error) {
	return s.operations.GetByAsset(ctx, asset)
}

// CountOperations возвращает количество операций
func (s *Storage) CountOperations(ctx context.Context) (int64, error) {
	return s.operations.Count(ctx)
}

// PurgeAll удаляет все операции и весь журнал
func (s *Storage) PurgeAll(ctx context.Context) (domain.PurgeResult, error) {
	var result domain.PurgeResult

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if result.Updates, err = s.updates.WithDB(tx).DeleteAll(ctx); err != nil {
			return err
		}
		result.Operations, err = s.operations.WithDB(tx).DeleteAll(ctx)
		return err
	})
	if err != nil {
		return domain.PurgeResult{}, err
	}

	s.logger.WithFields(logrus.Fields{
		"event":      "operations_purged",
		"operations": result.Operations,
		"updates":    result.Updates,
	}).Warn("All operations purged")

	return result, nil
}

// === Audit ===

// LogOperationUpdate добавляет запись в журнал изменений
func (s *Storage) LogOperationUpdate(ctx context.Context, update *domain.OperationUpdate) error {
	return s.updates.Save(ctx, update)
}

// GetOperationUpdates возвращает историю изменений операции
func (s *Storage) GetOperationUpdates(ctx context.Context, operationID string) ([]domain.OperationUpdate, error) {
	return s.updates.GetByOperation(ctx, operationID)
}

// === Config ===

// SetConfig сохраняет параметр в bot_config
func (s *Storage) SetConfig(ctx context.Context, key, value, description string) error {
	return s.config.Set(ctx, key, value, description)
}

// GetConfig читает параметр из bot_config
func (s *Storage) GetConfig(ctx context.Context, key string) (string, error) {
	return s.config.Get(ctx, key)
}

// Stats сводка по содержимому базы
func (s *Storage) Stats(ctx context.Context) (*domain.DatabaseStats, error) {
	total, err := s.operations.Count(ctx)
	if err != nil {
		return nil, err
	}
	updates, err := s.updates.Count(ctx)
	if err != nil {
		return nil, err
	}
	byStatus, err := s.operations.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}
	lastPurge, err := s.config.Get(ctx, domain.ConfigLastPurgeAt)
	if err != nil {
		return nil, err
	}

	return &domain.DatabaseStats{
		Driver:          s.driver,
		TotalOperations: total,
		TotalUpdates:    updates,
		ByStatus:        byStatus,
		LastPurgeAt:     lastPurge,
	}, nil
}

// Ping проверяет соединение с базой
func (s *Storage) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close закрывает соединение с базой
func (s *Storage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
