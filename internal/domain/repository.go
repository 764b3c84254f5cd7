package domain

import "context"

// OperationRepository определяет интерфейс для работы с торговыми операциями
type OperationRepository interface {
	Create(ctx context.Context, op *Operation) error
	Get(ctx context.Context, operationID string) (*Operation, error)
	Update(ctx context.Context, operationID string, patch OperationPatch) (*Operation, error)
	GetAll(ctx context.Context) ([]Operation, error)
	GetByStatus(ctx context.Context, statuses ...Status) ([]Operation, error)
	GetByAsset(ctx context.Context, asset string) ([]Operation, error)
	Count(ctx context.Context) (int64, error)
	DeleteAll(ctx context.Context) (int64, error)
}

// OperationUpdateRepository определяет интерфейс для журнала изменений
type OperationUpdateRepository interface {
	Save(ctx context.Context, update *OperationUpdate) error
	GetByOperation(ctx context.Context, operationID string) ([]OperationUpdate, error)
	Count(ctx context.Context) (int64, error)
	DeleteAll(ctx context.Context) (int64, error)
}

// ConfigRepository определяет интерфейс для работы с конфигурацией
type ConfigRepository interface {
	Set(ctx context.Context, key, value, description string) error
	Get(ctx context.Context, key string) (string, error)
}
