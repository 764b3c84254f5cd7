package workflow

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kirillm/signal-desk/internal/domain"
	"github.com/kirillm/signal-desk/internal/session"
	"github.com/kirillm/signal-desk/internal/validation"
)

// OperationStore хранилище, которое нужно процессам
type OperationStore interface {
	CreateOperation(ctx context.Context, op *domain.Operation) (*domain.Operation, error)
	GetOperation(ctx context.Context, operationID string) (*domain.Operation, error)
	UpdateOperationAudited(ctx context.Context, operationID string, patch domain.OperationPatch, updatedBy string) (*domain.Operation, error)
	GetAllOperations(ctx context.Context) ([]domain.Operation, error)
	GetActiveOperations(ctx context.Context) ([]domain.Operation, error)
	GetOperationsByStatus(ctx context.Context, statuses ...domain.Status) ([]domain.Operation, error)
	CountOperations(ctx context.Context) (int64, error)
	PurgeAll(ctx context.Context) (domain.PurgeResult, error)
	SetConfig(ctx context.Context, key, value, description string) error
}

// Deps общие зависимости процессов
type Deps struct {
	Store     OperationStore
	Locks     *session.Manager
	Validator *validation.Validator
	Formatter *Formatter
	// Footer подпись публичных сообщений
	Footer string
	// PurgeConfirmTTL время жизни подтверждения очистки
	PurgeConfirmTTL time.Duration
	Logger          *logrus.Entry
	Now             func() time.Time
}

func (d *Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

func (d *Deps) assets() *domain.AssetCatalog {
	return d.Validator.Assets()
}

// Action IDs: <flow>:<step>[:<arg>]
const (
	FlowEntry  = "entry"
	FlowUpdate = "update"
	FlowTrades = "trades"

	ActionEntryForm      = "entry:form"
	ActionUpdateNote     = "update:note"
	ActionUpdateNoteForm = "update:note:form"
	ActionTradesRefresh  = "trades:refresh"
	ActionTradesClear    = "trades:clear"
	ActionClearConfirm   = "trades:clear:confirm"
	ActionClearCancel    = "trades:clear:cancel"
)

// ParsedAction разобранный идентификатор действия
type ParsedAction struct {
	Flow string
	Step string
	Arg  string
}

// ParseAction разбирает "flow:step:arg"
func ParseAction(action string) ParsedAction {
	parts := strings.SplitN(action, ":", 3)
	var p ParsedAction
	p.Flow = parts[0]
	if len(parts) > 1 {
		p.Step = parts[1]
	}
	if len(parts) > 2 {
		p.Arg = parts[2]
	}
	return p
}

// ActionAsset выбор инструмента
func ActionAsset(symbol string) string { return "entry:asset:" + symbol }

// ActionSide выбор направления
func ActionSide(side string) string { return "entry:side:" + side }

// ActionSelectOperation выбор операции для обновления
func ActionSelectOperation(id string) string { return "update:op:" + id }

// ActionStatus выбор нового статуса
func ActionStatus(s domain.Status) string { return "update:status:" + string(s) }

// ActionFilter фильтр дашборда
func ActionFilter(b Bucket) string { return "trades:filter:" + string(b) }

// chunk режет варианты на строки по size штук
func chunk(choices []Choice, size int) [][]Choice {
	var rows [][]Choice
	for len(choices) > size {
		rows = append(rows, choices[:size:size])
		choices = choices[size:]
	}
	if len(choices) > 0 {
		rows = append(rows, choices)
	}
	return rows
}
