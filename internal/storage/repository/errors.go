package repository

import (
	"errors"
	"strings"

	"github.com/lib/pq"
	"gorm.io/gorm"

	"github.com/kirillm/signal-desk/internal/domain"
)

// pgUniqueViolation SQLSTATE нарушения уникальности
const pgUniqueViolation = "23505"

// isDuplicate распознает нарушение уникальности для sqlite и postgres
func isDuplicate(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == pgUniqueViolation
	}

	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

var (
	_ domain.OperationRepository       = (*OperationRepository)(nil)
	_ domain.OperationUpdateRepository = (*OperationUpdateRepository)(nil)
	_ domain.ConfigRepository          = (*ConfigRepository)(nil)
)
