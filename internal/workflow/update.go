package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/kirillm/signal-desk/internal/domain"
	"github.com/kirillm/signal-desk/internal/policy"
	"github.com/kirillm/signal-desk/internal/session"
	"github.com/kirillm/signal-desk/internal/validation"
)

// InputCustomNotes поле формы произвольного сообщения
const InputCustomNotes = "custom_notes"

const (
	maxListedOperations = 10
	operationsPerRow    = 5
	maxCustomNote       = 1000
	updateLockDomain    = session.DomainUpdate
)

// updateDraft операция, выбранная на первом шаге
type updateDraft struct {
	OperationID string
	Operation   domain.Operation
}

// UpdateFlow обновление операции: операция -> статус или сообщение
type UpdateFlow struct {
	d      *Deps
	logger *logrus.Entry
}

// NewUpdateFlow создает процесс обновления операции
func NewUpdateFlow(d *Deps) *UpdateFlow {
	return &UpdateFlow{d: d, logger: d.Logger.WithField("flow", FlowUpdate)}
}

// claim забирает черновик выбранной операции перед записью
func (f *UpdateFlow) claim(userID, operationID string) bool {
	_, found := f.d.Locks.ClaimState(updateLockDomain, userID, func(v any) bool {
		d, is := v.(updateDraft)
		return is && d.OperationID == operationID
	})
	return found
}

func (f *UpdateFlow) draft(userID string) (updateDraft, bool) {
	v, ok := f.d.Locks.State(updateLockDomain, userID)
	if !ok {
		return updateDraft{}, false
	}
	d, ok := v.(updateDraft)
	if !ok || d.OperationID == "" {
		return updateDraft{}, false
	}
	return d, true
}

// Start берет блокировку и показывает активные операции
func (f *UpdateFlow) Start(ctx context.Context, ix *Interaction) Outcome {
	userID := ix.Actor.ID
	t := f.d.Formatter

	if !f.d.Locks.TryAcquire(updateLockDomain, userID) {
		return busy(t.T("update_busy"))
	}

	ops, err := f.d.Store.GetActiveOperations(ctx)
	if err != nil {
		f.d.Locks.Release(updateLockDomain, userID)
		return fault(err, t.T("generic_error"))
	}
	if len(ops) == 0 {
		f.d.Locks.Release(updateLockDomain, userID)
		return notFound(t.T("update_none"))
	}

	f.d.Locks.SetState(updateLockDomain, userID, updateDraft{})
	f.d.Locks.Touch(updateLockDomain, userID)

	shown := ops
	if len(shown) > maxListedOperations {
		shown = shown[:maxListedOperations]
	}

	catalog := f.d.assets()
	choices := make([]Choice, 0, len(shown))
	fields := make([]Field, 0, len(shown))
	for i, op := range shown {
		info := catalog.Describe(op.Asset)
		choices = append(choices, Choice{
			Action: ActionSelectOperation(op.OperationID),
			Label:  fmt.Sprintf("%d. %s %s", i+1, info.Emoji, op.Asset),
			Style:  StylePrimary,
		})
		fields = append(fields, operationField(t, catalog, i+1, op))
	}

	prompt := Prompt{
		Title:       t.T("update_title"),
		Description: t.Tf("update_step1", len(ops)),
		Tone:        policy.ToneWarning,
		Fields:      fields,
		Footer:      t.Tf("update_list_footer", len(shown), len(ops)),
		Choices:     chunk(choices, operationsPerRow),
		Timestamp:   f.d.now(),
	}
	if err := ix.Surface.ShowChoices(ctx, prompt); err != nil {
		f.d.Locks.Release(updateLockDomain, userID)
		return fault(err, t.T("generic_error"))
	}

	f.logger.WithFields(logrus.Fields{"user_id": userID, "active": len(ops)}).Info("Update started")
	return ok()
}

// SelectOperation запоминает операцию и показывает выбор статуса
func (f *UpdateFlow) SelectOperation(ctx context.Context, ix *Interaction, operationID string) Outcome {
	userID := ix.Actor.ID
	t := f.d.Formatter

	if !f.d.Locks.Held(updateLockDomain, userID) {
		return expired(t.T("update_expired"))
	}

	op, err := f.d.Store.GetOperation(ctx, operationID)
	if err != nil {
		return fault(err, t.T("generic_error"))
	}
	if op == nil {
		f.d.Locks.Release(updateLockDomain, userID)
		return notFound(t.T("op_not_found"))
	}

	f.d.Locks.SetState(updateLockDomain, userID, updateDraft{OperationID: op.OperationID, Operation: *op})
	f.d.Locks.Touch(updateLockDomain, userID)

	catalog := f.d.assets()
	info := catalog.Describe(op.Asset)

	statusChoices := []Choice{
		{Action: ActionStatus(domain.StatusBE), Label: t.T("btn_be"), Style: StyleSecondary},
		{Action: ActionStatus(domain.StatusTP1), Label: t.T("btn_tp1"), Style: StyleSuccess},
		{Action: ActionStatus(domain.StatusTP2), Label: t.T("btn_tp2"), Style: StyleSuccess},
		{Action: ActionStatus(domain.StatusTP3), Label: t.T("btn_tp3"), Style: StyleSuccess},
	}

	prompt := Prompt{
		Title:       t.Tf("update_status_title", op.Asset, op.OrderType),
		Description: t.Tf("update_step2", op.OperationID),
		Color:       info.Color,
		Tone:        policy.ToneWarning,
		Fields: []Field{
			{Name: t.T("field_current_status"), Value: fmt.Sprintf("**%s**", op.Status), Inline: true},
			{Name: t.T("field_entry_short"), Value: fmt.Sprintf("**%s**", catalog.FormatPrice(op.Asset, op.EntryPrice)), Inline: true},
		},
		Footer: t.Tf("update_status_footer", op.OperationID),
		Choices: [][]Choice{
			statusChoices,
			{
				{Action: ActionStatus(domain.StatusStopped), Label: t.T("btn_stopped"), Style: StyleDanger},
				{Action: ActionUpdateNote, Label: t.T("btn_note"), Style: StylePrimary},
			},
		},
		Timestamp: f.d.now(),
	}
	if err := ix.Surface.EditPrompt(ctx, prompt); err != nil {
		return fault(err, t.T("generic_error"))
	}

	f.logger.WithFields(logrus.Fields{"user_id": userID, "operation_id": op.OperationID}).Debug("Operation selected")
	return ok()
}

// SelectStatus применяет статус, пишет журнал и публикует сообщение
func (f *UpdateFlow) SelectStatus(ctx context.Context, ix *Interaction, raw string) Outcome {
	userID := ix.Actor.ID
	t := f.d.Formatter

	draft, found := f.draft(userID)
	if !found {
		return expired(t.T("update_expired"))
	}

	status, valid := domain.ParseStatus(raw)
	if !valid || !isUpdatable(status) {
		f.d.Locks.Release(updateLockDomain, userID)
		return invalid("status", t.T("invalid_status"))
	}

	updated, out := f.commit(ctx, userID, draft, domain.OperationPatch{Status: &status})
	if !out.OK() {
		return out
	}

	catalog := f.d.assets()
	msg := policy.StatusMessageFor(t.Lang(), status, catalog.Describe(updated.Asset))
	f.publish(ctx, ix, t.T("update_done"), Prompt{
		Title:       msg.Title,
		Description: msg.Description,
		Tone:        msg.Tone,
		Fields:      movementFields(t, catalog, updated, status),
		Footer:      f.d.Footer,
		Timestamp:   updated.UpdatedAt,
	})

	return ok()
}

// OpenNoteForm показывает форму произвольного сообщения
func (f *UpdateFlow) OpenNoteForm(ctx context.Context, ix *Interaction) Outcome {
	userID := ix.Actor.ID
	t := f.d.Formatter

	draft, found := f.draft(userID)
	if !found {
		return expired(t.T("update_expired"))
	}
	f.d.Locks.Touch(updateLockDomain, userID)

	form := Form{
		Action: ActionUpdateNoteForm,
		Title:  t.Tf("note_form_title", draft.Operation.Asset),
		Inputs: []FormInput{{
			ID:          InputCustomNotes,
			Label:       t.T("input_note"),
			Placeholder: t.T("note_placeholder"),
			Required:    true,
			MaxLength:   maxCustomNote,
			Multiline:   true,
		}},
	}
	if err := ix.Surface.ShowForm(ctx, form); err != nil {
		return fault(err, t.T("generic_error"))
	}
	return ok()
}

// SubmitNote перезаписывает заметки операции и публикует сообщение.
// Пустое сообщение отклоняется, черновик сохраняется.
func (f *UpdateFlow) SubmitNote(ctx context.Context, ix *Interaction) Outcome {
	userID := ix.Actor.ID
	t := f.d.Formatter

	draft, found := f.draft(userID)
	if !found {
		return expired(t.T("update_expired"))
	}

	note := validation.TruncateText(validation.SanitizeText(ix.Value(InputCustomNotes)), maxCustomNote)
	if strings.TrimSpace(note) == "" {
		f.d.Locks.Touch(updateLockDomain, userID)
		return invalid(InputCustomNotes, t.T("note_empty"))
	}

	updated, out := f.commit(ctx, userID, draft, domain.OperationPatch{Notes: &note})
	if !out.OK() {
		return out
	}

	msg := policy.NoteMessageFor(t.Lang(), f.d.assets().Describe(updated.Asset), note)
	f.publish(ctx, ix, t.T("note_done"), Prompt{
		Title:       msg.Title,
		Description: msg.Description,
		Tone:        msg.Tone,
		Footer:      f.d.Footer,
		Timestamp:   updated.UpdatedAt,
	})

	return ok()
}

// commit забирает черновик и пишет изменение с журналом.
// Сбой хранилища возвращает черновик на место.
func (f *UpdateFlow) commit(ctx context.Context, userID string, draft updateDraft, patch domain.OperationPatch) (*domain.Operation, Outcome) {
	t := f.d.Formatter

	if !f.claim(userID, draft.OperationID) {
		return nil, expired(t.T("update_expired"))
	}

	updated, err := f.d.Store.UpdateOperationAudited(ctx, draft.OperationID, patch, userID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		f.d.Locks.Release(updateLockDomain, userID)
		return nil, notFound(t.T("op_not_found"))
	case err != nil:
		f.logger.WithFields(logrus.Fields{
			"user_id":      userID,
			"operation_id": draft.OperationID,
		}).WithError(err).Error("Failed to update operation")
		f.d.Locks.SetState(updateLockDomain, userID, draft)
		f.d.Locks.Touch(updateLockDomain, userID)
		return nil, fault(err, t.T("update_failed"))
	}

	f.d.Locks.Release(updateLockDomain, userID)
	return updated, ok()
}

func (f *UpdateFlow) publish(ctx context.Context, ix *Interaction, confirmation string, announcement Prompt) {
	if err := ix.Surface.Notify(ctx, Notice{Tone: policy.ToneSuccess, Text: confirmation}); err != nil {
		f.logger.WithError(err).Warn("Failed to send update confirmation")
	}
	if err := ix.Surface.Announce(ctx, announcement); err != nil {
		f.logger.WithError(err).Error("Failed to publish update")
	}
}

// movementFields пункты от входа до достигнутого уровня и их стоимость.
// Пусто, если уровень для статуса не задан.
func movementFields(t *Formatter, catalog *domain.AssetCatalog, op *domain.Operation, status domain.Status) []Field {
	var level decimal.NullDecimal
	switch status {
	case domain.StatusTP1:
		level = op.TakeProfit1
	case domain.StatusTP2:
		level = op.TakeProfit2
	case domain.StatusStopped:
		level = op.StopLoss
	}
	if !level.Valid {
		return nil
	}

	points := domain.PointsBetween(op.OrderType, op.EntryPrice, level.Decimal)
	fields := []Field{{
		Name:   t.T("field_points"),
		Value:  fmt.Sprintf("**%s**", signed(points, catalog.Describe(op.Asset).PriceDecimals)),
		Inline: true,
	}}
	if value, found := catalog.MovementValue(op.Asset, points); found {
		fields = append(fields, Field{
			Name:   t.T("field_value"),
			Value:  fmt.Sprintf("**%s USD**", signed(value, 2)),
			Inline: true,
		})
	}
	return fields
}

func signed(d decimal.Decimal, places int32) string {
	if d.IsPositive() {
		return "+" + d.StringFixed(places)
	}
	return d.StringFixed(places)
}

func isUpdatable(s domain.Status) bool {
	for _, st := range domain.UpdatableStatuses {
		if s == st {
			return true
		}
	}
	return false
}

// operationField строка списка операций
func operationField(t *Formatter, catalog *domain.AssetCatalog, n int, op domain.Operation) Field {
	info := catalog.Describe(op.Asset)
	return Field{
		Name:   fmt.Sprintf("%d. %s %s %s %s", n, info.Emoji, op.Asset, domain.SideEmoji(op.OrderType), op.OrderType),
		Value:  t.Tf("op_summary", op.ShortID(), catalog.FormatPrice(op.Asset, op.EntryPrice), op.Status),
		Inline: true,
	}
}
