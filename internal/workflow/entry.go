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

// Form input IDs
const (
	InputEntryPrice  = "entry_price"
	InputTakeProfit1 = "take_profit_1"
	InputTakeProfit2 = "take_profit_2"
	InputStopLoss    = "stop_loss"
	InputNotes       = "notes"
)

const (
	maxEntryNotes   = 500
	maxPriceInput   = 20
	assetsPerRow    = 5
	createAttempts  = 2
	entryLockDomain = session.DomainEntry
)

// entryDraft накапливается между шагами и хранится в сессии по значению
type entryDraft struct {
	Asset     string
	OrderType string
}

// EntryFlow создание операции: инструмент -> направление -> форма
type EntryFlow struct {
	d      *Deps
	logger *logrus.Entry
}

// NewEntryFlow создает процесс создания операции
func NewEntryFlow(d *Deps) *EntryFlow {
	return &EntryFlow{d: d, logger: d.Logger.WithField("flow", FlowEntry)}
}

// claim забирает заполненный черновик перед записью. Повторная отправка формы получит false.
func (f *EntryFlow) claim(userID string) (entryDraft, bool) {
	v, found := f.d.Locks.ClaimState(entryLockDomain, userID, func(v any) bool {
		d, is := v.(entryDraft)
		return is && d.Asset != "" && d.OrderType != ""
	})
	if !found {
		return entryDraft{}, false
	}
	return v.(entryDraft), true
}

func (f *EntryFlow) draft(userID string) (entryDraft, bool) {
	v, ok := f.d.Locks.State(entryLockDomain, userID)
	if !ok {
		return entryDraft{}, false
	}
	d, ok := v.(entryDraft)
	return d, ok
}

// Start берет блокировку и показывает выбор инструмента
func (f *EntryFlow) Start(ctx context.Context, ix *Interaction) Outcome {
	userID := ix.Actor.ID
	t := f.d.Formatter

	if !f.d.Locks.TryAcquire(entryLockDomain, userID) {
		return busy(t.T("entry_busy"))
	}
	f.d.Locks.SetState(entryLockDomain, userID, entryDraft{})
	f.d.Locks.Touch(entryLockDomain, userID)

	catalog := f.d.assets()
	var choices []Choice
	for _, sym := range catalog.Symbols() {
		info := catalog.Describe(sym)
		choices = append(choices, Choice{
			Action: ActionAsset(sym),
			Label:  strings.TrimSpace(info.Emoji + " " + sym),
			Style:  StylePrimary,
		})
	}

	prompt := Prompt{
		Title:       t.T("entry_title"),
		Description: t.T("entry_step1"),
		Tone:        policy.ToneInfo,
		Footer:      f.d.Footer,
		Choices:     chunk(choices, assetsPerRow),
		Timestamp:   f.d.now(),
	}
	if err := ix.Surface.ShowChoices(ctx, prompt); err != nil {
		f.d.Locks.Release(entryLockDomain, userID)
		return fault(err, t.T("generic_error"))
	}

	f.logger.WithField("user_id", userID).Info("Entry started")
	return ok()
}

// SelectAsset сохраняет инструмент и показывает выбор направления.
// Неизвестный инструмент завершает процесс и снимает блокировку.
func (f *EntryFlow) SelectAsset(ctx context.Context, ix *Interaction, symbol string) Outcome {
	userID := ix.Actor.ID
	t := f.d.Formatter

	draft, found := f.draft(userID)
	if !found {
		return expired(t.T("entry_expired"))
	}

	if !f.d.Validator.IsValidAsset(symbol) {
		f.d.Locks.Release(entryLockDomain, userID)
		return invalid("asset", t.T("invalid_asset"))
	}

	info := f.d.assets().Describe(symbol)
	draft.Asset = info.Symbol
	draft.OrderType = ""
	f.d.Locks.SetState(entryLockDomain, userID, draft)
	f.d.Locks.Touch(entryLockDomain, userID)

	prompt := Prompt{
		Title:       t.Tf("entry_side_title", info.Name),
		Description: t.Tf("entry_step2", info.Symbol),
		Color:       info.Color,
		Tone:        policy.ToneInfo,
		Footer:      f.d.Footer,
		Choices: [][]Choice{{
			{Action: ActionSide(domain.SideBuy), Label: t.T("side_buy"), Style: StyleSuccess},
			{Action: ActionSide(domain.SideSell), Label: t.T("side_sell"), Style: StyleDanger},
		}},
		Timestamp: f.d.now(),
	}
	if err := ix.Surface.EditPrompt(ctx, prompt); err != nil {
		return fault(err, t.T("generic_error"))
	}

	f.logger.WithFields(logrus.Fields{"user_id": userID, "asset": info.Symbol}).Debug("Asset selected")
	return ok()
}

// SelectSide сохраняет направление и открывает форму деталей
func (f *EntryFlow) SelectSide(ctx context.Context, ix *Interaction, side string) Outcome {
	userID := ix.Actor.ID
	t := f.d.Formatter

	draft, found := f.draft(userID)
	if !found || draft.Asset == "" {
		return expired(t.T("entry_missing_asset"))
	}

	if !validation.IsValidOrderType(side) {
		f.d.Locks.Release(entryLockDomain, userID)
		return invalid("order_type", t.T("invalid_side"))
	}

	draft.OrderType = strings.ToUpper(strings.TrimSpace(side))
	f.d.Locks.SetState(entryLockDomain, userID, draft)
	f.d.Locks.Touch(entryLockDomain, userID)

	if err := ix.Surface.ShowForm(ctx, f.form(draft)); err != nil {
		return fault(err, t.T("generic_error"))
	}

	f.logger.WithFields(logrus.Fields{
		"user_id":    userID,
		"asset":      draft.Asset,
		"order_type": draft.OrderType,
	}).Debug("Order type selected")
	return ok()
}

func (f *EntryFlow) form(draft entryDraft) Form {
	t := f.d.Formatter
	return Form{
		Action: ActionEntryForm,
		Title:  t.Tf("entry_form_title", draft.Asset, draft.OrderType),
		Inputs: []FormInput{
			{ID: InputEntryPrice, Label: t.T("input_entry_price"), Placeholder: t.Tf("example", "35100.50"), Required: true, MaxLength: maxPriceInput},
			{ID: InputTakeProfit1, Label: t.T("input_tp1"), Placeholder: t.Tf("example", "35150.00"), MaxLength: maxPriceInput},
			{ID: InputTakeProfit2, Label: t.T("input_tp2"), Placeholder: t.Tf("example", "35200.00"), MaxLength: maxPriceInput},
			{ID: InputStopLoss, Label: t.T("input_sl"), Placeholder: t.Tf("example", "35000.00"), MaxLength: maxPriceInput},
			{ID: InputNotes, Label: t.T("input_notes"), Placeholder: t.T("notes_placeholder"), MaxLength: maxEntryNotes, Multiline: true},
		},
	}
}

// Submit проверяет форму и создает операцию.
// Ошибка проверки оставляет черновик, чтобы форму можно было отправить снова.
func (f *EntryFlow) Submit(ctx context.Context, ix *Interaction) Outcome {
	userID := ix.Actor.ID
	t := f.d.Formatter

	draft, found := f.draft(userID)
	if !found || draft.Asset == "" || draft.OrderType == "" {
		return expired(t.T("entry_expired"))
	}

	entry, err := validation.ParsePrice(ix.Value(InputEntryPrice))
	if err != nil {
		f.d.Locks.Touch(entryLockDomain, userID)
		return invalid(InputEntryPrice, t.T("invalid_entry_price"))
	}

	optional := []struct {
		id  string
		msg string
		dst *decimal.NullDecimal
	}{
		{InputTakeProfit1, "invalid_tp1", new(decimal.NullDecimal)},
		{InputTakeProfit2, "invalid_tp2", new(decimal.NullDecimal)},
		{InputStopLoss, "invalid_sl", new(decimal.NullDecimal)},
	}
	for _, o := range optional {
		v, err := validation.ParseOptionalPrice(ix.Value(o.id))
		if err != nil {
			f.d.Locks.Touch(entryLockDomain, userID)
			return invalid(o.id, t.T(o.msg))
		}
		*o.dst = v
	}

	draft, found = f.claim(userID)
	if !found {
		return expired(t.T("entry_expired"))
	}

	op := &domain.Operation{
		Asset:       draft.Asset,
		OrderType:   draft.OrderType,
		EntryPrice:  entry,
		TakeProfit1: *optional[0].dst,
		TakeProfit2: *optional[1].dst,
		StopLoss:    *optional[2].dst,
		Status:      domain.StatusOpen,
		Notes:       validation.TruncateText(validation.SanitizeText(ix.Value(InputNotes)), maxEntryNotes),
		CreatedBy:   userID,
	}

	created, err := f.create(ctx, op)
	if err != nil {
		f.logger.WithFields(logrus.Fields{
			"user_id": userID,
			"asset":   op.Asset,
		}).WithError(err).Error("Failed to create operation")
		f.d.Locks.SetState(entryLockDomain, userID, draft)
		f.d.Locks.Touch(entryLockDomain, userID)
		return fault(err, t.T("entry_save_failed"))
	}

	f.d.Locks.Release(entryLockDomain, userID)

	if err := ix.Surface.Notify(ctx, Notice{Tone: policy.ToneSuccess, Text: t.T("entry_created")}); err != nil {
		f.logger.WithError(err).Warn("Failed to send entry confirmation")
	}
	if err := ix.Surface.Announce(ctx, f.announcement(created, ix.Actor)); err != nil {
		f.logger.WithField("operation_id", created.OperationID).WithError(err).Error("Failed to publish entry")
	}

	return ok()
}

// create повторяет вставку с новым ID при редкой коллизии
func (f *EntryFlow) create(ctx context.Context, op *domain.Operation) (*domain.Operation, error) {
	var err error
	for attempt := 0; attempt < createAttempts; attempt++ {
		op.OperationID = validation.GenerateOperationID(op.Asset, op.OrderType)
		var created *domain.Operation
		created, err = f.d.Store.CreateOperation(ctx, op)
		if err == nil {
			return created, nil
		}
		if !errors.Is(err, domain.ErrDuplicateID) {
			return nil, err
		}
		f.logger.WithField("operation_id", op.OperationID).Warn("Operation ID collision, regenerating")
	}
	return nil, err
}

func (f *EntryFlow) announcement(op *domain.Operation, actor Actor) Prompt {
	t := f.d.Formatter
	catalog := f.d.assets()
	info := catalog.Describe(op.Asset)

	tone := policy.ToneSuccess
	sideLong := t.T("buy_long")
	if op.OrderType == domain.SideSell {
		tone = policy.ToneError
		sideLong = t.T("sell_long")
	}

	notes := t.T("no_notes")
	if op.Notes != "" {
		notes = fmt.Sprintf("**%s**", op.Notes)
	}

	return Prompt{
		Title:       fmt.Sprintf("%s %s %s - %s", domain.SideEmoji(op.OrderType), info.Emoji, info.Name, t.T("announce_new")),
		Description: t.Tf("announce_desc", op.OrderType, op.Asset),
		Tone:        tone,
		Fields: []Field{
			{Name: t.T("field_order_type"), Value: sideLong, Inline: true},
			{Name: t.T("field_entry"), Value: fmt.Sprintf("**%s**", catalog.FormatPrice(op.Asset, op.EntryPrice)), Inline: true},
			{Name: t.T("field_tp1"), Value: f.optionalPrice(op.Asset, op.TakeProfit1), Inline: true},
			{Name: t.T("field_tp2"), Value: f.optionalPrice(op.Asset, op.TakeProfit2), Inline: true},
			{Name: t.T("field_sl"), Value: f.optionalPrice(op.Asset, op.StopLoss), Inline: true},
			{Name: t.T("field_notes"), Value: notes},
			{Name: t.T("field_operator"), Value: actor.Display(), Inline: true},
		},
		Footer:    f.d.Footer,
		Timestamp: op.CreatedAt,
	}
}

func (f *EntryFlow) optionalPrice(symbol string, v decimal.NullDecimal) string {
	if !v.Valid {
		return f.d.Formatter.T("not_set")
	}
	return fmt.Sprintf("**%s**", f.d.assets().FormatPrice(symbol, v.Decimal))
}
