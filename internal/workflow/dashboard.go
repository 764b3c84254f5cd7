package workflow

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kirillm/signal-desk/internal/domain"
	"github.com/kirillm/signal-desk/internal/policy"
	"github.com/kirillm/signal-desk/internal/session"
)

// Bucket группа операций на дашборде
type Bucket string

const (
	BucketActive     Bucket = "active"
	BucketBreakEven  Bucket = "be"
	BucketTakeProfit Bucket = "tp"
	BucketClosed     Bucket = "closed"
	BucketStopped    Bucket = "stopped"
)

// Buckets в порядке отображения. STOPPED терминален, но считается отдельно от CLOSED.
var Buckets = []Bucket{BucketActive, BucketBreakEven, BucketTakeProfit, BucketClosed, BucketStopped}

// Statuses статусы, входящие в группу
func (b Bucket) Statuses() []domain.Status {
	switch b {
	case BucketActive:
		return []domain.Status{domain.StatusOpen}
	case BucketBreakEven:
		return []domain.Status{domain.StatusBE}
	case BucketTakeProfit:
		return []domain.Status{domain.StatusTP1, domain.StatusTP2, domain.StatusTP3}
	case BucketClosed:
		return []domain.Status{domain.StatusClosed}
	case BucketStopped:
		return []domain.Status{domain.StatusStopped}
	default:
		return nil
	}
}

// BucketOf группа для статуса
func BucketOf(s domain.Status) (Bucket, bool) {
	for _, b := range Buckets {
		for _, st := range b.Statuses() {
			if st == s {
				return b, true
			}
		}
	}
	return "", false
}

// Summary сводка по операциям
type Summary struct {
	Total   int            `json:"total"`
	Buckets map[Bucket]int `json:"buckets"`
	ByAsset map[string]int `json:"by_asset"`
	Buy     int            `json:"buy"`
	Sell    int            `json:"sell"`
}

// Count количество операций в группе
func (s Summary) Count(b Bucket) int {
	return s.Buckets[b]
}

// Summarize разбивает операции по группам, инструментам и направлениям
func Summarize(ops []domain.Operation) Summary {
	s := Summary{
		Total:   len(ops),
		Buckets: make(map[Bucket]int, len(Buckets)),
		ByAsset: make(map[string]int),
	}
	for _, op := range ops {
		if b, ok := BucketOf(op.Status); ok {
			s.Buckets[b]++
		}
		s.ByAsset[op.Asset]++
		switch op.OrderType {
		case domain.SideBuy:
			s.Buy++
		case domain.SideSell:
			s.Sell++
		}
	}
	return s
}

const (
	filterPageSize  = 10
	purgeLockDomain = session.DomainPurge
	defaultPurgeTTL = time.Minute
	purgeAtDesc     = "time of the last purge of all operations"
	purgeByDesc     = "user who ran the last purge"
)

// Dashboard просмотр операций и защищенная очистка
type Dashboard struct {
	d      *Deps
	logger *logrus.Entry
}

// NewDashboard создает дашборд
func NewDashboard(d *Deps) *Dashboard {
	return &Dashboard{d: d, logger: d.Logger.WithField("flow", FlowTrades)}
}

// Show строит дашборд. edit=true заменяет текущее сообщение (кнопка обновления).
func (v *Dashboard) Show(ctx context.Context, ix *Interaction, edit bool) Outcome {
	t := v.d.Formatter

	ops, err := v.d.Store.GetAllOperations(ctx)
	if err != nil {
		return fault(err, t.T("dashboard_failed"))
	}
	if len(ops) == 0 {
		return notFound(t.T("no_operations"))
	}

	sum := Summarize(ops)
	prompt := Prompt{
		Title:       t.T("dashboard_title"),
		Description: t.T("dashboard_desc"),
		Tone:        policy.ToneInfo,
		Fields: []Field{
			{
				Name: t.T("field_general"),
				Value: t.Tf("general_value", sum.Total,
					sum.Count(BucketActive), sum.Count(BucketBreakEven), sum.Count(BucketTakeProfit),
					sum.Count(BucketClosed), sum.Count(BucketStopped)),
				Inline: true,
			},
			{Name: t.T("field_by_asset"), Value: v.assetStats(sum), Inline: true},
			{Name: t.T("field_by_type"), Value: fmt.Sprintf("**BUY:** %d\n**SELL:** %d", sum.Buy, sum.Sell), Inline: true},
		},
		Choices: [][]Choice{
			{
				{Action: ActionFilter(BucketActive), Label: t.Tf("btn_active", sum.Count(BucketActive)), Style: StyleSuccess},
				{Action: ActionFilter(BucketBreakEven), Label: t.Tf("btn_be_count", sum.Count(BucketBreakEven)), Style: StylePrimary},
				{Action: ActionFilter(BucketTakeProfit), Label: t.Tf("btn_tp_count", sum.Count(BucketTakeProfit)), Style: StyleSecondary},
				{Action: ActionFilter(BucketClosed), Label: t.Tf("btn_closed", sum.Count(BucketClosed)), Style: StyleDanger},
				{Action: ActionFilter(BucketStopped), Label: t.Tf("btn_stopped_count", sum.Count(BucketStopped)), Style: StyleDanger},
			},
			{
				{Action: ActionTradesClear, Label: t.T("btn_clear"), Style: StyleSecondary},
				{Action: ActionTradesRefresh, Label: t.T("btn_refresh"), Style: StyleSecondary},
			},
		},
		Timestamp: v.d.now(),
	}

	if edit {
		err = ix.Surface.EditPrompt(ctx, prompt)
	} else {
		err = ix.Surface.ShowChoices(ctx, prompt)
	}
	if err != nil {
		return fault(err, t.T("generic_error"))
	}

	v.logger.WithFields(logrus.Fields{"user_id": ix.Actor.ID, "total": sum.Total}).Debug("Dashboard shown")
	return ok()
}

// assetStats сначала инструменты каталога, затем остальные по алфавиту
func (v *Dashboard) assetStats(sum Summary) string {
	if len(sum.ByAsset) == 0 {
		return "N/A"
	}

	seen := make(map[string]bool, len(sum.ByAsset))
	var order []string
	for _, sym := range v.d.assets().Symbols() {
		if sum.ByAsset[sym] > 0 {
			order = append(order, sym)
			seen[sym] = true
		}
	}
	var rest []string
	for sym := range sum.ByAsset {
		if !seen[sym] {
			rest = append(rest, sym)
		}
	}
	sort.Strings(rest)
	order = append(order, rest...)

	lines := make([]string, 0, len(order))
	for _, sym := range order {
		lines = append(lines, fmt.Sprintf("**%s:** %d", sym, sum.ByAsset[sym]))
	}
	return strings.Join(lines, "\n")
}

type filterView struct {
	titleKey string
	tone     policy.Tone
}

var filterViews = map[Bucket]filterView{
	BucketActive:     {"filter_active", policy.ToneSuccess},
	BucketBreakEven:  {"filter_be", policy.ToneWarning},
	BucketTakeProfit: {"filter_tp", policy.ToneInfo},
	BucketClosed:     {"filter_closed", policy.ToneError},
	BucketStopped:    {"filter_stopped", policy.ToneError},
}

// Filter показывает первые операции группы
func (v *Dashboard) Filter(ctx context.Context, ix *Interaction, raw string) Outcome {
	t := v.d.Formatter

	b := Bucket(raw)
	view, known := filterViews[b]
	if !known {
		return invalid("filter", t.Tf("unknown_filter", raw))
	}

	ops, err := v.d.Store.GetOperationsByStatus(ctx, b.Statuses()...)
	if err != nil {
		return fault(err, t.T("dashboard_failed"))
	}
	if len(ops) == 0 {
		return notFound(t.Tf("filter_empty", raw))
	}

	shown := ops
	if len(shown) > filterPageSize {
		shown = shown[:filterPageSize]
	}

	catalog := v.d.assets()
	fields := make([]Field, 0, len(shown))
	for i, op := range shown {
		fields = append(fields, operationField(t, catalog, i+1, op))
	}

	prompt := Prompt{
		Title:       t.T(view.titleKey),
		Description: t.Tf("filter_found", len(ops)),
		Tone:        view.tone,
		Fields:      fields,
		Choices:     [][]Choice{{{Action: ActionTradesRefresh, Label: t.T("btn_back"), Style: StyleSecondary}}},
		Timestamp:   v.d.now(),
	}
	if len(ops) > filterPageSize {
		prompt.Footer = t.Tf("filter_more", filterPageSize, len(ops))
	}

	if err := ix.Surface.EditPrompt(ctx, prompt); err != nil {
		return fault(err, t.T("generic_error"))
	}

	v.logger.WithFields(logrus.Fields{"user_id": ix.Actor.ID, "filter": raw, "found": len(ops)}).Debug("Filter applied")
	return ok()
}

func (v *Dashboard) purgeTTL() time.Duration {
	if v.d.PurgeConfirmTTL > 0 {
		return v.d.PurgeConfirmTTL
	}
	return defaultPurgeTTL
}

// ClearPrompt первый шаг очистки: только запрос подтверждения, без изменений
func (v *Dashboard) ClearPrompt(ctx context.Context, ix *Interaction) Outcome {
	userID := ix.Actor.ID
	t := v.d.Formatter

	if !v.d.Locks.TryAcquire(purgeLockDomain, userID) {
		return busy(t.T("clear_busy"))
	}

	n, err := v.d.Store.CountOperations(ctx)
	if err != nil {
		v.d.Locks.Release(purgeLockDomain, userID)
		return fault(err, t.T("dashboard_failed"))
	}
	if n == 0 {
		v.d.Locks.Release(purgeLockDomain, userID)
		return notFound(t.T("clear_nothing"))
	}

	v.d.Locks.SetState(purgeLockDomain, userID, n)
	v.d.Locks.ScheduleAutoRelease(purgeLockDomain, userID, v.purgeTTL())

	prompt := Prompt{
		Title:       t.T("clear_title"),
		Description: t.Tf("clear_desc", n),
		Tone:        policy.ToneWarning,
		Choices: [][]Choice{{
			{Action: ActionClearConfirm, Label: t.T("btn_confirm_clear"), Style: StyleDanger},
			{Action: ActionClearCancel, Label: t.T("btn_cancel"), Style: StyleSecondary},
		}},
		Timestamp: v.d.now(),
	}
	if err := ix.Surface.EditPrompt(ctx, prompt); err != nil {
		v.d.Locks.Release(purgeLockDomain, userID)
		return fault(err, t.T("generic_error"))
	}

	v.logger.WithFields(logrus.Fields{"user_id": userID, "operations": n}).Info("Purge confirmation requested")
	return ok()
}

// ConfirmClear удаляет все операции, только если подтверждение еще действует
func (v *Dashboard) ConfirmClear(ctx context.Context, ix *Interaction) Outcome {
	userID := ix.Actor.ID
	t := v.d.Formatter

	if !v.d.Locks.Held(purgeLockDomain, userID) {
		return expired(t.T("clear_expired"))
	}

	result, err := v.d.Store.PurgeAll(ctx)
	if err != nil {
		return fault(err, t.T("clear_failed"))
	}
	v.d.Locks.Release(purgeLockDomain, userID)

	now := v.d.now().UTC()
	if err := v.d.Store.SetConfig(ctx, domain.ConfigLastPurgeAt, now.Format(time.RFC3339), purgeAtDesc); err != nil {
		v.logger.WithError(err).Warn("Failed to record purge time")
	}
	if err := v.d.Store.SetConfig(ctx, domain.ConfigLastPurgeBy, userID, purgeByDesc); err != nil {
		v.logger.WithError(err).Warn("Failed to record purge author")
	}

	v.logger.WithFields(logrus.Fields{
		"user_id":    userID,
		"operations": result.Operations,
		"updates":    result.Updates,
	}).Warn("Operations purged from dashboard")

	prompt := Prompt{
		Title:       t.T("clear_done_title"),
		Description: t.T("clear_done_desc"),
		Tone:        policy.ToneSuccess,
		Timestamp:   now,
	}
	if err := ix.Surface.EditPrompt(ctx, prompt); err != nil {
		v.logger.WithError(err).Warn("Failed to render purge result")
	}
	return ok()
}

// CancelClear закрывает подтверждение без изменений
func (v *Dashboard) CancelClear(ctx context.Context, ix *Interaction) Outcome {
	t := v.d.Formatter

	v.d.Locks.Release(purgeLockDomain, ix.Actor.ID)

	if err := ix.Surface.EditPrompt(ctx, Prompt{Description: t.T("clear_cancelled"), Tone: policy.ToneInfo}); err != nil {
		return fault(err, t.T("generic_error"))
	}
	return ok()
}
