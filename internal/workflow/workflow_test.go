package workflow

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/kirillm/signal-desk/internal/config"
	"github.com/kirillm/signal-desk/internal/domain"
	"github.com/kirillm/signal-desk/internal/policy"
	"github.com/kirillm/signal-desk/internal/session"
	"github.com/kirillm/signal-desk/internal/storage"
	"github.com/kirillm/signal-desk/internal/validation"
	"github.com/kirillm/signal-desk/pkg/utils"
)

// fakeSurface запоминает все, что процесс показал пользователю
type fakeSurface struct {
	mu        sync.Mutex
	shown     []Prompt
	edits     []Prompt
	forms     []Form
	notices   []Notice
	announced []Prompt
	panicOn   string
}

func (s *fakeSurface) ShowChoices(_ context.Context, p Prompt) error {
	if s.panicOn == "show" {
		panic("surface exploded")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shown = append(s.shown, p)
	return nil
}

func (s *fakeSurface) EditPrompt(_ context.Context, p Prompt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.edits = append(s.edits, p)
	return nil
}

func (s *fakeSurface) ShowForm(_ context.Context, f Form) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.forms = append(s.forms, f)
	return nil
}

func (s *fakeSurface) Notify(_ context.Context, n Notice) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notices = append(s.notices, n)
	return nil
}

func (s *fakeSurface) Announce(_ context.Context, p Prompt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.announced = append(s.announced, p)
	return nil
}

func (s *fakeSurface) lastNotice(t *testing.T) Notice {
	t.Helper()
	require.NotEmpty(t, s.notices)
	return s.notices[len(s.notices)-1]
}

func (s *fakeSurface) lastEdit(t *testing.T) Prompt {
	t.Helper()
	require.NotEmpty(t, s.edits)
	return s.edits[len(s.edits)-1]
}

func promptText(p Prompt) string {
	var b strings.Builder
	b.WriteString(p.Title + "\n" + p.Description + "\n")
	for _, f := range p.Fields {
		b.WriteString(f.Name + ": " + f.Value + "\n")
	}
	b.WriteString(p.Footer)
	return b.String()
}

func actions(p Prompt) []string {
	var out []string
	for _, row := range p.Choices {
		for _, c := range row {
			out = append(out, c.Action)
		}
	}
	return out
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type harness struct {
	t      *testing.T
	deps   *Deps
	router *Router
	store  *storage.Storage
	locks  *session.Manager
	clock  *testClock
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	clock := &testClock{now: time.Date(2026, 4, 10, 14, 0, 0, 0, time.UTC)}

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "workflow.db")), &gorm.Config{
		TranslateError: true,
		NowFunc:        clock.Now,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	st, err := storage.New(db, config.DriverSQLite, utils.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	locks := session.NewManager(session.NewMemoryStore(), time.Minute, utils.Discard())
	catalog := domain.NewAssetCatalog([]string{"US30", "MNQ", "MGC"}, domain.DefaultAssets())

	deps := &Deps{
		Store:           st,
		Locks:           locks,
		Validator:       validation.NewValidator(catalog),
		Formatter:       NewFormatter(policy.LangES),
		Footer:          "BDX Traders",
		PurgeConfirmTTL: time.Minute,
		Logger:          utils.Discard(),
		Now:             clock.Now,
	}

	return &harness{
		t:      t,
		deps:   deps,
		router: NewRouter(deps, 10*time.Minute),
		store:  st,
		locks:  locks,
		clock:  clock,
	}
}

func (h *harness) command(user, name string) (Outcome, *fakeSurface) {
	s := &fakeSurface{}
	out := h.router.HandleCommand(context.Background(), name, &Interaction{
		Actor:   Actor{ID: user, Name: "admin", Mention: "<@" + user + ">"},
		Surface: s,
	})
	return out, s
}

func (h *harness) action(user, action string, values map[string]string) (Outcome, *fakeSurface) {
	s := &fakeSurface{}
	out := h.router.HandleAction(context.Background(), &Interaction{
		Actor:   Actor{ID: user, Name: "admin", Mention: "<@" + user + ">"},
		Action:  action,
		Values:  values,
		Surface: s,
	})
	return out, s
}

func (h *harness) seed(id, asset, side string, status domain.Status) *domain.Operation {
	h.t.Helper()
	op, err := h.store.CreateOperation(context.Background(), &domain.Operation{
		OperationID: id,
		Asset:       asset,
		OrderType:   side,
		EntryPrice:  decimal.RequireFromString("35000"),
		Status:      status,
		CreatedBy:   "seed",
	})
	require.NoError(h.t, err)
	return op
}

func (h *harness) count() int64 {
	h.t.Helper()
	n, err := h.store.CountOperations(context.Background())
	require.NoError(h.t, err)
	return n
}

// === Entry ===

func TestEntry_EndToEnd(t *testing.T) {
	h := newHarness(t)

	out, s := h.command("u1", "/entry")
	require.True(t, out.OK(), out.Message)
	require.Len(t, s.shown, 1)
	assert.Contains(t, s.shown[0].Description, "Paso 1/3")
	assert.Equal(t, []string{"entry:asset:US30", "entry:asset:MNQ", "entry:asset:MGC"}, actions(s.shown[0]))
	assert.True(t, h.locks.Held(session.DomainEntry, "u1"))

	out, s = h.action("u1", ActionAsset("US30"), nil)
	require.True(t, out.OK(), out.Message)
	assert.Contains(t, s.lastEdit(t).Description, "Paso 2/3")
	assert.Equal(t, []string{"entry:side:BUY", "entry:side:SELL"}, actions(s.lastEdit(t)))

	out, s = h.action("u1", ActionSide("BUY"), nil)
	require.True(t, out.OK(), out.Message)
	require.Len(t, s.forms, 1)
	form := s.forms[0]
	assert.Equal(t, ActionEntryForm, form.Action)
	require.Len(t, form.Inputs, 5)
	assert.Equal(t, InputEntryPrice, form.Inputs[0].ID)
	assert.True(t, form.Inputs[0].Required)
	assert.True(t, form.Inputs[4].Multiline)

	out, s = h.action("u1", ActionEntryForm, map[string]string{
		InputEntryPrice: "35000.00",
	})
	require.True(t, out.OK(), out.Message)

	ops, err := h.store.GetAllOperations(context.Background())
	require.NoError(t, err)
	require.Len(t, ops, 1)
	op := ops[0]
	assert.Equal(t, "US30", op.Asset)
	assert.Equal(t, domain.SideBuy, op.OrderType)
	assert.Equal(t, domain.StatusOpen, op.Status)
	assert.True(t, op.EntryPrice.Equal(decimal.NewFromInt(35000)))
	assert.False(t, op.TakeProfit1.Valid)
	assert.False(t, op.StopLoss.Valid)
	assert.Equal(t, "u1", op.CreatedBy)
	assert.True(t, strings.HasPrefix(op.OperationID, "TRADE_"))

	require.Len(t, s.announced, 1)
	text := promptText(s.announced[0])
	assert.Contains(t, text, "US30")
	assert.Contains(t, text, "35000.00")
	assert.Contains(t, text, "No establecido")
	assert.Contains(t, text, "<@u1>")
	assert.Equal(t, "BDX Traders", s.announced[0].Footer)
	assert.Equal(t, policy.ToneSuccess, s.lastNotice(t).Tone)

	assert.False(t, h.locks.Held(session.DomainEntry, "u1"), "lock released after commit")

	history, err := h.store.GetOperationUpdates(context.Background(), op.OperationID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, domain.UpdateTypeCreate, history[0].UpdateType)
}

func TestEntry_OptionalFieldsAndNotes(t *testing.T) {
	h := newHarness(t)

	h.command("u1", "entry")
	h.action("u1", ActionAsset("mgc"), nil)
	h.action("u1", ActionSide("sell"), nil)
	out, s := h.action("u1", ActionEntryForm, map[string]string{
		InputEntryPrice:  "2350,25",
		InputTakeProfit1: "2340",
		InputStopLoss:    "2360.5",
		InputNotes:       "@everyone <b>resistencia</b>",
	})
	require.True(t, out.OK(), out.Message)

	ops, err := h.store.GetAllOperations(context.Background())
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, "MGC", ops[0].Asset)
	assert.Equal(t, domain.SideSell, ops[0].OrderType)
	assert.True(t, ops[0].TakeProfit1.Valid)
	assert.False(t, ops[0].TakeProfit2.Valid)
	assert.True(t, ops[0].StopLoss.Valid)
	assert.Equal(t, "everyone bresistencia/b", ops[0].Notes)

	require.Len(t, s.announced, 1)
	assert.Equal(t, policy.ToneError, s.announced[0].Tone)
	assert.Contains(t, promptText(s.announced[0]), "2360.5")
}

func TestEntry_Busy(t *testing.T) {
	h := newHarness(t)

	out, _ := h.command("u1", "entry")
	require.True(t, out.OK())

	out, s := h.command("u1", "entry")
	assert.Equal(t, KindBusy, out.Kind)
	assert.Contains(t, s.lastNotice(t).Text, "Ya tienes una operación en proceso")
	assert.Equal(t, policy.ToneWarning, s.lastNotice(t).Tone)

	out, _ = h.command("u2", "entry")
	assert.True(t, out.OK(), "other users are not blocked")
}

func TestEntry_InvalidAssetReleasesLockAndDraft(t *testing.T) {
	h := newHarness(t)

	h.command("u1", "entry")
	out, s := h.action("u1", ActionAsset("BTC"), nil)

	assert.Equal(t, KindValidationFailed, out.Kind)
	assert.Equal(t, "asset", out.Field)
	assert.Contains(t, s.lastNotice(t).Text, "Activo no válido")
	assert.False(t, h.locks.Held(session.DomainEntry, "u1"))
}

func TestEntry_SideWithoutAssetAsksRestart(t *testing.T) {
	h := newHarness(t)

	out, s := h.action("u1", ActionSide("BUY"), nil)
	assert.Equal(t, KindExpired, out.Kind)
	assert.Contains(t, s.lastNotice(t).Text, "/entry")
	assert.Empty(t, s.forms)
}

func TestEntry_FormValidationKeepsDraft(t *testing.T) {
	h := newHarness(t)

	h.command("u1", "entry")
	h.action("u1", ActionAsset("US30"), nil)
	h.action("u1", ActionSide("BUY"), nil)

	tests := []struct {
		name   string
		values map[string]string
		field  string
	}{
		{"missing entry", map[string]string{}, InputEntryPrice},
		{"text entry", map[string]string{InputEntryPrice: "abc"}, InputEntryPrice},
		{"ceiling", map[string]string{InputEntryPrice: "1000000"}, InputEntryPrice},
		{"negative tp1", map[string]string{InputEntryPrice: "35000", InputTakeProfit1: "-5"}, InputTakeProfit1},
		{"bad tp2", map[string]string{InputEntryPrice: "35000", InputTakeProfit2: "x"}, InputTakeProfit2},
		{"zero sl", map[string]string{InputEntryPrice: "35000", InputStopLoss: "0"}, InputStopLoss},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, s := h.action("u1", ActionEntryForm, tt.values)
			assert.Equal(t, KindValidationFailed, out.Kind)
			assert.Equal(t, tt.field, out.Field)
			assert.Equal(t, policy.ToneError, s.lastNotice(t).Tone)
			assert.True(t, h.locks.Held(session.DomainEntry, "u1"), "draft kept for retry")
		})
	}
	assert.Zero(t, h.count())

	out, _ := h.action("u1", ActionEntryForm, map[string]string{InputEntryPrice: "35000"})
	require.True(t, out.OK(), out.Message)
	assert.Equal(t, int64(1), h.count())
}

func TestEntry_SubmitAfterSessionExpired(t *testing.T) {
	h := newHarness(t)

	h.command("u1", "entry")
	h.action("u1", ActionAsset("US30"), nil)
	h.action("u1", ActionSide("BUY"), nil)
	h.locks.Release(session.DomainEntry, "u1")

	out, s := h.action("u1", ActionEntryForm, map[string]string{InputEntryPrice: "35000"})
	assert.Equal(t, KindExpired, out.Kind)
	assert.Contains(t, s.lastNotice(t).Text, "inicia el proceso nuevamente")
	assert.Zero(t, h.count())
}

type failingStore struct {
	*storage.Storage
	err error
}

func (f failingStore) CreateOperation(context.Context, *domain.Operation) (*domain.Operation, error) {
	return nil, f.err
}

func (f failingStore) UpdateOperationAudited(context.Context, string, domain.OperationPatch, string) (*domain.Operation, error) {
	return nil, f.err
}

// gatedStore держит запись, пока тест не откроет release
type gatedStore struct {
	*storage.Storage
	entered chan struct{}
	release chan struct{}
}

func newGatedStore(st *storage.Storage) *gatedStore {
	return &gatedStore{Storage: st, entered: make(chan struct{}, 2), release: make(chan struct{})}
}

func (g *gatedStore) CreateOperation(ctx context.Context, op *domain.Operation) (*domain.Operation, error) {
	g.entered <- struct{}{}
	<-g.release
	return g.Storage.CreateOperation(ctx, op)
}

func (g *gatedStore) UpdateOperationAudited(ctx context.Context, id string, patch domain.OperationPatch, by string) (*domain.Operation, error) {
	g.entered <- struct{}{}
	<-g.release
	return g.Storage.UpdateOperationAudited(ctx, id, patch, by)
}

// submitTwice отправляет действие второй раз, пока первое еще пишет в базу
func submitTwice(t *testing.T, h *harness, gate *gatedStore, action string, values map[string]string) (Outcome, *fakeSurface, Outcome) {
	t.Helper()

	type result struct {
		out Outcome
		s   *fakeSurface
	}
	first := make(chan result, 1)
	go func() {
		out, s := h.action("u1", action, values)
		first <- result{out, s}
	}()
	<-gate.entered

	second := make(chan Outcome, 1)
	go func() {
		out, _ := h.action("u1", action, values)
		second <- out
	}()

	var again Outcome
	select {
	case again = <-second:
	case <-time.After(2 * time.Second):
		t.Error("second submission reached the store")
	}
	close(gate.release)

	r := <-first
	return r.out, r.s, again
}

func TestEntry_StoreFailureKeepsDraft(t *testing.T) {
	h := newHarness(t)
	h.deps.Store = failingStore{Storage: h.store, err: errors.New("database is locked")}

	h.command("u1", "entry")
	h.action("u1", ActionAsset("US30"), nil)
	h.action("u1", ActionSide("BUY"), nil)

	out, s := h.action("u1", ActionEntryForm, map[string]string{InputEntryPrice: "35000"})
	assert.Equal(t, KindFault, out.Kind)
	assert.Contains(t, s.lastNotice(t).Text, "No se pudo guardar")
	assert.Empty(t, s.announced, "nothing public after a failed commit")
	assert.True(t, h.locks.Held(session.DomainEntry, "u1"))

	h.deps.Store = h.store
	out, _ = h.action("u1", ActionEntryForm, map[string]string{InputEntryPrice: "35000"})
	assert.True(t, out.OK(), out.Message)
}

func TestEntry_DoubleSubmitCreatesOnce(t *testing.T) {
	h := newHarness(t)
	gate := newGatedStore(h.store)
	h.deps.Store = gate

	h.command("u1", "entry")
	h.action("u1", ActionAsset("US30"), nil)
	h.action("u1", ActionSide("BUY"), nil)

	out, s, again := submitTwice(t, h, gate, ActionEntryForm, map[string]string{InputEntryPrice: "35000"})
	require.True(t, out.OK(), out.Message)
	assert.Equal(t, KindExpired, again.Kind)
	assert.Len(t, s.announced, 1)
	assert.Equal(t, int64(1), h.count())
	assert.False(t, h.locks.Held(session.DomainEntry, "u1"))
}

// === Update ===

func TestUpdate_EndToEndTP1(t *testing.T) {
	h := newHarness(t)
	seeded := h.seed("TRADE_E2E_US30B", "US30", domain.SideBuy, domain.StatusOpen)

	out, s := h.command("u1", "update")
	require.True(t, out.OK(), out.Message)
	require.Len(t, s.shown, 1)
	assert.Equal(t, []string{"update:op:TRADE_E2E_US30B"}, actions(s.shown[0]))

	out, s = h.action("u1", ActionSelectOperation(seeded.OperationID), nil)
	require.True(t, out.OK(), out.Message)
	edit := s.lastEdit(t)
	assert.Contains(t, edit.Description, "Paso 2/2")
	assert.Equal(t, []string{
		"update:status:BE", "update:status:TP1", "update:status:TP2", "update:status:TP3",
		"update:status:STOPPED", ActionUpdateNote,
	}, actions(edit))

	h.clock.Advance(2 * time.Minute)

	out, s = h.action("u1", ActionStatus(domain.StatusTP1), nil)
	require.True(t, out.OK(), out.Message)

	got, err := h.store.GetOperation(context.Background(), seeded.OperationID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusTP1, got.Status)
	assert.True(t, got.UpdatedAt.After(seeded.UpdatedAt), "updated_at refreshed")
	assert.True(t, got.EntryPrice.Equal(seeded.EntryPrice))

	require.Len(t, s.announced, 1)
	assert.Contains(t, s.announced[0].Title, "Primer Objetivo")
	assert.Equal(t, policy.ToneSuccess, s.announced[0].Tone)
	assert.Contains(t, s.lastNotice(t).Text, "actualizada exitosamente")
	assert.False(t, h.locks.Held(session.DomainUpdate, "u1"))

	history, err := h.store.GetOperationUpdates(context.Background(), seeded.OperationID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "TP1", history[1].NewValue)
	assert.Equal(t, "u1", history[1].UpdatedBy)
}

func TestUpdate_AnnouncementShowsPoints(t *testing.T) {
	cases := []struct {
		status domain.Status
		points string
		value  string
	}{
		{domain.StatusTP1, "+100.00", "+500.00 USD"},
		{domain.StatusStopped, "-100.00", "-500.00 USD"},
		{domain.StatusBE, "", ""},
	}
	for _, tc := range cases {
		t.Run(string(tc.status), func(t *testing.T) {
			h := newHarness(t)
			op, err := h.store.CreateOperation(context.Background(), &domain.Operation{
				OperationID: "TRADE_PTS",
				Asset:       "US30",
				OrderType:   domain.SideBuy,
				EntryPrice:  decimal.RequireFromString("35000"),
				TakeProfit1: decimal.NewNullDecimal(decimal.RequireFromString("35100")),
				StopLoss:    decimal.NewNullDecimal(decimal.RequireFromString("34900")),
				Status:      domain.StatusOpen,
				CreatedBy:   "seed",
			})
			require.NoError(t, err)

			h.command("u1", "update")
			h.action("u1", ActionSelectOperation(op.OperationID), nil)
			out, s := h.action("u1", ActionStatus(tc.status), nil)
			require.True(t, out.OK(), out.Message)
			require.Len(t, s.announced, 1)

			fields := s.announced[0].Fields
			if tc.points == "" {
				assert.Empty(t, fields)
				return
			}
			require.Len(t, fields, 2)
			assert.Equal(t, "**"+tc.points+"**", fields[0].Value)
			assert.Equal(t, "**"+tc.value+"**", fields[1].Value)
		})
	}
}

func TestUpdate_StatusWithoutSelection(t *testing.T) {
	h := newHarness(t)
	h.seed("TRADE_STALE", "US30", domain.SideBuy, domain.StatusOpen)

	// Без /update вообще
	out, s := h.action("u1", ActionStatus(domain.StatusTP1), nil)
	assert.Equal(t, KindExpired, out.Kind)
	assert.Contains(t, s.lastNotice(t).Text, "/update")

	// /update без выбора операции
	h.command("u1", "update")
	out, s = h.action("u1", ActionStatus(domain.StatusTP1), nil)
	assert.Equal(t, KindExpired, out.Kind)
	assert.Contains(t, s.lastNotice(t).Text, "/update")

	got, err := h.store.GetOperation(context.Background(), "TRADE_STALE")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusOpen, got.Status)

	history, err := h.store.GetOperationUpdates(context.Background(), "TRADE_STALE")
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestUpdate_NothingActive(t *testing.T) {
	h := newHarness(t)
	h.seed("TRADE_DONE", "US30", domain.SideBuy, domain.StatusClosed)

	out, s := h.command("u1", "update")
	assert.Equal(t, KindNotFound, out.Kind)
	assert.Contains(t, s.lastNotice(t).Text, "No hay operaciones activas")
	assert.False(t, h.locks.Held(session.DomainUpdate, "u1"))
}

func TestUpdate_ListIsBounded(t *testing.T) {
	h := newHarness(t)
	for i := 0; i < 13; i++ {
		h.seed(fmt.Sprintf("TRADE_%02d", i), "MNQ", domain.SideSell, domain.StatusOpen)
	}

	out, s := h.command("u1", "update")
	require.True(t, out.OK())

	p := s.shown[0]
	require.Len(t, p.Choices, 2)
	assert.Len(t, p.Choices[0], 5)
	assert.Len(t, p.Choices[1], 5)
	assert.Len(t, p.Fields, 10)
	assert.Contains(t, p.Description, "13")
	assert.Contains(t, p.Footer, "10 de 13")
}

func TestUpdate_InvalidStatusReleases(t *testing.T) {
	h := newHarness(t)
	op := h.seed("TRADE_X", "US30", domain.SideBuy, domain.StatusOpen)

	h.command("u1", "update")
	h.action("u1", ActionSelectOperation(op.OperationID), nil)

	out, _ := h.action("u1", "update:status:CLOSED", nil)
	assert.Equal(t, KindValidationFailed, out.Kind)
	assert.False(t, h.locks.Held(session.DomainUpdate, "u1"))
}

func TestUpdate_CustomNote(t *testing.T) {
	h := newHarness(t)
	op := h.seed("TRADE_NOTE", "US30", domain.SideBuy, domain.StatusOpen)

	h.command("u1", "update")
	h.action("u1", ActionSelectOperation(op.OperationID), nil)

	out, s := h.action("u1", ActionUpdateNote, nil)
	require.True(t, out.OK(), out.Message)
	require.Len(t, s.forms, 1)
	assert.Equal(t, ActionUpdateNoteForm, s.forms[0].Action)
	require.Len(t, s.forms[0].Inputs, 1)
	assert.Equal(t, InputCustomNotes, s.forms[0].Inputs[0].ID)
	assert.Equal(t, 1000, s.forms[0].Inputs[0].MaxLength)

	out, s = h.action("u1", ActionUpdateNoteForm, map[string]string{InputCustomNotes: "   "})
	assert.Equal(t, KindValidationFailed, out.Kind)
	assert.Contains(t, s.lastNotice(t).Text, "Debes escribir")
	assert.True(t, h.locks.Held(session.DomainUpdate, "u1"), "empty note keeps the draft")

	out, s = h.action("u1", ActionUpdateNoteForm, map[string]string{InputCustomNotes: "Cerrar parciales ahora"})
	require.True(t, out.OK(), out.Message)

	got, err := h.store.GetOperation(context.Background(), op.OperationID)
	require.NoError(t, err)
	assert.Equal(t, "Cerrar parciales ahora", got.Notes)
	assert.Equal(t, domain.StatusOpen, got.Status)

	require.Len(t, s.announced, 1)
	assert.Contains(t, s.announced[0].Title, "Mensaje Importante")
	assert.Equal(t, "**Cerrar parciales ahora**", s.announced[0].Description)

	history, err := h.store.GetOperationUpdates(context.Background(), op.OperationID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, domain.UpdateTypeNotes, history[1].UpdateType)
}

func TestUpdate_OperationDeletedConcurrently(t *testing.T) {
	h := newHarness(t)
	op := h.seed("TRADE_GONE", "US30", domain.SideBuy, domain.StatusOpen)

	h.command("u1", "update")
	_, err := h.store.PurgeAll(context.Background())
	require.NoError(t, err)

	out, s := h.action("u1", ActionSelectOperation(op.OperationID), nil)
	assert.Equal(t, KindNotFound, out.Kind)
	assert.Contains(t, s.lastNotice(t).Text, "No se encontró la operación")
	assert.False(t, h.locks.Held(session.DomainUpdate, "u1"))
}

func TestUpdate_DeletedAfterSelection(t *testing.T) {
	h := newHarness(t)
	op := h.seed("TRADE_GONE2", "US30", domain.SideBuy, domain.StatusOpen)

	h.command("u1", "update")
	h.action("u1", ActionSelectOperation(op.OperationID), nil)
	_, err := h.store.PurgeAll(context.Background())
	require.NoError(t, err)

	out, s := h.action("u1", ActionStatus(domain.StatusBE), nil)
	assert.Equal(t, KindNotFound, out.Kind)
	assert.Empty(t, s.announced)
	assert.Zero(t, h.count(), "update never inserts")
}

func TestUpdate_StoreFailureKeepsDraft(t *testing.T) {
	h := newHarness(t)
	op := h.seed("TRADE_FAIL", "US30", domain.SideBuy, domain.StatusOpen)

	h.command("u1", "update")
	h.action("u1", ActionSelectOperation(op.OperationID), nil)

	h.deps.Store = failingStore{Storage: h.store, err: errors.New("disk I/O error")}
	out, s := h.action("u1", ActionStatus(domain.StatusBE), nil)
	assert.Equal(t, KindFault, out.Kind)
	assert.Contains(t, s.lastNotice(t).Text, "No se pudo actualizar")
	assert.Empty(t, s.announced)
	assert.True(t, h.locks.Held(session.DomainUpdate, "u1"))

	h.deps.Store = h.store
	out, _ = h.action("u1", ActionStatus(domain.StatusBE), nil)
	require.True(t, out.OK(), out.Message)
}

func TestUpdate_DoubleStatusCommitsOnce(t *testing.T) {
	h := newHarness(t)
	op := h.seed("TRADE_TWICE", "US30", domain.SideBuy, domain.StatusOpen)

	h.command("u1", "update")
	h.action("u1", ActionSelectOperation(op.OperationID), nil)

	gate := newGatedStore(h.store)
	h.deps.Store = gate
	out, s, again := submitTwice(t, h, gate, ActionStatus(domain.StatusTP1), nil)
	require.True(t, out.OK(), out.Message)
	assert.Equal(t, KindExpired, again.Kind)
	assert.Len(t, s.announced, 1)

	history, err := h.store.GetOperationUpdates(context.Background(), op.OperationID)
	require.NoError(t, err)
	assert.Len(t, history, 2, "one CREATE and one STATUS row")
}

func TestUpdate_DoubleNoteCommitsOnce(t *testing.T) {
	h := newHarness(t)
	op := h.seed("TRADE_NOTE_TWICE", "US30", domain.SideBuy, domain.StatusOpen)

	h.command("u1", "update")
	h.action("u1", ActionSelectOperation(op.OperationID), nil)
	h.action("u1", ActionUpdateNote, nil)

	gate := newGatedStore(h.store)
	h.deps.Store = gate
	out, s, again := submitTwice(t, h, gate, ActionUpdateNoteForm, map[string]string{InputCustomNotes: "Mover stop a entrada"})
	require.True(t, out.OK(), out.Message)
	assert.Equal(t, KindExpired, again.Kind)
	assert.Len(t, s.announced, 1)

	history, err := h.store.GetOperationUpdates(context.Background(), op.OperationID)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

// === Dashboard ===

func TestSummarize_Partition(t *testing.T) {
	statuses := []domain.Status{
		domain.StatusOpen, domain.StatusOpen, domain.StatusBE, domain.StatusTP1,
		domain.StatusTP2, domain.StatusClosed, domain.StatusStopped,
	}
	ops := make([]domain.Operation, len(statuses))
	for i, st := range statuses {
		side := domain.SideBuy
		if i%3 == 0 {
			side = domain.SideSell
		}
		ops[i] = domain.Operation{Asset: "US30", OrderType: side, Status: st}
	}
	ops[6].Asset = "MNQ"

	sum := Summarize(ops)
	assert.Equal(t, 7, sum.Total)
	assert.Equal(t, 2, sum.Count(BucketActive))
	assert.Equal(t, 1, sum.Count(BucketBreakEven))
	assert.Equal(t, 2, sum.Count(BucketTakeProfit))
	assert.Equal(t, 1, sum.Count(BucketClosed))
	assert.Equal(t, 1, sum.Count(BucketStopped))
	assert.Equal(t, 6, sum.ByAsset["US30"])
	assert.Equal(t, 1, sum.ByAsset["MNQ"])
	assert.Equal(t, 3, sum.Sell)
	assert.Equal(t, 4, sum.Buy)
}

func TestBucketOf(t *testing.T) {
	tests := []struct {
		status domain.Status
		want   Bucket
	}{
		{domain.StatusOpen, BucketActive},
		{domain.StatusBE, BucketBreakEven},
		{domain.StatusTP3, BucketTakeProfit},
		{domain.StatusClosed, BucketClosed},
		{domain.StatusStopped, BucketStopped},
	}
	for _, tt := range tests {
		got, ok := BucketOf(tt.status)
		assert.True(t, ok)
		assert.Equal(t, tt.want, got, tt.status)
	}

	_, ok := BucketOf("PENDING")
	assert.False(t, ok)
}

func TestDashboard_ShowAndFilter(t *testing.T) {
	h := newHarness(t)
	for i := 0; i < 12; i++ {
		h.seed(fmt.Sprintf("TRADE_OPEN_%02d", i), "US30", domain.SideBuy, domain.StatusOpen)
	}
	h.seed("TRADE_STOP", "MGC", domain.SideSell, domain.StatusStopped)

	out, s := h.command("u1", "trades")
	require.True(t, out.OK(), out.Message)
	require.Len(t, s.shown, 1)
	text := promptText(s.shown[0])
	assert.Contains(t, text, "**Total:** 13")
	assert.Contains(t, text, "**Activas:** 12")
	assert.Contains(t, text, "**Stop:** 1")
	assert.Contains(t, text, "**US30:** 12\n**MGC:** 1")
	assert.Contains(t, actions(s.shown[0]), ActionTradesClear)

	out, s = h.action("u1", ActionFilter(BucketActive), nil)
	require.True(t, out.OK(), out.Message)
	p := s.lastEdit(t)
	assert.Len(t, p.Fields, 10)
	assert.Equal(t, "Mostrando 10 de 12 operaciones", p.Footer)
	assert.Contains(t, p.Fields[0].Value, "TRADE_OPEN_1...")
	assert.Contains(t, p.Fields[0].Value, "35000.00")

	out, s = h.action("u1", ActionFilter(BucketStopped), nil)
	require.True(t, out.OK(), out.Message)
	assert.Len(t, s.lastEdit(t).Fields, 1)
	assert.Empty(t, s.lastEdit(t).Footer)

	out, _ = h.action("u1", ActionFilter(BucketClosed), nil)
	assert.Equal(t, KindNotFound, out.Kind)

	out, _ = h.action("u1", ActionFilter("weird"), nil)
	assert.Equal(t, KindValidationFailed, out.Kind)

	out, s = h.action("u1", ActionTradesRefresh, nil)
	require.True(t, out.OK())
	assert.Len(t, s.edits, 1)
	assert.Empty(t, s.shown)
}

func TestDashboard_Empty(t *testing.T) {
	h := newHarness(t)

	out, s := h.command("u1", "trades")
	assert.Equal(t, KindNotFound, out.Kind)
	assert.Contains(t, s.lastNotice(t).Text, "No hay operaciones registradas")
}

func TestDashboard_PurgeGate(t *testing.T) {
	h := newHarness(t)
	for i := 0; i < 3; i++ {
		h.seed(fmt.Sprintf("TRADE_P%d", i), "US30", domain.SideBuy, domain.StatusOpen)
	}

	// Первое нажатие только спрашивает
	out, s := h.action("u1", ActionTradesClear, nil)
	require.True(t, out.OK(), out.Message)
	p := s.lastEdit(t)
	assert.Contains(t, p.Description, "¿Estás seguro de que quieres eliminar **3** operaciones?")
	assert.Equal(t, []string{ActionClearConfirm, ActionClearCancel}, actions(p))
	assert.Equal(t, int64(3), h.count())

	// Отмена ничего не меняет
	out, s = h.action("u1", ActionClearCancel, nil)
	require.True(t, out.OK())
	assert.Contains(t, s.lastEdit(t).Description, "Limpieza cancelada")
	assert.Equal(t, int64(3), h.count())
	assert.False(t, h.locks.Held(session.DomainPurge, "u1"))

	// Подтверждение без открытого запроса отклоняется
	out, _ = h.action("u1", ActionClearConfirm, nil)
	assert.Equal(t, KindExpired, out.Kind)
	assert.Equal(t, int64(3), h.count())

	// Другой пользователь не может подтвердить чужой запрос
	h.action("u1", ActionTradesClear, nil)
	out, _ = h.action("u2", ActionClearConfirm, nil)
	assert.Equal(t, KindExpired, out.Kind)
	assert.Equal(t, int64(3), h.count())

	out, s = h.action("u1", ActionClearConfirm, nil)
	require.True(t, out.OK(), out.Message)
	assert.Zero(t, h.count())
	assert.Contains(t, s.lastEdit(t).Title, "Limpieza Completada")

	by, err := h.store.GetConfig(context.Background(), domain.ConfigLastPurgeBy)
	require.NoError(t, err)
	assert.Equal(t, "u1", by)
	at, err := h.store.GetConfig(context.Background(), domain.ConfigLastPurgeAt)
	require.NoError(t, err)
	assert.Equal(t, "2026-04-10T14:00:00Z", at)

	out, _ = h.action("u1", ActionTradesClear, nil)
	assert.Equal(t, KindNotFound, out.Kind)
	assert.False(t, h.locks.Held(session.DomainPurge, "u1"))
}

// === Router ===

func TestRouter_RejectsStaleInteraction(t *testing.T) {
	h := newHarness(t)
	op := h.seed("TRADE_OLD", "US30", domain.SideBuy, domain.StatusOpen)
	h.command("u1", "update")

	s := &fakeSurface{}
	out := h.router.HandleAction(context.Background(), &Interaction{
		Actor:    Actor{ID: "u1"},
		Action:   ActionSelectOperation(op.OperationID),
		IssuedAt: h.clock.Now().Add(-11 * time.Minute),
		Surface:  s,
	})
	assert.Equal(t, KindExpired, out.Kind)
	assert.Contains(t, s.lastNotice(t).Text, "/update")
	assert.Empty(t, s.edits)

	out = h.router.HandleAction(context.Background(), &Interaction{
		Actor:    Actor{ID: "u1"},
		Action:   ActionSelectOperation(op.OperationID),
		IssuedAt: h.clock.Now().Add(-9 * time.Minute),
		Surface:  s,
	})
	assert.True(t, out.OK(), out.Message)
}

func TestRouter_RecoversPanic(t *testing.T) {
	h := newHarness(t)

	s := &fakeSurface{panicOn: "show"}
	out := h.router.HandleCommand(context.Background(), "trades", &Interaction{Actor: Actor{ID: "u1"}, Surface: s})
	// пустая база: панели нет, паники нет
	assert.Equal(t, KindNotFound, out.Kind)

	out = h.router.HandleCommand(context.Background(), "entry", &Interaction{Actor: Actor{ID: "u1"}, Surface: s})
	assert.Equal(t, KindFault, out.Kind)
	require.Error(t, out.Err)
	assert.Contains(t, s.lastNotice(t).Text, "Hubo un error")
}

func TestRouter_Unknown(t *testing.T) {
	h := newHarness(t)

	out, s := h.action("u1", "nope:nothing", nil)
	assert.Equal(t, KindValidationFailed, out.Kind)
	assert.Contains(t, s.lastNotice(t).Text, "Acción no reconocida")

	out, _ = h.command("u1", "deploy")
	assert.Equal(t, KindValidationFailed, out.Kind)
}

func TestRouter_AboutCommand(t *testing.T) {
	h := newHarness(t)
	h.seed("TRADE_A1", "US30", domain.SideBuy, domain.StatusOpen)
	h.seed("TRADE_A2", "MNQ", domain.SideSell, domain.StatusClosed)
	h.clock.Advance(90 * time.Minute)

	out, s := h.command("u1", "about")
	require.True(t, out.OK(), out.Message)
	require.Len(t, s.shown, 1)

	text := promptText(s.shown[0])
	assert.Contains(t, text, "US30, MNQ, MGC")
	assert.Contains(t, text, "**Total:** 2\n**Activas:** 1")
	assert.Contains(t, text, "**Cerradas:** 1")
	assert.Contains(t, text, "1h 30m")
	assert.Contains(t, text, "`/entry`")
	assert.Contains(t, text, "`/about`")
	assert.False(t, h.locks.Held(session.DomainEntry, "u1"), "about takes no lock")
}

func TestRouter_ClearCommand(t *testing.T) {
	h := newHarness(t)

	out, s := h.command("u1", "clear")
	require.True(t, out.OK())
	assert.Contains(t, s.lastNotice(t).Text, "No hay sesiones activas")

	h.command("u1", "entry")
	h.seed("TRADE_C", "US30", domain.SideBuy, domain.StatusOpen)
	h.command("u1", "update")

	out, s = h.command("u1", "clear")
	require.True(t, out.OK())
	text := s.lastNotice(t).Text
	assert.Contains(t, text, "entry (0 min)")
	assert.Contains(t, text, "update (0 min)")

	out, _ = h.command("u1", "entry")
	assert.True(t, out.OK(), "lock is free after clear")
}

func TestParseAction(t *testing.T) {
	tests := []struct {
		in   string
		want ParsedAction
	}{
		{"entry:asset:US30", ParsedAction{"entry", "asset", "US30"}},
		{"trades:clear", ParsedAction{"trades", "clear", ""}},
		{"trades:clear:confirm", ParsedAction{"trades", "clear", "confirm"}},
		{"update:op:TRADE_A:B", ParsedAction{"update", "op", "TRADE_A:B"}},
		{"refresh", ParsedAction{"refresh", "", ""}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseAction(tt.in))
		})
	}
}

func TestChunk(t *testing.T) {
	choices := make([]Choice, 7)
	rows := chunk(choices, 5)
	require.Len(t, rows, 2)
	assert.Len(t, rows[0], 5)
	assert.Len(t, rows[1], 2)
	assert.Empty(t, chunk(nil, 5))
}

func TestFormatter(t *testing.T) {
	es := NewFormatter(policy.LangES)
	en := NewFormatter(policy.LangEN)

	assert.Equal(t, "📊 Dashboard de Operaciones", es.T("dashboard_title"))
	assert.Equal(t, "📊 Trades Dashboard", en.T("dashboard_title"))
	assert.Equal(t, "missing_key", en.T("missing_key"))
	assert.Equal(t, "Mostrando 10 de 12 operaciones", es.Tf("filter_more", 10, 12))

	// каждая строка переведена на оба языка
	for key, trans := range translations {
		assert.NotEmpty(t, trans[policy.LangES], key)
		assert.NotEmpty(t, trans[policy.LangEN], key)
	}
}
