package workflow

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kirillm/signal-desk/internal/policy"
	"github.com/kirillm/signal-desk/pkg/utils"
)

// Commands
const (
	CommandEntry  = "entry"
	CommandUpdate = "update"
	CommandTrades = "trades"
	CommandClear  = "clear"
	CommandAbout  = "about"
)

// CommandInfo описание команды для регистрации и /status
type CommandInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Commands все команды бота
var Commands = []CommandInfo{
	{Name: CommandEntry, Description: "Crear una nueva operación de trading"},
	{Name: CommandUpdate, Description: "Actualizar el estado de una operación existente"},
	{Name: CommandTrades, Description: "Ver todas las operaciones de trading organizadas por estado"},
	{Name: CommandClear, Description: "Limpiar sesión atascada (si estás bloqueado en un proceso)"},
	{Name: CommandAbout, Description: "Información del bot y estadísticas del sistema"},
}

// DefaultInteractionMaxAge возраст сообщения, после которого действия с него отклоняются
const DefaultInteractionMaxAge = 10 * time.Minute

// Router маршрутизирует команды и действия к процессам
type Router struct {
	deps      *Deps
	entry     *EntryFlow
	update    *UpdateFlow
	dashboard *Dashboard
	maxAge    time.Duration
	started   time.Time
	logger    *logrus.Entry
}

// NewRouter создает новый роутер
func NewRouter(deps *Deps, maxAge time.Duration) *Router {
	if maxAge <= 0 {
		maxAge = DefaultInteractionMaxAge
	}
	return &Router{
		deps:      deps,
		entry:     NewEntryFlow(deps),
		update:    NewUpdateFlow(deps),
		dashboard: NewDashboard(deps),
		maxAge:    maxAge,
		started:   deps.now(),
		logger:    deps.Logger.WithField("component", "router"),
	}
}

// Formatter форматтер роутера
func (r *Router) Formatter() *Formatter {
	return r.deps.Formatter
}

// HandleCommand обрабатывает команду
func (r *Router) HandleCommand(ctx context.Context, name string, ix *Interaction) Outcome {
	name = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(name)), "/")

	return r.run(ctx, "/"+name, ix, func() Outcome {
		switch name {
		case CommandEntry:
			return r.entry.Start(ctx, ix)
		case CommandUpdate:
			return r.update.Start(ctx, ix)
		case CommandTrades:
			return r.dashboard.Show(ctx, ix, false)
		case CommandClear:
			return r.clearSessions(ctx, ix)
		case CommandAbout:
			return r.about(ctx, ix)
		default:
			return invalid("command", r.deps.Formatter.T("unknown_command"))
		}
	})
}

// HandleAction обрабатывает нажатие кнопки или отправку формы
func (r *Router) HandleAction(ctx context.Context, ix *Interaction) Outcome {
	return r.run(ctx, ix.Action, ix, func() Outcome {
		return r.dispatch(ctx, ix)
	})
}

func (r *Router) dispatch(ctx context.Context, ix *Interaction) Outcome {
	t := r.deps.Formatter
	a := ParseAction(ix.Action)

	if r.stale(ix) {
		return expired(t.Tf("interaction_expired", restartCommand(a.Flow)))
	}

	switch a.Flow {
	case FlowEntry:
		switch a.Step {
		case "asset":
			return r.entry.SelectAsset(ctx, ix, a.Arg)
		case "side":
			return r.entry.SelectSide(ctx, ix, a.Arg)
		case "form":
			return r.entry.Submit(ctx, ix)
		}
	case FlowUpdate:
		switch a.Step {
		case "op":
			return r.update.SelectOperation(ctx, ix, a.Arg)
		case "status":
			return r.update.SelectStatus(ctx, ix, a.Arg)
		case "note":
			if a.Arg == "form" {
				return r.update.SubmitNote(ctx, ix)
			}
			return r.update.OpenNoteForm(ctx, ix)
		}
	case FlowTrades:
		switch a.Step {
		case "filter":
			return r.dashboard.Filter(ctx, ix, a.Arg)
		case "refresh":
			return r.dashboard.Show(ctx, ix, true)
		case "clear":
			switch a.Arg {
			case "":
				return r.dashboard.ClearPrompt(ctx, ix)
			case "confirm":
				return r.dashboard.ConfirmClear(ctx, ix)
			case "cancel":
				return r.dashboard.CancelClear(ctx, ix)
			}
		}
	}

	return invalid("action", t.T("unknown_action"))
}

// stale true если сообщение с кнопкой старше maxAge
func (r *Router) stale(ix *Interaction) bool {
	if ix.IssuedAt.IsZero() {
		return false
	}
	return r.deps.now().Sub(ix.IssuedAt) > r.maxAge
}

func restartCommand(flow string) string {
	switch flow {
	case FlowEntry, FlowUpdate, FlowTrades:
		return flow
	default:
		return CommandTrades
	}
}

// clearSessions снимает зависшие блокировки пользователя
func (r *Router) clearSessions(ctx context.Context, ix *Interaction) Outcome {
	t := r.deps.Formatter

	cleared := r.deps.Locks.ClearUser(ix.Actor.ID)
	if len(cleared) == 0 {
		r.notify(ctx, ix, Notice{Tone: policy.ToneInfo, Text: t.T("session_none")})
		return ok()
	}

	parts := make([]string, 0, len(cleared))
	for _, c := range cleared {
		parts = append(parts, fmt.Sprintf("%s (%d min)", c.Domain, utils.Minutes(c.HeldFor)))
	}
	r.notify(ctx, ix, Notice{Tone: policy.ToneSuccess, Text: t.Tf("session_cleared", strings.Join(parts, ", "))})
	return ok()
}

// about показывает сведения о боте, команды и сводку по операциям
func (r *Router) about(ctx context.Context, ix *Interaction) Outcome {
	t := r.deps.Formatter

	ops, err := r.deps.Store.GetAllOperations(ctx)
	if err != nil {
		return fault(err, t.T("dashboard_failed"))
	}
	sum := Summarize(ops)

	commands := make([]string, 0, len(Commands))
	for _, c := range Commands {
		commands = append(commands, fmt.Sprintf("`/%s` - %s", c.Name, c.Description))
	}

	uptime := r.deps.now().Sub(r.started)
	prompt := Prompt{
		Title:       t.T("about_title"),
		Description: t.Tf("about_desc", strings.Join(r.deps.assets().Symbols(), ", ")),
		Tone:        policy.ToneInfo,
		Fields: []Field{
			{
				Name: t.T("field_general"),
				Value: t.Tf("general_value", sum.Total,
					sum.Count(BucketActive), sum.Count(BucketBreakEven), sum.Count(BucketTakeProfit),
					sum.Count(BucketClosed), sum.Count(BucketStopped)),
				Inline: true,
			},
			{Name: t.T("field_by_asset"), Value: r.dashboard.assetStats(sum), Inline: true},
			{Name: t.T("field_uptime"), Value: fmt.Sprintf("%dh %dm", int(uptime.Hours()), utils.Minutes(uptime)%60), Inline: true},
			{Name: t.T("field_commands"), Value: strings.Join(commands, "\n")},
		},
		Footer:    r.deps.Footer,
		Timestamp: r.deps.now(),
	}
	if err := ix.Surface.ShowChoices(ctx, prompt); err != nil {
		return fault(err, t.T("generic_error"))
	}
	return ok()
}

// run изолирует обработчик: паника превращается в Fault, процесс продолжает работу
func (r *Router) run(ctx context.Context, label string, ix *Interaction, fn func() Outcome) (out Outcome) {
	start := time.Now()

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.WithFields(logrus.Fields{
				"action":  label,
				"user_id": ix.Actor.ID,
				"panic":   fmt.Sprint(rec),
				"stack":   string(debug.Stack()),
			}).Error("Panic in interaction handler")
			out = fault(fmt.Errorf("panic: %v", rec), r.deps.Formatter.T("generic_error"))
		}
		r.finish(ctx, label, ix, out, time.Since(start))
	}()

	return fn()
}

// finish логирует результат и отправляет пользователю приватное уведомление для не-OK
func (r *Router) finish(ctx context.Context, label string, ix *Interaction, out Outcome, took time.Duration) {
	entry := r.logger.WithFields(logrus.Fields{
		"action":   label,
		"user_id":  ix.Actor.ID,
		"outcome":  out.Kind.String(),
		"duration": took.Round(time.Millisecond).String(),
	})
	if out.Field != "" {
		entry = entry.WithField("field", out.Field)
	}

	var tone policy.Tone
	switch out.Kind {
	case KindOK:
		entry.Debug("Interaction handled")
		return
	case KindBusy, KindExpired:
		entry.Info("Interaction rejected")
		tone = policy.ToneWarning
	case KindNotFound:
		entry.Info("Nothing found for interaction")
		tone = policy.ToneWarning
	case KindValidationFailed:
		entry.Info("Interaction input rejected")
		tone = policy.ToneError
	default:
		entry.WithError(out.Err).Error("Interaction failed")
		tone = policy.ToneError
	}

	text := out.Message
	if text == "" {
		text = r.deps.Formatter.T("generic_error")
	}
	r.notify(ctx, ix, Notice{Tone: tone, Text: text})
}

func (r *Router) notify(ctx context.Context, ix *Interaction, n Notice) {
	if ix.Surface == nil {
		return
	}
	if err := ix.Surface.Notify(ctx, n); err != nil {
		r.logger.WithField("user_id", ix.Actor.ID).WithError(err).Warn("Failed to deliver notice")
	}
}
