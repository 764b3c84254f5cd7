package telegram

import (
	"context"
	"fmt"
	"html"

	"github.com/sirupsen/logrus"

	"github.com/kirillm/signal-desk/internal/workflow"
)

// Router проверяет доступ и передает команды процессам
type Router struct {
	flows     *workflow.Router
	auth      *AuthManager
	formatter *Formatter
	logger    *logrus.Entry
}

// NewRouter создает новый роутер
func NewRouter(flows *workflow.Router, auth *AuthManager, formatter *Formatter, logger *logrus.Entry) *Router {
	return &Router{
		flows:     flows,
		auth:      auth,
		formatter: formatter,
		logger:    logger.WithField("component", "telegram_router"),
	}
}

// gate общая проверка rate limit, whitelist и прав администратора.
// Возвращает текст отказа или "".
func (r *Router) gate(userID int64) string {
	if err := r.auth.CheckRateLimit(userID); err != nil {
		r.logger.WithField("user_id", userID).Debug("Rate limited")
		return r.formatter.T("rate_limited")
	}
	if !r.auth.IsAllowed(userID) {
		r.logger.WithField("user_id", userID).Warn("Unauthorized access attempt")
		return r.formatter.T("access_denied")
	}
	if err := r.auth.RequireAdmin(userID); err != nil {
		r.logger.WithField("user_id", userID).Warn("Non-admin tried a workflow")
		return r.formatter.T("admin_required")
	}
	return ""
}

// HandleCommand обрабатывает команду. Ответ для пользователя возвращается,
// только если процесс не отвечал сам.
func (r *Router) HandleCommand(ctx context.Context, userID int64, text string, ix *workflow.Interaction) string {
	args, err := ParseCommand(text)
	if err != nil {
		return r.formatter.T("unknown_command")
	}

	if args.Command == CmdStart || args.Command == CmdHelp {
		if !r.auth.IsAllowed(userID) {
			return r.formatter.T("access_denied")
		}
		return r.formatter.RenderHelp()
	}

	if denied := r.gate(userID); denied != "" {
		return denied
	}

	r.flows.HandleCommand(ctx, args.Command, ix)
	return ""
}

// HandleCallback обрабатывает нажатие inline-кнопки.
// Возвращает текст для всплывающего ответа на callback.
func (r *Router) HandleCallback(ctx context.Context, userID int64, ix *workflow.Interaction) string {
	if denied := r.gate(userID); denied != "" {
		return denied
	}

	r.flows.HandleAction(ctx, ix)
	return ""
}

// HandleFormReply разбирает ответ на форму и отправляет его процессу.
// keep=true означает, что форма остается открытой для повторного ответа.
func (r *Router) HandleFormReply(ctx context.Context, userID int64, form workflow.Form, text string, ix *workflow.Interaction) (reply string, keep bool) {
	if denied := r.gate(userID); denied != "" {
		return denied, false
	}

	values, err := ParseFormReply(text, form)
	if err != nil {
		return fmt.Sprintf(r.formatter.T("form_invalid"), html.EscapeString(err.Error())), true
	}

	ix.Action = form.Action
	ix.Values = values

	out := r.flows.HandleAction(ctx, ix)
	return "", out.Kind == workflow.KindValidationFailed || out.Kind == workflow.KindFault
}
