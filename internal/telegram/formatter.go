package telegram

import (
	"fmt"
	"html"
	"regexp"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/kirillm/signal-desk/internal/policy"
	"github.com/kirillm/signal-desk/internal/workflow"
)

// ParseMode все сообщения бота отправляются в HTML-разметке
const ParseMode = tgbotapi.ModeHTML

// maxMessageLength ограничение Telegram на длину сообщения
const maxMessageLength = 4096

var translations = map[string]map[policy.Lang]string{
	"access_denied": {policy.LangES: "⛔ No tienes acceso a este bot.", policy.LangEN: "⛔ You do not have access to this bot."},
	"rate_limited":  {policy.LangES: "⏳ Demasiadas solicitudes. Espera un momento.", policy.LangEN: "⏳ Too many requests. Please wait a moment."},
	"help_title":    {policy.LangES: "🤖 Comandos disponibles", policy.LangEN: "🤖 Available commands"},
	"form_hint":     {policy.LangES: "Responde a este mensaje con un campo por línea:", policy.LangEN: "Reply to this message with one field per line:"},
	"form_hint_one": {policy.LangES: "Responde a este mensaje con el texto.", policy.LangEN: "Reply to this message with the text."},
	"required":      {policy.LangES: "obligatorio", policy.LangEN: "required"},
	"optional":      {policy.LangES: "opcional", policy.LangEN: "optional"},
	"form_invalid":  {policy.LangES: "❌ No pude leer la respuesta: %s", policy.LangEN: "❌ Could not read the reply: %s"},
}

// Formatter форматирует ответы для пользователя
type Formatter struct {
	flows *workflow.Formatter
}

// NewFormatter создает новый форматтер поверх текстов процессов
func NewFormatter(flows *workflow.Formatter) *Formatter {
	return &Formatter{flows: flows}
}

// T переводит строку
func (f *Formatter) T(key string) string {
	if trans, ok := translations[key]; ok {
		if val, ok := trans[f.flows.Lang()]; ok {
			return val
		}
	}
	return f.flows.T(key)
}

var (
	boldRe   = regexp.MustCompile(`\*\*(.+?)\*\*`)
	codeRe   = regexp.MustCompile("`([^`]+)`")
	italicRe = regexp.MustCompile(`\*([^*\n]+)\*`)
)

// markup переводит markdown-разметку процессов в HTML Telegram
func markup(s string) string {
	s = html.EscapeString(s)
	s = codeRe.ReplaceAllString(s, "<code>$1</code>")
	s = boldRe.ReplaceAllString(s, "<b>$1</b>")
	s = italicRe.ReplaceAllString(s, "<i>$1</i>")
	return s
}

// RenderPrompt собирает карточку в один текст
func (f *Formatter) RenderPrompt(p workflow.Prompt) string {
	var sb strings.Builder

	if p.Title != "" {
		sb.WriteString("<b>" + html.EscapeString(p.Title) + "</b>\n")
	}
	if p.Description != "" {
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(markup(p.Description) + "\n")
	}
	for _, field := range p.Fields {
		sb.WriteString("\n<b>" + html.EscapeString(field.Name) + "</b>\n")
		sb.WriteString(markup(field.Value) + "\n")
	}
	if p.Footer != "" {
		sb.WriteString("\n<i>" + html.EscapeString(p.Footer) + "</i>")
	}

	return strings.TrimSpace(sb.String())
}

// RenderNotice текст приватного уведомления
func (f *Formatter) RenderNotice(n workflow.Notice) string {
	return markup(n.Text)
}

// RenderForm инструкция для ответа на форму
func (f *Formatter) RenderForm(form workflow.Form) string {
	var sb strings.Builder
	sb.WriteString("<b>" + html.EscapeString(form.Title) + "</b>\n\n")

	if len(form.Inputs) == 1 {
		in := form.Inputs[0]
		sb.WriteString(f.T("form_hint_one") + "\n\n")
		sb.WriteString(html.EscapeString(in.Label))
		if in.Placeholder != "" {
			sb.WriteString("\n<i>" + html.EscapeString(in.Placeholder) + "</i>")
		}
		return sb.String()
	}

	sb.WriteString(f.T("form_hint") + "\n")
	for _, in := range form.Inputs {
		need := f.T("optional")
		if in.Required {
			need = f.T("required")
		}
		sb.WriteString(fmt.Sprintf("\n<code>%s:</code> %s (%s)", in.ID, html.EscapeString(in.Label), need))
		if in.Placeholder != "" {
			sb.WriteString("\n   <i>" + html.EscapeString(in.Placeholder) + "</i>")
		}
	}
	return sb.String()
}

// RenderHelp список команд
func (f *Formatter) RenderHelp() string {
	var sb strings.Builder
	sb.WriteString("<b>" + f.T("help_title") + "</b>\n")
	for _, c := range workflow.Commands {
		sb.WriteString(fmt.Sprintf("\n/%s - %s", c.Name, html.EscapeString(c.Description)))
	}
	return sb.String()
}

// Keyboard inline-клавиатура из рядов кнопок, nil если кнопок нет
func Keyboard(rows [][]workflow.Choice) *tgbotapi.InlineKeyboardMarkup {
	var kbRows [][]tgbotapi.InlineKeyboardButton
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, c := range row {
			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(c.Label, c.Action))
		}
		kbRows = append(kbRows, tgbotapi.NewInlineKeyboardRow(buttons...))
	}
	if len(kbRows) == 0 {
		return nil
	}
	kb := tgbotapi.NewInlineKeyboardMarkup(kbRows...)
	return &kb
}

// splitMessage разбивает длинное сообщение на части
func splitMessage(text string, maxLength int) []string {
	if len(text) <= maxLength {
		return []string{text}
	}

	var messages []string
	lines := strings.Split(text, "\n")
	currentMessage := ""

	for _, line := range lines {
		if len(currentMessage)+len(line)+1 > maxLength {
			if currentMessage != "" {
				messages = append(messages, currentMessage)
			}
			currentMessage = line
		} else {
			if currentMessage != "" {
				currentMessage += "\n"
			}
			currentMessage += line
		}
	}

	if currentMessage != "" {
		messages = append(messages, currentMessage)
	}

	return messages
}
