package telegram

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/kirillm/signal-desk/internal/validation"
	"github.com/kirillm/signal-desk/internal/workflow"
)

// chatSurface отображает шаги процесса в чате Telegram.
// messageID != 0 для нажатий кнопок: тогда EditPrompt редактирует это сообщение.
type chatSurface struct {
	b         *Bot
	chatID    int64
	messageID int
	userID    int64
}

func (s *chatSurface) ShowChoices(_ context.Context, p workflow.Prompt) error {
	return s.b.sendText(s.chatID, s.b.formatter.RenderPrompt(p), Keyboard(p.Choices))
}

func (s *chatSurface) EditPrompt(ctx context.Context, p workflow.Prompt) error {
	if s.messageID == 0 {
		return s.ShowChoices(ctx, p)
	}

	text := validation.TruncateText(s.b.formatter.RenderPrompt(p), maxMessageLength)

	var edit tgbotapi.EditMessageTextConfig
	if kb := Keyboard(p.Choices); kb != nil {
		edit = tgbotapi.NewEditMessageTextAndMarkup(s.chatID, s.messageID, text, *kb)
	} else {
		edit = tgbotapi.NewEditMessageText(s.chatID, s.messageID, text)
	}
	edit.ParseMode = ParseMode

	_, err := s.b.api.Send(edit)
	return err
}

// ShowForm запоминает форму и просит ответить на сообщение
func (s *chatSurface) ShowForm(_ context.Context, f workflow.Form) error {
	s.b.setForm(s.userID, pendingForm{form: f, chatID: s.chatID})

	msg := tgbotapi.NewMessage(s.chatID, s.b.formatter.RenderForm(f))
	msg.ParseMode = ParseMode
	msg.ReplyMarkup = tgbotapi.ForceReply{ForceReply: true, Selective: true}
	if _, err := s.b.api.Send(msg); err != nil {
		s.b.takeForm(s.userID)
		return err
	}
	return nil
}

func (s *chatSurface) Notify(_ context.Context, n workflow.Notice) error {
	return s.b.sendText(s.chatID, s.b.formatter.RenderNotice(n), nil)
}

// Announce публикует в публичный чат, без него в текущий
func (s *chatSurface) Announce(_ context.Context, p workflow.Prompt) error {
	target := s.b.publicChatID
	if target == 0 {
		target = s.chatID
	}
	return s.b.sendText(target, s.b.formatter.RenderPrompt(p), nil)
}
