package telegram

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"

	"github.com/kirillm/signal-desk/internal/workflow"
)

// botAPI часть tgbotapi.BotAPI, которой пользуется бот
type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// pendingForm форма, на которую пользователь должен ответить сообщением
type pendingForm struct {
	form   workflow.Form
	chatID int64
}

// Bot транспорт Telegram: команды, inline-кнопки и ответы на формы
type Bot struct {
	api          botAPI
	router       *Router
	formatter    *Formatter
	auth         *AuthManager
	publicChatID int64
	logger       *logrus.Entry

	forms   map[int64]pendingForm
	formsMu sync.Mutex
	wg      sync.WaitGroup
}

// NewBot подключается к Telegram по токену
func NewBot(token string, router *Router, formatter *Formatter, auth *AuthManager, publicChatID int64, logger *logrus.Entry) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	logger.WithField("username", api.Self.UserName).Info("Telegram bot authorized")

	return New(api, router, formatter, auth, publicChatID, logger), nil
}

// New создает бота поверх готового клиента API
func New(api botAPI, router *Router, formatter *Formatter, auth *AuthManager, publicChatID int64, logger *logrus.Entry) *Bot {
	return &Bot{
		api:          api,
		router:       router,
		formatter:    formatter,
		auth:         auth,
		publicChatID: publicChatID,
		logger:       logger.WithField("component", "telegram"),
		forms:        make(map[int64]pendingForm),
	}
}

// Run обрабатывает обновления до отмены контекста
func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	cleanup := time.NewTicker(5 * time.Minute)
	defer cleanup.Stop()

	b.logger.Info("Telegram bot started")

	for {
		select {
		case <-ctx.Done():
			b.logger.Info("Stopping Telegram bot...")
			b.api.StopReceivingUpdates()
			b.wg.Wait()
			return nil
		case <-cleanup.C:
			if n := b.auth.CleanupRateLimiters(5 * time.Minute); n > 0 {
				b.logger.WithField("removed", n).Debug("Cleaned up rate limiters")
			}
		case update, ok := <-updates:
			if !ok {
				b.wg.Wait()
				return nil
			}
			b.wg.Add(1)
			go func() {
				defer b.wg.Done()
				b.HandleUpdate(ctx, update)
			}()
		}
	}
}

// HandleUpdate обрабатывает одно обновление
func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.Message != nil:
		b.handleMessage(ctx, update.Message)
	case update.CallbackQuery != nil:
		b.handleCallbackQuery(ctx, update.CallbackQuery)
	}
}

// handleMessage обрабатывает входящее сообщение
func (b *Bot) handleMessage(ctx context.Context, message *tgbotapi.Message) {
	if message.From == nil || message.Chat == nil {
		return
	}
	chatID := message.Chat.ID
	userID := message.From.ID

	b.logger.WithFields(logrus.Fields{
		"user_id": userID,
		"chat_id": chatID,
	}).Debug("Received message")

	ix := &workflow.Interaction{
		Actor:    actorFrom(message.From),
		IssuedAt: messageTime(message),
		Surface:  &chatSurface{b: b, chatID: chatID, userID: userID},
	}

	if message.IsCommand() {
		// Новая команда отменяет ожидание ответа на форму
		b.takeForm(userID)
		if reply := b.router.HandleCommand(ctx, userID, message.Text, ix); reply != "" {
			b.sendText(chatID, reply, nil)
		}
		return
	}

	pending, ok := b.takeForm(userID)
	if !ok || pending.chatID != chatID {
		if ok {
			b.setForm(userID, pending)
		}
		return
	}

	// Ответ на форму приходит новым сообщением, не ограничиваем его возраст
	ix.IssuedAt = time.Time{}
	reply, keep := b.router.HandleFormReply(ctx, userID, pending.form, message.Text, ix)
	if keep {
		b.setForm(userID, pending)
	}
	if reply != "" {
		b.sendText(chatID, reply, nil)
	}
}

// handleCallbackQuery обрабатывает callback от inline кнопок
func (b *Bot) handleCallbackQuery(ctx context.Context, query *tgbotapi.CallbackQuery) {
	answer := ""
	defer func() {
		if _, err := b.api.Request(tgbotapi.NewCallback(query.ID, answer)); err != nil {
			b.logger.WithError(err).Debug("Failed to answer callback")
		}
	}()

	if query.From == nil || query.Message == nil || query.Message.Chat == nil {
		return
	}

	userID := query.From.ID
	ix := &workflow.Interaction{
		Actor:    actorFrom(query.From),
		Action:   query.Data,
		IssuedAt: messageTime(query.Message),
		Surface: &chatSurface{
			b:         b,
			chatID:    query.Message.Chat.ID,
			messageID: query.Message.MessageID,
			userID:    userID,
		},
	}

	answer = b.router.HandleCallback(ctx, userID, ix)
}

// messageTime время последнего изменения сообщения. Кнопки на отредактированном шаге живут от правки.
func messageTime(m *tgbotapi.Message) time.Time {
	if m.EditDate != 0 {
		return time.Unix(int64(m.EditDate), 0)
	}
	return m.Time()
}

func actorFrom(u *tgbotapi.User) workflow.Actor {
	name := u.UserName
	mention := "@" + u.UserName
	if name == "" {
		name = u.FirstName
		mention = u.FirstName
	}
	return workflow.Actor{
		ID:      strconv.FormatInt(u.ID, 10),
		Name:    name,
		Mention: mention,
	}
}

func (b *Bot) setForm(userID int64, f pendingForm) {
	b.formsMu.Lock()
	defer b.formsMu.Unlock()
	b.forms[userID] = f
}

func (b *Bot) takeForm(userID int64) (pendingForm, bool) {
	b.formsMu.Lock()
	defer b.formsMu.Unlock()
	f, ok := b.forms[userID]
	delete(b.forms, userID)
	return f, ok
}

// sendText отправляет сообщение, клавиатура прикрепляется к последней части
func (b *Bot) sendText(chatID int64, text string, kb *tgbotapi.InlineKeyboardMarkup) error {
	if text == "" {
		return nil
	}

	parts := splitMessage(text, maxMessageLength)
	for i, part := range parts {
		msg := tgbotapi.NewMessage(chatID, part)
		msg.ParseMode = ParseMode
		if kb != nil && i == len(parts)-1 {
			msg.ReplyMarkup = *kb
		}
		if _, err := b.api.Send(msg); err != nil {
			b.logger.WithField("chat_id", chatID).WithError(err).Error("Failed to send telegram message")
			return err
		}
	}
	return nil
}
