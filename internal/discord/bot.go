package discord

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/sirupsen/logrus"

	"github.com/kirillm/signal-desk/internal/config"
	"github.com/kirillm/signal-desk/internal/policy"
	"github.com/kirillm/signal-desk/internal/workflow"
)

// discordAPI часть discordgo.Session, которой пользуется бот
type discordAPI interface {
	InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
	InteractionResponseEdit(interaction *discordgo.Interaction, newresp *discordgo.WebhookEdit, options ...discordgo.RequestOption) (*discordgo.Message, error)
	FollowupMessageCreate(interaction *discordgo.Interaction, wait bool, data *discordgo.WebhookParams, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Bot транспорт Discord: slash-команды, кнопки и модальные формы
type Bot struct {
	session   *discordgo.Session
	api       discordAPI
	flows     *workflow.Router
	cfg       config.DiscordConfig
	channelID string
	admins    map[string]struct{}
	logger    *logrus.Entry

	ctx context.Context
	wg  sync.WaitGroup
}

// NewBot создает сессию Discord по токену
func NewBot(cfg config.DiscordConfig, flows *workflow.Router, logger *logrus.Entry) (*Bot, error) {
	s, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	s.Identify.Intents = discordgo.IntentsGuilds

	b := New(s, cfg, flows, logger)
	b.session = s

	s.AddHandler(func(_ *discordgo.Session, r *discordgo.Ready) {
		b.logger.WithFields(logrus.Fields{
			"username": r.User.Username,
			"guilds":   len(r.Guilds),
		}).Info("Discord bot ready")
	})
	s.AddHandler(func(_ *discordgo.Session, i *discordgo.InteractionCreate) {
		b.wg.Add(1)
		defer b.wg.Done()
		b.HandleInteraction(b.ctx, i.Interaction)
	})

	return b, nil
}

// New создает бота поверх готового клиента API
func New(api discordAPI, cfg config.DiscordConfig, flows *workflow.Router, logger *logrus.Entry) *Bot {
	admins := make(map[string]struct{}, len(cfg.AdminIDs))
	for _, id := range cfg.AdminIDs {
		admins[id] = struct{}{}
	}
	return &Bot{
		api:       api,
		flows:     flows,
		cfg:       cfg,
		channelID: cfg.TradingChannelID,
		admins:    admins,
		logger:    logger.WithField("component", "discord"),
		ctx:       context.Background(),
	}
}

// Run открывает gateway-соединение и держит его до отмены контекста
func (b *Bot) Run(ctx context.Context) error {
	if b.session == nil {
		return fmt.Errorf("discord session is not configured")
	}
	b.ctx = ctx

	if err := b.session.Open(); err != nil {
		return fmt.Errorf("failed to open discord session: %w", err)
	}

	if b.cfg.RegisterCommands {
		if err := b.RegisterCommands(); err != nil {
			b.logger.WithError(err).Error("Failed to register slash commands")
		}
	}

	b.logger.Info("Discord bot started")
	<-ctx.Done()

	b.logger.Info("Stopping Discord bot...")
	err := b.session.Close()
	b.wg.Wait()
	return err
}

// RegisterCommands перезаписывает slash-команды приложения.
// С GUILD_ID команды регистрируются только на сервере и появляются сразу.
func (b *Bot) RegisterCommands() error {
	if b.session == nil {
		return fmt.Errorf("discord session is not configured")
	}
	created, err := b.session.ApplicationCommandBulkOverwrite(b.cfg.ClientID, b.cfg.GuildID, ApplicationCommands())
	if err != nil {
		return fmt.Errorf("failed to overwrite commands: %w", err)
	}
	b.logger.WithFields(logrus.Fields{
		"count":    len(created),
		"guild_id": b.cfg.GuildID,
	}).Info("Slash commands registered")
	return nil
}

// ApplicationCommands описания slash-команд, видимых только администраторам
func ApplicationCommands() []*discordgo.ApplicationCommand {
	perms := int64(discordgo.PermissionAdministrator)
	dm := false

	cmds := make([]*discordgo.ApplicationCommand, 0, len(workflow.Commands))
	for _, c := range workflow.Commands {
		cmds = append(cmds, &discordgo.ApplicationCommand{
			Name:                     c.Name,
			Description:              c.Description,
			DefaultMemberPermissions: &perms,
			DMPermission:             &dm,
		})
	}
	return cmds
}

// HandleInteraction обрабатывает одно взаимодействие
func (b *Bot) HandleInteraction(ctx context.Context, i *discordgo.Interaction) {
	user := interactionUser(i)
	if user == nil {
		return
	}

	surface := newSurface(b, i)
	ix := &workflow.Interaction{
		Actor:   actorFrom(user),
		Surface: surface,
	}

	log := b.logger.WithFields(logrus.Fields{
		"user_id": user.ID,
		"type":    i.Type.String(),
	})

	if i.Type != discordgo.InteractionApplicationCommand &&
		i.Type != discordgo.InteractionMessageComponent &&
		i.Type != discordgo.InteractionModalSubmit {
		return
	}

	if !b.isAdmin(i, user) {
		log.Warn("Non-admin tried a workflow")
		notice := workflow.Notice{Tone: policy.ToneError, Text: b.flows.Formatter().T("admin_required")}
		if err := surface.Notify(ctx, notice); err != nil {
			log.WithError(err).Warn("Failed to deliver notice")
		}
		return
	}

	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		b.flows.HandleCommand(ctx, i.ApplicationCommandData().Name, ix)
	case discordgo.InteractionMessageComponent:
		ix.Action = i.MessageComponentData().CustomID
		ix.IssuedAt = messageTime(i.Message)
		b.flows.HandleAction(ctx, ix)
	case discordgo.InteractionModalSubmit:
		data := i.ModalSubmitData()
		ix.Action = data.CustomID
		ix.Values = ModalValues(data)
		b.flows.HandleAction(ctx, ix)
	}
}

// isAdmin администратор по ID из конфигурации или по правам на сервере
func (b *Bot) isAdmin(i *discordgo.Interaction, user *discordgo.User) bool {
	if _, ok := b.admins[user.ID]; ok {
		return true
	}
	if i.Member == nil {
		return false
	}
	return i.Member.Permissions&discordgo.PermissionAdministrator != 0
}

// interactionUser автор взаимодействия: на сервере он в Member, в личке в User
func interactionUser(i *discordgo.Interaction) *discordgo.User {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User
	}
	return i.User
}

func actorFrom(u *discordgo.User) workflow.Actor {
	name := u.GlobalName
	if name == "" {
		name = u.Username
	}
	return workflow.Actor{
		ID:      u.ID,
		Name:    name,
		Mention: u.Mention(),
	}
}

// messageTime время последнего изменения сообщения с кнопками
func messageTime(m *discordgo.Message) time.Time {
	if m == nil {
		return time.Time{}
	}
	if m.EditedTimestamp != nil && m.EditedTimestamp.After(m.Timestamp) {
		return *m.EditedTimestamp
	}
	return m.Timestamp
}
