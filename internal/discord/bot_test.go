package discord

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirillm/signal-desk/internal/config"
	"github.com/kirillm/signal-desk/internal/domain"
	"github.com/kirillm/signal-desk/internal/policy"
	"github.com/kirillm/signal-desk/internal/session"
	"github.com/kirillm/signal-desk/internal/storage"
	"github.com/kirillm/signal-desk/internal/validation"
	"github.com/kirillm/signal-desk/internal/workflow"
	"github.com/kirillm/signal-desk/pkg/utils"
)

const (
	adminID        = "100"
	strangerID     = "200"
	tradingChannel = "trading"
)

type followup struct {
	interaction *discordgo.Interaction
	params      *discordgo.WebhookParams
}

type channelEmbed struct {
	channelID string
	embed     *discordgo.MessageEmbed
}

// fakeAPI запоминает все ответы бота
type fakeAPI struct {
	mu        sync.Mutex
	responses []*discordgo.InteractionResponse
	edits     []*discordgo.WebhookEdit
	followups []followup
	embeds    []channelEmbed
}

func (f *fakeAPI) InteractionRespond(_ *discordgo.Interaction, resp *discordgo.InteractionResponse, _ ...discordgo.RequestOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses = append(f.responses, resp)
	return nil
}

func (f *fakeAPI) InteractionResponseEdit(_ *discordgo.Interaction, edit *discordgo.WebhookEdit, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits = append(f.edits, edit)
	return &discordgo.Message{}, nil
}

func (f *fakeAPI) FollowupMessageCreate(i *discordgo.Interaction, _ bool, params *discordgo.WebhookParams, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.followups = append(f.followups, followup{interaction: i, params: params})
	return &discordgo.Message{}, nil
}

func (f *fakeAPI) ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.embeds = append(f.embeds, channelEmbed{channelID: channelID, embed: embed})
	return &discordgo.Message{}, nil
}

func (f *fakeAPI) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses = nil
	f.edits = nil
	f.followups = nil
	f.embeds = nil
}

type testBot struct {
	bot   *Bot
	api   *fakeAPI
	store *storage.Storage
	locks *session.Manager
}

func newTestBot(t *testing.T) *testBot {
	t.Helper()

	st, err := storage.Open(config.DatabaseConfig{
		Driver: config.DriverSQLite,
		Path:   filepath.Join(t.TempDir(), "discord.db"),
	}, utils.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	locks := session.NewManager(session.NewMemoryStore(), time.Minute, utils.Discard())
	catalog := domain.NewAssetCatalog([]string{"US30", "MNQ", "MGC"}, domain.DefaultAssets())

	flows := workflow.NewRouter(&workflow.Deps{
		Store:           st,
		Locks:           locks,
		Validator:       validation.NewValidator(catalog),
		Formatter:       workflow.NewFormatter(policy.LangES),
		Footer:          "BDX Traders",
		PurgeConfirmTTL: time.Minute,
		Logger:          utils.Discard(),
	}, 10*time.Minute)

	api := &fakeAPI{}
	bot := New(api, config.DiscordConfig{
		TradingChannelID: tradingChannel,
		AdminIDs:         []string{adminID},
	}, flows, utils.Discard())

	return &testBot{bot: bot, api: api, store: st, locks: locks}
}

func member(userID string, perms int64) *discordgo.Member {
	return &discordgo.Member{
		User:        &discordgo.User{ID: userID, Username: "trader"},
		Permissions: perms,
	}
}

func slash(userID, name string) *discordgo.Interaction {
	return &discordgo.Interaction{
		ID:        "ix-" + name,
		Type:      discordgo.InteractionApplicationCommand,
		ChannelID: "private",
		Member:    member(userID, 0),
		Data:      discordgo.ApplicationCommandInteractionData{Name: name},
	}
}

func press(userID, action string, sent time.Time) *discordgo.Interaction {
	return &discordgo.Interaction{
		ID:        "ix-" + action,
		Type:      discordgo.InteractionMessageComponent,
		ChannelID: "private",
		Member:    member(userID, 0),
		Message:   &discordgo.Message{ID: "msg-1", Timestamp: sent},
		Data:      discordgo.MessageComponentInteractionData{CustomID: action},
	}
}

func submit(userID, action string, values map[string]string) *discordgo.Interaction {
	var rows []discordgo.MessageComponent
	for id, v := range values {
		rows = append(rows, &discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			&discordgo.TextInput{CustomID: id, Value: v},
		}})
	}
	return &discordgo.Interaction{
		ID:        "ix-" + action,
		Type:      discordgo.InteractionModalSubmit,
		ChannelID: "private",
		Member:    member(userID, 0),
		Message:   &discordgo.Message{ID: "msg-1", Timestamp: time.Now()},
		Data:      discordgo.ModalSubmitInteractionData{CustomID: action, Components: rows},
	}
}

func hasButton(components []discordgo.MessageComponent, action string) bool {
	for _, c := range components {
		row, ok := c.(discordgo.ActionsRow)
		if !ok {
			continue
		}
		for _, inner := range row.Components {
			if b, ok := inner.(discordgo.Button); ok && b.CustomID == action {
				return true
			}
		}
	}
	return false
}

func embedText(e *discordgo.MessageEmbed) string {
	parts := []string{e.Title, e.Description}
	for _, f := range e.Fields {
		parts = append(parts, f.Name, f.Value)
	}
	if e.Footer != nil {
		parts = append(parts, e.Footer.Text)
	}
	return strings.Join(parts, "\n")
}

func TestBot_EntryFlow(t *testing.T) {
	tb := newTestBot(t)
	ctx := context.Background()

	tb.bot.HandleInteraction(ctx, slash(adminID, "entry"))
	require.Len(t, tb.api.responses, 1)
	first := tb.api.responses[0]
	assert.Equal(t, discordgo.InteractionResponseChannelMessageWithSource, first.Type)
	assert.Equal(t, discordgo.MessageFlagsEphemeral, first.Data.Flags)
	assert.True(t, hasButton(first.Data.Components, "entry:asset:US30"))

	tb.api.reset()
	tb.bot.HandleInteraction(ctx, press(adminID, "entry:asset:US30", time.Now()))
	require.Len(t, tb.api.responses, 1)
	assert.Equal(t, discordgo.InteractionResponseUpdateMessage, tb.api.responses[0].Type)
	assert.True(t, hasButton(tb.api.responses[0].Data.Components, "entry:side:BUY"))

	tb.api.reset()
	tb.bot.HandleInteraction(ctx, press(adminID, "entry:side:BUY", time.Now()))
	require.Len(t, tb.api.responses, 1)
	modal := tb.api.responses[0]
	assert.Equal(t, discordgo.InteractionResponseModal, modal.Type)
	assert.Equal(t, workflow.ActionEntryForm, modal.Data.CustomID)

	// Неверная цена: черновик сохраняется
	tb.api.reset()
	tb.bot.HandleInteraction(ctx, submit(adminID, workflow.ActionEntryForm, map[string]string{workflow.InputEntryPrice: "abc"}))
	require.Len(t, tb.api.responses, 1)
	assert.Contains(t, tb.api.responses[0].Data.Content, "precio de entrada no es válido")
	n, err := tb.store.CountOperations(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	tb.api.reset()
	tb.bot.HandleInteraction(ctx, submit(adminID, workflow.ActionEntryForm, map[string]string{
		workflow.InputEntryPrice: "35000",
		workflow.InputStopLoss:   "34900",
	}))

	ops, err := tb.store.GetAllOperations(ctx)
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, "US30", ops[0].Asset)
	assert.Equal(t, domain.SideBuy, ops[0].OrderType)
	assert.Equal(t, domain.StatusOpen, ops[0].Status)
	assert.Equal(t, adminID, ops[0].CreatedBy)

	require.Len(t, tb.api.embeds, 1)
	announced := tb.api.embeds[0]
	assert.Equal(t, tradingChannel, announced.channelID)
	text := embedText(announced.embed)
	for _, want := range []string{"US30", "35000.00", "34900.00", "<@100>"} {
		assert.Contains(t, text, want)
	}

	// Подтверждение автору приватное
	require.NotEmpty(t, tb.api.responses)
	assert.Equal(t, discordgo.MessageFlagsEphemeral, tb.api.responses[0].Data.Flags)
	assert.False(t, tb.locks.Held(session.DomainEntry, adminID))
}

func TestBot_NonAdminRejected(t *testing.T) {
	tb := newTestBot(t)
	ctx := context.Background()

	tb.bot.HandleInteraction(ctx, slash(strangerID, "entry"))

	require.Len(t, tb.api.responses, 1)
	resp := tb.api.responses[0]
	assert.Equal(t, discordgo.MessageFlagsEphemeral, resp.Data.Flags)
	assert.Contains(t, resp.Data.Content, "Solo los administradores")
	assert.False(t, tb.locks.Held(session.DomainEntry, strangerID))
}

func TestBot_GuildAdministratorAllowed(t *testing.T) {
	tb := newTestBot(t)

	ix := slash(strangerID, "trades")
	ix.Member.Permissions = discordgo.PermissionAdministrator
	tb.bot.HandleInteraction(context.Background(), ix)

	// Пустая база: процесс отвечает сам, значит проверка прав пройдена
	require.Len(t, tb.api.responses, 1)
	assert.Contains(t, tb.api.responses[0].Data.Content, "No hay operaciones registradas")
}

func TestBot_StaleButton(t *testing.T) {
	tb := newTestBot(t)

	tb.bot.HandleInteraction(context.Background(), press(adminID, "entry:asset:US30", time.Now().Add(-20*time.Minute)))

	require.Len(t, tb.api.responses, 1)
	assert.Equal(t, discordgo.InteractionResponseChannelMessageWithSource, tb.api.responses[0].Type)
	assert.Contains(t, tb.api.responses[0].Data.Content, "/entry")
}

func TestBot_DashboardPurge(t *testing.T) {
	tb := newTestBot(t)
	ctx := context.Background()

	_, err := tb.store.CreateOperation(ctx, &domain.Operation{
		OperationID: "TRADE_TEST_1",
		Asset:       "MNQ",
		OrderType:   domain.SideSell,
		Status:      domain.StatusOpen,
		CreatedBy:   adminID,
	})
	require.NoError(t, err)

	tb.bot.HandleInteraction(ctx, slash(adminID, "trades"))
	require.Len(t, tb.api.responses, 1)
	assert.True(t, hasButton(tb.api.responses[0].Data.Components, workflow.ActionTradesClear))

	tb.api.reset()
	tb.bot.HandleInteraction(ctx, press(adminID, workflow.ActionTradesClear, time.Now()))
	require.Len(t, tb.api.responses, 1)
	assert.True(t, hasButton(tb.api.responses[0].Data.Components, workflow.ActionClearConfirm))

	tb.api.reset()
	tb.bot.HandleInteraction(ctx, press(adminID, workflow.ActionClearConfirm, time.Now()))
	n, err := tb.store.CountOperations(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSurface_FormAfterReply(t *testing.T) {
	tb := newTestBot(t)
	ctx := context.Background()

	s := newSurface(tb.bot, slash(adminID, "update"))
	require.NoError(t, s.Notify(ctx, workflow.Notice{Text: "hola"}))
	require.NoError(t, s.Notify(ctx, workflow.Notice{Text: "otra vez"}))

	assert.Len(t, tb.api.responses, 1)
	require.Len(t, tb.api.followups, 1)
	assert.Equal(t, "otra vez", tb.api.followups[0].params.Content)
	assert.Equal(t, discordgo.MessageFlagsEphemeral, tb.api.followups[0].params.Flags)

	assert.ErrorIs(t, s.ShowForm(ctx, workflow.Form{Action: workflow.ActionUpdateNoteForm}), ErrAlreadyResponded)
}

func TestSurface_EditAfterReply(t *testing.T) {
	tb := newTestBot(t)
	ctx := context.Background()

	s := newSurface(tb.bot, press(adminID, workflow.ActionTradesRefresh, time.Now()))
	require.NoError(t, s.EditPrompt(ctx, workflow.Prompt{Title: "uno"}))
	require.NoError(t, s.EditPrompt(ctx, workflow.Prompt{Title: "dos"}))

	require.Len(t, tb.api.responses, 1)
	assert.Equal(t, discordgo.InteractionResponseUpdateMessage, tb.api.responses[0].Type)
	assert.NotNil(t, tb.api.responses[0].Data.Components, "cleared buttons must be sent as an empty list")
	require.Len(t, tb.api.edits, 1)
	assert.Equal(t, "dos", (*tb.api.edits[0].Embeds)[0].Title)
}

func TestSurface_AnnounceFallsBackToInteractionChannel(t *testing.T) {
	api := &fakeAPI{}
	bot := New(api, config.DiscordConfig{}, nil, utils.Discard())

	s := newSurface(bot, slash(adminID, "entry"))
	require.NoError(t, s.Announce(context.Background(), workflow.Prompt{Title: "x"}))
	require.Len(t, api.embeds, 1)
	assert.Equal(t, "private", api.embeds[0].channelID)
}

func TestApplicationCommands(t *testing.T) {
	cmds := ApplicationCommands()
	require.Len(t, cmds, len(workflow.Commands))
	for _, c := range cmds {
		require.NotNil(t, c.DefaultMemberPermissions)
		assert.Equal(t, int64(discordgo.PermissionAdministrator), *c.DefaultMemberPermissions)
	}
}

func TestMessageTime(t *testing.T) {
	sent := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	edited := sent.Add(5 * time.Minute)

	assert.True(t, messageTime(nil).IsZero())
	assert.Equal(t, sent, messageTime(&discordgo.Message{Timestamp: sent}))
	assert.Equal(t, edited, messageTime(&discordgo.Message{Timestamp: sent, EditedTimestamp: &edited}))
}

func TestActorFrom(t *testing.T) {
	a := actorFrom(&discordgo.User{ID: "42", Username: "trader", GlobalName: "Trader Joe"})
	assert.Equal(t, "42", a.ID)
	assert.Equal(t, "Trader Joe", a.Name)
	assert.Equal(t, "<@42>", a.Mention)
}
