package discord

import (
	"context"
	"errors"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/kirillm/signal-desk/internal/workflow"
)

// ErrAlreadyResponded modal можно открыть только первым ответом на взаимодействие
var ErrAlreadyResponded = errors.New("interaction already responded")

// interactionSurface отображает шаги процесса в ответах на одно взаимодействие.
// Discord принимает ровно один первичный ответ, все последующие идут follow-up сообщениями.
type interactionSurface struct {
	b *Bot
	i *discordgo.Interaction

	mu        sync.Mutex
	responded bool
}

func newSurface(b *Bot, i *discordgo.Interaction) *interactionSurface {
	return &interactionSurface{b: b, i: i}
}

// reply первичный ответ или follow-up, всегда приватный
func (s *interactionSurface) reply(content string, embeds []*discordgo.MessageEmbed, components []discordgo.MessageComponent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.responded {
		err := s.b.api.InteractionRespond(s.i, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseChannelMessageWithSource,
			Data: &discordgo.InteractionResponseData{
				Content:    content,
				Embeds:     embeds,
				Components: components,
				Flags:      discordgo.MessageFlagsEphemeral,
			},
		})
		if err == nil {
			s.responded = true
		}
		return err
	}

	_, err := s.b.api.FollowupMessageCreate(s.i, true, &discordgo.WebhookParams{
		Content:    content,
		Embeds:     embeds,
		Components: components,
		Flags:      discordgo.MessageFlagsEphemeral,
	})
	return err
}

func (s *interactionSurface) ShowChoices(_ context.Context, p workflow.Prompt) error {
	return s.reply("", []*discordgo.MessageEmbed{Embed(p)}, Components(p.Choices))
}

// EditPrompt обновляет сообщение с кнопками. У slash-команды такого сообщения нет,
// тогда карточка отправляется новым сообщением.
func (s *interactionSurface) EditPrompt(ctx context.Context, p workflow.Prompt) error {
	embeds := []*discordgo.MessageEmbed{Embed(p)}
	components := Components(p.Choices)
	if components == nil {
		components = []discordgo.MessageComponent{}
	}

	s.mu.Lock()
	switch {
	case !s.responded && s.i.Message != nil:
		err := s.b.api.InteractionRespond(s.i, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseUpdateMessage,
			Data: &discordgo.InteractionResponseData{
				Embeds:     embeds,
				Components: components,
			},
		})
		if err == nil {
			s.responded = true
		}
		s.mu.Unlock()
		return err
	case s.responded:
		_, err := s.b.api.InteractionResponseEdit(s.i, &discordgo.WebhookEdit{
			Embeds:     &embeds,
			Components: &components,
		})
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()

	return s.ShowChoices(ctx, p)
}

func (s *interactionSurface) ShowForm(_ context.Context, f workflow.Form) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.responded {
		return ErrAlreadyResponded
	}
	err := s.b.api.InteractionRespond(s.i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseModal,
		Data: Modal(f),
	})
	if err == nil {
		s.responded = true
	}
	return err
}

func (s *interactionSurface) Notify(_ context.Context, n workflow.Notice) error {
	return s.reply(n.Text, nil, nil)
}

// Announce публикует в торговый канал, без него в канал взаимодействия
func (s *interactionSurface) Announce(_ context.Context, p workflow.Prompt) error {
	channelID := s.b.channelID
	if channelID == "" {
		channelID = s.i.ChannelID
	}
	_, err := s.b.api.ChannelMessageSendEmbed(channelID, Embed(p))
	return err
}
