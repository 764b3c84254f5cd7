package discord

import (
	"time"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"

	"github.com/kirillm/signal-desk/internal/workflow"
)

// Ограничения Discord
const (
	maxButtonsPerRow = 5
	maxRows          = 5
	maxLabel         = 80
	maxModalTitle    = 45
	maxInputLabel    = 45
	maxPlaceholder   = 100
)

var buttonStyles = map[workflow.ButtonStyle]discordgo.ButtonStyle{
	workflow.StylePrimary:   discordgo.PrimaryButton,
	workflow.StyleSecondary: discordgo.SecondaryButton,
	workflow.StyleSuccess:   discordgo.SuccessButton,
	workflow.StyleDanger:    discordgo.DangerButton,
}

// Embed строит embed из карточки процесса
func Embed(p workflow.Prompt) *discordgo.MessageEmbed {
	e := &discordgo.MessageEmbed{
		Title:       p.Title,
		Description: p.Description,
		Color:       p.ColorValue(),
	}
	for _, f := range p.Fields {
		value := f.Value
		if value == "" {
			value = "\u200b"
		}
		e.Fields = append(e.Fields, &discordgo.MessageEmbedField{Name: f.Name, Value: value, Inline: f.Inline})
	}
	if p.Footer != "" {
		e.Footer = &discordgo.MessageEmbedFooter{Text: p.Footer}
	}
	if !p.Timestamp.IsZero() {
		e.Timestamp = p.Timestamp.UTC().Format(time.RFC3339)
	}
	return e
}

// Components ряды кнопок. Discord допускает не больше 5 рядов по 5 кнопок.
func Components(rows [][]workflow.Choice) []discordgo.MessageComponent {
	var out []discordgo.MessageComponent
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		if len(out) == maxRows {
			break
		}
		if len(row) > maxButtonsPerRow {
			row = row[:maxButtonsPerRow]
		}

		buttons := make([]discordgo.MessageComponent, 0, len(row))
		for _, c := range row {
			style, ok := buttonStyles[c.Style]
			if !ok {
				style = discordgo.SecondaryButton
			}
			buttons = append(buttons, discordgo.Button{
				Label:    clip(c.Label, maxLabel),
				Style:    style,
				CustomID: c.Action,
			})
		}
		out = append(out, discordgo.ActionsRow{Components: buttons})
	}
	return out
}

// Modal данные ответа-модального окна для формы
func Modal(f workflow.Form) *discordgo.InteractionResponseData {
	rows := make([]discordgo.MessageComponent, 0, len(f.Inputs))
	for _, in := range f.Inputs {
		style := discordgo.TextInputShort
		if in.Multiline {
			style = discordgo.TextInputParagraph
		}
		rows = append(rows, discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.TextInput{
				CustomID:    in.ID,
				Label:       clip(in.Label, maxInputLabel),
				Style:       style,
				Placeholder: clip(in.Placeholder, maxPlaceholder),
				Required:    in.Required,
				MaxLength:   in.MaxLength,
			},
		}})
	}

	return &discordgo.InteractionResponseData{
		CustomID:   f.Action,
		Title:      clip(f.Title, maxModalTitle),
		Components: rows,
	}
}

// ModalValues значения полей отправленной формы по их ID
func ModalValues(data discordgo.ModalSubmitInteractionData) map[string]string {
	values := make(map[string]string)
	for _, c := range data.Components {
		row, ok := c.(*discordgo.ActionsRow)
		if !ok {
			continue
		}
		for _, inner := range row.Components {
			if input, ok := inner.(*discordgo.TextInput); ok {
				values[input.CustomID] = input.Value
			}
		}
	}
	return values
}

// clip обрезает строку до n рун
func clip(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
