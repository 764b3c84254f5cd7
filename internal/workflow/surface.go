package workflow

import (
	"context"
	"time"

	"github.com/kirillm/signal-desk/internal/policy"
)

// Surface возможности платформы, нужные процессам.
// Реализации: Discord (embed + кнопки + modal) и Telegram (текст + inline клавиатура).
type Surface interface {
	// ShowChoices отправляет пользователю новое приватное сообщение с вариантами
	ShowChoices(ctx context.Context, p Prompt) error
	// EditPrompt заменяет сообщение, из которого пришло действие
	EditPrompt(ctx context.Context, p Prompt) error
	// ShowForm запрашивает заполнение формы
	ShowForm(ctx context.Context, f Form) error
	// Notify приватное уведомление пользователю
	Notify(ctx context.Context, n Notice) error
	// Announce публикует сообщение в публичный канал
	Announce(ctx context.Context, p Prompt) error
}

// ButtonStyle стиль кнопки
type ButtonStyle int

const (
	StylePrimary ButtonStyle = iota
	StyleSecondary
	StyleSuccess
	StyleDanger
)

// Choice один вариант выбора
type Choice struct {
	Action string
	Label  string
	Style  ButtonStyle
}

// Field именованное поле сообщения
type Field struct {
	Name   string
	Value  string
	Inline bool
}

// Prompt сообщение с необязательными вариантами выбора
type Prompt struct {
	Title       string
	Description string
	Tone        policy.Tone
	// Color переопределяет цвет тональности, 0 значит "по тональности"
	Color     int
	Fields    []Field
	Footer    string
	Choices   [][]Choice
	Timestamp time.Time
}

// ColorValue итоговый цвет сообщения
func (p Prompt) ColorValue() int {
	if p.Color != 0 {
		return p.Color
	}
	return p.Tone.Color()
}

// FormInput поле формы
type FormInput struct {
	ID          string
	Label       string
	Placeholder string
	Required    bool
	MaxLength   int
	Multiline   bool
}

// Form форма ввода, ответ приходит действием Action
type Form struct {
	Action string
	Title  string
	Inputs []FormInput
}

// Notice приватное уведомление
type Notice struct {
	Tone policy.Tone
	Text string
}

// Actor пользователь, выполняющий действие
type Actor struct {
	ID   string
	Name string
	// Mention как упомянуть пользователя в публичном сообщении
	Mention string
}

// Display строка для публичного сообщения
func (a Actor) Display() string {
	switch {
	case a.Mention != "":
		return a.Mention
	case a.Name != "":
		return a.Name
	default:
		return a.ID
	}
}

// Interaction одно входящее действие пользователя
type Interaction struct {
	Actor  Actor
	Action string
	Values map[string]string
	// IssuedAt время отправки сообщения, к которому привязано действие. Ноль для команд.
	IssuedAt time.Time
	Surface  Surface
}

// Value значение поля формы
func (ix *Interaction) Value(id string) string {
	if ix.Values == nil {
		return ""
	}
	return ix.Values[id]
}
