package policy

// Lang язык пользовательских сообщений
type Lang string

const (
	LangES Lang = "es"
	LangEN Lang = "en"
)

// ParseLang нормализует код языка, по умолчанию испанский
func ParseLang(s string) Lang {
	if Lang(s) == LangEN {
		return LangEN
	}
	return LangES
}

// Tone тональность сообщения, определяет цвет
type Tone string

const (
	ToneSuccess Tone = "success"
	ToneWarning Tone = "warning"
	ToneError   Tone = "error"
	ToneInfo    Tone = "info"
)

// Color цвет embed для тональности
func (t Tone) Color() int {
	switch t {
	case ToneSuccess:
		return 0x00d4aa
	case ToneWarning:
		return 0xf39c12
	case ToneError:
		return 0xe74c3c
	default:
		return 0x3498db
	}
}

// Emoji иконка тональности для текстовых платформ
func (t Tone) Emoji() string {
	switch t {
	case ToneSuccess:
		return "✅"
	case ToneWarning:
		return "⚠️"
	case ToneError:
		return "❌"
	default:
		return "ℹ️"
	}
}

// StatusMessage публичное сообщение о смене статуса
type StatusMessage struct {
	Title       string
	Description string
	Tone        Tone
}
