package policy

import (
	"fmt"
	"strings"

	"github.com/kirillm/signal-desk/internal/domain"
)

type statusText struct {
	icon        string
	title       string
	description string
	tone        Tone
}

var statusTexts = map[Lang]map[domain.Status]statusText{
	LangES: {
		domain.StatusBE: {
			icon:  "🔄",
			title: "Operación nos sacó en BE",
			description: "**Operación nos sacó en Break Even**\n\n" +
				"🔄 **Esperamos si el mercado nos da otra oportunidad**\n\n" +
				"*La operación salió en break even, sin pérdidas ni ganancias.*",
			tone: ToneWarning,
		},
		domain.StatusTP1: {
			icon:  "🎯",
			title: "Primer Objetivo Alcanzado",
			description: "**Movemos el SL al precio de entrada (Break Even)**\n\n" +
				"✅ **Posición asegurada** - Ya no podemos perder dinero\n" +
				"🎯 **Tomamos parciales** (opcional para cada persona)\n\n" +
				"*Primer nivel de Take Profit ejecutado exitosamente.*",
			tone: ToneSuccess,
		},
		domain.StatusTP2: {
			icon:  "🎯",
			title: "Operación Completada",
			description: "**Cerramos la operación - Trade con éxito**\n\n" +
				"✅ **Objetivo principal alcanzado**\n" +
				"💰 **Operación exitosa**\n\n" +
				"*Segundo nivel de Take Profit ejecutado. Operación cerrada.*",
			tone: ToneSuccess,
		},
		domain.StatusTP3: {
			icon:  "🎯",
			title: "Objetivo Extra Alcanzado",
			description: "**Objetivo adicional completado**\n\n" +
				"✅ **Máximo beneficio obtenido**\n" +
				"💰 **Operación extraordinaria**\n\n" +
				"*Tercer nivel de Take Profit ejecutado. Máxima ganancia.*",
			tone: ToneSuccess,
		},
		domain.StatusStopped: {
			icon:  "🛡️",
			title: "El mercado nos sacó en pérdidas",
			description: "**El mercado nos sacó en pérdidas**\n\n" +
				"⏳ **Esperaré si veo alguna otra entrada o todo por hoy**\n\n" +
				"*El stop loss fue ejecutado. Protegimos el capital.*",
			tone: ToneError,
		},
	},
	LangEN: {
		domain.StatusBE: {
			icon:  "🔄",
			title: "Break Even",
			description: "**The trade closed at break even**\n\n" +
				"🔄 **Waiting to see if the market gives us another chance**\n\n" +
				"*No profit, no loss.*",
			tone: ToneWarning,
		},
		domain.StatusTP1: {
			icon:  "🎯",
			title: "First Target Reached",
			description: "**Stop loss moved to entry (Break Even)**\n\n" +
				"✅ **Position secured** - we can no longer lose\n" +
				"🎯 **Partial profits** (optional for everyone)\n\n" +
				"*First Take Profit level hit.*",
			tone: ToneSuccess,
		},
		domain.StatusTP2: {
			icon:  "🎯",
			title: "Trade Completed",
			description: "**Trade closed successfully**\n\n" +
				"✅ **Main target reached**\n" +
				"💰 **Winning trade**\n\n" +
				"*Second Take Profit level hit. Trade closed.*",
			tone: ToneSuccess,
		},
		domain.StatusTP3: {
			icon:  "🎯",
			title: "Extra Target Reached",
			description: "**Additional target completed**\n\n" +
				"✅ **Maximum profit taken**\n" +
				"💰 **Outstanding trade**\n\n" +
				"*Third Take Profit level hit.*",
			tone: ToneSuccess,
		},
		domain.StatusStopped: {
			icon:  "🛡️",
			title: "Stopped Out",
			description: "**The market took us out at a loss**\n\n" +
				"⏳ **Waiting for another entry or done for today**\n\n" +
				"*Stop loss executed. Capital protected.*",
			tone: ToneError,
		},
	},
}

var fallbackTexts = map[Lang]statusText{
	LangES: {
		icon:  "📝",
		title: "Actualización",
		description: "**Actualización de operación**\n\n" +
			"📊 **Estado modificado**\n\n" +
			"*La operación ha sido actualizada.*",
		tone: ToneInfo,
	},
	LangEN: {
		icon:  "📝",
		title: "Update",
		description: "**Operation updated**\n\n" +
			"📊 **Status changed**\n\n" +
			"*The operation has been updated.*",
		tone: ToneInfo,
	},
}

var noteTitles = map[Lang]string{
	LangES: "Mensaje Importante",
	LangEN: "Important Message",
}

// StatusMessageFor строит публичное сообщение для нового статуса операции.
// Неизвестный статус дает общее сообщение об обновлении.
func StatusMessageFor(lang Lang, status domain.Status, asset domain.AssetInfo) StatusMessage {
	lang = ParseLang(string(lang))

	text, ok := statusTexts[lang][status]
	if !ok {
		text = fallbackTexts[lang]
	}

	return StatusMessage{
		Title:       headline(text.icon, asset, text.title),
		Description: text.description,
		Tone:        text.tone,
	}
}

// NoteMessageFor строит объявление с произвольным сообщением администратора
func NoteMessageFor(lang Lang, asset domain.AssetInfo, note string) StatusMessage {
	lang = ParseLang(string(lang))

	return StatusMessage{
		Title:       headline("📢", asset, noteTitles[lang]),
		Description: fmt.Sprintf("**%s**", strings.TrimSpace(note)),
		Tone:        ToneWarning,
	}
}

func headline(icon string, asset domain.AssetInfo, title string) string {
	name := asset.Name
	if name == "" {
		name = asset.Symbol
	}
	parts := []string{icon}
	if asset.Emoji != "" {
		parts = append(parts, asset.Emoji)
	}
	parts = append(parts, name, "-", title)
	return strings.Join(parts, " ")
}
