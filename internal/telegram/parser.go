package telegram

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/kirillm/signal-desk/internal/workflow"
)

// CommandArgs представляет распарсенную команду
type CommandArgs struct {
	Command string
	Raw     []string
}

// Вспомогательные команды, которые обрабатывает сам бот
const (
	CmdStart = "start"
	CmdHelp  = "help"
)

// ErrEmptyReply пустой ответ на форму
var ErrEmptyReply = errors.New("empty reply")

// ParseCommand парсит команду и аргументы
func ParseCommand(text string) (*CommandArgs, error) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return nil, fmt.Errorf("not a command")
	}

	parts := strings.Fields(text)
	if len(parts) == 0 || parts[0] == "/" {
		return nil, fmt.Errorf("empty command")
	}

	cmd := strings.TrimPrefix(parts[0], "/")
	// В группах команда приходит как /entry@signal_bot
	if at := strings.Index(cmd, "@"); at >= 0 {
		cmd = cmd[:at]
	}
	cmd = normalizeCommand(cmd)

	switch cmd {
	case workflow.CommandEntry, workflow.CommandUpdate, workflow.CommandTrades, workflow.CommandClear, workflow.CommandAbout,
		CmdStart, CmdHelp:
		return &CommandArgs{Command: cmd, Raw: parts[1:]}, nil
	default:
		return nil, fmt.Errorf("unknown command: %s", cmd)
	}
}

// normalizeCommand нормализует команду (поддержка испанских синонимов)
func normalizeCommand(cmd string) string {
	cmd = strings.ToLower(strings.TrimSpace(cmd))

	esToEn := map[string]string{
		"entrada":     workflow.CommandEntry,
		"nueva":       workflow.CommandEntry,
		"actualizar":  workflow.CommandUpdate,
		"operaciones": workflow.CommandTrades,
		"limpiar":     workflow.CommandClear,
		"info":        workflow.CommandAbout,
		"ayuda":       CmdHelp,
	}

	if enCmd, ok := esToEn[cmd]; ok {
		return enCmd
	}
	return cmd
}

// inputAliases короткие имена полей формы
var inputAliases = map[string]string{
	"entry":    workflow.InputEntryPrice,
	"entrada":  workflow.InputEntryPrice,
	"precio":   workflow.InputEntryPrice,
	"price":    workflow.InputEntryPrice,
	"tp1":      workflow.InputTakeProfit1,
	"tp2":      workflow.InputTakeProfit2,
	"sl":       workflow.InputStopLoss,
	"stop":     workflow.InputStopLoss,
	"notas":    workflow.InputNotes,
	"nota":     workflow.InputNotes,
	"mensaje":  workflow.InputCustomNotes,
	"message":  workflow.InputCustomNotes,
	"note":     workflow.InputNotes,
	"comments": workflow.InputNotes,
}

// ParseFormReply разбирает ответ на форму.
// Форма с одним полем принимает весь текст. Иначе каждая строка имеет вид "поле: значение",
// строки без поля продолжают предыдущее многострочное поле.
func ParseFormReply(text string, form workflow.Form) (map[string]string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyReply
	}

	values := make(map[string]string)

	if len(form.Inputs) == 1 {
		in := form.Inputs[0]
		if err := checkLength(in, text); err != nil {
			return nil, err
		}
		values[in.ID] = text
		return values, nil
	}

	inputs := make(map[string]workflow.FormInput, len(form.Inputs))
	for _, in := range form.Inputs {
		inputs[in.ID] = in
	}

	current := ""
	for i, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if id, value, ok := splitField(line, inputs); ok {
			values[id] = value
			current = id
			continue
		}

		switch {
		case current != "" && inputs[current].Multiline:
			values[current] += "\n" + line
		case i == 0 && len(form.Inputs) > 0:
			// Одно число без имени поля считаем первым полем формы
			values[form.Inputs[0].ID] = line
			current = form.Inputs[0].ID
		default:
			return nil, fmt.Errorf("line %d: expected \"field: value\"", i+1)
		}
	}

	for id, v := range values {
		if err := checkLength(inputs[id], v); err != nil {
			return nil, err
		}
	}

	return values, nil
}

// splitField отделяет имя поля по первому ':' или '='
func splitField(line string, inputs map[string]workflow.FormInput) (string, string, bool) {
	idx := strings.IndexAny(line, ":=")
	if idx <= 0 {
		return "", "", false
	}

	key := strings.ToLower(strings.TrimSpace(line[:idx]))
	key = strings.ReplaceAll(key, " ", "_")
	if alias, ok := inputAliases[key]; ok {
		key = alias
	}
	if _, ok := inputs[key]; !ok {
		return "", "", false
	}

	return key, strings.TrimSpace(line[idx+1:]), true
}

func checkLength(in workflow.FormInput, value string) error {
	if in.MaxLength > 0 && utf8.RuneCountInString(value) > in.MaxLength {
		return fmt.Errorf("%s: longer than %d characters", in.ID, in.MaxLength)
	}
	return nil
}
