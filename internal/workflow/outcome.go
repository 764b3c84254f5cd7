package workflow

import "fmt"

// Kind вид результата обработки
type Kind int

const (
	KindOK Kind = iota
	KindBusy
	KindNotFound
	KindValidationFailed
	KindExpired
	KindFault
)

func (k Kind) String() string {
	switch k {
	case KindOK:
		return "ok"
	case KindBusy:
		return "busy"
	case KindNotFound:
		return "not_found"
	case KindValidationFailed:
		return "validation_failed"
	case KindExpired:
		return "expired"
	case KindFault:
		return "fault"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Outcome результат обработки действия. Ожидаемые ситуации не являются ошибками.
type Outcome struct {
	Kind Kind
	// Field поле, не прошедшее проверку
	Field string
	// Message текст для пользователя
	Message string
	Err     error
}

func ok() Outcome {
	return Outcome{Kind: KindOK}
}

func busy(msg string) Outcome {
	return Outcome{Kind: KindBusy, Message: msg}
}

func notFound(msg string) Outcome {
	return Outcome{Kind: KindNotFound, Message: msg}
}

func invalid(field, msg string) Outcome {
	return Outcome{Kind: KindValidationFailed, Field: field, Message: msg}
}

func expired(msg string) Outcome {
	return Outcome{Kind: KindExpired, Message: msg}
}

func fault(err error, msg string) Outcome {
	return Outcome{Kind: KindFault, Err: err, Message: msg}
}

// OK true для успешного результата
func (o Outcome) OK() bool {
	return o.Kind == KindOK
}
