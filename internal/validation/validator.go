package validation

import (
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/kirillm/signal-desk/internal/domain"
)

// MaxPrice верхняя граница цены (санитарная, не биржевая)
const MaxPrice = 1_000_000

var maxPriceDecimal = decimal.NewFromInt(MaxPrice)

// Validator проверяет пользовательский ввод перед записью в хранилище
type Validator struct {
	assets *domain.AssetCatalog
}

// NewValidator создает валидатор поверх каталога инструментов
func NewValidator(assets *domain.AssetCatalog) *Validator {
	return &Validator{assets: assets}
}

// Assets возвращает каталог инструментов
func (v *Validator) Assets() *domain.AssetCatalog {
	return v.assets
}

// IsValidAsset проверяет символ по каталогу без учета регистра
func (v *Validator) IsValidAsset(symbol string) bool {
	_, ok := v.assets.Lookup(symbol)
	return ok
}

// IsValidOrderType BUY или SELL без учета регистра
func IsValidOrderType(orderType string) bool {
	t := strings.ToUpper(strings.TrimSpace(orderType))
	return t == domain.SideBuy || t == domain.SideSell
}

// IsValidPrice true для конечного числа в интервале (0, 1 000 000)
func IsValidPrice(value float64) bool {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return false
	}
	return value > 0 && value < MaxPrice
}

// ParsePrice разбирает цену из пользовательского ввода.
// Запятая допускается как десятичный разделитель.
func ParsePrice(raw string) (decimal.Decimal, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return decimal.Zero, fmt.Errorf("%w: empty price", domain.ErrInvalidInput)
	}
	s = strings.ReplaceAll(s, " ", "")
	if strings.Count(s, ",") == 1 && !strings.Contains(s, ".") {
		s = strings.Replace(s, ",", ".", 1)
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q is not a number", domain.ErrInvalidInput, raw)
	}
	if !d.IsPositive() || d.GreaterThanOrEqual(maxPriceDecimal) {
		return decimal.Zero, fmt.Errorf("%w: price %s out of range", domain.ErrInvalidInput, d.String())
	}

	return d, nil
}

// ParseOptionalPrice пустая строка дает невалидный NullDecimal без ошибки
func ParseOptionalPrice(raw string) (decimal.NullDecimal, error) {
	if strings.TrimSpace(raw) == "" {
		return decimal.NullDecimal{}, nil
	}
	d, err := ParsePrice(raw)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NewNullDecimal(d), nil
}

var markupReplacer = strings.NewReplacer(
	"<", "",
	">", "",
	"@", "",
	"#", "",
	"&", "",
	"!", "",
)

// SanitizeText убирает символы разметки и упоминаний
func SanitizeText(s string) string {
	return strings.TrimSpace(markupReplacer.Replace(s))
}

// TruncateText обрезает текст до n рун, добавляя "..."
func TruncateText(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}
