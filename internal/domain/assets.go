package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

// AssetInfo описание торгуемого инструмента
type AssetInfo struct {
	Symbol        string
	Name          string
	FullName      string
	Emoji         string
	Color         int
	Multiplier    decimal.Decimal // $ за пункт
	TickSize      decimal.Decimal
	PriceDecimals int32
}

// DefaultAssets микро-фьючерсы, доступные по умолчанию
func DefaultAssets() []AssetInfo {
	return []AssetInfo{
		{
			Symbol:        "US30",
			Name:          "Micro Dow Jones",
			FullName:      "E-mini Dow Jones Industrial Average",
			Emoji:         "🏛️",
			Color:         0x0066cc,
			Multiplier:    decimal.NewFromInt(5),
			TickSize:      decimal.NewFromInt(1),
			PriceDecimals: 2,
		},
		{
			Symbol:        "MNQ",
			Name:          "Micro NASDAQ 100",
			FullName:      "E-mini NASDAQ-100 Index",
			Emoji:         "📊",
			Color:         0x00aa00,
			Multiplier:    decimal.NewFromInt(2),
			TickSize:      decimal.RequireFromString("0.25"),
			PriceDecimals: 2,
		},
		{
			Symbol:        "MGC",
			Name:          "Micro Gold",
			FullName:      "E-micro Gold Futures",
			Emoji:         "🥇",
			Color:         0xffaa00,
			Multiplier:    decimal.NewFromInt(10),
			TickSize:      decimal.RequireFromString("0.1"),
			PriceDecimals: 1,
		},
	}
}

// AssetCatalog набор поддерживаемых инструментов в порядке отображения
type AssetCatalog struct {
	order    []string
	bySymbol map[string]AssetInfo
}

// NewAssetCatalog создает каталог из списка символов.
// Для символов без описания используются значения по умолчанию.
func NewAssetCatalog(symbols []string, known []AssetInfo) *AssetCatalog {
	c := &AssetCatalog{bySymbol: make(map[string]AssetInfo)}

	infos := make(map[string]AssetInfo, len(known))
	for _, info := range known {
		infos[strings.ToUpper(info.Symbol)] = info
	}

	for _, s := range symbols {
		sym := strings.ToUpper(strings.TrimSpace(s))
		if sym == "" {
			continue
		}
		if _, dup := c.bySymbol[sym]; dup {
			continue
		}
		info, ok := infos[sym]
		if !ok {
			info = AssetInfo{Symbol: sym, Name: sym, Emoji: "📊", Color: 0x3498db, PriceDecimals: 2}
		}
		info.Symbol = sym
		c.order = append(c.order, sym)
		c.bySymbol[sym] = info
	}

	return c
}

// Symbols возвращает символы в порядке отображения
func (c *AssetCatalog) Symbols() []string {
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// Lookup ищет инструмент без учета регистра
func (c *AssetCatalog) Lookup(symbol string) (AssetInfo, bool) {
	info, ok := c.bySymbol[strings.ToUpper(strings.TrimSpace(symbol))]
	return info, ok
}

// Describe возвращает описание или заглушку для неизвестного символа
func (c *AssetCatalog) Describe(symbol string) AssetInfo {
	if info, ok := c.Lookup(symbol); ok {
		return info
	}
	return AssetInfo{Symbol: symbol, Name: symbol, Emoji: "📊", PriceDecimals: 2}
}

// FormatPrice форматирует цену с точностью инструмента
func (c *AssetCatalog) FormatPrice(symbol string, price decimal.Decimal) string {
	return price.StringFixed(c.Describe(symbol).PriceDecimals)
}

// PointsBetween разница в пунктах с учетом направления сделки
func PointsBetween(orderType string, entry, current decimal.Decimal) decimal.Decimal {
	if strings.EqualFold(orderType, SideSell) {
		return entry.Sub(current)
	}
	return current.Sub(entry)
}

// MovementValue денежная стоимость движения в пунктах
func (c *AssetCatalog) MovementValue(symbol string, points decimal.Decimal) (decimal.Decimal, bool) {
	info, ok := c.Lookup(symbol)
	if !ok || info.Multiplier.IsZero() {
		return decimal.Zero, false
	}
	return points.Mul(info.Multiplier), true
}
