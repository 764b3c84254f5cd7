package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/kirillm/signal-desk/internal/domain"
)

type assetFile struct {
	Assets []assetSpec `yaml:"assets"`
}

type assetSpec struct {
	Symbol        string  `yaml:"symbol"`
	Name          string  `yaml:"name"`
	FullName      string  `yaml:"full_name"`
	Emoji         string  `yaml:"emoji"`
	Color         string  `yaml:"color"`
	Multiplier    float64 `yaml:"multiplier"`
	TickSize      float64 `yaml:"tick_size"`
	PriceDecimals int32   `yaml:"price_decimals"`
}

// LoadAssets читает описания инструментов из YAML файла.
// Пустой путь возвращает описания по умолчанию.
func LoadAssets(path string) ([]domain.AssetInfo, error) {
	defaults := domain.DefaultAssets()
	if path == "" {
		return defaults, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read assets file: %w", err)
	}

	return ParseAssets(data, defaults)
}

// ParseAssets разбирает YAML и дополняет описания по умолчанию
func ParseAssets(data []byte, defaults []domain.AssetInfo) ([]domain.AssetInfo, error) {
	var file assetFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse assets file: %w", err)
	}

	merged := make([]domain.AssetInfo, 0, len(defaults)+len(file.Assets))
	index := make(map[string]int, len(defaults))
	for _, d := range defaults {
		index[d.Symbol] = len(merged)
		merged = append(merged, d)
	}

	for _, spec := range file.Assets {
		sym := strings.ToUpper(strings.TrimSpace(spec.Symbol))
		if sym == "" {
			return nil, fmt.Errorf("asset without symbol in assets file")
		}

		color, err := parseColor(spec.Color)
		if err != nil {
			return nil, fmt.Errorf("asset %s: %w", sym, err)
		}

		info := domain.AssetInfo{
			Symbol:        sym,
			Name:          spec.Name,
			FullName:      spec.FullName,
			Emoji:         spec.Emoji,
			Color:         color,
			Multiplier:    decimal.NewFromFloat(spec.Multiplier),
			TickSize:      decimal.NewFromFloat(spec.TickSize),
			PriceDecimals: spec.PriceDecimals,
		}
		if info.Name == "" {
			info.Name = sym
		}
		if info.Emoji == "" {
			info.Emoji = "📊"
		}
		if info.PriceDecimals <= 0 {
			info.PriceDecimals = 2
		}

		if i, ok := index[sym]; ok {
			merged[i] = info
			continue
		}
		index[sym] = len(merged)
		merged = append(merged, info)
	}

	return merged, nil
}

// parseColor принимает "0x00aa00", "#00aa00" или десятичное число
func parseColor(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0x3498db, nil
	}
	base := 10
	switch {
	case strings.HasPrefix(s, "0x"), strings.HasPrefix(s, "0X"):
		s, base = s[2:], 16
	case strings.HasPrefix(s, "#"):
		s, base = s[1:], 16
	}
	v, err := strconv.ParseInt(s, base, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid color %q", s)
	}
	return int(v), nil
}
