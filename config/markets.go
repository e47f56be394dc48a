package config

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// MarketConfig describes one tradable exchange. Loaded once at startup and
// read-only for the life of the process.
type MarketConfig struct {
	Name            string  `yaml:"name" json:"name"`
	Priority        int     `yaml:"priority" json:"priority"` // Lower is screened first
	MaxPositions    int     `yaml:"max_positions" json:"max_positions"`
	MinPrice        float64 `yaml:"min_price" json:"min_price"`
	MaxPrice        float64 `yaml:"max_price" json:"max_price"`
	MinVolume       float64 `yaml:"min_volume" json:"min_volume"`
	MinDollarVolume float64 `yaml:"min_dollar_volume" json:"min_dollar_volume"`
	Timezone        string  `yaml:"timezone" json:"timezone"`
	OpenTime        string  `yaml:"open_time" json:"open_time"`   // "HH:MM" local
	CloseTime       string  `yaml:"close_time" json:"close_time"` // "HH:MM" local
	SymbolSuffix    string  `yaml:"symbol_suffix" json:"symbol_suffix"`
}

type marketsFile struct {
	Markets []MarketConfig `yaml:"markets"`
}

// DefaultMarkets returns the built-in market set, ordered by priority.
func DefaultMarkets() []MarketConfig {
	return []MarketConfig{
		{
			Name:            "NYSE",
			Priority:        1,
			MaxPositions:    3,
			MinPrice:        10,
			MaxPrice:        200,
			MinVolume:       500000,
			MinDollarVolume: 5000000,
			Timezone:        "America/New_York",
			OpenTime:        "09:30",
			CloseTime:       "16:00",
		},
		{
			Name:            "NASDAQ",
			Priority:        2,
			MaxPositions:    2,
			MinPrice:        5,
			MaxPrice:        300,
			MinVolume:       300000,
			MinDollarVolume: 3000000,
			Timezone:        "America/New_York",
			OpenTime:        "09:30",
			CloseTime:       "16:00",
		},
		{
			Name:            "LSE",
			Priority:        3,
			MaxPositions:    1,
			MinPrice:        1, // GBP
			MaxPrice:        500,
			MinVolume:       100000,
			MinDollarVolume: 2000000,
			Timezone:        "Europe/London",
			OpenTime:        "08:00",
			CloseTime:       "16:30",
			SymbolSuffix:    ".L",
		},
		{
			Name:            "ASX",
			Priority:        4,
			MaxPositions:    1,
			MinPrice:        0.1, // AUD
			MaxPrice:        100,
			MinVolume:       50000,
			MinDollarVolume: 1000000,
			Timezone:        "Australia/Sydney",
			OpenTime:        "10:00",
			CloseTime:       "16:00",
			SymbolSuffix:    ".AX",
		},
	}
}

// LoadMarkets reads market definitions from a YAML file, falling back to the
// built-in defaults when no file is configured. The result is sorted by
// ascending priority.
func LoadMarkets(path string) ([]MarketConfig, error) {
	markets := DefaultMarkets()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("error reading markets file: %w", err)
		}
		var mf marketsFile
		if err := yaml.Unmarshal(data, &mf); err != nil {
			return nil, fmt.Errorf("error parsing markets file: %w", err)
		}
		if len(mf.Markets) > 0 {
			markets = mf.Markets
		}
	}

	for i := range markets {
		if markets[i].MaxPositions <= 0 {
			return nil, fmt.Errorf("market %s: max_positions must be positive", markets[i].Name)
		}
		if markets[i].Timezone == "" {
			return nil, fmt.Errorf("market %s: timezone is required", markets[i].Name)
		}
	}

	sort.SliceStable(markets, func(i, j int) bool {
		return markets[i].Priority < markets[j].Priority
	})
	return markets, nil
}

// ResolveMarket maps a symbol to its market by suffix convention. Symbols
// without a recognized suffix default to the first suffix-less market.
func ResolveMarket(markets []MarketConfig, symbol string) *MarketConfig {
	var fallback *MarketConfig
	for i := range markets {
		m := &markets[i]
		if m.SymbolSuffix != "" && strings.HasSuffix(symbol, m.SymbolSuffix) {
			return m
		}
		if m.SymbolSuffix == "" && fallback == nil {
			fallback = m
		}
	}
	return fallback
}

// MarketByName returns the config for a named market, or nil.
func MarketByName(markets []MarketConfig, name string) *MarketConfig {
	for i := range markets {
		if markets[i].Name == name {
			return &markets[i]
		}
	}
	return nil
}
