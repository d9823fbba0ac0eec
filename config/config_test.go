package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AdielMag/MoneyMaker/internal/domain"
)

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 10.0, cfg.Trading.MinBalanceToTrade)
	assert.Equal(t, 50.0, cfg.Trading.MaxBetAmount)
	assert.Equal(t, 10, cfg.Trading.MaxPositions)
	assert.Equal(t, -15.0, cfg.Trading.StopLossPercent)
	assert.Equal(t, 30.0, cfg.Trading.TakeProfitPercent)
	assert.Equal(t, []string{"sports", "entertainment"}, cfg.MarketFilters.ExcludedCategories)
	assert.Equal(t, 5, cfg.Suggestions.MaxSuggestions)
	assert.Equal(t, 0.7, cfg.Suggestions.ConfidenceThreshold)
	assert.True(t, cfg.EnabledByDefault(domain.ModeFake))
	assert.False(t, cfg.EnabledByDefault(domain.ModeReal))
	assert.Equal(t, 1000.0, cfg.Mode(domain.ModeFake).InitialBalance)

	again := Default()
	*again.Workflows.Fake.Enabled = false
	assert.True(t, cfg.EnabledByDefault(domain.ModeFake), "each Default is independent")
}

func TestLoad_YAMLAndEnv(t *testing.T) {
	path := writeYAML(t, `
trading:
  max_bet_amount: 25
  max_positions: 3
market_filters:
  excluded_categories: []
workflows:
  real:
    enabled: true
    initial_balance: 200
`)
	t.Setenv("MAX_BET_AMOUNT", "40")
	t.Setenv("LOG_FORMAT", "json")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 40.0, cfg.Trading.MaxBetAmount, "env overrides YAML")
	assert.Equal(t, 3, cfg.Trading.MaxPositions)
	assert.Empty(t, cfg.MarketFilters.ExcludedCategories, "explicit empty list is kept")
	assert.True(t, cfg.EnabledByDefault(domain.ModeReal))
	assert.Equal(t, 200.0, cfg.Mode(domain.ModeReal).InitialBalance)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_ExplicitZerosAreKept(t *testing.T) {
	path := writeYAML(t, `
trading:
  min_balance_to_trade: 0
market_filters:
  min_volume: 0
  min_liquidity: 0
  min_time_to_resolution_minutes: 0
  min_price: 0
  max_markets: 0
suggestions:
  confidence_threshold: 0
api:
  timeout_seconds: 0
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 0.0, cfg.Trading.MinBalanceToTrade)
	assert.Equal(t, 0.0, cfg.MarketFilters.MinVolume)
	assert.Equal(t, 0.0, cfg.MarketFilters.MinLiquidity)
	assert.Equal(t, 0.0, cfg.MarketFilters.MinTimeToResolutionMinutes)
	assert.Equal(t, 0.0, cfg.MarketFilters.MinPrice)
	assert.Equal(t, 0, cfg.MarketFilters.MaxMarkets)
	assert.Equal(t, 0.0, cfg.Suggestions.ConfidenceThreshold)

	// lo no mencionado conserva el default
	assert.Equal(t, 0.95, cfg.MarketFilters.MaxPrice)
	assert.Equal(t, 50.0, cfg.Trading.MaxBetAmount)
	assert.True(t, cfg.EnabledByDefault(domain.ModeFake))
	// un timeout de 0 no significa nada y vuelve al default
	assert.Equal(t, 15, cfg.API.TimeoutSeconds)
}

func TestLoad_EnvZeroIsKept(t *testing.T) {
	t.Setenv("MIN_BALANCE_TO_TRADE", "0")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 0.0, cfg.Trading.MinBalanceToTrade)
}

func TestLoad_BadEnvIsValidationError(t *testing.T) {
	t.Setenv("MAX_POSITIONS", "many")
	_, err := Load("")
	require.Error(t, err)
	assert.True(t, domain.IsValidation(err))
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero bet", func(c *Config) { c.Trading.MaxBetAmount = -1 }},
		{"cap below one", func(c *Config) { c.Trading.MaxPositions = -2 }},
		{"positive stop loss", func(c *Config) { c.Trading.StopLossPercent = 5 }},
		{"negative take profit", func(c *Config) { c.Trading.TakeProfitPercent = -5 }},
		{"inverted price band", func(c *Config) { c.MarketFilters.MinPrice, c.MarketFilters.MaxPrice = 0.9, 0.1 }},
		{"threshold above one", func(c *Config) { c.Suggestions.ConfidenceThreshold = 1.5 }},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, domain.IsValidation(err))
		})
	}
}

func TestOverridesApply(t *testing.T) {
	base := Default()
	bet := 5.0
	n := 2

	cfg, err := Overrides{MaxBetAmount: &bet, MaxSuggestions: &n, ExcludedCategories: []string{" crypto ", ""}}.Apply(base)
	require.NoError(t, err)

	assert.Equal(t, 5.0, cfg.Trading.MaxBetAmount)
	assert.Equal(t, 2, cfg.Suggestions.MaxSuggestions)
	assert.Equal(t, []string{"crypto"}, cfg.MarketFilters.ExcludedCategories)

	// base intacto
	assert.Equal(t, 50.0, base.Trading.MaxBetAmount)
	assert.Equal(t, []string{"sports", "entertainment"}, base.MarketFilters.ExcludedCategories)
}

func TestOverridesApply_Invalid(t *testing.T) {
	bad := -3.0
	_, err := Overrides{MaxBetAmount: &bad}.Apply(Default())
	require.Error(t, err)
	assert.True(t, domain.IsValidation(err))
}
