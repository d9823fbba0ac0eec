package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/AdielMag/MoneyMaker/internal/domain"
)

// Config es la configuración completa del engine.
type Config struct {
	Environment   string              `yaml:"environment"`
	API           APIConfig           `yaml:"api"`
	Ranking       RankingConfig       `yaml:"ranking"`
	Storage       StorageConfig       `yaml:"storage"`
	Cache         CacheConfig         `yaml:"cache"`
	Server        ServerConfig        `yaml:"server"`
	Trading       TradingConfig       `yaml:"trading"`
	MarketFilters MarketFiltersConfig `yaml:"market_filters"`
	Suggestions   SuggestionsConfig   `yaml:"suggestions"`
	Workflows     WorkflowsConfig     `yaml:"workflows"`
	Log           LogConfig           `yaml:"log"`
}

// APIConfig contiene el base URL de la API de mercados.
type APIConfig struct {
	GammaBase      string `yaml:"gamma_base"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	MarketLimit    int    `yaml:"market_limit"` // mercados pedidos por listado
}

// RankingConfig apunta al servicio externo que ordena mercados.
type RankingConfig struct {
	URL            string `yaml:"url"`
	APIKey         string `yaml:"api_key"` // normalmente via RANKING_API_KEY
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// StorageConfig controla dónde se persiste el ledger.
type StorageConfig struct {
	DSN string `yaml:"dsn"` // ruta al archivo SQLite, o ":memory:"
}

// CacheConfig activa la caché de cotizaciones en Redis. RedisAddr vacío la desactiva.
type CacheConfig struct {
	RedisAddr       string `yaml:"redis_addr"`
	RedisPassword   string `yaml:"redis_password"`
	RedisDB         int    `yaml:"redis_db"`
	QuoteTTLSeconds int    `yaml:"quote_ttl_seconds"`
}

// ServerConfig controla la superficie HTTP.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// TradingConfig son los límites de riesgo de ambos workflows.
type TradingConfig struct {
	MinBalanceToTrade  float64 `yaml:"min_balance_to_trade"`
	MaxBetAmount       float64 `yaml:"max_bet_amount"`
	MaxPositions       int     `yaml:"max_positions"`
	MaxConflictRetries int     `yaml:"max_conflict_retries"`
	StopLossPercent    float64 `yaml:"stop_loss_percent"`   // negativo, ej. -15
	TakeProfitPercent  float64 `yaml:"take_profit_percent"` // positivo, ej. 30
	MaxPriceAgeSeconds int     `yaml:"max_price_age_seconds"`
	PriceWorkers       int     `yaml:"price_workers"`
	CallTimeoutSeconds int     `yaml:"call_timeout_seconds"` // por llamada externa
}

// MarketFiltersConfig son los criterios del filtro de mercados.
type MarketFiltersConfig struct {
	MinVolume                  float64  `yaml:"min_volume"`
	MinLiquidity               float64  `yaml:"min_liquidity"`
	MaxTimeToResolutionHours   float64  `yaml:"max_time_to_resolution_hours"`
	MinTimeToResolutionMinutes float64  `yaml:"min_time_to_resolution_minutes"`
	ExcludedCategories         []string `yaml:"excluded_categories"`
	MinPrice                   float64  `yaml:"min_price"`
	MaxPrice                   float64  `yaml:"max_price"`
	MaxMarkets                 int      `yaml:"max_markets"` // mercados enviados al ranking; 0 = todos
}

// SuggestionsConfig controla el adaptador de sugerencias.
type SuggestionsConfig struct {
	MaxSuggestions      int     `yaml:"max_suggestions"`
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`
}

// WorkflowsConfig tiene los valores semilla de cada modo.
type WorkflowsConfig struct {
	Fake ModeConfig `yaml:"fake"`
	Real ModeConfig `yaml:"real"`
}

// ModeConfig: Enabled solo siembra el WorkflowState la primera vez; después manda el store.
type ModeConfig struct {
	Enabled        *bool   `yaml:"enabled"`
	InitialBalance float64 `yaml:"initial_balance"`
}

// LogConfig controla el formato y nivel de logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load carga la configuración desde el archivo YAML y el archivo .env si existe.
// Orden de precedencia: variables de entorno > YAML > defaults.
// El YAML se decodifica sobre los defaults, así un 0 explícito (min_price: 0,
// min_balance_to_trade: 0) se respeta. Un path vacío arranca de los defaults.
func Load(path string) (*Config, error) {
	// Cargar .env si existe (silencia error si no hay archivo)
	_ = godotenv.Load()

	cfg := defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	fillUnset(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return cfg, nil
}

// Default devuelve la configuración con todos los defaults aplicados.
func Default() *Config {
	return defaults()
}

// applyEnvOverrides sobreescribe valores con variables de entorno si están presentes.
func applyEnvOverrides(cfg *Config) error {
	str := map[string]*string{
		"ENVIRONMENT":     &cfg.Environment,
		"LOG_LEVEL":       &cfg.Log.Level,
		"LOG_FORMAT":      &cfg.Log.Format,
		"STORAGE_DSN":     &cfg.Storage.DSN,
		"GAMMA_BASE":      &cfg.API.GammaBase,
		"RANKING_URL":     &cfg.Ranking.URL,
		"RANKING_API_KEY": &cfg.Ranking.APIKey,
		"REDIS_ADDR":      &cfg.Cache.RedisAddr,
		"REDIS_PASSWORD":  &cfg.Cache.RedisPassword,
		"SERVER_ADDR":     &cfg.Server.Addr,
	}
	for key, dst := range str {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	floats := map[string]*float64{
		"MAX_BET_AMOUNT":       &cfg.Trading.MaxBetAmount,
		"MIN_BALANCE_TO_TRADE": &cfg.Trading.MinBalanceToTrade,
		"STOP_LOSS_PERCENT":    &cfg.Trading.StopLossPercent,
		"TAKE_PROFIT_PERCENT":  &cfg.Trading.TakeProfitPercent,
	}
	for key, dst := range floats {
		v := os.Getenv(key)
		if v == "" {
			continue
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return domain.NewValidationError(key, "not a number: %q", v)
		}
		*dst = f
	}

	if v := os.Getenv("MAX_POSITIONS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return domain.NewValidationError("MAX_POSITIONS", "not an integer: %q", v)
		}
		cfg.Trading.MaxPositions = n
	}

	bools := map[string]**bool{
		"FAKE_MONEY_ENABLED": &cfg.Workflows.Fake.Enabled,
		"REAL_MONEY_ENABLED": &cfg.Workflows.Real.Enabled,
	}
	for key, dst := range bools {
		v := os.Getenv(key)
		if v == "" {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return domain.NewValidationError(key, "not a boolean: %q", v)
		}
		*dst = &b
	}
	return nil
}

// defaults devuelve una configuración nueva con los valores por defecto.
func defaults() *Config {
	return &Config{
		Environment: "development",
		API: APIConfig{
			GammaBase:      "https://gamma-api.polymarket.com",
			TimeoutSeconds: 15,
			MarketLimit:    500,
		},
		Ranking: RankingConfig{TimeoutSeconds: 30},
		Storage: StorageConfig{DSN: "moneymaker.db"},
		Cache:   CacheConfig{QuoteTTLSeconds: 15},
		Server:  ServerConfig{Addr: ":8080"},
		Trading: TradingConfig{
			MinBalanceToTrade:  10,
			MaxBetAmount:       50,
			MaxPositions:       10,
			MaxConflictRetries: 3,
			StopLossPercent:    -15,
			TakeProfitPercent:  30,
			MaxPriceAgeSeconds: 300,
			PriceWorkers:       4,
			CallTimeoutSeconds: 10,
		},
		MarketFilters: MarketFiltersConfig{
			MinVolume:                  1000,
			MinLiquidity:               500,
			MaxTimeToResolutionHours:   1,
			MinTimeToResolutionMinutes: 5,
			ExcludedCategories:         []string{"sports", "entertainment"},
			MinPrice:                   0.05,
			MaxPrice:                   0.95,
			MaxMarkets:                 50,
		},
		Suggestions: SuggestionsConfig{MaxSuggestions: 5, ConfidenceThreshold: 0.7},
		Workflows: WorkflowsConfig{
			Fake: ModeConfig{Enabled: boolPtr(true), InitialBalance: 1000},
			Real: ModeConfig{Enabled: boolPtr(false)},
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// fillUnset repone los campos que quedaron vacíos o nulos tras YAML y env y donde
// el valor cero no significa nada (strings, timeouts, workers). Los umbrales
// numéricos no se tocan: un 0 ahí es una elección y lo juzga Validate.
func fillUnset(cfg *Config) {
	d := defaults()
	setStr := func(dst *string, def string) {
		if *dst == "" {
			*dst = def
		}
	}
	setPos := func(dst *int, def int) {
		if *dst <= 0 {
			*dst = def
		}
	}

	setStr(&cfg.Environment, d.Environment)
	setStr(&cfg.API.GammaBase, d.API.GammaBase)
	setStr(&cfg.Storage.DSN, d.Storage.DSN)
	setStr(&cfg.Server.Addr, d.Server.Addr)
	setStr(&cfg.Log.Level, d.Log.Level)
	setStr(&cfg.Log.Format, d.Log.Format)

	setPos(&cfg.API.TimeoutSeconds, d.API.TimeoutSeconds)
	setPos(&cfg.API.MarketLimit, d.API.MarketLimit)
	setPos(&cfg.Ranking.TimeoutSeconds, d.Ranking.TimeoutSeconds)
	setPos(&cfg.Cache.QuoteTTLSeconds, d.Cache.QuoteTTLSeconds)
	setPos(&cfg.Trading.MaxConflictRetries, d.Trading.MaxConflictRetries)
	setPos(&cfg.Trading.MaxPriceAgeSeconds, d.Trading.MaxPriceAgeSeconds)
	setPos(&cfg.Trading.PriceWorkers, d.Trading.PriceWorkers)
	setPos(&cfg.Trading.CallTimeoutSeconds, d.Trading.CallTimeoutSeconds)

	if cfg.MarketFilters.ExcludedCategories == nil {
		cfg.MarketFilters.ExcludedCategories = d.MarketFilters.ExcludedCategories
	}
	if cfg.Workflows.Fake.Enabled == nil {
		cfg.Workflows.Fake.Enabled = d.Workflows.Fake.Enabled
	}
	if cfg.Workflows.Real.Enabled == nil {
		cfg.Workflows.Real.Enabled = d.Workflows.Real.Enabled
	}
}

// Validate rechaza configuraciones que harían operar fuera de los límites.
func (c *Config) Validate() error {
	t := c.Trading
	switch {
	case !finite(t.MaxBetAmount) || t.MaxBetAmount <= 0:
		return domain.NewValidationError("trading.max_bet_amount", "must be > 0, got %v", t.MaxBetAmount)
	case !finite(t.MinBalanceToTrade) || t.MinBalanceToTrade < 0:
		return domain.NewValidationError("trading.min_balance_to_trade", "must be >= 0, got %v", t.MinBalanceToTrade)
	case t.MaxPositions < 1:
		return domain.NewValidationError("trading.max_positions", "must be >= 1, got %d", t.MaxPositions)
	case !finite(t.StopLossPercent) || t.StopLossPercent >= 0:
		return domain.NewValidationError("trading.stop_loss_percent", "must be < 0, got %v", t.StopLossPercent)
	case !finite(t.TakeProfitPercent) || t.TakeProfitPercent <= 0:
		return domain.NewValidationError("trading.take_profit_percent", "must be > 0, got %v", t.TakeProfitPercent)
	}

	f := c.MarketFilters
	switch {
	case f.MinVolume < 0:
		return domain.NewValidationError("market_filters.min_volume", "must be >= 0, got %v", f.MinVolume)
	case f.MinLiquidity < 0:
		return domain.NewValidationError("market_filters.min_liquidity", "must be >= 0, got %v", f.MinLiquidity)
	case f.MaxTimeToResolutionHours <= 0:
		return domain.NewValidationError("market_filters.max_time_to_resolution_hours", "must be > 0, got %v", f.MaxTimeToResolutionHours)
	case f.MinTimeToResolutionMinutes < 0:
		return domain.NewValidationError("market_filters.min_time_to_resolution_minutes", "must be >= 0, got %v", f.MinTimeToResolutionMinutes)
	case f.MinPrice < 0 || f.MaxPrice > 1 || f.MinPrice > f.MaxPrice:
		return domain.NewValidationError("market_filters.price", "band [%v, %v] must lie within [0, 1]", f.MinPrice, f.MaxPrice)
	}

	s := c.Suggestions
	if s.MaxSuggestions < 1 {
		return domain.NewValidationError("suggestions.max_suggestions", "must be >= 1, got %d", s.MaxSuggestions)
	}
	if s.ConfidenceThreshold < 0 || s.ConfidenceThreshold > 1 {
		return domain.NewValidationError("suggestions.confidence_threshold", "must be in [0, 1], got %v", s.ConfidenceThreshold)
	}

	if c.Workflows.Fake.InitialBalance < 0 || c.Workflows.Real.InitialBalance < 0 {
		return domain.NewValidationError("workflows.initial_balance", "must be >= 0")
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return domain.NewValidationError("log.format", "must be text or json, got %q", c.Log.Format)
	}
	return nil
}

// Mode devuelve la configuración semilla del modo.
func (c *Config) Mode(m domain.Mode) ModeConfig {
	if m == domain.ModeReal {
		return c.Workflows.Real
	}
	return c.Workflows.Fake
}

// EnabledByDefault indica si el modo arranca habilitado cuando no hay estado persistido.
func (c *Config) EnabledByDefault(m domain.Mode) bool {
	mc := c.Mode(m)
	return mc.Enabled != nil && *mc.Enabled
}

// CallTimeout es el límite de cada llamada externa individual.
func (c *Config) CallTimeout() time.Duration {
	return time.Duration(c.Trading.CallTimeoutSeconds) * time.Second
}

// MaxPriceAge es la antigüedad máxima aceptada de una cotización.
func (c *Config) MaxPriceAge() time.Duration {
	return time.Duration(c.Trading.MaxPriceAgeSeconds) * time.Second
}

// QuoteTTL es el tiempo de vida de una cotización en caché.
func (c *Config) QuoteTTL() time.Duration {
	return time.Duration(c.Cache.QuoteTTLSeconds) * time.Second
}

// APITimeout es el timeout del cliente HTTP de mercados.
func (c *Config) APITimeout() time.Duration {
	return time.Duration(c.API.TimeoutSeconds) * time.Second
}

// RankingTimeout es el timeout del cliente HTTP de ranking.
func (c *Config) RankingTimeout() time.Duration {
	return time.Duration(c.Ranking.TimeoutSeconds) * time.Second
}

// Overrides son los argumentos explícitos de una invocación. Campos nil no cambian nada.
type Overrides struct {
	MaxBetAmount        *float64 `json:"max_bet_amount,omitempty"`
	MaxPositions        *int     `json:"max_positions,omitempty"`
	MinBalanceToTrade   *float64 `json:"min_balance_to_trade,omitempty"`
	StopLossPercent     *float64 `json:"stop_loss_percent,omitempty"`
	TakeProfitPercent   *float64 `json:"take_profit_percent,omitempty"`
	MaxSuggestions      *int     `json:"max_suggestions,omitempty"`
	ConfidenceThreshold *float64 `json:"confidence_threshold,omitempty"`
	ExcludedCategories  []string `json:"excluded_categories,omitempty"`
}

// Apply devuelve una copia de base con los overrides aplicados y validada.
// base no se modifica, así cada invocación resuelve su propia configuración.
func (o Overrides) Apply(base *Config) (*Config, error) {
	cfg := *base
	cfg.MarketFilters.ExcludedCategories = append([]string(nil), base.MarketFilters.ExcludedCategories...)

	if o.MaxBetAmount != nil {
		cfg.Trading.MaxBetAmount = *o.MaxBetAmount
	}
	if o.MaxPositions != nil {
		cfg.Trading.MaxPositions = *o.MaxPositions
	}
	if o.MinBalanceToTrade != nil {
		cfg.Trading.MinBalanceToTrade = *o.MinBalanceToTrade
	}
	if o.StopLossPercent != nil {
		cfg.Trading.StopLossPercent = *o.StopLossPercent
	}
	if o.TakeProfitPercent != nil {
		cfg.Trading.TakeProfitPercent = *o.TakeProfitPercent
	}
	if o.MaxSuggestions != nil {
		cfg.Suggestions.MaxSuggestions = *o.MaxSuggestions
	}
	if o.ConfidenceThreshold != nil {
		cfg.Suggestions.ConfidenceThreshold = *o.ConfidenceThreshold
	}
	if o.ExcludedCategories != nil {
		cats := make([]string, 0, len(o.ExcludedCategories))
		for _, c := range o.ExcludedCategories {
			if c = strings.TrimSpace(c); c != "" {
				cats = append(cats, c)
			}
		}
		cfg.MarketFilters.ExcludedCategories = cats
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config.Overrides.Apply: %w", err)
	}
	return &cfg, nil
}

func boolPtr(b bool) *bool { return &b }

func finite(f float64) bool { return !math.IsNaN(f) && !math.IsInf(f, 0) }
