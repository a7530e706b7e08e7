package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"
	_ "time/tzdata"

	"gopkg.in/yaml.v3"

	"bandbot/internal/indicators"
	"bandbot/internal/session"
)

type Mode string

const (
	// ModePaper evaluates live ticks and fills orders on the paper broker.
	ModePaper Mode = "paper"
	// ModeLive routes orders to the Alpaca trading API.
	ModeLive Mode = "live"
)

const (
	FeedAlpaca    = "alpaca"
	FeedWebsocket = "websocket"
	FeedStub      = "stub"
)

type Instrument struct {
	Token    string `yaml:"token"`
	Symbol   string `yaml:"symbol"`
	Quantity int    `yaml:"quantity"`
}

type IndicatorConfig struct {
	ShortPeriod int     `yaml:"short_period"`
	LongPeriod  int     `yaml:"long_period"`
	BandPeriod  int     `yaml:"band_period"`
	BandStdDev  float64 `yaml:"band_std_dev"`
	RSIPeriod   int     `yaml:"rsi_period"`
}

type TradingConfig struct {
	Oversold        float64       `yaml:"oversold"`
	Overbought      float64       `yaml:"overbought"`
	Cooldown        time.Duration `yaml:"cooldown"`
	MinHold         time.Duration `yaml:"min_hold"`
	CooldownOnEntry bool          `yaml:"cooldown_on_entry"`
	KillSwitch      bool          `yaml:"kill_switch"`
}

type SessionConfig struct {
	Timezone         string        `yaml:"timezone"`
	Open             string        `yaml:"open"`
	OpeningWindowEnd string        `yaml:"opening_window_end"`
	Close            string        `yaml:"close"`
	OpeningThreshold float64       `yaml:"opening_threshold"`
	RegularThreshold float64       `yaml:"regular_threshold"`
	CheckInterval    time.Duration `yaml:"check_interval"`
}

type FeedConfig struct {
	Provider     string        `yaml:"provider"`
	URL          string        `yaml:"url"`
	AlpacaFeed   string        `yaml:"alpaca_feed"`
	StubInterval time.Duration `yaml:"stub_interval"`
}

type BrokerConfig struct {
	BaseURL      string        `yaml:"base_url"`
	OrderTimeout time.Duration `yaml:"order_timeout"`
	APIKey       string        `yaml:"-"`
	APISecret    string        `yaml:"-"`
}

type AuditConfig struct {
	Dir           string        `yaml:"dir"`
	QueueSize     int           `yaml:"queue_size"`
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"-"`
	RedisDB       int           `yaml:"redis_db"`
	RedisPrefix   string        `yaml:"redis_prefix"`
	RedisTTL      time.Duration `yaml:"redis_ttl"`
	PostgresDSN   string        `yaml:"-"`
}

type Config struct {
	Mode           Mode            `yaml:"mode"`
	LogLevel       string          `yaml:"log_level"`
	LogFormat      string          `yaml:"log_format"`
	MetricsAddr    string          `yaml:"metrics_addr"`
	CheckpointPath string          `yaml:"checkpoint_path"`
	Instruments    []Instrument    `yaml:"instruments"`
	Indicators     IndicatorConfig `yaml:"indicators"`
	Trading        TradingConfig   `yaml:"trading"`
	Session        SessionConfig   `yaml:"session"`
	Feed           FeedConfig      `yaml:"feed"`
	Broker         BrokerConfig    `yaml:"broker"`
	Audit          AuditConfig     `yaml:"audit"`
}

// Default returns the settings the bot was tuned with: EMA 9/21, Bollinger
// 20x2, RSI 14, 90s cooldown, 3m minimum hold and a 15:05 IST cutoff.
func Default() Config {
	return Config{
		Mode:           ModePaper,
		LogLevel:       "info",
		LogFormat:      "json",
		MetricsAddr:    ":9102",
		CheckpointPath: "checkpoint.json",
		Indicators: IndicatorConfig{
			ShortPeriod: 9,
			LongPeriod:  21,
			BandPeriod:  20,
			BandStdDev:  2,
			RSIPeriod:   14,
		},
		Trading: TradingConfig{
			Oversold:   40,
			Overbought: 60,
			Cooldown:   90 * time.Second,
			MinHold:    3 * time.Minute,
		},
		Session: SessionConfig{
			Timezone:         "Asia/Kolkata",
			Open:             "09:15",
			OpeningWindowEnd: "09:45",
			Close:            "15:05",
			OpeningThreshold: 0.5,
			RegularThreshold: 0.4,
			CheckInterval:    15 * time.Second,
		},
		Feed: FeedConfig{
			Provider:     FeedStub,
			AlpacaFeed:   "iex",
			StubInterval: time.Second,
		},
		Broker: BrokerConfig{
			BaseURL:      "https://paper-api.alpaca.markets",
			OrderTimeout: 10 * time.Second,
		},
		Audit: AuditConfig{
			Dir:         "audit",
			QueueSize:   256,
			RedisPrefix: "bandbot",
		},
	}
}

// Load resolves configuration from defaults, the YAML file named by
// --config, a .env file, the environment and finally command line flags.
func Load() (Config, error) {
	var (
		configPath     string
		envFile        string
		mode           string
		feed           string
		logLevel       string
		metricsAddr    string
		checkpointPath string
		auditDir       string
		killSwitch     bool
	)

	flag.StringVar(&configPath, "config", "", "path to YAML config file")
	flag.StringVar(&envFile, "env-file", ".env", "optional dotenv file")
	flag.StringVar(&mode, "mode", "", "run mode: paper or live")
	flag.StringVar(&feed, "feed", "", "tick feed: alpaca, websocket or stub")
	flag.StringVar(&logLevel, "log-level", "", "log level")
	flag.StringVar(&metricsAddr, "metrics-addr", "", "prometheus listen address")
	flag.StringVar(&checkpointPath, "checkpoint-path", "", "ledger checkpoint file")
	flag.StringVar(&auditDir, "audit-dir", "", "directory for daily audit CSV files")
	flag.BoolVar(&killSwitch, "kill-switch", false, "if true, never place orders")
	flag.Parse()

	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })

	if err := loadDotEnvIfPresent(envFile); err != nil {
		return Config{}, err
	}

	cfg := Default()
	if configPath != "" {
		if err := loadFile(configPath, &cfg); err != nil {
			return cfg, err
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}

	if set["mode"] {
		cfg.Mode = Mode(mode)
	}
	if set["feed"] {
		cfg.Feed.Provider = feed
	}
	if set["log-level"] {
		cfg.LogLevel = logLevel
	}
	if set["metrics-addr"] {
		cfg.MetricsAddr = metricsAddr
	}
	if set["checkpoint-path"] {
		cfg.CheckpointPath = checkpointPath
	}
	if set["audit-dir"] {
		cfg.Audit.Dir = auditDir
	}
	if set["kill-switch"] {
		cfg.Trading.KillSwitch = killSwitch
	}

	normalize(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil {
		return fmt.Errorf("decode yaml %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	cfg.Broker.APIKey = os.Getenv("APCA_API_KEY_ID")
	cfg.Broker.APISecret = os.Getenv("APCA_API_SECRET_KEY")
	cfg.Mode = Mode(getString("BOT_MODE", string(cfg.Mode)))
	cfg.LogLevel = getString("LOG_LEVEL", cfg.LogLevel)
	cfg.Feed.URL = getString("FEED_URL", cfg.Feed.URL)
	cfg.Audit.PostgresDSN = getString("AUDIT_POSTGRES_DSN", cfg.Audit.PostgresDSN)
	cfg.Audit.RedisAddr = getString("AUDIT_REDIS_ADDR", cfg.Audit.RedisAddr)
	cfg.Audit.RedisPassword = getString("AUDIT_REDIS_PASSWORD", cfg.Audit.RedisPassword)

	redisDB, err := getInt("AUDIT_REDIS_DB", cfg.Audit.RedisDB)
	if err != nil {
		return fmt.Errorf("parse AUDIT_REDIS_DB: %w", err)
	}
	cfg.Audit.RedisDB = redisDB
	return nil
}

func getString(key, fallback string) string {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback
	}
	return value
}

func getInt(key string, fallback int) (int, error) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("convert %s value %q to int: %w", key, value, err)
	}
	return parsed, nil
}

func normalize(cfg *Config) {
	for i := range cfg.Instruments {
		if cfg.Instruments[i].Quantity == 0 {
			cfg.Instruments[i].Quantity = 1
		}
	}
}

// IndicatorParams returns the indicator periods as indicators.Params.
func (c Config) IndicatorParams() indicators.Params {
	return indicators.Params{
		ShortPeriod:    c.Indicators.ShortPeriod,
		LongPeriod:     c.Indicators.LongPeriod,
		BandPeriod:     c.Indicators.BandPeriod,
		BandStdDev:     c.Indicators.BandStdDev,
		OscillatorSpan: c.Indicators.RSIPeriod,
	}
}

// Calendar builds the session calendar.
func (c Config) Calendar() (session.Calendar, error) {
	loc, err := time.LoadLocation(c.Session.Timezone)
	if err != nil {
		return session.Calendar{}, fmt.Errorf("load timezone %q: %w", c.Session.Timezone, err)
	}
	open, err := session.ParseClock(c.Session.Open)
	if err != nil {
		return session.Calendar{}, fmt.Errorf("session.open: %w", err)
	}
	windowEnd, err := session.ParseClock(c.Session.OpeningWindowEnd)
	if err != nil {
		return session.Calendar{}, fmt.Errorf("session.opening_window_end: %w", err)
	}
	closeAt, err := session.ParseClock(c.Session.Close)
	if err != nil {
		return session.Calendar{}, fmt.Errorf("session.close: %w", err)
	}
	if open > windowEnd || windowEnd > closeAt {
		return session.Calendar{}, fmt.Errorf("session clocks must satisfy open <= opening_window_end <= close, got %s/%s/%s", open, windowEnd, closeAt)
	}
	return session.Calendar{
		Location:         loc,
		Open:             open,
		OpeningWindowEnd: windowEnd,
		Close:            closeAt,
		OpeningThreshold: c.Session.OpeningThreshold,
		RegularThreshold: c.Session.RegularThreshold,
	}, nil
}

func validate(cfg Config) error {
	if cfg.Mode != ModePaper && cfg.Mode != ModeLive {
		return fmt.Errorf("invalid mode: %s", cfg.Mode)
	}
	if cfg.Mode == ModeLive && (cfg.Broker.APIKey == "" || cfg.Broker.APISecret == "") {
		return errors.New("APCA_API_KEY_ID and APCA_API_SECRET_KEY are required in live mode")
	}
	if err := validateInstruments(cfg.Instruments); err != nil {
		return err
	}

	ind := cfg.Indicators
	if ind.ShortPeriod <= 0 || ind.LongPeriod <= 0 || ind.RSIPeriod <= 0 {
		return errors.New("indicator periods must be > 0")
	}
	if ind.BandPeriod < 2 {
		return errors.New("indicators.band_period must be >= 2")
	}
	if ind.BandStdDev <= 0 {
		return errors.New("indicators.band_std_dev must be > 0")
	}
	window := cfg.IndicatorParams().WindowSize()
	if ind.ShortPeriod > window || ind.RSIPeriod+1 > window {
		return fmt.Errorf("short_period and rsi_period+1 must fit the %d-price window", window)
	}

	tr := cfg.Trading
	if tr.Oversold <= 0 || tr.Overbought >= 100 || tr.Oversold >= tr.Overbought {
		return errors.New("trading thresholds must satisfy 0 < oversold < overbought < 100")
	}
	if tr.Cooldown < 0 {
		return errors.New("trading.cooldown must be >= 0")
	}
	if tr.MinHold < 0 {
		return errors.New("trading.min_hold must be >= 0")
	}

	if cfg.Session.OpeningThreshold <= 0 || cfg.Session.RegularThreshold <= 0 {
		return errors.New("profit thresholds must be > 0")
	}
	if cfg.Session.CheckInterval <= 0 {
		return errors.New("session.check_interval must be > 0")
	}
	if _, err := cfg.Calendar(); err != nil {
		return err
	}

	switch cfg.Feed.Provider {
	case FeedAlpaca, FeedStub:
	case FeedWebsocket:
		if cfg.Feed.URL == "" {
			return errors.New("feed.url is required for the websocket feed")
		}
	default:
		return fmt.Errorf("invalid feed provider: %s", cfg.Feed.Provider)
	}
	if cfg.Broker.OrderTimeout <= 0 {
		return errors.New("broker.order_timeout must be > 0")
	}
	return nil
}

func validateInstruments(instruments []Instrument) error {
	if len(instruments) == 0 {
		return errors.New("at least one instrument is required")
	}
	tokens := make(map[string]struct{}, len(instruments))
	symbols := make(map[string]struct{}, len(instruments))
	for _, inst := range instruments {
		if inst.Token == "" || inst.Symbol == "" {
			return fmt.Errorf("instrument %q: token and symbol are required", inst.Token)
		}
		if _, dup := tokens[inst.Token]; dup {
			return fmt.Errorf("duplicate instrument token %q", inst.Token)
		}
		if _, dup := symbols[inst.Symbol]; dup {
			return fmt.Errorf("duplicate instrument symbol %q", inst.Symbol)
		}
		if inst.Quantity <= 0 {
			return fmt.Errorf("instrument %q: quantity must be > 0", inst.Token)
		}
		tokens[inst.Token] = struct{}{}
		symbols[inst.Symbol] = struct{}{}
	}
	return nil
}
