package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config es la configuración completa del monitor.
type Config struct {
	Monitor   MonitorConfig   `yaml:"monitor"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	API       APIConfig       `yaml:"api"`
	Storage   StorageConfig   `yaml:"storage"`
	Telegram  TelegramConfig  `yaml:"telegram"`
	Log       LogConfig       `yaml:"log"`
}

// MonitorConfig controla el ciclo de vida de los slots y los trades simulados.
type MonitorConfig struct {
	MaxConcurrentSlots int      `yaml:"max_concurrent_slots"`
	WindowSize         int      `yaml:"window_size"`
	TradeAmountUSD     float64  `yaml:"trade_amount_usd"`
	LimitOffset        float64  `yaml:"limit_offset"`
	SlotMinutes        int      `yaml:"slot_minutes"`
	TickSeconds        int      `yaml:"tick_seconds"` // cadencia del queue manager
	StartingEquity     float64  `yaml:"starting_equity"`
	Assets             []string `yaml:"assets"`
}

// DiscoveryConfig controla el fetcher de mercados upcoming.
type DiscoveryConfig struct {
	MarketsFile     string `yaml:"markets_file"`
	SlotCount       int    `yaml:"slot_count"`       // slots horarios a descubrir por pasada
	IntervalMinutes int    `yaml:"interval_minutes"` // refresco en background
}

// APIConfig contiene los base URLs de las APIs.
type APIConfig struct {
	CLOBBase  string `yaml:"clob_base"`
	GammaBase string `yaml:"gamma_base"`
	WSURL     string `yaml:"ws_url"`
}

// StorageConfig controla dónde se persisten los datos.
type StorageConfig struct {
	DSN string `yaml:"dsn"` // ruta al archivo SQLite, o ":memory:"
}

// TelegramConfig controla las alertas. Si el token está vacío, no se envían.
type TelegramConfig struct {
	BotToken string `yaml:"bot_token"`
	ChatID   string `yaml:"chat_id"` // vacío → auto-detect vía getUpdates
}

// LogConfig controla el formato y nivel de logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load carga la configuración desde el archivo YAML y el archivo .env si existe.
// Los valores del .env sobreescriben los del YAML para las keys que correspondan.
func Load(path string) (*Config, error) {
	// Cargar .env si existe (silencia error si no hay archivo)
	_ = godotenv.Load()

	// Sin archivo se corre con defaults: todas las keys son opcionales.
	var cfg Config
	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	return &cfg, nil
}

// TickInterval devuelve la cadencia del queue manager como time.Duration.
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.Monitor.TickSeconds) * time.Second
}

// SlotDuration devuelve la duración de un slot como time.Duration.
func (c *Config) SlotDuration() time.Duration {
	return time.Duration(c.Monitor.SlotMinutes) * time.Minute
}

// DiscoveryInterval devuelve el intervalo de refresco del fetcher.
func (c *Config) DiscoveryInterval() time.Duration {
	return time.Duration(c.Discovery.IntervalMinutes) * time.Minute
}

// applyEnvOverrides sobreescribe valores con variables de entorno si están presentes.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		cfg.Telegram.ChatID = v
	}
}

// setDefaults asegura que los valores requeridos tengan valores sensatos.
func setDefaults(cfg *Config) {
	if cfg.Monitor.MaxConcurrentSlots <= 0 {
		cfg.Monitor.MaxConcurrentSlots = 2
	}
	if cfg.Monitor.WindowSize <= 0 {
		cfg.Monitor.WindowSize = 5
	}
	if cfg.Monitor.TradeAmountUSD <= 0 {
		cfg.Monitor.TradeAmountUSD = 30
	}
	if cfg.Monitor.LimitOffset <= 0 {
		cfg.Monitor.LimitOffset = 0.05
	}
	if cfg.Monitor.SlotMinutes <= 0 {
		cfg.Monitor.SlotMinutes = 60
	}
	if cfg.Monitor.TickSeconds <= 0 {
		cfg.Monitor.TickSeconds = 5
	}
	if cfg.Monitor.StartingEquity <= 0 {
		cfg.Monitor.StartingEquity = 1000
	}
	if len(cfg.Monitor.Assets) == 0 {
		cfg.Monitor.Assets = []string{"BTC", "ETH", "SOL", "XRP"}
	}
	if cfg.Discovery.MarketsFile == "" {
		cfg.Discovery.MarketsFile = "upcoming_markets.txt"
	}
	if cfg.Discovery.SlotCount <= 0 {
		cfg.Discovery.SlotCount = 10
	}
	if cfg.Discovery.IntervalMinutes <= 0 {
		cfg.Discovery.IntervalMinutes = 60
	}
	if cfg.API.CLOBBase == "" {
		cfg.API.CLOBBase = "https://clob.polymarket.com"
	}
	if cfg.API.GammaBase == "" {
		cfg.API.GammaBase = "https://gamma-api.polymarket.com"
	}
	if cfg.API.WSURL == "" {
		cfg.API.WSURL = "wss://ws-subscriptions-clob.polymarket.com/ws/market"
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "slotbot.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}
