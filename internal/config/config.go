package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Defaults shared with the components that consume them.
const (
	DefaultBoxAddress = "192.168.1.102"
	DefaultBoxPort    = 7766
)

// Config holds daemon configuration loaded from YAML, .env and the environment.
type Config struct {
	TestingMode bool

	ServerPort     string
	RequestTimeout time.Duration

	BoxPort        int
	CommandTimeout time.Duration

	RepeatDelay    time.Duration
	RepeatInterval time.Duration
	GestureAreaTop float64

	AQIURL          string
	HeWeatherURL    string
	HeWeatherAPIKey string
	WeatherTimeout  time.Duration
	// WeatherQuotaPerDay caps provider queries; 0 disables the guard.
	WeatherQuotaPerDay int
	WeatherQuotaBurst  int

	RateLimitRPS   int
	RateLimitBurst int

	ReachabilityInterval time.Duration
	CellularPrefixes     []string

	LoopQueueSize int
	EventBuffer   int

	HealthWindow     time.Duration
	DegradedErrorPct int

	ShutdownTimeout time.Duration

	Settings Settings
}

// Settings is the user-facing configuration surface. It is re-read on reload.
type Settings struct {
	BoxAddress          string `yaml:"box_ip_address" json:"boxAddress"`
	DoubleTap           bool   `yaml:"double_tap" json:"doubleTap"`
	Forecast            bool   `yaml:"weather_forecast" json:"forecast"`
	DetailForecast      bool   `yaml:"weather_detail_forecast" json:"detailForecast"`
	Alarm               bool   `yaml:"weather_alarm" json:"alarm"` // reserved
	Location            int    `yaml:"location" json:"location"`
	DisableErrorMessage bool   `yaml:"disable_error_message" json:"disableErrorMessage"`
}

// TapCount is the number of taps that sends OK.
func (s Settings) TapCount() int {
	if s.DoubleTap {
		return 2
	}
	return 1
}

type fileConfig struct {
	TestingMode *bool `yaml:"testing_mode"`

	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	Request struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"request"`

	Box struct {
		Port    int    `yaml:"port"`
		Timeout string `yaml:"timeout"`
	} `yaml:"box"`

	Gestures struct {
		RepeatDelay    string  `yaml:"repeat_delay"`
		RepeatInterval string  `yaml:"repeat_interval"`
		AreaTop        float64 `yaml:"area_top"`
	} `yaml:"gestures"`

	Weather struct {
		AQIURL       string `yaml:"aqi_url"`
		HeWeatherURL string `yaml:"heweather_url"`
		Timeout      string `yaml:"timeout"`
		QuotaPerDay  int    `yaml:"quota_per_day"`
		QuotaBurst   int    `yaml:"quota_burst"`
	} `yaml:"weather"`

	Reliability struct {
		RateLimitRPS   int `yaml:"rate_limit_rps"`
		RateLimitBurst int `yaml:"rate_limit_burst"`
	} `yaml:"reliability"`

	Reachability struct {
		Interval         string   `yaml:"interval"`
		CellularPrefixes []string `yaml:"cellular_prefixes"`
	} `yaml:"reachability"`

	Loop struct {
		QueueSize   int `yaml:"queue_size"`
		EventBuffer int `yaml:"event_buffer"`
	} `yaml:"loop"`

	Health struct {
		Window           string `yaml:"window"`
		DegradedErrorPct int    `yaml:"degraded_error_pct"`
	} `yaml:"health"`

	Shutdown struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"shutdown"`

	Settings *Settings `yaml:"settings"`
}

type secretsFile struct {
	HeWeatherAPIKey string `yaml:"heweather_api_key"`
}

// Load reads configuration from config/{ENV_NAME}.yaml (default dev) and config/secrets.yaml.
// A .env file in the working directory is loaded first; variables already set win.
// The HeWeather key comes from HEWEATHER_API_KEY or the secrets file. Call from project root.
func Load() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	if err := loadDotEnv(cwd); err != nil {
		return nil, err
	}

	fc, err := readFileConfig(cwd)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		TestingMode: false,
	}
	if fc.TestingMode != nil {
		cfg.TestingMode = *fc.TestingMode
	}

	cfg.ServerPort = strings.TrimSpace(os.Getenv("SERVER_PORT"))
	if cfg.ServerPort == "" {
		cfg.ServerPort = fc.Server.Port
	}
	if cfg.ServerPort == "" {
		cfg.ServerPort = "8080"
	}
	cfg.RequestTimeout = parseDuration(fc.Request.Timeout, 5*time.Second)

	cfg.BoxPort = fc.Box.Port
	if cfg.BoxPort <= 0 {
		cfg.BoxPort = DefaultBoxPort
	}
	cfg.CommandTimeout = parseDurationOrZero(fc.Box.Timeout, time.Second)

	cfg.RepeatDelay = parseDuration(fc.Gestures.RepeatDelay, 500*time.Millisecond)
	cfg.RepeatInterval = parseDuration(fc.Gestures.RepeatInterval, 200*time.Millisecond)
	cfg.GestureAreaTop = fc.Gestures.AreaTop

	cfg.HeWeatherAPIKey, err = loadAPIKey(cwd)
	if err != nil {
		return nil, err
	}
	cfg.AQIURL = strings.TrimSpace(fc.Weather.AQIURL)
	if cfg.AQIURL == "" {
		cfg.AQIURL = "https://api.waqi.info"
	}
	cfg.HeWeatherURL = strings.TrimSpace(fc.Weather.HeWeatherURL)
	if cfg.HeWeatherURL == "" {
		cfg.HeWeatherURL = "https://free-api.heweather.com"
	}
	cfg.WeatherTimeout = parseDurationOrZero(fc.Weather.Timeout, 10*time.Second)
	cfg.WeatherQuotaPerDay = fc.Weather.QuotaPerDay
	if cfg.WeatherQuotaPerDay < 0 {
		cfg.WeatherQuotaPerDay = 0
	}
	cfg.WeatherQuotaBurst = fc.Weather.QuotaBurst
	if cfg.WeatherQuotaBurst <= 0 {
		cfg.WeatherQuotaBurst = 10
	}

	cfg.RateLimitRPS = fc.Reliability.RateLimitRPS
	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = 2
	}
	cfg.RateLimitBurst = fc.Reliability.RateLimitBurst
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 5
	}

	cfg.ReachabilityInterval = parseDuration(fc.Reachability.Interval, 5*time.Second)
	cfg.CellularPrefixes = fc.Reachability.CellularPrefixes

	cfg.LoopQueueSize = fc.Loop.QueueSize
	if cfg.LoopQueueSize <= 0 {
		cfg.LoopQueueSize = 256
	}
	cfg.EventBuffer = fc.Loop.EventBuffer
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = 16
	}

	cfg.HealthWindow = parseDuration(fc.Health.Window, 60*time.Second)
	cfg.DegradedErrorPct = fc.Health.DegradedErrorPct
	if cfg.DegradedErrorPct <= 0 {
		cfg.DegradedErrorPct = 50
	}

	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 10*time.Second)

	cfg.Settings = settingsFrom(fc)

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadSettings re-reads only the user settings. Used on reload.
func LoadSettings() (Settings, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return Settings{}, fmt.Errorf("config: get working directory: %w", err)
	}
	fc, err := readFileConfig(cwd)
	if err != nil {
		return Settings{}, err
	}
	return settingsFrom(fc), nil
}

func readFileConfig(cwd string) (*fileConfig, error) {
	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}
	configPath := filepath.Join(cwd, "config", env+".yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	return &fc, nil
}

// settingsFrom applies defaults and the BOX_IP_ADDRESS override to the file's settings section.
func settingsFrom(fc *fileConfig) Settings {
	var s Settings
	if fc.Settings != nil {
		s = *fc.Settings
	}
	s.BoxAddress = strings.TrimSpace(s.BoxAddress)
	if v := strings.TrimSpace(os.Getenv("BOX_IP_ADDRESS")); v != "" {
		s.BoxAddress = v
	}
	if s.BoxAddress == "" {
		s.BoxAddress = DefaultBoxAddress
	}
	return s
}

func loadDotEnv(cwd string) error {
	err := godotenv.Load(filepath.Join(cwd, ".env"))
	if err == nil || errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("load .env: %w", err)
}

func loadAPIKey(cwd string) (string, error) {
	if key := strings.TrimSpace(os.Getenv("HEWEATHER_API_KEY")); key != "" {
		return key, nil
	}
	secretsPath := filepath.Join(cwd, "config", "secrets.yaml")
	data, err := os.ReadFile(secretsPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("read secrets file: %w", err)
	}
	var sec secretsFile
	if err := yaml.Unmarshal(data, &sec); err != nil {
		return "", fmt.Errorf("parse secrets file: %w", err)
	}
	return strings.TrimSpace(sec.HeWeatherAPIKey), nil
}

// parseDuration parses a duration string and returns defaultVal if parsing fails or result is <= 0.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	d := parseDurationOrZero(s, defaultVal)
	if d <= 0 {
		return defaultVal
	}
	return d
}

// parseDurationOrZero parses a duration string, returning defaultVal on empty string or parse error.
// Returns zero or negative durations as-is (validate rejects them where they matter).
func parseDurationOrZero(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}

// validate performs post-load validation. Timeouts that bound a network call must be positive,
// and the request timeout is raised above the box timeout if needed.
func validate(cfg *Config) error {
	if cfg.CommandTimeout <= 0 {
		return fmt.Errorf("box.timeout must be positive")
	}
	if cfg.WeatherTimeout <= 0 {
		return fmt.Errorf("weather.timeout must be positive")
	}
	if cfg.RequestTimeout <= cfg.CommandTimeout {
		cfg.RequestTimeout = cfg.CommandTimeout + time.Second
	}
	if cfg.BoxPort > 65535 {
		return fmt.Errorf("box.port out of range: %d", cfg.BoxPort)
	}
	if cfg.DegradedErrorPct > 100 {
		return fmt.Errorf("health.degraded_error_pct must be <= 100, got %d", cfg.DegradedErrorPct)
	}
	return nil
}
