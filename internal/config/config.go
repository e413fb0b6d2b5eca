package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config хранит настройки, общие для всех команд vodscrub.
type Config struct {
	FrameRate    float64 `yaml:"frame_rate"`
	Width        int     `yaml:"width"`
	Height       int     `yaml:"height"`
	JPEGQuality  int     `yaml:"jpeg_quality"`
	Workers      int     `yaml:"workers"`
	HeroesFile   string  `yaml:"heroes_file"`
	Listen       string  `yaml:"listen"`
	PushInterval int     `yaml:"push_interval_ms"`
	LogLevel     string  `yaml:"log_level"`
	ExportDSN    string  `yaml:"export_dsn"`
}

// DefaultConfig возвращает настройки на случай, когда файла конфигурации нет.
func DefaultConfig() Config {
	return Config{
		FrameRate:    10,
		Width:        1280,
		Height:       720,
		JPEGQuality:  85,
		Workers:      0,
		HeroesFile:   "heroes.json",
		Listen:       "127.0.0.1:8090",
		PushInterval: 250,
		LogLevel:     "info",
	}
}

// PushEvery возвращает интервал рассылки подписей живого сервера.
func (c Config) PushEvery() time.Duration {
	return time.Duration(c.PushInterval) * time.Millisecond
}

// Load читает yaml-файл настроек, затем применяет переменные окружения
// VODSCRUB_*. Перед этим загружается .env из рабочей папки, если он есть.
// Без файла настроек используются значения по умолчанию.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	cfg := DefaultConfig()
	if path != "" {
		content, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return Config{}, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(content, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}

	defaults := DefaultConfig()
	if cfg.FrameRate <= 0 {
		cfg.FrameRate = defaults.FrameRate
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		cfg.Width, cfg.Height = defaults.Width, defaults.Height
	}
	if cfg.JPEGQuality <= 0 || cfg.JPEGQuality > 100 {
		cfg.JPEGQuality = defaults.JPEGQuality
	}
	if cfg.Workers < 0 {
		cfg.Workers = 0
	}
	if cfg.PushInterval <= 0 {
		cfg.PushInterval = defaults.PushInterval
	}
	if cfg.Listen == "" {
		cfg.Listen = defaults.Listen
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	strVars := map[string]*string{
		"VODSCRUB_HEROES_FILE": &cfg.HeroesFile,
		"VODSCRUB_LISTEN":      &cfg.Listen,
		"VODSCRUB_LOG_LEVEL":   &cfg.LogLevel,
		"VODSCRUB_EXPORT_DSN":  &cfg.ExportDSN,
	}
	for name, dst := range strVars {
		if v, ok := os.LookupEnv(name); ok {
			*dst = v
		}
	}

	intVars := map[string]*int{
		"VODSCRUB_WIDTH":            &cfg.Width,
		"VODSCRUB_HEIGHT":           &cfg.Height,
		"VODSCRUB_JPEG_QUALITY":     &cfg.JPEGQuality,
		"VODSCRUB_WORKERS":          &cfg.Workers,
		"VODSCRUB_PUSH_INTERVAL_MS": &cfg.PushInterval,
	}
	for name, dst := range intVars {
		v, ok := os.LookupEnv(name)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		*dst = n
	}

	if v, ok := os.LookupEnv("VODSCRUB_FRAME_RATE"); ok {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return fmt.Errorf("VODSCRUB_FRAME_RATE: %w", err)
		}
		cfg.FrameRate = f
	}
	return nil
}

// ParseSize разбирает размер кадра вида "1280x720".
func ParseSize(s string) (int, int, error) {
	parts := strings.Split(strings.ToLower(s), "x")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid size format %q", s)
	}
	w, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid size width %q", s)
	}
	h, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid size height %q", s)
	}
	if w <= 0 || h <= 0 {
		return 0, 0, fmt.Errorf("invalid size %q", s)
	}
	return w, h, nil
}
