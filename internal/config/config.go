package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/caarlos0/env/v11"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"github.com/tiroq/linereveal/internal/voice"
)

// ErrUnknownLocale is returned when the configured locale has no default
// reveal rate.
var ErrUnknownLocale = errors.New("locale has no default reveal rate")

// DefaultPath is the fallback config shipped with the repository.
const DefaultPath = "configs/default-config.yaml"

// Config is the engine configuration.
type Config struct {
	Locale       string            `yaml:"locale" env:"REVEAL_LOCALE"`
	DefaultRates map[string]int    `yaml:"default_rates"`
	TickHz       int               `yaml:"tick_hz" env:"REVEAL_TICK_HZ"`
	Voices       map[string]string `yaml:"voices"`
	BridgeURL    string            `yaml:"bridge_url" env:"REVEAL_BRIDGE_URL"`
	BridgeToken  string            `yaml:"bridge_token" env:"REVEAL_BRIDGE_TOKEN"`
	Script       string            `yaml:"script" env:"REVEAL_SCRIPT"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Locale:       "en-US",
		DefaultRates: map[string]int{"en-US": 60, "ja-JP": 30},
		TickHz:       60,
		Voices:       map[string]string{},
	}
}

// UserPath is ~/.config/linereveal/config.yaml.
func UserPath() string {
	return filepath.Join(os.Getenv("HOME"), ".config", "linereveal", "config.yaml")
}

// Load reads path, or when path is empty the user config falling back to
// DefaultPath and then to Default. Environment variables override file
// values. The result is validated.
func Load(path string) (*Config, error) {
	cfg, err := read(path)
	if err != nil {
		return nil, err
	}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func read(path string) (*Config, error) {
	candidates := []string{path}
	if path == "" {
		candidates = []string{UserPath(), DefaultPath}
	}

	for _, p := range candidates {
		data, err := os.ReadFile(p)
		if err != nil {
			if os.IsNotExist(err) && path == "" {
				continue
			}
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg := Default()
		cfg.DefaultRates, cfg.Voices = nil, nil
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", p, err)
		}
		if cfg.DefaultRates == nil {
			cfg.DefaultRates = Default().DefaultRates
		}
		return cfg, nil
	}
	return Default(), nil
}

// Save writes cfg to path as YAML, creating parent directories.
func Save(cfg *Config, path string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Validate checks the configuration. A locale without a rate entry is fatal.
func (c *Config) Validate() error {
	if c.TickHz < 1 || c.TickHz > 240 {
		return fmt.Errorf("tick_hz must be between 1 and 240, got %d", c.TickHz)
	}
	rates, err := c.Rates()
	if err != nil {
		return err
	}
	if _, err := rates.Lookup(c.Locale); err != nil {
		return err
	}
	return nil
}

// Rates builds the locale rate table.
func (c *Config) Rates() (RateTable, error) {
	return NewRateTable(c.DefaultRates)
}

// DefaultRate is the reveal rate of the configured locale.
func (c *Config) DefaultRate() (int, error) {
	rates, err := c.Rates()
	if err != nil {
		return 0, err
	}
	return rates.Lookup(c.Locale)
}

// VoiceBank maps speakers to clips named after the speaker.
func (c *Config) VoiceBank() voice.MapBank {
	bank := make(voice.MapBank, len(c.Voices))
	for speaker, path := range c.Voices {
		bank[speaker] = voice.Clip{Name: speaker, Path: path}
	}
	return bank
}

// RateTable maps canonical language tags to reveal rates.
type RateTable map[language.Tag]int

// NewRateTable parses a locale -> rate map. Locales must be valid BCP 47
// tags and rates positive.
func NewRateTable(raw map[string]int) (RateTable, error) {
	if len(raw) == 0 {
		return nil, errors.New("default_rates must not be empty")
	}
	t := make(RateTable, len(raw))
	for locale, rate := range raw {
		tag, err := language.Parse(locale)
		if err != nil {
			return nil, fmt.Errorf("default_rates: parse locale tag %q: %w", locale, err)
		}
		if rate <= 0 {
			return nil, fmt.Errorf("default_rates: rate for %s must be positive, got %d", locale, rate)
		}
		if _, dup := t[tag]; dup {
			return nil, fmt.Errorf("default_rates: %s listed twice", tag)
		}
		t[tag] = rate
	}
	return t, nil
}

// Lookup returns the rate of locale. There is no fallback to a parent
// language.
func (t RateTable) Lookup(locale string) (int, error) {
	tag, err := language.Parse(locale)
	if err != nil {
		return 0, fmt.Errorf("%w: parse locale tag %q: %v", ErrUnknownLocale, locale, err)
	}
	rate, ok := t[tag]
	if !ok {
		return 0, fmt.Errorf("%w: %s (known: %v)", ErrUnknownLocale, tag, t.Locales())
	}
	return rate, nil
}

// Locales lists the table's locales, sorted.
func (t RateTable) Locales() []string {
	out := make([]string, 0, len(t))
	for tag := range t {
		out = append(out, tag.String())
	}
	sort.Strings(out)
	return out
}
