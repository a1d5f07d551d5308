package config

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	ProviderSTB = "STB"
	ProviderGMT = "GMT"
	ProviderWIC = "WIC"
)

const (
	UnknownCurrencyDefaultUSD = "default_usd"
	UnknownCurrencyReject     = "reject"
)

// Settings is an immutable snapshot of the operator-editable settings.
type Settings struct {
	Providers ProvidersSettings `mapstructure:"providers"`
	POS       POSSettings       `mapstructure:"pos"`
	Health    HealthSettings    `mapstructure:"health"`
}

type ProvidersSettings struct {
	FallbackBaseURL string           `mapstructure:"fallback_base_url"`
	STB             ProviderSettings `mapstructure:"stb"`
	GMT             ProviderSettings `mapstructure:"gmt"`
	WIC             ProviderSettings `mapstructure:"wic"`
}

type ProviderSettings struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type POSSettings struct {
	CurrencyUSDID   string `mapstructure:"currency_usd_id"`
	CurrencyEURID   string `mapstructure:"currency_eur_id"`
	CurrencyILSID   string `mapstructure:"currency_ils_id"`
	UserID          string `mapstructure:"user_id"`
	CashboxID       string `mapstructure:"cashbox_id"`
	UnknownCurrency string `mapstructure:"unknown_currency"`
}

type HealthSettings struct {
	Lookback time.Duration `mapstructure:"lookback"`
}

// SettingsProvider hands out the current settings snapshot.
type SettingsProvider interface {
	Get() Settings
}

func DefaultSettings() Settings {
	return Settings{
		Providers: ProvidersSettings{
			STB: ProviderSettings{Timeout: 30 * time.Second},
			GMT: ProviderSettings{Timeout: 30 * time.Second},
			WIC: ProviderSettings{Timeout: 30 * time.Second},
		},
		POS: POSSettings{
			UnknownCurrency: UnknownCurrencyDefaultUSD,
		},
		Health: HealthSettings{
			Lookback: 7 * 24 * time.Hour,
		},
	}
}

// Provider returns the settings of a provider type. Unknown types map to STB.
func (p ProvidersSettings) Provider(providerType string) ProviderSettings {
	switch strings.ToUpper(strings.TrimSpace(providerType)) {
	case ProviderGMT:
		return p.GMT
	case ProviderWIC:
		return p.WIC
	default:
		return p.STB
	}
}

// BaseURL resolves the provider base URL, falling back to the global one.
func (p ProvidersSettings) BaseURL(providerType string) string {
	if u := strings.TrimSpace(p.Provider(providerType).BaseURL); u != "" {
		return u
	}
	return strings.TrimSpace(p.FallbackBaseURL)
}

type SettingsHolder struct {
	current atomic.Value // holds Settings
}

// NewStaticSettings returns a holder that never reloads.
func NewStaticSettings(s Settings) *SettingsHolder {
	holder := &SettingsHolder{}
	holder.current.Store(s)
	return holder
}

func NewSettingsHolder(cfg Config, log *zap.Logger) (*SettingsHolder, error) {
	log = log.Named("config.settings")
	v := viper.New()

	v.SetConfigName("settings")
	v.SetConfigType("yml")
	if cfg.SettingsPath != "" {
		v.AddConfigPath(cfg.SettingsPath)
	}
	v.AddConfigPath("/etc/posbridge")
	v.AddConfigPath(".")

	v.SetEnvPrefix("POSBRIDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setSettingsDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		log.Info("settings file not found, using defaults")
	}

	settings, err := decodeSettings(v)
	if err != nil {
		return nil, err
	}

	holder := NewStaticSettings(settings)

	if v.ConfigFileUsed() == "" {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := decodeSettings(v)
		if err != nil {
			log.Warn("settings reload ignored", zap.String("file", e.Name), zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("settings reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

func (h *SettingsHolder) Get() Settings {
	return h.current.Load().(Settings)
}

func setSettingsDefaults(v *viper.Viper) {
	defaults := DefaultSettings()
	v.SetDefault("providers.fallback_base_url", defaults.Providers.FallbackBaseURL)
	v.SetDefault("providers.stb.timeout", defaults.Providers.STB.Timeout)
	v.SetDefault("providers.gmt.timeout", defaults.Providers.GMT.Timeout)
	v.SetDefault("providers.wic.timeout", defaults.Providers.WIC.Timeout)
	v.SetDefault("pos.unknown_currency", defaults.POS.UnknownCurrency)
	v.SetDefault("health.lookback", defaults.Health.Lookback)
}

func decodeSettings(v *viper.Viper) (Settings, error) {
	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return Settings{}, err
	}
	s.POS.UnknownCurrency = strings.ToLower(strings.TrimSpace(s.POS.UnknownCurrency))
	if err := validateSettings(s); err != nil {
		return Settings{}, err
	}
	return s, nil
}

func validateSettings(s Settings) error {
	switch s.POS.UnknownCurrency {
	case UnknownCurrencyDefaultUSD, UnknownCurrencyReject:
	default:
		return fmt.Errorf("pos.unknown_currency: unsupported value %q", s.POS.UnknownCurrency)
	}
	if s.Health.Lookback <= 0 {
		return errors.New("health.lookback must be positive")
	}
	return nil
}
