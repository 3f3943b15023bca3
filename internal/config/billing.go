package config

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// BillingConfig drives bill generation and receipt numbering.
type BillingConfig struct {
	Schedule              string        `mapstructure:"schedule"`
	Timezone              string        `mapstructure:"timezone"`
	ReceiptPrefix         string        `mapstructure:"receiptPrefix"`
	GenerationConcurrency int           `mapstructure:"generationConcurrency"`
	LockTTL               time.Duration `mapstructure:"lockTTL"`
	JobTimeout            time.Duration `mapstructure:"jobTimeout"`
}

func DefaultBillingConfig() BillingConfig {
	return BillingConfig{
		Schedule:              "0 2 1 * *",
		Timezone:              "Asia/Kolkata",
		ReceiptPrefix:         "RCP",
		GenerationConcurrency: 4,
		LockTTL:               10 * time.Minute,
		JobTimeout:            30 * time.Minute,
	}
}

// Location returns the billing timezone, falling back to UTC.
func (c BillingConfig) Location() *time.Location {
	loc, err := time.LoadLocation(strings.TrimSpace(c.Timezone))
	if err != nil || c.Timezone == "" {
		return time.UTC
	}
	return loc
}

type BillingConfigHolder struct {
	current atomic.Value // holds BillingConfig
}

func NewBillingConfigHolder() (*BillingConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("billing")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/cableledger/config")
	v.AddConfigPath("/etc/cableledger")
	v.AddConfigPath(".")

	v.SetEnvPrefix("CABLELEDGER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultBillingConfig()
	v.SetDefault("billing.schedule", defaults.Schedule)
	v.SetDefault("billing.timezone", defaults.Timezone)
	v.SetDefault("billing.receiptPrefix", defaults.ReceiptPrefix)
	v.SetDefault("billing.generationConcurrency", defaults.GenerationConcurrency)
	v.SetDefault("billing.lockTTL", defaults.LockTTL)
	v.SetDefault("billing.jobTimeout", defaults.JobTimeout)

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileLoaded = false
	}

	var cfg BillingConfig
	if err := v.UnmarshalKey("billing", &cfg); err != nil {
		return nil, err
	}
	if err := ValidateBillingConfig(cfg); err != nil {
		return nil, err
	}

	holder := NewStaticBillingConfigHolder(cfg)
	if !fileLoaded {
		return holder, nil
	}

	log := zap.L().Named("billing.config")
	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated BillingConfig
		if err := v.UnmarshalKey("billing", &updated); err != nil {
			log.Warn("billing config reload failed", zap.Error(err))
			return
		}
		if err := ValidateBillingConfig(updated); err != nil {
			log.Warn("invalid billing config ignored", zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("billing config reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

// NewStaticBillingConfigHolder wraps a fixed config without file watching.
func NewStaticBillingConfigHolder(cfg BillingConfig) *BillingConfigHolder {
	holder := &BillingConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func (h *BillingConfigHolder) Get() BillingConfig {
	if h == nil {
		return DefaultBillingConfig()
	}
	cfg, ok := h.current.Load().(BillingConfig)
	if !ok {
		return DefaultBillingConfig()
	}
	return cfg
}

func ValidateBillingConfig(cfg BillingConfig) error {
	if _, err := cron.ParseStandard(cfg.Schedule); err != nil {
		return fmt.Errorf("billing.schedule: %w", err)
	}
	if _, err := time.LoadLocation(strings.TrimSpace(cfg.Timezone)); err != nil {
		return fmt.Errorf("billing.timezone: %w", err)
	}
	prefix := strings.TrimSpace(cfg.ReceiptPrefix)
	if prefix == "" {
		return errors.New("billing.receiptPrefix cannot be empty")
	}
	for _, r := range prefix {
		if r < 'A' || r > 'Z' {
			return errors.New("billing.receiptPrefix must be uppercase letters")
		}
	}
	if cfg.GenerationConcurrency <= 0 {
		return errors.New("billing.generationConcurrency must be positive")
	}
	if cfg.LockTTL <= 0 {
		return errors.New("billing.lockTTL must be positive")
	}
	return nil
}
