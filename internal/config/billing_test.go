package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultBillingConfigIsValid(t *testing.T) {
	require.NoError(t, ValidateBillingConfig(DefaultBillingConfig()))
}

func TestValidateBillingConfigRejectsBadValues(t *testing.T) {
	cases := map[string]func(*BillingConfig){
		"schedule":    func(c *BillingConfig) { c.Schedule = "every day" },
		"timezone":    func(c *BillingConfig) { c.Timezone = "Mars/Olympus" },
		"prefix":      func(c *BillingConfig) { c.ReceiptPrefix = "rc1" },
		"concurrency": func(c *BillingConfig) { c.GenerationConcurrency = 0 },
		"lock ttl":    func(c *BillingConfig) { c.LockTTL = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultBillingConfig()
			mutate(&cfg)
			assert.Error(t, ValidateBillingConfig(cfg))
		})
	}
}

func TestBillingConfigLocationFallsBackToUTC(t *testing.T) {
	cfg := DefaultBillingConfig()
	cfg.Timezone = "nowhere"
	assert.Equal(t, time.UTC, cfg.Location())

	cfg.Timezone = "Asia/Kolkata"
	assert.Equal(t, "Asia/Kolkata", cfg.Location().String())
}

func TestBillingConfigHolderNilSafe(t *testing.T) {
	var holder *BillingConfigHolder
	assert.Equal(t, DefaultBillingConfig(), holder.Get())

	custom := DefaultBillingConfig()
	custom.ReceiptPrefix = "PAY"
	assert.Equal(t, "PAY", NewStaticBillingConfigHolder(custom).Get().ReceiptPrefix)
}
