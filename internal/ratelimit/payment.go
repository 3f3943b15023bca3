package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/cableledger/internal/config"
)

const keyPaymentCollector = "cableledger:payment:collector:%s"

// Refills at ARGV[1] tokens/s up to ARGV[2]. Redis TIME keeps every API
// replica on one clock. Tokens come back scaled by 1000 because Lua numbers
// are truncated to integers on the way out.
const collectorBucketScript = `
local rate = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local ttl = tonumber(ARGV[3])

local t = redis.call("TIME")
local now = tonumber(t[1]) * 1000 + math.floor(tonumber(t[2]) / 1000)

local state = redis.call("HMGET", KEYS[1], "tokens", "ts")
local tokens = tonumber(state[1])
local last = tonumber(state[2])
if tokens == nil then
  tokens = burst
else
  local elapsed = math.max(0, now - last)
  tokens = math.min(burst, tokens + (elapsed / 1000) * rate)
end

local granted = 0
if tokens >= 1 then
  granted = 1
  tokens = tokens - 1
end

redis.call("HMSET", KEYS[1], "tokens", tokens, "ts", now)
redis.call("PEXPIRE", KEYS[1], ttl)
return {granted, math.floor(tokens * 1000)}
`

// Decision is the outcome of one throttle check.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// PaymentLimiter throttles payment submissions per collector. A nil limiter
// allows everything.
type PaymentLimiter struct {
	client *redis.Client
	script *redis.Script
	rate   float64
	burst  int
	ttl    time.Duration
}

func NewPaymentLimiter(client *redis.Client, cfg config.Config) *PaymentLimiter {
	perMinute, burst := cfg.RateLimit.PaymentsPerMinute, cfg.RateLimit.PaymentBurst
	if client == nil || perMinute <= 0 || burst <= 0 {
		return nil
	}
	rate := perMinute / 60

	// Keep an idle bucket around for twice its full refill time.
	ttl := time.Duration(math.Ceil(float64(burst)/rate*2)) * time.Second
	if ttl < time.Second {
		ttl = time.Second
	}
	return &PaymentLimiter{
		client: client,
		script: redis.NewScript(collectorBucketScript),
		rate:   rate,
		burst:  burst,
		ttl:    ttl,
	}
}

func (l *PaymentLimiter) Enabled() bool {
	return l != nil && l.client != nil
}

// AllowCollector takes one token from the collector's bucket.
func (l *PaymentLimiter) AllowCollector(ctx context.Context, collectorID string) (Decision, error) {
	if !l.Enabled() {
		return Decision{Allowed: true}, nil
	}
	collectorID = strings.TrimSpace(collectorID)
	if collectorID == "" {
		return Decision{}, errors.New("collector id is empty")
	}

	key := fmt.Sprintf(keyPaymentCollector, collectorID)
	res, err := l.script.Run(ctx, l.client, []string{key}, l.rate, l.burst, l.ttl.Milliseconds()).Int64Slice()
	if err != nil {
		return Decision{}, err
	}
	if len(res) < 2 {
		return Decision{}, errors.New("invalid rate limit script response")
	}

	remaining := float64(res[1]) / 1000
	decision := Decision{Allowed: res[0] == 1, Remaining: int(remaining)}
	if !decision.Allowed {
		if needed := 1 - remaining; needed > 0 {
			decision.RetryAfter = time.Duration(needed / l.rate * float64(time.Second))
		}
	}
	return decision, nil
}
