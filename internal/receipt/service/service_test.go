package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/cableledger/internal/config"
	"github.com/smallbiznis/cableledger/internal/ledgertest"
	"github.com/smallbiznis/cableledger/internal/receipt/domain"
	"github.com/smallbiznis/cableledger/internal/receipt/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newService(t *testing.T, cfg config.BillingConfig) (domain.Service, *gorm.DB) {
	t.Helper()
	db := ledgertest.OpenDB(t)
	svc := New(Params{
		Repo:    repository.Provide(),
		Billing: config.NewStaticBillingConfigHolder(cfg),
	})
	return svc, db
}

func next(t *testing.T, svc domain.Service, db *gorm.DB, scopeID, collectorID snowflake.ID, at time.Time) string {
	t.Helper()
	var id string
	err := db.Transaction(func(tx *gorm.DB) error {
		var err error
		id, err = svc.Next(context.Background(), tx, scopeID, collectorID, at)
		return err
	})
	require.NoError(t, err)
	return id
}

func TestNextIsSequentialPerScope(t *testing.T) {
	cfg := config.DefaultBillingConfig()
	cfg.Timezone = "UTC"
	svc, db := newService(t, cfg)
	at := time.Date(2024, time.January, 10, 9, 0, 0, 0, time.UTC)

	assert.Equal(t, "RCP2401000001", next(t, svc, db, 100, 7, at))
	assert.Equal(t, "RCP2401000002", next(t, svc, db, 100, 8, at))
	assert.Equal(t, "RCP2402000003", next(t, svc, db, 100, 7, at.AddDate(0, 1, 0)))

	assert.Equal(t, "RCP2401000001", next(t, svc, db, 200, 9, at), "other scopes keep their own counter")
}

func TestNextUsesBillingTimezoneAndPrefix(t *testing.T) {
	cfg := config.DefaultBillingConfig()
	cfg.ReceiptPrefix = "CBL"
	svc, db := newService(t, cfg)

	// 20:00 UTC on Jan 31 is already Feb 1 in Asia/Kolkata.
	at := time.Date(2024, time.January, 31, 20, 0, 0, 0, time.UTC)
	assert.Equal(t, "CBL2402000001", next(t, svc, db, 100, 7, at))
}

func TestNextRollsBackWithTransaction(t *testing.T) {
	cfg := config.DefaultBillingConfig()
	cfg.Timezone = "UTC"
	svc, db := newService(t, cfg)
	at := time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)

	boom := errors.New("insert failed")
	err := db.Transaction(func(tx *gorm.DB) error {
		id, err := svc.Next(context.Background(), tx, 100, 7, at)
		require.NoError(t, err)
		assert.Equal(t, "RCP2403000001", id)
		return boom
	})
	require.ErrorIs(t, err, boom)

	assert.Equal(t, "RCP2403000001", next(t, svc, db, 100, 7, at))
}

func TestNextConcurrentCallsNeverRepeat(t *testing.T) {
	cfg := config.DefaultBillingConfig()
	cfg.Timezone = "UTC"
	svc, db := newService(t, cfg)
	at := time.Date(2024, time.April, 1, 0, 0, 0, 0, time.UTC)

	const n = 20
	ids := make(chan string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(collector snowflake.ID) {
			defer wg.Done()
			_ = db.Transaction(func(tx *gorm.DB) error {
				id, err := svc.Next(context.Background(), tx, 100, collector, at)
				if err != nil {
					return err
				}
				ids <- id
				return nil
			})
		}(snowflake.ID(i%3 + 1))
	}
	wg.Wait()
	close(ids)

	seen := map[string]struct{}{}
	for id := range ids {
		_, dup := seen[id]
		assert.False(t, dup, "duplicate receipt id %s", id)
		seen[id] = struct{}{}
	}
	assert.Len(t, seen, n)
	assert.Contains(t, seen, "RCP2404000020")
}

func TestNextRejectsMissingIdentity(t *testing.T) {
	svc, db := newService(t, config.DefaultBillingConfig())
	at := time.Now()

	_, err := svc.Next(context.Background(), db, 0, 7, at)
	assert.ErrorIs(t, err, domain.ErrInvalidScope)
	_, err = svc.Next(context.Background(), db, 100, 0, at)
	assert.ErrorIs(t, err, domain.ErrInvalidCollector)
}
