package repository

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/cableledger/internal/bill/domain"
	"github.com/smallbiznis/cableledger/internal/ledgertest"
	tenantdomain "github.com/smallbiznis/cableledger/internal/tenant/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func billVersion(t *testing.T, db *gorm.DB, id any) int64 {
	t.Helper()
	var version int64
	require.NoError(t, db.Table("bills").Select("version").Where("id = ?", id).Scan(&version).Error)
	return version
}

func TestLockBumpsVersionInsideTransaction(t *testing.T) {
	ctx := context.Background()
	db := ledgertest.OpenDB(t)
	node := ledgertest.Node(t)
	r := Provide()

	scopeA := ledgertest.ScopeFor(t, ledgertest.InsertTenant(t, db, node, tenantdomain.RoleTenantAdmin, nil))
	scopeB := ledgertest.ScopeFor(t, ledgertest.InsertTenant(t, db, node, tenantdomain.RoleTenantAdmin, nil))

	period, err := domain.ParsePeriod("January", 2024)
	require.NoError(t, err)
	subscriberID := node.Generate()
	bill := domain.NewBill(node.Generate(), scopeA.ID(), subscriberID, period, decimal.NewFromInt(300), decimal.Zero, time.Now().UTC())
	require.NoError(t, r.Insert(ctx, db, &bill))

	tx := db.Begin()
	require.NoError(t, tx.Error)

	locked, err := r.Lock(ctx, tx, scopeA, bill.ID, subscriberID)
	require.NoError(t, err)
	assert.True(t, locked)
	assert.Equal(t, int64(1), billVersion(t, tx, bill.ID))

	locked, err = r.Lock(ctx, tx, scopeA, bill.ID, node.Generate())
	require.NoError(t, err)
	assert.False(t, locked, "bill owned by another subscriber")

	locked, err = r.Lock(ctx, tx, scopeB, bill.ID, subscriberID)
	require.NoError(t, err)
	assert.False(t, locked, "bill outside scope")
	assert.Equal(t, int64(1), billVersion(t, tx, bill.ID))

	require.NoError(t, tx.Rollback().Error)
	assert.Equal(t, int64(0), billVersion(t, db, bill.ID))
}
