// Package ledgertest opens in-memory sqlite databases carrying the ledger
// schema for package tests.
package ledgertest

import (
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	tenantdomain "github.com/smallbiznis/cableledger/internal/tenant/domain"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var schema = []string{
	`CREATE TABLE tenants (
		id INTEGER PRIMARY KEY,
		parent_id INTEGER,
		name TEXT NOT NULL,
		slug TEXT NOT NULL,
		email TEXT NOT NULL UNIQUE,
		password_hash TEXT,
		role TEXT NOT NULL,
		blocked BOOLEAN NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE TABLE subscribers (
		id INTEGER PRIMARY KEY,
		scope_id INTEGER NOT NULL,
		created_by INTEGER NOT NULL,
		identifier TEXT NOT NULL,
		name TEXT NOT NULL,
		contact TEXT NOT NULL,
		address TEXT,
		package_amount TEXT NOT NULL,
		previous_balance TEXT NOT NULL,
		status TEXT NOT NULL,
		version INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		UNIQUE (scope_id, identifier),
		UNIQUE (scope_id, contact)
	)`,
	`CREATE TABLE bills (
		id INTEGER PRIMARY KEY,
		scope_id INTEGER NOT NULL,
		subscriber_id INTEGER NOT NULL,
		month TEXT NOT NULL,
		month_number INTEGER NOT NULL,
		year INTEGER NOT NULL,
		package_amount TEXT NOT NULL,
		previous_balance TEXT NOT NULL,
		total_payable TEXT NOT NULL,
		paid_amount TEXT NOT NULL,
		remaining_balance TEXT NOT NULL,
		status TEXT NOT NULL,
		version INTEGER NOT NULL DEFAULT 0,
		created_by INTEGER,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		UNIQUE (subscriber_id, month, year)
	)`,
	`CREATE TABLE payments (
		id INTEGER PRIMARY KEY,
		scope_id INTEGER NOT NULL,
		subscriber_id INTEGER NOT NULL,
		bill_id INTEGER NOT NULL,
		receipt_id TEXT NOT NULL,
		paid_amount TEXT NOT NULL,
		payment_mode TEXT NOT NULL,
		remaining_balance TEXT NOT NULL,
		transaction_ref TEXT,
		collected_by INTEGER NOT NULL,
		receipt_sent BOOLEAN NOT NULL DEFAULT 0,
		whatsapp_sent BOOLEAN NOT NULL DEFAULT 0,
		sms_sent BOOLEAN NOT NULL DEFAULT 0,
		paid_at DATETIME NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		UNIQUE (scope_id, receipt_id)
	)`,
	`CREATE TABLE receipt_sequences (
		scope_id INTEGER PRIMARY KEY,
		last_value INTEGER NOT NULL DEFAULT 0,
		last_collector_id INTEGER,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE TABLE audit_logs (
		id INTEGER PRIMARY KEY,
		scope_id INTEGER,
		actor_type TEXT NOT NULL,
		actor_id TEXT,
		action TEXT NOT NULL,
		target_type TEXT NOT NULL,
		target_id TEXT,
		metadata TEXT,
		ip_address TEXT,
		user_agent TEXT,
		created_at DATETIME NOT NULL
	)`,
}

// OpenDB returns an isolated in-memory database with the ledger tables.
func OpenDB(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Discard,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range schema {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
	return db
}

// Node returns a snowflake node for ids in tests.
func Node(t testing.TB) *snowflake.Node {
	t.Helper()
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	return node
}

// InsertTenant persists a tenant row and returns it.
func InsertTenant(t testing.TB, db *gorm.DB, node *snowflake.Node, role tenantdomain.Role, parent *snowflake.ID) tenantdomain.Tenant {
	t.Helper()
	now := time.Now().UTC()
	id := node.Generate()
	tenant := tenantdomain.Tenant{
		ID:        id,
		ParentID:  parent,
		Name:      "tenant " + id.String(),
		Slug:      "tenant-" + id.String(),
		Email:     id.String() + "@example.test",
		Role:      role,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := db.Create(&tenant).Error; err != nil {
		t.Fatalf("insert tenant: %v", err)
	}
	return tenant
}

// ScopeFor resolves the scope of tenant, failing the test on error.
func ScopeFor(t testing.TB, tenant tenantdomain.Tenant) tenantdomain.Scope {
	t.Helper()
	scope, err := tenantdomain.ResolveScope(tenant)
	if err != nil {
		t.Fatalf("resolve scope: %v", err)
	}
	return scope
}
