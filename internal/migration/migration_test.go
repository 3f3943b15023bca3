package migration

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationsArePaired(t *testing.T) {
	names, err := Files()
	require.NoError(t, err)
	require.NotEmpty(t, names)

	ups := map[string]bool{}
	downs := map[string]bool{}
	for _, name := range names {
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		default:
			t.Errorf("unexpected file %s", name)
		}
	}
	assert.Equal(t, ups, downs)
}

func TestSchemaCarriesLedgerConstraints(t *testing.T) {
	raw, err := fs.ReadFile(embeddedMigrations, "migrations/000001_ledger.up.sql")
	require.NoError(t, err)
	schema := string(raw)

	for _, want := range []string{
		"UNIQUE (subscriber_id, month, year)",
		"UNIQUE (scope_id, receipt_id)",
		"UNIQUE (scope_id, identifier)",
		"UNIQUE (scope_id, contact)",
		"CREATE TABLE IF NOT EXISTS receipt_sequences",
	} {
		assert.Contains(t, schema, want)
	}

	rls, err := fs.ReadFile(embeddedMigrations, "migrations/000002_row_level_security.up.sql")
	require.NoError(t, err)
	for _, table := range []string{"subscribers", "bills", "payments", "receipt_sequences"} {
		assert.Contains(t, string(rls), "ALTER TABLE "+table+" FORCE ROW LEVEL SECURITY")
	}
}
