package database

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMigrationsEmbedded(t *testing.T) {
	migrations, err := loadMigrations(migrationsFS, migrationsDir)
	require.NoError(t, err)

	var versions []string
	for _, m := range migrations {
		versions = append(versions, m.version)
		assert.Len(t, m.checksum, 64)
	}
	assert.Equal(t, []string{
		"001_entities", "002_event_logs", "003_module_state", "004_event_logs_topic_index",
	}, versions)
	assert.False(t, migrations[0].noTx)
	assert.True(t, migrations[3].noTx, "concurrent index build runs outside a transaction")
}

func TestLoadMigrationsOrdersAndFilters(t *testing.T) {
	fsys := fstest.MapFS{
		"m/002_b.sql": {Data: []byte("SELECT 2;")},
		"m/001_a.sql": {Data: []byte("SELECT 1;")},
		"m/README.md": {Data: []byte("# notes")},
		"m/003_c.sql": {Data: []byte("--   +NO-TRANSACTION\nSELECT 3;")},
		"m/sub/x.sql": {Data: []byte("SELECT 4;")},
		"other/9.sql": {Data: []byte("SELECT 9;")},
	}
	migrations, err := loadMigrations(fsys, "m")
	require.NoError(t, err)
	require.Len(t, migrations, 3)
	assert.Equal(t, "001_a", migrations[0].version)
	assert.Equal(t, "002_b", migrations[1].version)
	assert.True(t, migrations[2].noTx)
	assert.NotEqual(t, migrations[0].checksum, migrations[1].checksum)

	_, err = loadMigrations(fsys, "missing")
	assert.Error(t, err)
}

func TestSplitSQLStatements(t *testing.T) {
	script := `-- +no-transaction
CREATE INDEX CONCURRENTLY a ON t (x);

-- second
CREATE INDEX CONCURRENTLY b
    ON t (y);
`
	assert.Equal(t, []string{
		"CREATE INDEX CONCURRENTLY a ON t (x)",
		"CREATE INDEX CONCURRENTLY b\n    ON t (y)",
	}, splitSQLStatements(script))
	assert.Empty(t, splitSQLStatements("-- only a comment"))
}
