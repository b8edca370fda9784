package database

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

const (
	migrationsDir = "migrations"
	// serialises migrations between an indexer and a backfill started together
	migrationLockID = 0x7633_6d69_6772
)

type migration struct {
	version  string
	script   string
	checksum string
	// CREATE INDEX CONCURRENTLY and friends cannot run inside a transaction
	noTx bool
}

// RunMigrations applies the embedded entity, event-log and module-state
// schema in filename order. Each file is applied once and recorded in
// schema_migrations with its checksum; an applied file that has since changed
// is an error. It returns the versions applied by this call.
func RunMigrations(ctx context.Context, connString string, logger zerolog.Logger) ([]string, error) {
	migrations, err := loadMigrations(migrationsFS, migrationsDir)
	if err != nil {
		return nil, err
	}

	connConfig, err := pgx.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}
	// simple protocol runs multi-statement files in one Exec
	connConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	conn, err := pgx.ConnectConfig(ctx, connConfig)
	if err != nil {
		return nil, fmt.Errorf("connect database for migrations: %w", err)
	}
	defer conn.Close(ctx)

	if _, err := conn.Exec(ctx, `SELECT pg_advisory_lock($1)`, int64(migrationLockID)); err != nil {
		return nil, fmt.Errorf("acquire migration lock: %w", err)
	}
	defer func() {
		_, _ = conn.Exec(context.Background(), `SELECT pg_advisory_unlock($1)`, int64(migrationLockID))
	}()

	if _, err := conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    TEXT PRIMARY KEY,
			checksum   TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`); err != nil {
		return nil, fmt.Errorf("ensure schema_migrations table: %w", err)
	}

	known, err := appliedMigrations(ctx, conn)
	if err != nil {
		return nil, err
	}

	var applied []string
	for _, m := range migrations {
		if sum, ok := known[m.version]; ok {
			if sum != m.checksum {
				return applied, fmt.Errorf("migration %s changed after it was applied", m.version)
			}
			continue
		}
		if err := m.apply(ctx, conn); err != nil {
			return applied, err
		}
		logger.Info().Str("migration", m.version).Bool("transaction", !m.noTx).Msg("Applied migration")
		applied = append(applied, m.version)
	}
	return applied, nil
}

// loadMigrations reads every .sql file under dir, ordered by name.
func loadMigrations(fsys fs.FS, dir string) ([]migration, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("read embedded migrations: %w", err)
	}

	var out []migration
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		contents, err := fs.ReadFile(fsys, path.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}
		sum := sha256.Sum256(contents)
		script := strings.TrimSpace(string(contents))
		out = append(out, migration{
			version:  strings.TrimSuffix(entry.Name(), ".sql"),
			script:   script,
			checksum: hex.EncodeToString(sum[:]),
			noTx:     hasDirective(script, "+no-transaction"),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].version < out[j].version })
	return out, nil
}

func hasDirective(script, directive string) bool {
	for _, line := range strings.Split(script, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "--") {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(strings.TrimPrefix(line, "--")), directive) {
			return true
		}
	}
	return false
}

func appliedMigrations(ctx context.Context, conn *pgx.Conn) (map[string]string, error) {
	rows, err := conn.Query(ctx, `SELECT version, checksum FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("list applied migrations: %w", err)
	}
	known := make(map[string]string)
	for rows.Next() {
		var version, checksum string
		if err := rows.Scan(&version, &checksum); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan applied migration: %w", err)
		}
		known[version] = checksum
	}
	return known, rows.Err()
}

func (m migration) apply(ctx context.Context, conn *pgx.Conn) error {
	const record = `INSERT INTO schema_migrations (version, checksum) VALUES ($1, $2)`

	if m.noTx {
		for _, stmt := range splitSQLStatements(m.script) {
			if _, err := conn.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("apply migration %s: %w", m.version, err)
			}
		}
		if _, err := conn.Exec(ctx, record, m.version, m.checksum); err != nil {
			return fmt.Errorf("record migration %s: %w", m.version, err)
		}
		return nil
	}

	tx, err := conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin migration %s: %w", m.version, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if m.script != "" {
		if _, err := tx.Exec(ctx, m.script); err != nil {
			return fmt.Errorf("apply migration %s: %w", m.version, err)
		}
	}
	if _, err := tx.Exec(ctx, record, m.version, m.checksum); err != nil {
		return fmt.Errorf("record migration %s: %w", m.version, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit migration %s: %w", m.version, err)
	}
	return nil
}

// splitSQLStatements drops comment lines and splits on semicolons. Scripts run
// this way must not carry semicolons inside literals or function bodies.
func splitSQLStatements(script string) []string {
	var b strings.Builder
	for _, line := range strings.Split(script, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}

	var statements []string
	for _, part := range strings.Split(b.String(), ";") {
		if stmt := strings.TrimSpace(part); stmt != "" {
			statements = append(statements, stmt)
		}
	}
	return statements
}
