package repo

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// backupTables lists every dumped table in foreign-key order, parents first,
// so a restore can insert in the same order and delete in reverse.
var backupTables = []string{
	"brands",
	"categories",
	"products",
	"price_snapshots",
	"rounding_rules",
	"global_settings",
	"text_presets",
	"pdf_templates",
	"module_passwords",
	"offers",
	"offer_items",
}

// BackupStore dumps and restores the full database content as JSON, one
// document per table.
type BackupStore struct {
	pool *pgxpool.Pool
}

// NewBackupStore constructs a BackupStore.
func NewBackupStore(pool *pgxpool.Pool) *BackupStore {
	return &BackupStore{pool: pool}
}

// Tables returns the dumped table names in restore order.
func (s *BackupStore) Tables() []string {
	out := make([]string, len(backupTables))
	copy(out, backupTables)
	return out
}

// Dump serialises every table to a JSON array of row objects.
func (s *BackupStore) Dump(ctx context.Context) (map[string]json.RawMessage, error) {
	dump := make(map[string]json.RawMessage, len(backupTables))
	for _, table := range backupTables {
		var doc []byte
		query := fmt.Sprintf(`SELECT coalesce(json_agg(t), '[]'::json) FROM %s t`, table)
		if err := s.pool.QueryRow(ctx, query).Scan(&doc); err != nil {
			return nil, fmt.Errorf("dump %s: %w", table, err)
		}
		dump[table] = json.RawMessage(doc)
	}
	return dump, nil
}

// Restore replaces the full database content with the provided dump inside
// one transaction. Tables absent from the dump are left untouched.
func (s *BackupStore) Restore(ctx context.Context, dump map[string]json.RawMessage) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return MapError(err, "")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for i := len(backupTables) - 1; i >= 0; i-- {
		table := backupTables[i]
		if _, ok := dump[table]; !ok {
			continue
		}
		if _, err := tx.Exec(ctx, fmt.Sprintf(`DELETE FROM %s`, table)); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	for _, table := range backupTables {
		doc, ok := dump[table]
		if !ok {
			continue
		}
		query := fmt.Sprintf(
			`INSERT INTO %s SELECT * FROM json_populate_recordset(NULL::%s, $1::json)`,
			table, table)
		if _, err := tx.Exec(ctx, query, string(doc)); err != nil {
			return fmt.Errorf("restore %s: %w", table, err)
		}
	}
	return MapError(tx.Commit(ctx), "")
}
