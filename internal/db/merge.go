package db

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// Merge describes an idempotent batch write: rows are staged in a
// transaction-local temp table, then folded into Table keyed on Keys.
type Merge struct {
	Table   string
	Columns []string
	Keys    []string
	// Update lists the columns overwritten on a key collision. Empty means
	// every column that is not a key.
	Update []string
}

// Run applies the merge inside a single transaction and returns the number
// of target rows inserted or updated.
func (m Merge) Run(ctx context.Context, pool Pool, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if err := m.validate(); err != nil {
		return 0, err
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrapf(err, "db: merge %s: begin", m.Table)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	staging := m.stagingTable()
	ddl := fmt.Sprintf("CREATE TEMP TABLE %s (LIKE %s INCLUDING DEFAULTS) ON COMMIT DROP",
		ident(staging).Sanitize(), ident(m.Table).Sanitize())
	if _, err := tx.Exec(ctx, ddl); err != nil {
		return 0, eris.Wrapf(err, "db: merge %s: stage", m.Table)
	}
	if _, err := Stage(ctx, tx, staging, m.Columns, rows); err != nil {
		return 0, eris.Wrapf(err, "db: merge %s", m.Table)
	}

	tag, err := tx.Exec(ctx, m.statement(staging))
	if err != nil {
		return 0, eris.Wrapf(err, "db: merge %s: apply", m.Table)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrapf(err, "db: merge %s: commit", m.Table)
	}
	return tag.RowsAffected(), nil
}

// Stage bulk-loads rows into table over the COPY protocol. table may carry
// a schema prefix ("enrich.run_records").
func Stage(ctx context.Context, c Copier, table string, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	n, err := c.CopyFrom(ctx, ident(table), columns, pgx.CopyFromRows(rows))
	if err != nil {
		return 0, eris.Wrapf(err, "db: stage %d rows into %s", len(rows), table)
	}
	return n, nil
}

func (m Merge) validate() error {
	switch {
	case m.Table == "":
		return eris.New("db: merge: table is required")
	case len(m.Columns) == 0:
		return eris.Errorf("db: merge %s: no columns", m.Table)
	case len(m.Keys) == 0:
		return eris.Errorf("db: merge %s: no key columns", m.Table)
	}
	for _, k := range m.Keys {
		if !slices.Contains(m.Columns, k) {
			return eris.Errorf("db: merge %s: key %q is not a column", m.Table, k)
		}
	}
	return nil
}

func (m Merge) stagingTable() string {
	return "stage_" + strings.ReplaceAll(m.Table, ".", "_")
}

// updated returns the columns rewritten on conflict.
func (m Merge) updated() []string {
	if len(m.Update) > 0 {
		return m.Update
	}
	var out []string
	for _, c := range m.Columns {
		if !slices.Contains(m.Keys, c) {
			out = append(out, c)
		}
	}
	return out
}

func (m Merge) statement(staging string) string {
	var b strings.Builder
	cols := quoteList(m.Columns)
	fmt.Fprintf(&b, "INSERT INTO %s (%s) SELECT %s FROM %s ON CONFLICT (%s) ",
		ident(m.Table).Sanitize(), cols, cols, ident(staging).Sanitize(), quoteList(m.Keys))

	upd := m.updated()
	if len(upd) == 0 {
		b.WriteString("DO NOTHING")
		return b.String()
	}
	b.WriteString("DO UPDATE SET ")
	for i, c := range upd {
		if i > 0 {
			b.WriteString(", ")
		}
		q := pgx.Identifier{c}.Sanitize()
		b.WriteString(q + " = EXCLUDED." + q)
	}
	return b.String()
}

func ident(name string) pgx.Identifier {
	return pgx.Identifier(strings.SplitN(name, ".", 2))
}

func quoteList(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pgx.Identifier{c}.Sanitize()
	}
	return strings.Join(quoted, ", ")
}
