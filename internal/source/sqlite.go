package source

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/conneroisu/sectionloader/internal/types"
)

// SQLiteStore reads lists from SQLite tables, one table per list.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens the database at dsn. Use ":memory:" for a private
// in-memory database.
func OpenSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite %s: %w", dsn, err)
	}
	if dsn == ":memory:" {
		// Every pooled connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}
	return &SQLiteStore{db: db}, nil
}

// DB exposes the underlying handle.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// BuildSelect renders q as a parameterised SELECT statement.
func BuildSelect(q types.Query) (string, []interface{}) {
	cols := "*"
	if len(q.Columns) > 0 {
		quoted := make([]string, len(q.Columns))
		for i, c := range q.Columns {
			quoted[i] = quoteIdent(c.Name)
		}
		cols = strings.Join(quoted, ", ")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s", cols, quoteIdent(q.SourceName))

	args := make([]interface{}, 0, len(q.Filters))
	for i, f := range q.Filters {
		if i == 0 {
			b.WriteString(" WHERE ")
		} else {
			b.WriteString(" AND ")
		}
		fmt.Fprintf(&b, "%s %s ?", quoteIdent(f.Column), f.Operator.SQL())
		args = append(args, f.Literal())
	}
	b.WriteString(" ORDER BY rowid")
	return b.String(), args
}

// Query implements Store.
func (s *SQLiteStore) Query(ctx context.Context, q types.Query) ([]types.Row, error) {
	if err := validateQuery(q); err != nil {
		return nil, err
	}

	exists, err := s.tableExists(ctx, q.SourceName)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrListNotFound, q.SourceName)
	}

	stmt, args := BuildSelect(q)
	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", q.SourceName, err)
	}
	defer rows.Close()

	names, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []types.Row
	for rows.Next() {
		vals := make([]sql.NullString, len(names))
		ptrs := make([]interface{}, len(names))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scanning %s: %w", q.SourceName, err)
		}
		row := make(types.Row, len(names))
		for i, n := range names {
			row[n] = vals[i].String
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) tableExists(ctx context.Context, name string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, name).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("checking table %s: %w", name, err)
	}
	return n > 0, nil
}

// Import creates one TEXT-column table per list and inserts the rows,
// replacing any existing table of the same name.
func (s *SQLiteStore) Import(ctx context.Context, lists map[string][]types.Row) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	for name, rows := range lists {
		cols := columnSet(rows)
		if len(cols) == 0 {
			continue
		}

		if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+quoteIdent(name)); err != nil {
			return fmt.Errorf("dropping %s: %w", name, err)
		}

		defs := make([]string, len(cols))
		marks := make([]string, len(cols))
		for i, c := range cols {
			defs[i] = quoteIdent(c) + " TEXT"
			marks[i] = "?"
		}
		create := fmt.Sprintf("CREATE TABLE %s (%s)", quoteIdent(name), strings.Join(defs, ", "))
		if _, err := tx.ExecContext(ctx, create); err != nil {
			return fmt.Errorf("creating %s: %w", name, err)
		}

		quotedCols := make([]string, len(cols))
		for i, c := range cols {
			quotedCols[i] = quoteIdent(c)
		}
		insert := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
			quoteIdent(name), strings.Join(quotedCols, ", "), strings.Join(marks, ", "))

		for _, row := range rows {
			args := make([]interface{}, len(cols))
			for i, c := range cols {
				args[i] = row[c]
			}
			if _, err := tx.ExecContext(ctx, insert, args...); err != nil {
				return fmt.Errorf("inserting into %s: %w", name, err)
			}
		}
	}

	return tx.Commit()
}

func columnSet(rows []types.Row) []string {
	seen := map[string]bool{}
	var cols []string
	for _, r := range rows {
		for k := range r {
			if !seen[k] {
				seen[k] = true
				cols = append(cols, k)
			}
		}
	}
	sort.Strings(cols)
	return cols
}

// Ping implements Store.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Kind implements Store.
func (s *SQLiteStore) Kind() string {
	return KindSQLite
}
