package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRecordStore implements RecordStore on a PostgreSQL table with a
// composite (pk, sk) primary key and a JSONB item column. Single-row
// INSERT/DELETE gives the per-item atomicity the catalog relies on;
// INSERT ... ON CONFLICT DO NOTHING supplies the conditional write.
type PostgresRecordStore struct {
	pool  *pgxpool.Pool
	table string
}

// NewPostgresRecordStore creates a record store over the named table.
func NewPostgresRecordStore(pool *pgxpool.Pool, table string) *PostgresRecordStore {
	return &PostgresRecordStore{pool: pool, table: table}
}

// Get retrieves a record by exact key.
func (s *PostgresRecordStore) Get(ctx context.Context, pk, sk string) (*Record, error) {
	rec := Record{PK: pk, SK: sk}
	err := s.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT item FROM %s WHERE pk = $1 AND sk = $2`, s.table),
		pk, sk,
	).Scan(&rec.Item)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Put writes a record, replacing any existing item under the same key.
func (s *PostgresRecordStore) Put(ctx context.Context, rec Record) error {
	_, err := s.pool.Exec(ctx,
		fmt.Sprintf(`INSERT INTO %s (pk, sk, item) VALUES ($1, $2, $3)
		 ON CONFLICT (pk, sk) DO UPDATE SET item = EXCLUDED.item`, s.table),
		rec.PK, rec.SK, rec.Item,
	)
	return err
}

// PutIfAbsent writes a record only when the key is free. The insert is a
// single atomic statement, so concurrent claimants cannot both succeed.
func (s *PostgresRecordStore) PutIfAbsent(ctx context.Context, rec Record) error {
	tag, err := s.pool.Exec(ctx,
		fmt.Sprintf(`INSERT INTO %s (pk, sk, item) VALUES ($1, $2, $3)
		 ON CONFLICT (pk, sk) DO NOTHING`, s.table),
		rec.PK, rec.SK, rec.Item,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrRecordExists
	}
	return nil
}

// Delete removes a record by exact key. Deleting an absent key is a no-op.
func (s *PostgresRecordStore) Delete(ctx context.Context, pk, sk string) error {
	_, err := s.pool.Exec(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE pk = $1 AND sk = $2`, s.table),
		pk, sk,
	)
	return err
}

// Scan returns all records matching the filter in key order.
func (s *PostgresRecordStore) Scan(ctx context.Context, filter ScanFilter) ([]Record, error) {
	where, args := buildWhere(filter, nil)
	query := fmt.Sprintf(`SELECT pk, sk, item FROM %s%s ORDER BY pk, sk`, s.table, where)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.PK, &rec.SK, &rec.Item); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// ScanPage returns one page of matching records in key order, resuming
// after the position encoded in the token.
func (s *PostgresRecordStore) ScanPage(ctx context.Context, filter ScanFilter, limit int, token string) (*Page, error) {
	if limit < 1 {
		limit = 50
	}

	t, err := decodePageToken(token)
	if err != nil {
		return nil, err
	}

	where, args := buildWhere(filter, nil)
	if t.PK != "" || t.SK != "" {
		clause := fmt.Sprintf("(pk, sk) > ($%d, $%d)", len(args)+1, len(args)+2)
		args = append(args, t.PK, t.SK)
		if where == "" {
			where = " WHERE " + clause
		} else {
			where += " AND " + clause
		}
	}

	// Fetch one extra row to detect whether more pages follow.
	query := fmt.Sprintf(`SELECT pk, sk, item FROM %s%s ORDER BY pk, sk LIMIT %d`, s.table, where, limit+1)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.PK, &rec.SK, &rec.Item); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	page := &Page{}
	if len(records) > limit {
		records = records[:limit]
		page.HasMore = true
	}
	page.Records = records
	if page.HasMore && len(records) > 0 {
		last := records[len(records)-1]
		page.NextToken = encodePageToken(last.PK, last.SK)
	}
	return page, nil
}

// buildWhere translates a ScanFilter into a WHERE clause. Prefix matches
// use LIKE with escaped metacharacters.
func buildWhere(filter ScanFilter, args []interface{}) (string, []interface{}) {
	var conds []string

	add := func(cond string, val interface{}) {
		args = append(args, val)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if filter.PKEquals != "" {
		add("pk = $%d", filter.PKEquals)
	}
	if filter.PKPrefix != "" {
		add(`pk LIKE $%d ESCAPE '\'`, escapeLike(filter.PKPrefix)+"%")
	}
	if filter.SKEquals != "" {
		add("sk = $%d", filter.SKEquals)
	}
	if filter.SKPrefix != "" {
		add(`sk LIKE $%d ESCAPE '\'`, escapeLike(filter.SKPrefix)+"%")
	}
	if filter.ExcludeBatchKeys {
		// Batch keys carry a second '#' segment after the record id.
		conds = append(conds, "pk NOT LIKE '%#%#%'")
	}

	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
