// Package postgres reads and updates the videos table directly through pgx,
// for deployments that reach the database without going through PostgREST.
package postgres

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"manimrender/internal/models"
	"manimrender/internal/pkg/errors"
)

type VideoStore struct {
	db    *pgxpool.Pool
	table string
}

func NewVideoStore(db *pgxpool.Pool, table string) *VideoStore {
	if table == "" {
		table = "videos"
	}
	return &VideoStore{db: db, table: table}
}

// Connect opens a pool and checks it with a ping.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeConfig, "postgres.connect", "invalid DATABASE_URL")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.WrapWithCode(err, errors.CodeUnavailable, "postgres.connect", "database unreachable")
	}
	return pool, nil
}

func (r *VideoStore) FetchPending(ctx context.Context, limit int) ([]models.Video, error) {
	rows, err := r.db.Query(ctx, fmt.Sprintf(`
		SELECT id::text, COALESCE(content_element_id::text, ''), manim_script
		FROM %s
		WHERE status = $1 AND manim_script IS NOT NULL
		LIMIT $2
	`, r.ident()), string(models.StatusGenerating), limit)
	if err != nil {
		return nil, r.wrap(err, errors.CodeFetch, "postgres.fetch", "list pending videos")
	}
	defer rows.Close()

	out := []models.Video{}
	for rows.Next() {
		v := models.Video{Status: models.StatusGenerating}
		if err := rows.Scan(&v.ID, &v.ContentElementID, &v.ManimScript); err != nil {
			return nil, errors.WrapWithCode(err, errors.CodeFetch, "postgres.fetch", "scan video row")
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, r.wrap(err, errors.CodeFetch, "postgres.fetch", "iterate video rows")
	}
	return out, nil
}

// Update writes the columns of u.Fields() to the row with the given id. A
// missing row is not an error, matching a PATCH that filters to nothing.
func (r *VideoStore) Update(ctx context.Context, id string, u models.VideoUpdate) error {
	query, args := r.updateStatement(id, u)
	if _, err := r.db.Exec(ctx, query, args...); err != nil {
		return r.wrap(err, errors.CodeStatusUpdate, "postgres.update", "update video "+id)
	}
	return nil
}

// updateStatement leaves the id column uncast so the primary key index
// applies; Postgres types the parameter after the column (text or uuid).
func (r *VideoStore) updateStatement(id string, u models.VideoUpdate) (string, []any) {
	fields := u.Fields()
	cols := make([]string, 0, len(fields))
	for k := range fields {
		cols = append(cols, k)
	}
	sort.Strings(cols)

	sets := make([]string, 0, len(cols))
	args := make([]any, 0, len(cols)+1)
	for i, c := range cols {
		sets = append(sets, fmt.Sprintf("%s = $%d", c, i+1))
		args = append(args, fields[c])
	}
	args = append(args, id)

	return fmt.Sprintf(`UPDATE %s SET %s WHERE id = $%d`, r.ident(), strings.Join(sets, ", "), len(args)), args
}

func (r *VideoStore) ident() string {
	return `"` + strings.ReplaceAll(r.table, `"`, `""`) + `"`
}

func (r *VideoStore) wrap(err error, code errors.Code, op, msg string) error {
	e := errors.WrapWithCode(err, code, op, msg)
	switch {
	case IsUndefinedTable(err):
		e = e.WithField("hint", "table "+r.table+" does not exist")
	case IsUndefinedColumn(err):
		e = e.WithField("hint", "table "+r.table+" is missing a column")
	}
	return e
}
