// Package catalogdb reads ranked book lists from the catalog's Postgres
// database. It is the ranking.Source used by cmd/shelfcache.
package catalogdb

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/unkn0wn-root/shelfcache/ranking"
)

var ErrUnknownSort = errors.New("catalogdb: unknown sort")

// Querier is the subset of *pgxpool.Pool the source needs.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

var (
	_ Querier        = (*pgxpool.Pool)(nil)
	_ ranking.Source = (*Source)(nil)
)

// Connect opens a pool for url and checks it with a ping.
func Connect(ctx context.Context, url string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("catalogdb: parse url: %w", err)
	}
	if _, ok := cfg.ConnConfig.RuntimeParams["application_name"]; !ok {
		cfg.ConnConfig.RuntimeParams["application_name"] = "shelfcache"
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("catalogdb: open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("catalogdb: ping: %w", err)
	}
	return pool, nil
}

type Source struct {
	db Querier
}

func New(db Querier) *Source { return &Source{db: db} }

func (s *Source) Rankings(ctx context.Context, q ranking.Query) ([]ranking.BookSummary, error) {
	sql, args, err := BuildRankingQuery(q)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("catalogdb: rankings %s: %w", q.Sort, err)
	}
	books, err := pgx.CollectRows(rows, scanBook)
	if err != nil {
		return nil, fmt.Errorf("catalogdb: scan rankings: %w", err)
	}
	return books, nil
}

func scanBook(row pgx.CollectableRow) (ranking.BookSummary, error) {
	var b ranking.BookSummary
	err := row.Scan(&b.ID, &b.Title, &b.Author, &b.Genre, &b.Year, &b.AvgRating, &b.RatingCount)
	return b, err
}

var orderBy = map[string]string{
	ranking.SortRating:  "avg_rating DESC, rating_count DESC, b.id",
	ranking.SortPopular: "rating_count DESC, avg_rating DESC, b.id",
	ranking.SortRecent:  "b.created_at DESC, b.id",
	ranking.SortTitle:   "lower(b.title), b.id",
}

const rankingSelect = `SELECT b.id::text, b.title, b.author,
       coalesce(b.genre, '') AS genre,
       coalesce(b.published_year, 0)::int AS published_year,
       coalesce(avg(r.score), 0)::float8 AS avg_rating,
       count(r.score)::int AS rating_count
FROM books b
LEFT JOIN ratings r ON r.book_id = b.id`

// BuildRankingQuery renders q as one parameterized statement. Filters and
// paging are always bound as arguments; only the ORDER BY comes from a
// fixed table.
func BuildRankingQuery(q ranking.Query) (string, []any, error) {
	order, ok := orderBy[q.Sort]
	if !ok {
		return "", nil, fmt.Errorf("%w: %q", ErrUnknownSort, q.Sort)
	}

	var (
		sb    strings.Builder
		args  []any
		where []string
	)
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}
	if q.Genre != "" {
		where = append(where, "b.genre = "+arg(q.Genre))
	}
	if q.Year != 0 {
		where = append(where, "b.published_year = "+arg(q.Year))
	}
	if q.YearFrom != 0 || q.YearTo != 0 {
		where = append(where, "b.published_year BETWEEN "+arg(q.YearFrom)+" AND "+arg(q.YearTo))
	}

	sb.WriteString(rankingSelect)
	if len(where) > 0 {
		sb.WriteString("\nWHERE ")
		sb.WriteString(strings.Join(where, " AND "))
	}
	sb.WriteString("\nGROUP BY b.id\nORDER BY ")
	sb.WriteString(order)
	sb.WriteString("\nLIMIT ")
	sb.WriteString(arg(q.Limit))
	sb.WriteString(" OFFSET ")
	sb.WriteString(arg(q.Offset))
	return sb.String(), args, nil
}
