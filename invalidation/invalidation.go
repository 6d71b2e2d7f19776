// Package invalidation maps domain write events to the cache key patterns
// that must be dropped after the write commits.
//
// Every scope is a fixed fan-out: no reads, no discovery of affected keys.
// Rankings and search are dropped wholesale on any book change because a
// single rating can move any ranked or searched result set.
package invalidation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"

	"github.com/unkn0wn-root/shelfcache"
	"github.com/unkn0wn-root/shelfcache/internal/util"
)

// Scope names a kind of domain write.
type Scope string

const (
	ScopeUser   Scope = "user"
	ScopeBook   Scope = "book"
	ScopeGlobal Scope = "global"
)

// idPlaceholder is replaced with the glob-escaped entity id.
const idPlaceholder = "{id}"

// PatternSet maps a scope to the ordered patterns it deletes.
type PatternSet map[Scope][]string

var (
	ErrUnknownScope = errors.New("invalidation: unknown scope")
	ErrMissingID    = errors.New("invalidation: scope requires an id")
)

// DefaultPatterns returns a fresh copy of the catalog's fan-out table.
func DefaultPatterns() PatternSet {
	return PatternSet{
		ScopeUser: {
			"user:{id}:*",
			"userStats:{id}",
			"userCollection:{id}",
			"userProfile:{id}",
			"recommendations:{id}",
			"userActivity:{id}:*",
		},
		ScopeBook: {
			"book:{id}:*",
			"bookData:{id}",
			"rankings:*",
			"search:*",
		},
		ScopeGlobal: {
			"trending*",
			"rankings:*",
			"search:*",
			"activity:recent*",
		},
	}
}

// PatternDeleter is the slice of shelfcache.Store the coordinator needs.
type PatternDeleter interface {
	DeletePattern(ctx context.Context, pattern string) (int, error)
}

var _ PatternDeleter = (shelfcache.Store)(nil)

// PatternError is one failed pattern deletion.
type PatternError struct {
	Pattern string
	Err     error
}

func (e *PatternError) Error() string {
	return fmt.Sprintf("invalidate %q: %v", e.Pattern, e.Err)
}

func (e *PatternError) Unwrap() error { return e.Err }

type Options struct {
	Logger   shelfcache.Logger // if nil, NopLogger is used
	Patterns PatternSet        // nil => DefaultPatterns()
}

type Coordinator struct {
	d        PatternDeleter
	log      shelfcache.Logger
	patterns PatternSet
}

func New(d PatternDeleter, opts Options) *Coordinator {
	c := &Coordinator{d: d, log: opts.Logger, patterns: opts.Patterns}
	if c.log == nil {
		c.log = shelfcache.NopLogger{}
	}
	if c.patterns == nil {
		c.patterns = DefaultPatterns()
	}
	return c
}

func (c *Coordinator) InvalidateUser(ctx context.Context, userID string) (int, error) {
	return c.Invalidate(ctx, ScopeUser, userID)
}

func (c *Coordinator) InvalidateBook(ctx context.Context, bookID string) (int, error) {
	return c.Invalidate(ctx, ScopeBook, bookID)
}

func (c *Coordinator) InvalidateGlobal(ctx context.Context) (int, error) {
	return c.Invalidate(ctx, ScopeGlobal, "")
}

// Patterns expands scope for id without touching the cache.
func (c *Coordinator) Patterns(scope Scope, id string) ([]string, error) {
	tmpl, ok := c.patterns[scope]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownScope, scope)
	}
	escaped := util.EscapeGlob(id)
	out := make([]string, 0, len(tmpl))
	for _, p := range tmpl {
		if strings.Contains(p, idPlaceholder) {
			if id == "" {
				return nil, fmt.Errorf("%w: %q", ErrMissingID, scope)
			}
			p = strings.ReplaceAll(p, idPlaceholder, escaped)
		}
		out = append(out, p)
	}
	return out, nil
}

// Invalidate deletes every pattern of scope and returns the total deleted.
// Patterns are independent: a failure is logged and collected, and the
// remaining patterns still run. The count is valid even when err != nil;
// callers that only need best-effort invalidation may ignore err.
func (c *Coordinator) Invalidate(ctx context.Context, scope Scope, id string) (int, error) {
	patterns, err := c.Patterns(scope, id)
	if err != nil {
		return 0, err
	}

	var errs *multierror.Error
	total := 0
	for _, p := range patterns {
		n, err := c.d.DeletePattern(ctx, p)
		if err != nil {
			c.log.Warn("invalidation pattern failed", shelfcache.Fields{"scope": string(scope), "pattern": p, "err": err})
			errs = multierror.Append(errs, &PatternError{Pattern: p, Err: err})
			continue
		}
		total += n
	}

	failed := 0
	if errs != nil {
		failed = len(errs.Errors)
	}
	c.log.Debug("invalidated", shelfcache.Fields{
		"scope":    string(scope),
		"id":       id,
		"deleted":  total,
		"patterns": len(patterns),
		"failed":   failed,
	})
	return total, errs.ErrorOrNil()
}
