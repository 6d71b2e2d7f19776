package ranking

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/unkn0wn-root/shelfcache"
)

// Namespace holds every ranking page, precomputed or filled by a request.
const Namespace = shelfcache.NSRankings

const (
	SortRating  = "rating"
	SortPopular = "popular"
	SortRecent  = "recent"
	SortTitle   = "title"
)

const (
	defaultLimit = 20
	maxLimit     = 100
)

// Descriptor identifies one ranked query.
type Descriptor struct {
	Sort  string
	Genre string // "" => all genres
	Year   int    // publication year; 0 => all years
	Decade int    // first year of a decade (2020 => 2020-2029); 0 => all
	Page   int    // 1-based
	Limit  int
}

// Query is a normalized Descriptor ready for the source of truth.
type Query struct {
	Sort     string
	Genre    string
	Year     int
	YearFrom int // inclusive; 0 with YearTo 0 => unbounded
	YearTo   int
	Offset   int
	Limit    int
}

// BookSummary is one row of a ranked page.
type BookSummary struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Author      string  `json:"author"`
	Genre       string  `json:"genre,omitempty"`
	Year        int     `json:"year,omitempty"`
	AvgRating   float64 `json:"avgRating"`
	RatingCount int     `json:"ratingCount"`
}

// Source runs ranked queries against the source of truth.
type Source interface {
	Rankings(ctx context.Context, q Query) ([]BookSummary, error)
}

type SourceFunc func(ctx context.Context, q Query) ([]BookSummary, error)

func (f SourceFunc) Rankings(ctx context.Context, q Query) ([]BookSummary, error) { return f(ctx, q) }

// Normalize clamps page to >= 1 and limit to [1,100]; limit 0 means 20.
// Decade is floored to its first year.
func (d Descriptor) Normalize() Descriptor {
	if d.Decade > 0 {
		d.Decade -= d.Decade % 10
	} else {
		d.Decade = 0
	}
	if d.Page < 1 {
		d.Page = 1
	}
	switch {
	case d.Limit == 0:
		d.Limit = defaultLimit
	case d.Limit < 1:
		d.Limit = 1
	case d.Limit > maxLimit:
		d.Limit = maxLimit
	}
	return d
}

func (d Descriptor) Query() Query {
	n := d.Normalize()
	q := Query{
		Sort:   n.Sort,
		Genre:  n.Genre,
		Year:   n.Year,
		Offset: (n.Page - 1) * n.Limit,
		Limit:  n.Limit,
	}
	if n.Decade != 0 {
		q.YearFrom, q.YearTo = n.Decade, n.Decade+9
	}
	return q
}

func (d Descriptor) String() string {
	n := d.Normalize()
	return fmt.Sprintf("sort=%s genre=%q year=%d decade=%d page=%d limit=%d", n.Sort, n.Genre, n.Year, n.Decade, n.Page, n.Limit)
}

// Key is the cache key request handlers and the scheduler share for d.
// The genre is query-escaped so it can neither add a ':' segment nor carry
// glob metacharacters into invalidation patterns.
//
//	rankings:sort=rating:genre=fantasy:decade=2020:page=1:limit=20
func Key(d Descriptor) string {
	n := d.Normalize()
	var genre, year, decade any
	if n.Genre != "" {
		genre = "genre=" + url.QueryEscape(n.Genre)
	}
	if n.Year != 0 {
		year = "year=" + strconv.Itoa(n.Year)
	}
	if n.Decade != 0 {
		decade = "decade=" + strconv.Itoa(n.Decade)
	}
	return shelfcache.GenerateKey(Namespace,
		"sort="+n.Sort,
		genre,
		year,
		decade,
		"page="+strconv.Itoa(n.Page),
		"limit="+strconv.Itoa(n.Limit),
	)
}

var hotGenres = []string{"", "fantasy", "mystery", "romance", "science-fiction"}

// hotDecades is how many decades back from the current one are precomputed.
const hotDecades = 3

// DefaultDescriptors is the hot list: the two headline sorts over the top
// genres, each unfiltered and for the last three decades, plus the newest
// arrivals.
func DefaultDescriptors() []Descriptor {
	return defaultDescriptorsAt(time.Now())
}

func defaultDescriptorsAt(now time.Time) []Descriptor {
	decades := []int{0}
	cur := now.Year() - now.Year()%10
	for i := 0; i < hotDecades; i++ {
		decades = append(decades, cur-10*i)
	}

	var out []Descriptor
	for _, sort := range []string{SortRating, SortPopular} {
		for _, g := range hotGenres {
			for _, dec := range decades {
				out = append(out, Descriptor{Sort: sort, Genre: g, Decade: dec, Page: 1, Limit: defaultLimit})
			}
		}
	}
	return append(out, Descriptor{Sort: SortRecent, Page: 1, Limit: defaultLimit})
}
