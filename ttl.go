package shelfcache

import "time"

// TTLs by data kind.
const (
	TTLUserStats         = 1800 * time.Second
	TTLUserProfile       = 1800 * time.Second
	TTLUserCollection    = 900 * time.Second
	TTLBookData          = 86400 * time.Second
	TTLBookRankings      = 3600 * time.Second
	TTLSearchResults     = 1800 * time.Second
	TTLExternalAPI       = 14400 * time.Second
	TTLActivityFeed      = 600 * time.Second
	TTLTrending          = 3600 * time.Second // overridable via Options.NamespaceTTL[NSTrending]
	TTLRecommendations   = 86400 * time.Second
	TTLRankingPrecompute = 7200 * time.Second
)

// NSTrending holds platform-wide trending lists; it has no quota.
const NSTrending = "trending"

// Namespaces with a default quota.
const (
	NSSearch          = "search"
	NSRankings        = "rankings"
	NSBookRankings    = "bookRankings"
	NSUserStats       = "userStats"
	NSUserCollection  = "userCollection"
	NSUserProfile     = "userProfile"
	NSRecommendations = "recommendations"
)

// DefaultQuotas returns a fresh copy of the per-namespace key limits.
func DefaultQuotas() map[string]int {
	return map[string]int{
		NSSearch:          1000,
		NSRankings:        500,
		NSBookRankings:    2000,
		NSUserStats:       2000,
		NSUserCollection:  1000,
		NSUserProfile:     1000,
		NSRecommendations: 500,
	}
}
