package models

import (
	"fmt"
	"strings"
	"time"
)

// MediaKind selects which media table a list operation targets.
type MediaKind int

const (
	KindFilm MediaKind = iota + 1
	KindSeries
)

// String returns the canonical lowercase name used in routes and event subjects.
func (k MediaKind) String() string {
	switch k {
	case KindFilm:
		return "film"
	case KindSeries:
		return "series"
	default:
		return "unknown"
	}
}

// ParseMediaKind resolves route and query aliases into a MediaKind.
func ParseMediaKind(s string) (MediaKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "film", "films", "movie", "movies":
		return KindFilm, nil
	case "series", "serie", "tv", "show", "shows":
		return KindSeries, nil
	}
	return 0, fmt.Errorf("unknown media kind %q", s)
}

// Rank is the tier a film or series occupies inside a list.
type Rank string

const (
	RankUnranked Rank = "unranked"
	RankS        Rank = "S"
	RankA        Rank = "A"
	RankB        Rank = "B"
	RankC        Rank = "C"
	RankD        Rank = "D"
	RankE        Rank = "E"
	RankF        Rank = "F"
)

// ParseRank normalizes user input. Tier letters are case-insensitive.
func ParseRank(s string) (Rank, bool) {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, string(RankUnranked)) {
		return RankUnranked, true
	}
	r := Rank(strings.ToUpper(s))
	return r, r.Valid()
}

// Valid reports whether r is one of the known tiers.
func (r Rank) Valid() bool {
	switch r {
	case RankUnranked, RankS, RankA, RankB, RankC, RankD, RankE, RankF:
		return true
	}
	return false
}

// Film is a movie materialized from the catalog on first reference.
type Film struct {
	ID             int    `json:"id"`
	Title          string `json:"title"`
	RuntimeMinutes int    `json:"runtime_minutes"`
}

// Series is a TV series materialized from the catalog on first reference.
type Series struct {
	ID    int    `json:"id"`
	Title string `json:"title"`
}

// Episode is keyed by (SeriesID, Season, Episode).
type Episode struct {
	SeriesID       int `json:"series_id"`
	Season         int `json:"season"`
	Episode        int `json:"episode"`
	RuntimeMinutes int `json:"runtime_minutes"`
}

// List is a named collection owned by a single user.
type List struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	OwnerID   string    `json:"owner_id"`
	IsDefault bool      `json:"is_default"`
	CreatedAt time.Time `json:"created_at"`
}

// RankedMembership is a film or series row inside a list.
type RankedMembership struct {
	MediaID     int  `json:"media_id"`
	Rank        Rank `json:"rank"`
	PlaceInRank int  `json:"place_in_rank"`
}

// EpisodeMembership marks an episode as watched within a list.
type EpisodeMembership struct {
	SeriesID int `json:"series_id"`
	Season   int `json:"season"`
	Episode  int `json:"episode"`
}

// User is a registered account. Pseudo is the identity carried in tokens.
type User struct {
	Pseudo       string    `json:"pseudo"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Names of the lists every account starts with.
const (
	ListToWatch = "To Watch"
	ListSeen    = "Seen"
)

// DefaultListNames returns the names of the lists created with an account.
func DefaultListNames() []string {
	return []string{ListToWatch, ListSeen}
}

// protectedNames holds lowercase names that can never be renamed or deleted,
// including the labels used by accounts created before the English names.
var protectedNames = map[string]struct{}{
	"to watch":   {},
	"seen":       {},
	"a regarder": {},
	"vu":         {},
}

// IsProtectedName reports whether name matches a default list name, ignoring case.
func IsProtectedName(name string) bool {
	_, ok := protectedNames[strings.ToLower(strings.TrimSpace(name))]
	return ok
}

// Protected reports whether the list is one of the owner's default lists.
func (l List) Protected() bool {
	return l.IsDefault || IsProtectedName(l.Name)
}
