package domain

import "time"

// Deck is a named collection of cards owned by one user.
type Deck struct {
	ID     string `json:"id"`
	UserID string `json:"user_id"`
	Name   string `json:"name"`
	// Retrievability is the mean over live cards with a non-nil value,
	// nil when ReviewedCount is zero.
	Retrievability *float64  `json:"retrievability"`
	ReviewedCount  int       `json:"reviewed_count"`
	Deleted        bool      `json:"-"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Account owns decks and carries the account-wide health aggregate.
type Account struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	Timezone       string     `json:"timezone"`
	Retrievability *float64   `json:"retrievability"`
	ReviewedCount  int        `json:"reviewed_count"`
	LastHealthSync *time.Time `json:"last_health_sync"`
	CreatedAt      time.Time  `json:"created_at"`
}

// Location resolves the account's IANA timezone, falling back to UTC when
// it is unset or unknown.
func (a Account) Location() *time.Location {
	return LoadLocation(a.Timezone)
}

// LoadLocation resolves name, returning UTC for empty or unknown zones.
func LoadLocation(name string) *time.Location {
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}
