package domain

import (
	"encoding/json"
	"fmt"
)

// Maturity is a coarse display classification derived from a card's state
// and its last scheduled interval. It is never stored.
type Maturity int

const (
	Seed Maturity = iota
	Sprout
	Sapling
	Budding
	Mature
	Mighty
)

// Maturities lists every stage from least to most mature.
var Maturities = []Maturity{Seed, Sprout, Sapling, Budding, Mature, Mighty}

var maturityNames = [...]string{
	Seed:    "Seed",
	Sprout:  "Sprout",
	Sapling: "Sapling",
	Budding: "Budding",
	Mature:  "Mature",
	Mighty:  "Mighty",
}

func (m Maturity) String() string {
	if m >= Seed && m <= Mighty {
		return maturityNames[m]
	}
	return fmt.Sprintf("Maturity(%d)", int(m))
}

// MarshalText implements encoding.TextMarshaler so maturities can key JSON maps.
func (m Maturity) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// MarshalJSON implements json.Marshaler.
func (m Maturity) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}
