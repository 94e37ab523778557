package router

import (
	"fmt"
	"strings"
)

// Tier is the coarse complexity class that selects a fallback chain.
type Tier string

const (
	Simple  Tier = "simple"
	Medium  Tier = "medium"
	Complex Tier = "complex"
)

// Tiers lists every tier, cheapest first.
var Tiers = []Tier{Simple, Medium, Complex}

// ParseTier accepts a tier name in any case.
func ParseTier(s string) (Tier, error) {
	switch t := Tier(strings.ToLower(strings.TrimSpace(s))); t {
	case Simple, Medium, Complex:
		return t, nil
	}
	return "", fmt.Errorf("unknown tier %q (want simple, medium or complex)", s)
}

func (t Tier) Valid() bool {
	_, err := ParseTier(string(t))
	return err == nil
}
