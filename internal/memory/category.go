package memory

import "strings"

// Category classifies a stored fact.
type Category string

const (
	Preference Category = "preference"
	Fact       Category = "fact"
	Opinion    Category = "opinion"
	Event      Category = "event"
	General    Category = "general"
)

// Categories lists every valid category.
var Categories = []Category{Preference, Fact, Opinion, Event, General}

// ParseCategory maps a category word to a Category. The long labels some
// models answer with ("user_preference", "learned_fact") are accepted too.
func ParseCategory(s string) (Category, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "preference", "user_preference":
		return Preference, true
	case "fact", "learned_fact":
		return Fact, true
	case "opinion":
		return Opinion, true
	case "event":
		return Event, true
	case "general":
		return General, true
	}
	return "", false
}
