package config

// Backend is the platform settings store behind `bolla config`. Values are
// kept as text and typed by the key table when loaded, so a backend never
// needs to know what a key holds.
type Backend interface {
	Lookup(key string) (value string, ok bool, err error)
	Save(key, value string) error
}
