package config

import (
	"fmt"
	"os"
	"sort"

	"github.com/google/uuid"
)

// KeyInfo is one row of `bolla config show`.
type KeyInfo struct {
	Key    string
	Type   string
	EnvVar string
	Value  string
	// FromEnv is set when EnvVar currently overrides the stored value.
	FromEnv bool
}

// ShowAll lists every key with its effective value. Secrets only show
// whether they are set.
func ShowAll(cfg Config) []KeyInfo {
	out := make([]KeyInfo, 0, len(specs))
	for _, s := range specs {
		val := fmt.Sprint(s.extract(cfg))
		if s.secret {
			if val == "" {
				val = "(unset)"
			} else {
				val = "(set)"
			}
		}
		_, fromEnv := os.LookupEnv(s.env)
		out = append(out, KeyInfo{
			Key:     s.key,
			Type:    s.typ.String(),
			EnvVar:  s.env,
			Value:   val,
			FromEnv: s.env != "" && fromEnv,
		})
	}
	return out
}

func lookupSpec(key string) (keySpec, bool) {
	for _, s := range specs {
		if s.key == key {
			return s, true
		}
	}
	return keySpec{}, false
}

// SetKey validates value and stores it in the platform backend.
func SetKey(key, value string) error {
	return setKeyWith(newPlatformBackend(), key, value)
}

func setKeyWith(b Backend, key, value string) error {
	s, ok := lookupSpec(key)
	switch {
	case !ok:
		return fmt.Errorf("unknown config key: %q", key)
	case s.secret:
		return fmt.Errorf("%s is a secret; set it through %s or the system keychain", key, s.env)
	}
	if _, err := s.parse(value); err != nil {
		return fmt.Errorf("invalid %s value for %s: %w", s.typ, key, err)
	}
	return b.Save(key, value)
}

// ValidKeys returns the settable keys in sorted order.
func ValidKeys() []string {
	var keys []string
	for _, s := range specs {
		if !s.secret {
			keys = append(keys, s.key)
		}
	}
	sort.Strings(keys)
	return keys
}

func newToken() string {
	return uuid.NewString()
}
