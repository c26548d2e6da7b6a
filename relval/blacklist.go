package relval

import (
	"fmt"

	"github.com/bmatcuk/doublestar/v4"
)

// Blacklist rejects datasets matching any of its glob patterns. `*` matches
// within one path segment and `**` across segments:
//
//	/RelValZMM*/**
//	/**/GEN-SIM-RECO
type Blacklist struct {
	patterns []string
}

// NewBlacklist validates patterns.
func NewBlacklist(patterns []string) (*Blacklist, error) {
	for _, p := range patterns {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid dataset blacklist pattern %q", p)
		}
	}
	return &Blacklist{patterns: append([]string(nil), patterns...)}, nil
}

// Match returns the first pattern matching dataset. A nil Blacklist matches
// nothing.
func (b *Blacklist) Match(dataset string) (string, bool) {
	if b == nil || dataset == "" {
		return "", false
	}
	for _, p := range b.patterns {
		if ok, _ := doublestar.Match(p, dataset); ok {
			return p, true
		}
	}
	return "", false
}
