package activity

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidActivityKind is returned by Parse for names outside the closed set.
var ErrInvalidActivityKind = errors.New("invalid activity kind")

// Kind is a self-initiated behavior the agent may choose to perform.
type Kind string

const (
	Catharsis          Kind = "catharsis"
	PassiveMedia       Kind = "passive_media"
	SocialBonding      Kind = "social_bonding"
	StressRelief       Kind = "stress_relief"
	CreativeProject    Kind = "creative_project"
	InformationSeeking Kind = "information_seeking"
	LongTermProject    Kind = "long_term_project"
)

// All lists every kind in declaration order.
var All = []Kind{
	Catharsis, PassiveMedia, SocialBonding, StressRelief,
	CreativeProject, InformationSeeking, LongTermProject,
}

var aliases = map[string]Kind{
	"escape":             PassiveMedia,
	"netflix":            PassiveMedia,
	"ai_friendship":      SocialBonding,
	"videogame_creation": CreativeProject,
	"news_reading":       InformationSeeking,
	"legacy_project":     LongTermProject,
}

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	for _, known := range All {
		if k == known {
			return true
		}
	}
	return false
}

func (k Kind) String() string { return string(k) }

// Parse resolves a user-supplied name. Hyphens and case are normalised and
// legacy names are accepted.
func Parse(name string) (Kind, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	n = strings.NewReplacer("-", "_", " ", "_", "/", "_").Replace(n)
	if k := Kind(n); k.Valid() {
		return k, nil
	}
	if n == "escape_passive_media" {
		return PassiveMedia, nil
	}
	if k, ok := aliases[n]; ok {
		return k, nil
	}
	return Kind(n), fmt.Errorf("%w: %q", ErrInvalidActivityKind, name)
}
