package content

import (
	"fmt"
	"strings"
)

// Kind is the category of ephemeral content cached per user.
type Kind string

const (
	KindDailyHoroscope  Kind = "daily_horoscope"
	KindWeeklyHoroscope Kind = "weekly_horoscope"
	KindMoonPhase       Kind = "moon_phase"
	KindCosmicWeather   Kind = "cosmic_weather"
	KindVoidOfCourse    Kind = "void_of_course"
	KindLunarNodes      Kind = "lunar_nodes"
)

var allKinds = []Kind{
	KindDailyHoroscope,
	KindWeeklyHoroscope,
	KindMoonPhase,
	KindCosmicWeather,
	KindVoidOfCourse,
	KindLunarNodes,
}

// AllKinds returns every cacheable kind. The slice is a copy.
func AllKinds() []Kind {
	out := make([]Kind, len(allKinds))
	copy(out, allKinds)
	return out
}

func (k Kind) Valid() bool {
	for _, known := range allKinds {
		if k == known {
			return true
		}
	}
	return false
}

func (k Kind) String() string { return string(k) }

// RequiresVariant reports whether requests for k must name a variant.
// Moon phase commentary is keyed by the phase name.
func (k Kind) RequiresVariant() bool {
	return k == KindMoonPhase
}

// horoscopeRanges maps the range segment of /horoscope/{range} routes to its kind.
var horoscopeRanges = map[string]Kind{
	"daily":  KindDailyHoroscope,
	"weekly": KindWeeklyHoroscope,
}

// HoroscopeKind resolves a horoscope range ("daily" or "weekly").
func HoroscopeKind(rangeName string) (Kind, error) {
	if k, ok := horoscopeRanges[strings.ToLower(strings.TrimSpace(rangeName))]; ok {
		return k, nil
	}
	return "", fmt.Errorf("%w: horoscope range %q", ErrInvalidKind, rangeName)
}

// ParseKind accepts the canonical names, the hyphenated forms used in URLs and the
// horoscope aliases "horoscope/daily" and "horoscope/weekly".
func ParseKind(raw string) (Kind, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if r, ok := strings.CutPrefix(s, "horoscope/"); ok {
		return HoroscopeKind(r)
	}
	s = strings.ReplaceAll(s, "-", "_")
	k := Kind(s)
	if !k.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidKind, raw)
	}
	return k, nil
}

// KindStrings converts kinds for use in SQL IN clauses.
func KindStrings(kinds []Kind) []string {
	out := make([]string, 0, len(kinds))
	for _, k := range kinds {
		out = append(out, string(k))
	}
	return out
}
