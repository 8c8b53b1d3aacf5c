package content

import (
	"fmt"
	"strings"
)

const lockSegment = "generating"

// Key identifies one cache slot: a user, a kind, and an optional variant.
// Both the artifact store and the generation lock derive their keys from it.
type Key struct {
	UserKey string `json:"user_key"`
	Kind    Kind   `json:"kind"`
	Variant string `json:"variant,omitempty"`
}

func NewKey(userKey string, kind Kind, variant string) Key {
	return Key{
		UserKey: strings.TrimSpace(userKey),
		Kind:    kind,
		Variant: strings.TrimSpace(variant),
	}
}

func (k Key) Validate() error {
	if k.UserKey == "" {
		return fmt.Errorf("%w: missing user key", ErrInvalidKey)
	}
	if strings.Contains(k.UserKey, ":") || strings.Contains(k.Variant, ":") {
		return fmt.Errorf("%w: ':' is reserved", ErrInvalidKey)
	}
	if !k.Kind.Valid() {
		return fmt.Errorf("%w: %w: %q", ErrInvalidKey, ErrInvalidKind, string(k.Kind))
	}
	if k.Kind.RequiresVariant() && k.Variant == "" {
		return fmt.Errorf("%w: %s requires a variant", ErrInvalidKey, k.Kind)
	}
	return nil
}

// String is the canonical serialization "{kind}:{userKey}:{variant}".
func (k Key) String() string {
	return string(k.Kind) + ":" + k.UserKey + ":" + k.Variant
}

// LockKey is "{kind}:generating:{userKey}:{variant}".
func (k Key) LockKey() string {
	return string(k.Kind) + ":" + lockSegment + ":" + k.UserKey + ":" + k.Variant
}
