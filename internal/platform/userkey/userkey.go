// Package userkey derives the one-way user key that content rows and locks are keyed by.
package userkey

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Deriver hashes raw user ids with a server-side salt.
type Deriver struct {
	salt []byte
}

func New(salt string) *Deriver {
	return &Deriver{salt: []byte(salt)}
}

// Derive returns hex(HMAC-SHA256(salt, userID)), or "" for an empty id.
func (d *Deriver) Derive(userID string) string {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return ""
	}
	mac := hmac.New(sha256.New, d.salt)
	_, _ = mac.Write([]byte(userID))
	return hex.EncodeToString(mac.Sum(nil))
}

// IsTemporary reports whether the raw id belongs to a free-trial account.
func IsTemporary(userID string) bool {
	return strings.HasPrefix(strings.TrimSpace(userID), "temp_")
}
