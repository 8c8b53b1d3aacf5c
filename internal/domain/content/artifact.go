package content

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Artifact is one generated piece of content for one user.
//
// LocalDateStamp is the calendar date (YYYY-MM-DD) in the user's timezone the artifact
// was generated for. It is the freshness key and is never derived from CreatedAt.
type Artifact struct {
	ID               uuid.UUID       `json:"id"`
	UserKey          string          `json:"user_key"`
	Kind             Kind            `json:"kind"`
	Variant          string          `json:"variant,omitempty"`
	FullContent      json.RawMessage `json:"full_content,omitempty"`
	BriefContent     json.RawMessage `json:"brief_content,omitempty"`
	FullContentLang  json.RawMessage `json:"full_content_lang,omitempty"`
	BriefContentLang json.RawMessage `json:"brief_content_lang,omitempty"`
	LanguageCode     string          `json:"language_code,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	LocalDateStamp   string          `json:"local_date_stamp,omitempty"`
	AttemptToken     string          `json:"-"`
}

func (a *Artifact) Key() Key {
	if a == nil {
		return Key{}
	}
	return Key{UserKey: a.UserKey, Kind: a.Kind, Variant: a.Variant}
}

// ContentFor picks the language-specific copy when it was generated for language,
// falling back to the primary copy.
func (a *Artifact) ContentFor(language string) (full, brief json.RawMessage) {
	if a == nil {
		return nil, nil
	}
	full, brief = a.FullContent, a.BriefContent
	language = strings.TrimSpace(language)
	if language == "" || !strings.EqualFold(language, a.LanguageCode) {
		return full, brief
	}
	if len(a.FullContentLang) > 0 {
		full = a.FullContentLang
		if len(a.BriefContentLang) > 0 {
			brief = a.BriefContentLang
		}
	}
	return full, brief
}

// PayloadField decodes raw as a JSON object and returns field as a string.
// ok is false when raw is not an object or the field is absent or not a string.
func PayloadField(raw json.RawMessage, field string) (string, bool) {
	if len(raw) == 0 {
		return "", false
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return "", false
	}
	v, ok := obj[field]
	if !ok {
		return "", false
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return "", false
	}
	return s, true
}
