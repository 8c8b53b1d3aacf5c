package content

import (
	"encoding/json"
	"strings"
)

const DefaultLanguage = "en-US"

// Profile is the slice of a user's profile that content generation reads.
type Profile struct {
	UserKey        string
	Timezone       string
	Language       string
	OracleLanguage string
	DisplayName    string
	// Temporary marks a free-trial account. Its content is generated once and kept for
	// the rest of the trial.
	Temporary bool
	Astrology json.RawMessage
}

// ContentLanguage is the language generated text should be written in.
func (p *Profile) ContentLanguage() string {
	if p == nil {
		return DefaultLanguage
	}
	if l := strings.TrimSpace(p.OracleLanguage); l != "" {
		return l
	}
	if l := strings.TrimSpace(p.Language); l != "" {
		return l
	}
	return DefaultLanguage
}
