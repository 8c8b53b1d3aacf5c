package content

// Status is the outcome reported to a caller asking for content.
type Status string

const (
	// StatusFresh is a cache hit; nothing was generated.
	StatusFresh Status = "fresh"
	// StatusGenerated means this call produced the content synchronously.
	StatusGenerated Status = "generated"
	// StatusGenerating means another attempt holds the lock (or a worker was handed the
	// attempt); the caller should retry shortly.
	StatusGenerating Status = "generating"
	// StatusError means a generation attempt was made and failed.
	StatusError Status = "error"
)

func (s Status) HasContent() bool {
	return s == StatusFresh || s == StatusGenerated
}
