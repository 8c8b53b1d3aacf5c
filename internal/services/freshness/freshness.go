// Package freshness decides whether a stored artifact is still valid for a user's today.
//
// Freshness is string equality of calendar dates (YYYY-MM-DD), never a comparison of
// instants. Which date an artifact is judged by depends on its kind.
package freshness

import (
	"github.com/wsabol/psychic-chat-poc-sub001/internal/domain/content"
	"github.com/wsabol/psychic-chat-poc-sub001/internal/platform/localdate"
)

type Strategy interface {
	IsStale(a *content.Artifact, today string) bool
	Name() string
}

// StampStrategy judges by the row's LocalDateStamp.
type StampStrategy struct{}

func (StampStrategy) Name() string { return "stamp" }

func (StampStrategy) IsStale(a *content.Artifact, today string) bool {
	if a == nil || a.LocalDateStamp == "" {
		return true
	}
	return a.LocalDateStamp != today
}

// PayloadDateStrategy judges by a date embedded in the decoded full content. The first
// ten characters of Field must equal today. It never falls back to the row stamp: a
// payload without the field is stale.
type PayloadDateStrategy struct {
	Field string
}

func (s PayloadDateStrategy) Name() string { return "payload:" + s.Field }

func (s PayloadDateStrategy) IsStale(a *content.Artifact, today string) bool {
	if a == nil {
		return true
	}
	raw, ok := content.PayloadField(a.FullContent, s.Field)
	if !ok || len(raw) < len(localdate.Layout) {
		return true
	}
	date := raw[:len(localdate.Layout)]
	if !localdate.IsDate(date) {
		return true
	}
	return date != today
}

// Evaluator selects a strategy per kind.
type Evaluator struct {
	fallback Strategy
	byKind   map[content.Kind]Strategy
}

// NewEvaluator returns the default mapping: void_of_course is judged by the
// generated_at date inside its payload, every other kind by its stamp.
func NewEvaluator() *Evaluator {
	return &Evaluator{
		fallback: StampStrategy{},
		byKind: map[content.Kind]Strategy{
			content.KindVoidOfCourse: PayloadDateStrategy{Field: "generated_at"},
		},
	}
}

// With returns a copy of e that uses s for kind.
func (e *Evaluator) With(kind content.Kind, s Strategy) *Evaluator {
	out := &Evaluator{fallback: e.fallback, byKind: make(map[content.Kind]Strategy, len(e.byKind)+1)}
	for k, v := range e.byKind {
		out.byKind[k] = v
	}
	out.byKind[kind] = s
	return out
}

func (e *Evaluator) StrategyFor(kind content.Kind) Strategy {
	if s, ok := e.byKind[kind]; ok {
		return s
	}
	return e.fallback
}

func (e *Evaluator) IsStale(a *content.Artifact, today string) bool {
	if a == nil {
		return true
	}
	return e.StrategyFor(a.Kind).IsStale(a, today)
}
