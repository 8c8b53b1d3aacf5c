package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/wsabol/psychic-chat-poc-sub001/internal/domain/content"
	"github.com/wsabol/psychic-chat-poc-sub001/internal/platform/logger"
	"github.com/wsabol/psychic-chat-poc-sub001/internal/platform/openai"
	"github.com/wsabol/psychic-chat-poc-sub001/internal/services/generation"
)

const fallbackGreeting = "Seeker"

var readingSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"full":  map[string]any{"type": "string"},
		"brief": map[string]any{"type": "string"},
	},
	"required":             []string{"full", "brief"},
	"additionalProperties": false,
}

// Generator produces oracle readings through an LLM. Text is written directly in the
// profile's content language, so no separate translated copy is returned.
type Generator struct {
	llm     openai.Client
	catalog *Catalog
	log     *logger.Logger
}

func NewGenerator(llm openai.Client, catalog *Catalog, baseLog *logger.Logger) *Generator {
	return &Generator{
		llm:     llm,
		catalog: catalog,
		log:     baseLog.With("service", "OracleGenerator"),
	}
}

func (g *Generator) Generate(ctx context.Context, req generation.GenerateRequest) (*generation.GenerateResult, error) {
	chart := decodeChart(req.Profile)
	data := promptData{
		Greeting:       greeting(req.Profile),
		Language:       req.Language,
		Kind:           string(req.Kind),
		Variant:        req.Variant,
		LocalDate:      req.LocalDate,
		LocalTimestamp: req.LocalTimestamp,
		Chart:          chart,
	}
	system, user, err := g.catalog.render(req.Kind, data)
	if err != nil {
		return nil, err
	}

	obj, err := g.llm.GenerateJSON(ctx, system, user, string(req.Kind), readingSchema)
	if err != nil {
		return nil, fmt.Errorf("oracle %s: %w", req.Kind, err)
	}
	full, _ := obj["full"].(string)
	brief, _ := obj["brief"].(string)
	if strings.TrimSpace(full) == "" {
		return nil, fmt.Errorf("oracle %s: empty reading", req.Kind)
	}

	extra := g.catalog.extraFor(req.Kind)
	if sign, ok := chart["sun_sign"].(string); ok && sign != "" {
		extra["zodiac_sign"] = sign
	}
	if req.Kind == content.KindMoonPhase {
		extra["phase"] = req.Variant
	}

	g.log.Debug("Oracle reading generated", "kind", string(req.Kind), "language", req.Language, "local_date", req.LocalDate)
	return &generation.GenerateResult{
		Texts:                generation.Texts{Full: full, Brief: brief},
		GeneratedAtLocalDate: req.LocalDate,
		Extra:                extra,
	}, nil
}

// greeting is the display name; trial accounts and unnamed users get a generic one.
func greeting(p *content.Profile) string {
	if p == nil || p.Temporary {
		return fallbackGreeting
	}
	if name := strings.TrimSpace(p.DisplayName); name != "" {
		return name
	}
	return fallbackGreeting
}

func decodeChart(p *content.Profile) map[string]any {
	if p == nil || len(p.Astrology) == 0 {
		return nil
	}
	var chart map[string]any
	if err := json.Unmarshal(p.Astrology, &chart); err != nil || len(chart) == 0 {
		return nil
	}
	return chart
}
