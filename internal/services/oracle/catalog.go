package oracle

import (
	_ "embed"
	"fmt"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"

	"github.com/wsabol/psychic-chat-poc-sub001/internal/domain/content"
)

//go:embed prompts.yaml
var defaultPrompts []byte

type promptFile struct {
	System   string                `yaml:"system"`
	Kinds    map[string]kindPrompt `yaml:"kinds"`
	Partials map[string]string     `yaml:"partials"`
}

type kindPrompt struct {
	Request string         `yaml:"request"`
	Extra   map[string]any `yaml:"extra"`
}

// Catalog holds the parsed prompt templates, one request template per kind.
type Catalog struct {
	system   *template.Template
	requests map[content.Kind]*template.Template
	extra    map[content.Kind]map[string]any
}

// promptData is what templates see.
type promptData struct {
	Greeting       string
	Language       string
	Kind           string
	Variant        string
	LocalDate      string
	LocalTimestamp string
	Chart          map[string]any
}

func DefaultCatalog() (*Catalog, error) {
	return ParseCatalog(defaultPrompts)
}

// ParseCatalog parses a prompt file. Every known kind must have a request template.
func ParseCatalog(raw []byte) (*Catalog, error) {
	var pf promptFile
	if err := yaml.Unmarshal(raw, &pf); err != nil {
		return nil, fmt.Errorf("parse prompts: %w", err)
	}
	if strings.TrimSpace(pf.System) == "" {
		return nil, fmt.Errorf("parse prompts: missing system prompt")
	}

	base := template.New("partials").Option("missingkey=zero")
	for name, body := range pf.Partials {
		if _, err := base.New(name).Parse(body); err != nil {
			return nil, fmt.Errorf("parse partial %q: %w", name, err)
		}
	}

	c := &Catalog{
		requests: make(map[content.Kind]*template.Template, len(pf.Kinds)),
		extra:    make(map[content.Kind]map[string]any, len(pf.Kinds)),
	}
	var err error
	if c.system, err = template.New("system").Parse(pf.System); err != nil {
		return nil, fmt.Errorf("parse system prompt: %w", err)
	}
	for name, kp := range pf.Kinds {
		kind, err := content.ParseKind(name)
		if err != nil {
			return nil, fmt.Errorf("prompts: %w", err)
		}
		t, err := base.Clone()
		if err != nil {
			return nil, err
		}
		if _, err := t.New(name).Parse(kp.Request); err != nil {
			return nil, fmt.Errorf("parse %s prompt: %w", name, err)
		}
		c.requests[kind] = t.Lookup(name)
		c.extra[kind] = kp.Extra
	}
	for _, k := range content.AllKinds() {
		if c.requests[k] == nil {
			return nil, fmt.Errorf("prompts: no request template for %s", k)
		}
	}
	return c, nil
}

func (c *Catalog) render(kind content.Kind, data promptData) (system, user string, err error) {
	t := c.requests[kind]
	if t == nil {
		return "", "", fmt.Errorf("%w: no prompt for %q", content.ErrInvalidKind, string(kind))
	}
	var sb, ub strings.Builder
	if err := c.system.Execute(&sb, data); err != nil {
		return "", "", fmt.Errorf("render system prompt: %w", err)
	}
	if err := t.Execute(&ub, data); err != nil {
		return "", "", fmt.Errorf("render %s prompt: %w", kind, err)
	}
	return strings.TrimSpace(sb.String()), strings.TrimSpace(ub.String()), nil
}

// extraFor returns a copy of the static payload fields configured for kind.
func (c *Catalog) extraFor(kind content.Kind) map[string]any {
	src := c.extra[kind]
	out := make(map[string]any, len(src)+2)
	for k, v := range src {
		out[k] = v
	}
	return out
}
