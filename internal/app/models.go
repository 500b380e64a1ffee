package app

import (
	"os"
	"strings"
)

// ModelRef names a model as "provider/model-id".
type ModelRef struct {
	Provider string
	ID       string
}

func (r ModelRef) String() string {
	return r.Provider + "/" + r.ID
}

func (r ModelRef) IsZero() bool {
	return strings.TrimSpace(r.Provider) == "" && strings.TrimSpace(r.ID) == ""
}

// ParseModelRef splits "provider/model-id". A bare id resolves against the
// catalog by id alone.
func ParseModelRef(s string) ModelRef {
	s = strings.TrimSpace(s)
	if s == "" {
		return ModelRef{}
	}
	if i := strings.Index(s, "/"); i >= 0 {
		return ModelRef{Provider: strings.ToLower(strings.TrimSpace(s[:i])), ID: strings.TrimSpace(s[i+1:])}
	}
	return ModelRef{ID: s}
}

type ModelInfo struct {
	Ref                 ModelRef
	DisplayName         string
	ContextWindowTokens int
	MaxOutputTokens     int
	CredentialEnv       []string
}

var modelCatalog = []ModelInfo{
	{
		Ref:                 ModelRef{Provider: "anthropic", ID: "claude-sonnet-4-5"},
		DisplayName:         "Claude Sonnet 4.5",
		ContextWindowTokens: 200_000,
		MaxOutputTokens:     64_000,
		CredentialEnv:       []string{"ANTHROPIC_API_KEY"},
	},
	{
		Ref:                 ModelRef{Provider: "anthropic", ID: "claude-haiku-4-5"},
		DisplayName:         "Claude Haiku 4.5",
		ContextWindowTokens: 200_000,
		MaxOutputTokens:     64_000,
		CredentialEnv:       []string{"ANTHROPIC_API_KEY"},
	},
	{
		Ref:                 ModelRef{Provider: "google", ID: "gemini-2.0-flash"},
		DisplayName:         "Gemini 2.0 Flash",
		ContextWindowTokens: 1_000_000,
		MaxOutputTokens:     8_192,
		CredentialEnv:       []string{"GEMINI_API_KEY", "GOOGLE_API_KEY"},
	},
	{
		Ref:                 ModelRef{Provider: "openai", ID: "gpt-4o-mini"},
		DisplayName:         "GPT-4o mini",
		ContextWindowTokens: 128_000,
		MaxOutputTokens:     16_384,
		CredentialEnv:       []string{"OPENAI_API_KEY"},
	},
	{
		Ref:                 ModelRef{Provider: "openai", ID: "gpt-4o"},
		DisplayName:         "GPT-4o",
		ContextWindowTokens: 128_000,
		MaxOutputTokens:     16_384,
		CredentialEnv:       []string{"OPENAI_API_KEY"},
	},
}

// ResolveModel looks a reference up in the catalog. Provider may be empty,
// in which case the first id match wins.
func ResolveModel(ref ModelRef) (ModelInfo, bool) {
	id := strings.ToLower(strings.TrimSpace(ref.ID))
	provider := strings.ToLower(strings.TrimSpace(ref.Provider))
	if id == "" {
		return ModelInfo{}, false
	}
	for _, info := range modelCatalog {
		if strings.ToLower(info.Ref.ID) != id {
			continue
		}
		if provider != "" && info.Ref.Provider != provider {
			continue
		}
		return info, true
	}
	return ModelInfo{}, false
}

// LookupCredential finds an API key for a model: provider environment
// variables first, then the config credentials map. Returns "" when nothing
// usable is configured.
func LookupCredential(cfg Config, info ModelInfo) string {
	for _, env := range info.CredentialEnv {
		if v := strings.TrimSpace(os.Getenv(env)); v != "" {
			return v
		}
	}
	if v := strings.TrimSpace(cfg.Credentials[info.Ref.Provider]); v != "" {
		return v
	}
	return ""
}

// handoffFallbackRefs is the fixed fallback tail tried after the configured
// default when picking a model for session handoff.
var handoffFallbackRefs = []ModelRef{
	{Provider: "anthropic", ID: "claude-sonnet-4-5"},
	{Provider: "anthropic", ID: "claude-haiku-4-5"},
	{Provider: "google", ID: "gemini-2.0-flash"},
	{Provider: "openai", ID: "gpt-4o-mini"},
}

// HandoffCandidates returns the ordered candidate list for handoff model
// selection: the configured default model first, then the fixed fallbacks.
func HandoffCandidates(cfg Config) []ModelRef {
	out := make([]ModelRef, 0, len(handoffFallbackRefs)+1)
	if ref := ParseModelRef(cfg.Model); !ref.IsZero() {
		out = append(out, ref)
	}
	out = append(out, handoffFallbackRefs...)
	return out
}

// FormatModelList renders refs as "provider/id, provider/id" for error text.
func FormatModelList(refs []ModelRef) string {
	parts := make([]string, 0, len(refs))
	for _, r := range refs {
		parts = append(parts, r.String())
	}
	return strings.Join(parts, ", ")
}
