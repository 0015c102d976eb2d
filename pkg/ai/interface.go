package ai

import "context"

// PromptVersion is stamped on every generated draft so regenerated content
// can be told apart from drafts produced by older prompts.
const PromptVersion = "followup-v2"

// DraftRequest carries the context a provider needs to draft a follow-up
type DraftRequest struct {
	SenderName      string
	CounterpartName string
	Subject         string
	ContextSummary  string
	Tone            string
	IdleDays        int
}

// Draft is a generated follow-up message
type Draft struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
	Tone    string `json:"tone"`
}

// DraftService is the interface for AI follow-up drafting.
// Implement this interface to add new AI providers (Gemini, Ollama, OpenAI, etc.)
type DraftService interface {
	GenerateFollowUp(ctx context.Context, req DraftRequest) (*Draft, error)
}

// ProviderType represents the AI provider type
type ProviderType string

const (
	ProviderGemini   ProviderType = "gemini"
	ProviderOllama   ProviderType = "ollama"
	ProviderTemplate ProviderType = "template"
	ProviderAuto     ProviderType = "auto"
)
