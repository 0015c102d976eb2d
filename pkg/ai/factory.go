package ai

import (
	"context"

	"followup-backend/pkg/gemini"
)

// Config holds AI provider configuration
type Config struct {
	Provider ProviderType // "gemini", "ollama", "template" or "auto"

	// Gemini config
	GeminiAPIKey string

	// Ollama config
	OllamaBaseURL string // e.g., "http://localhost:11434"
	OllamaModel   string // e.g., "llama3", "mistral"
}

// geminiAdapter bridges pkg/gemini's local types to the DraftService interface
type geminiAdapter struct {
	svc *gemini.GeminiService
}

func (a *geminiAdapter) GenerateFollowUp(ctx context.Context, req DraftRequest) (*Draft, error) {
	out, err := a.svc.DraftFollowUp(ctx, gemini.DraftInput{
		SenderName:      req.SenderName,
		CounterpartName: req.CounterpartName,
		Subject:         req.Subject,
		ContextSummary:  req.ContextSummary,
		Tone:            req.Tone,
		IdleDays:        req.IdleDays,
	})
	if err != nil {
		return nil, err
	}
	return &Draft{Subject: out.Subject, Body: out.Body, Tone: out.Tone}, nil
}

// NewDraftService creates a DraftService based on the config. It never fails:
// with no AI backend configured, drafting degrades to the deterministic
// template fallback.
func NewDraftService(cfg Config) DraftService {
	switch cfg.Provider {
	case ProviderTemplate:
		return NewTemplateService()

	case ProviderGemini:
		if cfg.GeminiAPIKey == "" {
			return NewTemplateService()
		}
		return NewFallbackService(&geminiAdapter{svc: gemini.NewGeminiService(cfg.GeminiAPIKey)}, nil)

	case ProviderOllama:
		return NewFallbackService(nil, NewOllamaService(cfg.OllamaBaseURL, cfg.OllamaModel))

	default:
		var geminiSvc DraftService
		if cfg.GeminiAPIKey != "" {
			geminiSvc = &geminiAdapter{svc: gemini.NewGeminiService(cfg.GeminiAPIKey)}
		}
		var ollamaSvc *OllamaService
		if cfg.OllamaBaseURL != "" || geminiSvc == nil {
			ollamaSvc = NewOllamaService(cfg.OllamaBaseURL, cfg.OllamaModel)
		}
		return NewFallbackService(geminiSvc, ollamaSvc)
	}
}
