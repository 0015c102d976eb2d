package ai

import (
	"context"
	"fmt"
	"log"
	"net"
	"strings"
)

// FallbackService routes drafting across providers: Gemini first (better
// quality), Ollama on quota exhaustion, and the deterministic template when
// no LLM is reachable. The template terminates the chain, so GenerateFollowUp
// only fails when every provider including the template does.
type FallbackService struct {
	gemini   DraftService
	ollama   *OllamaService
	template *TemplateService
}

// NewFallbackService creates a fallback service; gemini and ollama may be nil
func NewFallbackService(gemini DraftService, ollama *OllamaService) *FallbackService {
	return &FallbackService{
		gemini:   gemini,
		ollama:   ollama,
		template: NewTemplateService(),
	}
}

// isConnectionError checks if the error is a network/connection error
func isConnectionError(err error) bool {
	if err == nil {
		return false
	}

	if _, ok := err.(net.Error); ok {
		return true
	}

	errStr := strings.ToLower(err.Error())
	connectionIndicators := []string{
		"connection refused",
		"no such host",
		"network is unreachable",
		"connection reset",
		"timeout",
		"dial tcp",
		"eof",
	}
	for _, indicator := range connectionIndicators {
		if strings.Contains(errStr, indicator) {
			return true
		}
	}
	return false
}

// isQuotaError checks if the error indicates API quota exhaustion (429)
func isQuotaError(err error) bool {
	if err == nil {
		return false
	}

	errStr := strings.ToLower(err.Error())
	quotaIndicators := []string{
		"429",
		"quota",
		"rate limit",
		"too many requests",
		"resource exhausted",
	}
	for _, indicator := range quotaIndicators {
		if strings.Contains(errStr, indicator) {
			return true
		}
	}
	return false
}

// GenerateFollowUp implements DraftService
func (f *FallbackService) GenerateFollowUp(ctx context.Context, req DraftRequest) (*Draft, error) {
	if f.gemini != nil {
		draft, err := f.gemini.GenerateFollowUp(ctx, req)
		if err == nil {
			return draft, nil
		}
		if isQuotaError(err) {
			log.Printf("[AI] Gemini quota exhausted: %v, falling back to Ollama", err)
		} else {
			log.Printf("[AI] Gemini error: %v, falling back to Ollama", err)
		}
	}

	if f.ollama != nil {
		draft, err := f.ollama.GenerateFollowUp(ctx, req)
		if err == nil {
			return draft, nil
		}
		if isConnectionError(err) {
			log.Printf("[AI] Ollama connection failed: %v, using template draft", err)
		} else {
			log.Printf("[AI] Ollama error: %v, using template draft", err)
		}
	}

	draft, err := f.template.GenerateFollowUp(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("template drafting failed: %w", err)
	}
	return draft, nil
}
