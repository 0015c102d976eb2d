package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// OllamaService implements DraftService using a local Ollama LLM
type OllamaService struct {
	baseURL string
	model   string
}

// NewOllamaService creates a new Ollama service
func NewOllamaService(baseURL, model string) *OllamaService {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if model == "" {
		model = "llama3"
	}
	return &OllamaService{baseURL: baseURL, model: model}
}

// GenerateFollowUp implements DraftService
func (o *OllamaService) GenerateFollowUp(ctx context.Context, req DraftRequest) (*Draft, error) {
	url := o.baseURL + "/api/generate"

	payload := map[string]interface{}{
		"model":  o.model,
		"prompt": followUpPrompt(req),
		"stream": false,
		"options": map[string]interface{}{
			"temperature": 0.4,
			"num_predict": 400,
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	client := &http.Client{}
	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("ollama request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama API error (%d): %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		Response string `json:"response"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	return parseDraftJSON(result.Response)
}

// followUpPrompt builds the shared JSON-output drafting prompt used by both
// LLM providers so drafts stay consistent across them.
func followUpPrompt(req DraftRequest) string {
	tone := req.Tone
	if tone == "" {
		tone = "friendly but professional"
	}
	return fmt.Sprintf(`You are an email assistant drafting a short follow-up message.

SENDER: %s
RECIPIENT: %s
ORIGINAL SUBJECT: %s
DAYS WITHOUT A REPLY: %d
TONE: %s

CONTEXT (last message sent):
%s

INSTRUCTIONS:
1. Draft a brief, polite follow-up nudging the recipient for a reply.
2. Keep the body under 120 words, no placeholders like [Name].
3. Reply ONLY with a JSON object: {"subject": "...", "body": "...", "tone": "..."}.

JSON OUTPUT:`, req.SenderName, req.CounterpartName, req.Subject, req.IdleDays, tone, req.ContextSummary)
}

// parseDraftJSON extracts the draft object from an LLM response, tolerating
// stray prose around the JSON.
func parseDraftJSON(responseText string) (*Draft, error) {
	responseText = strings.TrimSpace(responseText)
	jsonStart := strings.Index(responseText, "{")
	jsonEnd := strings.LastIndex(responseText, "}")
	if jsonStart != -1 && jsonEnd != -1 && jsonEnd > jsonStart {
		responseText = responseText[jsonStart : jsonEnd+1]
	}

	var draft Draft
	if err := json.Unmarshal([]byte(responseText), &draft); err != nil {
		return nil, fmt.Errorf("failed to parse draft JSON: %v", err)
	}
	if draft.Body == "" {
		return nil, fmt.Errorf("draft response missing body")
	}
	if draft.Tone == "" {
		draft.Tone = "friendly"
	}
	return &draft, nil
}
