package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

type GeminiService struct {
	ApiKey string
}

func NewGeminiService(apiKey string) *GeminiService {
	return &GeminiService{ApiKey: apiKey}
}

// DraftInput is the context for one follow-up draft
type DraftInput struct {
	SenderName      string
	CounterpartName string
	Subject         string
	ContextSummary  string
	Tone            string
	IdleDays        int
}

// DraftOutput is the generated follow-up message
type DraftOutput struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
	Tone    string `json:"tone"`
}

// DraftFollowUp generates a follow-up draft with gemini-2.5-flash
func (g *GeminiService) DraftFollowUp(ctx context.Context, input DraftInput) (*DraftOutput, error) {
	url := "https://generativelanguage.googleapis.com/v1beta/models/gemini-2.5-flash:generateContent?key=" + g.ApiKey

	tone := input.Tone
	if tone == "" {
		tone = "friendly but professional"
	}

	prompt := fmt.Sprintf(`You are an email assistant drafting a short follow-up message.

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

JSON OUTPUT:`, input.SenderName, input.CounterpartName, input.Subject, input.IdleDays, tone, input.ContextSummary)

	payload := map[string]interface{}{
		"contents": []map[string]interface{}{
			{"parts": []map[string]string{{"text": prompt}}},
		},
	}

	body, _ := json.Marshal(payload)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("Gemini API error: %s", string(respBody))
	}

	var result struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, err
	}

	if len(result.Candidates) == 0 || len(result.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("no draft returned")
	}

	return parseDraft(result.Candidates[0].Content.Parts[0].Text)
}

// parseDraft extracts the draft JSON from the model output, tolerating stray
// prose around the object.
func parseDraft(text string) (*DraftOutput, error) {
	text = strings.TrimSpace(text)
	jsonStart := strings.Index(text, "{")
	jsonEnd := strings.LastIndex(text, "}")
	if jsonStart != -1 && jsonEnd != -1 && jsonEnd > jsonStart {
		text = text[jsonStart : jsonEnd+1]
	}

	var draft DraftOutput
	if err := json.Unmarshal([]byte(text), &draft); err != nil {
		return nil, fmt.Errorf("failed to parse draft JSON: %v", err)
	}
	if draft.Body == "" {
		return nil, fmt.Errorf("draft response missing body")
	}
	return &draft, nil
}
