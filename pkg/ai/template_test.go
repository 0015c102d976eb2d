package ai

import (
	"context"
	"strings"
	"testing"
)

func TestTemplateServiceBasicDraft(t *testing.T) {
	svc := NewTemplateService()

	draft, err := svc.GenerateFollowUp(context.Background(), DraftRequest{
		SenderName:      "Owner",
		CounterpartName: "Alice Smith",
		Subject:         "Proposal",
		IdleDays:        4,
	})
	if err != nil {
		t.Fatalf("GenerateFollowUp returned error: %v", err)
	}

	if draft.Subject != "Re: Proposal" {
		t.Errorf("subject = %q, want Re: prefix", draft.Subject)
	}
	if !strings.Contains(draft.Body, "Hi Alice,") {
		t.Errorf("body should greet by first name, got %q", draft.Body)
	}
	if !strings.Contains(draft.Body, "4 days ago") {
		t.Errorf("body should mention the idle time, got %q", draft.Body)
	}
	if draft.Tone != "friendly" {
		t.Errorf("tone = %q, want friendly default", draft.Tone)
	}
}

func TestTemplateServiceKeepsReplyPrefix(t *testing.T) {
	svc := NewTemplateService()

	draft, _ := svc.GenerateFollowUp(context.Background(), DraftRequest{Subject: "RE: Proposal"})
	if strings.Count(strings.ToLower(draft.Subject), "re:") != 1 {
		t.Errorf("subject = %q, want a single reply prefix", draft.Subject)
	}
}

func TestTemplateServiceEmptyInputs(t *testing.T) {
	svc := NewTemplateService()

	draft, err := svc.GenerateFollowUp(context.Background(), DraftRequest{})
	if err != nil {
		t.Fatalf("template drafting must never fail, got %v", err)
	}
	if draft.Subject != "Re: our conversation" {
		t.Errorf("subject = %q, want generic fallback", draft.Subject)
	}
	if !strings.Contains(draft.Body, "Hi,") {
		t.Errorf("body should fall back to a plain greeting, got %q", draft.Body)
	}
}

func TestParseDraftJSON(t *testing.T) {
	cases := []struct {
		name     string
		response string
		wantErr  bool
		wantBody string
		wantTone string
	}{
		{
			name:     "clean json",
			response: `{"subject": "Re: X", "body": "Ping", "tone": "direct"}`,
			wantBody: "Ping",
			wantTone: "direct",
		},
		{
			name:     "json wrapped in prose",
			response: "Sure, here you go:\n```json\n{\"subject\": \"Re: X\", \"body\": \"Ping\"}\n```",
			wantBody: "Ping",
			wantTone: "friendly",
		},
		{
			name:     "missing body",
			response: `{"subject": "Re: X"}`,
			wantErr:  true,
		},
		{
			name:     "not json at all",
			response: "I cannot help with that.",
			wantErr:  true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			draft, err := parseDraftJSON(tc.response)
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if draft.Body != tc.wantBody {
				t.Errorf("body = %q, want %q", draft.Body, tc.wantBody)
			}
			if draft.Tone != tc.wantTone {
				t.Errorf("tone = %q, want %q", draft.Tone, tc.wantTone)
			}
		})
	}
}

func TestNewDraftServiceNeverNil(t *testing.T) {
	cases := []Config{
		{},
		{Provider: ProviderTemplate},
		{Provider: ProviderGemini}, // no API key, degrades to template
		{Provider: ProviderAuto},
	}

	for _, cfg := range cases {
		if svc := NewDraftService(cfg); svc == nil {
			t.Errorf("NewDraftService(%+v) returned nil", cfg)
		}
	}
}
