package ai

import (
	"context"
	"fmt"
	"strings"
)

// TemplateService is the deterministic fallback drafter. It needs no AI
// backend and never fails, so it terminates every fallback chain.
type TemplateService struct{}

// NewTemplateService creates a new template-based draft service
func NewTemplateService() *TemplateService {
	return &TemplateService{}
}

// GenerateFollowUp implements DraftService with a fixed template
func (t *TemplateService) GenerateFollowUp(_ context.Context, req DraftRequest) (*Draft, error) {
	subject := strings.TrimSpace(req.Subject)
	if subject == "" {
		subject = "our conversation"
	}
	draftSubject := subject
	if !strings.HasPrefix(strings.ToLower(draftSubject), "re:") {
		draftSubject = "Re: " + draftSubject
	}

	name := strings.TrimSpace(req.CounterpartName)
	greeting := "Hi,"
	if name != "" {
		greeting = fmt.Sprintf("Hi %s,", firstName(name))
	}

	timing := "recently"
	switch {
	case req.IdleDays == 1:
		timing = "yesterday"
	case req.IdleDays > 1:
		timing = fmt.Sprintf("%d days ago", req.IdleDays)
	}

	body := fmt.Sprintf(`%s

I wanted to follow up on my message about "%s" from %s. I know things get busy, so I thought I'd check in.

Is there anything you need from me to move this forward?

Best,
%s`, greeting, subject, timing, req.SenderName)

	tone := req.Tone
	if tone == "" {
		tone = "friendly"
	}

	return &Draft{
		Subject: draftSubject,
		Body:    body,
		Tone:    tone,
	}, nil
}

func firstName(full string) string {
	if i := strings.IndexByte(full, ' '); i > 0 {
		return full[:i]
	}
	return full
}
