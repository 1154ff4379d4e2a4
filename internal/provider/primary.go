package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"letterworks/pkg/clients"
	"letterworks/pkg/models"
)

// RetryOnServerError retries only 5xx responses. Auth failures, missing
// endpoints, and timeouts abort immediately so the adapter can fall back.
func RetryOnServerError(resp *http.Response, err error) bool {
	return err == nil && resp != nil && resp.StatusCode >= http.StatusInternalServerError
}

// primaryClient talks to the research-augmented drafting backend. The
// backend may look up jurisdiction statutes and case law before drafting,
// which is why its timeout is generous.
type primaryClient struct {
	url     string
	apiKey  string
	timeout time.Duration
	retry   clients.RetryConfig
	breaker *clients.CircuitBreaker
	client  *http.Client
}

func newPrimaryClient(cfg Config, breaker *clients.CircuitBreaker) *primaryClient {
	return &primaryClient{
		url:     strings.TrimRight(cfg.PrimaryURL, "/"),
		apiKey:  cfg.PrimaryAPIKey,
		timeout: cfg.PrimaryTimeout,
		retry:   cfg.Retry,
		breaker: breaker,
		client:  &http.Client{Timeout: cfg.PrimaryTimeout},
	}
}

func (p *primaryClient) configured() bool {
	return p.url != ""
}

type primaryRequest struct {
	LetterID   string            `json:"letterId"`
	UserID     string            `json:"userId"`
	LetterType string            `json:"letterType"`
	IntakeData models.IntakeData `json:"intakeData"`
	Feedback   string            `json:"feedback,omitempty"`
}

type primaryResponse struct {
	Success         bool   `json:"success"`
	Content         string `json:"content"`
	Error           string `json:"error"`
	ResearchApplied bool   `json:"researchApplied"`
	Jurisdiction    string `json:"jurisdiction"`
}

func (p *primaryClient) generate(ctx context.Context, req Request) (Draft, *Failure) {
	payload, err := json.Marshal(primaryRequest{
		LetterID:   req.LetterID,
		UserID:     req.UserID,
		LetterType: req.LetterType,
		IntakeData: req.IntakeData,
		Feedback:   req.Feedback,
	})
	if err != nil {
		return Draft{}, &Failure{Provider: ProviderPrimary, Class: ClassServerError, Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url+"/generate", bytes.NewReader(payload))
	if err != nil {
		return Draft{}, &Failure{Provider: ProviderPrimary, Class: ClassServerError, Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	retry := p.retry
	retry.CircuitBreaker = p.breaker

	resp, err := clients.DoWithRetry(ctx, p.client, httpReq, retry)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return Draft{}, &Failure{Provider: ProviderPrimary, Class: ClassTimeout, Err: err}
		}
		return Draft{}, &Failure{Provider: ProviderPrimary, Class: ClassServerError, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return Draft{}, &Failure{Provider: ProviderPrimary, Class: ClassAuth,
			Err: fmt.Errorf("status %d", resp.StatusCode)}
	case resp.StatusCode == http.StatusNotFound:
		return Draft{}, &Failure{Provider: ProviderPrimary, Class: ClassNotConfigured,
			Err: fmt.Errorf("status %d", resp.StatusCode)}
	case resp.StatusCode >= http.StatusInternalServerError:
		return Draft{}, &Failure{Provider: ProviderPrimary, Class: ClassServerError,
			Err: fmt.Errorf("status %d after retries", resp.StatusCode)}
	case resp.StatusCode != http.StatusOK:
		return Draft{}, &Failure{Provider: ProviderPrimary, Class: ClassServerError,
			Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Draft{}, &Failure{Provider: ProviderPrimary, Class: ClassServerError, Err: err}
	}

	var parsed primaryResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return Draft{}, &Failure{Provider: ProviderPrimary, Class: ClassServerError,
			Err: fmt.Errorf("decode response: %w", err)}
	}

	if !parsed.Success {
		return Draft{}, &Failure{Provider: ProviderPrimary, Class: ClassServerError,
			Err: fmt.Errorf("provider error: %s", parsed.Error)}
	}

	return Draft{
		Content:         parsed.Content,
		Method:          ProviderPrimary,
		ResearchApplied: parsed.ResearchApplied,
		Jurisdiction:    parsed.Jurisdiction,
	}, nil
}
