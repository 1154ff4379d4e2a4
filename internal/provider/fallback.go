package provider

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"letterworks/pkg/models"
)

// fallbackClient talks to the direct completion backend. No jurisdiction
// research, no retries; a single shot with its own timeout.
type fallbackClient struct {
	url    string
	apiKey string
	model  string
	client *resty.Client
}

func newFallbackClient(cfg Config) *fallbackClient {
	timeout := cfg.FallbackTimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	client := resty.New().SetTimeout(timeout)
	return &fallbackClient{
		url:    strings.TrimRight(cfg.FallbackURL, "/"),
		apiKey: cfg.FallbackAPIKey,
		model:  cfg.FallbackModel,
		client: client,
	}
}

func (f *fallbackClient) configured() bool {
	return f.url != ""
}

type fallbackRequest struct {
	Model      string            `json:"model,omitempty"`
	LetterID   string            `json:"letterId"`
	UserID     string            `json:"userId"`
	LetterType string            `json:"letterType"`
	IntakeData models.IntakeData `json:"intakeData"`
	Feedback   string            `json:"feedback,omitempty"`
}

type fallbackResponse struct {
	Success bool   `json:"success"`
	Content string `json:"content"`
	Error   string `json:"error"`
}

func (f *fallbackClient) generate(ctx context.Context, req Request) (Draft, *Failure) {
	var parsed fallbackResponse

	resp, err := f.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("Authorization", "Bearer "+f.apiKey).
		SetBody(fallbackRequest{
			Model:      f.model,
			LetterID:   req.LetterID,
			UserID:     req.UserID,
			LetterType: req.LetterType,
			IntakeData: req.IntakeData,
			Feedback:   req.Feedback,
		}).
		SetResult(&parsed).
		Post(f.url + "/complete")

	if err != nil {
		if ctx.Err() != nil {
			return Draft{}, &Failure{Provider: ProviderFallback, Class: ClassTimeout, Err: err}
		}
		return Draft{}, &Failure{Provider: ProviderFallback, Class: ClassServerError, Err: err}
	}

	switch code := resp.StatusCode(); {
	case code == 401 || code == 403:
		return Draft{}, &Failure{Provider: ProviderFallback, Class: ClassAuth,
			Err: fmt.Errorf("status %d", code)}
	case code != 200:
		return Draft{}, &Failure{Provider: ProviderFallback, Class: ClassServerError,
			Err: fmt.Errorf("status %d: %s", code, string(resp.Body()))}
	}

	if !parsed.Success {
		return Draft{}, &Failure{Provider: ProviderFallback, Class: ClassServerError,
			Err: fmt.Errorf("provider error: %s", parsed.Error)}
	}

	return Draft{
		Content: parsed.Content,
		Method:  ProviderFallback,
	}, nil
}
