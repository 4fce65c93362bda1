// Package extraction calls the LLM extraction oracle that turns a radiology
// report and its matched clinical report into structured findings. The
// client speaks the Gemini generateContent REST API; resilience (circuit
// breaking and caching) is layered on by ResilientOracle.
package extraction

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/radiology-findings-pipeline/internal/domain"
)

// Client is the oracle HTTP client. It rate-limits requests and retries
// transient failures before reporting an error to the caller.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	retryCount int
	httpClient *http.Client
	limiter    *rate.Limiter
	log        *logrus.Logger
}

// NewClient builds an oracle client from configuration.
func NewClient(cfg domain.OracleConfig, logger *logrus.Logger) *Client {
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		retryCount: cfg.RetryCount,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		limiter: rate.NewLimiter(limit, 1),
		log:     logger,
	}
}

// generateRequest is the generateContent request body.
type generateRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

// generateResponse is the subset of the generateContent response we read.
type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []part `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// fencePattern strips a surrounding markdown code fence, with or without a
// language tag, that models emit despite being told not to.
var fencePattern = regexp.MustCompile("(?s)^```\\w*\\s*(.*?)\\s*```$")

// Extract sends one report pair to the oracle and parses the structured
// result. Absent keys are filled with their documented defaults.
func (c *Client) Extract(ctx context.Context, radiologyText, clinicalText string) (*domain.ExtractionResult, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	prompt := BuildPrompt(radiologyText, clinicalText)

	var lastErr error
	attempts := c.retryCount + 1
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(time.Duration(attempt) * time.Second):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		result, err := c.generate(ctx, prompt)
		if err == nil {
			return result, nil
		}
		lastErr = err
		c.log.WithError(err).WithField("attempt", attempt+1).Debug("Oracle call failed")
	}

	return nil, fmt.Errorf("%w: %v", domain.ErrOracleUnavailable, lastErr)
}

func (c *Client) generate(ctx context.Context, prompt string) (*domain.ExtractionResult, error) {
	reqBody, err := json.Marshal(generateRequest{
		Contents: []content{{Parts: []part{{Text: prompt}}}},
	})
	if err != nil {
		return nil, fmt.Errorf("encoding oracle request: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s", c.baseURL, c.model, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("building oracle request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling oracle: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading oracle response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("oracle returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var genResp generateResponse
	if err := json.Unmarshal(body, &genResp); err != nil {
		return nil, fmt.Errorf("decoding oracle response: %w", err)
	}
	if len(genResp.Candidates) == 0 || len(genResp.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("oracle returned no candidates")
	}

	raw := stripFences(genResp.Candidates[0].Content.Parts[0].Text)

	result := &domain.ExtractionResult{}
	if err := json.Unmarshal([]byte(raw), result); err != nil {
		return nil, fmt.Errorf("parsing extraction output: %w", err)
	}

	result.Normalize()
	return result, nil
}

// stripFences removes a surrounding markdown code fence, if present.
func stripFences(text string) string {
	text = strings.TrimSpace(text)
	if m := fencePattern.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return text
}
