package extraction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radiology-findings-pipeline/internal/domain"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func oracleResponse(text string) string {
	body, _ := json.Marshal(map[string]interface{}{
		"candidates": []map[string]interface{}{
			{"content": map[string]interface{}{
				"parts": []map[string]string{{"text": text}},
			}},
		},
	})
	return string(body)
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return NewClient(domain.OracleConfig{
		BaseURL: server.URL,
		APIKey:  "test-key",
		Model:   "gemini-1.5-flash",
		Timeout: 5 * time.Second,
	}, testLogger())
}

func TestClient_Extract(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "gemini-1.5-flash")
		fmt.Fprint(w, oracleResponse(`{
			"Critical Findings": "Yes",
			"Incidental Findings": "No",
			"Mammogram Score": "BIRADS 4",
			"Follow Up Required": "Yes",
			"Risk Level": "High",
			"Summary": "Patient with prior malignancy.",
			"Time Critical Findings Found": "3:40 PM",
			"Scan Type": "CT"
		}`))
	})

	result, err := client.Extract(context.Background(), "CT chest report", "patient history")
	require.NoError(t, err)
	assert.Equal(t, "Yes", result.CriticalFindings)
	assert.Equal(t, "BIRADS 4", result.MammogramScore)
	assert.Equal(t, "3:40 PM", result.TimeFindingsFound)
	assert.Equal(t, "CT", result.ScanType)
	assert.Empty(t, result.RadiologistName, "absent optional key stays empty")
}

func TestClient_Extract_StripsCodeFence(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fenced := "```json\n{\"Critical Findings\": \"No\", \"Summary\": \"Stable.\"}\n```"
		fmt.Fprint(w, oracleResponse(fenced))
	})

	result, err := client.Extract(context.Background(), "report", "history")
	require.NoError(t, err)
	assert.Equal(t, "No", result.CriticalFindings)
	assert.Equal(t, "Stable.", result.Summary)
}

func TestClient_Extract_AppliesDefaults(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, oracleResponse(`{"Summary": "Brief history."}`))
	})

	result, err := client.Extract(context.Background(), "report", "history")
	require.NoError(t, err)
	assert.Equal(t, "No", result.CriticalFindings)
	assert.Equal(t, "No", result.IncidentalFindings)
	assert.Equal(t, "Not Available", result.MammogramScore)
	assert.Equal(t, "No", result.FollowUpRequired)
	assert.Equal(t, "Low", result.RiskLevel)
}

func TestClient_Extract_NonJSONOutput(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, oracleResponse("I could not process this report."))
	})

	_, err := client.Extract(context.Background(), "report", "history")
	assert.ErrorIs(t, err, domain.ErrOracleUnavailable)
}

func TestClient_Extract_RetriesServerErrors(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, oracleResponse(`{"Critical Findings": "Yes"}`))
	}))
	defer server.Close()

	client := NewClient(domain.OracleConfig{
		BaseURL:    server.URL,
		Model:      "gemini-1.5-flash",
		Timeout:    5 * time.Second,
		RetryCount: 2,
	}, testLogger())

	result, err := client.Extract(context.Background(), "report", "history")
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, "Yes", result.CriticalFindings)
}

func TestStripFences(t *testing.T) {
	assert.Equal(t, `{"a": 1}`, stripFences("```json\n{\"a\": 1}\n```"))
	assert.Equal(t, `{"a": 1}`, stripFences("```\n{\"a\": 1}\n```"))
	assert.Equal(t, `{"a": 1}`, stripFences(`  {"a": 1}  `))
	assert.Equal(t, "plain text", stripFences("plain text"))
}

// countingOracle is a stub oracle for the resilience wrapper tests.
type countingOracle struct {
	calls int
	err   error
}

func (c *countingOracle) Extract(ctx context.Context, radiologyText, clinicalText string) (*domain.ExtractionResult, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	r := &domain.ExtractionResult{Summary: "from oracle"}
	r.Normalize()
	return r, nil
}

func TestResilientOracle_CachesResults(t *testing.T) {
	stub := &countingOracle{}
	oracle := NewResilientOracle(stub, domain.CacheConfig{}, nil, testLogger())
	ctx := context.Background()

	first, err := oracle.Extract(ctx, "report A", "history A")
	require.NoError(t, err)

	second, err := oracle.Extract(ctx, "report A", "history A")
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, 1, stub.calls, "identical pair should hit the local cache")

	_, err = oracle.Extract(ctx, "report B", "history B")
	require.NoError(t, err)
	assert.Equal(t, 2, stub.calls)
}

func TestResilientOracle_BreakerOpens(t *testing.T) {
	stub := &countingOracle{err: errors.New("oracle down")}
	oracle := NewResilientOracle(stub, domain.CacheConfig{}, nil, testLogger())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := oracle.Extract(ctx, fmt.Sprintf("report %d", i), "history")
		assert.Error(t, err)
	}

	callsBefore := stub.calls
	_, err := oracle.Extract(ctx, "one more", "history")
	assert.Error(t, err)
	assert.Equal(t, callsBefore, stub.calls, "open breaker should short-circuit the call")
}
