// Package llmclient issues the one advisory request to the external LLM:
// given an anonymized Sample's JSON and a list of policy summaries, it
// returns the model's raw free-text reply for the Parser to structure.
//
// The HTTP round-trip is wrapped in a circuit breaker (sony/gobreaker) so
// a dead endpoint fails fast instead of being re-dialed every
// recommendation cycle, and in a hedged request (cristalhq/hedgedhttp) to
// bound tail latency within the 30s budget — neither changes the wire
// contract, both are resilience additions spec.md leaves to the
// implementer.
package llmclient

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cristalhq/hedgedhttp"
	jsoniter "github.com/json-iterator/go"
	"github.com/sony/gobreaker"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

const requestTimeout = 30 * time.Second

const systemPrompt = `You are an observability pipeline optimizer. You analyze samples of ` +
	`traces, metrics and logs together with the operator's label policies, and ` +
	`recommend what telemetry is safe to drop and which label policies are being ` +
	`violated. Be specific and actionable.`

const userPromptTemplate = `Analyze this telemetry sample and the following label policies, then respond ` +
	`with exactly these four sections:

SIGNALS TO DROP
- (bullet list of signals or signal classes safe to drop)

LABEL POLICY VIOLATIONS
- (bullet list of policy violations observed in the sample)

OTEL FILTER RULES
traces:
  span:
    - 'attributes["key"] == "value"'
metrics:
  metric:
    - 'resource.attributes["key"] == nil'
logs:
  log_record:
    - 'attributes["key"] == "value"'

RATIONALE
- (one bullet per recommendation above, in order)

POLICIES:
%s

SAMPLE:
%s
`

// TransportError is the typed error returned for a non-2xx response or a
// failed round-trip. The Recommender treats it as recoverable: it counts
// the transport error and falls back to the static set if enabled.
type TransportError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("llm transport error: %v", e.Err)
	}
	return fmt.Sprintf("llm transport error: status %d: %s", e.StatusCode, e.Body)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Config names the chat-completion endpoint and credentials.
type Config struct {
	Endpoint string `yaml:"endpoint"`
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
}

// RegisterFlagsAndApplyDefaults registers Config's flags with defaults.
func (c *Config) RegisterFlagsAndApplyDefaults(prefix string, f *flag.FlagSet) {
	f.StringVar(&c.Endpoint, prefix+"llm-endpoint", "", "chat-completion endpoint URL")
	f.StringVar(&c.Model, prefix+"llm-model", "gpt-4", "model name sent in the request body")
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string    `json:"model"`
	Messages []message `json:"messages"`
	Stream   bool      `json:"stream"`
}

type chatResponse struct {
	Choices []struct {
		Message message `json:"message"`
	} `json:"choices"`
}

// Client issues advisory requests.
type Client struct {
	cfg     Config
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[[]byte]
}

// New builds a Client. The underlying transport hedges each request
// after half the timeout has elapsed without a response.
func New(cfg Config) *Client {
	base := &http.Client{Timeout: requestTimeout}
	hedged, err := hedgedhttp.NewClient(requestTimeout/2, 2, base)
	if err != nil {
		hedged = base
	}

	breaker := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        "llm-client",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	})

	return &Client{cfg: cfg, http: hedged, breaker: breaker}
}

// Recommend builds the two-message conversation, sends it, and returns the
// raw text reply.
func (c *Client) Recommend(ctx context.Context, sampleJSON []byte, policySummaries []string) (string, error) {
	prompt := fmt.Sprintf(userPromptTemplate, strings.Join(numbered(policySummaries), "\n"), string(sampleJSON))
	body, err := c.post(ctx, prompt)
	if err != nil {
		return "", err
	}
	return extractContent(body)
}

// ValidateConnection sends a trivial "Hello" prompt to confirm the
// endpoint is reachable and credentials are accepted.
func (c *Client) ValidateConnection(ctx context.Context) error {
	_, err := c.post(ctx, "Hello")
	return err
}

func (c *Client) post(ctx context.Context, userContent string) ([]byte, error) {
	reqBody := chatRequest{
		Model: c.cfg.Model,
		Messages: []message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userContent},
		},
		Stream: false,
	}
	encoded, err := jsonAPI.Marshal(reqBody)
	if err != nil {
		return nil, &TransportError{Err: err}
	}

	result, err := c.breaker.Execute(func() ([]byte, error) {
		return c.doPost(ctx, encoded)
	})
	if err != nil {
		var te *TransportError
		if ok := asTransportError(err, &te); ok {
			return nil, te
		}
		return nil, &TransportError{Err: err}
	}
	return result, nil
}

func (c *Client) doPost(ctx context.Context, encoded []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(encoded))
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	const maxBody = 4096
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &TransportError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return raw, nil
}

func asTransportError(err error, target **TransportError) bool {
	for err != nil {
		if te, ok := err.(*TransportError); ok {
			*target = te
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

func extractContent(body []byte) (string, error) {
	var resp chatResponse
	if err := jsonAPI.Unmarshal(body, &resp); err != nil {
		return "", &TransportError{Err: fmt.Errorf("decode chat response: %w", err)}
	}
	if len(resp.Choices) == 0 {
		return "", &TransportError{Err: fmt.Errorf("chat response carried no choices")}
	}
	return resp.Choices[0].Message.Content, nil
}

func numbered(items []string) []string {
	out := make([]string, len(items))
	for i, s := range items {
		out[i] = fmt.Sprintf("%d. %s", i+1, s)
	}
	return out
}
