// Package llm implements the egress contract to the locally hosted LLM
// runtime: a chat endpoint, a JSON-constrained chat mode, a streaming chat
// variant, and an embedding endpoint, plus the retry/circuit-breaker
// resilience wrapper shared by every pipeline stage that calls out to it.
package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"
)

// Message is one turn of a chat-style prompt.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest mirrors the assumed runtime contract: {model, messages, stream,
// format, options:{temperature}}.
type ChatRequest struct {
	Model       string
	Messages    []Message
	JSONMode    bool
	Temperature float64
}

type ChatResponse struct {
	Content string
}

// StreamChunk is one incremental piece of a streaming chat response.
type StreamChunk struct {
	Content string
	Done    bool
	Err     error
}

// Client is the contract every pipeline stage calls against. A single
// instance is constructed at startup and reused across requests; it is
// closed exactly once at process shutdown via Close().
type Client interface {
	Chat(ctx context.Context, req ChatRequest) (ChatResponse, error)
	ChatJSON(ctx context.Context, req ChatRequest, out interface{}) error
	ChatStream(ctx context.Context, req ChatRequest) (<-chan StreamChunk, error)
	Embed(ctx context.Context, model, input string) ([]float32, error)
	EmbedBatch(ctx context.Context, model string, inputs []string) ([][]float32, error)
	// Ping probes the runtime's listing endpoint, used only by the health
	// check (§6 "a listing endpoint used only by health-check").
	Ping(ctx context.Context) error
	Close() error
}

// Config configures the HTTP client and its resilience policy.
type Config struct {
	BaseURL          string
	MaxRetries       int           // default 3, per the concurrency contract
	RetryBaseWait    time.Duration // default 500ms, doubled per attempt
	ClassifierTimeout time.Duration
	GeneratorTimeout  time.Duration
	EmbedConcurrency int // bounded fan-out for EmbedBatch, default 4
}

func (c *Config) setDefaults() {
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.RetryBaseWait <= 0 {
		c.RetryBaseWait = 500 * time.Millisecond
	}
	if c.ClassifierTimeout <= 0 {
		c.ClassifierTimeout = 10 * time.Second
	}
	if c.GeneratorTimeout <= 0 {
		c.GeneratorTimeout = 60 * time.Second
	}
	if c.EmbedConcurrency <= 0 {
		c.EmbedConcurrency = 4
	}
}

// HTTPClient is the concrete Client implementation, modeled on the teacher
// gateway's hand-rolled OpenAI-compatible HTTP client: an explicit transport
// with tight timeouts, retried calls classified via errors.go, and a
// per-client circuit breaker so a wedged runtime stops absorbing latency.
type HTTPClient struct {
	baseURL string
	http    *http.Client
	cfg     Config
	breaker *CircuitBreaker
}

func NewHTTPClient(cfg Config) *HTTPClient {
	cfg.setDefaults()
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 120 * time.Second,
		IdleConnTimeout:       90 * time.Second,
		MaxIdleConns:          50,
		MaxIdleConnsPerHost:   10,
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{Transport: transport},
		cfg:     cfg,
		breaker: NewCircuitBreaker(5, 30*time.Second),
	}
}

func (c *HTTPClient) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

// timeoutFor returns the per-tier timeout. Classifier/router-tier models are
// small and get a short timeout; the generator tier gets a longer one.
func (c *HTTPClient) timeoutFor(req ChatRequest) time.Duration {
	if req.JSONMode {
		return c.cfg.ClassifierTimeout
	}
	return c.cfg.GeneratorTimeout
}

type chatWireRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
	Format   string    `json:"format,omitempty"`
	Options  struct {
		Temperature float64 `json:"temperature"`
	} `json:"options"`
}

type chatWireResponse struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	Done bool `json:"done"`
}

// withRetry runs fn up to cfg.MaxRetries times with exponential backoff,
// retrying only recoverable (transient) classified errors, and records the
// outcome against the circuit breaker.
func (c *HTTPClient) withRetry(ctx context.Context, model string, timeout time.Duration, fn func(ctx context.Context) error) error {
	if !c.breaker.Allow() {
		return &Error{Kind: ErrKindTransient, Message: "circuit open", Model: model}
	}

	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxRetries; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, timeout)
		err := fn(callCtx)
		cancel()

		if err == nil {
			c.breaker.RecordSuccess()
			return nil
		}

		classified, ok := err.(*Error)
		if !ok {
			classified = Classify(err, model)
		}
		lastErr = classified

		if !classified.IsRetryable() {
			c.breaker.RecordFailure()
			return classified
		}
		if attempt == c.cfg.MaxRetries {
			break
		}
		wait := c.cfg.RetryBaseWait * time.Duration(1<<(attempt-1))
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	c.breaker.RecordFailure()
	return lastErr
}

func (c *HTTPClient) doChat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	var result ChatResponse
	err := c.withRetry(ctx, req.Model, c.timeoutFor(req), func(ctx context.Context) error {
		wire := chatWireRequest{Model: req.Model, Messages: req.Messages, Stream: false}
		if req.JSONMode {
			wire.Format = "json"
		}
		wire.Options.Temperature = req.Temperature

		body, err := json.Marshal(wire)
		if err != nil {
			return &Error{Kind: ErrKindBadRequest, Message: "marshal request", Model: req.Model, Cause: err}
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
		if err != nil {
			return err
		}
		httpReq.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(httpReq)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if resp.StatusCode >= 500 {
			return fmt.Errorf("server error %d: %s", resp.StatusCode, string(respBody))
		}
		if resp.StatusCode >= 400 {
			return &Error{Kind: ErrKindBadRequest, Message: fmt.Sprintf("status %d: %s", resp.StatusCode, string(respBody)), Model: req.Model}
		}

		var wireResp chatWireResponse
		if err := json.Unmarshal(respBody, &wireResp); err != nil {
			return &Error{Kind: ErrKindInvalidJSON, Message: "decode response", Model: req.Model, Cause: err}
		}
		if strings.TrimSpace(wireResp.Message.Content) == "" {
			return &Error{Kind: ErrKindEmptyResponse, Message: "empty generation", Model: req.Model}
		}
		result = ChatResponse{Content: wireResp.Message.Content}
		return nil
	})
	return result, err
}

func (c *HTTPClient) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	return c.doChat(ctx, req)
}

// Ping hits the runtime's model-listing endpoint with a short timeout; used
// only by GET /health to report the "llm_runtime" component status.
func (c *HTTPClient) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("llm runtime returned status %d", resp.StatusCode)
	}
	return nil
}

var fencedJSON = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")

// stripFences removes markdown code fences the runtime sometimes wraps JSON
// responses in, per §6 ("the client strips markdown fences... before
// parsing").
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if m := fencedJSON.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1])
	}
	return s
}

// ChatJSON issues a JSON-constrained chat call and unmarshals the (fence
// stripped) content into out. A decode failure is a non-recoverable error
// and is not retried beyond the underlying Chat call's own retry policy,
// consistent with "invalid JSON response" being classified non-recoverable.
func (c *HTTPClient) ChatJSON(ctx context.Context, req ChatRequest, out interface{}) error {
	req.JSONMode = true
	resp, err := c.doChat(ctx, req)
	if err != nil {
		return err
	}
	cleaned := stripFences(resp.Content)
	if err := json.Unmarshal([]byte(cleaned), out); err != nil {
		return &Error{Kind: ErrKindInvalidJSON, Message: "decode JSON chat response", Model: req.Model, Cause: err}
	}
	return nil
}

// ChatStream streams incremental content over the returned channel. The
// channel is closed once the stream completes, errors, or ctx is cancelled.
// Streaming calls are not retried by this wrapper: a mid-stream failure is
// reported once on the channel and the caller decides how to react (the
// orchestrator's streaming variant treats it as a terminal error for that
// request, it does not restart the stream transparently).
func (c *HTTPClient) ChatStream(ctx context.Context, req ChatRequest) (<-chan StreamChunk, error) {
	if !c.breaker.Allow() {
		return nil, &Error{Kind: ErrKindTransient, Message: "circuit open", Model: req.Model}
	}

	wire := chatWireRequest{Model: req.Model, Messages: req.Messages, Stream: true}
	wire.Options.Temperature = req.Temperature
	body, err := json.Marshal(wire)
	if err != nil {
		return nil, &Error{Kind: ErrKindBadRequest, Message: "marshal request", Model: req.Model, Cause: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		c.breaker.RecordFailure()
		return nil, Classify(err, req.Model)
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		b, _ := io.ReadAll(resp.Body)
		c.breaker.RecordFailure()
		return nil, &Error{Kind: ErrKindBadRequest, Message: fmt.Sprintf("status %d: %s", resp.StatusCode, string(b)), Model: req.Model}
	}

	out := make(chan StreamChunk)
	go func() {
		defer close(out)
		defer resp.Body.Close()

		// Force-close the body if the caller cancels mid-stream, mirroring
		// the teacher client's cancellation watchdog goroutine.
		done := make(chan struct{})
		defer close(done)
		go func() {
			select {
			case <-ctx.Done():
				resp.Body.Close()
			case <-done:
			}
		}()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		sawAny := false
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			var chunk chatWireResponse
			if err := json.Unmarshal([]byte(line), &chunk); err != nil {
				continue
			}
			if chunk.Message.Content != "" {
				sawAny = true
				select {
				case out <- StreamChunk{Content: chunk.Message.Content}:
				case <-ctx.Done():
					return
				}
			}
			if chunk.Done {
				c.breaker.RecordSuccess()
				out <- StreamChunk{Done: true}
				return
			}
		}
		if err := scanner.Err(); err != nil {
			c.breaker.RecordFailure()
			out <- StreamChunk{Err: Classify(err, req.Model)}
			return
		}
		if !sawAny {
			c.breaker.RecordFailure()
			out <- StreamChunk{Err: &Error{Kind: ErrKindEmptyResponse, Message: "empty stream", Model: req.Model}}
			return
		}
		c.breaker.RecordSuccess()
		out <- StreamChunk{Done: true}
	}()

	return out, nil
}

type embedWireRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embedWireResponse struct {
	Embedding []float32 `json:"embedding"`
}

func (c *HTTPClient) Embed(ctx context.Context, model, input string) ([]float32, error) {
	var result []float32
	err := c.withRetry(ctx, model, c.cfg.ClassifierTimeout, func(ctx context.Context) error {
		body, err := json.Marshal(embedWireRequest{Model: model, Prompt: input})
		if err != nil {
			return &Error{Kind: ErrKindBadRequest, Message: "marshal embed request", Model: model, Cause: err}
		}
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/embeddings", bytes.NewReader(body))
		if err != nil {
			return err
		}
		httpReq.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(httpReq)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if resp.StatusCode >= 500 {
			return fmt.Errorf("server error %d: %s", resp.StatusCode, string(respBody))
		}
		if resp.StatusCode >= 400 {
			return &Error{Kind: ErrKindBadRequest, Message: fmt.Sprintf("status %d", resp.StatusCode), Model: model}
		}
		var wireResp embedWireResponse
		if err := json.Unmarshal(respBody, &wireResp); err != nil {
			return &Error{Kind: ErrKindInvalidJSON, Message: "decode embed response", Model: model, Cause: err}
		}
		if len(wireResp.Embedding) == 0 {
			return &Error{Kind: ErrKindEmptyResponse, Message: "empty embedding", Model: model}
		}
		result = wireResp.Embedding
		return nil
	})
	return result, err
}

// EmbedBatch fans out individual Embed calls across a bounded worker pool.
// The runtime contract (§6) only exposes a single-prompt embedding
// endpoint, so batching here is purely a client-side concurrency optimization
// for pre-warming the semantic context cache, not a wire-level batch request.
func (c *HTTPClient) EmbedBatch(ctx context.Context, model string, inputs []string) ([][]float32, error) {
	results := make([][]float32, len(inputs))
	errs := make([]error, len(inputs))

	sem := make(chan struct{}, c.cfg.EmbedConcurrency)
	var wg sync.WaitGroup
	for i, input := range inputs {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, input string) {
			defer wg.Done()
			defer func() { <-sem }()
			vec, err := c.Embed(ctx, model, input)
			results[i] = vec
			errs[i] = err
		}(i, input)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return results, err
		}
	}
	return results, nil
}
