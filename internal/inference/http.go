package inference

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

// chatResponse accepts both envelopes the endpoint is known to return:
// {"result":{"response":"..."}} and a bare {"response":"..."}.
type chatResponse struct {
	Result *struct {
		Response string `json:"response"`
	} `json:"result"`
	Response string `json:"response"`
}

func (r chatResponse) text() string {
	if r.Result != nil && r.Result.Response != "" {
		return r.Result.Response
	}
	return r.Response
}

// HTTPConfig configures an HTTPClient.
type HTTPConfig struct {
	BaseURL string // e.g. https://api.example.com/ai/run
	Model   string // appended to BaseURL as a path segment
	Token   string // sent as a bearer token; empty means no Authorization header
	Stream  bool   // ask for server-sent events instead of one JSON body
	Timeout time.Duration
}

// HTTPClient is the production Client: one POST per completion.
type HTTPClient struct {
	cfg    HTTPConfig
	client *http.Client
	logger *slog.Logger
}

// NewHTTPClient builds a client for cfg. The per-call deadline comes from the
// caller's context; cfg.Timeout is a backstop on the transport.
func NewHTTPClient(cfg HTTPConfig, logger *slog.Logger) *HTTPClient {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	return &HTTPClient{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

func (c *HTTPClient) endpoint() string {
	if c.cfg.Model == "" {
		return c.cfg.BaseURL
	}
	return c.cfg.BaseURL + "/" + strings.TrimLeft(c.cfg.Model, "/")
}

// Run sends the system and user prompts and returns the completion. In
// stream mode the returned Completion.Stream yields the concatenated
// "response" pieces of the event stream.
func (c *HTTPClient) Run(ctx context.Context, systemPrompt, userPrompt string) (*Completion, error) {
	payload, err := json.Marshal(chatRequest{
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Stream: c.cfg.Stream,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal inference request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create inference request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}
	if c.cfg.Stream {
		req.Header.Set("Accept", "text/event-stream")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call inference endpoint: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("inference endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if c.cfg.Stream {
		return &Completion{Stream: newEventStream(resp.Body, c.logger)}, nil
	}

	defer resp.Body.Close()
	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode inference response: %w", err)
	}
	return &Completion{Response: out.text()}, nil
}

var _ Client = (*HTTPClient)(nil)

// eventStream turns a server-sent event body into plain text. Each
//
//	data: {"response":"..."}
//
// line contributes its response piece; "data: [DONE]" ends the stream.
type eventStream struct {
	pr *io.PipeReader
}

func newEventStream(body io.ReadCloser, logger *slog.Logger) *eventStream {
	pr, pw := io.Pipe()
	go func() {
		defer body.Close()
		pw.CloseWithError(pumpEvents(body, pw, logger))
	}()
	return &eventStream{pr: pr}
}

func (s *eventStream) Read(p []byte) (int, error) { return s.pr.Read(p) }

// Close stops the pump; the pending write fails and the body gets closed.
func (s *eventStream) Close() error {
	return s.pr.CloseWithError(errStreamClosed)
}

var errStreamClosed = errors.New("inference: stream closed by reader")

func pumpEvents(body io.Reader, w io.Writer, logger *slog.Logger) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		data, ok := strings.CutPrefix(line, "data:")
		if !ok {
			// blank separators, comments (": keep-alive"), event names
			continue
		}
		data = strings.TrimSpace(data)
		if data == "[DONE]" {
			return nil
		}

		var chunk chatResponse
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			if logger != nil {
				logger.Warn("skipping undecodable inference event", "error", err)
			}
			continue
		}
		if text := chunk.text(); text != "" {
			if _, err := io.WriteString(w, text); err != nil {
				return err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading inference stream: %w", err)
	}
	return nil
}
