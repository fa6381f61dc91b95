// Package inference talks to the external language-model endpoint that turns
// a food description into nutrition JSON.
package inference

import (
	"context"
	"fmt"
	"io"
	"strings"
)

// Client runs one completion. Implementations must honour ctx cancellation;
// the intake service bounds every call with a timeout.
type Client interface {
	Run(ctx context.Context, systemPrompt, userPrompt string) (*Completion, error)
}

// Completion is the result of a Run. Exactly one of Response or Stream is
// set: a whole text, or a stream of UTF-8 text chunks that the caller owns
// and must close.
type Completion struct {
	Response string
	Stream   io.ReadCloser
}

// Drain reads the completion into a single string, closing the stream if
// there is one. Nothing downstream looks at partial output.
func Drain(c *Completion) (string, error) {
	if c == nil {
		return "", fmt.Errorf("inference: nil completion")
	}
	if c.Stream == nil {
		return c.Response, nil
	}
	defer c.Stream.Close()

	var sb strings.Builder
	if _, err := io.Copy(&sb, c.Stream); err != nil {
		return "", fmt.Errorf("inference: draining stream: %w", err)
	}
	return sb.String(), nil
}
