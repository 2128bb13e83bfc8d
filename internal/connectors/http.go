/*-------------------------------------------------------------------------
 *
 * http.go
 *    HTTP model connector
 *
 * Invokes an agent model behind a JSON-over-HTTP endpoint, with a
 * newline-delimited JSON streaming variant.
 *
 * Copyright (c) 2024-2026, neurondb, Inc. <support@neurondb.ai>
 *
 * IDENTIFICATION
 *    NeuronFlow/internal/connectors/http.go
 *
 *-------------------------------------------------------------------------
 */

package connectors

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/neurondb/NeuronFlow/internal/metrics"
)

/* HTTPConnector invokes a model provider over HTTP */
type HTTPConnector struct {
	name     string
	endpoint string
	token    string
	model    string
	client   *http.Client
}

/* NewHTTPConnector creates an HTTP connector; the client's timeout is left
 * unset so per-request context deadlines control cancellation */
func NewHTTPConnector(name, endpoint, token, model string) *HTTPConnector {
	return &HTTPConnector{
		name:     name,
		endpoint: endpoint,
		token:    token,
		model:    model,
		client:   &http.Client{},
	}
}

/* Name returns the connector routing name */
func (c *HTTPConnector) Name() string {
	return c.name
}

type invokePayload struct {
	SessionID   string                 `json:"session_id"`
	Message     string                 `json:"message"`
	Persona     string                 `json:"persona,omitempty"`
	Context     map[string]interface{} `json:"context,omitempty"`
	Model       string                 `json:"model"`
	MaxTokens   int                    `json:"max_tokens,omitempty"`
	Temperature float64                `json:"temperature,omitempty"`
	Stream      bool                   `json:"stream"`
}

type invokeReply struct {
	Content    string   `json:"content"`
	Widgets    []Widget `json:"widgets"`
	Actions    []Action `json:"actions"`
	TokensUsed int      `json:"tokens_used"`
	Model      string   `json:"model"`
	Error      *struct {
		Fatal  bool   `json:"fatal"`
		Reason string `json:"reason"`
	} `json:"error"`
}

func (c *HTTPConnector) post(ctx context.Context, req InvokeRequest, stream bool) (*http.Response, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}
	payload := invokePayload{
		SessionID:   req.SessionID.String(),
		Message:     req.Message,
		Persona:     req.Persona,
		Context:     req.Context,
		Model:       model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Stream:      stream,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("connector request marshalling failed: connector='%s', error=%w", c.name, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("connector request creation failed: connector='%s', error=%w", c.name, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, &UnavailableError{Connector: c.name, Err: err}
	}

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		resp.Body.Close()
		return nil, &UnavailableError{Connector: c.name,
			Err: fmt.Errorf("provider returned status %d", resp.StatusCode)}
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, &FatalError{Connector: c.name,
			Reason: fmt.Sprintf("provider returned status %d", resp.StatusCode)}
	}

	return resp, nil
}

/* Invoke sends one message and waits for the full reply */
func (c *HTTPConnector) Invoke(ctx context.Context, req InvokeRequest) (*InvokeResponse, error) {
	resp, err := c.post(ctx, req, false)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var reply invokeReply
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return nil, &UnavailableError{Connector: c.name,
			Err: fmt.Errorf("reply decoding failed: %w", err)}
	}

	if reply.Error != nil {
		if reply.Error.Fatal {
			return nil, &FatalError{Connector: c.name, Reason: reply.Error.Reason}
		}
		return nil, &UnavailableError{Connector: c.name,
			Err: fmt.Errorf("provider error: %s", reply.Error.Reason)}
	}

	modelUsed := reply.Model
	if modelUsed == "" {
		modelUsed = c.model
	}

	return &InvokeResponse{
		Content:    reply.Content,
		Widgets:    reply.Widgets,
		Actions:    reply.Actions,
		TokensUsed: reply.TokensUsed,
		ModelUsed:  modelUsed,
	}, nil
}

type streamLine struct {
	Content string   `json:"content"`
	Done    bool     `json:"done"`
	Widgets []Widget `json:"widgets"`
}

/* Stream sends one message and returns an ordered, finite chunk sequence.
 * Chunks are read line by line as newline-delimited JSON; cancelling ctx
 * closes the response body, which stops upstream production. */
func (c *HTTPConnector) Stream(ctx context.Context, req InvokeRequest) (<-chan StreamChunk, error) {
	resp, err := c.post(ctx, req, true)
	if err != nil {
		return nil, err
	}

	out := make(chan StreamChunk)
	go func() {
		defer close(out)
		defer resp.Body.Close()

		/* Stop reading when the consumer cancels */
		go func() {
			<-ctx.Done()
			resp.Body.Close()
		}()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		seq := 0
		finalSent := false
		for scanner.Scan() {
			line := bytes.TrimSpace(scanner.Bytes())
			if len(line) == 0 {
				continue
			}

			var chunk streamLine
			if err := json.Unmarshal(line, &chunk); err != nil {
				metrics.WarnWithContext(ctx, "Dropping malformed stream chunk", map[string]interface{}{
					"connector": c.name,
					"error":     err.Error(),
				})
				continue
			}

			seq++
			sc := StreamChunk{
				ChunkID: fmt.Sprintf("%s-%d", uuid.NewString()[:8], seq),
				Content: chunk.Content,
				IsFinal: chunk.Done,
				Widgets: chunk.Widgets,
			}
			select {
			case out <- sc:
			case <-ctx.Done():
				return
			}
			if chunk.Done {
				finalSent = true
				return
			}
		}

		/* Provider closed the stream without a terminal chunk; synthesize
		 * one so consumers always observe exactly one final chunk */
		if !finalSent && ctx.Err() == nil {
			seq++
			select {
			case out <- StreamChunk{ChunkID: fmt.Sprintf("%s-%d", uuid.NewString()[:8], seq), IsFinal: true}:
			case <-ctx.Done():
			}
		}
	}()

	return out, nil
}

/* Health checks connector availability */
func (c *HTTPConnector) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.endpoint, nil)
	if err != nil {
		return fmt.Errorf("connector health check failed: connector='%s', error=%w", c.name, err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return &UnavailableError{Connector: c.name, Err: err}
	}
	resp.Body.Close()
	return nil
}
