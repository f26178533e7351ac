// Package a2a sends and serves agent-to-agent JSON-RPC messages.
package a2a

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/park285/chessbench-go/internal/httpclient"
	wire "github.com/park285/chessbench-go/pkg/a2a"
)

var (
	// ErrTransport marks failures to reach a peer or get a well-formed reply.
	ErrTransport = errors.New("a2a: transport failure")
	// ErrNotReady is returned when a peer does not publish its card in time.
	ErrNotReady = errors.New("a2a: agent not ready")
)

const readyPollInterval = 250 * time.Millisecond

// Reply is the result of one message/send call. Message is only populated when
// Kind is "message".
type Reply struct {
	Kind    string
	Message wire.Message
}

type Client struct {
	http   *httpclient.Client
	logger *zap.Logger
	tracer trace.Tracer
}

// NewClient returns a client whose calls are bounded by timeout; zero means no
// bound beyond the caller's context.
func NewClient(timeout time.Duration, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		http:   httpclient.New(httpclient.WithTimeout(timeout), httpclient.WithMaxConnsPerHost(8)),
		logger: logger,
		tracer: otel.Tracer("chessbench/a2a"),
	}
}

// Send delivers text to the agent at endpoint. An empty contextID starts a new
// conversation.
func (c *Client) Send(ctx context.Context, endpoint, text, contextID string) (Reply, error) {
	ctx, span := c.tracer.Start(ctx, "a2a.send", trace.WithAttributes(
		attribute.String("a2a.endpoint", endpoint),
		attribute.String("a2a.context_id", contextID),
	))
	defer span.End()

	msg := wire.NewTextMessage(wire.RoleUser, uuid.NewString(), contextID, text)
	params, err := json.Marshal(wire.SendParams{Message: msg})
	if err != nil {
		return Reply{}, fmt.Errorf("marshal params: %w", err)
	}
	req := wire.Request{
		JSONRPC: wire.JSONRPCVersion,
		ID:      uuid.NewString(),
		Method:  wire.MethodSend,
		Params:  params,
	}

	var resp wire.Response
	if err := c.http.PostJSON(ctx, normalizeEndpoint(endpoint), req, &resp, false); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "send failed")
		return Reply{}, fmt.Errorf("%w: %s: %v", ErrTransport, endpoint, err)
	}
	if resp.Error != nil {
		span.SetStatus(codes.Error, resp.Error.Message)
		return Reply{}, fmt.Errorf("%w: %s: %v", ErrTransport, endpoint, resp.Error)
	}
	if len(resp.Result) == 0 {
		return Reply{}, fmt.Errorf("%w: %s: empty result", ErrTransport, endpoint)
	}

	kind, err := wire.ResultKind(resp.Result)
	if err != nil {
		return Reply{}, fmt.Errorf("%w: %s: decode result: %v", ErrTransport, endpoint, err)
	}
	span.SetAttributes(attribute.String("a2a.result_kind", kind))
	if kind != wire.KindMessage {
		c.logger.Warn("a2a_unexpected_result_kind", zap.String("endpoint", endpoint), zap.String("kind", kind))
		return Reply{Kind: kind}, nil
	}

	var out wire.Message
	if err := json.Unmarshal(resp.Result, &out); err != nil {
		return Reply{}, fmt.Errorf("%w: %s: decode message: %v", ErrTransport, endpoint, err)
	}
	return Reply{Kind: kind, Message: out}, nil
}

// FetchCard reads the agent card published by endpoint.
func (c *Client) FetchCard(ctx context.Context, endpoint string) (*wire.AgentCard, error) {
	var card wire.AgentCard
	if err := c.http.GetJSON(ctx, normalizeEndpoint(endpoint)+wire.WellKnownCardPath, &card); err != nil {
		return nil, err
	}
	return &card, nil
}

// WaitReady polls the agent card until it is served or timeout elapses.
func (c *Client) WaitReady(ctx context.Context, endpoint string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(readyPollInterval)
	defer ticker.Stop()

	var lastErr error
	for {
		attemptCtx, attemptCancel := context.WithTimeout(ctx, readyPollInterval*4)
		_, err := c.FetchCard(attemptCtx, endpoint)
		attemptCancel()
		if err == nil {
			c.logger.Debug("a2a_agent_ready", zap.String("endpoint", endpoint))
			return nil
		}
		lastErr = err

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %s after %s: %v", ErrNotReady, endpoint, timeout, lastErr)
		case <-ticker.C:
		}
	}
}

func normalizeEndpoint(endpoint string) string {
	return strings.TrimRight(strings.TrimSpace(endpoint), "/")
}
