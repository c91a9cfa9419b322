// Package extension carries fetch requests to an out-of-process extension
// that performs them and reports the outcome.
package extension

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// Body type tags understood by the extension.
const (
	BodyNone            = ""
	BodyString          = "string"
	BodyURLSearchParams = "URLSearchParams"
	BodyFormData        = "FormData"
	BodyObject          = "object"
)

const (
	DefaultSubject = "extension.makeRequest"
	DefaultTimeout = 15 * time.Second
)

// Request is the makeRequest message.
type Request struct {
	RequestID   string            `json:"requestId"`
	URL         string            `json:"url"`
	BaseURL     string            `json:"baseUrl,omitempty"`
	Method      string            `json:"method"`
	Headers     map[string]string `json:"headers,omitempty"`
	Query       map[string]string `json:"query,omitempty"`
	Body        any               `json:"body,omitempty"`
	BodyType    string            `json:"bodyType"`
	ReadHeaders []string          `json:"readHeaders,omitempty"`
}

type ResponseEnvelope struct {
	StatusCode int               `json:"statusCode"`
	Headers    map[string]string `json:"headers"`
	FinalURL   string            `json:"finalUrl"`
	Body       json.RawMessage   `json:"body"`
}

type Result struct {
	Success  bool              `json:"success"`
	Error    string            `json:"error,omitempty"`
	Response *ResponseEnvelope `json:"response,omitempty"`
}

// Transport delivers one request and returns the extension's reply.
type Transport interface {
	Send(ctx context.Context, req Request) (*Result, error)
}

// Requester is the subset of *nats.Conn the transport uses.
type Requester interface {
	RequestWithContext(ctx context.Context, subj string, data []byte) (*nats.Msg, error)
}

type Options struct {
	Subject string
	Timeout time.Duration
	// FailureThreshold > 0 trips a circuit breaker after that many
	// consecutive failures; it stays open for OpenTimeout.
	FailureThreshold uint32
	OpenTimeout      time.Duration
	Logger           *zap.Logger
}

// NATSTransport sends requests over NATS request/reply.
type NATSTransport struct {
	nc      Requester
	subject string
	timeout time.Duration
	cb      *gobreaker.CircuitBreaker
	log     *zap.Logger
}

func NewNATSTransport(nc Requester, opts Options) *NATSTransport {
	if opts.Subject == "" {
		opts.Subject = DefaultSubject
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	t := &NATSTransport{nc: nc, subject: opts.Subject, timeout: opts.Timeout, log: opts.Logger}
	if opts.FailureThreshold > 0 {
		threshold := opts.FailureThreshold
		log := opts.Logger
		t.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "extension",
			Timeout: opts.OpenTimeout,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= threshold
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Warn("circuit breaker state change",
					zap.String("breaker", name),
					zap.String("from", from.String()),
					zap.String("to", to.String()))
			},
		})
	}
	return t
}

func (t *NATSTransport) Send(ctx context.Context, req Request) (*Result, error) {
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	if t.cb == nil {
		return t.send(ctx, req)
	}
	out, err := t.cb.Execute(func() (any, error) { return t.send(ctx, req) })
	if err != nil {
		return nil, err
	}
	return out.(*Result), nil
}

func (t *NATSTransport) send(ctx context.Context, req Request) (*Result, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	msg, err := t.nc.RequestWithContext(ctx, t.subject, payload)
	if err != nil {
		if errors.Is(err, nats.ErrNoResponders) {
			return nil, errors.New("no extension is listening")
		}
		return nil, fmt.Errorf("request %s: %w", t.subject, err)
	}
	var res Result
	if err := json.Unmarshal(msg.Data, &res); err != nil {
		return nil, fmt.Errorf("decode reply: %w", err)
	}
	t.log.Debug("extension reply",
		zap.String("request_id", req.RequestID),
		zap.Bool("success", res.Success))
	return &res, nil
}
