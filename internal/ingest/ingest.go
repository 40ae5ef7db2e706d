// Package ingest implements the webhook ingestion pipeline: signature
// verification, payload validation, and idempotent storage.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/edgard/webhookd/internal/database"
	"github.com/edgard/webhookd/internal/signature"
)

// Status identifies the outcome of an ingestion attempt. The values double
// as metric and log labels.
type Status string

const (
	StatusCreated          Status = "created"
	StatusDuplicate        Status = "duplicate"
	StatusInvalidSignature Status = "invalid_signature"
	StatusValidationError  Status = "validation_error"
	StatusStoreError       Status = "store_error"
)

// Result reports the outcome of one ingestion attempt. Created and duplicate
// are both successes for the caller; Dup distinguishes them for
// observability only. Err carries detail for validation and store failures.
type Result struct {
	Status    Status
	MessageID string
	Dup       bool
	Err       error
}

// OK reports whether the attempt should be acknowledged as a success.
func (r Result) OK() bool {
	return r.Status == StatusCreated || r.Status == StatusDuplicate
}

// Recorder is the metrics sink for ingestion outcomes.
type Recorder interface {
	RecordWebhook(result string)
}

// payload is the inbound message schema. Text is a pointer so an absent
// field can be told apart from an empty body, which is valid.
type payload struct {
	MessageID string  `json:"message_id" validate:"required"`
	Sender    string  `json:"sender"     validate:"required"`
	Text      *string `json:"text"       validate:"required,max=4096"`
	Timestamp string  `json:"timestamp"  validate:"required"`
}

// Coordinator orchestrates verify, validate, and store for inbound webhook
// payloads. Verification and validation failures never touch storage.
type Coordinator struct {
	secret   []byte
	store    database.Store
	recorder Recorder
	logger   *slog.Logger
	validate *validator.Validate
}

// NewCoordinator creates an ingestion coordinator. secret is the shared HMAC
// key; it is injected at construction so the pipeline is testable with
// fixtures.
func NewCoordinator(secret string, store database.Store, recorder Recorder, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Coordinator{
		secret:   []byte(secret),
		store:    store,
		recorder: recorder,
		logger:   logger.With("component", "ingest"),
		validate: validator.New(),
	}
}

// Ingest processes one inbound webhook delivery. rawBody must be the exact
// bytes received, captured before any parsing. Every attempt records exactly
// one outcome counter increment and one structured log entry.
func (c *Coordinator) Ingest(ctx context.Context, rawBody []byte, signatureHex string) Result {
	start := time.Now()

	result := c.ingest(ctx, rawBody, signatureHex)

	c.recorder.RecordWebhook(string(result.Status))

	attrs := []any{
		"result", string(result.Status),
		"dup", result.Dup,
		"latency_ms", time.Since(start).Milliseconds(),
	}
	if result.MessageID != "" {
		attrs = append(attrs, "message_id", result.MessageID)
	}
	switch result.Status {
	case StatusInvalidSignature:
		c.logger.WarnContext(ctx, "Rejected webhook with invalid signature", attrs...)
	case StatusValidationError:
		c.logger.WarnContext(ctx, "Rejected webhook with invalid payload",
			append(attrs, "error", result.Err)...)
	case StatusStoreError:
		c.logger.ErrorContext(ctx, "Failed to store webhook message",
			append(attrs, "error", result.Err)...)
	default:
		c.logger.InfoContext(ctx, "Processed webhook message", attrs...)
	}

	return result
}

func (c *Coordinator) ingest(ctx context.Context, rawBody []byte, signatureHex string) Result {
	if !signature.Verify(rawBody, signatureHex, c.secret) {
		return Result{Status: StatusInvalidSignature}
	}

	var p payload
	if err := json.Unmarshal(rawBody, &p); err != nil {
		return Result{Status: StatusValidationError, Err: fmt.Errorf("malformed JSON body: %w", err)}
	}
	if err := c.validate.Struct(&p); err != nil {
		return Result{Status: StatusValidationError, MessageID: p.MessageID, Err: err}
	}

	ts, err := time.Parse(time.RFC3339, p.Timestamp)
	if err != nil {
		return Result{
			Status:    StatusValidationError,
			MessageID: p.MessageID,
			Err:       fmt.Errorf("timestamp must be a valid RFC3339 instant: %w", err),
		}
	}

	msg := &database.Message{
		MessageID: p.MessageID,
		Sender:    p.Sender,
		Text:      *p.Text,
		Timestamp: ts.UTC(),
	}

	outcome, err := c.store.InsertMessage(ctx, msg)
	if err != nil {
		return Result{Status: StatusStoreError, MessageID: p.MessageID, Err: err}
	}

	if outcome == database.DuplicateIgnored {
		return Result{Status: StatusDuplicate, MessageID: p.MessageID, Dup: true}
	}
	return Result{Status: StatusCreated, MessageID: p.MessageID}
}
