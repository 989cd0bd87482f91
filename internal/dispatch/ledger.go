package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/invitely/invite-dispatch/internal/assets"
	"github.com/invitely/invite-dispatch/internal/core"
)

// MaxErrors caps the per-contact error messages returned with a batch.
const MaxErrors = 10

// Ledger records one DeliveryAttempt per (guest, target) send.
type Ledger struct {
	Store   core.AttemptStore
	Timeout time.Duration // per store call
}

// Open persists a as PENDING.
func (l *Ledger) Open(ctx context.Context, a *core.DeliveryAttempt) error {
	sctx, cancel := context.WithTimeout(ctx, orDefault(l.Timeout, 3*time.Second))
	defer cancel()
	if err := l.Store.CreateAttempt(sctx, a); err != nil {
		return fmt.Errorf("record attempt: %w", err)
	}
	return nil
}

// Close moves the attempt to SENT when sendErr is nil and FAILED otherwise.
func (l *Ledger) Close(ctx context.Context, id string, sendErr error) error {
	sctx, cancel := context.WithTimeout(ctx, orDefault(l.Timeout, 3*time.Second))
	defer cancel()
	if sendErr != nil {
		return l.Store.CompleteAttempt(sctx, id, core.StatusFailed, sendErr.Error(), nil)
	}
	now := time.Now().UTC()
	return l.Store.CompleteAttempt(sctx, id, core.StatusSent, "", &now)
}

// tally is the batch's running outcome. Every update is a commutative sum, so
// contacts and targets may finish in any order.
type tally struct {
	mu     sync.Mutex
	sent   int
	failed int
	errs   []string
	soft   []assets.SoftFailure
}

func (t *tally) success() {
	t.mu.Lock()
	t.sent++
	t.mu.Unlock()
}

// failure counts n failed deliveries sharing one error.
func (t *tally) failure(n int, msg string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failed += n
	if len(t.errs) < MaxErrors {
		t.errs = append(t.errs, msg)
	}
}

func (t *tally) softFailure(op string, err error) {
	t.mu.Lock()
	t.soft = append(t.soft, assets.SoftFailure{Op: op, Err: err.Error()})
	t.mu.Unlock()
}

// FieldError is one rejected request field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError rejects a whole batch before any contact is processed.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "invalid batch"
	}
	msg := "invalid batch: " + e.Fields[0].Field + " " + e.Fields[0].Message
	if n := len(e.Fields) - 1; n > 0 {
		msg += fmt.Sprintf(" (and %d more)", n)
	}
	return msg
}

func (e *ValidationError) add(field, msg string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: msg})
}

// IsValidation reports whether err rejected the batch as a whole.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}
