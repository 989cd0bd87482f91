// Package dispatch runs invitation batches: it validates the batch, resolves
// ceremony targets and the invitation image once, then resolves, delivers and
// records every contact on a bounded worker pool.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/invitely/invite-dispatch/internal/assets"
	"github.com/invitely/invite-dispatch/internal/channels"
	"github.com/invitely/invite-dispatch/internal/core"
	"github.com/invitely/invite-dispatch/internal/events"
	"github.com/invitely/invite-dispatch/internal/logging"
	"github.com/invitely/invite-dispatch/internal/metrics"
	"github.com/invitely/invite-dispatch/internal/worker"
)

type BatchRequest struct {
	EventID     string              `json:"eventId"`
	DesignID    string              `json:"designId"`
	Channel     core.Channel        `json:"channel"`
	CeremonyIDs []string            `json:"ceremonyIds,omitempty"`
	Contacts    []core.ContactInput `json:"contacts"`
}

type BatchResult struct {
	Sent          int                  `json:"sent"`
	Failed        int                  `json:"failed"`
	Total         int                  `json:"total"`
	Errors        []string             `json:"errors"`
	SoftFailures  []assets.SoftFailure `json:"softFailures,omitempty"`
	CorrelationID string               `json:"correlationId,omitempty"`
}

// GuestResolver maps a raw contact to a guest of the event.
type GuestResolver interface {
	Resolve(ctx context.Context, eventID string, ch core.Channel, handle, name string) (*core.Guest, error)
}

// ImageLocator turns a design's image reference into an absolute URL.
type ImageLocator interface {
	Locate(ctx context.Context, eventID, designID, ref string) assets.Located
}

// Deliverer sends one invitation.
type Deliverer interface {
	Dispatch(ctx context.Context, req channels.Request) error
}

type Engine struct {
	Store      core.Store
	Guests     GuestResolver
	Assets     ImageLocator
	Dispatcher Deliverer
	Pool       *worker.Pool
	Publisher  events.Publisher // optional
	Ledger     *Ledger

	BaseURL      string
	StoreTimeout time.Duration
}

// Run processes req and returns its counters. It fails only for batch-level
// problems (*ValidationError, store errors before any contact ran); contact
// failures are reported in the result.
//
// The batch is detached from ctx cancellation: once accepted it runs to
// completion even if the caller goes away.
func (e *Engine) Run(ctx context.Context, req BatchRequest) (*BatchResult, error) {
	ctx = context.WithoutCancel(ctx)
	cid := logging.CorrelationID(ctx)
	if cid == "" {
		ctx = logging.WithCorrelationID(ctx, "")
		cid = logging.CorrelationID(ctx)
	}
	log := zerolog.Ctx(ctx).With().Str("event_id", req.EventID).Str("design_id", req.DesignID).Logger()
	ctx = log.WithContext(ctx)

	plan, err := e.prepare(ctx, req)
	if err != nil {
		if IsValidation(err) {
			metrics.BatchTotal.WithLabelValues("rejected").Inc()
		} else {
			metrics.BatchTotal.WithLabelValues("error").Inc()
		}
		log.Warn().Err(err).Msg("batch rejected")
		return nil, err
	}
	metrics.BatchContacts.Observe(float64(len(req.Contacts)))
	log.Info().
		Int("contacts", len(req.Contacts)).
		Int("targets", len(plan.targets)).
		Str("channel", string(req.Channel)).
		Str("image_strategy", plan.image.Strategy).
		Msg("batch started")

	t := &tally{soft: plan.image.SoftFailures}
	e.Pool.Run(ctx, len(req.Contacts), func(ctx context.Context, i int) {
		e.processContact(ctx, plan, req.Contacts[i], t)
	}, func(i int, err error) {
		t.failure(len(plan.targets), contactLabel(req.Contacts[i])+": "+err.Error())
	})

	res := &BatchResult{
		Sent:          t.sent,
		Failed:        t.failed,
		Total:         len(req.Contacts) * len(plan.targets),
		Errors:        t.errs,
		CorrelationID: cid,
	}
	if res.Errors == nil {
		res.Errors = []string{}
	}
	e.publishSummary(ctx, req, res, t)
	res.SoftFailures = t.soft

	metrics.BatchTotal.WithLabelValues("ok").Inc()
	log.Info().Int("sent", res.Sent).Int("failed", res.Failed).Int("total", res.Total).Msg("batch finished")
	return res, nil
}

// plan is everything shared by the contacts of one batch.
type plan struct {
	eventID   string
	channel   core.Channel
	title     string
	shareLink string
	image     assets.Located
	targets   []Target
}

func (e *Engine) prepare(ctx context.Context, req BatchRequest) (*plan, error) {
	ve := &ValidationError{}
	if strings.TrimSpace(req.EventID) == "" {
		ve.add("eventId", "is required")
	}
	if strings.TrimSpace(req.DesignID) == "" {
		ve.add("designId", "is required")
	}
	ch, ok := core.ParseChannel(string(req.Channel))
	switch {
	case req.Channel == "":
		ve.add("channel", "is required")
	case !ok:
		ve.add("channel", "is not a supported channel")
	}
	if len(req.Contacts) == 0 {
		ve.add("contacts", "is required")
	}
	if len(ve.Fields) > 0 {
		return nil, ve
	}

	ev, err := withTimeout(ctx, e.StoreTimeout, func(ctx context.Context) (*core.Event, error) {
		return e.Store.GetEvent(ctx, req.EventID)
	})
	if errors.Is(err, core.ErrNotFound) {
		ve.add("eventId", "event not found")
		return nil, ve
	}
	if err != nil {
		return nil, fmt.Errorf("load event: %w", err)
	}

	d, err := withTimeout(ctx, e.StoreTimeout, func(ctx context.Context) (*core.Design, error) {
		return e.Store.GetDesign(ctx, req.DesignID)
	})
	if errors.Is(err, core.ErrNotFound) || (err == nil && d.EventID != req.EventID) {
		ve.add("designId", "design not found for this event")
		return nil, ve
	}
	if err != nil {
		return nil, fmt.Errorf("load design: %w", err)
	}
	ref := d.Image()
	if ref == "" {
		ve.add("designId", "design has no image")
		return nil, ve
	}

	targets, err := withTimeout(ctx, e.StoreTimeout, func(ctx context.Context) ([]Target, error) {
		return ResolveTargets(ctx, e.Store, req.EventID, req.CeremonyIDs)
	})
	if err != nil {
		return nil, fmt.Errorf("resolve ceremonies: %w", err)
	}
	if len(targets) == 0 {
		ve.add("ceremonyIds", "none of the ceremonies belong to this event")
		return nil, ve
	}

	return &plan{
		eventID:   req.EventID,
		channel:   ch,
		title:     ev.Title,
		shareLink: e.shareLink(ev),
		image:     e.Assets.Locate(ctx, req.EventID, req.DesignID, ref),
		targets:   targets,
	}, nil
}

// processContact runs one contact through resolution and every target. Any
// error or panic stays within this contact.
func (e *Engine) processContact(ctx context.Context, p *plan, c core.ContactInput, t *tally) {
	metrics.InFlight.Inc()
	defer metrics.InFlight.Dec()

	label := contactLabel(c)
	log := zerolog.Ctx(ctx).With().Str("contact", label).Logger()
	ctx = log.WithContext(ctx)

	resolved := false
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("panic", fmt.Sprint(r)).Bytes("stack", debug.Stack()).Msg("contact panicked")
			// targets already dispatched have been counted
			if !resolved {
				t.failure(len(p.targets), fmt.Sprintf("%s: internal error", label))
			}
		}
	}()

	if strings.TrimSpace(c.ContactInfo) == "" {
		t.failure(len(p.targets), label+": missing contact info")
		return
	}
	guest, err := e.Guests.Resolve(ctx, p.eventID, p.channel, c.ContactInfo, c.Name)
	if err != nil {
		log.Warn().Err(err).Msg("guest resolution failed")
		t.failure(len(p.targets), label+": "+err.Error())
		return
	}
	resolved = true

	base := NewBaseToken()
	var g errgroup.Group
	for i, tgt := range p.targets {
		token := DeriveToken(base, tgt.CeremonyID, i)
		g.Go(func() error {
			if err := e.deliverTarget(ctx, p, guest, c, tgt, token, t); err != nil {
				t.failure(1, label+": "+err.Error())
				metrics.DeliveryTotal.WithLabelValues(string(p.channel), outcome(err)).Inc()
				return nil
			}
			t.success()
			metrics.DeliveryTotal.WithLabelValues(string(p.channel), "sent").Inc()
			return nil
		})
	}
	_ = g.Wait()
}

// deliverTarget records and performs one send. The returned error is the
// outcome the caller counts.
func (e *Engine) deliverTarget(ctx context.Context, p *plan, guest *core.Guest, c core.ContactInput, tgt Target, token string, t *tally) (err error) {
	defer func() {
		if r := recover(); r != nil {
			zerolog.Ctx(ctx).Error().Str("panic", fmt.Sprint(r)).Str("token", token).Msg("delivery panicked")
			err = errors.New("internal error")
		}
	}()

	a := &core.DeliveryAttempt{
		EventID:       p.eventID,
		CeremonyID:    tgt.CeremonyID,
		GuestID:       guest.ID,
		Channel:       p.channel,
		Token:         token,
		CorrelationID: logging.CorrelationID(ctx),
	}
	if err := e.ledger().Open(ctx, a); err != nil {
		return err
	}

	sendErr := e.send(ctx, channels.Request{
		Guest:      guest,
		Channel:    p.channel,
		Contact:    c.ContactInfo,
		EventTitle: p.title,
		ImageURL:   p.image.URL,
		ShareLink:  p.shareLink,
		Token:      token,
	})

	if cerr := e.ledger().Close(ctx, a.ID, sendErr); cerr != nil {
		// the send already happened; the row stays PENDING
		zerolog.Ctx(ctx).Error().Err(cerr).Str("attempt_id", a.ID).Msg("complete attempt failed")
		metrics.SoftFailureTotal.WithLabelValues("complete_attempt").Inc()
		t.softFailure("complete_attempt", fmt.Errorf("attempt %s: %w", a.ID, cerr))
	}
	return sendErr
}

// send dispatches req, turning a sender panic into an error so the attempt
// is still closed.
func (e *Engine) send(ctx context.Context, req channels.Request) (err error) {
	defer func() {
		if r := recover(); r != nil {
			zerolog.Ctx(ctx).Error().Str("panic", fmt.Sprint(r)).Str("token", req.Token).Msg("sender panicked")
			err = fmt.Errorf("internal error: %v", r)
		}
	}()
	return e.Dispatcher.Dispatch(ctx, req)
}

func (e *Engine) publishSummary(ctx context.Context, req BatchRequest, res *BatchResult, t *tally) {
	if e.Publisher == nil {
		return
	}
	pctx, cancel := context.WithTimeout(ctx, orDefault(e.StoreTimeout, 3*time.Second))
	defer cancel()
	err := e.Publisher.Publish(pctx, events.BatchCompleted, events.BatchSummary{
		EventID:       req.EventID,
		DesignID:      req.DesignID,
		Channel:       string(req.Channel),
		Sent:          res.Sent,
		Failed:        res.Failed,
		Total:         res.Total,
		CorrelationID: res.CorrelationID,
		CompletedAt:   time.Now().UTC(),
	})
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("publish batch summary failed")
		metrics.SoftFailureTotal.WithLabelValues("publish_batch_event").Inc()
		t.softFailure("publish_batch_event", err)
	}
}

func (e *Engine) ledger() *Ledger {
	if e.Ledger != nil {
		return e.Ledger
	}
	return &Ledger{Store: e.Store, Timeout: e.StoreTimeout}
}

func withTimeout[T any](ctx context.Context, d time.Duration, fn func(context.Context) (T, error)) (T, error) {
	sctx, cancel := context.WithTimeout(ctx, orDefault(d, 3*time.Second))
	defer cancel()
	return fn(sctx)
}

func (e *Engine) shareLink(ev *core.Event) string {
	key := ev.Slug
	if key == "" {
		key = ev.ID
	}
	return strings.TrimRight(e.BaseURL, "/") + "/e/" + key
}

func contactLabel(c core.ContactInput) string {
	if s := strings.TrimSpace(c.ContactInfo); s != "" {
		return s
	}
	if s := strings.TrimSpace(c.Name); s != "" {
		return s
	}
	return "(unnamed contact)"
}

func outcome(err error) string {
	if errors.Is(err, channels.ErrTimeout) {
		return "timeout"
	}
	return "failed"
}
