// Package assets turns invitation image references into absolute URLs that
// third-party delivery providers can fetch.
package assets

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/invitely/invite-dispatch/internal/metrics"
)

// FallbackPath is the same-origin endpoint that re-serves inline payloads.
const FallbackPath = "/api/invitations/image"

// Uploader hosts a decoded payload under namespace and returns its public URL.
type Uploader interface {
	Upload(ctx context.Context, namespace string, d *DataURL) (string, error)
}

// DesignWriter persists a hosted URL back onto a design record.
type DesignWriter interface {
	SetDesignHostedURL(ctx context.Context, designID, url string) error
}

// SoftFailure is a best-effort side effect that failed without failing the batch.
type SoftFailure struct {
	Op  string `json:"op"`
	Err string `json:"error"`
}

const (
	StrategyAbsolute = "absolute"
	StrategyRelative = "relative"
	StrategyHosted   = "hosted"
	StrategyFallback = "fallback"
)

type Located struct {
	URL          string
	Strategy     string
	SoftFailures []SoftFailure
}

type Locator struct {
	BaseURL       string
	Uploader      Uploader // nil when no asset host is configured
	Designs       DesignWriter
	UploadTimeout time.Duration
	StoreTimeout  time.Duration
}

// Locate always yields an absolute URL. Inline payloads are uploaded to the
// asset host; when that is unavailable the payload is embedded in a
// same-origin retrieval URL instead.
func (l *Locator) Locate(ctx context.Context, eventID, designID, ref string) Located {
	ref = strings.TrimSpace(ref)
	var res Located
	switch {
	case IsDataURL(ref):
		res = l.locateInline(ctx, eventID, designID, ref)
	case strings.HasPrefix(ref, "//"):
		res = Located{URL: "https:" + ref, Strategy: StrategyAbsolute}
	case strings.HasPrefix(ref, "/"):
		res = Located{URL: l.base() + ref, Strategy: StrategyRelative}
	case isAbsolute(ref):
		res = Located{URL: ref, Strategy: StrategyAbsolute}
	default:
		res = Located{URL: l.base() + "/" + ref, Strategy: StrategyRelative}
	}
	metrics.AssetLocateTotal.WithLabelValues(res.Strategy).Inc()
	return res
}

func (l *Locator) locateInline(ctx context.Context, eventID, designID, ref string) Located {
	log := zerolog.Ctx(ctx)
	hosted, err := l.upload(ctx, eventID, designID, ref)
	if err != nil {
		log.Warn().Err(err).Str("design_id", designID).Msg("asset upload failed, using retrieval fallback")
		return Located{URL: l.FallbackURL(ref), Strategy: StrategyFallback}
	}

	res := Located{URL: hosted, Strategy: StrategyHosted}
	if l.Designs != nil {
		sctx, cancel := context.WithTimeout(ctx, orDefault(l.StoreTimeout, 3*time.Second))
		defer cancel()
		if err := l.Designs.SetDesignHostedURL(sctx, designID, hosted); err != nil {
			log.Warn().Err(err).Str("design_id", designID).Msg("persist hosted image url failed")
			metrics.SoftFailureTotal.WithLabelValues("persist_hosted_url").Inc()
			res.SoftFailures = append(res.SoftFailures, SoftFailure{Op: "persist_hosted_url", Err: err.Error()})
		}
	}
	return res
}

func (l *Locator) upload(ctx context.Context, eventID, designID, ref string) (string, error) {
	if l.Uploader == nil {
		return "", errors.New("asset host not configured")
	}
	d, err := ParseDataURL(ref)
	if err != nil {
		return "", err
	}
	uctx, cancel := context.WithTimeout(ctx, orDefault(l.UploadTimeout, 10*time.Second))
	defer cancel()
	u, err := l.Uploader.Upload(uctx, Namespace(eventID, designID), d)
	if err != nil {
		return "", err
	}
	if !isAbsolute(u) {
		return "", errors.New("asset host returned a non-absolute url")
	}
	return u, nil
}

// FallbackURL embeds ref in a same-origin retrieval URL.
func (l *Locator) FallbackURL(ref string) string {
	return l.base() + FallbackPath + "?data=" + url.QueryEscape(ref)
}

// Namespace is the asset-host key prefix for a design's image.
func Namespace(eventID, designID string) string {
	return "events/" + eventID + "/designs/" + designID
}

func (l *Locator) base() string { return strings.TrimRight(l.BaseURL, "/") }

func isAbsolute(s string) bool {
	u, err := url.Parse(s)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}
