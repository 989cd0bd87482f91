package channels

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/invitely/invite-dispatch/internal/core"
)

// Notifier delivers to every channel a guest prefers and succeeds when any
// one of them does.
type Notifier struct {
	Registry    *Registry
	SendTimeout time.Duration
}

// FanoutError carries the per-channel failures when every channel failed.
type FanoutError struct {
	Errors map[core.Channel]error
}

func (e *FanoutError) Error() string {
	keys := make([]string, 0, len(e.Errors))
	for ch := range e.Errors {
		keys = append(keys, string(ch))
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Errors[core.Channel(k)].Error())
	}
	return "all preferred channels failed: " + strings.Join(parts, "; ")
}

// Preferred returns the channels to try for g. Linked guests without explicit
// preferences get the requested channel plus in-app.
func Preferred(g *core.Guest, requested core.Channel) []core.Channel {
	src := g.NotifyChannels
	if len(src) == 0 {
		src = []core.Channel{requested, core.ChannelLink}
	}
	seen := map[core.Channel]bool{}
	var out []core.Channel
	for _, ch := range src {
		if !seen[ch] {
			seen[ch] = true
			out = append(out, ch)
		}
	}
	return out
}

func (n *Notifier) Notify(ctx context.Context, req Request) error {
	chans := Preferred(req.Guest, req.Channel)

	var (
		mu   sync.Mutex
		wg   sync.WaitGroup
		errs = make(map[core.Channel]error)
		ok   bool
	)
	for _, ch := range chans {
		fallback := ""
		if ch == req.Channel {
			fallback = req.Contact
		}
		wg.Add(1)
		go func(ch core.Channel, fallback string) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					zerolog.Ctx(ctx).Error().Str("panic", fmt.Sprint(r)).Str("channel", string(ch)).Msg("sender panicked")
					mu.Lock()
					errs[ch] = fmt.Errorf("internal error: %v", r)
					mu.Unlock()
				}
			}()
			err := deliver(ctx, n.Registry, n.SendTimeout, ch, req, fallback)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs[ch] = err
				return
			}
			ok = true
		}(ch, fallback)
	}
	wg.Wait()

	if ok {
		return nil
	}
	if len(errs) == 0 {
		return fmt.Errorf("%w: no preferred channels", ErrNoHandle)
	}
	return &FanoutError{Errors: errs}
}
