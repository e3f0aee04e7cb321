package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ssujit905/Inventory-sub001/internal/logger"
)

const (
	ReasonInitial = "initial"
	ReasonPush    = "push"
	ReasonPoll    = "poll"
)

// Watcher turns push events plus a periodic poll into refresh callbacks.
// Polling keeps views live when the push channel is down.
type Watcher struct {
	source   Source
	interval time.Duration
	log      *logger.Logger
}

func NewWatcher(source Source, interval time.Duration, log *logger.Logger) *Watcher {
	if log == nil {
		log = logger.Nop()
	}
	return &Watcher{source: source, interval: interval, log: log}
}

// Subscription is the caller-owned handle of one Watch call.
type Subscription struct {
	stop context.CancelFunc
	done chan struct{}
	once sync.Once
}

// Unsubscribe stops delivery and waits for the watch loop to exit. Calling it
// more than once is safe.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.stop()
		<-s.done
	})
}

// Done is closed once the watch loop has exited.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Watch calls refresh once immediately, then on every push event and every
// poll tick. Callbacks run sequentially on one goroutine.
func (w *Watcher) Watch(ctx context.Context, refresh func(ctx context.Context, reason string)) (*Subscription, error) {
	if refresh == nil {
		return nil, errors.New("notify: refresh callback is required")
	}
	if w.source == nil && w.interval <= 0 {
		return nil, errors.New("notify: watcher needs a source or a poll interval")
	}

	ctx, stop := context.WithCancel(ctx)
	var events <-chan Event
	if w.source != nil {
		ch, cancel, err := w.source.Subscribe(ctx)
		if err != nil {
			w.log.Warn(ctx, "change notifications unavailable, falling back to polling: "+err.Error())
		} else {
			events = ch
			go func() {
				<-ctx.Done()
				cancel()
			}()
		}
	}
	if events == nil && w.interval <= 0 {
		stop()
		return nil, errors.New("notify: no push source and polling disabled")
	}

	sub := &Subscription{stop: stop, done: make(chan struct{})}
	go w.loop(ctx, events, refresh, sub.done)
	return sub, nil
}

func (w *Watcher) loop(ctx context.Context, events <-chan Event, refresh func(context.Context, string), done chan struct{}) {
	defer close(done)

	var tick <-chan time.Time
	if w.interval > 0 {
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	refresh(ctx, ReasonInitial)
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-events:
			if !ok {
				events = nil
				if tick == nil || ctx.Err() != nil {
					return
				}
				w.log.Warn(ctx, "change notification channel closed, continuing with polling")
				continue
			}
			refresh(ctx, ReasonPush)
		case <-tick:
			refresh(ctx, ReasonPoll)
		}
	}
}
