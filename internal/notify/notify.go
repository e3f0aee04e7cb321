// Package notify carries "ledger changed, recompute" signals. Events hold no
// ledger data; consumers always re-read the full ledger on each signal.
package notify

import (
	"context"
	"sync"
	"time"
)

// Event names the table group that changed.
type Event struct {
	Table string    `json:"table"`
	At    time.Time `json:"at"`
}

const (
	TableLots         = "lots"
	TableTransactions = "transactions"
	TableSales        = "sales"
	TableExpenses     = "expenses"
	TableIncome       = "income"
)

type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Source delivers events until the returned cancel func is called or ctx
// ends. The channel is closed once delivery stops.
type Source interface {
	Subscribe(ctx context.Context) (<-chan Event, func(), error)
}

type NoopPublisher struct{}

func (NoopPublisher) Publish(_ context.Context, _ Event) error {
	return nil
}

// Local fans events out to in-process subscribers. Each subscriber has a
// one-slot buffer; bursts collapse into a single pending signal.
type Local struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]chan Event
}

func NewLocal() *Local {
	return &Local{subs: make(map[int]chan Event)}
}

func (l *Local) Publish(_ context.Context, ev Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, ch := range l.subs {
		select {
		case ch <- ev:
		default:
		}
	}
	return nil
}

func (l *Local) Subscribe(ctx context.Context) (<-chan Event, func(), error) {
	l.mu.Lock()
	id := l.nextID
	l.nextID++
	ch := make(chan Event, 1)
	l.subs[id] = ch
	l.mu.Unlock()

	ctx, stop := context.WithCancel(ctx)
	go func() {
		<-ctx.Done()
		l.mu.Lock()
		delete(l.subs, id)
		close(ch)
		l.mu.Unlock()
	}()
	return ch, stop, nil
}

// Subscribers reports the number of live subscriptions.
func (l *Local) Subscribers() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.subs)
}
