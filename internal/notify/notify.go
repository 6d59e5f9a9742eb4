// Package notify is the outbound send pipeline: a bounded queue drained by
// a small worker pool, paced by a global rate limit so fan-out bursts stay
// inside the chat platform's API budget.
//
// Delivery is best-effort by contract: a failed send is logged and
// published on the event bus, never retried, and never blocks or aborts
// sibling sends.
package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/unk-user/upwork-sniper/internal/eventbus"
	rtsup "github.com/unk-user/upwork-sniper/internal/runtime/supervisor"
	kit "github.com/unk-user/upwork-sniper/internal/transport"
	logx "github.com/unk-user/upwork-sniper/pkg/logx"
)

var (
	ErrQueueFull = errors.New("notify queue full")
	ErrStopped   = errors.New("notify stopped")
)

const sendTimeout = 10 * time.Second

type Config struct {
	Workers    int
	QueueSize  int
	RatePerSec int
}

// Item is one message to deliver.
type Item struct {
	To      kit.ChatTarget
	Text    string
	Options *kit.SendOptions
}

// SendFailure is the event payload published on eventbus.TypeSendFailed.
type SendFailure struct {
	ChatID int64
	Err    string
}

type Service struct {
	mu sync.Mutex

	log     logx.Logger
	adapter kit.Adapter
	bus     eventbus.Bus

	cfg     Config
	limiter *rate.Limiter

	accepting bool
	queue     chan Item
	sup       *rtsup.Supervisor

	sent   atomic.Uint64
	failed atomic.Uint64
}

func New(cfg Config, adapter kit.Adapter, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{adapter: adapter, log: log, bus: bus}
	s.applyLocked(cfg)
	return s
}

func (s *Service) applyLocked(cfg Config) {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 512
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 25
	}
	s.cfg = cfg
	// Token bucket: burst = rate per sec, so short spikes don't block too hard.
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
}

// Apply updates pacing live. Worker/queue sizing takes effect on restart.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.applyLocked(cfg)
	s.mu.Unlock()
}

// Counters reports totals since process start (sent, failed).
func (s *Service) Counters() (uint64, uint64) {
	return s.sent.Load(), s.failed.Load()
}

// Start is idempotent.
func (s *Service) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	if s.queue != nil {
		s.mu.Unlock()
		return
	}
	s.queue = make(chan Item, s.cfg.QueueSize)
	s.accepting = true
	workers := s.cfg.Workers
	s.sup = rtsup.New(ctx,
		rtsup.WithLogger(s.log),
		// send failures are best-effort; never take down the app.
		rtsup.WithCancelOnError(false),
	)
	sup := s.sup
	q := s.queue
	s.mu.Unlock()

	for i := 0; i < workers; i++ {
		sup.Go0(fmt.Sprintf("worker.%d", i), func(c context.Context) {
			s.workerLoop(c, q)
		})
	}
}

// Enqueue queues one message for delivery. It never blocks: a full queue
// rejects immediately so ingestion latency stays flat.
//
// The send happens under the mutex. Stop closes the queue under the same
// mutex, so a producer can never hit a closed channel.
func (s *Service) Enqueue(it Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.accepting || s.queue == nil {
		return ErrStopped
	}
	select {
	case s.queue <- it:
		return nil
	default:
		return ErrQueueFull
	}
}

// Stop stops intake and drains the queue best-effort until ctx deadline.
func (s *Service) Stop(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	q := s.queue
	sup := s.sup
	if q == nil {
		s.mu.Unlock()
		return
	}
	s.accepting = false
	s.queue = nil
	s.sup = nil
	// Closing under the mutex is safe: Enqueue sends under the same mutex,
	// so no producer can be mid-send here. Workers exit once the closed
	// queue is drained.
	close(q)
	s.mu.Unlock()

	if sup != nil {
		if err := sup.Wait(ctx); err != nil {
			s.log.Warn("notify stop incomplete", logx.Err(err), logx.Int("pending", len(q)))
			sup.Cancel()
		}
	}
}

func (s *Service) workerLoop(ctx context.Context, queue <-chan Item) {
	for it := range queue {
		// fast-exit so cancellation wins over queued work
		if ctx.Err() != nil {
			return
		}
		s.sendOne(ctx, it)
	}
}

func (s *Service) sendOne(ctx context.Context, it Item) {
	s.mu.Lock()
	lim := s.limiter
	adapter := s.adapter
	s.mu.Unlock()

	if lim != nil {
		if err := lim.Wait(ctx); err != nil {
			return
		}
	}

	sctx, cancel := context.WithTimeout(ctx, sendTimeout)
	err := adapter.SendText(sctx, it.To, it.Text, it.Options)
	cancel()
	if err != nil {
		s.failed.Add(1)
		s.log.Warn("send failed", logx.Int64("chat_id", it.To.ChatID), logx.Err(err))
		if s.bus != nil {
			s.bus.Publish(eventbus.Event{
				Type: eventbus.TypeSendFailed,
				Data: SendFailure{ChatID: it.To.ChatID, Err: err.Error()},
			})
		}
		return
	}
	s.sent.Add(1)
}
