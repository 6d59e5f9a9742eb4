// Package relay orchestrates both halves of the bot: inbound chat commands
// (rate-limit → store → reply) and inbound job batches
// (dedup → match → format → fan-out).
package relay

import (
	"context"
	"time"

	"github.com/unk-user/upwork-sniper/internal/eventbus"
	"github.com/unk-user/upwork-sniper/internal/feed"
	"github.com/unk-user/upwork-sniper/internal/notify"
	"github.com/unk-user/upwork-sniper/internal/storage"
	kit "github.com/unk-user/upwork-sniper/internal/transport"
	logx "github.com/unk-user/upwork-sniper/pkg/logx"
)

// DefaultFeedCap mirrors the product's subscriber limit.
const DefaultFeedCap = 20

type Config struct {
	FeedCap         int
	CommandCooldown time.Duration
}

type Service struct {
	log     logx.Logger
	store   storage.Store
	adapter kit.Adapter
	notify  *notify.Service
	bus     eventbus.Bus

	dedup   *feed.Dedup
	limiter *feed.RateLimiter
	cap     int
}

func New(cfg Config, store storage.Store, adapter kit.Adapter, n *notify.Service, log logx.Logger, bus eventbus.Bus) *Service {
	if cfg.FeedCap <= 0 {
		cfg.FeedCap = DefaultFeedCap
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		log:     log,
		store:   store,
		adapter: adapter,
		notify:  n,
		bus:     bus,
		dedup:   feed.NewDedup(),
		limiter: feed.NewRateLimiter(cfg.CommandCooldown),
		cap:     cfg.FeedCap,
	}
}

// Dedup exposes the seen-uid filter for the optional sweep job.
func (s *Service) Dedup() *feed.Dedup { return s.dedup }

// IngestStats summarizes one processed batch.
type IngestStats struct {
	Received int
	Admitted int
	Enqueued int
	Dropped  int
}

// Ingest processes one job batch: dedup in original order, match each
// subscription, enqueue a formatted message per matched job.
//
// It returns once fan-out is enqueued; delivery is best-effort and enqueue
// drops are counted, not surfaced to the producer. Only a store failure is
// an error.
func (s *Service) Ingest(ctx context.Context, jobs []feed.Job) (IngestStats, error) {
	st := IngestStats{Received: len(jobs)}
	if len(jobs) == 0 {
		return st, nil
	}

	admitted := s.dedup.Filter(jobs)
	st.Admitted = len(admitted)
	if len(admitted) == 0 {
		return st, nil
	}

	feeds, err := s.store.All(ctx)
	if err != nil {
		return st, err
	}

	for _, f := range feeds {
		for _, job := range feed.Match(admitted, f.Skills) {
			item := notify.Item{
				To:      kit.ChatTarget{ChatID: f.ChatID},
				Text:    feed.Format(job),
				Options: &kit.SendOptions{ParseMode: "HTML"},
			}
			if err := s.notify.Enqueue(item); err != nil {
				st.Dropped++
				s.log.Warn("notification dropped",
					logx.Int64("chat_id", f.ChatID),
					logx.String("uid", job.UID),
					logx.Err(err),
				)
				continue
			}
			st.Enqueued++
		}
	}

	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: eventbus.TypeJobsIngested, Data: st})
	}
	s.log.Info("batch processed",
		logx.Int("received", st.Received),
		logx.Int("admitted", st.Admitted),
		logx.Int("enqueued", st.Enqueued),
		logx.Int("dropped", st.Dropped),
	)
	return st, nil
}
