// Package storage persists subscriber feeds: one row per chat, holding the
// raw skills string exactly as the user submitted it.
package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	logx "github.com/unk-user/upwork-sniper/pkg/logx"
)

// ErrCapReached is returned by UpsertWithCap when inserting a new feed
// would exceed the configured subscriber cap.
var ErrCapReached = errors.New("feed cap reached")

// Feed is one subscription record.
type Feed struct {
	ChatID int64
	Skills string
}

type Config struct {
	Path        string
	BusyTimeout time.Duration // 0 means default
}

// Store is the persistence API consumed by the relay.
//
// UpsertWithCap runs count-check and insert in one transaction so
// concurrent /feed commands cannot race past the cap. The cap applies to
// inserts only; an existing feed can always be updated.
type Store interface {
	Count(ctx context.Context) (int, error)
	Get(ctx context.Context, chatID int64) (Feed, bool, error)
	Upsert(ctx context.Context, chatID int64, skills string) error
	UpsertWithCap(ctx context.Context, chatID int64, skills string, cap int) (created bool, err error)
	All(ctx context.Context) ([]Feed, error)
	Close() error
}

// Open initializes the sqlite-backed store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("feeds path is required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return openSQLite(cfg, log)
}
