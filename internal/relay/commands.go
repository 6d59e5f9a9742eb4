package relay

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/unk-user/upwork-sniper/internal/eventbus"
	"github.com/unk-user/upwork-sniper/internal/feed"
	"github.com/unk-user/upwork-sniper/internal/storage"
	kit "github.com/unk-user/upwork-sniper/internal/transport"
	logx "github.com/unk-user/upwork-sniper/pkg/logx"
)

// User-facing strings. Keep these stable: subscribers see them verbatim.
const (
	msgGreeting = "Hello %s!\nCreate Your feed by sending the /feed command followed by a list of your skills (if the skill contains spaces use underscore instead).\nTo get your feed, send /myfeed."
	msgCap      = "Sorry we have reached the limit of 20 feeds. try again later."
	msgNoSkills = "Please provide at least one skill."
	msgUpdated  = "Feed updated successfully."
	msgCreated  = "Feed created successfully."
	msgNoFeed   = "No feed found."
	msgMyFeed   = "Your feed: %s"
	msgTooFast  = "You're sending commands too quickly. Please wait %d seconds."
	msgInternal = "Something went wrong. Please try again later."
)

const replyTimeout = 10 * time.Second

// DispatchLoop consumes inbound chat messages until ctx is done. Each
// message is handled inline; a single slow Telegram reply may delay the
// next command, which is acceptable at this bot's scale.
func (s *Service) DispatchLoop(ctx context.Context, updates <-chan kit.Message) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-updates:
			if !ok {
				return nil
			}
			s.handleSafe(ctx, m)
		}
	}
}

func (s *Service) handleSafe(ctx context.Context, m kit.Message) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("panic in command handler",
				logx.Int64("chat_id", m.ChatID),
				logx.Any("panic", r),
				logx.String("stack", string(debug.Stack())),
			)
		}
	}()
	s.HandleMessage(ctx, m)
}

// HandleMessage dispatches one inbound message. Unrecognized text gets no
// response; recognized commands share one cooldown clock per chat.
func (s *Service) HandleMessage(ctx context.Context, m kit.Message) {
	cmd, args := parseCommand(m.Text)
	switch cmd {
	case "/start", "/feed", "/myfeed":
	default:
		return
	}

	if ok, wait := s.limiter.Allow(m.ChatID); !ok {
		s.reply(ctx, m.ChatID, fmt.Sprintf(msgTooFast, feed.WaitSeconds(wait)))
		return
	}

	start := time.Now()
	switch cmd {
	case "/start":
		s.handleStart(ctx, m)
	case "/feed":
		s.handleFeed(ctx, m, args)
	case "/myfeed":
		s.handleMyFeed(ctx, m)
	}
	s.log.Debug("command handled",
		logx.String("cmd", cmd),
		logx.Int64("chat_id", m.ChatID),
		logx.Duration("dur", time.Since(start)),
	)
}

func (s *Service) handleStart(ctx context.Context, m kit.Message) {
	name := m.FirstName
	if name == "" {
		name = "Anonymous"
	}
	s.reply(ctx, m.ChatID, fmt.Sprintf(msgGreeting, name))
}

func (s *Service) handleFeed(ctx context.Context, m kit.Message, skills string) {
	if skills == "" {
		s.reply(ctx, m.ChatID, msgNoSkills)
		return
	}

	created, err := s.store.UpsertWithCap(ctx, m.ChatID, skills, s.cap)
	switch {
	case errors.Is(err, storage.ErrCapReached):
		s.reply(ctx, m.ChatID, msgCap)
		return
	case err != nil:
		s.log.Error("feed upsert failed", logx.Int64("chat_id", m.ChatID), logx.Err(err))
		s.reply(ctx, m.ChatID, msgInternal)
		return
	}

	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: eventbus.TypeFeedChanged, Data: m.ChatID})
	}
	if created {
		s.reply(ctx, m.ChatID, msgCreated)
	} else {
		s.reply(ctx, m.ChatID, msgUpdated)
	}
}

func (s *Service) handleMyFeed(ctx context.Context, m kit.Message) {
	f, ok, err := s.store.Get(ctx, m.ChatID)
	if err != nil {
		s.log.Error("feed lookup failed", logx.Int64("chat_id", m.ChatID), logx.Err(err))
		s.reply(ctx, m.ChatID, msgInternal)
		return
	}
	if !ok {
		s.reply(ctx, m.ChatID, msgNoFeed)
		return
	}
	s.reply(ctx, m.ChatID, fmt.Sprintf(msgMyFeed, f.Skills))
}

func (s *Service) reply(ctx context.Context, chatID int64, text string) {
	sctx, cancel := context.WithTimeout(ctx, replyTimeout)
	defer cancel()
	if err := s.adapter.SendText(sctx, kit.ChatTarget{ChatID: chatID}, text, nil); err != nil {
		s.log.Warn("reply failed", logx.Int64("chat_id", chatID), logx.Err(err))
	}
}

// parseCommand splits "/feed go rust" into the command token and the raw
// remainder. A "@botname" suffix on the command (Telegram group syntax) is
// stripped.
func parseCommand(text string) (cmd, args string) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", ""
	}
	cmd = text
	if i := strings.IndexAny(text, " \t\n"); i >= 0 {
		cmd = text[:i]
		args = strings.TrimSpace(text[i:])
	}
	if i := strings.IndexByte(cmd, '@'); i >= 0 {
		cmd = cmd[:i]
	}
	return cmd, args
}
