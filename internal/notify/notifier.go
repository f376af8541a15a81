package notify

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/victornm/quizbot/internal/domain"
	"github.com/victornm/quizbot/internal/event"
	"github.com/victornm/quizbot/internal/leaderboard"
	"github.com/victornm/quizbot/internal/telemetry"
)

const maxConcurrent = 100

type Config struct {
	EventBus *event.Bus
	Sender   Sender
	// Transport names the sender in logs and metrics.
	Transport string
	// AdminAddress receives leaderboard summaries. Empty disables them.
	AdminAddress string
	// NotifyWinners sends each ranked user a personal message.
	NotifyWinners bool
}

// Notifier turns published events into outbound messages.
type Notifier struct {
	sender        Sender
	transport     string
	adminAddress  string
	notifyWinners bool
}

func NewNotifier(c Config) *Notifier {
	n := &Notifier{
		sender:        c.Sender,
		transport:     c.Transport,
		adminAddress:  c.AdminAddress,
		notifyWinners: c.NotifyWinners,
	}
	if n.sender == nil {
		n.sender = LogSender{}
	}
	if n.transport == "" {
		n.transport = "log"
	}

	c.EventBus.Subscribe(domain.EventNameLeaderboardPublished, func(ctx context.Context, e event.Event) error {
		n.LeaderboardPublished(ctx, e.(domain.EventLeaderboardPublished))
		return nil
	})
	c.EventBus.Subscribe(domain.EventNameBroadcastRequested, func(ctx context.Context, e event.Event) error {
		n.BroadcastRequested(ctx, e.(domain.EventBroadcastRequested))
		return nil
	})

	return n
}

// LeaderboardPublished sends the summary to the admin and, when enabled, a
// personal rank message to every ranked user with a known address.
func (n *Notifier) LeaderboardPublished(ctx context.Context, e domain.EventLeaderboardPublished) {
	lb := e.Leaderboard

	var msgs []outbound
	if n.adminAddress != "" {
		msgs = append(msgs, outbound{to: n.adminAddress, body: leaderboard.Format(lb)})
	}
	if n.notifyWinners {
		for _, entry := range lb.Entries {
			if entry.Address == "" {
				continue
			}
			msgs = append(msgs, outbound{to: entry.Address, body: leaderboard.WinnerMessage(lb.Kind, entry)})
		}
	}

	sent := n.fanOut(ctx, msgs)
	slog.InfoContext(ctx, "notify: leaderboard delivered", "kind", lb.Kind, "bucket", lb.Bucket, "sent", sent, "total", len(msgs))
}

// BroadcastRequested sends the message to every address of the event.
func (n *Notifier) BroadcastRequested(ctx context.Context, e domain.EventBroadcastRequested) {
	msgs := make([]outbound, 0, len(e.Addresses))
	for _, addr := range e.Addresses {
		msgs = append(msgs, outbound{to: addr, body: e.Message})
	}

	sent := n.fanOut(ctx, msgs)
	slog.InfoContext(ctx, "notify: broadcast delivered", "sent", sent, "total", len(msgs))
}

type outbound struct {
	to   string
	body string
}

// fanOut sends msgs concurrently and returns how many were delivered.
func (n *Notifier) fanOut(ctx context.Context, msgs []outbound) int {
	var eg errgroup.Group
	eg.SetLimit(maxConcurrent)

	results := make([]bool, len(msgs))
	for i, m := range msgs {
		i, m := i, m
		eg.Go(func() error {
			err := n.sender.Send(ctx, m.to, m.body)
			telemetry.Metrics().RecordNotification(n.transport, err)
			if err != nil {
				slog.WarnContext(ctx, "notify: send failed", "transport", n.transport, "to", m.to, "error", err)
				return nil
			}
			results[i] = true
			return nil
		})
	}
	_ = eg.Wait()

	sent := 0
	for _, ok := range results {
		if ok {
			sent++
		}
	}
	return sent
}
