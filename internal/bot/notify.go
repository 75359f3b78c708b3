package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/pimedia/leadbot/internal/storage"
	"github.com/pimedia/leadbot/internal/telegram"
	"go.uber.org/zap"
)

// NewLead is the event emitted when the ingestion API persists a lead.
type NewLead struct {
	Name   string
	Phone  string
	Goal   string
	SiteID string
}

// Notifier fans a new-lead event out to every entitled, opted-in user
// with a registered delivery address. Events are handed off through a
// buffered queue so the producer never blocks; delivery is best-effort
// per recipient.
type Notifier struct {
	store  storage.Storage
	client telegram.Client
	logger *zap.Logger

	queue chan NewLead
	done  chan struct{}
}

func NewNotifier(store storage.Storage, client telegram.Client, logger *zap.Logger) *Notifier {
	return &Notifier{
		store:  store,
		client: client,
		logger: logger,
		queue:  make(chan NewLead, 64),
		done:   make(chan struct{}),
	}
}

// Start launches the worker draining the queue.
func (n *Notifier) Start() {
	go func() {
		defer close(n.done)
		for lead := range n.queue {
			n.Dispatch(context.Background(), lead)
		}
	}()
}

// Enqueue hands off one event without blocking. A full queue drops the
// event; the alert is convenience, the lead itself is already stored.
func (n *Notifier) Enqueue(lead NewLead) {
	select {
	case n.queue <- lead:
	default:
		n.logger.Warn("Notification queue full, dropping event",
			zap.String("site_id", lead.SiteID), zap.String("lead", lead.Name))
	}
}

// Close stops accepting events and waits for the queue to drain.
func (n *Notifier) Close() {
	close(n.queue)
	<-n.done
}

// Dispatch delivers one event synchronously. A missing site is a
// silent no-op; so is an empty recipient selection.
func (n *Notifier) Dispatch(ctx context.Context, lead NewLead) {
	site, err := n.store.GetSiteByID(ctx, lead.SiteID)
	if errors.Is(err, storage.ErrNotFound) {
		return
	}
	if err != nil {
		n.logger.Error("Failed to resolve site for notification",
			zap.Error(err), zap.String("site_id", lead.SiteID))
		return
	}
	if !site.IsActive {
		return
	}

	targets, err := n.store.ListNotificationTargets(ctx, site.ID)
	if err != nil {
		n.logger.Error("Failed to select notification targets",
			zap.Error(err), zap.String("site_id", site.ID))
		return
	}
	if len(targets) == 0 {
		return
	}

	msg := header("🆕 <b>NEW LEAD!</b>")
	msg += fmt.Sprintf("🌐 Site: <b>%s</b>\n", escapeHTML(site.Domain))
	msg += fmt.Sprintf("👤 Name: <b>%s</b>\n", escapeHTML(lead.Name))
	msg += fmt.Sprintf("📞 Phone: <code>%s</code>\n", escapeHTML(lead.Phone))
	if lead.Goal != "" {
		msg += fmt.Sprintf("🎯 Goal: %s\n", escapeHTML(lead.Goal))
	}

	var wg sync.WaitGroup
	for _, target := range targets {
		chatID, err := strconv.ParseInt(target.TelegramChatID, 10, 64)
		if err != nil {
			n.logger.Warn("Skipping target with bad delivery address",
				zap.String("user_id", target.ID), zap.String("chat_id", target.TelegramChatID))
			continue
		}
		wg.Add(1)
		go func(userID string, chatID int64) {
			defer wg.Done()
			if err := n.client.SendText(chatID, msg); err != nil {
				n.logger.Error("Failed to deliver new-lead alert",
					zap.Error(err), zap.String("user_id", userID), zap.Int64("chat_id", chatID))
			}
		}(target.ID, chatID)
	}
	wg.Wait()
}
