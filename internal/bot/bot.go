package bot

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pimedia/leadbot/internal/telegram"
	"go.uber.org/zap"
)

// Bot drives the long-polling update loop, normalizing transport
// updates into Events and handing each to the dialogue handler on its
// own goroutine. The transport serializes nothing: events for
// different chats run fully in parallel.
type Bot struct {
	api     *telegram.API
	handler *Handler
	logger  *zap.Logger
}

func New(api *telegram.API, handler *Handler, logger *zap.Logger) *Bot {
	return &Bot{api: api, handler: handler, logger: logger}
}

func (b *Bot) Start() error {
	for update := range b.api.Updates() {
		ev, ok := normalize(update)
		if !ok {
			continue
		}
		go b.handler.HandleEvent(context.Background(), ev)
	}
	return nil
}

func normalize(update tgbotapi.Update) (Event, bool) {
	if cq := update.CallbackQuery; cq != nil {
		ev := Event{
			SenderID:   cq.From.ID,
			ChatID:     cq.From.ID,
			CallbackID: cq.ID,
			Payload:    cq.Data,
		}
		if cq.Message != nil {
			ev.ChatID = cq.Message.Chat.ID
			ev.MessageID = cq.Message.MessageID
			ev.IsGroup = cq.Message.Chat.IsGroup() || cq.Message.Chat.IsSuperGroup()
		}
		return ev, true
	}

	if m := update.Message; m != nil && m.Text != "" && m.From != nil {
		return Event{
			ChatID:     m.Chat.ID,
			SenderID:   m.From.ID,
			SenderName: m.From.FirstName,
			IsGroup:    m.Chat.IsGroup() || m.Chat.IsSuperGroup(),
			Text:       m.Text,
		}, true
	}

	return Event{}, false
}
