// Package telegram wraps the Bot API behind the narrow send surface the
// dialogue handler needs, so tests can substitute a fake transport.
package telegram

import (
	"fmt"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Button is one inline button: a visible label and the opaque payload
// delivered back on click.
type Button struct {
	Label   string
	Payload string
}

// Client is the outbound chat transport.
type Client interface {
	SendText(chatID int64, text string) error
	SendButtons(chatID int64, text string, rows [][]Button) error
	// SendReplyKeyboard shows a persistent bottom menu; private chats only.
	SendReplyKeyboard(chatID int64, text string, rows [][]string) error
	EditMessage(chatID int64, messageID int, text string, rows [][]Button) error
	AnswerCallback(callbackID, text string) error
}

// API is the live transport over go-telegram-bot-api. All messages go
// out as HTML, matching the web side's formatting.
type API struct {
	bot *tgbotapi.BotAPI
}

// New connects to the Bot API. The HTTP client timeout bounds every
// outbound call; retry policy belongs to the polling layer, not here.
func New(token string, timeout time.Duration) (*API, error) {
	bot, err := tgbotapi.NewBotAPIWithClient(token, tgbotapi.APIEndpoint, &http.Client{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("failed to create bot api: %w", err)
	}
	return &API{bot: bot}, nil
}

// Updates returns the long-polling update channel.
func (a *API) Updates() tgbotapi.UpdatesChannel {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	return a.bot.GetUpdatesChan(u)
}

func (a *API) SendText(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	_, err := a.bot.Send(msg)
	return err
}

func inlineMarkup(rows [][]Button) tgbotapi.InlineKeyboardMarkup {
	keyboard := make([][]tgbotapi.InlineKeyboardButton, 0, len(rows))
	for _, row := range rows {
		btns := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			btns = append(btns, tgbotapi.NewInlineKeyboardButtonData(b.Label, b.Payload))
		}
		keyboard = append(keyboard, btns)
	}
	return tgbotapi.NewInlineKeyboardMarkup(keyboard...)
}

func (a *API) SendButtons(chatID int64, text string, rows [][]Button) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	if len(rows) > 0 {
		msg.ReplyMarkup = inlineMarkup(rows)
	}
	_, err := a.bot.Send(msg)
	return err
}

func (a *API) SendReplyKeyboard(chatID int64, text string, rows [][]string) error {
	keyboard := make([][]tgbotapi.KeyboardButton, 0, len(rows))
	for _, row := range rows {
		btns := make([]tgbotapi.KeyboardButton, 0, len(row))
		for _, label := range row {
			btns = append(btns, tgbotapi.NewKeyboardButton(label))
		}
		keyboard = append(keyboard, btns)
	}
	markup := tgbotapi.NewReplyKeyboard(keyboard...)
	markup.ResizeKeyboard = true

	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = markup
	_, err := a.bot.Send(msg)
	return err
}

func (a *API) EditMessage(chatID int64, messageID int, text string, rows [][]Button) error {
	edit := tgbotapi.NewEditMessageText(chatID, messageID, text)
	edit.ParseMode = tgbotapi.ModeHTML
	if len(rows) > 0 {
		markup := inlineMarkup(rows)
		edit.ReplyMarkup = &markup
	}
	_, err := a.bot.Send(edit)
	return err
}

func (a *API) AnswerCallback(callbackID, text string) error {
	_, err := a.bot.Request(tgbotapi.NewCallback(callbackID, text))
	return err
}
