package bot

import (
	"context"
	"errors"
	"fmt"

	"github.com/pimedia/leadbot/internal/models"
	"github.com/pimedia/leadbot/internal/storage"
	"go.uber.org/zap"
)

// handleCallback routes a button click. Clicks carry no dialogue
// state; they only need an authenticated session resolvable from the
// clicking user.
func (h *Handler) handleCallback(ctx context.Context, ev Event) {
	payload, err := DecodePayload(ev.Payload)
	if err != nil {
		h.logger.Warn("Malformed callback payload",
			zap.String("payload", ev.Payload), zap.Int64("sender_id", ev.SenderID))
		h.answerCallback(ev.CallbackID, "Unknown action")
		return
	}

	if payload.Kind == PayloadNoop {
		h.answerCallback(ev.CallbackID, "")
		return
	}

	user, err := h.callbackUser(ctx, ev)
	if err != nil {
		if errors.Is(err, errUnauthenticated) {
			h.answerCallback(ev.CallbackID, "Please sign in first: /start")
			return
		}
		h.logger.Error("Failed to resolve callback user", zap.Error(err), zap.Int64("sender_id", ev.SenderID))
		h.answerCallback(ev.CallbackID, "Something went wrong")
		return
	}

	h.answerCallback(ev.CallbackID, "")

	switch payload.Kind {
	case PayloadLeadDetail:
		h.leadDetail(ctx, ev.ChatID, payload.LeadID)

	case PayloadLeadPage:
		h.leadsPage(ctx, ev, user, payload.Page, payload.Filter)

	case PayloadFilterSwitch:
		h.leadsPage(ctx, ev, user, 0, payload.Filter)

	case PayloadSetStatus:
		h.setLeadStatus(ctx, ev, payload)

	case PayloadNotifyToggle:
		h.toggleNotify(ctx, ev, user, payload.NotifyOn)
	}
}

var errUnauthenticated = errors.New("callback from unauthenticated session")

// callbackUser resolves the clicking user through their session.
func (h *Handler) callbackUser(ctx context.Context, ev Event) (*models.User, error) {
	sess, err := h.sessions.Get(ctx, sessionKey(ev.SenderID))
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if !sess.Authenticated() {
		return nil, errUnauthenticated
	}
	user, err := h.store.GetUserByID(ctx, sess.UserID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, errUnauthenticated
	}
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if !user.IsActive {
		return nil, errUnauthenticated
	}
	return user, nil
}

func (h *Handler) setLeadStatus(ctx context.Context, ev Event, payload Payload) {
	if err := h.store.UpdateLeadStatus(ctx, payload.LeadID, payload.Status); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			h.send(ev.ChatID, "❌ Lead not found.")
			return
		}
		h.commandError(ev.ChatID, "update lead status", err)
		return
	}
	h.send(ev.ChatID, fmt.Sprintf("✅ Lead status changed to <b>%s</b>!", statusLabel(payload.Status)))
}

// toggleNotify flips the preference and re-renders the settings view
// so the message reflects the new state.
func (h *Handler) toggleNotify(ctx context.Context, ev Event, user *models.User, on bool) {
	if err := h.store.SetNotifyPreference(ctx, user.ID, on); err != nil {
		h.commandError(ev.ChatID, "update notify preference", err)
		return
	}
	user.NotifyNewLead = on
	h.settingsView(ctx, ev, user)
}

func (h *Handler) answerCallback(callbackID, text string) {
	if err := h.client.AnswerCallback(callbackID, text); err != nil {
		h.logger.Error("Failed to answer callback", zap.Error(err), zap.String("callback_id", callbackID))
	}
}
