package bot

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/pimedia/leadbot/internal/models"
	"github.com/pimedia/leadbot/internal/session"
	"github.com/pimedia/leadbot/internal/storage"
	"github.com/pimedia/leadbot/internal/telegram"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const (
	startCommand = "/start"
	stopCommand  = "/stop"
)

// Event is one inbound chat event, normalized away from the transport
// types. A non-empty CallbackID marks a button click.
type Event struct {
	ChatID     int64
	SenderID   int64
	SenderName string
	IsGroup    bool
	Text       string
	CallbackID string
	MessageID  int
	Payload    string
}

// Handler is the dialogue state machine plus command dispatcher. All
// collaborators come in through the constructor so tests can run it
// against fakes.
type Handler struct {
	store    storage.Storage
	sessions *session.Store
	client   telegram.Client
	groups   *GroupSet
	throttle *LoginThrottle
	logger   *zap.Logger

	// now is swappable so tests can pin the stats windows.
	now func() time.Time
}

func NewHandler(store storage.Storage, sessions *session.Store, client telegram.Client,
	groups *GroupSet, throttle *LoginThrottle, logger *zap.Logger) *Handler {
	return &Handler{
		store:    store,
		sessions: sessions,
		client:   client,
		groups:   groups,
		throttle: throttle,
		logger:   logger,
		now:      time.Now,
	}
}

var mentionPattern = regexp.MustCompile(`@\w+`)

// HandleEvent processes one inbound event and produces at most one
// reply. Storage errors never escape: they become a generic reply and
// leave the session exactly as it was.
func (h *Handler) HandleEvent(ctx context.Context, ev Event) {
	if ev.CallbackID != "" {
		h.handleCallback(ctx, ev)
		return
	}
	h.handleMessage(ctx, ev)
}

func (h *Handler) handleMessage(ctx context.Context, ev Event) {
	text := strings.TrimSpace(mentionPattern.ReplaceAllString(ev.Text, ""))
	if text == "" {
		return
	}

	// Group rooms must opt in before anything but /start is processed.
	if ev.IsGroup {
		switch {
		case text == startCommand:
			h.groups.Activate(ev.ChatID)
		case text == stopCommand:
			h.groups.Deactivate(ev.ChatID)
			h.send(ev.ChatID, header("🔇 <b>Bot muted</b>")+"Send /start to enable it again.")
			return
		case !h.groups.Active(ev.ChatID):
			return
		}
	}

	chatKey := sessionKey(ev.SenderID)
	sess, err := h.sessions.Get(ctx, chatKey)
	if err != nil {
		h.logger.Error("Failed to load session", zap.Error(err), zap.String("chat_key", chatKey))
		h.sendError(ev.ChatID)
		return
	}

	if text == startCommand || (!sess.Authenticated() && sess.State == models.StateIdle) {
		h.beginLogin(ctx, ev, sess)
		return
	}

	switch sess.State {
	case models.StateAwaitingLogin:
		h.acceptLogin(ctx, ev, sess, text)
		return
	case models.StateAwaitingPassword:
		h.acceptPassword(ctx, ev, sess, text)
		return
	}

	if !sess.Authenticated() {
		h.beginLogin(ctx, ev, sess)
		return
	}

	user, err := h.store.GetUserByID(ctx, sess.UserID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		h.logger.Error("Failed to load user", zap.Error(err), zap.String("user_id", sess.UserID))
		h.sendError(ev.ChatID)
		return
	}
	if err != nil || !user.IsActive {
		h.resetToLogin(ctx, ev.ChatID, sess, "❌ Account is not active.\n\nSend your <b>login</b> to sign in again:")
		return
	}

	h.dispatchCommand(ctx, ev, sess, user, text)
}

// beginLogin is the /start transition, idempotent from any
// unauthenticated state.
func (h *Handler) beginLogin(ctx context.Context, ev Event, sess *models.ChatSession) {
	sess.State = models.StateAwaitingLogin
	sess.UserID = ""
	sess.TempLogin = ""
	if err := h.sessions.Put(ctx, sess); err != nil {
		h.logger.Error("Failed to save session", zap.Error(err), zap.String("chat_key", sess.ChatKey))
		h.sendError(ev.ChatID)
		return
	}

	name := ev.SenderName
	if name == "" {
		name = "there"
	}
	greeting := header("🛡 <b>LeadBot</b>") +
		fmt.Sprintf("Hello, <b>%s</b>! 👋\n\nSend your <b>login</b> to sign in:", escapeHTML(name))
	if ev.IsGroup {
		greeting = header("🛡 <b>LeadBot</b>") +
			fmt.Sprintf("Hello, <b>%s</b>!\n\nSend your <b>login</b> to sign in.\n\n"+
				"⚠️ <i>For safety, prefer signing in from a private chat.</i>", escapeHTML(name))
	}
	h.send(ev.ChatID, greeting)
}

func (h *Handler) acceptLogin(ctx context.Context, ev Event, sess *models.ChatSession, text string) {
	sess.TempLogin = text
	sess.State = models.StateAwaitingPassword
	if err := h.sessions.Put(ctx, sess); err != nil {
		h.logger.Error("Failed to save session", zap.Error(err), zap.String("chat_key", sess.ChatKey))
		h.sendError(ev.ChatID)
		return
	}
	h.send(ev.ChatID, "🔑 Now send your <b>password</b>:")
}

func (h *Handler) acceptPassword(ctx context.Context, ev Event, sess *models.ChatSession, attempt string) {
	if !h.throttle.Allow(sess.ChatKey) {
		h.send(ev.ChatID, "⏳ Too many attempts. Try again later.")
		return
	}

	login := sess.TempLogin
	if login == "" {
		h.resetToLogin(ctx, ev.ChatID, sess, "❌ Something went wrong.\n\nSend your <b>login</b> again:")
		return
	}

	user, err := h.store.GetUserByLogin(ctx, login)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		h.logger.Error("Failed to look up login", zap.Error(err))
		h.sendError(ev.ChatID)
		return
	}

	// One generic message for every failure mode: unknown login,
	// inactive account, wrong password.
	if err != nil || !user.IsActive || !verifyPassword(user, attempt) {
		h.resetToLogin(ctx, ev.ChatID, sess,
			"❌ <b>Login or password incorrect</b>\n\nSend your <b>login</b> again:")
		return
	}

	sess.State = models.StateIdle
	sess.UserID = user.ID
	sess.TempLogin = ""
	if err := h.sessions.Put(ctx, sess); err != nil {
		h.logger.Error("Failed to save session", zap.Error(err), zap.String("chat_key", sess.ChatKey))
		h.sendError(ev.ChatID)
		return
	}
	h.throttle.Reset(sess.ChatKey)

	// Register the delivery address for new-lead fan-out.
	if err := h.store.SetTelegramChatID(ctx, user.ID, strconv.FormatInt(ev.ChatID, 10)); err != nil {
		h.logger.Error("Failed to register delivery address",
			zap.Error(err), zap.String("user_id", user.ID))
	}

	welcome := header("✅ <b>Welcome!</b>") +
		fmt.Sprintf("👤 <b>%s</b>\n%s\n\n", escapeHTML(user.Name), roleLabel(user.Role))
	if ev.IsGroup {
		h.send(ev.ChatID, welcome+"📋 Commands:"+groupCommandText(user.Role))
		return
	}
	if err := h.client.SendReplyKeyboard(ev.ChatID, welcome+"Use the menu below 👇", menuButtons(user.Role)); err != nil {
		h.logger.Error("Failed to send welcome keyboard", zap.Error(err), zap.Int64("chat_id", ev.ChatID))
	}
}

func (h *Handler) dispatchCommand(ctx context.Context, ev Event, sess *models.ChatSession, user *models.User, text string) {
	spec, ok := resolveCommand(text, user.Role)
	if !ok {
		// Silence in groups is deliberate: an unrecognized line in a
		// busy room is usually not addressed to the bot.
		if ev.IsGroup {
			return
		}
		h.send(ev.ChatID, "🤷 Unknown command\n\nTry /help or /menu")
		return
	}

	switch spec.id {
	case cmdToday:
		h.todayStats(ctx, ev.ChatID, user)
	case cmdLeads:
		h.leadsPage(ctx, ev, user, 0, FilterAll)
	case cmdWeekly:
		h.weeklyStats(ctx, ev.ChatID, user)
	case cmdMonthly:
		h.monthlyStats(ctx, ev.ChatID, user)
	case cmdNotifications:
		h.notificationsDigest(ctx, ev.ChatID, user)
	case cmdSettings:
		h.settingsView(ctx, ev, user)
	case cmdMySites:
		h.mySites(ctx, ev.ChatID, user)
	case cmdMyAdmins:
		h.myAdmins(ctx, ev.ChatID, user)
	case cmdAllSites:
		h.allSites(ctx, ev.ChatID)
	case cmdAllUsers:
		h.allUsers(ctx, ev.ChatID)
	case cmdLogout:
		h.logout(ctx, ev, sess, user)
	case cmdHelp:
		h.help(ev, user)
	}
}

func (h *Handler) logout(ctx context.Context, ev Event, sess *models.ChatSession, user *models.User) {
	sess.State = models.StateIdle
	sess.UserID = ""
	sess.TempLogin = ""
	sess.ActiveSiteID = ""
	if err := h.sessions.Put(ctx, sess); err != nil {
		h.logger.Error("Failed to save session", zap.Error(err), zap.String("chat_key", sess.ChatKey))
		h.sendError(ev.ChatID)
		return
	}
	if err := h.store.SetTelegramChatID(ctx, user.ID, ""); err != nil {
		h.logger.Error("Failed to clear delivery address",
			zap.Error(err), zap.String("user_id", user.ID))
	}
	h.send(ev.ChatID, header("👋 <b>Signed out</b>")+"Send /start to sign in again.")
}

func (h *Handler) help(ev Event, user *models.User) {
	if ev.IsGroup {
		h.send(ev.ChatID, "📋 <b>Commands</b>\n"+divider+groupCommandText(user.Role))
		return
	}
	if err := h.client.SendReplyKeyboard(ev.ChatID,
		header("📋 <b>Menu</b>")+"Pick one of the buttons 👇", menuButtons(user.Role)); err != nil {
		h.logger.Error("Failed to send menu", zap.Error(err), zap.Int64("chat_id", ev.ChatID))
	}
}

// resetToLogin clears any partial handshake and re-prompts for the
// login, so the user is never left stuck.
func (h *Handler) resetToLogin(ctx context.Context, chatID int64, sess *models.ChatSession, message string) {
	sess.State = models.StateAwaitingLogin
	sess.TempLogin = ""
	sess.UserID = ""
	if err := h.sessions.Put(ctx, sess); err != nil {
		h.logger.Error("Failed to save session", zap.Error(err), zap.String("chat_key", sess.ChatKey))
		h.sendError(chatID)
		return
	}
	h.send(chatID, message)
}

func verifyPassword(user *models.User, attempt string) bool {
	return bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(attempt)) == nil
}

func sessionKey(senderID int64) string {
	return strconv.FormatInt(senderID, 10)
}

func (h *Handler) send(chatID int64, text string) {
	if err := h.client.SendText(chatID, text); err != nil {
		h.logger.Error("Failed to send message", zap.Error(err), zap.Int64("chat_id", chatID))
	}
}

func (h *Handler) sendError(chatID int64) {
	h.send(chatID, "⚠️ Something went wrong. Please try again.")
}
