package storage

import (
	"context"
	"errors"
	"time"

	"github.com/pimedia/leadbot/internal/models"
)

// ErrNotFound is returned when a looked-up row does not exist.
var ErrNotFound = errors.New("not found")

// LeadFilter scopes lead queries. A nil SiteIDs means no site
// restriction (TeamAdmin scope); an empty non-nil slice matches
// nothing. Zero From/To leave the window open on that side.
type LeadFilter struct {
	SiteIDs []string
	Status  models.LeadStatus
	From    time.Time
	To      time.Time
}

// DayCount is a per-day lead total, Day formatted as 2006-01-02.
type DayCount struct {
	Day   string
	Count int
}

type Storage interface {
	// Users
	GetUserByLogin(ctx context.Context, login string) (*models.User, error)
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	ListUsers(ctx context.Context) ([]*models.User, error)
	ListSiteAdmins(ctx context.Context, siteIDs []string) ([]*models.User, error)
	SetNotifyPreference(ctx context.Context, userID string, on bool) error
	// SetTelegramChatID registers the delivery address for fan-out;
	// an empty chatID clears it.
	SetTelegramChatID(ctx context.Context, userID, chatID string) error
	// ListNotificationTargets selects active users with the new-lead
	// preference on, a registered delivery address, and either the
	// TeamAdmin role or an attachment to the given site.
	ListNotificationTargets(ctx context.Context, siteID string) ([]*models.User, error)

	// Sites
	GetSiteByID(ctx context.Context, id string) (*models.Site, error)
	GetSiteByDomain(ctx context.Context, domain string) (*models.Site, error)
	ListSites(ctx context.Context, siteIDs []string) ([]*models.Site, error)
	CountUsersBySite(ctx context.Context, siteIDs []string) (map[string]int, error)

	// Leads
	CreateLead(ctx context.Context, lead *models.Lead) error
	GetLead(ctx context.Context, id string) (*models.Lead, error)
	CountLeads(ctx context.Context, f LeadFilter) (int, error)
	CountLeadsByStatus(ctx context.Context, f LeadFilter) (map[models.LeadStatus]int, error)
	CountLeadsBySite(ctx context.Context, f LeadFilter) (map[string]int, error)
	CountLeadsByDay(ctx context.Context, f LeadFilter) ([]DayCount, error)
	ListLeads(ctx context.Context, f LeadFilter, offset, limit int) ([]*models.Lead, error)
	UpdateLeadStatus(ctx context.Context, id string, status models.LeadStatus) error

	// Notifications
	CreateNotification(ctx context.Context, n *models.Notification) error
	ListUnreadNotifications(ctx context.Context, userID string, limit int) ([]*models.Notification, error)
	MarkNotificationsRead(ctx context.Context, userID string) error

	SessionStorage

	Close() error
}

// SessionStorage is the durable layer under the session cache.
type SessionStorage interface {
	// GetSession returns the session for chatKey, creating a fresh
	// idle one if none exists. Concurrent first calls for the same
	// key must collapse to one logical session.
	GetSession(ctx context.Context, chatKey string) (*models.ChatSession, error)
	SaveSession(ctx context.Context, session *models.ChatSession) error
}
