package models

import "time"

// Role is a tenant role, least to most privileged. TeamAdmin sees every
// site; the other roles only see sites they are attached to.
type Role string

const (
	RoleAdmin      Role = "ADMIN"
	RoleSuperAdmin Role = "SUPER_ADMIN"
	RoleTeamAdmin  Role = "TEAM_ADMIN"
)

// LeadStatus values in their canonical rendering order.
type LeadStatus string

const (
	StatusNew       LeadStatus = "NEW"
	StatusContacted LeadStatus = "CONTACTED"
	StatusQualified LeadStatus = "QUALIFIED"
	StatusProposal  LeadStatus = "PROPOSAL"
	StatusWon       LeadStatus = "WON"
	StatusLost      LeadStatus = "LOST"
)

// AllStatuses is the canonical order; every status breakdown and button
// grid iterates this slice, never a map.
var AllStatuses = []LeadStatus{
	StatusNew,
	StatusContacted,
	StatusQualified,
	StatusProposal,
	StatusWon,
	StatusLost,
}

// ValidStatus reports whether s is one of the known lead statuses.
func ValidStatus(s LeadStatus) bool {
	for _, st := range AllStatuses {
		if st == s {
			return true
		}
	}
	return false
}

// User is a CRM account that may link a chat session.
type User struct {
	ID             string    `json:"id"`
	Login          string    `json:"login"`
	PasswordHash   string    `json:"-"`
	Name           string    `json:"name"`
	Role           Role      `json:"role"`
	IsActive       bool      `json:"is_active"`
	NotifyNewLead  bool      `json:"notify_new_lead"`
	TelegramChatID string    `json:"telegram_chat_id,omitempty"`
	SiteIDs        []string  `json:"site_ids"`
	CreatedAt      time.Time `json:"created_at"`
}

// EntitledSiteIDs returns the site scope for lead queries: nil means
// unrestricted (TeamAdmin sees all sites). A non-TeamAdmin with no
// attached sites gets an empty, not nil, scope.
func (u *User) EntitledSiteIDs() []string {
	if u.Role == RoleTeamAdmin {
		return nil
	}
	if u.SiteIDs == nil {
		return []string{}
	}
	return u.SiteIDs
}

// Site is one marketing site feeding leads into the CRM.
type Site struct {
	ID        string    `json:"id"`
	Domain    string    `json:"domain"`
	Name      string    `json:"name"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// Lead is a captured contact. The bot reads leads and may change
// Status; everything else is owned by the web dashboard.
type Lead struct {
	ID         string     `json:"id"`
	SiteID     string     `json:"site_id"`
	SiteDomain string     `json:"site_domain,omitempty"`
	Name       string     `json:"name"`
	Phone      string     `json:"phone"`
	Status     LeadStatus `json:"status"`
	Goal       string     `json:"goal,omitempty"`
	Revenue    string     `json:"revenue,omitempty"`
	Source     string     `json:"source,omitempty"`
	Notes      string     `json:"notes,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Notification is a dashboard alert addressed to one user.
type Notification struct {
	ID         string    `json:"id"`
	ReceiverID string    `json:"receiver_id"`
	Title      string    `json:"title"`
	Message    string    `json:"message,omitempty"`
	IsRead     bool      `json:"is_read"`
	CreatedAt  time.Time `json:"created_at"`
}
