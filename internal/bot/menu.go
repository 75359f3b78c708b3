package bot

import (
	"strings"

	"github.com/pimedia/leadbot/internal/models"
)

// Commands, menus and status labels are data tables keyed by the fixed
// role/status enums; adding a role or status is a data change here, not
// new branching in the dialogue handler.

type commandID int

const (
	cmdToday commandID = iota
	cmdLeads
	cmdWeekly
	cmdMonthly
	cmdNotifications
	cmdSettings
	cmdMySites
	cmdMyAdmins
	cmdAllSites
	cmdAllUsers
	cmdLogout
	cmdHelp
)

type commandSpec struct {
	id    commandID
	slash string
	label string      // reply-keyboard button text (private chats)
	role  models.Role // empty = any authenticated role
}

var commandTable = []commandSpec{
	{id: cmdToday, slash: "/today", label: "📊 Today"},
	{id: cmdLeads, slash: "/leads", label: "📋 Leads"},
	{id: cmdWeekly, slash: "/weekly", label: "📈 Weekly"},
	{id: cmdMonthly, slash: "/monthly", label: "📅 Monthly"},
	{id: cmdNotifications, slash: "/notifications", label: "🔔 Notifications"},
	{id: cmdSettings, slash: "/settings", label: "⚙️ Settings"},
	{id: cmdMySites, slash: "/mysites", label: "🌐 My sites", role: models.RoleSuperAdmin},
	{id: cmdMyAdmins, slash: "/myadmins", label: "👥 My admins", role: models.RoleSuperAdmin},
	{id: cmdAllSites, slash: "/allsites", label: "🌐 All sites", role: models.RoleTeamAdmin},
	{id: cmdAllUsers, slash: "/allusers", label: "👥 All users", role: models.RoleTeamAdmin},
	{id: cmdLogout, slash: "/logout", label: "🚪 Logout"},
	{id: cmdHelp, slash: "/help"},
	{id: cmdHelp, slash: "/menu"},
}

// resolveCommand matches either the slash form or the menu label and
// enforces the role gate: a command outside the actor's role is as
// unknown as a typo.
func resolveCommand(text string, role models.Role) (commandSpec, bool) {
	for _, spec := range commandTable {
		if text != spec.slash && (spec.label == "" || text != spec.label) {
			continue
		}
		if spec.role != "" && spec.role != role {
			return commandSpec{}, false
		}
		return spec, true
	}
	return commandSpec{}, false
}

// menuButtons builds the persistent reply keyboard for a role.
func menuButtons(role models.Role) [][]string {
	rows := [][]string{
		{"📊 Today", "📋 Leads"},
		{"📈 Weekly", "📅 Monthly"},
		{"🔔 Notifications", "⚙️ Settings"},
	}
	switch role {
	case models.RoleSuperAdmin:
		rows = append(rows, []string{"🌐 My sites", "👥 My admins"})
	case models.RoleTeamAdmin:
		rows = append(rows, []string{"🌐 All sites", "👥 All users"})
	}
	rows = append(rows, []string{"🚪 Logout"})
	return rows
}

// groupCommandText is the printed command list used in group rooms,
// where reply keyboards are not an available affordance.
func groupCommandText(role models.Role) string {
	text := "\n" + divider + `
/today — 📊 Today's stats
/leads — 📋 Recent leads
/weekly — 📈 Weekly report
/monthly — 📅 Monthly report
/notifications — 🔔 Notifications
/settings — ⚙️ Settings`

	switch role {
	case models.RoleSuperAdmin:
		text += `
/mysites — 🌐 My sites
/myadmins — 👥 My admins`
	case models.RoleTeamAdmin:
		text += `
/allsites — 🌐 All sites
/allusers — 👥 All users`
	}

	text += "\n" + divider + `
/stop — 🔇 Mute the bot
/logout — 🚪 Sign out
/help — 📋 Commands`
	return text
}

var roleLabels = map[models.Role]string{
	models.RoleTeamAdmin:  "🏆 TeamAdmin",
	models.RoleSuperAdmin: "⭐ SuperAdmin",
	models.RoleAdmin:      "👤 Admin",
}

func roleLabel(role models.Role) string {
	if label, ok := roleLabels[role]; ok {
		return label
	}
	return string(role)
}

var statusLabels = map[models.LeadStatus]string{
	models.StatusNew:       "🔵 New",
	models.StatusContacted: "🟡 Contacted",
	models.StatusQualified: "🟢 Qualified",
	models.StatusProposal:  "🟣 Proposal",
	models.StatusWon:       "✅ Won",
	models.StatusLost:      "🔴 Lost",
}

// statusShort is the emoji-free form used on buttons.
var statusShort = map[models.LeadStatus]string{
	models.StatusNew:       "New",
	models.StatusContacted: "Contacted",
	models.StatusQualified: "Qualified",
	models.StatusProposal:  "Proposal",
	models.StatusWon:       "Won",
	models.StatusLost:      "Lost",
}

func statusLabel(s models.LeadStatus) string {
	if label, ok := statusLabels[s]; ok {
		return label
	}
	return string(s)
}

func statusIcon(s models.LeadStatus) string {
	if fields := strings.Fields(statusLabel(s)); len(fields) > 0 {
		return fields[0]
	}
	return "⚪"
}
