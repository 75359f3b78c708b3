package bot

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/pimedia/leadbot/internal/models"
	"github.com/pimedia/leadbot/internal/storage"
	"github.com/pimedia/leadbot/internal/telegram"
	"go.uber.org/zap"
)

const (
	leadsPerPage       = 5
	notificationsLimit = 5
)

func midnight(now time.Time) time.Time {
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
}

// percentChange reports the rounded percent change versus the previous
// window: +100 when the previous window was empty and the current one
// is not, 0 when both are empty.
func percentChange(current, previous int) int {
	if previous > 0 {
		return int(math.Round(float64(current-previous) / float64(previous) * 100))
	}
	if current > 0 {
		return 100
	}
	return 0
}

func (h *Handler) todayStats(ctx context.Context, chatID int64, user *models.User) {
	filter := storage.LeadFilter{SiteIDs: user.EntitledSiteIDs(), From: midnight(h.now())}

	count, err := h.store.CountLeads(ctx, filter)
	if err != nil {
		h.commandError(chatID, "count today's leads", err)
		return
	}
	byStatus, err := h.store.CountLeadsByStatus(ctx, filter)
	if err != nil {
		h.commandError(chatID, "count today's leads by status", err)
		return
	}
	bySite, err := h.store.CountLeadsBySite(ctx, filter)
	if err != nil {
		h.commandError(chatID, "count today's leads by site", err)
		return
	}

	msg := header("📊 <b>Today's stats</b>")
	msg += fmt.Sprintf("🆕 New leads: <b>%d</b>\n", count)

	if len(byStatus) > 0 {
		msg += "\n📊 <b>By status:</b>\n"
		for _, st := range models.AllStatuses {
			if n := byStatus[st]; n > 0 {
				msg += fmt.Sprintf("  %s: <b>%d</b> %s\n", statusLabel(st), n, miniBar(n, count))
			}
		}
	}

	if len(bySite) > 0 {
		domains, err := h.siteDomains(ctx, bySite)
		if err != nil {
			h.commandError(chatID, "resolve site domains", err)
			return
		}
		msg += "\n🌐 <b>By site:</b>\n"
		for _, d := range domains {
			msg += fmt.Sprintf("  🌍 %s: <b>%d</b>\n", d.domain, bySite[d.id])
		}
	}

	if count == 0 {
		msg += "\n💤 <i>No leads yet today</i>"
	}

	h.send(chatID, msg)
}

type siteDomain struct {
	id     string
	domain string
}

// siteDomains resolves the site ids of a per-site count map in a
// stable (creation) order.
func (h *Handler) siteDomains(ctx context.Context, bySite map[string]int) ([]siteDomain, error) {
	ids := make([]string, 0, len(bySite))
	for id := range bySite {
		ids = append(ids, id)
	}
	sites, err := h.store.ListSites(ctx, ids)
	if err != nil {
		return nil, err
	}
	domains := make([]siteDomain, 0, len(sites))
	for _, s := range sites {
		domains = append(domains, siteDomain{id: s.ID, domain: s.Domain})
	}
	return domains, nil
}

func (h *Handler) weeklyStats(ctx context.Context, chatID int64, user *models.User) {
	now := h.now()
	// Week starts on Sunday, matching the dashboard.
	weekStart := midnight(now).AddDate(0, 0, -int(now.Weekday()))
	prevWeekStart := weekStart.AddDate(0, 0, -7)
	scope := user.EntitledSiteIDs()

	thisWeek, err := h.store.CountLeads(ctx, storage.LeadFilter{SiteIDs: scope, From: weekStart})
	if err != nil {
		h.commandError(chatID, "count this week's leads", err)
		return
	}
	prevWeek, err := h.store.CountLeads(ctx, storage.LeadFilter{SiteIDs: scope, From: prevWeekStart, To: weekStart})
	if err != nil {
		h.commandError(chatID, "count last week's leads", err)
		return
	}

	change := percentChange(thisWeek, prevWeek)
	arrow := "📈"
	if change < 0 {
		arrow = "📉"
	}
	max := thisWeek
	if prevWeek > max {
		max = prevWeek
	}

	msg := header("📈 <b>Weekly report</b>")
	msg += fmt.Sprintf("This week: <b>%d</b> leads\n%s\n\n", thisWeek, bar(thisWeek, max))
	msg += fmt.Sprintf("Last week: <b>%d</b> leads\n%s\n\n", prevWeek, bar(prevWeek, max))
	msg += fmt.Sprintf("%s Change: <b>%s</b>", arrow, signedPercent(change))
	if change > 0 {
		msg += " 🔥"
	}

	h.send(chatID, msg)
}

func (h *Handler) monthlyStats(ctx context.Context, chatID int64, user *models.User) {
	now := h.now()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	prevMonthStart := monthStart.AddDate(0, -1, 0)
	scope := user.EntitledSiteIDs()

	thisMonth, err := h.store.CountLeads(ctx, storage.LeadFilter{SiteIDs: scope, From: monthStart})
	if err != nil {
		h.commandError(chatID, "count this month's leads", err)
		return
	}
	prevMonth, err := h.store.CountLeads(ctx, storage.LeadFilter{SiteIDs: scope, From: prevMonthStart, To: monthStart})
	if err != nil {
		h.commandError(chatID, "count last month's leads", err)
		return
	}
	days, err := h.store.CountLeadsByDay(ctx, storage.LeadFilter{SiteIDs: scope, From: monthStart})
	if err != nil {
		h.commandError(chatID, "count this month's leads by day", err)
		return
	}

	change := percentChange(thisMonth, prevMonth)
	arrow := "📈"
	if change < 0 {
		arrow = "📉"
	}

	msg := header("📅 <b>Monthly report</b>")
	msg += fmt.Sprintf("This month: <b>%d</b> leads\n", thisMonth)
	msg += fmt.Sprintf("Last month: <b>%d</b> leads\n", prevMonth)
	msg += fmt.Sprintf("%s Change: <b>%s</b>", arrow, signedPercent(change))
	if change > 0 {
		msg += " 🔥"
	}
	msg += "\n"

	if best, ok := bestDay(days); ok {
		msg += fmt.Sprintf("\n🏆 Best day: <b>%s</b> (%d leads)", best.Day, best.Count)
	}

	if last := lastDays(days, 7); len(last) > 0 {
		msg += "\n\n📊 <b>Recent days:</b>\n"
		max := 0
		for _, d := range last {
			if d.Count > max {
				max = d.Count
			}
		}
		for _, d := range last {
			short := d.Day
			if len(short) == len("2006-01-02") {
				short = strings.ReplaceAll(short[5:], "-", "/")
			}
			msg += fmt.Sprintf("<code>%s</code> %s <b>%d</b>\n", short, bar(d.Count, max), d.Count)
		}
	}

	h.send(chatID, msg)
}

func bestDay(days []storage.DayCount) (storage.DayCount, bool) {
	var best storage.DayCount
	found := false
	for _, d := range days {
		if !found || d.Count > best.Count {
			best = d
			found = true
		}
	}
	return best, found
}

func lastDays(days []storage.DayCount, n int) []storage.DayCount {
	if len(days) <= n {
		return days
	}
	return days[len(days)-n:]
}

// leadsPage renders one page of the lead list with navigation and
// status-filter controls. Out-of-range pages are clamped to the last
// page rather than rejected. Callback-driven refreshes edit the
// originating message in place.
func (h *Handler) leadsPage(ctx context.Context, ev Event, user *models.User, page int, filter string) {
	base := storage.LeadFilter{SiteIDs: user.EntitledSiteIDs()}
	where := base
	if filter != FilterAll {
		where.Status = models.LeadStatus(filter)
	}

	total, err := h.store.CountLeads(ctx, where)
	if err != nil {
		h.commandError(ev.ChatID, "count leads", err)
		return
	}
	totalPages := (total + leadsPerPage - 1) / leadsPerPage
	if page < 0 {
		page = 0
	}
	if totalPages > 0 && page > totalPages-1 {
		page = totalPages - 1
	}

	leads, err := h.store.ListLeads(ctx, where, page*leadsPerPage, leadsPerPage)
	if err != nil {
		h.commandError(ev.ChatID, "list leads", err)
		return
	}
	statusCounts, err := h.store.CountLeadsByStatus(ctx, base)
	if err != nil {
		h.commandError(ev.ChatID, "count leads by status", err)
		return
	}

	totalAll := 0
	summary := make([]string, 0, len(models.AllStatuses))
	for _, st := range models.AllStatuses {
		n := statusCounts[st]
		totalAll += n
		if n > 0 {
			summary = append(summary, fmt.Sprintf("%s %d", statusIcon(st), n))
		}
	}

	filterLabel := "All"
	if filter != FilterAll {
		filterLabel = statusLabel(models.LeadStatus(filter))
	}

	msg := header(fmt.Sprintf("📋 <b>%s leads</b>", filterLabel))
	msg += fmt.Sprintf("📊 Total: <b>%d</b> leads  %s\n", totalAll, strings.Join(summary, " · "))
	if filter != FilterAll {
		msg += fmt.Sprintf("🔍 Filter: <b>%s</b> — <b>%d</b> found\n", filterLabel, total)
	}
	msg += "\n"

	if len(leads) == 0 {
		msg += "💤 <i>No leads match this filter</i>"
	}

	var rows [][]telegram.Button
	now := h.now()
	for i, lead := range leads {
		num := page*leadsPerPage + i + 1
		msg += fmt.Sprintf("<b>%d.</b> %s <b>%s</b>\n", num, statusIcon(lead.Status), escapeHTML(lead.Name))
		msg += fmt.Sprintf("     📞 <code>%s</code>\n", escapeHTML(lead.Phone))
		msg += fmt.Sprintf("     🌐 %s · 🕐 %s\n\n", escapeHTML(lead.SiteDomain), timeAgo(lead.CreatedAt, now))

		rows = append(rows, []telegram.Button{{
			Label:   lead.Name + " — " + lead.SiteDomain,
			Payload: Payload{Kind: PayloadLeadDetail, LeadID: lead.ID}.Encode(),
		}})
	}

	if totalPages > 1 {
		msg += fmt.Sprintf("\n📄 Page <b>%d</b> / <b>%d</b>\n", page+1, totalPages)

		var nav []telegram.Button
		if page > 0 {
			nav = append(nav, telegram.Button{
				Label:   "‹ Prev",
				Payload: Payload{Kind: PayloadLeadPage, Page: page - 1, Filter: filter}.Encode(),
			})
		}
		nav = append(nav, telegram.Button{
			Label:   fmt.Sprintf("%d / %d", page+1, totalPages),
			Payload: Payload{Kind: PayloadLeadPage, Page: page, Filter: filter}.Encode(),
		})
		if page < totalPages-1 {
			nav = append(nav, telegram.Button{
				Label:   "Next ›",
				Payload: Payload{Kind: PayloadLeadPage, Page: page + 1, Filter: filter}.Encode(),
			})
		}
		rows = append(rows, nav)
	}

	rows = append(rows, filterRows(filter)...)

	h.reply(ev, msg, rows)
}

// filterRows builds the two status-filter rows, marking the active
// filter with a prefix.
func filterRows(active string) [][]telegram.Button {
	mark := func(filter, label string) string {
		if filter == active {
			return "✦ " + label
		}
		return label
	}

	row1 := []telegram.Button{{
		Label:   mark(FilterAll, "All"),
		Payload: Payload{Kind: PayloadFilterSwitch, Filter: FilterAll}.Encode(),
	}}
	var row2 []telegram.Button
	for i, st := range models.AllStatuses {
		btn := telegram.Button{
			Label:   mark(string(st), statusShort[st]),
			Payload: Payload{Kind: PayloadFilterSwitch, Filter: string(st)}.Encode(),
		}
		if i < 3 {
			row1 = append(row1, btn)
		} else {
			row2 = append(row2, btn)
		}
	}
	return [][]telegram.Button{row1, row2}
}

func (h *Handler) leadDetail(ctx context.Context, chatID int64, leadID string) {
	lead, err := h.store.GetLead(ctx, leadID)
	if errors.Is(err, storage.ErrNotFound) {
		h.send(chatID, "❌ Lead not found.")
		return
	}
	if err != nil {
		h.commandError(chatID, "load lead", err)
		return
	}

	msg := header("📋 <b>Lead details</b>")
	msg += fmt.Sprintf("👤 Name: <b>%s</b>\n", escapeHTML(lead.Name))
	msg += fmt.Sprintf("📞 Phone: <code>%s</code>\n", escapeHTML(lead.Phone))
	msg += fmt.Sprintf("🌐 Site: <b>%s</b>\n", escapeHTML(lead.SiteDomain))
	msg += fmt.Sprintf("📊 Status: %s\n", statusLabel(lead.Status))
	if lead.Goal != "" {
		msg += fmt.Sprintf("🎯 Goal: %s\n", escapeHTML(lead.Goal))
	}
	if lead.Revenue != "" {
		msg += fmt.Sprintf("💰 Revenue: %s\n", escapeHTML(lead.Revenue))
	}
	if lead.Source != "" {
		msg += fmt.Sprintf("📡 Source: %s\n", escapeHTML(lead.Source))
	}
	if lead.Notes != "" {
		msg += fmt.Sprintf("📝 Notes: %s\n", escapeHTML(lead.Notes))
	}
	msg += fmt.Sprintf("\n🕐 %s", timeAgo(lead.CreatedAt, h.now()))
	msg += fmt.Sprintf("\n📅 %s", lead.CreatedAt.Format("02.01.2006 15:04"))

	h.sendButtons(chatID, msg, statusButtons(lead))
}

// statusButtons offers every status except the lead's current one, in
// canonical order, three to a row.
func statusButtons(lead *models.Lead) [][]telegram.Button {
	var rows [][]telegram.Button
	var row []telegram.Button
	for _, st := range models.AllStatuses {
		if st == lead.Status {
			continue
		}
		row = append(row, telegram.Button{
			Label:   statusShort[st],
			Payload: Payload{Kind: PayloadSetStatus, Status: st, LeadID: lead.ID}.Encode(),
		})
		if len(row) == 3 {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	return rows
}

// notificationsDigest shows the newest unread notifications and marks
// them read as a side effect of being displayed.
func (h *Handler) notificationsDigest(ctx context.Context, chatID int64, user *models.User) {
	notifs, err := h.store.ListUnreadNotifications(ctx, user.ID, notificationsLimit)
	if err != nil {
		h.commandError(chatID, "list notifications", err)
		return
	}

	if len(notifs) == 0 {
		h.send(chatID, header("🔔 <b>Notifications</b>")+"✅ Nothing unread")
		return
	}

	msg := header(fmt.Sprintf("🔔 <b>Unread (%d)</b>", len(notifs)))
	now := h.now()
	for _, n := range notifs {
		msg += fmt.Sprintf("📌 <b>%s</b>\n", escapeHTML(n.Title))
		if n.Message != "" {
			msg += fmt.Sprintf("    %s\n", escapeHTML(n.Message))
		}
		msg += fmt.Sprintf("    🕐 %s\n\n", timeAgo(n.CreatedAt, now))
	}

	if err := h.store.MarkNotificationsRead(ctx, user.ID); err != nil {
		h.commandError(chatID, "mark notifications read", err)
		return
	}
	msg += "✅ <i>All marked as read</i>"

	h.send(chatID, msg)
}

func (h *Handler) settingsView(ctx context.Context, ev Event, user *models.User) {
	toggleLabel := "Enable"
	stateLine := "❌ Off"
	if user.NotifyNewLead {
		toggleLabel = "Disable"
		stateLine = "✅ On"
	}

	msg := header("⚙️ <b>Settings</b>")
	msg += fmt.Sprintf("🔔 New-lead alerts:\n<b>%s</b>\n\n", stateLine)
	msg += fmt.Sprintf("👤 <b>%s</b> · %s", escapeHTML(user.Name), roleLabel(user.Role))

	rows := [][]telegram.Button{{
		{
			Label:   toggleLabel,
			Payload: Payload{Kind: PayloadNotifyToggle, NotifyOn: !user.NotifyNewLead}.Encode(),
		},
		{
			Label:   "Menu",
			Payload: Payload{Kind: PayloadNoop}.Encode(),
		},
	}}

	h.reply(ev, msg, rows)
}

func (h *Handler) mySites(ctx context.Context, chatID int64, user *models.User) {
	if len(user.SiteIDs) == 0 {
		h.send(chatID, "🌐 No sites are assigned to you.")
		return
	}

	sites, err := h.store.ListSites(ctx, user.SiteIDs)
	if err != nil {
		h.commandError(chatID, "list sites", err)
		return
	}
	totals, err := h.store.CountLeadsBySite(ctx, storage.LeadFilter{SiteIDs: user.SiteIDs})
	if err != nil {
		h.commandError(chatID, "count leads by site", err)
		return
	}
	today, err := h.store.CountLeadsBySite(ctx,
		storage.LeadFilter{SiteIDs: user.SiteIDs, From: midnight(h.now())})
	if err != nil {
		h.commandError(chatID, "count today's leads by site", err)
		return
	}

	msg := header(fmt.Sprintf("🌐 <b>Your sites (%d)</b>", len(sites)))
	for _, s := range sites {
		msg += fmt.Sprintf("🌍 <b>%s</b>\n    %s\n    📊 Total: <b>%d</b> · Today: <b>%d</b>\n\n",
			escapeHTML(s.Domain), escapeHTML(s.Name), totals[s.ID], today[s.ID])
	}

	h.send(chatID, msg)
}

func (h *Handler) allSites(ctx context.Context, chatID int64) {
	sites, err := h.store.ListSites(ctx, nil)
	if err != nil {
		h.commandError(chatID, "list sites", err)
		return
	}
	if len(sites) == 0 {
		h.send(chatID, "🌐 No sites yet.")
		return
	}

	leadCounts, err := h.store.CountLeadsBySite(ctx, storage.LeadFilter{})
	if err != nil {
		h.commandError(chatID, "count leads by site", err)
		return
	}
	userCounts, err := h.store.CountUsersBySite(ctx, nil)
	if err != nil {
		h.commandError(chatID, "count users by site", err)
		return
	}

	msg := header(fmt.Sprintf("🌐 <b>All sites (%d)</b>", len(sites)))
	for _, s := range sites {
		active := "🟢"
		if !s.IsActive {
			active = "🔴"
		}
		msg += fmt.Sprintf("%s <b>%s</b>\n    %s\n    📊 Leads: <b>%d</b> · 👥 Admins: <b>%d</b>\n\n",
			active, escapeHTML(s.Domain), escapeHTML(s.Name), leadCounts[s.ID], userCounts[s.ID])
	}

	h.send(chatID, msg)
}

func (h *Handler) myAdmins(ctx context.Context, chatID int64, user *models.User) {
	if len(user.SiteIDs) == 0 {
		h.send(chatID, "👥 No sites are assigned to you.")
		return
	}

	admins, err := h.store.ListSiteAdmins(ctx, user.SiteIDs)
	if err != nil {
		h.commandError(chatID, "list admins", err)
		return
	}
	if len(admins) == 0 {
		h.send(chatID, "👥 No admins yet.")
		return
	}

	domains, err := h.domainIndex(ctx)
	if err != nil {
		h.commandError(chatID, "list sites", err)
		return
	}

	msg := header(fmt.Sprintf("👥 <b>Your admins (%d)</b>", len(admins)))
	for _, a := range admins {
		active := "🟢"
		if !a.IsActive {
			active = "🔴"
		}
		msg += fmt.Sprintf("%s <b>%s</b> · <code>%s</code>\n    🌐 %s\n\n",
			active, escapeHTML(a.Name), escapeHTML(a.Login), joinDomains(a.SiteIDs, domains))
	}

	h.send(chatID, msg)
}

func (h *Handler) allUsers(ctx context.Context, chatID int64) {
	users, err := h.store.ListUsers(ctx)
	if err != nil {
		h.commandError(chatID, "list users", err)
		return
	}

	domains, err := h.domainIndex(ctx)
	if err != nil {
		h.commandError(chatID, "list sites", err)
		return
	}

	msg := header(fmt.Sprintf("👥 <b>All users (%d)</b>", len(users)))
	for _, u := range users {
		active := "🟢"
		if !u.IsActive {
			active = "🔴"
		}
		msg += fmt.Sprintf("%s <b>%s</b>\n    %s · <code>%s</code>\n",
			active, escapeHTML(u.Name), roleLabel(u.Role), escapeHTML(u.Login))
		if sites := joinDomains(u.SiteIDs, domains); sites != "" {
			msg += fmt.Sprintf("    🌐 %s\n", sites)
		}
		msg += "\n"
	}

	h.send(chatID, msg)
}

func (h *Handler) domainIndex(ctx context.Context) (map[string]string, error) {
	sites, err := h.store.ListSites(ctx, nil)
	if err != nil {
		return nil, err
	}
	domains := make(map[string]string, len(sites))
	for _, s := range sites {
		domains[s.ID] = s.Domain
	}
	return domains, nil
}

func joinDomains(siteIDs []string, domains map[string]string) string {
	names := make([]string, 0, len(siteIDs))
	for _, id := range siteIDs {
		if d, ok := domains[id]; ok {
			names = append(names, d)
		}
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}

// reply edits the originating message for callback-driven refreshes
// and sends a fresh one otherwise.
func (h *Handler) reply(ev Event, text string, rows [][]telegram.Button) {
	if ev.CallbackID != "" && ev.MessageID != 0 {
		if err := h.client.EditMessage(ev.ChatID, ev.MessageID, text, rows); err != nil {
			h.logger.Error("Failed to edit message", zap.Error(err), zap.Int64("chat_id", ev.ChatID))
		}
		return
	}
	h.sendButtons(ev.ChatID, text, rows)
}

func (h *Handler) sendButtons(chatID int64, text string, rows [][]telegram.Button) {
	if err := h.client.SendButtons(chatID, text, rows); err != nil {
		h.logger.Error("Failed to send message", zap.Error(err), zap.Int64("chat_id", chatID))
	}
}

func (h *Handler) commandError(chatID int64, op string, err error) {
	h.logger.Error("Command failed", zap.String("op", op), zap.Error(err), zap.Int64("chat_id", chatID))
	h.sendError(chatID)
}
