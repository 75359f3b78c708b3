package bot

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/pimedia/leadbot/internal/models"
	"github.com/pimedia/leadbot/internal/storage"
)

func TestPercentChange(t *testing.T) {
	cases := []struct {
		current, previous, want int
	}{
		{0, 0, 0},
		{7, 0, 100},
		{0, 4, -100},
		{10, 5, 100},
		{5, 10, -50},
		{12, 10, 20},
		{10, 3, 233},
		{1, 3, -67},
	}
	for _, c := range cases {
		if got := percentChange(c.current, c.previous); got != c.want {
			t.Errorf("percentChange(%d, %d) = %d, want %d", c.current, c.previous, got, c.want)
		}
	}
}

func seedLeads(t *testing.T, store *storage.MemoryStorage, siteID string, n int, base time.Time) {
	t.Helper()
	for i := 0; i < n; i++ {
		err := store.CreateLead(context.Background(), &models.Lead{
			ID:        fmt.Sprintf("lead-%02d", i+1),
			SiteID:    siteID,
			Name:      fmt.Sprintf("Lead %d", i+1),
			Phone:     "+998901234567",
			Status:    models.StatusNew,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("seed lead: %v", err)
		}
	}
}

func TestLeadsPageClampsOutOfRange(t *testing.T) {
	h, store, client := newTestHandler(t)
	store.AddSite(&models.Site{ID: "s1", Domain: "acme.uz", Name: "Acme", IsActive: true})
	user := seedUser(t, store, "u1", "boss", "hunter2", models.RoleTeamAdmin)
	seedLeads(t, store, "s1", 7, time.Now().Add(-time.Hour))

	// Page 4 of a 2-page list lands on the last page instead of an
	// empty one.
	h.leadsPage(context.Background(), Event{ChatID: 10}, user, 4, FilterAll)

	if len(client.buttons) != 1 {
		t.Fatalf("messages sent = %d, want 1", len(client.buttons))
	}
	msg := client.buttons[0].text
	if !strings.Contains(msg, "Page <b>2</b> / <b>2</b>") {
		t.Errorf("message %q does not show the clamped page", msg)
	}
	// Newest first, page 2 carries the two oldest leads.
	if !strings.Contains(msg, "Lead 1") || !strings.Contains(msg, "Lead 2") {
		t.Errorf("message %q does not list the last page's leads", msg)
	}
	if strings.Contains(msg, "Lead 3") {
		t.Errorf("message %q leaks leads from another page", msg)
	}
}

func TestLeadsPageCallbackEditsInPlace(t *testing.T) {
	h, store, client := newTestHandler(t)
	store.AddSite(&models.Site{ID: "s1", Domain: "acme.uz", Name: "Acme", IsActive: true})
	user := seedUser(t, store, "u1", "boss", "hunter2", models.RoleTeamAdmin)
	seedLeads(t, store, "s1", 7, time.Now().Add(-time.Hour))

	ev := Event{ChatID: 10, CallbackID: "cb1", MessageID: 42}
	h.leadsPage(context.Background(), ev, user, 1, FilterAll)

	if len(client.edits) != 1 || len(client.buttons) != 0 {
		t.Fatalf("edits = %d, fresh sends = %d; want the original message edited",
			len(client.edits), len(client.buttons))
	}
}

func TestLeadsPageStatusFilter(t *testing.T) {
	h, store, client := newTestHandler(t)
	store.AddSite(&models.Site{ID: "s1", Domain: "acme.uz", Name: "Acme", IsActive: true})
	user := seedUser(t, store, "u1", "boss", "hunter2", models.RoleTeamAdmin)
	seedLeads(t, store, "s1", 3, time.Now().Add(-time.Hour))
	if err := store.UpdateLeadStatus(context.Background(), "lead-02", models.StatusWon); err != nil {
		t.Fatalf("update status: %v", err)
	}

	h.leadsPage(context.Background(), Event{ChatID: 10}, user, 0, "WON")

	msg := client.buttons[0].text
	if !strings.Contains(msg, "Lead 2") {
		t.Errorf("message %q missing the matching lead", msg)
	}
	if strings.Contains(msg, "Lead 1") || strings.Contains(msg, "Lead 3") {
		t.Errorf("message %q contains leads outside the filter", msg)
	}
	if !strings.Contains(msg, "<b>1</b> found") {
		t.Errorf("message %q missing the filtered count", msg)
	}
}

func TestLeadsScopeExcludesOtherSites(t *testing.T) {
	h, store, client := newTestHandler(t)
	store.AddSite(&models.Site{ID: "s1", Domain: "acme.uz", Name: "Acme", IsActive: true})
	store.AddSite(&models.Site{ID: "s2", Domain: "globex.uz", Name: "Globex", IsActive: true})
	user := seedUser(t, store, "u1", "boss", "hunter2", models.RoleAdmin, "s1")
	seedLeads(t, store, "s1", 1, time.Now().Add(-time.Hour))
	if err := store.CreateLead(context.Background(), &models.Lead{
		ID: "foreign", SiteID: "s2", Name: "Foreign Lead", Phone: "+998900000000",
		Status: models.StatusNew, CreatedAt: time.Now(),
	}); err != nil {
		t.Fatalf("seed lead: %v", err)
	}

	h.leadsPage(context.Background(), Event{ChatID: 10}, user, 0, FilterAll)

	msg := client.buttons[0].text
	if strings.Contains(msg, "Foreign Lead") {
		t.Errorf("message %q leaks a lead from an unentitled site", msg)
	}
	if !strings.Contains(msg, "Lead 1") {
		t.Errorf("message %q missing the entitled lead", msg)
	}
}

func TestStatusButtonsOmitCurrent(t *testing.T) {
	lead := &models.Lead{ID: "l1", Status: models.StatusContacted}
	rows := statusButtons(lead)

	var labels []string
	for _, row := range rows {
		if len(row) > 3 {
			t.Errorf("row has %d buttons, want at most 3", len(row))
		}
		for _, b := range row {
			labels = append(labels, b.Label)
		}
	}
	if len(labels) != len(models.AllStatuses)-1 {
		t.Fatalf("buttons = %d, want %d", len(labels), len(models.AllStatuses)-1)
	}
	for _, l := range labels {
		if l == statusShort[models.StatusContacted] {
			t.Errorf("buttons offer the lead's current status")
		}
	}
	// Canonical order, current status skipped.
	want := []string{"New", "Qualified", "Proposal", "Won", "Lost"}
	for i, l := range labels {
		if l != want[i] {
			t.Fatalf("labels = %v, want %v", labels, want)
		}
	}
}

func TestNotificationsDigestMarksRead(t *testing.T) {
	h, store, client := newTestHandler(t)
	user := seedUser(t, store, "u1", "boss", "hunter2", models.RoleAdmin, "s1")
	for i := 0; i < 2; i++ {
		err := store.CreateNotification(context.Background(), &models.Notification{
			ID:         fmt.Sprintf("n%d", i+1),
			ReceiverID: user.ID,
			Title:      fmt.Sprintf("New lead: Visitor %d", i+1),
			CreatedAt:  time.Now().Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatalf("seed notification: %v", err)
		}
	}

	h.notificationsDigest(context.Background(), 10, user)

	msg := client.lastText(t)
	if !strings.Contains(msg, "Visitor 1") || !strings.Contains(msg, "Visitor 2") {
		t.Errorf("digest %q missing notification titles", msg)
	}
	left, err := store.ListUnreadNotifications(context.Background(), user.ID, 10)
	if err != nil {
		t.Fatalf("list unread: %v", err)
	}
	if len(left) != 0 {
		t.Errorf("unread after digest = %d, want 0", len(left))
	}

	// Second call finds nothing.
	h.notificationsDigest(context.Background(), 10, user)
	if got := client.lastText(t); !strings.Contains(got, "Nothing unread") {
		t.Errorf("second digest = %q, want the empty-state message", got)
	}
}

func TestWeeklyStatsWindows(t *testing.T) {
	h, store, client := newTestHandler(t)
	store.AddSite(&models.Site{ID: "s1", Domain: "acme.uz", Name: "Acme", IsActive: true})
	user := seedUser(t, store, "u1", "boss", "hunter2", models.RoleTeamAdmin)

	// Wednesday; the week started Sunday 2026-08-30.
	now := time.Date(2026, 9, 2, 15, 0, 0, 0, time.UTC)
	h.now = func() time.Time { return now }

	mk := func(id string, at time.Time) {
		err := store.CreateLead(context.Background(), &models.Lead{
			ID: id, SiteID: "s1", Name: id, Phone: "+998900000000",
			Status: models.StatusNew, CreatedAt: at,
		})
		if err != nil {
			t.Fatalf("seed lead: %v", err)
		}
	}
	mk("this-1", time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC))
	mk("this-2", time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC))
	mk("prev-1", time.Date(2026, 8, 27, 9, 0, 0, 0, time.UTC))
	mk("older", time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC))

	h.weeklyStats(context.Background(), 10, user)

	msg := client.lastText(t)
	if !strings.Contains(msg, "This week: <b>2</b>") {
		t.Errorf("report %q has the wrong current-week count", msg)
	}
	if !strings.Contains(msg, "Last week: <b>1</b>") {
		t.Errorf("report %q has the wrong previous-week count", msg)
	}
	if !strings.Contains(msg, "+100%") {
		t.Errorf("report %q has the wrong change", msg)
	}
}

func TestTodayStatsEmpty(t *testing.T) {
	h, store, client := newTestHandler(t)
	user := seedUser(t, store, "u1", "boss", "hunter2", models.RoleTeamAdmin)

	h.todayStats(context.Background(), 10, user)

	msg := client.lastText(t)
	if !strings.Contains(msg, "New leads: <b>0</b>") || !strings.Contains(msg, "No leads yet today") {
		t.Errorf("empty-day report = %q", msg)
	}
}
