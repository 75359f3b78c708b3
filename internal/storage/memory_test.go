package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/pimedia/leadbot/internal/models"
)

func seedStore(t *testing.T) *MemoryStorage {
	t.Helper()
	s := NewMemoryStorage()
	s.AddSite(&models.Site{ID: "s1", Domain: "acme.uz", Name: "Acme", IsActive: true,
		CreatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)})
	s.AddSite(&models.Site{ID: "s2", Domain: "globex.uz", Name: "Globex", IsActive: true,
		CreatedAt: time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)})
	return s
}

func addLead(t *testing.T, s *MemoryStorage, id, siteID string, status models.LeadStatus, at time.Time) {
	t.Helper()
	err := s.CreateLead(context.Background(), &models.Lead{
		ID: id, SiteID: siteID, Name: "Lead " + id, Phone: "+998900000000",
		Status: status, CreatedAt: at,
	})
	if err != nil {
		t.Fatalf("create lead %s: %v", id, err)
	}
}

func TestLeadFilterTimeWindow(t *testing.T) {
	s := seedStore(t)
	day := time.Date(2026, 8, 10, 0, 0, 0, 0, time.UTC)
	addLead(t, s, "before", "s1", models.StatusNew, day.Add(-time.Second))
	addLead(t, s, "at-start", "s1", models.StatusNew, day)
	addLead(t, s, "inside", "s1", models.StatusNew, day.Add(12*time.Hour))
	addLead(t, s, "at-end", "s1", models.StatusNew, day.Add(24*time.Hour))

	// Window is half-open: [From, To).
	n, err := s.CountLeads(context.Background(), LeadFilter{From: day, To: day.Add(24 * time.Hour)})
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 2 {
		t.Errorf("window count = %d, want 2", n)
	}
}

func TestLeadFilterScope(t *testing.T) {
	s := seedStore(t)
	addLead(t, s, "a", "s1", models.StatusNew, time.Now())
	addLead(t, s, "b", "s2", models.StatusNew, time.Now())

	ctx := context.Background()
	if n, _ := s.CountLeads(ctx, LeadFilter{}); n != 2 {
		t.Errorf("nil scope count = %d, want all leads", n)
	}
	if n, _ := s.CountLeads(ctx, LeadFilter{SiteIDs: []string{}}); n != 0 {
		t.Errorf("empty scope count = %d, want 0", n)
	}
	if n, _ := s.CountLeads(ctx, LeadFilter{SiteIDs: []string{"s2"}}); n != 1 {
		t.Errorf("s2 scope count = %d, want 1", n)
	}
}

func TestListLeadsOrderAndPaging(t *testing.T) {
	s := seedStore(t)
	base := time.Date(2026, 8, 10, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		addLead(t, s, fmt.Sprintf("l%d", i+1), "s1", models.StatusNew, base.Add(time.Duration(i)*time.Hour))
	}

	ctx := context.Background()
	leads, err := s.ListLeads(ctx, LeadFilter{}, 0, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(leads) != 2 || leads[0].ID != "l4" || leads[1].ID != "l3" {
		t.Fatalf("first page = %v, want newest first", leadIDs(leads))
	}
	if leads[0].SiteDomain != "acme.uz" {
		t.Errorf("site domain = %q, want joined from the site", leads[0].SiteDomain)
	}

	leads, err = s.ListLeads(ctx, LeadFilter{}, 2, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(leads) != 2 || leads[0].ID != "l2" || leads[1].ID != "l1" {
		t.Fatalf("second page = %v", leadIDs(leads))
	}

	leads, err = s.ListLeads(ctx, LeadFilter{}, 10, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(leads) != 0 {
		t.Errorf("offset past the end returned %d leads", len(leads))
	}
}

func leadIDs(leads []*models.Lead) []string {
	ids := make([]string, len(leads))
	for i, l := range leads {
		ids[i] = l.ID
	}
	return ids
}

func TestCountLeadsByDayOrdered(t *testing.T) {
	s := seedStore(t)
	addLead(t, s, "a", "s1", models.StatusNew, time.Date(2026, 8, 12, 9, 0, 0, 0, time.UTC))
	addLead(t, s, "b", "s1", models.StatusNew, time.Date(2026, 8, 10, 9, 0, 0, 0, time.UTC))
	addLead(t, s, "c", "s1", models.StatusNew, time.Date(2026, 8, 10, 18, 0, 0, 0, time.UTC))

	days, err := s.CountLeadsByDay(context.Background(), LeadFilter{})
	if err != nil {
		t.Fatalf("count by day: %v", err)
	}
	want := []DayCount{{Day: "2026-08-10", Count: 2}, {Day: "2026-08-12", Count: 1}}
	if len(days) != len(want) {
		t.Fatalf("days = %v, want %v", days, want)
	}
	for i := range want {
		if days[i] != want[i] {
			t.Fatalf("days = %v, want %v", days, want)
		}
	}
}

func TestUpdateLeadStatusNotFound(t *testing.T) {
	s := seedStore(t)
	err := s.UpdateLeadStatus(context.Background(), "missing", models.StatusWon)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestGetSessionCreatesIdleOnce(t *testing.T) {
	s := NewMemoryStorage()
	ctx := context.Background()

	first, err := s.GetSession(ctx, "k")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if first.State != models.StateIdle || first.Authenticated() {
		t.Fatalf("fresh session = %+v, want unauthenticated idle", first)
	}

	first.State = models.StateAwaitingLogin
	if err := s.SaveSession(ctx, first); err != nil {
		t.Fatalf("save: %v", err)
	}
	second, err := s.GetSession(ctx, "k")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if second.State != models.StateAwaitingLogin {
		t.Error("second get did not observe the saved state")
	}
}

func TestGetSessionConcurrentCreate(t *testing.T) {
	s := NewMemoryStorage()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sess, err := s.GetSession(ctx, "k")
			if err != nil {
				t.Errorf("get: %v", err)
				return
			}
			if sess.ChatKey != "k" || sess.State != models.StateIdle {
				t.Errorf("session = %+v", sess)
			}
		}()
	}
	wg.Wait()
}

func TestListNotificationTargets(t *testing.T) {
	s := seedStore(t)
	s.AddUser(&models.User{ID: "yes", Role: models.RoleAdmin, IsActive: true,
		NotifyNewLead: true, TelegramChatID: "1", SiteIDs: []string{"s1"}})
	s.AddUser(&models.User{ID: "team", Role: models.RoleTeamAdmin, IsActive: true,
		NotifyNewLead: true, TelegramChatID: "2"})
	s.AddUser(&models.User{ID: "off", Role: models.RoleAdmin, IsActive: true,
		NotifyNewLead: false, TelegramChatID: "3", SiteIDs: []string{"s1"}})
	s.AddUser(&models.User{ID: "elsewhere", Role: models.RoleAdmin, IsActive: true,
		NotifyNewLead: true, TelegramChatID: "4", SiteIDs: []string{"s2"}})
	s.AddUser(&models.User{ID: "unlinked", Role: models.RoleAdmin, IsActive: true,
		NotifyNewLead: true, SiteIDs: []string{"s1"}})

	targets, err := s.ListNotificationTargets(context.Background(), "s1")
	if err != nil {
		t.Fatalf("list targets: %v", err)
	}
	got := make(map[string]bool)
	for _, u := range targets {
		got[u.ID] = true
	}
	if len(got) != 2 || !got["yes"] || !got["team"] {
		t.Fatalf("targets = %v, want exactly yes and team", got)
	}
}

func TestUnreadNotificationsLimitAndMark(t *testing.T) {
	s := NewMemoryStorage()
	ctx := context.Background()
	base := time.Date(2026, 8, 10, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 7; i++ {
		err := s.CreateNotification(ctx, &models.Notification{
			ID:         fmt.Sprintf("n%d", i),
			ReceiverID: "u1",
			Title:      fmt.Sprintf("t%d", i),
			CreatedAt:  base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("create notification: %v", err)
		}
	}

	notifs, err := s.ListUnreadNotifications(ctx, "u1", 5)
	if err != nil {
		t.Fatalf("list unread: %v", err)
	}
	if len(notifs) != 5 || notifs[0].ID != "n6" {
		t.Fatalf("unread = %v, want the 5 newest", notifs)
	}

	if err := s.MarkNotificationsRead(ctx, "u1"); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	notifs, err = s.ListUnreadNotifications(ctx, "u1", 5)
	if err != nil {
		t.Fatalf("list unread: %v", err)
	}
	if len(notifs) != 0 {
		t.Errorf("unread after mark = %d, want 0", len(notifs))
	}
}

func TestGetUserCopiesAreIsolated(t *testing.T) {
	s := seedStore(t)
	s.AddUser(&models.User{ID: "u1", Login: "boss", Role: models.RoleAdmin,
		IsActive: true, SiteIDs: []string{"s1"}})

	u, err := s.GetUserByID(context.Background(), "u1")
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	u.SiteIDs[0] = "tampered"

	again, err := s.GetUserByID(context.Background(), "u1")
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if again.SiteIDs[0] != "s1" {
		t.Error("mutating a returned user leaked into the store")
	}
}
