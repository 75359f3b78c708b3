package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pimedia/leadbot/internal/bot"
	"github.com/pimedia/leadbot/internal/models"
	"github.com/pimedia/leadbot/internal/storage"
	"github.com/pimedia/leadbot/internal/telegram"
	"go.uber.org/zap"
)

// nullClient satisfies the chat transport without delivering anything.
type nullClient struct{}

func (nullClient) SendText(int64, string) error                              { return nil }
func (nullClient) SendButtons(int64, string, [][]telegram.Button) error      { return nil }
func (nullClient) SendReplyKeyboard(int64, string, [][]string) error         { return nil }
func (nullClient) EditMessage(int64, int, string, [][]telegram.Button) error { return nil }
func (nullClient) AnswerCallback(string, string) error                       { return nil }

func newTestServer(t *testing.T) (*Server, *storage.MemoryStorage) {
	t.Helper()
	store := storage.NewMemoryStorage()
	notifier := bot.NewNotifier(store, nullClient{}, zap.NewNop())
	return New(store, notifier, zap.NewNop(), nil), store
}

func postLead(t *testing.T, s *Server, body map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/leads", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestCreateLead(t *testing.T) {
	s, store := newTestServer(t)
	store.AddSite(&models.Site{ID: "s1", Domain: "acme.uz", Name: "Acme", IsActive: true})
	store.AddUser(&models.User{ID: "attached", Role: models.RoleAdmin, IsActive: true,
		SiteIDs: []string{"s1"}, CreatedAt: time.Now()})
	store.AddUser(&models.User{ID: "team", Role: models.RoleTeamAdmin, IsActive: true,
		CreatedAt: time.Now()})
	store.AddUser(&models.User{ID: "elsewhere", Role: models.RoleAdmin, IsActive: true,
		SiteIDs: []string{"s2"}, CreatedAt: time.Now()})

	w := postLead(t, s, map[string]string{
		"name":   "Visitor",
		"phone":  "90 123-45-67",
		"domain": "acme.uz",
		"goal":   "Landing page",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var resp struct {
		Success bool   `json:"success"`
		ID      string `json:"id"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Success || resp.ID == "" {
		t.Fatalf("response = %+v", resp)
	}

	ctx := context.Background()
	lead, err := store.GetLead(ctx, resp.ID)
	if err != nil {
		t.Fatalf("load lead: %v", err)
	}
	if lead.Phone != "+998901234567" {
		t.Errorf("phone = %q, want normalized +998901234567", lead.Phone)
	}
	if lead.Status != models.StatusNew || lead.Source != "organic" {
		t.Errorf("lead = %+v, want status NEW and default source", lead)
	}

	for _, userID := range []string{"attached", "team"} {
		notifs, err := store.ListUnreadNotifications(ctx, userID, 10)
		if err != nil {
			t.Fatalf("list notifications: %v", err)
		}
		if len(notifs) != 1 {
			t.Errorf("notifications for %s = %d, want 1", userID, len(notifs))
		}
	}
	notifs, err := store.ListUnreadNotifications(ctx, "elsewhere", 10)
	if err != nil {
		t.Fatalf("list notifications: %v", err)
	}
	if len(notifs) != 0 {
		t.Errorf("unentitled user received %d notifications", len(notifs))
	}
}

func TestCreateLeadValidation(t *testing.T) {
	s, store := newTestServer(t)
	store.AddSite(&models.Site{ID: "s1", Domain: "acme.uz", Name: "Acme", IsActive: true})

	w := postLead(t, s, map[string]string{"name": "Visitor", "domain": "acme.uz"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("missing phone: status = %d, want 400", w.Code)
	}
}

func TestCreateLeadUnknownDomain(t *testing.T) {
	s, _ := newTestServer(t)

	w := postLead(t, s, map[string]string{
		"name": "Visitor", "phone": "901234567", "domain": "nope.uz",
	})
	if w.Code != http.StatusNotFound {
		t.Fatalf("unknown domain: status = %d, want 404", w.Code)
	}
}

func TestCreateLeadInactiveSite(t *testing.T) {
	s, store := newTestServer(t)
	store.AddSite(&models.Site{ID: "s1", Domain: "acme.uz", Name: "Acme", IsActive: false})

	w := postLead(t, s, map[string]string{
		"name": "Visitor", "phone": "901234567", "domain": "acme.uz",
	})
	if w.Code != http.StatusNotFound {
		t.Fatalf("inactive site: status = %d, want 404", w.Code)
	}
}

func TestHealthz(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
}

func TestNormalizePhone(t *testing.T) {
	cases := map[string]string{
		"90 123-45-67":     "+998901234567",
		"+998 90 123 4567": "+998901234567",
		"998901234567":     "+998901234567",
	}
	for in, want := range cases {
		if got := normalizePhone(in); got != want {
			t.Errorf("normalizePhone(%q) = %q, want %q", in, got, want)
		}
	}
}
