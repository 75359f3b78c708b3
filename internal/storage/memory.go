package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pimedia/leadbot/internal/models"
)

// MemoryStorage keeps everything in maps. Used for tests and for
// running the bot without a database (use_in_memory config).
type MemoryStorage struct {
	mu            sync.RWMutex
	users         map[string]*models.User
	sites         map[string]*models.Site
	leads         map[string]*models.Lead
	notifications map[string]*models.Notification
	sessions      map[string]*models.ChatSession
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		users:         make(map[string]*models.User),
		sites:         make(map[string]*models.Site),
		leads:         make(map[string]*models.Lead),
		notifications: make(map[string]*models.Notification),
		sessions:      make(map[string]*models.ChatSession),
	}
}

// AddUser and AddSite seed fixtures; the web dashboard owns account
// management, so they are not part of the Storage interface.
func (s *MemoryStorage) AddUser(u *models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *u
	s.users[u.ID] = &cp
}

func (s *MemoryStorage) AddSite(site *models.Site) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *site
	s.sites[site.ID] = &cp
}

func copyUser(u *models.User) *models.User {
	cp := *u
	cp.SiteIDs = append([]string(nil), u.SiteIDs...)
	return &cp
}

func (s *MemoryStorage) GetUserByLogin(ctx context.Context, login string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.Login == login {
			return copyUser(u), nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStorage) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if u, ok := s.users[id]; ok {
		return copyUser(u), nil
	}
	return nil, ErrNotFound
}

func (s *MemoryStorage) sortedUsers() []*models.User {
	users := make([]*models.User, 0, len(s.users))
	for _, u := range s.users {
		users = append(users, copyUser(u))
	}
	sort.Slice(users, func(i, j int) bool {
		if users[i].Role != users[j].Role {
			return users[i].Role < users[j].Role
		}
		return users[i].CreatedAt.Before(users[j].CreatedAt)
	})
	return users
}

func (s *MemoryStorage) ListUsers(ctx context.Context) ([]*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sortedUsers(), nil
}

func containsAny(have, want []string) bool {
	for _, w := range want {
		for _, h := range have {
			if h == w {
				return true
			}
		}
	}
	return false
}

func (s *MemoryStorage) ListSiteAdmins(ctx context.Context, siteIDs []string) ([]*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var admins []*models.User
	for _, u := range s.sortedUsers() {
		if u.Role == models.RoleAdmin && containsAny(u.SiteIDs, siteIDs) {
			admins = append(admins, u)
		}
	}
	return admins, nil
}

func (s *MemoryStorage) ListNotificationTargets(ctx context.Context, siteID string) ([]*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var targets []*models.User
	for _, u := range s.users {
		if !u.NotifyNewLead || !u.IsActive || u.TelegramChatID == "" {
			continue
		}
		if u.Role == models.RoleTeamAdmin || containsAny(u.SiteIDs, []string{siteID}) {
			targets = append(targets, copyUser(u))
		}
	}
	return targets, nil
}

func (s *MemoryStorage) SetNotifyPreference(ctx context.Context, userID string, on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.NotifyNewLead = on
	return nil
}

func (s *MemoryStorage) SetTelegramChatID(ctx context.Context, userID, chatID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.TelegramChatID = chatID
	return nil
}

func (s *MemoryStorage) GetSiteByID(ctx context.Context, id string) (*models.Site, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if site, ok := s.sites[id]; ok {
		cp := *site
		return &cp, nil
	}
	return nil, ErrNotFound
}

func (s *MemoryStorage) GetSiteByDomain(ctx context.Context, domain string) (*models.Site, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, site := range s.sites {
		if site.Domain == domain {
			cp := *site
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStorage) ListSites(ctx context.Context, siteIDs []string) ([]*models.Site, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var sites []*models.Site
	for _, site := range s.sites {
		if siteIDs != nil && !containsAny([]string{site.ID}, siteIDs) {
			continue
		}
		cp := *site
		sites = append(sites, &cp)
	}
	sort.Slice(sites, func(i, j int) bool { return sites[i].CreatedAt.Before(sites[j].CreatedAt) })
	return sites, nil
}

func (s *MemoryStorage) CountUsersBySite(ctx context.Context, siteIDs []string) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[string]int)
	for _, u := range s.users {
		for _, id := range u.SiteIDs {
			if siteIDs != nil && !containsAny([]string{id}, siteIDs) {
				continue
			}
			counts[id]++
		}
	}
	return counts, nil
}

func matchesFilter(lead *models.Lead, f LeadFilter) bool {
	if f.SiteIDs != nil && !containsAny([]string{lead.SiteID}, f.SiteIDs) {
		return false
	}
	if f.Status != "" && lead.Status != f.Status {
		return false
	}
	if !f.From.IsZero() && lead.CreatedAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !lead.CreatedAt.Before(f.To) {
		return false
	}
	return true
}

func (s *MemoryStorage) filteredLeads(f LeadFilter) []*models.Lead {
	var leads []*models.Lead
	for _, lead := range s.leads {
		if matchesFilter(lead, f) {
			cp := *lead
			if site, ok := s.sites[lead.SiteID]; ok {
				cp.SiteDomain = site.Domain
			}
			leads = append(leads, &cp)
		}
	}
	sort.Slice(leads, func(i, j int) bool {
		if !leads[i].CreatedAt.Equal(leads[j].CreatedAt) {
			return leads[i].CreatedAt.After(leads[j].CreatedAt)
		}
		return leads[i].ID < leads[j].ID
	})
	return leads
}

func (s *MemoryStorage) CreateLead(ctx context.Context, lead *models.Lead) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if lead.CreatedAt.IsZero() {
		lead.CreatedAt = time.Now()
	}
	cp := *lead
	s.leads[lead.ID] = &cp
	return nil
}

func (s *MemoryStorage) GetLead(ctx context.Context, id string) (*models.Lead, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	lead, ok := s.leads[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *lead
	if site, ok := s.sites[lead.SiteID]; ok {
		cp.SiteDomain = site.Domain
	}
	return &cp, nil
}

func (s *MemoryStorage) CountLeads(ctx context.Context, f LeadFilter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.filteredLeads(f)), nil
}

func (s *MemoryStorage) CountLeadsByStatus(ctx context.Context, f LeadFilter) (map[models.LeadStatus]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[models.LeadStatus]int)
	for _, lead := range s.filteredLeads(f) {
		counts[lead.Status]++
	}
	return counts, nil
}

func (s *MemoryStorage) CountLeadsBySite(ctx context.Context, f LeadFilter) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[string]int)
	for _, lead := range s.filteredLeads(f) {
		counts[lead.SiteID]++
	}
	return counts, nil
}

func (s *MemoryStorage) CountLeadsByDay(ctx context.Context, f LeadFilter) ([]DayCount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	byDay := make(map[string]int)
	for _, lead := range s.filteredLeads(f) {
		byDay[lead.CreatedAt.Format("2006-01-02")]++
	}
	days := make([]DayCount, 0, len(byDay))
	for day, n := range byDay {
		days = append(days, DayCount{Day: day, Count: n})
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Day < days[j].Day })
	return days, nil
}

func (s *MemoryStorage) ListLeads(ctx context.Context, f LeadFilter, offset, limit int) ([]*models.Lead, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	leads := s.filteredLeads(f)
	if offset >= len(leads) {
		return nil, nil
	}
	leads = leads[offset:]
	if limit < len(leads) {
		leads = leads[:limit]
	}
	return leads, nil
}

func (s *MemoryStorage) UpdateLeadStatus(ctx context.Context, id string, status models.LeadStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	lead, ok := s.leads[id]
	if !ok {
		return ErrNotFound
	}
	lead.Status = status
	return nil
}

func (s *MemoryStorage) CreateNotification(ctx context.Context, n *models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	cp := *n
	s.notifications[n.ID] = &cp
	return nil
}

func (s *MemoryStorage) ListUnreadNotifications(ctx context.Context, userID string, limit int) ([]*models.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var notifs []*models.Notification
	for _, n := range s.notifications {
		if n.ReceiverID == userID && !n.IsRead {
			cp := *n
			notifs = append(notifs, &cp)
		}
	}
	sort.Slice(notifs, func(i, j int) bool {
		if !notifs[i].CreatedAt.Equal(notifs[j].CreatedAt) {
			return notifs[i].CreatedAt.After(notifs[j].CreatedAt)
		}
		return notifs[i].ID < notifs[j].ID
	})
	if limit < len(notifs) {
		notifs = notifs[:limit]
	}
	return notifs, nil
}

func (s *MemoryStorage) MarkNotificationsRead(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range s.notifications {
		if n.ReceiverID == userID {
			n.IsRead = true
		}
	}
	return nil
}

// GetSession holds the write lock across the check-and-create so two
// racing first events for one chat never produce divergent sessions.
func (s *MemoryStorage) GetSession(ctx context.Context, chatKey string) (*models.ChatSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if session, ok := s.sessions[chatKey]; ok {
		cp := *session
		return &cp, nil
	}
	session := &models.ChatSession{ChatKey: chatKey, State: models.StateIdle}
	s.sessions[chatKey] = session
	cp := *session
	return &cp, nil
}

func (s *MemoryStorage) SaveSession(ctx context.Context, session *models.ChatSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *session
	s.sessions[session.ChatKey] = &cp
	return nil
}

func (s *MemoryStorage) Close() error {
	return nil
}
