package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/pimedia/leadbot/internal/models"
)

//go:embed migrations.sql
var migrations embed.FS

type DatabaseConfig struct {
	Host        string
	Port        int
	User        string
	Password    string
	DBName      string
	SSLMode     string
	UseInMemory bool
}

type PostgresStorage struct {
	db *sql.DB
}

func NewPostgresStorage(config DatabaseConfig) (*PostgresStorage, error) {
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		config.Host, config.Port, config.User, config.Password, config.DBName, config.SSLMode)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("error connecting to the database: %w", err)
	}

	storage := &PostgresStorage{db: db}

	if err := storage.initializeSchema(); err != nil {
		return nil, fmt.Errorf("error initializing database schema: %w", err)
	}

	return storage, nil
}

func (s *PostgresStorage) initializeSchema() error {
	migrationSQL, err := migrations.ReadFile("migrations.sql")
	if err != nil {
		return fmt.Errorf("error reading migrations file: %w", err)
	}

	if _, err := s.db.Exec(string(migrationSQL)); err != nil {
		return fmt.Errorf("error executing migrations: %w", err)
	}

	return nil
}

const userColumns = `
	u.id, u.login, u.password_hash, u.name, u.role, u.is_active,
	u.notify_new_lead, u.telegram_chat_id, u.created_at,
	COALESCE(array_agg(us.site_id) FILTER (WHERE us.site_id IS NOT NULL), '{}')`

const userJoin = `
	FROM users u
	LEFT JOIN user_sites us ON us.user_id = u.id`

func scanUser(row interface{ Scan(...any) error }) (*models.User, error) {
	u := &models.User{}
	var chatID sql.NullString
	var siteIDs pq.StringArray
	err := row.Scan(
		&u.ID,
		&u.Login,
		&u.PasswordHash,
		&u.Name,
		&u.Role,
		&u.IsActive,
		&u.NotifyNewLead,
		&chatID,
		&u.CreatedAt,
		&siteIDs,
	)
	if err != nil {
		return nil, err
	}
	u.TelegramChatID = chatID.String
	u.SiteIDs = []string(siteIDs)
	return u, nil
}

func (s *PostgresStorage) getUserBy(ctx context.Context, cond string, arg any) (*models.User, error) {
	query := "SELECT" + userColumns + userJoin + " WHERE " + cond + " GROUP BY u.id"
	u, err := scanUser(s.db.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error querying user: %w", err)
	}
	return u, nil
}

func (s *PostgresStorage) GetUserByLogin(ctx context.Context, login string) (*models.User, error) {
	return s.getUserBy(ctx, "u.login = $1", login)
}

func (s *PostgresStorage) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	return s.getUserBy(ctx, "u.id = $1", id)
}

func (s *PostgresStorage) listUsers(ctx context.Context, query string, args ...any) ([]*models.User, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error querying users: %w", err)
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *PostgresStorage) ListUsers(ctx context.Context) ([]*models.User, error) {
	query := "SELECT" + userColumns + userJoin + " GROUP BY u.id ORDER BY u.role, u.created_at"
	return s.listUsers(ctx, query)
}

func (s *PostgresStorage) ListSiteAdmins(ctx context.Context, siteIDs []string) ([]*models.User, error) {
	query := "SELECT" + userColumns + userJoin + `
		WHERE u.role = $1 AND u.id IN (SELECT user_id FROM user_sites WHERE site_id = ANY($2))
		GROUP BY u.id ORDER BY u.created_at`
	return s.listUsers(ctx, query, models.RoleAdmin, pq.Array(siteIDs))
}

func (s *PostgresStorage) ListNotificationTargets(ctx context.Context, siteID string) ([]*models.User, error) {
	query := "SELECT" + userColumns + userJoin + `
		WHERE u.notify_new_lead
		  AND u.is_active
		  AND u.telegram_chat_id IS NOT NULL AND u.telegram_chat_id <> ''
		  AND (u.role = $1 OR u.id IN (SELECT user_id FROM user_sites WHERE site_id = $2))
		GROUP BY u.id`
	return s.listUsers(ctx, query, models.RoleTeamAdmin, siteID)
}

func (s *PostgresStorage) SetNotifyPreference(ctx context.Context, userID string, on bool) error {
	_, err := s.db.ExecContext(ctx, `UPDATE users SET notify_new_lead = $1 WHERE id = $2`, on, userID)
	if err != nil {
		return fmt.Errorf("error updating notify preference: %w", err)
	}
	return nil
}

func (s *PostgresStorage) SetTelegramChatID(ctx context.Context, userID, chatID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET telegram_chat_id = NULLIF($1, '') WHERE id = $2`, chatID, userID)
	if err != nil {
		return fmt.Errorf("error updating telegram chat id: %w", err)
	}
	return nil
}

func (s *PostgresStorage) GetSiteByID(ctx context.Context, id string) (*models.Site, error) {
	return s.getSiteBy(ctx, "id = $1", id)
}

func (s *PostgresStorage) GetSiteByDomain(ctx context.Context, domain string) (*models.Site, error) {
	return s.getSiteBy(ctx, "domain = $1", domain)
}

func (s *PostgresStorage) getSiteBy(ctx context.Context, cond string, arg any) (*models.Site, error) {
	site := &models.Site{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, domain, name, is_active, created_at FROM sites WHERE `+cond, arg).
		Scan(&site.ID, &site.Domain, &site.Name, &site.IsActive, &site.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error querying site: %w", err)
	}
	return site, nil
}

func (s *PostgresStorage) ListSites(ctx context.Context, siteIDs []string) ([]*models.Site, error) {
	query := `SELECT id, domain, name, is_active, created_at FROM sites`
	var args []any
	if siteIDs != nil {
		query += ` WHERE id = ANY($1)`
		args = append(args, pq.Array(siteIDs))
	}
	query += ` ORDER BY created_at`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error querying sites: %w", err)
	}
	defer rows.Close()

	var sites []*models.Site
	for rows.Next() {
		site := &models.Site{}
		if err := rows.Scan(&site.ID, &site.Domain, &site.Name, &site.IsActive, &site.CreatedAt); err != nil {
			return nil, fmt.Errorf("error scanning site: %w", err)
		}
		sites = append(sites, site)
	}
	return sites, rows.Err()
}

func (s *PostgresStorage) CountUsersBySite(ctx context.Context, siteIDs []string) (map[string]int, error) {
	query := `SELECT site_id, COUNT(DISTINCT user_id) FROM user_sites`
	var args []any
	if siteIDs != nil {
		query += ` WHERE site_id = ANY($1)`
		args = append(args, pq.Array(siteIDs))
	}
	query += ` GROUP BY site_id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error counting users by site: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var id string
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, fmt.Errorf("error scanning user count: %w", err)
		}
		counts[id] = n
	}
	return counts, rows.Err()
}

// leadWhere builds the WHERE clause for a LeadFilter. An empty non-nil
// SiteIDs slice matches nothing, which is the entitlement scope of a
// user with no sites.
func leadWhere(f LeadFilter) (string, []any) {
	clause := " WHERE 1=1"
	var args []any
	if f.SiteIDs != nil {
		args = append(args, pq.Array(f.SiteIDs))
		clause += fmt.Sprintf(" AND l.site_id = ANY($%d)", len(args))
	}
	if f.Status != "" {
		args = append(args, f.Status)
		clause += fmt.Sprintf(" AND l.status = $%d", len(args))
	}
	if !f.From.IsZero() {
		args = append(args, f.From)
		clause += fmt.Sprintf(" AND l.created_at >= $%d", len(args))
	}
	if !f.To.IsZero() {
		args = append(args, f.To)
		clause += fmt.Sprintf(" AND l.created_at < $%d", len(args))
	}
	return clause, args
}

func (s *PostgresStorage) CreateLead(ctx context.Context, lead *models.Lead) error {
	query := `
		INSERT INTO leads (id, site_id, name, phone, status, goal, revenue, source, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at`

	err := s.db.QueryRowContext(ctx, query,
		lead.ID, lead.SiteID, lead.Name, lead.Phone, lead.Status,
		lead.Goal, lead.Revenue, lead.Source, lead.Notes,
	).Scan(&lead.CreatedAt)
	if err != nil {
		return fmt.Errorf("error creating lead: %w", err)
	}
	return nil
}

const leadColumns = `
	l.id, l.site_id, s.domain, l.name, l.phone, l.status,
	COALESCE(l.goal, ''), COALESCE(l.revenue, ''), COALESCE(l.source, ''), COALESCE(l.notes, ''),
	l.created_at`

func scanLead(row interface{ Scan(...any) error }) (*models.Lead, error) {
	lead := &models.Lead{}
	err := row.Scan(
		&lead.ID,
		&lead.SiteID,
		&lead.SiteDomain,
		&lead.Name,
		&lead.Phone,
		&lead.Status,
		&lead.Goal,
		&lead.Revenue,
		&lead.Source,
		&lead.Notes,
		&lead.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return lead, nil
}

func (s *PostgresStorage) GetLead(ctx context.Context, id string) (*models.Lead, error) {
	query := "SELECT" + leadColumns + ` FROM leads l JOIN sites s ON s.id = l.site_id WHERE l.id = $1`
	lead, err := scanLead(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error querying lead: %w", err)
	}
	return lead, nil
}

func (s *PostgresStorage) CountLeads(ctx context.Context, f LeadFilter) (int, error) {
	clause, args := leadWhere(f)
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM leads l`+clause, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("error counting leads: %w", err)
	}
	return count, nil
}

func (s *PostgresStorage) CountLeadsByStatus(ctx context.Context, f LeadFilter) (map[models.LeadStatus]int, error) {
	clause, args := leadWhere(f)
	rows, err := s.db.QueryContext(ctx,
		`SELECT l.status, COUNT(*) FROM leads l`+clause+` GROUP BY l.status`, args...)
	if err != nil {
		return nil, fmt.Errorf("error counting leads by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.LeadStatus]int)
	for rows.Next() {
		var status models.LeadStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("error scanning status count: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

func (s *PostgresStorage) CountLeadsBySite(ctx context.Context, f LeadFilter) (map[string]int, error) {
	clause, args := leadWhere(f)
	rows, err := s.db.QueryContext(ctx,
		`SELECT l.site_id, COUNT(*) FROM leads l`+clause+` GROUP BY l.site_id`, args...)
	if err != nil {
		return nil, fmt.Errorf("error counting leads by site: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var id string
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, fmt.Errorf("error scanning site count: %w", err)
		}
		counts[id] = n
	}
	return counts, rows.Err()
}

func (s *PostgresStorage) CountLeadsByDay(ctx context.Context, f LeadFilter) ([]DayCount, error) {
	clause, args := leadWhere(f)
	rows, err := s.db.QueryContext(ctx,
		`SELECT TO_CHAR(l.created_at, 'YYYY-MM-DD') AS day, COUNT(*) FROM leads l`+
			clause+` GROUP BY day ORDER BY day`, args...)
	if err != nil {
		return nil, fmt.Errorf("error counting leads by day: %w", err)
	}
	defer rows.Close()

	var days []DayCount
	for rows.Next() {
		var dc DayCount
		if err := rows.Scan(&dc.Day, &dc.Count); err != nil {
			return nil, fmt.Errorf("error scanning day count: %w", err)
		}
		days = append(days, dc)
	}
	return days, rows.Err()
}

func (s *PostgresStorage) ListLeads(ctx context.Context, f LeadFilter, offset, limit int) ([]*models.Lead, error) {
	clause, args := leadWhere(f)
	args = append(args, limit, offset)
	query := "SELECT" + leadColumns + ` FROM leads l JOIN sites s ON s.id = l.site_id` +
		clause + fmt.Sprintf(` ORDER BY l.created_at DESC, l.id LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error querying leads: %w", err)
	}
	defer rows.Close()

	var leads []*models.Lead
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning lead: %w", err)
		}
		leads = append(leads, lead)
	}
	return leads, rows.Err()
}

func (s *PostgresStorage) UpdateLeadStatus(ctx context.Context, id string, status models.LeadStatus) error {
	result, err := s.db.ExecContext(ctx, `UPDATE leads SET status = $1 WHERE id = $2`, status, id)
	if err != nil {
		return fmt.Errorf("error updating lead status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("error getting rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStorage) CreateNotification(ctx context.Context, n *models.Notification) error {
	query := `
		INSERT INTO notifications (id, receiver_id, title, message)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at`

	err := s.db.QueryRowContext(ctx, query, n.ID, n.ReceiverID, n.Title, n.Message).Scan(&n.CreatedAt)
	if err != nil {
		return fmt.Errorf("error creating notification: %w", err)
	}
	return nil
}

func (s *PostgresStorage) ListUnreadNotifications(ctx context.Context, userID string, limit int) ([]*models.Notification, error) {
	query := `
		SELECT id, receiver_id, title, COALESCE(message, ''), is_read, created_at
		FROM notifications
		WHERE receiver_id = $1 AND NOT is_read
		ORDER BY created_at DESC
		LIMIT $2`

	rows, err := s.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("error querying notifications: %w", err)
	}
	defer rows.Close()

	var notifs []*models.Notification
	for rows.Next() {
		n := &models.Notification{}
		if err := rows.Scan(&n.ID, &n.ReceiverID, &n.Title, &n.Message, &n.IsRead, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("error scanning notification: %w", err)
		}
		notifs = append(notifs, n)
	}
	return notifs, rows.Err()
}

func (s *PostgresStorage) MarkNotificationsRead(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET is_read = TRUE WHERE receiver_id = $1 AND NOT is_read`, userID)
	if err != nil {
		return fmt.Errorf("error marking notifications read: %w", err)
	}
	return nil
}

// GetSession creates-or-reads atomically: the insert is a no-op when
// the row exists, so racing first events for one chat collapse to a
// single session row.
func (s *PostgresStorage) GetSession(ctx context.Context, chatKey string) (*models.ChatSession, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO bot_sessions (chat_key) VALUES ($1) ON CONFLICT (chat_key) DO NOTHING`, chatKey)
	if err != nil {
		return nil, fmt.Errorf("error creating session: %w", err)
	}

	session := &models.ChatSession{}
	var tempLogin, userID, activeSiteID sql.NullString
	err = s.db.QueryRowContext(ctx,
		`SELECT chat_key, state, temp_login, user_id, active_site_id FROM bot_sessions WHERE chat_key = $1`,
		chatKey).
		Scan(&session.ChatKey, &session.State, &tempLogin, &userID, &activeSiteID)
	if err != nil {
		return nil, fmt.Errorf("error querying session: %w", err)
	}
	session.TempLogin = tempLogin.String
	session.UserID = userID.String
	session.ActiveSiteID = activeSiteID.String
	return session, nil
}

func (s *PostgresStorage) SaveSession(ctx context.Context, session *models.ChatSession) error {
	query := `
		INSERT INTO bot_sessions (chat_key, state, temp_login, user_id, active_site_id, updated_at)
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), NULLIF($5, ''), NOW())
		ON CONFLICT (chat_key) DO UPDATE SET
			state = EXCLUDED.state,
			temp_login = EXCLUDED.temp_login,
			user_id = EXCLUDED.user_id,
			active_site_id = EXCLUDED.active_site_id,
			updated_at = NOW()`

	_, err := s.db.ExecContext(ctx, query,
		session.ChatKey, session.State, session.TempLogin, session.UserID, session.ActiveSiteID)
	if err != nil {
		return fmt.Errorf("error saving session: %w", err)
	}
	return nil
}

func (s *PostgresStorage) Close() error {
	return s.db.Close()
}
