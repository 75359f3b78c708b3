// Package server exposes the public lead-ingestion API. Marketing
// sites post captured contacts here; each stored lead produces a
// dashboard notification per entitled user and a fire-and-forget
// fan-out event for the bot.
package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pimedia/leadbot/internal/bot"
	"github.com/pimedia/leadbot/internal/models"
	"github.com/pimedia/leadbot/internal/storage"
	"go.uber.org/zap"
)

type leadRequest struct {
	Name    string `json:"name" binding:"required"`
	Phone   string `json:"phone" binding:"required"`
	Domain  string `json:"domain" binding:"required"`
	Goal    string `json:"goal"`
	Revenue string `json:"revenue"`
	Source  string `json:"source"`
}

type Server struct {
	store    storage.Storage
	notifier *bot.Notifier
	logger   *zap.Logger
	engine   *gin.Engine
}

func New(store storage.Storage, notifier *bot.Notifier, logger *zap.Logger, allowedOrigins []string) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{store: store, notifier: notifier, logger: logger}

	r := gin.New()
	r.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	if len(allowedOrigins) == 0 {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = allowedOrigins
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type"}
	r.Use(cors.New(corsConfig))

	limiter := newIPLimiter(30, time.Minute)
	r.POST("/api/leads", rateLimit(limiter), s.createLead)
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	s.engine = r
	return s
}

func (s *Server) Run(addr string) error {
	return s.engine.Run(addr)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) createLead(c *gin.Context) {
	var req leadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name, phone and domain are required"})
		return
	}

	ctx := c.Request.Context()
	site, err := s.store.GetSiteByDomain(ctx, req.Domain)
	if errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "site not found or inactive"})
		return
	}
	if err != nil {
		s.logger.Error("Failed to resolve site", zap.Error(err), zap.String("domain", req.Domain))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server error"})
		return
	}
	if !site.IsActive {
		c.JSON(http.StatusNotFound, gin.H{"error": "site not found or inactive"})
		return
	}

	source := req.Source
	if source == "" {
		source = "organic"
	}
	lead := &models.Lead{
		ID:      uuid.NewString(),
		SiteID:  site.ID,
		Name:    req.Name,
		Phone:   normalizePhone(req.Phone),
		Status:  models.StatusNew,
		Goal:    req.Goal,
		Revenue: req.Revenue,
		Source:  source,
	}
	if err := s.store.CreateLead(ctx, lead); err != nil {
		s.logger.Error("Failed to create lead", zap.Error(err), zap.String("site_id", site.ID))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server error"})
		return
	}

	// Dashboard notifications are best-effort: the lead is already
	// stored, a missed notification row must not fail the request.
	s.createNotifications(c, site, lead)

	s.notifier.Enqueue(bot.NewLead{
		Name:   lead.Name,
		Phone:  lead.Phone,
		Goal:   lead.Goal,
		SiteID: lead.SiteID,
	})

	c.JSON(http.StatusCreated, gin.H{"success": true, "id": lead.ID})
}

func (s *Server) createNotifications(c *gin.Context, site *models.Site, lead *models.Lead) {
	ctx := c.Request.Context()
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		s.logger.Error("Failed to list notification receivers", zap.Error(err))
		return
	}

	message := site.Domain
	if lead.Goal != "" {
		message += " — " + lead.Goal
	}
	for _, u := range users {
		if !u.IsActive {
			continue
		}
		if u.Role != models.RoleTeamAdmin && !hasSite(u.SiteIDs, site.ID) {
			continue
		}
		n := &models.Notification{
			ID:         uuid.NewString(),
			ReceiverID: u.ID,
			Title:      "New lead: " + lead.Name,
			Message:    message,
		}
		if err := s.store.CreateNotification(ctx, n); err != nil {
			s.logger.Error("Failed to create notification",
				zap.Error(err), zap.String("receiver_id", u.ID))
		}
	}
}

func hasSite(siteIDs []string, id string) bool {
	for _, s := range siteIDs {
		if s == id {
			return true
		}
	}
	return false
}

func normalizePhone(phone string) string {
	var digits strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	d := digits.String()
	if strings.HasPrefix(d, "998") {
		return "+" + d
	}
	return "+998" + d
}
