// Package api exposes the bot over HTTP: the WhatsApp webhook, the manual
// leaderboard triggers, snapshot lookup and the admin REST endpoints.
package api

import (
	"context"
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/victornm/quizbot/internal/admin"
	"github.com/victornm/quizbot/internal/domain"
	"github.com/victornm/quizbot/internal/errors"
	"github.com/victornm/quizbot/internal/game"
	"github.com/victornm/quizbot/internal/leaderboard"
	"github.com/victornm/quizbot/internal/schedule"
)

const healthText = "WhatsApp Quiz Bot API is running."

type Jobs interface {
	Run(ctx context.Context, name string) (string, error)
}

type Config struct {
	Engine      *gin.Engine
	Game        *game.Service
	Admin       *admin.Service
	Leaderboard *leaderboard.Service
	Jobs        Jobs
	// AdminToken guards the admin endpoints. Empty disables them.
	AdminToken string
	Twilio     TwilioConfig
}

type TwilioConfig struct {
	AuthToken         string
	ValidateSignature bool
	// WebhookURL is the public URL Twilio posts to, used to validate
	// signatures behind proxies. Defaults to the URL of the request.
	WebhookURL string
}

type API struct {
	game       *game.Service
	admin      *admin.Service
	lb         *leaderboard.Service
	jobs       Jobs
	adminToken string
	twilio     TwilioConfig
}

func New(c Config) *API {
	a := &API{
		game:       c.Game,
		admin:      c.Admin,
		lb:         c.Leaderboard,
		jobs:       c.Jobs,
		adminToken: c.AdminToken,
		twilio:     c.Twilio,
	}

	e := c.Engine
	e.GET("/", a.Health)
	e.POST("/webhook/whatsapp", a.WhatsAppWebhook)
	e.GET("/daily_leaderboard", a.runJob(schedule.JobDailyLeaderboard))
	e.GET("/weekly_leaderboard", a.runJob(schedule.JobWeeklyLeaderboard))
	e.GET("/leaderboard/:kind/:bucket", a.GetSnapshot)

	g := e.Group("/admin", a.requireAdminToken)
	g.POST("/add_question", a.AddQuestion)
	g.DELETE("/remove_question/:id", a.RemoveQuestion)
	g.POST("/update_user_number/:id", a.UpdateUserNumber)
	g.POST("/broadcast", a.Broadcast)

	return a
}

func (a *API) Health(c *gin.Context) {
	c.String(http.StatusOK, healthText)
}

// runJob runs a scheduled job on demand and returns its status as plain text.
func (a *API) runJob(name string) gin.HandlerFunc {
	return func(c *gin.Context) {
		status, err := a.jobs.Run(c.Request.Context(), name)
		if err != nil {
			e := errors.Convert(err)
			c.String(e.HTTPStatusCode(), "Failed to run %s.", name)
			return
		}
		c.String(http.StatusOK, status)
	}
}

func (a *API) GetSnapshot(c *gin.Context) {
	kind := domain.LeaderboardKind(c.Param("kind"))
	lb, err := a.lb.Snapshot(c.Request.Context(), kind, c.Param("bucket"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, lb)
}

func (a *API) requireAdminToken(c *gin.Context) {
	token := c.GetHeader("X-Admin-Token")
	if a.adminToken == "" || subtle.ConstantTimeCompare([]byte(token), []byte(a.adminToken)) != 1 {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": admin.ReplyUnauthorized})
		return
	}
	c.Next()
}

func writeError(c *gin.Context, err error) {
	e := errors.Convert(err)
	msg := e.Message
	if e.Code == errors.CodeInternal {
		msg = "internal error"
	}
	c.JSON(e.HTTPStatusCode(), gin.H{"error": msg})
}
