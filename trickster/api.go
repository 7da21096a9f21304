package trickster

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// apiUser is the external shape of a user record. Relationship notes
// and example exchanges stay internal.
type apiUser struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Level        int    `json:"level"`
	XP           int    `json:"xp"`
	SocialCredit int64  `json:"social_credit"`
}

type apiMemory struct {
	Key       string `json:"key"`
	Content   string `json:"content"`
	UpdatedAt int64  `json:"updated_at"`
}

// newAPIServer builds the read-only state API. It only ever reads from
// the store; every mutation path belongs to the gateway handlers.
func (t *Trickster) newAPIServer() *http.Server {
	cfg := t.config.API
	logger := slog.New(t.logHandler).With(loggerNameKey, "api")

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(
		func(c *gin.Context) {
			started := time.Now()
			c.Next()
			logger.Info(
				"request",
				"method", c.Request.Method,
				"path", c.Request.URL.Path,
				"status", c.Writer.Status(),
				"duration", time.Since(started),
			)
		},
	)
	if len(cfg.CORSAllowOrigins) > 0 {
		corsCfg := cors.DefaultConfig()
		corsCfg.AllowOrigins = cfg.CORSAllowOrigins
		engine.Use(cors.New(corsCfg))
	}

	engine.GET(
		"/healthz", func(c *gin.Context) {
			c.String(http.StatusOK, "ok")
		},
	)
	engine.GET("/status", t.apiStatus)
	engine.GET("/api/users", t.apiListUsers)
	engine.GET("/api/users/:id/memories", t.apiUserMemories)

	return &http.Server{
		Addr:              cfg.Listen,
		Handler:           engine,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}
}

func (t *Trickster) apiStatus(c *gin.Context) {
	t.mu.Lock()
	botUserID := t.botUserID
	pendingMath := len(t.pendingMath)
	pendingColor := len(t.pendingColor)
	t.mu.Unlock()

	var userCount int64
	if err := t.db.DB().Model(&User{}).Count(&userCount).Error; err != nil {
		c.JSON(
			http.StatusInternalServerError,
			gin.H{"error": "error counting users"},
		)
		return
	}
	c.JSON(
		http.StatusOK, gin.H{
			"bot_user_id":     botUserID,
			"connected":       botUserID != "",
			"users":           userCount,
			"pending_quizzes": pendingMath + pendingColor,
		},
	)
}

func (t *Trickster) apiListUsers(c *gin.Context) {
	var users []User
	err := t.db.DB().
		Order("level desc, xp desc").
		Find(&users).Error
	if err != nil {
		c.JSON(
			http.StatusInternalServerError,
			gin.H{"error": "error listing users"},
		)
		return
	}
	out := make([]apiUser, 0, len(users))
	for _, u := range users {
		out = append(
			out, apiUser{
				ID:           u.ID,
				Name:         u.Name,
				Level:        u.Level,
				XP:           u.XP,
				SocialCredit: u.SocialCredit,
			},
		)
	}
	c.JSON(http.StatusOK, gin.H{"users": out})
}

func (t *Trickster) apiUserMemories(c *gin.Context) {
	userID := c.Param("id")
	var user User
	err := t.db.DB().Where("id = ?", userID).First(&user).Error
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown user"})
		return
	}
	memories, err := t.db.UserMemories(userID, 0)
	if err != nil {
		c.JSON(
			http.StatusInternalServerError,
			gin.H{"error": "error listing memories"},
		)
		return
	}
	out := make([]apiMemory, 0, len(memories))
	for _, m := range memories {
		out = append(
			out, apiMemory{
				Key:       m.Key,
				Content:   m.Content,
				UpdatedAt: m.UpdatedAt,
			},
		)
	}
	c.JSON(
		http.StatusOK, gin.H{
			"user":     apiUser{ID: user.ID, Name: user.Name, Level: user.Level, XP: user.XP, SocialCredit: user.SocialCredit},
			"memories": out,
		},
	)
}
