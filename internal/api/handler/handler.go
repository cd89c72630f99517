// Package handler is the HTTP and WebSocket request layer.
package handler

import (
	"context"
	"net/http"
	"time"

	"chatline/backend/internal/account"
	"chatline/backend/internal/auth"
	"chatline/backend/internal/chathub"
	"chatline/backend/internal/config"
	"chatline/backend/internal/conversation"
	"chatline/backend/internal/localization"
	"chatline/backend/internal/logger"
	"chatline/backend/internal/metrics"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators the request layer is built from.
type Deps struct {
	Hub           *chathub.ManagerService
	Accounts      *account.Service
	Conversations *conversation.Service
	Tokens        *auth.TokenManager
	Locales       *localization.Localizer
	Metrics       *metrics.Metrics
	Store         Pinger
	Config        *config.Config
}

type Handler struct {
	Hub           *chathub.ManagerService
	accounts      *account.Service
	conversations *conversation.Service
	tokens        *auth.TokenManager
	locales       *localization.Localizer
	metrics       *metrics.Metrics
	store         Pinger
	cfg           *config.Config
	upgrader      websocket.Upgrader

	globalLimit  *IPRateLimiter
	messageLimit *IPRateLimiter
}

func NewHandler(d Deps) *Handler {
	h := &Handler{
		Hub:           d.Hub,
		accounts:      d.Accounts,
		conversations: d.Conversations,
		tokens:        d.Tokens,
		locales:       d.Locales,
		metrics:       d.Metrics,
		store:         d.Store,
		cfg:           d.Config,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(d.Config.Server.AllowedOrigin),
	}
	rl := d.Config.RateLimit
	h.globalLimit = NewIPRateLimiter(rl.GlobalPerWindow, rl.GlobalWindow)
	h.messageLimit = NewIPRateLimiter(rl.MessagesPerMinute, time.Minute)
	return h
}

// Router builds the gin engine with every route mounted.
func (h *Handler) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.GinMiddleware(logger.L()))
	if h.metrics != nil {
		r.Use(h.metrics.GinMiddleware())
	}
	r.Use(CORS(h.cfg.Server.AllowedOrigin))

	r.GET("/health", h.Health)
	if h.metrics != nil {
		r.GET("/metrics", gin.WrapH(h.metrics.Handler()))
	}
	r.GET("/ws", h.ServeWebSocket)

	api := r.Group("/api", h.globalLimit.Middleware(h.fail))
	api.Use(bodyLimit(config.MaxBodyBytes))

	protect := auth.RequireAuth(h.tokens, h.accounts, h.fail)

	authGroup := api.Group("/auth")
	authGroup.POST("/signup", h.Signup)
	authGroup.POST("/login", h.Login)
	authGroup.POST("/logout", h.Logout)
	authGroup.PUT("/update-profile", protect, h.UpdateProfile)
	authGroup.GET("/check", protect, h.Check)

	msgs := api.Group("/messages", protect)
	msgs.GET("/users", h.ListContacts)
	msgs.GET("/:id", h.GetMessages)
	msgs.POST("/send/:id", h.messageLimit.Middleware(h.fail), h.SendMessage)
	msgs.POST("/forward/:id", h.messageLimit.Middleware(h.fail), h.ForwardMessage)
	msgs.PUT("/seen/:id", h.MarkSeen)
	msgs.POST("/react/:id", h.AddReaction)
	msgs.PUT("/edit/:id", h.EditMessage)
	msgs.DELETE("/delete/:id", h.DeleteMessage)
	msgs.DELETE("/clear/:id", h.ClearConversation)

	return r
}

func (h *Handler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	storeState := "ok"
	if err := h.store.Ping(ctx); err != nil {
		status = http.StatusServiceUnavailable
		storeState = "unavailable"
		l := logger.Ctx(c.Request.Context())
		l.Warn().Err(err).Msg("health check: store ping failed")
	}
	c.JSON(status, gin.H{
		"status": storeState,
		"online": len(h.Hub.Registry.OnlineUserIDs()),
	})
}

// StartJanitors sweeps idle rate-limit entries until ctx is done.
func (h *Handler) StartJanitors(ctx context.Context) {
	go h.globalLimit.Run(ctx)
	go h.messageLimit.Run(ctx)
}

func bodyLimit(n int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, n)
		c.Next()
	}
}
