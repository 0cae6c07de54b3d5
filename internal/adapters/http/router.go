package http

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/lunir/lunir/internal/adapters/chatws"
	"github.com/lunir/lunir/internal/auth"
	"github.com/lunir/lunir/internal/config"
	"github.com/lunir/lunir/internal/core"
	"github.com/lunir/lunir/internal/domain"
	"github.com/lunir/lunir/internal/store"
)

// SetupRouter wires the REST surface and the WebSocket endpoint.
func SetupRouter(
	ctx context.Context,
	cfg *config.Config,
	verifier *auth.TokenManager,
	lifecycle *core.Lifecycle,
	stores store.Stores,
) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())
	r.Use(CORSMiddleware(cfg.AllowedOrigins))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})
	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "Lunir API Server"})
	})

	handlers := NewHandlers(stores, lifecycle)
	wsCtl := chatws.NewController(cfg, verifier, lifecycle, stores)

	api := r.Group("/api/v1")

	// Token mint for local development only: release builds never expose it.
	if cfg.Mode != "release" {
		api.POST("/auth/token", devTokenHandler(verifier))
	}

	// The WebSocket handshake carries its credential as a query parameter;
	// the endpoint does its own verification and close-code signalling.
	api.GET("/ws/chat", func(c *gin.Context) {
		wsCtl.HandleChat(ctx, c)
	})

	authed := api.Group("", AuthMiddleware(verifier))
	authed.GET("/rooms", handlers.listRooms)
	authed.POST("/rooms", handlers.createRoom)
	authed.GET("/rooms/:id", handlers.getRoom)
	authed.POST("/rooms/:id/join", handlers.joinRoom)
	authed.POST("/rooms/:id/leave", handlers.leaveRoom)
	authed.GET("/rooms/:id/messages", handlers.roomMessages)
	authed.GET("/stats", handlers.stats)

	log.Info().Str("module", "adapters.http").Str("mode", cfg.Mode).Msg("router setup")
	return r
}

// devTokenHandler mints a signed token for an arbitrary username so the
// frontend can be exercised without a real identity provider.
func devTokenHandler(verifier *auth.TokenManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Username    string `json:"username"`
			DisplayName string `json:"display_name"`
		}
		if err := c.ShouldBindJSON(&req); err != nil || req.Username == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "username is required"})
			return
		}
		user, err := domain.NewUser(req.Username)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		user.DisplayName = req.DisplayName

		token, err := verifier.Issue(*user)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to issue token"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"token": token, "user": user})
	}
}
