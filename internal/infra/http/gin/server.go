package ginserver

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	gin "github.com/gin-gonic/gin"

	"bazaar/internal/infra/config"
	"bazaar/internal/infra/obs"
)

type Handlers struct {
	Auth           AuthHTTP
	Chat           ChatHTTP
	Listing        ListingHTTP
	Realtime       http.HandlerFunc
	AuthMiddleware gin.HandlerFunc
}

func NewServer(cfg config.Config, obsMW obs.Middleware, health obs.HealthHandlers, h Handlers) *http.Server {
	mode := configureGinMode(cfg.Env)
	if obsMW.Logger != nil {
		obsMW.Logger.Info("gin initialized", "mode", mode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(obsMW.RequestID())
	router.Use(obsMW.LoggerMiddleware())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders: []string{
			"Content-Length",
			"Content-Type",
			"X-Request-ID",
		},
		MaxAge: 12 * time.Hour,
	}))
	if h.AuthMiddleware != nil {
		router.Use(h.AuthMiddleware)
	}

	router.GET("/livez", health.Livez)
	router.GET("/readyz", health.Readyz)

	if h.Realtime != nil {
		router.GET("/ws", gin.WrapF(h.Realtime))
	}

	api := router.Group("/api/v1")
	if h.Auth != nil {
		api.POST("/auth/register", h.Auth.Register)
		api.POST("/auth/login", h.Auth.Login)
		api.GET("/auth/me", h.Auth.Me)
	}
	if h.Chat != nil {
		chatGroup := api.Group("/chat")
		chatGroup.POST("/start", h.Chat.StartConversation)
		chatGroup.GET("/conversations", h.Chat.ListConversations)
		chatGroup.GET("/unread-count", h.Chat.UnreadCount)
		chatGroup.GET("/:conversationId/messages", h.Chat.ListMessages)
		chatGroup.POST("/:conversationId/message", h.Chat.SendMessage)
		chatGroup.PATCH("/:conversationId/mark-read", h.Chat.MarkRead)
	}
	if h.Listing != nil {
		listingGroup := api.Group("/posts")
		listingGroup.POST("", h.Listing.Create)
		listingGroup.GET("/mine", h.Listing.Mine)
		listingGroup.GET("/:id", h.Listing.Get)
		listingGroup.POST("/:id/photos", h.Listing.UploadPhoto)
	}

	return &http.Server{Addr: cfg.HTTPAddr, Handler: router}
}

func configureGinMode(env string) string {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "debug":
		gin.SetMode(gin.DebugMode)
		return gin.DebugMode
	case "test", "testing":
		gin.SetMode(gin.TestMode)
		return gin.TestMode
	default:
		gin.SetMode(gin.ReleaseMode)
		return gin.ReleaseMode
	}
}
