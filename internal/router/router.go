package router

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/efuayankey/aimes-sub001/api"
	"github.com/efuayankey/aimes-sub001/internal/handler"
	"github.com/efuayankey/aimes-sub001/internal/middleware"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

const (
	PathHealth  = "/health"
	PathReady   = "/ready"
	PathSwagger = "/swagger"
	PathAPI     = "/api/v1"
)

type Handlers struct {
	Health        *handler.HealthHandler
	Requests      *handler.RequestHandler
	Conversations *handler.ConversationHandler
	Events        *handler.EventHandler
	Admin         *handler.AdminHandler
}

func New(h Handlers, identity *middleware.Identity, log *slog.Logger) http.Handler {
	r := gin.New()
	r.Use(middleware.RequestID(), middleware.Logger(log), middleware.Recovery(log))
	r.GET(PathHealth, h.Health.Health)
	r.GET(PathReady, h.Health.Ready)
	r.GET(PathSwagger, func(c *gin.Context) { c.Redirect(http.StatusFound, PathSwagger+"/") })
	r.GET(PathSwagger+"/*any", func(c *gin.Context) {
		if strings.TrimPrefix(c.Param("any"), "/") == "openapi.json" {
			c.Data(http.StatusOK, "application/json", api.OpenAPISpec)
			return
		}
		if strings.TrimPrefix(c.Param("any"), "/") == "" {
			c.Request.URL.Path = PathSwagger + "/index.html"
			c.Request.RequestURI = PathSwagger + "/index.html"
		}
		ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL(PathSwagger+"/openapi.json"))(c)
	})

	counselor := middleware.RequireRole(middleware.RoleCounselor, middleware.RoleSupervisor)
	supervisor := middleware.RequireRole(middleware.RoleSupervisor)

	v1 := r.Group(PathAPI, identity.Handler())
	{
		v1.POST("/requests", h.Requests.Submit)
		v1.GET("/requests/pending", counselor, h.Requests.ListPending)
		v1.GET("/requests/:id", h.Requests.Get)
		v1.GET("/requests/:id/responses", h.Requests.Responses)
		v1.POST("/requests/:id/claim", counselor, h.Requests.Claim)
		v1.POST("/requests/:id/release", counselor, h.Requests.Release)
		v1.POST("/requests/:id/responses", counselor, h.Requests.Respond)
		v1.POST("/requests/:id/auto-response", counselor, h.Requests.AutoRespond)
		v1.POST("/requests/:id/close", counselor, h.Requests.Close)

		v1.GET("/events", counselor, h.Events.Stream)

		v1.POST("/conversations", h.Conversations.Start)
		v1.GET("/conversations/unclaimed", counselor, h.Conversations.ListUnclaimed)
		v1.GET("/conversations/:id/history", h.Conversations.History)
		v1.POST("/conversations/:id/claim", counselor, h.Conversations.Claim)
		v1.POST("/conversations/:id/release", counselor, h.Conversations.Release)
		v1.POST("/conversations/:id/close", counselor, h.Conversations.Close)

		v1.POST("/admin/sweep", supervisor, h.Admin.Sweep)
	}

	return r
}
