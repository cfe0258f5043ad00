package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"attendance/internal/httpmiddleware"
)

// RouterOptions tunes the middleware stack.
type RouterOptions struct {
	RateLimitPerMin int
	CORSOrigins     []string
	AccessLog       bool
}

// NewRouter mounts the API, health and metrics routes.
func NewRouter(h *Handler, opts RouterOptions) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if opts.AccessLog {
		r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
			SkipPaths: []string{"/healthz", "/metrics"},
		}))
	}
	r.Use(httpmiddleware.RequestID())
	r.Use(httpmiddleware.Metrics())
	r.Use(httpmiddleware.CORS(opts.CORSOrigins))
	r.Use(httpmiddleware.SecurityHeaders())
	r.Use(httpmiddleware.NewSimpleTokenBucket(opts.RateLimitPerMin, opts.RateLimitPerMin).GinMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", h.Healthz)

	api := r.Group("/api")
	api.GET("/students", h.ListStudents)
	api.POST("/students", h.AddStudent)
	api.GET("/attendance", h.ListAttendance)
	api.POST("/attendance", h.RecordAttendance)
	api.GET("/statistics", h.Statistics)

	return r
}
