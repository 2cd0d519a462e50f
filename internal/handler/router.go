package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sumire/defects/internal/domain"
	"github.com/sumire/defects/internal/metrics"
	"github.com/sumire/defects/internal/service"
)

// Routes bundles everything needed to mount the API.
type Routes struct {
	Auth        *AuthHandler
	Projects    *ProjectHandler
	Stages      *StageHandler
	Defects     *DefectHandler
	Attachments *AttachmentHandler
	Reports     *ReportHandler
	Verifier    TokenVerifier
	// AuthLimiter throttles the public auth endpoints; nil disables it.
	AuthLimiter echo.MiddlewareFunc
	// UploadLimit caps attachment request bodies; nil disables it.
	UploadLimit echo.MiddlewareFunc
}

// Register mounts /health, /metrics and the /api/v1 routes on e.
func Register(e *echo.Echo, r Routes) {
	e.GET("/health", func(c echo.Context) error {
		return JSON(c, http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))

	api := e.Group("/api/v1")

	// Auth routes (public)
	var authMW []echo.MiddlewareFunc
	if r.AuthLimiter != nil {
		authMW = append(authMW, r.AuthLimiter)
	}
	public := api.Group("/auth", authMW...)
	public.POST("/register", r.Auth.Register)
	public.POST("/login", r.Auth.Login)
	public.POST("/refresh", r.Auth.Refresh)
	public.GET("/google", r.Auth.OAuthRedirect(domain.AuthProviderGoogle))
	public.GET("/google/callback", r.Auth.OAuthCallback(domain.AuthProviderGoogle))
	public.GET("/github", r.Auth.OAuthRedirect(domain.AuthProviderGitHub))
	public.GET("/github/callback", r.Auth.OAuthCallback(domain.AuthProviderGitHub))

	// Protected routes
	p := api.Group("", JWTAuth(r.Verifier))
	allow := RequireAction

	p.GET("/auth/me", r.Auth.Me)

	p.GET("/projects", r.Projects.List, allow(service.ActionProjectView))
	p.POST("/projects", r.Projects.Create, allow(service.ActionProjectCreate))
	p.GET("/projects/:id", r.Projects.Get, allow(service.ActionProjectView))
	p.PATCH("/projects/:id", r.Projects.Update, allow(service.ActionProjectUpdate))
	p.DELETE("/projects/:id", r.Projects.Delete, allow(service.ActionProjectDelete))
	p.GET("/projects/:id/stats", r.Projects.Stats, allow(service.ActionProjectView))
	p.GET("/projects/:id/stages", r.Projects.Stages, allow(service.ActionStageView))

	p.POST("/stages", r.Stages.Create, allow(service.ActionStageCreate))
	p.GET("/stages/:id", r.Stages.Get, allow(service.ActionStageView))
	p.PATCH("/stages/:id", r.Stages.Update, allow(service.ActionStageUpdate))
	p.DELETE("/stages/:id", r.Stages.Delete, allow(service.ActionStageDelete))

	p.GET("/defects", r.Defects.List, allow(service.ActionDefectView))
	p.POST("/defects", r.Defects.Create, allow(service.ActionDefectCreate))
	p.GET("/defects/:id", r.Defects.Get, allow(service.ActionDefectView))
	p.PATCH("/defects/:id", r.Defects.Update, allow(service.ActionDefectUpdate))
	p.DELETE("/defects/:id", r.Defects.Delete, allow(service.ActionDefectDelete))
	p.POST("/defects/:id/comments", r.Defects.AddComment, allow(service.ActionCommentCreate))
	p.GET("/defects/:id/history", r.Defects.History, allow(service.ActionHistoryView))
	p.GET("/history/:id", r.Defects.HistoryEntry, allow(service.ActionHistoryView))

	uploadMW := []echo.MiddlewareFunc{allow(service.ActionAttachmentUpload)}
	if r.UploadLimit != nil {
		uploadMW = append(uploadMW, r.UploadLimit)
	}
	p.GET("/defects/:id/attachments", r.Attachments.List, allow(service.ActionAttachmentView))
	p.POST("/defects/:id/attachments", r.Attachments.Upload, uploadMW...)
	p.GET("/attachments/:id", r.Attachments.Download, allow(service.ActionAttachmentView))
	p.DELETE("/attachments/:id", r.Attachments.Delete, allow(service.ActionAttachmentDelete))

	p.GET("/reports/stats", r.Reports.Stats, allow(service.ActionReportView))
	p.GET("/reports/trends", r.Reports.Trends, allow(service.ActionReportView))
	p.GET("/reports/team-performance", r.Reports.TeamPerformance, allow(service.ActionReportView))
	p.GET("/reports/export", r.Reports.Export, allow(service.ActionReportView))
}
