package routes

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	config "github.com/phillip/volunteer-hub-go/config"
	controllers "github.com/phillip/volunteer-hub-go/controllers"
	middleware "github.com/phillip/volunteer-hub-go/middleware"
)

func corsConfig(origins []string) cors.Config {
	cc := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "If-None-Match", "X-Request-ID"},
		ExposeHeaders:    []string{"ETag", "Last-Modified", "X-Total-Count", "X-Request-ID", "Retry-After", "Content-Disposition"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}
	for _, o := range origins {
		if o == "*" {
			cc.AllowAllOrigins = true
			return cc
		}
	}
	cc.AllowOrigins = origins
	if len(origins) == 0 {
		cc.AllowAllOrigins = true
	}
	return cc
}

func SetupRoutes(r *gin.Engine, cfg *config.Config) {
	middleware.RegisterValidators()
	if err := r.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		cfg.Log.Error().Err(err).Msg("invalid trusted proxies, trusting none")
		_ = r.SetTrustedProxies(nil)
	}

	r.Use(
		middleware.RequestID(),
		middleware.Logger(cfg.Log),
		gin.Recovery(),
		cors.New(corsConfig(cfg.CORSOrigins)),
		middleware.PerIP(cfg.RateLimitPerMinute, time.Minute),
	)

	r.GET("/healthz", controllers.Healthz(cfg))

	// public
	authGroup := r.Group("/auth")
	{
		authGroup.POST("/register", controllers.Register(cfg))
		authGroup.POST("/login", controllers.Login(cfg))
		authGroup.POST("/refresh", controllers.RefreshToken(cfg))

		// otp
		authGroup.POST("/request-otp", controllers.RequestOTP(cfg))
		authGroup.POST("/verify-otp", controllers.VerifyOTP(cfg))
	}

	r.POST("/chat", controllers.Chat(cfg))
	r.GET("/kb", controllers.ListKB(cfg))

	// protected
	auth := middleware.AuthMiddleware(cfg)
	optional := middleware.OptionalAuth(cfg)
	submitLimit := middleware.RateLimit(cfg.Submissions, middleware.ByUserAndRoute)

	users := r.Group("/users")
	users.Use(auth)
	{
		users.GET("/me", controllers.Me(cfg))
		users.GET("", controllers.ListUsers(cfg))
		users.GET("/:id", controllers.GetUser(cfg))
		users.PATCH("/:id", controllers.UpdateUser(cfg))
		users.DELETE("/:id", controllers.DeleteUser(cfg))
	}

	// Projects
	projects := r.Group("/projects")
	{
		projects.GET("", controllers.ListProjects(cfg))
		projects.GET("/mine", auth, controllers.MyProjects(cfg))
		projects.GET("/:id", optional, controllers.GetProject(cfg))
		projects.POST("", auth, submitLimit, controllers.CreateProject(cfg))
		projects.PATCH("/:id", auth, controllers.UpdateProject(cfg))
		projects.POST("/:id/images", auth, controllers.AddProjectImages(cfg))
		projects.POST("/:id/resubmit", auth, controllers.ResubmitProject(cfg))
		projects.DELETE("/:id", auth, controllers.DeleteProject(cfg))

		projects.POST("/:id/applications", auth, submitLimit, controllers.ApplyToProject(cfg))
		projects.GET("/:id/applications", auth, controllers.ListProjectApplications(cfg))
	}

	// Events
	events := r.Group("/events")
	{
		events.GET("", controllers.ListEvents(cfg))
		events.GET("/mine", auth, controllers.MyEvents(cfg))
		events.GET("/:id", optional, controllers.GetEvent(cfg))
		events.POST("", auth, submitLimit, controllers.CreateEvent(cfg))
		events.PATCH("/:id", auth, controllers.UpdateEvent(cfg))
		events.POST("/:id/images", auth, controllers.AddEventImages(cfg))
		events.POST("/:id/resubmit", auth, controllers.ResubmitEvent(cfg))
		events.DELETE("/:id", auth, controllers.DeleteEvent(cfg))

		events.POST("/:id/registrations", auth, controllers.RegisterForEvent(cfg))
		events.GET("/:id/registrations", auth, controllers.ListEventRegistrations(cfg))
	}

	applications := r.Group("/applications")
	applications.Use(auth)
	{
		applications.GET("/mine", controllers.MyApplications(cfg))
		applications.POST("/:id/withdraw", controllers.WithdrawApplication(cfg))
	}

	registrations := r.Group("/registrations")
	registrations.Use(auth)
	{
		registrations.GET("/mine", controllers.MyRegistrations(cfg))
		registrations.POST("/:id/cancel", controllers.CancelRegistration(cfg))
	}

	editRequests := r.Group("/edit-requests")
	editRequests.Use(auth)
	{
		editRequests.POST("", submitLimit, controllers.CreateEditRequest(cfg))
		editRequests.GET("/mine", controllers.MyEditRequests(cfg))
	}

	reminders := r.Group("/reminders")
	reminders.Use(auth)
	{
		reminders.POST("", controllers.CreateReminder(cfg))
		reminders.GET("/mine", controllers.MyReminders(cfg))
		reminders.DELETE("/:id", controllers.DeleteReminder(cfg))
	}

	notifs := r.Group("/notifications")
	notifs.Use(auth) // protected
	{
		notifs.GET("", controllers.ListNotifications(cfg))
		notifs.PATCH("/:id/read", controllers.MarkNotificationRead(cfg))
	}

	admin := r.Group("/admin")
	admin.Use(auth, middleware.RequireAdmin())
	{
		admin.GET("/projects", controllers.ListAllProjects(cfg))
		admin.POST("/projects/:id/review", controllers.ReviewProject(cfg))
		admin.POST("/projects/:id/visibility", controllers.SetProjectVisibility(cfg))

		admin.GET("/events", controllers.ListAllEvents(cfg))
		admin.POST("/events/:id/review", controllers.ReviewEvent(cfg))
		admin.POST("/events/:id/visibility", controllers.SetEventVisibility(cfg))

		admin.GET("/applications", controllers.ListAllApplications(cfg))
		admin.POST("/applications/:id/review", controllers.ReviewApplication(cfg))
		admin.GET("/registrations", controllers.ListAllRegistrations(cfg))

		admin.GET("/edit-requests", controllers.ListEditRequests(cfg))
		admin.POST("/edit-requests/:id/review", controllers.ReviewEditRequest(cfg))

		admin.GET("/analytics", controllers.Analytics(cfg))
		admin.GET("/export/:kind", controllers.Export(cfg))
		admin.POST("/reminders/run", controllers.RunReminders(cfg))

		admin.GET("/kb", controllers.ListKB(cfg))
		admin.POST("/kb", controllers.CreateKBEntry(cfg))
		admin.PATCH("/kb/:id", controllers.UpdateKBEntry(cfg))
		admin.DELETE("/kb/:id", controllers.DeleteKBEntry(cfg))
	}
}
