package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"queuemedix-server/internal/appointments"
	"queuemedix-server/internal/config"
	"queuemedix-server/internal/directory"
	"queuemedix-server/internal/handlers"
	"queuemedix-server/internal/metrics"
	"queuemedix-server/internal/middleware"
	"queuemedix-server/internal/notify"
	"queuemedix-server/internal/queue"
)

// Dependencies are the long-lived services the handlers are built from.
type Dependencies struct {
	DB        *gorm.DB
	Cfg       *config.Config
	Ledger    *appointments.Ledger
	Hub       *queue.Hub
	Projector queue.Projector
	Jobs      notify.Enqueuer
	Policy    middleware.Policy
}

// SetupRoutes configures the application routes.
func SetupRoutes(router *gin.Engine, deps Dependencies) {
	policy := deps.Policy
	if policy == nil {
		policy = middleware.DefaultPolicy
	}
	dir := directory.New(deps.DB)

	authHandler := handlers.NewAuthHandler(deps.DB, deps.Cfg)
	directoryHandler := handlers.NewDirectoryHandler(dir)
	appointmentHandler := handlers.NewAppointmentHandler(deps.Ledger, dir)
	medicalRecordHandler := handlers.NewMedicalRecordHandler(deps.DB, dir)
	messageHandler := handlers.NewMessageHandler(deps.DB, deps.Jobs)
	queueHandler := handlers.NewQueueHandler(deps.Hub, deps.Projector, dir, deps.Cfg.Origin,
		deps.Cfg.Queue.SendBuffer, deps.Cfg.Queue.WriteTimeout)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "UP"})
	})
	router.GET("/metrics", metrics.Handler())

	public := router.Group("/api/v1")
	{
		authRoutes := public.Group("/auth")
		authRoutes.POST("/register", authHandler.Register)
		authRoutes.POST("/login", authHandler.Login)
		authRoutes.POST("/refresh-token", authHandler.RefreshToken)
	}

	private := router.Group("/api/v1")
	private.Use(middleware.AuthMiddleware(deps.Cfg))
	{
		authRoutes := private.Group("/auth")
		authRoutes.POST("/logout", authHandler.Logout)
		authRoutes.GET("/profile", authHandler.GetProfile)
		authRoutes.PUT("/profile", authHandler.UpdateProfile)

		hospitals := private.Group("/hospitals")
		hospitals.POST("", policy.Require(middleware.CapManageHospitals), directoryHandler.CreateHospital)
		hospitals.GET("", policy.Require(middleware.CapViewDirectory), directoryHandler.ListHospitals)
		hospitals.GET("/:id", policy.Require(middleware.CapViewDirectory), directoryHandler.GetHospital)
		hospitals.POST("/:id/departments", policy.Require(middleware.CapManageDepartments), directoryHandler.CreateDepartment)
		hospitals.GET("/:id/departments", policy.Require(middleware.CapViewDirectory), directoryHandler.ListDepartments)
		hospitals.GET("/:id/appointments", policy.Require(middleware.CapManageAppointments), appointmentHandler.ListByHospital)
		hospitals.GET("/:id/queue", policy.Require(middleware.CapViewQueue), queueHandler.GetQueue)

		departments := private.Group("/departments")
		departments.GET("/:id", policy.Require(middleware.CapViewDirectory), directoryHandler.GetDepartment)
		departments.PUT("/:id", policy.Require(middleware.CapManageDepartments), directoryHandler.UpdateDepartment)
		departments.DELETE("/:id", policy.Require(middleware.CapManageDepartments), directoryHandler.DeleteDepartment)

		doctors := private.Group("/doctors")
		doctors.GET("", policy.Require(middleware.CapViewDirectory), directoryHandler.ListDoctors)
		doctors.GET("/:id", policy.Require(middleware.CapViewDirectory), directoryHandler.GetDoctor)
		doctors.GET("/:id/appointments", policy.Require(middleware.CapManageAppointments), appointmentHandler.ListByDoctor)

		patients := private.Group("/patients")
		patients.GET("/cards/:cardId", policy.Require(middleware.CapViewDirectory), directoryHandler.GetPatientByCard)
		patients.GET("/:id", policy.Require(middleware.CapViewDirectory), directoryHandler.GetPatient)
		patients.GET("/:id/appointments", policy.Require(middleware.CapViewAppointments), appointmentHandler.ListByPatient)
		patients.GET("/:id/medical-records", policy.Require(middleware.CapReadRecords), medicalRecordHandler.GetMedicalRecordsForPatient)

		appointmentRoutes := private.Group("/appointments")
		appointmentRoutes.POST("", policy.Require(middleware.CapBookAppointment), appointmentHandler.CreateAppointment)
		appointmentRoutes.GET("", policy.Require(middleware.CapManageAppointments), appointmentHandler.ListAppointments)
		appointmentRoutes.GET("/me", policy.Require(middleware.CapViewAppointments), appointmentHandler.GetMyAppointments)
		appointmentRoutes.GET("/pending", policy.Require(middleware.CapManageAppointments), appointmentHandler.ListPending)
		appointmentRoutes.GET("/uncompleted", policy.Require(middleware.CapManageAppointments), appointmentHandler.ListUncompleted)
		appointmentRoutes.GET("/:id", policy.Require(middleware.CapViewAppointments), appointmentHandler.GetAppointmentByID)
		appointmentRoutes.PUT("/:id/doctor", policy.Require(middleware.CapManageAppointments), appointmentHandler.AssignDoctor)
		appointmentRoutes.PATCH("/:id/status", policy.Require(middleware.CapManageAppointments), appointmentHandler.UpdateAppointmentStatus)
		appointmentRoutes.POST("/:id/cancel", policy.Require(middleware.CapCancelAppointment), appointmentHandler.CancelAppointment)
		appointmentRoutes.DELETE("/:id", policy.Require(middleware.CapManageAppointments), appointmentHandler.DeleteAppointment)

		records := private.Group("/medical-records")
		records.POST("", policy.Require(middleware.CapWriteRecords), medicalRecordHandler.CreateMedicalRecord)
		records.GET("/:id", policy.Require(middleware.CapReadRecords), medicalRecordHandler.GetMedicalRecordByID)
		records.PUT("/:id", policy.Require(middleware.CapWriteRecords), medicalRecordHandler.UpdateMedicalRecord)
		records.DELETE("/:id", policy.Require(middleware.CapWriteRecords), medicalRecordHandler.DeleteMedicalRecord)

		messages := private.Group("/messages")
		messages.POST("", messageHandler.SendMessage)
		messages.GET("/:userId", messageHandler.GetChatHistory)
	}

	ws := router.Group("/ws")
	ws.Use(middleware.AuthMiddleware(deps.Cfg), policy.Require(middleware.CapViewQueue))
	ws.GET("/queue/:hospitalId", queueHandler.ServeQueue)
}
