package router

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/school-timetable-api/internal/handler"
	"github.com/noah-isme/school-timetable-api/internal/middleware"
	"github.com/noah-isme/school-timetable-api/internal/models"
	"github.com/noah-isme/school-timetable-api/internal/service"
	"github.com/noah-isme/school-timetable-api/pkg/config"
	"github.com/noah-isme/school-timetable-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/school-timetable-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/school-timetable-api/pkg/middleware/requestid"
)

// Handlers groups everything the router mounts.
type Handlers struct {
	Auth          *handler.AuthHandler
	Sections      *handler.SectionHandler
	Courses       *handler.CourseHandler
	Timetables    *handler.TimetableHandler
	Quizzes       *handler.QuizHandler
	Notifications *handler.NotificationHandler
	Metrics       *handler.MetricsHandler
}

// Options carries the shared dependencies of the HTTP stack.
type Options struct {
	Config     *config.Config
	Logger     *zap.Logger
	Tokens     middleware.TokenValidator
	Metrics    *service.MetricsService
	Handlers   Handlers
	EnableDocs bool
}

// New builds the gin engine with every API route registered.
func New(opts Options) *gin.Engine {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(opts.Logger))
	r.Use(middleware.Metrics(opts.Metrics))
	if opts.Config != nil {
		r.Use(corsmiddleware.New(opts.Config.CORS.AllowedOrigins))
	}

	h := opts.Handlers
	r.GET("/health", h.Metrics.Health)
	r.GET("/ready", h.Metrics.Ready)
	r.GET("/metrics", h.Metrics.Prometheus)
	if opts.EnableDocs {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	prefix := "/api/v1"
	if opts.Config != nil && opts.Config.APIPrefix != "" {
		prefix = opts.Config.APIPrefix
	}
	api := r.Group(prefix)

	api.POST("/auth/login", h.Auth.Login)

	secured := api.Group("")
	secured.Use(middleware.JWT(opts.Tokens))
	secured.GET("/auth/me", h.Auth.Me)

	view := middleware.RequireCapability(models.CapViewTimetables)
	manageSections := middleware.RequireCapability(models.CapManageSections, models.CapStudentAffairs)
	manageCourses := middleware.RequireCapability(models.CapManageCourses)
	manageTimetables := middleware.RequireCapability(models.CapManageTimetables)
	manageQuizzes := middleware.RequireCapability(models.CapManageQuizzes)
	takeQuizzes := middleware.RequireCapability(models.CapTakeQuizzes)
	quizAccess := middleware.RequireCapability(models.CapManageQuizzes, models.CapTakeQuizzes)

	sections := secured.Group("/sections")
	sections.POST("", middleware.RequireCapability(models.CapManageSections), h.Sections.Create)
	sections.GET("", view, h.Sections.List)
	sections.GET("/:id", view, h.Sections.Get)
	sections.POST("/:id/enrollments", manageSections, h.Sections.Enroll)
	sections.DELETE("/:id/enrollments/:studentId", manageSections, h.Sections.Unenroll)
	sections.GET("/:id/courses", view, h.Courses.ListBySection)
	sections.GET("/:id/timetable", view, h.Timetables.GetBySection)

	courses := secured.Group("/courses")
	courses.POST("", manageCourses, h.Courses.Create)
	courses.GET("/:id", view, h.Courses.Get)
	courses.POST("/:id/teachers", manageCourses, h.Courses.AddTeacher)
	courses.DELETE("/:id/teachers/:teacherId", manageCourses, h.Courses.RemoveTeacher)
	courses.POST("/:id/students", manageCourses, h.Courses.AddStudent)
	courses.GET("/:id/quizzes", quizAccess, h.Quizzes.ListByCourse)

	timetables := secured.Group("/timetables")
	timetables.POST("", manageTimetables, h.Timetables.Create)
	timetables.GET("/availability", manageTimetables, h.Timetables.Availability)
	timetables.GET("/:id", view, h.Timetables.Get)
	timetables.GET("/:id/export.pdf", view, h.Timetables.ExportPDF)
	timetables.PUT("/:id/slots", manageTimetables, h.Timetables.AssignSlot)
	timetables.DELETE("/:id/slots/:day/:period", manageTimetables, h.Timetables.ClearSlot)
	timetables.PATCH("/:id/structure", manageTimetables, h.Timetables.Resize)
	timetables.DELETE("/:id", manageTimetables, h.Timetables.Delete)

	secured.GET("/teachers/:id/timetable", middleware.RequireCapabilityOrSelf("id", models.CapViewTimetables), h.Timetables.TeacherWeek)

	quizzes := secured.Group("/quizzes")
	quizzes.POST("", manageQuizzes, h.Quizzes.Create)
	quizzes.GET("/:id", quizAccess, h.Quizzes.Get)
	quizzes.GET("/:id/eligibility", quizAccess, h.Quizzes.Eligibility)
	quizzes.POST("/:id/submissions", takeQuizzes, h.Quizzes.Submit)
	quizzes.GET("/:id/submissions", quizAccess, h.Quizzes.ListSubmissions)

	notifications := secured.Group("/notifications")
	notifications.GET("", h.Notifications.List)
	notifications.PATCH("/:id/read", h.Notifications.MarkRead)

	return r
}
