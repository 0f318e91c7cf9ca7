package httpapi

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"roster/internal/employee"
	"roster/internal/httpmiddleware"
	"roster/internal/roster"
	"roster/internal/student"
)

// DefaultImportLimit caps an import upload unless WithImportLimit says otherwise.
const DefaultImportLimit = 8 << 20

// HealthCheck reports whether one dependency is reachable.
type HealthCheck func(ctx context.Context) bool

// Handler serves the student and employee stores over HTTP.
type Handler struct {
	students        *student.Service
	employees       *employee.Service
	log             *zap.Logger
	allowHardDelete bool
	importLimit     int64
	checks          map[string]HealthCheck
}

// Option configures a Handler.
type Option func(*Handler)

// WithHardDelete exposes DELETE /api/employees/:id.
func WithHardDelete(enabled bool) Option {
	return func(h *Handler) { h.allowHardDelete = enabled }
}

// WithImportLimit caps the upload size of POST /api/students/import. Values of
// zero or less keep the default.
func WithImportLimit(maxBytes int64) Option {
	return func(h *Handler) {
		if maxBytes > 0 {
			h.importLimit = maxBytes
		}
	}
}

// WithHealthCheck adds a dependency to /healthz.
func WithHealthCheck(name string, check HealthCheck) Option {
	return func(h *Handler) { h.checks[name] = check }
}

// New builds a handler over both services.
func New(students *student.Service, employees *employee.Service, log *zap.Logger, opts ...Option) *Handler {
	h := &Handler{
		students:    students,
		employees:   employees,
		log:         log,
		importLimit: DefaultImportLimit,
		checks:      map[string]HealthCheck{},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register mounts every route on r.
func (h *Handler) Register(r gin.IRouter) {
	r.GET("/healthz", h.health)

	api := r.Group("/api")

	s := api.Group("/students")
	s.POST("", h.addStudent)
	s.GET("", h.listActiveStudents)
	s.GET("/all", h.listAllStudents)
	s.GET("/export.csv", h.exportStudentsCSV)
	s.GET("/export.xlsx", h.exportStudentsXLSX)
	s.GET("/dashboard", h.studentDashboard)
	s.POST("/import", httpmiddleware.BodyLimit(h.importLimit), h.importStudents)
	s.GET("/:id", h.getStudent)
	s.PUT("/:id", h.updateStudent)
	s.POST("/:id/deactivate", h.deactivateStudent)
	s.POST("/:id/attendance", h.recordAttendance)
	s.GET("/:id/attendance", h.listAttendance)
	s.POST("/:id/marks", h.recordMarks)
	s.GET("/:id/marks", h.listMarks)

	e := api.Group("/employees")
	e.POST("", h.addEmployee)
	e.GET("", h.listEmployees)
	e.GET("/export.csv", h.exportEmployeesCSV)
	e.GET("/dashboard", h.employeeDashboard)
	e.GET("/:id", h.getEmployee)
	e.PUT("/:id", h.updateEmployee)
	if h.allowHardDelete {
		e.DELETE("/:id", h.removeEmployee)
	}
}

// health replies 200 when every check passes and 503 otherwise. Data maps
// each check name to its result.
func (h *Handler) health(c *gin.Context) {
	status, message := http.StatusOK, "ok"
	results := make(map[string]bool, len(h.checks))
	for name, check := range h.checks {
		healthy := check(c.Request.Context())
		results[name] = healthy
		if !healthy {
			h.log.Warn("health check failed", zap.String("check", name))
			status, message = http.StatusServiceUnavailable, "degraded"
		}
	}
	code := 0
	if status != http.StatusOK {
		code = status
	}
	c.JSON(status, Response{Code: code, Message: message, Data: results})
}

func pathID(c *gin.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, roster.Invalid("id", "must be a positive integer")
	}
	return id, nil
}

func bindJSON(c *gin.Context, dest any) error {
	if err := c.ShouldBindJSON(dest); err != nil {
		return roster.Invalid("body", "malformed JSON: "+err.Error())
	}
	return nil
}

func attachment(c *gin.Context, filename, contentType string, body []byte) {
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, contentType, body)
}
