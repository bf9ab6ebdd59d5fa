// Package handlers wires the REST surface around the streaming
// endpoint: health, metrics, the roster and attendance queries.
package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/example/face-attendance/internal/repository"
)

const (
	defaultHistoryDays = 7
	maxHistoryDays     = 31
	clockFormat        = "03:04 PM"
)

// StudentDirectory exposes the enrolled roster.
type StudentDirectory interface {
	ListStudents(ctx context.Context) ([]repository.Student, error)
	CreateStudent(ctx context.Context, name, code, email string, embedding []float32) (*repository.Student, error)
}

// AttendanceLog exposes recorded attendance marks.
type AttendanceLog interface {
	TodaysRecords(ctx context.Context, now time.Time) ([]repository.AttendanceRecord, error)
	RecordsBetween(ctx context.Context, from, to time.Time) ([]repository.AttendanceRecord, error)
}

// Deps carries everything the routes need.
type Deps struct {
	Students   StudentDirectory
	Attendance AttendanceLog
	Stream     gin.HandlerFunc
	Auth       gin.HandlerFunc
	Metrics    http.Handler
	Logger     *zap.Logger
}

// RegisterRoutes wires the HTTP handlers to the Gin router.
func RegisterRoutes(router *gin.Engine, deps Deps) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics))
	}

	router.GET("/ws", deps.Auth, deps.Stream)

	api := router.Group("/api", deps.Auth)
	api.GET("/students", listStudents(deps))
	api.POST("/students", enrollStudent(deps))
	api.GET("/attendance/today", todaysAttendance(deps))
	api.GET("/attendance/history", attendanceHistory(deps))
}

type enrollRequest struct {
	Name      string    `json:"name" binding:"required"`
	Code      string    `json:"code" binding:"required"`
	Email     string    `json:"email"`
	Embedding []float32 `json:"embedding" binding:"required"`
}

func enrollStudent(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req enrollRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "name, code and embedding are required"})
			return
		}

		student, err := deps.Students.CreateStudent(c.Request.Context(), req.Name, req.Code, req.Email, req.Embedding)
		if err != nil {
			deps.Logger.Error("failed to enroll student", zap.String("code", req.Code), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to enroll student"})
			return
		}

		c.JSON(http.StatusCreated, gin.H{
			"id":   student.ID,
			"name": student.Name,
			"code": student.Code,
		})
	}
}

func listStudents(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		students, err := deps.Students.ListStudents(c.Request.Context())
		if err != nil {
			deps.Logger.Error("failed to list students", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load students"})
			return
		}

		out := make([]gin.H, 0, len(students))
		for _, s := range students {
			out = append(out, gin.H{
				"id":        s.ID,
				"name":      s.Name,
				"code":      s.Code,
				"email":     s.Email,
				"is_active": s.IsActive,
			})
		}
		c.JSON(http.StatusOK, gin.H{"students": out, "count": len(out)})
	}
}

func todaysAttendance(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		now := time.Now()

		records, err := deps.Attendance.TodaysRecords(ctx, now)
		if err != nil {
			deps.Logger.Error("failed to load today's attendance", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load attendance"})
			return
		}

		names, active, err := rosterIndex(ctx, deps.Students)
		if err != nil {
			deps.Logger.Error("failed to load roster", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load attendance"})
			return
		}

		day := summarizeDay(now, records, names, active)
		c.JSON(http.StatusOK, day)
	}
}

func attendanceHistory(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		days := defaultHistoryDays
		if raw := c.Query("days"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed < 1 || parsed > maxHistoryDays {
				c.JSON(http.StatusBadRequest, gin.H{"error": "days must be between 1 and 31"})
				return
			}
			days = parsed
		}

		now := time.Now()
		todayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
		from := todayStart.AddDate(0, 0, -(days - 1))

		records, err := deps.Attendance.RecordsBetween(ctx, from, todayStart.AddDate(0, 0, 1))
		if err != nil {
			deps.Logger.Error("failed to load attendance history", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load attendance"})
			return
		}

		names, active, err := rosterIndex(ctx, deps.Students)
		if err != nil {
			deps.Logger.Error("failed to load roster", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load attendance"})
			return
		}

		byDay := make(map[string][]repository.AttendanceRecord)
		for _, r := range records {
			key := r.Timestamp.In(now.Location()).Format("2006-01-02")
			byDay[key] = append(byDay[key], r)
		}

		// Newest day first, empty days included.
		summaries := make([]gin.H, 0, days)
		for i := 0; i < days; i++ {
			day := todayStart.AddDate(0, 0, -i)
			summaries = append(summaries, summarizeDay(day, byDay[day.Format("2006-01-02")], names, active))
		}

		c.JSON(http.StatusOK, gin.H{"days": summaries, "count": len(summaries)})
	}
}

type rosterEntry struct {
	Name string
	Code string
}

func rosterIndex(ctx context.Context, dir StudentDirectory) (map[int64]rosterEntry, int, error) {
	students, err := dir.ListStudents(ctx)
	if err != nil {
		return nil, 0, err
	}
	names := make(map[int64]rosterEntry, len(students))
	active := 0
	for _, s := range students {
		names[s.ID] = rosterEntry{Name: s.Name, Code: s.Code}
		if s.IsActive {
			active++
		}
	}
	return names, active, nil
}

func summarizeDay(day time.Time, records []repository.AttendanceRecord, names map[int64]rosterEntry, activeStudents int) gin.H {
	present := make([]gin.H, 0, len(records))
	for _, r := range records {
		entry := names[r.StudentID]
		present = append(present, gin.H{
			"student_id": r.StudentID,
			"name":       entry.Name,
			"code":       entry.Code,
			"time":       r.Timestamp.In(day.Location()).Format(clockFormat),
			"status":     r.Status,
		})
	}

	absent := activeStudents - len(present)
	if absent < 0 {
		absent = 0
	}

	return gin.H{
		"date":          day.Format("2006-01-02"),
		"day_name":      day.Weekday().String(),
		"present":       present,
		"present_count": len(present),
		"absent_count":  absent,
	}
}
