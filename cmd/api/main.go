package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"classportal/internal/auth"
	"classportal/internal/cloudinary"
	"classportal/internal/config"
	"classportal/internal/httpmiddleware"
	"classportal/internal/queue"
	"classportal/internal/schedule"
	"classportal/internal/store"
	"classportal/internal/timetable"
	"classportal/internal/weather"
)

var marksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "portal_attendance_marks_total",
	Help: "Attendance marks recorded, by status.",
}, []string{"status"})

func main() {
	cfg := config.Load()

	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

func runHTTP(cfg config.App) error {
	ctx := context.Background()

	db, err := store.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		// A failed ping still yields a usable pool that may recover; a nil
		// pool (bad DSN) never will.
		if db == nil {
			return fmt.Errorf("db open failed: %w", err)
		}
		log.Printf("warning: db not reachable: %v", err)
	}
	defer db.Close()

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer redisClient.Close()

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "portal:refresh")
	}

	loc := cfg.Location()
	semStart, err := cfg.SemesterStartDate(loc)
	if err != nil {
		return err
	}

	repo := timetable.NewRepository(db.Client)
	svc := timetable.NewService(
		repo,
		timetable.RedisCache{Client: redisClient.Client},
		loc,
		semStart,
		schedule.ParseDuplicatePolicy(cfg.DuplicatePolicy),
		cfg.SummaryCacheTTL,
	)
	weatherClient := weather.New(cfg.WeatherURL, cfg.WeatherLat, cfg.WeatherLon)

	// Cloudinary client (nil when not configured)
	var cdnClient *cloudinary.Client
	if cfg.CloudinaryCloudName != "" && cfg.CloudinaryAPIKey != "" && cfg.CloudinaryAPISecret != "" {
		cdnClient = cloudinary.New(cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret, cfg.CloudinaryFolder)
		log.Println("Cloudinary configured:", cfg.CloudinaryCloudName)
	} else {
		log.Println("Cloudinary not configured (CLOUDINARY_CLOUD_NAME / API_KEY / API_SECRET not set)")
	}

	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(corsMiddleware())
	r.Use(securityHeaders())
	r.Use(httpmiddleware.NewSimpleTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin).GinMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/healthz", func(c *gin.Context) {
		redisHealthy := redisClient.Healthy(c.Request.Context())
		dbHealthy := db.Client.PingContext(c.Request.Context()) == nil
		status := http.StatusOK
		if !redisHealthy || !dbHealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"status": "ok", "redis": redisHealthy, "db": dbHealthy})
	})

	r.POST("/v1/auth/login", func(c *gin.Context) {
		var req struct {
			Email    string `json:"email" binding:"required,email"`
			Password string `json:"password" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		profile, err := repo.GetProfileByEmail(c.Request.Context(), req.Email)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
			return
		}
		if profile == nil || auth.CheckPassword(profile.PasswordHash, req.Password) != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}

		tokens, err := auth.Issue(profile.ID, profile.Role, cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL, cfg.RefreshTTL)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
			return
		}
		_ = repo.SaveRefreshToken(c.Request.Context(), profile.ID, tokens.RefreshToken, tokens.RefreshExp)

		c.JSON(http.StatusOK, gin.H{
			"access_token":  tokens.AccessToken,
			"refresh_token": tokens.RefreshToken,
			"expires_at":    tokens.AccessExp.Unix(),
			"role":          profile.Role,
			"batch_id":      profile.BatchID,
		})
	})

	r.GET("/v1/announcements", func(c *gin.Context) {
		limit := 5
		if v := c.Query("limit"); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil {
				limit = parsed
			}
		}
		items, err := repo.ListAnnouncements(c.Request.Context(), limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"announcements": items})
	})

	r.GET("/v1/weather", func(c *gin.Context) {
		current, err := weatherClient.Fetch(c.Request.Context())
		if err != nil {
			log.Printf("weather fetch failed: %v", err)
			c.JSON(http.StatusBadGateway, gin.H{"error": "weather data unavailable"})
			return
		}
		c.JSON(http.StatusOK, current)
	})

	r.GET("/v1/syllabuses", func(c *gin.Context) {
		items, err := repo.ListSyllabuses(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"syllabuses": items})
	})

	r.GET("/v1/batches", func(c *gin.Context) {
		batches, err := repo.ListBatches(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"batches": batches})
	})

	r.GET("/v1/batches/:id/schedule", func(c *gin.Context) {
		entries, err := repo.BatchTimetable(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"schedule": entries})
	})

	r.GET("/v1/batches/:id/live", func(c *gin.Context) {
		info, err := svc.LiveInfo(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, info)
	})

	me := r.Group("/v1/me", auth.RequireAuth(cfg.JWTSigningKey, cfg.JWTIssuer))

	me.GET("/today", func(c *gin.Context) {
		claims, _ := auth.ClaimsFrom(c)
		view, err := svc.Today(c.Request.Context(), claims.Subject)
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, view)
	})

	me.GET("/summary", func(c *gin.Context) {
		claims, _ := auth.ClaimsFrom(c)
		sum, err := svc.Summary(c.Request.Context(), claims.Subject)
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, sum)
	})

	me.POST("/attendance", func(c *gin.Context) {
		var req struct {
			ScheduleID string `json:"schedule_id" binding:"required"`
			Status     string `json:"status" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		claims, _ := auth.ClaimsFrom(c)
		rec, err := svc.MarkAttendance(c.Request.Context(), claims.Subject, req.ScheduleID, req.Status)
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		marksTotal.WithLabelValues(rec.Status).Inc()
		if err := q.Publish(ctx, queue.Message{Type: queue.TypeSummaryRefresh, Body: []byte(claims.Subject)}); err != nil {
			log.Printf("queue publish failed: %v", err)
		}
		c.JSON(http.StatusCreated, rec)
	})

	me.PATCH("/attendance/:id", func(c *gin.Context) {
		claims, _ := auth.ClaimsFrom(c)
		rec, err := svc.ToggleAttendance(c.Request.Context(), claims.Subject, c.Param("id"))
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		if err := q.Publish(ctx, queue.Message{Type: queue.TypeSummaryRefresh, Body: []byte(claims.Subject)}); err != nil {
			log.Printf("queue publish failed: %v", err)
		}
		c.JSON(http.StatusOK, rec)
	})

	registerAdminRoutes(r, cfg, repo, cdnClient)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Starting server on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced shutdown: %v", err)
	}

	log.Println("Server exited")
	return nil
}

func registerAdminRoutes(r *gin.Engine, cfg config.App, repo *timetable.Repository, cdnClient *cloudinary.Client) {
	admin := r.Group("/v1/admin", auth.RequireAuth(cfg.JWTSigningKey, cfg.JWTIssuer, auth.RoleAdmin))

	admin.GET("/teachers", func(c *gin.Context) {
		items, err := repo.ListTeachers(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"teachers": items})
	})

	admin.POST("/teachers", func(c *gin.Context) {
		var req struct {
			Name string `json:"name" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		t, err := repo.InsertTeacher(c.Request.Context(), req.Name)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, t)
	})

	admin.DELETE("/teachers/:id", deleteHandler(func(c *gin.Context) error {
		return repo.DeleteTeacher(c.Request.Context(), c.Param("id"))
	}))

	admin.GET("/subjects", func(c *gin.Context) {
		items, err := repo.ListSubjects(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"subjects": items})
	})

	admin.POST("/subjects", func(c *gin.Context) {
		var req struct {
			Name string `json:"name" binding:"required"`
			Code string `json:"code" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		s, err := repo.InsertSubject(c.Request.Context(), req.Name, req.Code)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, s)
	})

	admin.DELETE("/subjects/:id", deleteHandler(func(c *gin.Context) error {
		return repo.DeleteSubject(c.Request.Context(), c.Param("id"))
	}))

	admin.POST("/batches", func(c *gin.Context) {
		var req struct {
			YearLevel int    `json:"year_level" binding:"required"`
			BatchName string `json:"batch_name" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		b, err := repo.InsertBatch(c.Request.Context(), req.YearLevel, req.BatchName)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, b)
	})

	admin.DELETE("/batches/:id", deleteHandler(func(c *gin.Context) error {
		return repo.DeleteBatch(c.Request.Context(), c.Param("id"))
	}))

	admin.GET("/time-slots", func(c *gin.Context) {
		items, err := repo.ListTimeSlots(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"time_slots": items})
	})

	admin.POST("/time-slots", func(c *gin.Context) {
		var req struct {
			PeriodName string `json:"period_name" binding:"required"`
			StartTime  string `json:"start_time" binding:"required"`
			EndTime    string `json:"end_time" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		s, err := repo.InsertTimeSlot(c.Request.Context(), req.PeriodName, req.StartTime, req.EndTime)
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, s)
	})

	admin.DELETE("/time-slots/:id", deleteHandler(func(c *gin.Context) error {
		return repo.DeleteTimeSlot(c.Request.Context(), c.Param("id"))
	}))

	admin.GET("/holidays", func(c *gin.Context) {
		items, err := repo.ListHolidays(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"holidays": items})
	})

	admin.POST("/holidays", func(c *gin.Context) {
		var req struct {
			Date     string `json:"date" binding:"required"`
			Occasion string `json:"occasion" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if _, err := time.Parse(schedule.DateFormat, req.Date); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
			return
		}
		h, err := repo.InsertHoliday(c.Request.Context(), req.Date, req.Occasion)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, h)
	})

	admin.DELETE("/holidays/:date", deleteHandler(func(c *gin.Context) error {
		return repo.DeleteHoliday(c.Request.Context(), c.Param("date"))
	}))

	admin.POST("/announcements", func(c *gin.Context) {
		var req struct {
			Title   string `json:"title" binding:"required"`
			Content string `json:"content"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		a, err := repo.InsertAnnouncement(c.Request.Context(), req.Title, req.Content)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, a)
	})

	admin.PUT("/announcements/:id", func(c *gin.Context) {
		var req struct {
			Title   string `json:"title" binding:"required"`
			Content string `json:"content"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := repo.UpdateAnnouncement(c.Request.Context(), c.Param("id"), req.Title, req.Content); err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		c.Status(http.StatusNoContent)
	})

	admin.DELETE("/announcements/:id", deleteHandler(func(c *gin.Context) error {
		return repo.DeleteAnnouncement(c.Request.Context(), c.Param("id"))
	}))

	admin.PUT("/syllabuses", func(c *gin.Context) {
		var req struct {
			YearLevel int    `json:"year_level" binding:"required"`
			URL       string `json:"syllabus_url" binding:"required,url"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		s, err := repo.UpsertSyllabus(c.Request.Context(), req.YearLevel, req.URL)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, s)
	})

	// Upload endpoint — uploads a syllabus file to Cloudinary and stores the
	// resulting URL for the year level.
	admin.POST("/syllabuses/upload", func(c *gin.Context) {
		if cdnClient == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "file storage not configured"})
			return
		}
		yearLevel, err := strconv.Atoi(c.PostForm("year_level"))
		if err != nil || yearLevel <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "year_level field required"})
			return
		}
		file, header, err := c.Request.FormFile("file")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "file field required"})
			return
		}
		defer file.Close()
		data, err := io.ReadAll(file)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "read file failed"})
			return
		}

		result, err := cdnClient.UploadFile(data, header.Filename)
		if err != nil {
			log.Printf("cloudinary upload failed: %v", err)
			c.JSON(http.StatusBadGateway, gin.H{"error": "file upload failed"})
			return
		}

		s, err := repo.UpsertSyllabus(c.Request.Context(), yearLevel, result.SecureURL)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"syllabus": s, "bytes": result.Bytes})
	})

	admin.DELETE("/syllabuses/:id", deleteHandler(func(c *gin.Context) error {
		return repo.DeleteSyllabus(c.Request.Context(), c.Param("id"))
	}))

	admin.POST("/schedules", func(c *gin.Context) {
		var req struct {
			BatchID    string  `json:"batch_id" binding:"required"`
			DayOfWeek  int     `json:"day_of_week" binding:"required,min=1,max=7"`
			TimeSlotID string  `json:"time_slot_id" binding:"required"`
			SubjectID  string  `json:"subject_id" binding:"required"`
			TeacherID  *string `json:"teacher_id"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		id, err := repo.InsertScheduleEntry(c.Request.Context(), req.BatchID, req.DayOfWeek, req.TimeSlotID, req.SubjectID, req.TeacherID)
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"id": id})
	})

	admin.DELETE("/schedules/:id", deleteHandler(func(c *gin.Context) error {
		return repo.DeleteScheduleEntry(c.Request.Context(), c.Param("id"))
	}))
}

func deleteHandler(del func(c *gin.Context) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := del(c); err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	var parseErr *schedule.ParseError
	switch {
	case errors.Is(err, timetable.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, timetable.ErrScheduleClash), errors.Is(err, timetable.ErrDuplicateMark):
		return http.StatusConflict
	case errors.Is(err, timetable.ErrBadStatus), errors.Is(err, timetable.ErrInvalidSlot), errors.As(err, &parseErr):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// CORS middleware for browser requests
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// Security headers middleware
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-XSS-Protection", "1; mode=block")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		// Only add HSTS in production
		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}
