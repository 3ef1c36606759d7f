package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"classportal/internal/config"
	"classportal/internal/queue"
	"classportal/internal/schedule"
	"classportal/internal/store"
	"classportal/internal/timetable"
)

// Worker consumes summary-refresh messages and rebuilds the cached
// per-subject attendance summary for each student that marked attendance.
func main() {
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
	}()

	db, err := store.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
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
		log.Fatalf("bad SEMESTER_START: %v", err)
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

	messages, err := q.Consume(ctx)
	if err != nil {
		log.Fatalf("queue consume init failed: %v", err)
	}

	log.Println("worker started, waiting for messages...")
	for msg := range messages {
		if msg.Type != queue.TypeSummaryRefresh {
			continue
		}

		studentID := string(msg.Body)
		sum, err := svc.RefreshSummary(ctx, studentID)
		if err != nil {
			log.Printf("refresh summary for %s failed: %v", studentID, err)
			continue
		}
		if sum.Skipped > 0 {
			log.Printf("student %s has %d records pointing at removed classes", studentID, sum.Skipped)
		}
		log.Printf("refreshed summary for %s (%d subjects)", studentID, len(sum.Subjects))
	}

	log.Println("worker stopped")
}
