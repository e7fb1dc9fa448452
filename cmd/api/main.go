package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"vendora.dev/internal/audit"
	"vendora.dev/internal/auth"
	"vendora.dev/internal/files"
	"vendora.dev/internal/httpapi"
	"vendora.dev/internal/obs"
	"vendora.dev/internal/ratelimit"
	"vendora.dev/internal/reset"
)

var (
	version = "0.3.0"
	commit  = "none"
)

// Documented per-minute ceilings for each route class.
const (
	loginPerMinute    = 10
	refreshPerMinute  = 30
	forgotPerMinute   = 3
	resetPerMinute    = 5
	downloadPerMinute = 60
)

func main() {
	_ = godotenv.Load()

	obs.Init()
	obs.InitBuildInfo(version, commit)

	dsn := os.Getenv("VENDORA_PG_DSN")
	if dsn == "" {
		log.Fatal("VENDORA_PG_DSN is required")
	}
	secret := os.Getenv("VENDORA_TOKEN_SECRET")
	if secret == "" {
		log.Fatal("VENDORA_TOKEN_SECRET is required")
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	// Durable audit trail with async dispatch.
	recorder := audit.NewRecorder(audit.NewPGStore(db))

	authSvc, err := auth.NewService(auth.NewPGStore(db),
		auth.WithTokenSecret(secret),
	)
	if err != nil {
		log.Fatalf("auth service: %v", err)
	}

	resetOpts := []reset.Option{}
	if u := os.Getenv("VENDORA_RESET_URL"); u != "" {
		resetOpts = append(resetOpts, reset.WithResetURL(u))
	}
	resetSvc := reset.NewService(auth.NewPGStore(db), authSvc, recorder, resetOpts...)

	signer, err := files.NewHMACSigner(
		envOr("VENDORA_FILE_BASE_URL", "http://localhost:8080/files"),
		envOr("VENDORA_FILE_SIGNING_SECRET", secret),
	)
	if err != nil {
		log.Fatalf("file signer: %v", err)
	}
	fileOpts := []files.Option{}
	if raw := os.Getenv("VENDORA_LINK_TTL_SECONDS"); raw != "" {
		secs, err := strconv.Atoi(raw)
		if err != nil {
			log.Fatalf("VENDORA_LINK_TTL_SECONDS: %v", err)
		}
		fileOpts = append(fileOpts, files.WithLinkTTL(time.Duration(secs)*time.Second))
	}
	fileSvc := files.NewService(files.NewPGStore(db), signer, recorder, fileOpts...)

	limits, closeLimits := buildLimiters()
	defer closeLimits()

	api := httpapi.New(authSvc, resetSvc, fileSvc, recorder, limits,
		httpapi.ReadyProbe{DB: db}, version)

	srv := &http.Server{
		Addr:              envOr("VENDORA_ADDR", ":8080"),
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting vendora-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	// Drain buffered audit entries before dropping the DB pool.
	recorder.Close()
	_ = db.Close()
	log.Println("Stopped")
}

// buildLimiters prefers the shared Redis window when VENDORA_REDIS_ADDR is
// set, falling back to per-process buckets.
func buildLimiters() (httpapi.Limiters, func()) {
	if addr := os.Getenv("VENDORA_REDIS_ADDR"); addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: os.Getenv("VENDORA_REDIS_PASSWORD"),
		})
		return httpapi.Limiters{
			Login:     ratelimit.NewRedis(client, "rl:login", loginPerMinute),
			Refresh:   ratelimit.NewRedis(client, "rl:refresh", refreshPerMinute),
			Forgot:    ratelimit.NewRedis(client, "rl:forgot", forgotPerMinute),
			Reset:     ratelimit.NewRedis(client, "rl:reset", resetPerMinute),
			Downloads: ratelimit.NewRedis(client, "rl:downloads", downloadPerMinute),
		}, func() { _ = client.Close() }
	}

	login := ratelimit.NewMemory(loginPerMinute)
	refresh := ratelimit.NewMemory(refreshPerMinute)
	forgot := ratelimit.NewMemory(forgotPerMinute)
	rst := ratelimit.NewMemory(resetPerMinute)
	downloads := ratelimit.NewMemory(downloadPerMinute)
	closeAll := func() {
		login.Close()
		refresh.Close()
		forgot.Close()
		rst.Close()
		downloads.Close()
	}
	return httpapi.Limiters{
		Login:     login,
		Refresh:   refresh,
		Forgot:    forgot,
		Reset:     rst,
		Downloads: downloads,
	}, closeAll
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
