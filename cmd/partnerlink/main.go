package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/charleshuang3/partnerlink/internal/config"
	"github.com/charleshuang3/partnerlink/internal/gormw"
	"github.com/charleshuang3/partnerlink/internal/handlers/firewall"
	"github.com/charleshuang3/partnerlink/internal/handlers/middleware"
	"github.com/charleshuang3/partnerlink/internal/handlers/partner"
	"github.com/charleshuang3/partnerlink/internal/handlers/profile"
	"github.com/charleshuang3/partnerlink/internal/linkage"
	"github.com/charleshuang3/partnerlink/internal/storage"
)

var (
	configPath = flag.String("c", os.Getenv("CONFIG_PATH"), "Path to configuration file")
)

func newServer(port uint, handler http.Handler) *http.Server {
	return &http.Server{
		Addr: fmt.Sprintf(":%d", port),
		// Good practice to set timeouts to avoid Slowloris attacks.
		WriteTimeout: time.Second * 15,
		ReadTimeout:  time.Second * 15,
		IdleTimeout:  time.Second * 60,
		Handler:      handler,
	}
}

func serve(srv *http.Server) {
	log.Info().Msgf("start server at %q", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("Failed to start server")
	}
}

func main() {
	flag.Parse()
	if *configPath == "" {
		log.Fatal().Msg("Config path must be provided via CONFIG_PATH env var or -c flag")
	}

	// Load configuration
	cfg := config.LoadConfig(*configPath)

	// cron schedule
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create scheduler")
	}
	scheduler.Start()

	// Initialize database
	db, err := gormw.Open(&cfg.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}
	if err := db.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to migrate database")
	}

	clock := clockwork.NewRealClock()
	storage.RegisterInvitationSweeper(scheduler, db, clock, cfg.Partner.SweepInterval, cfg.Partner.Retention)

	profiles := storage.NewProfileStorage(db)
	service := linkage.NewService(&cfg.Partner, db, profiles, clock)
	limiter := storage.NewVerifyAttemptLimiter(cfg.Partner.VerifyAttempts, cfg.Partner.VerifyWindow)

	auth, err := middleware.NewAuthenticator(context.Background(), &cfg.Auth, profiles)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create authenticator")
	}

	// Set up Gin router
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	var fw *firewall.Firewall
	if cfg.Firewall.Enabled() {
		fw = firewall.New(&cfg.Firewall)
		router.Use(fw.Middleware())
	}

	if cfg.Metrics.Enabled {
		router.GET(cfg.Metrics.Path, gin.WrapH(promhttp.Handler()))
	}

	authed := router.Group("/", auth.Middleware())
	partner.New(service, limiter).RegisterHandlers(authed)
	profile.New(profiles).RegisterHandlers(authed)

	// Start server
	srv := newServer(cfg.Port, router)
	go serve(srv)

	var adminSrv *http.Server
	if fw != nil && cfg.AdminPort != 0 {
		adminRouter := gin.Default()
		fw.RegisterHandlers(adminRouter.Group("/"))
		adminSrv = newServer(cfg.AdminPort, adminRouter)
		go serve(adminSrv)
	}

	c := make(chan os.Signal, 1)
	// We'll accept graceful shutdowns when quit via SIGINT (Ctrl+C)
	// SIGKILL, SIGQUIT or SIGTERM (Ctrl+/) will not be caught.
	signal.Notify(c, os.Interrupt)

	// Block until we receive our signal.
	<-c

	// Create a deadline to wait for.
	wait := time.Second * 15
	ctx, cancel := context.WithTimeout(context.Background(), wait)
	defer cancel()
	// Doesn't block if no connections, but will otherwise wait
	// until the timeout deadline.
	srv.Shutdown(ctx)
	if adminSrv != nil {
		adminSrv.Shutdown(ctx)
	}
	if err := scheduler.Shutdown(); err != nil {
		log.Error().Err(err).Msg("Failed to stop scheduler")
	}

	log.Info().Msg("shutting down")
	os.Exit(0)
}
