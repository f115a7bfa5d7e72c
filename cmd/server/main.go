// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/tahcohcat/voicepanel/config"
	"github.com/tahcohcat/voicepanel/internal/api"
	"github.com/tahcohcat/voicepanel/internal/auth"
	"github.com/tahcohcat/voicepanel/internal/logger"
	"github.com/tahcohcat/voicepanel/internal/panel"
	"github.com/tahcohcat/voicepanel/internal/tts"
	"github.com/tahcohcat/voicepanel/internal/voice"
)

func main() {
	configDir := flag.String("config", "", "directory holding config.yaml")
	hashPassword := flag.String("hash-password", "", "print the bcrypt hash of a password for auth.password_hash and exit")
	flag.Parse()

	if *hashPassword != "" {
		hash, err := auth.HashPassword(*hashPassword)
		if err != nil {
			log.Fatalf("Error hashing password: %s", err)
		}
		fmt.Println(hash)
		return
	}

	// Load config from files and environment variables
	var paths []string
	if *configDir != "" {
		paths = append(paths, *configDir)
	}
	cfg, err := config.Load(paths...)
	if err != nil {
		log.Fatalf("Error loading config: %s", err)
	}

	if err := logger.Init(cfg.Log); err != nil {
		log.Fatalf("Error initialising logger: %s", err)
	}
	defer logger.Sync()
	lg := logger.New().Named("server")

	auth.Init(cfg.Auth)
	if !auth.Enabled() {
		lg.Warn("auth.password_hash not set, the panel is open to anyone who can reach it")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	synth, err := tts.New(cfg.Tts)
	if err != nil {
		lg.WithError(err).Error("failed to create synthesizer")
		os.Exit(1)
	}
	defer synth.Close()

	registry := voice.NewRegistry(synth)
	refreshCtx, cancel := context.WithTimeout(ctx, cfg.Tts.Timeout)
	if err := registry.Refresh(refreshCtx); err != nil {
		lg.WithError(err).Warn("initial voice refresh failed, the dropdown starts empty")
	}
	cancel()
	go registry.Watch(ctx, voice.Poll(ctx, cfg.Tts.VoicesRefreshInterval))

	manager := panel.NewManager(ctx, synth, registry, cfg.Tts.Timeout, cfg.Server.PanelIdleTimeout)
	go manager.Run(time.Minute)

	r := mux.NewRouter()

	// Public routes (no authentication required)
	publicRouter := r.PathPrefix("/").Subrouter()
	publicRouter.HandleFunc("/login", auth.LoginHandler).Methods("GET", "POST")
	publicRouter.HandleFunc("/logout", auth.LogoutHandler).Methods("POST")
	publicRouter.PathPrefix("/static/").Handler(http.StripPrefix("/static/", http.FileServer(http.Dir(cfg.Server.StaticDir))))

	// Authenticated routes
	authRouter := r.PathPrefix("/").Subrouter()
	authRouter.Use(auth.AuthMiddleware)

	// API routes
	apiRouter := authRouter.PathPrefix("/api/v1").Subrouter()
	panels := api.RegisterRoutes(apiRouter, manager)
	api.RegisterVoiceRoutes(apiRouter, registry, cfg.Tts.Timeout)

	// WebSocket route, the browser half of the speech engine
	authRouter.HandleFunc("/ws", panels.WebSocket)

	// Serve the panel page
	authRouter.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, cfg.Server.IndexFile)
	}).Methods("GET")

	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.Server.Port
	}

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           c.Handler(r),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			lg.WithError(err).Warn("graceful shutdown failed")
		}
	}()

	lg.Info(fmt.Sprintf("voice panel starting on port %s with the %s synthesizer", port, synth.Name()))
	lg.Info(fmt.Sprintf("open http://localhost:%s in your browser", port))

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		lg.WithError(err).Error("server failed")
		os.Exit(1)
	}
	lg.Info("server stopped")
}
