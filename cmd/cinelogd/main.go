package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/time/rate"
	"gopkg.in/natefinch/lumberjack.v2"

	"cinelog/api"
	"cinelog/config"
	"cinelog/handlers"
	"cinelog/internal/backend"
	"cinelog/internal/localstore"
	"cinelog/internal/querycache"
	"cinelog/services/catalog"
	"cinelog/services/library"
	"cinelog/services/profiles"
	"cinelog/services/reviews"
	"cinelog/services/sessions"
	"cinelog/utils"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("[main] config: %v", err)
	}
	setupLogging(cfg)

	if err := run(cfg); err != nil {
		log.Fatalf("[main] %v", err)
	}
}

func setupLogging(cfg *config.Config) {
	if cfg.Logging.File == "" {
		return
	}
	rotator := &lumberjack.Logger{
		Filename:   cfg.Logging.File,
		MaxSize:    cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAge:     cfg.Logging.MaxAgeDays,
		Compress:   true,
	}
	log.SetOutput(io.MultiWriter(os.Stderr, rotator))
}

func run(cfg *config.Config) error {
	cache := querycache.New(cfg.Cache.EvictAfter)
	defer cache.Close()

	store, closeStore, err := buildStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	sessionsSvc, err := sessions.NewService(store, cfg.DataDir)
	if err != nil {
		return fmt.Errorf("sessions: %w", err)
	}
	if client, ok := store.(*backend.Client); ok {
		client.SetTokenSource(sessionsSvc.Token)
	}

	local, err := localstore.Open(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("localstore: %w", err)
	}

	catalogSvc := catalog.NewService(cfg.TMDB.Token, cfg.TMDB.Language, cfg.TMDB.BaseURL, cache, catalog.TTLs{
		Search:    cfg.Cache.SearchTTL,
		List:      cfg.Cache.ListTTL,
		Details:   cfg.Cache.DetailsTTL,
		Reference: cfg.Cache.ReferenceTTL,
	})
	librarySvc := library.NewService(store, local, cache, sessionsSvc)
	reviewsSvc := reviews.NewService(store, cache, sessionsSvc)
	profilesSvc := profiles.NewService(store, cache, sessionsSvc)

	// Drop user-scoped cache entries whenever the identity changes so the
	// next session never renders the previous user's data.
	sessionChanges, unsubscribe := sessionsSvc.Subscribe()
	defer unsubscribe()
	go func() {
		for session := range sessionChanges {
			for _, prefix := range []string{"library", "myreview", "profile"} {
				cache.Invalidate(querycache.PrefixPredicate(prefix))
			}
			if session.UserID == "" {
				log.Printf("[main] cleared user caches after sign-out")
			} else {
				log.Printf("[main] cleared user caches for new session %s", session.UserID)
			}
		}
	}()

	router := utils.NewRouter()
	limiter := api.NewClientLimiter(rate.Limit(cfg.RateLimit.PerSecond), cfg.RateLimit.Burst)

	apiRouter := router.PathPrefix("/api").Subrouter()
	apiRouter.Use(api.RateLimitMiddleware(limiter))
	apiRouter.Use(api.OptionalSessionMiddleware(store))

	authH := handlers.NewAuthHandler(sessionsSvc)
	apiRouter.HandleFunc("/auth/signup", authH.SignUp).Methods(http.MethodPost)
	apiRouter.HandleFunc("/auth/signin", authH.SignIn).Methods(http.MethodPost)
	apiRouter.HandleFunc("/auth/signout", authH.SignOut).Methods(http.MethodPost)
	apiRouter.HandleFunc("/auth/session", authH.Session).Methods(http.MethodGet)

	catalogH := handlers.NewCatalogHandler(catalogSvc)
	apiRouter.HandleFunc("/home", catalogH.Home).Methods(http.MethodGet)
	apiRouter.HandleFunc("/search", catalogH.Search).Methods(http.MethodGet)
	apiRouter.HandleFunc("/trending/{mediaType}", catalogH.Trending).Methods(http.MethodGet)
	apiRouter.HandleFunc("/discover/{mediaType}", catalogH.Discover).Methods(http.MethodGet)
	apiRouter.HandleFunc("/movies/{list}", catalogH.MovieList).Methods(http.MethodGet)
	apiRouter.HandleFunc("/details/{mediaType}/{id}", catalogH.Details).Methods(http.MethodGet)
	apiRouter.HandleFunc("/details/{mediaType}/{id}/similar", catalogH.Similar).Methods(http.MethodGet)
	apiRouter.HandleFunc("/genres/{mediaType}", catalogH.Genres).Methods(http.MethodGet)

	libraryH := handlers.NewLibraryHandler(librarySvc)
	apiRouter.HandleFunc("/library/{kind}", libraryH.List).Methods(http.MethodGet)
	apiRouter.HandleFunc("/library/{kind}", libraryH.Add).Methods(http.MethodPost)
	apiRouter.HandleFunc("/library/{kind}/toggle", libraryH.Toggle).Methods(http.MethodPost)
	apiRouter.HandleFunc("/library/{kind}/{mediaType}/{id}", libraryH.Remove).Methods(http.MethodDelete)

	reviewsH := handlers.NewReviewsHandler(reviewsSvc)
	apiRouter.HandleFunc("/reviews/{mediaType}/{id}", reviewsH.List).Methods(http.MethodGet)
	apiRouter.HandleFunc("/reviews/{mediaType}/{id}/mine", reviewsH.Mine).Methods(http.MethodGet)
	apiRouter.HandleFunc("/reviews/{mediaType}/{id}", reviewsH.Upsert).Methods(http.MethodPut)
	apiRouter.HandleFunc("/reviews/{mediaType}/{id}", reviewsH.Delete).Methods(http.MethodDelete)

	profileH := handlers.NewProfileHandler(profilesSvc)
	apiRouter.HandleFunc("/profile", profileH.Get).Methods(http.MethodGet)
	apiRouter.HandleFunc("/profile", profileH.Update).Methods(http.MethodPut)
	apiRouter.HandleFunc("/profile/avatar", profileH.UploadAvatar).Methods(http.MethodPost)

	// Locally stored avatar images.
	avatarDir := filepath.Join(cfg.DataDir, "avatars")
	router.PathPrefix("/avatars/").Handler(
		http.StripPrefix("/avatars/", http.FileServer(http.Dir(avatarDir))))

	server := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("[main] listening on %s", cfg.ListenAddr)
		errCh <- server.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case sig := <-stop:
		log.Printf("[main] received %s, shutting down", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
	}
	return nil
}

// buildStore selects the persistence backend per config.
func buildStore(cfg *config.Config) (backend.Store, func(), error) {
	switch cfg.Backend.Mode {
	case config.BackendRemote:
		client := backend.NewClient(cfg.Backend.URL, cfg.Backend.APIKey)
		return client, func() {}, nil
	default:
		dbPath := filepath.Join(cfg.DataDir, "cinelog.db")
		avatarDir := filepath.Join(cfg.DataDir, "avatars")
		store, err := backend.NewSQLiteStore(dbPath, avatarDir)
		if err != nil {
			return nil, nil, fmt.Errorf("sqlite: %w", err)
		}
		return store, func() { store.Close() }, nil
	}
}
