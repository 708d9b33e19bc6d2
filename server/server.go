package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"remixai/cache"
	"remixai/config"
	"remixai/core/audio"
	"remixai/core/remix"
	"remixai/logger"
	"remixai/storage"
	"remixai/store"

	"github.com/gorilla/mux"
)

// Start initializes dependencies and runs the HTTP server until SIGINT or
// SIGTERM, then shuts down gracefully.
func Start() {
	cfg := config.Load()

	logger.Init(logger.Config{
		Level:      cfg.LogLevel,
		OutputPath: cfg.LogPath,
		MaxSize:    50,
		MaxBackups: 5,
		MaxAge:     14,
	})

	// Optional collaborators: the pipeline runs fine without them.
	if err := cache.Connect(cfg); err != nil {
		logger.Warn("Redis unavailable, job status disabled", logger.ErrorField(err))
	}
	defer cache.Close()

	if err := storage.InitMinio(cfg); err != nil {
		logger.Warn("MinIO unavailable, track archiving disabled", logger.ErrorField(err))
	}

	ensureDirExists(cfg.UploadDir)
	ensureDirExists(cfg.OutputDir)

	st := store.NewProjectStore(cfg.SnapshotPath, cfg.ProjectName, cfg.OutputDir)
	if err := st.Load(); err != nil {
		logger.Warn("snapshot restore failed, continuing with empty project", logger.ErrorField(err))
	}

	loader := audio.NewLoader(cfg.FFmpegPath, cfg.SampleRate)
	pipeline := remix.New(cfg, st, loader,
		func() (remix.Separator, error) {
			return remix.NewDemucsSeparator(cfg.PythonPath, cfg.DemucsModel, loader), nil
		},
		func() (remix.Generator, error) {
			return remix.NewMusicGenClient(cfg.MusicGenURL,
				time.Duration(cfg.MusicGenTimeout)*time.Second, loader), nil
		},
	)

	apiHandler := NewAPIHandler(pipeline, st, cfg)

	router := mux.NewRouter()

	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	})

	router.HandleFunc("/api/upload", apiHandler.UploadSongHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/songs", apiHandler.ListSongsHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/separate", apiHandler.SeparateHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/generate", apiHandler.GenerateHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/mix", apiHandler.MixHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/status/{filename}", apiHandler.StatusHandler).Methods(http.MethodGet)
	router.HandleFunc("/download/{path:.*}", apiHandler.DownloadHandler).Methods(http.MethodGet)

	server := &http.Server{
		Addr:    ":8080",
		Handler: router,
		// Model calls run minutes; keep write generous, reads tight.
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("server starting on :8080")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("failed to start server", logger.ErrorField(err))
		}
	}()

	<-stop
	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Fatal("server forced to shutdown", logger.ErrorField(err))
	}

	// Last chance to persist whatever the snapshot missed.
	if err := st.Save(); err != nil {
		logger.Warn("final snapshot failed", logger.ErrorField(err))
	}

	logger.Info("server stopped")
}

func ensureDirExists(path string) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		logger.Info("creating directory", logger.String("path", path))
		if err := os.MkdirAll(path, 0755); err != nil {
			logger.Fatal("failed to create directory",
				logger.String("path", path),
				logger.ErrorField(err))
		}
	} else if err != nil {
		logger.Fatal("failed to check directory",
			logger.String("path", path),
			logger.ErrorField(err))
	}
}
