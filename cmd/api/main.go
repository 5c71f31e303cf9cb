package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"medscan-backend/cmd"
	"medscan-backend/internal/api"
	"medscan-backend/internal/core"
	"medscan-backend/internal/database"
	"medscan-backend/internal/session"
	"medscan-backend/internal/storage"

	"github.com/caarlos0/env/v11"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

type APIConfig struct {
	Root string `env:"ROOT" envDefault:"./data"`
	Port int    `env:"PORT" envDefault:"8000"`

	// Session history backend: "file" keeps one JSON log per user under
	// Root/sessions, "db" keeps one row per user in DATABASE_URL.
	SessionBackend string `env:"SESSION_BACKEND" envDefault:"file"`
	DatabaseURL    string `env:"DATABASE_URL" envDefault:""`

	// When S3_ENDPOINT_URL is set uploads go to S3/MinIO, otherwise to
	// Root/uploads on local disk.
	S3EndpointURL     string `env:"S3_ENDPOINT_URL" envDefault:""`
	S3AccessKeyID     string `env:"AWS_ACCESS_KEY_ID" envDefault:""`
	S3SecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" envDefault:""`
	S3Region          string `env:"AWS_REGION" envDefault:"us-east-1"`
	UploadBucket      string `env:"UPLOAD_BUCKET" envDefault:"uploads"`

	ModelDir        string `env:"MODEL_DIR" envDefault:"./models"`
	SkinModelPath   string `env:"SKIN_MODEL_PATH" envDefault:""`
	ThroatModelPath string `env:"THROAT_MODEL_PATH" envDefault:""`
	BreastModelPath string `env:"BREAST_MODEL_PATH" envDefault:""`

	// When set, classification is delegated to an external model server
	// instead of in-process ONNX sessions.
	ClassifierURL string `env:"CLASSIFIER_URL" envDefault:""`

	AllowedOrigins string `env:"ALLOWED_ORIGINS" envDefault:"*"`
}

func (cfg *APIConfig) weightsPath(modelType core.ModelType, override string) string {
	if override != "" {
		return override
	}
	return filepath.Join(cfg.ModelDir, string(modelType)+"_cancer", "model.onnx")
}

func createProvider(cfg *APIConfig) storage.Provider {
	if cfg.S3EndpointURL != "" {
		provider, err := storage.NewS3Provider(storage.S3ClientConfig{
			Endpoint:        cfg.S3EndpointURL,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
		})
		if err != nil {
			log.Fatalf("Failed to create S3 provider: %v", err)
		}
		return provider
	}

	provider, err := storage.NewLocalProvider(filepath.Join(cfg.Root, "storage"))
	if err != nil {
		log.Fatalf("Failed to create local storage provider: %v", err)
	}
	return provider
}

func createSessionStore(cfg *APIConfig) session.Store {
	switch cfg.SessionBackend {
	case "file":
		store, err := session.NewFileStore(filepath.Join(cfg.Root, "sessions"))
		if err != nil {
			log.Fatalf("Failed to create session store: %v", err)
		}
		return store
	case "db":
		databaseURL := cfg.DatabaseURL
		if databaseURL == "" {
			databaseURL = filepath.Join(cfg.Root, "db", "medscan.db")
		}
		db, err := database.NewDatabase(databaseURL)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		if err := database.GetMigrator(db).Migrate(); err != nil {
			log.Fatalf("Failed to migrate database: %v", err)
		}
		return session.NewDBStore(db)
	default:
		log.Fatalf("Unknown SESSION_BACKEND %q, expected 'file' or 'db'", cfg.SessionBackend)
		return nil
	}
}

func createRegistry(cfg *APIConfig) *core.Registry {
	registry := core.NewRegistry()

	weights := map[core.ModelType]string{
		core.SkinCancer:   cfg.weightsPath(core.SkinCancer, cfg.SkinModelPath),
		core.ThroatCancer: cfg.weightsPath(core.ThroatCancer, cfg.ThroatModelPath),
		core.BreastCancer: cfg.weightsPath(core.BreastCancer, cfg.BreastModelPath),
	}

	for modelType, weightsRef := range weights {
		if cfg.ClassifierURL != "" {
			registry.Register(modelType, core.NewRemoteClassifier(cfg.ClassifierURL, modelType), cfg.ClassifierURL)
		} else {
			registry.Register(modelType, core.NewOnnxClassifier(weightsRef), weightsRef)
		}
	}

	return registry
}

func main() {
	log.Println("Starting API Server...")

	cmd.LoadEnvFile()

	var cfg APIConfig
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("error parsing config: %v", err)
	}

	provider := createProvider(&cfg)
	uploads := storage.NewUploadStore(provider, cfg.UploadBucket)
	sessions := createSessionStore(&cfg)

	registry := createRegistry(&cfg)
	defer registry.Release()

	predictor := core.NewPredictionService(uploads, registry, sessions)

	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   strings.Split(cfg.AllowedOrigins, ","),
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	apiHandler := api.NewBackendService(predictor, uploads, sessions)
	apiHandler.AddRoutes(r)

	server := &http.Server{
		Addr:    ":" + strconv.Itoa(cfg.Port),
		Handler: r,
	}

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		log.Println("Shutting down server...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			log.Fatalf("Server forced to shutdown: %v", err)
		}
	}()

	log.Printf("API server listening on port %d", cfg.Port)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Could not listen on %d: %v\n", cfg.Port, err)
	}

	log.Println("Server stopped.")
}
