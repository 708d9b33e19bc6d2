package config

import (
	"log"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Config stores the application configuration.
// Audio constants default to the values the separation/generation models
// were tuned against; everything else has simple env overrides.
type Config struct {
	ProjectName string

	// Audio processing
	SampleRate       int     // working sample rate shared by every stage
	VocalGain        float64 // per-source gain for the vocal input of a mix
	AccompGain       float64 // per-source gain for the accompaniment input
	MinStemBytes     int64   // stems smaller than this are treated as silence/truncation
	NormalizeCeiling float64 // post-mix peak target, fraction of full scale

	// Generation bounds (seconds)
	GenerateDefaultSec int
	GenerateMinSec     int
	GenerateMaxSec     int

	// Paths
	UploadDir    string // original uploaded audio
	OutputDir    string // separated stems, generated accompaniments, mixes
	SnapshotPath string // durable project snapshot (JSON)

	// External tools / services
	FFmpegPath      string
	PythonPath      string // interpreter used to run the demucs CLI
	DemucsModel     string
	MusicGenURL     string // HTTP inference endpoint for accompaniment generation
	MusicGenTimeout int    // seconds

	// Concurrency
	ModelWorkers int // max model invocations in flight across all songs

	// Redis (optional job-status cache)
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// MinIO (optional archive of produced tracks)
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool

	// Logging
	LogLevel string
	LogPath  string
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvInt gets an environment variable as int or returns a default value.
func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

// getEnvFloat gets an environment variable as float64 or returns a default value.
func getEnvFloat(key string, fallback float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return fallback
}

// Load loads configuration from environment variables (via .env file) or defaults.
func Load() *Config {
	// Attempt to load .env file. godotenv.Load() will not override existing env vars.
	err := godotenv.Load()
	if err != nil {
		log.Println("No .env file found or error loading .env, relying on existing environment variables and defaults.")
	}

	dataDir := getEnv("DATA_DIR", "data")

	return &Config{
		ProjectName: getEnv("PROJECT_NAME", "remix-session"),

		SampleRate:       getEnvInt("SAMPLE_RATE", 32000),
		VocalGain:        getEnvFloat("VOCAL_GAIN", 0.85),
		AccompGain:       getEnvFloat("ACCOMP_GAIN", 0.65),
		MinStemBytes:     int64(getEnvInt("MIN_STEM_BYTES", 1000)),
		NormalizeCeiling: getEnvFloat("NORMALIZE_CEILING", 0.9),

		GenerateDefaultSec: getEnvInt("GENERATE_DEFAULT_SEC", 30),
		GenerateMinSec:     getEnvInt("GENERATE_MIN_SEC", 5),
		GenerateMaxSec:     getEnvInt("GENERATE_MAX_SEC", 60),

		UploadDir:    getEnv("UPLOAD_DIR", "uploads"),
		OutputDir:    getEnv("OUTPUT_DIR", "output"),
		SnapshotPath: getEnv("SNAPSHOT_PATH", filepath.Join(dataDir, "project.json")),

		FFmpegPath:      getEnv("FFMPEG_PATH", "ffmpeg"),
		PythonPath:      getEnv("PYTHON_PATH", "python3"),
		DemucsModel:     getEnv("DEMUCS_MODEL", "htdemucs"),
		MusicGenURL:     getEnv("MUSICGEN_URL", "http://localhost:8000"),
		MusicGenTimeout: getEnvInt("MUSICGEN_TIMEOUT", 300),

		ModelWorkers: getEnvInt("MODEL_WORKERS", 2),

		RedisHost:     getEnv("REDIS_HOST", ""),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		MinioEndpoint:  getEnv("MINIO_ENDPOINT", ""),
		MinioAccessKey: getEnv("MINIO_ACCESS_KEY", ""),
		MinioSecretKey: getEnv("MINIO_SECRET_KEY", ""),
		MinioBucket:    getEnv("MINIO_BUCKET", "remixai"),
		MinioUseSSL:    getEnv("MINIO_USE_SSL", "false") == "true",

		LogLevel: getEnv("LOG_LEVEL", "info"),
		LogPath:  getEnv("LOG_PATH", ""),
	}
}
