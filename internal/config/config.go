package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Config holds every setting the server and the trigger pipeline read at startup.
type Config struct {
	Port          string
	MongoURI      string
	DBName        string
	JWTSecret     string
	PublicBaseURL string
	LogLevel      string

	ObjectBucket       string
	ProfileImagePrefix string
	ThumbnailSize      int
	ScratchDir         string
	SignedURLTTL       time.Duration

	ReactorTimeout      time.Duration
	PushBackend         string // "fcm" or "websocket"
	FirebaseCredentials string
	PushConcurrency     int
	DedupeCommentCounts bool
	NotificationTTL     time.Duration

	ReconcileSchedule string
	ReconcileSettle   time.Duration
	AllowedOrigins    []string
}

// LoadConfig reads .env (if present) and the environment, falling back to defaults.
func LoadConfig() *Config {
	if err := godotenv.Load(); err != nil {
		logrus.Debug("No .env file found, using environment only")
	}

	return &Config{
		Port:          getEnv("PORT", "8080"),
		MongoURI:      getEnv("MONGO_URI", "mongodb://localhost:27017/?replicaSet=rs0"),
		DBName:        getEnv("DB_NAME", "closure"),
		JWTSecret:     getEnv("JWT_SECRET", "change-me"),
		PublicBaseURL: strings.TrimRight(getEnv("PUBLIC_BASE_URL", "http://localhost:8080"), "/"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),

		ObjectBucket:       getEnv("OBJECT_BUCKET", "objects"),
		ProfileImagePrefix: strings.Trim(getEnv("PROFILE_IMAGE_PREFIX", "profile_images"), "/"),
		ThumbnailSize:      getInt("THUMBNAIL_SIZE", 200),
		ScratchDir:         getEnv("SCRATCH_DIR", os.TempDir()),
		// Avatar URLs are stored on the profile, so they have to outlive any session.
		SignedURLTTL: getDuration("SIGNED_URL_TTL", 100*365*24*time.Hour),

		ReactorTimeout:      getDuration("REACTOR_TIMEOUT", 60*time.Second),
		PushBackend:         getEnv("PUSH_BACKEND", "websocket"),
		FirebaseCredentials: getEnv("FIREBASE_CREDENTIALS", ""),
		PushConcurrency:     getInt("PUSH_CONCURRENCY", 8),
		DedupeCommentCounts: getBool("COMMENT_COUNT_DEDUPE", true),
		NotificationTTL:     getDuration("NOTIFICATION_TTL", 30*24*time.Hour),

		ReconcileSchedule: getEnv("RECONCILE_SCHEDULE", "@daily"),
		ReconcileSettle:   getDuration("RECONCILE_SETTLE", 5*time.Minute),
		AllowedOrigins:    getList("ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
	}
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		logrus.WithField("key", key).Warnf("Invalid integer %q, using default %d", raw, defaultValue)
		return defaultValue
	}
	return v
}

func getBool(key string, defaultValue bool) bool {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		logrus.WithField("key", key).Warnf("Invalid boolean %q, using default %t", raw, defaultValue)
		return defaultValue
	}
	return v
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		logrus.WithField("key", key).Warnf("Invalid duration %q, using default %s", raw, defaultValue)
		return defaultValue
	}
	return v
}

func getList(key string, defaultValue []string) []string {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
