package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// App holds the runtime configuration loaded from environment variables.
type App struct {
	Env      string
	HTTPPort string

	StudentsDB  string
	EmployeesDB string

	// RedisAddr is optional; without it the queue, cache and rate limiter
	// all stay in process.
	RedisAddr        string
	QueueBackend     string
	RateLimitPerMin  int
	RateLimitBackend string

	LogLevel  string
	LogFormat string

	AllowHardDelete bool
	DashboardTTL    time.Duration
	ImportMaxBytes  int

	SnapshotDir      string
	SnapshotSchedule string

	S3Bucket    string
	S3Region    string
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string

	CORSOrigins []string
}

// Load reads an optional .env file, then returns application config populated
// from environment variables with sensible defaults. Variables already set in
// the environment win over the file.
func Load() App {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("could not read .env: %v", err)
	}
	return App{
		Env:              getEnv("APP_ENV", "dev"),
		HTTPPort:         getEnv("HTTP_PORT", "8081"),
		StudentsDB:       getEnv("STUDENTS_DB", "./data/students.db"),
		EmployeesDB:      getEnv("EMPLOYEES_DB", "./data/employees.db"),
		RedisAddr:        os.Getenv("REDIS_ADDR"),
		QueueBackend:     getEnv("QUEUE_BACKEND", "memory"),
		RateLimitPerMin:  intEnv("RATE_LIMIT_PER_MIN", 120),
		RateLimitBackend: getEnv("RATE_LIMIT_BACKEND", "memory"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		LogFormat:        getEnv("LOG_FORMAT", "json"),
		AllowHardDelete:  boolEnv("EMPLOYEE_HARD_DELETE", false),
		DashboardTTL:     durationEnv("DASHBOARD_TTL", time.Minute),
		ImportMaxBytes:   intEnv("IMPORT_MAX_BYTES", 8<<20),
		SnapshotDir:      os.Getenv("SNAPSHOT_DIR"),
		SnapshotSchedule: getEnv("SNAPSHOT_SCHEDULE", "@every 1h"),
		S3Bucket:         os.Getenv("S3_BUCKET"),
		S3Region:         getEnv("S3_REGION", "us-east-1"),
		S3Endpoint:       os.Getenv("S3_ENDPOINT"),
		S3AccessKey:      os.Getenv("S3_ACCESS_KEY"),
		S3SecretKey:      os.Getenv("S3_SECRET_KEY"),
		CORSOrigins:      listEnv("CORS_ORIGINS", []string{"*"}),
	}
}

// UseRedis reports whether backend "redis" was asked for and an address exists.
func (a App) UseRedis(backend string) bool {
	return backend == "redis" && a.RedisAddr != ""
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func durationEnv(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		d, err := time.ParseDuration(val)
		if err != nil {
			log.Printf("invalid duration for %s: %v, using fallback %s", key, err, fallback)
			return fallback
		}
		return d
	}
	return fallback
}

func boolEnv(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if val == "1" || val == "true" || val == "TRUE" {
			return true
		}
		if val == "0" || val == "false" || val == "FALSE" {
			return false
		}
		log.Printf("invalid bool for %s, using fallback %v", key, fallback)
	}
	return fallback
}

func intEnv(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		var parsed int
		if _, err := fmt.Sscanf(val, "%d", &parsed); err == nil {
			return parsed
		}
		log.Printf("invalid int for %s, using fallback %d", key, fallback)
	}
	return fallback
}

func listEnv(key string, fallback []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
