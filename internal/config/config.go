package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Env        string
	LogLevel   string
	ServerPort string

	AllowedOrigins []string
	APIRate        int
	APIBurst       int

	// Acting user. Without JWTSecret the control API checks only the token's
	// subject, not its signature; production refuses to start that way.
	AccessToken string
	JWTSecret   string

	BackendURL     string
	BackendTimeout time.Duration
	PushURL        string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	SlotCountTTL  time.Duration

	DBUrl string

	Timezone string

	// Slot catalog (working day, lunch excluded)
	WorkStart   string
	WorkEnd     string
	LunchStart  string
	LunchEnd    string
	SlotMinutes int

	FetchDebounce  time.Duration
	TickInterval   time.Duration
	RedirectDelay  time.Duration
	RedirectPath   string
	DefaultStaffID string

	SendEmailToUser         bool
	SendNotificationToUser  bool
	SendEmailToStaff        bool
	SendNotificationToStaff bool
}

func Load() *Config {
	return &Config{
		Env:        getEnv("ENV", "development"),
		LogLevel:   getEnv("LOG_LEVEL", "info"),
		ServerPort: getEnv("SERVER_PORT", "8080"),

		AllowedOrigins: getEnvAsList("CORS_ORIGINS"),
		APIRate:        getEnvAsInt("API_RATE_PER_SEC", 20),
		APIBurst:       getEnvAsInt("API_BURST", 40),

		AccessToken: getEnv("ACCESS_TOKEN", ""),
		JWTSecret:   getEnv("JWT_SECRET", ""),

		BackendURL:     strings.TrimRight(getEnv("BACKEND_URL", "http://localhost:5000"), "/"),
		BackendTimeout: getEnvAsDuration("BACKEND_TIMEOUT", 10*time.Second),
		PushURL:        getEnv("PUSH_URL", "ws://localhost:5000/hubs/appointments"),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),
		SlotCountTTL:  getEnvAsDuration("SLOT_COUNT_TTL", 30*time.Second),

		DBUrl: getEnv("DATABASE_URL", ""),

		Timezone: getEnv("SCHEDULING_TIMEZONE", "UTC"),

		WorkStart:   getEnv("WORK_START", "08:00"),
		WorkEnd:     getEnv("WORK_END", "17:00"),
		LunchStart:  getEnv("LUNCH_START", "12:00"),
		LunchEnd:    getEnv("LUNCH_END", "13:00"),
		SlotMinutes: getEnvAsInt("SLOT_MINUTES", 30),

		FetchDebounce:  getEnvAsDuration("FETCH_DEBOUNCE", 50*time.Millisecond),
		TickInterval:   getEnvAsDuration("COUNTDOWN_TICK", time.Second),
		RedirectDelay:  getEnvAsDuration("REDIRECT_DELAY", 2*time.Second),
		RedirectPath:   getEnv("REDIRECT_PATH", "/appointments"),
		DefaultStaffID: getEnv("STAFF_ID", ""),

		SendEmailToUser:         getEnvAsBool("SEND_EMAIL_TO_USER", true),
		SendNotificationToUser:  getEnvAsBool("SEND_NOTIFICATION_TO_USER", true),
		SendEmailToStaff:        getEnvAsBool("SEND_EMAIL_TO_STAFF", true),
		SendNotificationToStaff: getEnvAsBool("SEND_NOTIFICATION_TO_STAFF", true),
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvAsInt(key string, def int) int {
	if v, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return v
	}
	return def
}

func getEnvAsBool(key string, def bool) bool {
	if v, err := strconv.ParseBool(getEnv(key, "")); err == nil {
		return v
	}
	return def
}

func getEnvAsList(key string) []string {
	var out []string
	for _, part := range strings.Split(getEnv(key, ""), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnvAsDuration(key string, def time.Duration) time.Duration {
	raw := getEnv(key, "")
	if raw == "" {
		return def
	}
	if v, err := time.ParseDuration(raw); err == nil {
		return v
	}
	return def
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%s", c.ServerPort)
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate reports settings the coordinator cannot run with.
func (c *Config) Validate() error {
	if c.AccessToken == "" {
		return errors.New("ACCESS_TOKEN is required")
	}
	if c.IsProduction() && c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required when ENV=production")
	}
	return nil
}
