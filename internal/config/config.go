package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/artishok-center/artclub-bot/internal/plans"
)

// Config is read from the environment exactly once at process start and
// passed through constructors. No component reads os.Getenv after Load.
type Config struct {
	BotToken      string
	MainChannelID int64
	AdminIDs      []int64

	Plans plans.Table

	// Sweeper policy.
	GraceDays       int
	ReminderDays    int
	RevokeHourUTC   int
	ReminderHourUTC int

	// Payment gateway.
	ProdamusBaseURL string
	ProdamusSecret  string

	WebhookAddr string

	PostgresDSN    string
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	DialogTTLHours int
}

func Load() (*Config, error) {
	token := strings.TrimSpace(os.Getenv("BOT_TOKEN"))
	if token == "" {
		return nil, fmt.Errorf("BOT_TOKEN is not set")
	}

	cfg := &Config{
		BotToken:      token,
		MainChannelID: envInt64("MAIN_CHANNEL_ID", 0),
		AdminIDs:      parseAdminIDs(os.Getenv("ADMIN_IDS")),

		Plans: plans.FromEnv(),

		GraceDays:       envInt("GRACE_DAYS", 2),
		ReminderDays:    envInt("REMINDER_DAYS", 3),
		RevokeHourUTC:   envInt("REVOKE_HOUR_UTC", 10),
		ReminderHourUTC: envInt("REMINDER_HOUR_UTC", 18),

		ProdamusBaseURL: envString("PRODAMUS_BASE_URL", "https://artclub.pay.prodamus.ru"),
		ProdamusSecret:  strings.TrimSpace(os.Getenv("PRODAMUS_SECRET_KEY")),

		WebhookAddr: envString("WEBHOOK_ADDR", ":8000"),

		PostgresDSN:    strings.TrimSpace(os.Getenv("POSTGRES_DSN")),
		RedisAddr:      envString("REDIS_HOST", "localhost") + ":" + envString("REDIS_PORT", "6379"),
		RedisPassword:  os.Getenv("REDIS_PASSWORD"),
		RedisDB:        envInt("REDIS_DB", 0),
		DialogTTLHours: envInt("DIALOG_TTL_HOURS", 24),
	}
	return cfg, nil
}

func (c *Config) IsAdmin(userID int64) bool {
	for _, id := range c.AdminIDs {
		if id == userID {
			return true
		}
	}
	return false
}

func parseAdminIDs(raw string) []int64 {
	ids := make([]int64, 0)
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

func envString(name, def string) string {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def
	}
	return v
}

func envInt(name string, def int) int {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envInt64(name string, def int64) int64 {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return n
}
