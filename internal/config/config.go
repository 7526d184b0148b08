// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ashureev/nibbl/internal/domain"
)

// Config holds all application configuration.
type Config struct {
	Port        string
	DBPath      string
	ChatDBPath  string // macOS Messages database the reader polls
	SelfID      string // the Mac owner's own phone number / Apple ID
	GroupChatID string

	PollInterval      time.Duration
	PreferenceTimeout time.Duration
	PantryTimeout     time.Duration
	CapabilityTimeout time.Duration // bound on every external capability call
	SendGracePeriod   time.Duration // wait before skipping our own sent messages
	PlanDays          int
	Language          string // "nl" or "en"

	Family []FamilyMember

	Anthropic AnthropicConfig
	Picnic    PicnicConfig
	Schedule  ScheduleConfig
	Export    ExportConfig
}

// FamilyMember is one configured household member.
type FamilyMember struct {
	Name       string
	IMessageID string
	Role       domain.Role
}

// AnthropicConfig holds Claude API settings.
type AnthropicConfig struct {
	APIKey            string
	PlanningModel     string
	ExtractionModel   string
	ConversationModel string
}

// PicnicConfig holds Picnic storefront credentials.
type PicnicConfig struct {
	Username    string
	Password    string
	CountryCode string
}

// ScheduleConfig controls the weekly automatic trigger.
type ScheduleConfig struct {
	Enabled   bool
	DayOfWeek time.Weekday
	Hour      int
	Minute    int
}

// ExportConfig controls markdown export of approved plans.
type ExportConfig struct {
	Enabled bool
	Dir     string
}

var weekdays = map[string]time.Weekday{
	"sun": time.Sunday, "mon": time.Monday, "tue": time.Tuesday,
	"wed": time.Wednesday, "thu": time.Thursday, "fri": time.Friday,
	"sat": time.Saturday,
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	home, _ := os.UserHomeDir()

	cfg := &Config{
		Port:        getEnv("PORT", "8090"),
		DBPath:      getEnv("DB_PATH", "./data/nibbl.db"),
		ChatDBPath:  getEnv("CHAT_DB_PATH", filepath.Join(home, "Library/Messages/chat.db")),
		SelfID:      getEnv("NIBBL_SELF_ID", ""),
		GroupChatID: getEnv("NIBBL_GROUP_CHAT_ID", ""),

		PollInterval:      getEnvDuration("POLL_INTERVAL", 5*time.Second),
		PreferenceTimeout: getEnvDuration("PREFERENCE_TIMEOUT", 4*time.Hour),
		PantryTimeout:     getEnvDuration("PANTRY_TIMEOUT", 2*time.Hour),
		CapabilityTimeout: getEnvDuration("CAPABILITY_TIMEOUT", 30*time.Second),
		SendGracePeriod:   getEnvDuration("SEND_GRACE_PERIOD", 500*time.Millisecond),
		PlanDays:          getEnvInt("PLAN_DAYS", 4),
		Language:          getEnv("NIBBL_LANGUAGE", "nl"),

		Anthropic: AnthropicConfig{
			APIKey:            getEnv("ANTHROPIC_API_KEY", ""),
			PlanningModel:     getEnv("ANTHROPIC_PLANNING_MODEL", "claude-sonnet-4-20250514"),
			ExtractionModel:   getEnv("ANTHROPIC_EXTRACTION_MODEL", "claude-haiku-4-5-20251001"),
			ConversationModel: getEnv("ANTHROPIC_CONVERSATION_MODEL", "claude-sonnet-4-20250514"),
		},
		Picnic: PicnicConfig{
			Username:    getEnv("PICNIC_USERNAME", ""),
			Password:    getEnv("PICNIC_PASSWORD", ""),
			CountryCode: getEnv("PICNIC_COUNTRY_CODE", "NL"),
		},
		Schedule: ScheduleConfig{
			Enabled:   getEnvBool("SCHEDULE_ENABLED", true),
			DayOfWeek: getEnvWeekday("SCHEDULE_DAY", time.Sunday),
			Hour:      getEnvInt("SCHEDULE_HOUR", 10),
			Minute:    getEnvInt("SCHEDULE_MINUTE", 0),
		},
		Export: ExportConfig{
			Enabled: getEnvBool("EXPORT_ENABLED", true),
			Dir:     getEnv("EXPORT_DIR", filepath.Join(home, "Nibbl")),
		},
	}

	family, err := parseFamily(getEnv("NIBBL_FAMILY", ""))
	if err != nil {
		return nil, fmt.Errorf("parse NIBBL_FAMILY: %w", err)
	}
	cfg.Family = family

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.ChatDBPath == "" {
		return fmt.Errorf("CHAT_DB_PATH cannot be empty")
	}
	if c.Anthropic.APIKey == "" {
		return fmt.Errorf("ANTHROPIC_API_KEY cannot be empty")
	}
	if len(c.Family) == 0 {
		return fmt.Errorf("NIBBL_FAMILY must list at least one member")
	}
	if c.Language != "nl" && c.Language != "en" {
		return fmt.Errorf("NIBBL_LANGUAGE must be nl or en, got %q", c.Language)
	}
	if c.PlanDays <= 0 {
		return fmt.Errorf("PLAN_DAYS must be > 0")
	}
	if c.Schedule.Hour < 0 || c.Schedule.Hour > 23 {
		return fmt.Errorf("SCHEDULE_HOUR must be 0-23")
	}
	if c.Schedule.Minute < 0 || c.Schedule.Minute > 59 {
		return fmt.Errorf("SCHEDULE_MINUTE must be 0-59")
	}
	hasParent := false
	for _, m := range c.Family {
		if m.Role == domain.RoleParent {
			hasParent = true
			break
		}
	}
	if !hasParent {
		return fmt.Errorf("NIBBL_FAMILY must include at least one parent")
	}
	return nil
}

// parseFamily parses the compact NIBBL_FAMILY format:
//
//	Name:+31612345678:parent,Other Name:+31687654321:child
func parseFamily(raw string) ([]FamilyMember, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}

	var members []FamilyMember
	for _, entry := range strings.Split(raw, ",") {
		parts := strings.Split(strings.TrimSpace(entry), ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("entry %q must be Name:imessage_id:role", entry)
		}
		role := domain.Role(strings.ToLower(strings.TrimSpace(parts[2])))
		if role != domain.RoleParent && role != domain.RoleChild {
			return nil, fmt.Errorf("entry %q has unknown role %q", entry, parts[2])
		}
		members = append(members, FamilyMember{
			Name:       strings.TrimSpace(parts[0]),
			IMessageID: strings.TrimSpace(parts[1]),
			Role:       role,
		})
	}
	return members, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}

func getEnvWeekday(key string, fallback time.Weekday) time.Weekday {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	if day, ok := weekdays[strings.ToLower(strings.TrimSpace(value))]; ok {
		return day
	}
	return fallback
}
