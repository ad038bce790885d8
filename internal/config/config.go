package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Store drivers
const (
	DriverMemory   = "memory"
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config holds application configuration
type Config struct {
	// ストア設定
	StoreDriver string
	DBHost      string
	DBPort      string
	DBUser      string
	DBPassword  string
	DBName      string
	DBPath      string

	// サーバー設定
	ServerPort        string
	Env               string
	PublicURL         string
	DiscordWebhookURL string

	// CORS設定
	AllowedOrigins []string

	// エージェント設定
	APIURL                   string
	FirestoreProjectID       string
	FirestoreCredentialsFile string
	AgentID                  string
	AgentName                string
	AgentPhotoURL            string
	ReconnectDelay           time.Duration
}

var defaults = map[string]any{
	"store_driver":               DriverMemory,
	"db_host":                    "localhost",
	"db_port":                    "",
	"db_user":                    "",
	"db_password":                "",
	"db_name":                    "",
	"db_path":                    "ghosthq.db",
	"server_port":                "8080",
	"env":                        "development",
	"public_url":                 "",
	"discord_webhook_url":        "",
	"allowed_origins":            "http://localhost:3000,http://127.0.0.1:3000",
	"hq_api_url":                 "http://localhost:8080",
	"firestore_project_id":       "",
	"firestore_credentials_file": "",
	"agent_id":                   "",
	"agent_name":                 "Ghost Hunter",
	"agent_photo_url":            "",
	"reconnect_delay":            "3s",
}

// LoadDotEnv loads .env files into the process environment. Missing files
// are reported but not fatal.
func LoadDotEnv(filenames ...string) error {
	return godotenv.Load(filenames...)
}

// New returns a viper instance reading every key from the environment, with
// defaults applied. Callers may bind flags onto it before calling Load.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	return v
}

// Load builds a Config from v
func Load(v *viper.Viper) Config {
	driver := strings.ToLower(strings.TrimSpace(v.GetString("store_driver")))

	dbPort := v.GetString("db_port")
	if dbPort == "" {
		dbPort = defaultPort(driver)
	}

	delay := v.GetDuration("reconnect_delay")
	if delay <= 0 {
		delay = 3 * time.Second
	}

	cfg := Config{
		StoreDriver:              driver,
		DBHost:                   v.GetString("db_host"),
		DBPort:                   dbPort,
		DBUser:                   v.GetString("db_user"),
		DBPassword:               v.GetString("db_password"),
		DBName:                   v.GetString("db_name"),
		DBPath:                   v.GetString("db_path"),
		ServerPort:               v.GetString("server_port"),
		Env:                      v.GetString("env"),
		PublicURL:                strings.TrimSuffix(v.GetString("public_url"), "/"),
		DiscordWebhookURL:        v.GetString("discord_webhook_url"),
		AllowedOrigins:           splitList(v.GetString("allowed_origins")),
		APIURL:                   strings.TrimSuffix(v.GetString("hq_api_url"), "/"),
		FirestoreProjectID:       strings.TrimSpace(v.GetString("firestore_project_id")),
		FirestoreCredentialsFile: v.GetString("firestore_credentials_file"),
		AgentID:                  v.GetString("agent_id"),
		AgentName:                v.GetString("agent_name"),
		AgentPhotoURL:            v.GetString("agent_photo_url"),
		ReconnectDelay:           delay,
	}

	return cfg
}

// Validate reports configuration the server cannot start with
func (c Config) Validate() error {
	port, err := strconv.Atoi(c.ServerPort)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %q", c.ServerPort)
	}

	switch c.StoreDriver {
	case DriverMemory:
	case DriverMySQL, DriverPostgres:
		if c.DBName == "" {
			return fmt.Errorf("DB_NAME is required for the %s store", c.StoreDriver)
		}
	case DriverSQLite:
		if c.DBPath == "" {
			return fmt.Errorf("DB_PATH is required for the sqlite store")
		}
	default:
		return fmt.Errorf("unknown store driver: %q", c.StoreDriver)
	}

	return nil
}

// FirestoreEnabled reports whether a managed document store is configured.
func (c Config) FirestoreEnabled() bool {
	return c.FirestoreProjectID != ""
}

func defaultPort(driver string) string {
	switch driver {
	case DriverPostgres:
		return "5432"
	default:
		return "3306"
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
