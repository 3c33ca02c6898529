package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"sportclub/internal/models"
	"sportclub/internal/schedule"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const DefaultPath = "configs/config.yaml"

type Config struct {
	App        AppConfig        `yaml:"app"`
	Telegram   TelegramConfig   `yaml:"telegram"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Backup     BackupConfig     `yaml:"backup"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    LoggingConfig    `yaml:"logging"`
	API        APIConfig        `yaml:"api"`
	Booking    BookingConfig    `yaml:"booking"`
	Catalog    CatalogConfig    `yaml:"catalog"`
	Fields     []models.Field   `yaml:"fields"`
	Workers    WorkersConfig    `yaml:"workers"`
	Reminders  RemindersConfig  `yaml:"reminders"`
	NATS       NATSConfig       `yaml:"nats"`
	Exports    ExportConfig     `yaml:"exports"`
	Google     GoogleConfig     `yaml:"google"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
	Timezone    string `yaml:"timezone"`
}

// Location returns the club time zone.
func (a AppConfig) Location() (*time.Location, error) {
	if a.Timezone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(a.Timezone)
}

type TelegramConfig struct {
	BotToken     string  `yaml:"bot_token"`
	Debug        bool    `yaml:"debug"`
	StaffChatIDs []int64 `yaml:"staff_chat_ids"`
}

func (t TelegramConfig) IsStaffChat(chatID int64) bool {
	for _, id := range t.StaffChatIDs {
		if id == chatID {
			return true
		}
	}
	return false
}

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type DatabaseConfig struct {
	Driver   string         `yaml:"driver"`
	Path     string         `yaml:"path"`
	Postgres PostgresConfig `yaml:"postgres"`
}

type PostgresConfig struct {
	DSN            string `yaml:"dsn"`
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	User           string `yaml:"user"`
	Password       string `yaml:"password"`
	DBName         string `yaml:"dbname"`
	SSLMode        string `yaml:"sslmode"`
	MaxConnections int    `yaml:"max_connections"`
	MigrationTable string `yaml:"migration_table"`
}

// ConnString returns DSN or builds a postgres:// URL from the parts.
func (p PostgresConfig) ConnString() string {
	if p.DSN != "" {
		return p.DSN
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(p.User, p.Password),
		Host:   fmt.Sprintf("%s:%d", p.Host, p.Port),
		Path:   p.DBName,
	}
	q := u.Query()
	if p.SSLMode != "" {
		q.Set("sslmode", p.SSLMode)
	}
	if p.MaxConnections > 0 {
		q.Set("pool_max_conns", fmt.Sprint(p.MaxConnections))
	}
	u.RawQuery = q.Encode()
	return u.String()
}

type RedisConfig struct {
	Address  string        `yaml:"address"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"pool_size"`
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Schedule      string `yaml:"schedule"`
	RetentionDays int    `yaml:"retention_days"`
	StoragePath   string `yaml:"storage_path"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type APIConfig struct {
	HTTP      APIHTTPConfig      `yaml:"http"`
	GRPC      APIGRPCConfig      `yaml:"grpc"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
	CORS      APICORSConfig      `yaml:"cors"`
}

type APIHTTPConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

type APIGRPCConfig struct {
	Enabled    bool         `yaml:"enabled"`
	Port       int          `yaml:"port"`
	Reflection bool         `yaml:"reflection"`
	TLS        APITLSConfig `yaml:"tls"`
}

type APITLSConfig struct {
	Enabled           bool   `yaml:"enabled"`
	CertFile          string `yaml:"cert_file"`
	KeyFile           string `yaml:"key_file"`
	ClientCAFile      string `yaml:"client_ca_file"`
	RequireClientCert bool   `yaml:"require_client_cert"`
}

type APIAuthConfig struct {
	Enabled      bool           `yaml:"enabled"`
	HeaderAPIKey string         `yaml:"header_api_key"`
	HeaderExtra  string         `yaml:"header_extra"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
}

type APIClientKey struct {
	Key         string   `yaml:"key"`
	Extra       string   `yaml:"extra"`
	Name        string   `yaml:"name"`
	Permissions []string `yaml:"permissions"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type APICORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

type BookingConfig struct {
	DefaultStatus     string          `yaml:"default_status"`
	MinLeadTime       time.Duration   `yaml:"min_lead_time"`
	MaxAdvanceDays    int             `yaml:"max_advance_days"`
	RestrictToCatalog *bool           `yaml:"restrict_to_catalog"`
	AutoAcceptAfter   time.Duration   `yaml:"auto_accept_after"`
	PurgeAfterDays    int             `yaml:"purge_after_days"`
	RateLimit         RequesterLimits `yaml:"rate_limit"`
}

// CatalogRestricted reports whether booked intervals must match a catalog slot exactly.
func (b BookingConfig) CatalogRestricted() bool {
	return b.RestrictToCatalog == nil || *b.RestrictToCatalog
}

// RequesterLimits caps bookings per requester in a window; zero Requests disables it.
type RequesterLimits struct {
	Requests int           `yaml:"requests"`
	Window   time.Duration `yaml:"window"`
}

type CatalogConfig struct {
	Slots []schedule.Slot `yaml:"slots"`
}

type WorkersConfig struct {
	SweepInterval    time.Duration      `yaml:"sweep_interval"`
	ReminderInterval time.Duration      `yaml:"reminder_interval"`
	Sheets           SheetsWorkerConfig `yaml:"sheets"`
}

type SheetsWorkerConfig struct {
	Enabled      bool          `yaml:"enabled"`
	MaxRetries   int           `yaml:"max_retries"`
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
	Backoff      float64       `yaml:"backoff"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

type RemindersConfig struct {
	Enabled bool          `yaml:"enabled"`
	Lead    time.Duration `yaml:"lead"`
	Window  time.Duration `yaml:"window"`
}

type NATSConfig struct {
	Enabled       bool          `yaml:"enabled"`
	URL           string        `yaml:"url"`
	Name          string        `yaml:"name"`
	SubjectPrefix string        `yaml:"subject_prefix"`
	MaxReconnects int           `yaml:"max_reconnects"`
	ReconnectWait time.Duration `yaml:"reconnect_wait"`
}

type ExportConfig struct {
	Path string `yaml:"path"`
}

type GoogleConfig struct {
	CredentialsFile          string `yaml:"credentials_file"`
	ReservationSpreadsheetID string `yaml:"reservations_spreadsheet_id"`
	SheetName                string `yaml:"sheet_name"`
}

func Load(configPath string) (*Config, error) {
	// .env необязателен
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	// Предварительная замена переменных окружения в YAML
	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverSQLite:
		if c.Database.Path == "" {
			return errors.New("database path is required")
		}
	case DriverPostgres:
		if c.Database.Postgres.DSN == "" && c.Database.Postgres.Host == "" {
			return errors.New("postgres dsn or host is required")
		}
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}

	if _, err := c.App.Location(); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", c.App.Timezone, err)
	}

	switch c.Booking.DefaultStatus {
	case models.StatusPending, models.StatusConfirmed:
	default:
		return fmt.Errorf("booking default_status must be pending or confirmed, got %q", c.Booking.DefaultStatus)
	}
	if c.Booking.MinLeadTime < 0 || c.Booking.MaxAdvanceDays < 0 || c.Booking.PurgeAfterDays < 0 {
		return errors.New("booking limits must not be negative")
	}

	if _, err := schedule.NewCatalog(c.Catalog.Slots); err != nil {
		return fmt.Errorf("catalog: %w", err)
	}

	if c.NATS.Enabled && c.NATS.URL == "" {
		return errors.New("nats url is required when nats is enabled")
	}

	return ValidateFields(c.Fields)
}

func ValidateFields(fields []models.Field) error {
	ids := make(map[int64]bool)
	for _, f := range fields {
		if f.ID == 0 {
			return fmt.Errorf("field '%s' has invalid ID 0", f.Name)
		}
		if f.Name == "" {
			return fmt.Errorf("field %d has empty name", f.ID)
		}
		if ids[f.ID] {
			return fmt.Errorf("duplicate field ID found: %d", f.ID)
		}
		ids[f.ID] = true
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "sportclub"
	}
	if c.Database.Driver == "" {
		c.Database.Driver = DriverSQLite
	}
	if c.Database.Postgres.Port == 0 {
		c.Database.Postgres.Port = 5432
	}
	if c.Database.Postgres.MigrationTable == "" {
		c.Database.Postgres.MigrationTable = "schema_migrations"
	}
	if c.Redis.CacheTTL == 0 {
		c.Redis.CacheTTL = models.DefaultCacheTTL * time.Second
	}

	if c.API.GRPC.Port == 0 {
		c.API.GRPC.Port = 8081
	}
	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 8080
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}
	if c.API.Auth.HeaderExtra == "" {
		c.API.Auth.HeaderExtra = "x-api-extra"
	}
	if len(c.API.CORS.AllowedMethods) == 0 {
		c.API.CORS.AllowedMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	}
	if len(c.API.CORS.AllowedHeaders) == 0 {
		c.API.CORS.AllowedHeaders = []string{"Content-Type", c.API.Auth.HeaderAPIKey, c.API.Auth.HeaderExtra}
	}

	// Бронирование
	if c.Booking.DefaultStatus == "" {
		c.Booking.DefaultStatus = models.StatusPending
	}
	if c.Booking.MinLeadTime == 0 {
		c.Booking.MinLeadTime = models.DefaultMinLeadMinutes * time.Minute
	}
	if c.Booking.MaxAdvanceDays == 0 {
		c.Booking.MaxAdvanceDays = models.DefaultMaxAdvanceDays
	}
	if c.Booking.AutoAcceptAfter == 0 {
		c.Booking.AutoAcceptAfter = models.DefaultAutoAcceptHours * time.Hour
	}
	if c.Booking.RateLimit.Requests > 0 && c.Booking.RateLimit.Window == 0 {
		c.Booking.RateLimit.Window = time.Hour
	}

	if len(c.Catalog.Slots) == 0 {
		c.Catalog.Slots = append([]schedule.Slot(nil), schedule.DefaultSlots...)
	}

	// Воркеры
	if c.Workers.SweepInterval == 0 {
		c.Workers.SweepInterval = models.DefaultSweepIntervalMinutes * time.Minute
	}
	if c.Workers.ReminderInterval == 0 {
		c.Workers.ReminderInterval = models.DefaultSweepIntervalMinutes * time.Minute
	}
	if c.Workers.Sheets.PollInterval == 0 {
		c.Workers.Sheets.PollInterval = 2 * time.Second
	}
	if c.Reminders.Lead == 0 {
		c.Reminders.Lead = models.DefaultReminderLeadMinutes * time.Minute
	}
	if c.Reminders.Window == 0 {
		c.Reminders.Window = models.DefaultReminderWindowMinutes * time.Minute
	}

	if c.NATS.SubjectPrefix == "" {
		c.NATS.SubjectPrefix = "sportclub.events"
	}
	if c.NATS.MaxReconnects == 0 {
		c.NATS.MaxReconnects = -1
	}
	if c.NATS.ReconnectWait == 0 {
		c.NATS.ReconnectWait = 2 * time.Second
	}
	if c.Google.SheetName == "" {
		c.Google.SheetName = "Reservations"
	}
	if c.Exports.Path == "" {
		c.Exports.Path = "exports"
	}
}
