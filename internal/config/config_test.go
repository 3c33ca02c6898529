package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"sportclub/internal/models"
	"sportclub/internal/schedule"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
app:
  timezone: "Europe/Rome"
database:
  path: "test.db"
api:
  auth:
    api_keys:
      - key: "${SPORTCLUB_TEST_KEY}"
        name: "front"
booking:
  min_lead_time: 90m
  restrict_to_catalog: false
catalog:
  slots:
    - start: "18:00"
      end: "19:30"
    - start: "09:00"
      end: "10:00"
fields:
  - id: 1
    name: "Campo 1"
    surface: "erba sintetica"
    is_active: true
`
	require.NoError(t, os.WriteFile(configPath, []byte(yamlContent), 0o644))
	t.Setenv("SPORTCLUB_TEST_KEY", "secret")

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, DriverSQLite, cfg.Database.Driver)
	assert.Equal(t, "secret", cfg.API.Auth.APIKeys[0].Key)
	assert.Equal(t, 90*time.Minute, cfg.Booking.MinLeadTime)
	assert.False(t, cfg.Booking.CatalogRestricted())
	assert.Equal(t, models.StatusPending, cfg.Booking.DefaultStatus)
	assert.Equal(t, 72*time.Hour, cfg.Booking.AutoAcceptAfter)
	require.Len(t, cfg.Catalog.Slots, 2)
	assert.Equal(t, schedule.Slot{Start: 18 * 60, End: 19*60 + 30}, cfg.Catalog.Slots[0])
	require.Len(t, cfg.Fields, 1)
	assert.True(t, cfg.Fields[0].IsActive)

	loc, err := cfg.App.Location()
	require.NoError(t, err)
	assert.Equal(t, "Europe/Rome", loc.String())
}

func TestLoadConfig_Defaults(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("database:\n  path: \"x.db\"\n"), 0o644))

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, schedule.DefaultSlots, cfg.Catalog.Slots)
	assert.True(t, cfg.Booking.CatalogRestricted())
	assert.Equal(t, 8080, cfg.API.HTTP.Port)
	assert.Equal(t, 8081, cfg.API.GRPC.Port)
	assert.Equal(t, "x-api-key", cfg.API.Auth.HeaderAPIKey)
	assert.Equal(t, 5*time.Minute, cfg.Redis.CacheTTL)
	assert.Equal(t, 2*time.Hour, cfg.Reminders.Lead)
	assert.Equal(t, 15*time.Minute, cfg.Reminders.Window)
	assert.Equal(t, "sportclub.events", cfg.NATS.SubjectPrefix)
}

func TestLoadConfig_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("database: ["), 0o644))
	_, err = Load(bad)
	assert.Error(t, err)
}

func TestValidateConfig(t *testing.T) {
	base := func() Config {
		c := Config{Database: DatabaseConfig{Path: "path"}}
		c.applyDefaults()
		return c
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid config", mutate: func(*Config) {}},
		{name: "missing path", mutate: func(c *Config) { c.Database.Path = "" }, wantErr: true},
		{name: "unknown driver", mutate: func(c *Config) { c.Database.Driver = "mysql" }, wantErr: true},
		{
			name:    "postgres without dsn",
			mutate:  func(c *Config) { c.Database.Driver = DriverPostgres },
			wantErr: true,
		},
		{
			name: "postgres with dsn",
			mutate: func(c *Config) {
				c.Database.Driver = DriverPostgres
				c.Database.Postgres.DSN = "postgres://localhost/club"
			},
		},
		{name: "bad timezone", mutate: func(c *Config) { c.App.Timezone = "Mars/Olympus" }, wantErr: true},
		{name: "bad default status", mutate: func(c *Config) { c.Booking.DefaultStatus = "rejected" }, wantErr: true},
		{
			name:    "inverted catalog slot",
			mutate:  func(c *Config) { c.Catalog.Slots = []schedule.Slot{{Start: 600, End: 540}} },
			wantErr: true,
		},
		{
			name:    "duplicate field id",
			mutate:  func(c *Config) { c.Fields = []models.Field{{ID: 1, Name: "A"}, {ID: 1, Name: "B"}} },
			wantErr: true,
		},
		{
			name:    "nats without url",
			mutate:  func(c *Config) { c.NATS.Enabled = true },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestPostgresConnString(t *testing.T) {
	p := PostgresConfig{Host: "db", Port: 5432, User: "club", Password: "p@ss", DBName: "sportclub", SSLMode: "disable"}
	assert.Equal(t, "postgres://club:p%40ss@db:5432/sportclub?sslmode=disable", p.ConnString())

	p.DSN = "postgres://override"
	assert.Equal(t, "postgres://override", p.ConnString())
}

func TestIsStaffChat(t *testing.T) {
	tg := TelegramConfig{StaffChatIDs: []int64{10, 20}}
	assert.True(t, tg.IsStaffChat(20))
	assert.False(t, tg.IsStaffChat(30))
}
