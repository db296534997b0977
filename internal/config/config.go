package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	JWT      JWTConfig      `yaml:"jwt"`
	Chrome   ChromeConfig   `yaml:"chrome"`
	Capture  CaptureConfig  `yaml:"capture"`
	Worker   WorkerConfig   `yaml:"worker"`
	Timing   TimingConfig   `yaml:"timing"`
	Proxy    []ProxyRule    `yaml:"proxy"`
	Vendors  VendorConfig   `yaml:"vendors"`
	Janitor  JanitorConfig  `yaml:"janitor"`
	Log      LogConfig      `yaml:"log"`
}

type ServerConfig struct {
	Port         string `yaml:"port"`
	Host         string `yaml:"host"`
	Mode         string `yaml:"mode"`
	ReadTimeout  int    `yaml:"read_timeout"`
	WriteTimeout int    `yaml:"write_timeout"`
}

type DatabaseConfig struct {
	Driver   string `yaml:"driver"` // sqlite, mysql
	Path     string `yaml:"path"`
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	Charset  string `yaml:"charset"`
}

type JWTConfig struct {
	// Empty secret disables bridge authentication.
	Secret     string `yaml:"secret"`
	ExpireTime int    `yaml:"expire_time"`
}

type ChromeConfig struct {
	Path         string `yaml:"path"`
	HeadlessMode bool   `yaml:"headless"`
	ProfilesDir  string `yaml:"profiles_dir"`
	// DebugPort is the first remote debugging port tried.
	DebugPort int `yaml:"debug_port"`
}

type CaptureConfig struct {
	Dir               string        `yaml:"dir"`
	Extension         string        `yaml:"extension"`
	DefaultWidth      int           `yaml:"default_width"`
	DefaultHeight     int           `yaml:"default_height"`
	DefaultPause      time.Duration `yaml:"default_pause"`
	DefaultInterval   time.Duration `yaml:"default_interval"`
	WaitForNavigation bool          `yaml:"wait_for_navigation"`
	KeyCode           int           `yaml:"key_code"`
}

type WorkerConfig struct {
	// Executable defaults to the running binary.
	Executable     string        `yaml:"executable"`
	Ceiling        time.Duration `yaml:"ceiling"`
	StartupCeiling time.Duration `yaml:"startup_ceiling"`
}

// TimingConfig holds the vendor-tuned waits used by the compiler and the
// executor. Every field has a default matching observed vendor behaviour.
type TimingConfig struct {
	ClickFirstTimeout        time.Duration `yaml:"click_first_timeout"`
	ClickNextTimeout         time.Duration `yaml:"click_next_timeout"`
	ClickSettleDelay         time.Duration `yaml:"click_settle_delay"`
	TypeDelay                time.Duration `yaml:"type_delay"`
	DefaultWait              time.Duration `yaml:"default_wait"`
	MarkerTimeout            time.Duration `yaml:"marker_timeout"`
	NavigationTimeout        time.Duration `yaml:"navigation_timeout"`
	InitialNavigationTimeout time.Duration `yaml:"initial_navigation_timeout"`
	CredentialGotoTimeout    time.Duration `yaml:"credential_goto_timeout"`
	RemoveElementWait        time.Duration `yaml:"remove_element_wait"`
	TotpFieldWait            time.Duration `yaml:"totp_field_wait"`
	SettleTimeout            time.Duration `yaml:"settle_timeout"`
	SettleFirstRequest       time.Duration `yaml:"settle_first_request"`
	SettleQuiet              time.Duration `yaml:"settle_quiet"`
	SettleMaxInflight        int           `yaml:"settle_max_inflight"`
	CloseTimeout             time.Duration `yaml:"close_timeout"`
	SynthesizedPauseFloor    time.Duration `yaml:"synthesized_pause_floor"`
}

type ProxyRule struct {
	Proxy   string   `yaml:"proxy"`
	Tenants []string `yaml:"tenants"`
	// URLs are glob patterns matched against the terminal URL.
	URLs []string `yaml:"urls"`
}

// VendorConfig holds tenant-specific quirks of synthesized login flows.
type VendorConfig struct {
	// PortalAccounts sign in through the office portal before the
	// reporting suite is opened.
	PortalAccounts []string `yaml:"portal_accounts"`
	// PortalDashboardHost replaces the reporting suite host for portal
	// accounts, e.g. a tenant reverse proxy.
	PortalDashboardHost string `yaml:"portal_dashboard_host"`
}

type JanitorConfig struct {
	Schedule   string        `yaml:"schedule"`
	ProfileTTL time.Duration `yaml:"profile_ttl"`
	StaleAfter time.Duration `yaml:"stale_after"`
}

type LogConfig struct {
	Level   string   `yaml:"level"`
	Writers []string `yaml:"writers"`
	File    string   `yaml:"file"`
}

// DefaultTiming returns the stock timing table.
func DefaultTiming() TimingConfig {
	return TimingConfig{
		ClickFirstTimeout:        10 * time.Second,
		ClickNextTimeout:         time.Second,
		ClickSettleDelay:         2500 * time.Millisecond,
		TypeDelay:                100 * time.Millisecond,
		DefaultWait:              30 * time.Second,
		MarkerTimeout:            20 * time.Second,
		NavigationTimeout:        5 * time.Second,
		InitialNavigationTimeout: 30 * time.Second,
		CredentialGotoTimeout:    60 * time.Second,
		RemoveElementWait:        5 * time.Second,
		TotpFieldWait:            10 * time.Second,
		SettleTimeout:            10 * time.Second,
		SettleFirstRequest:       5 * time.Second,
		SettleQuiet:              3 * time.Second,
		SettleMaxInflight:        2,
		CloseTimeout:             5 * time.Second,
		SynthesizedPauseFloor:    20 * time.Second,
	}
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         "8080",
			Host:         "127.0.0.1",
			Mode:         "release",
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Database: DatabaseConfig{
			Driver:   "sqlite",
			Path:     "db.sqlite",
			Host:     "127.0.0.1",
			Port:     "3306",
			Username: "root",
			Database: "dashshot",
			Charset:  "utf8mb4",
		},
		JWT: JWTConfig{
			ExpireTime: 24 * 3600,
		},
		Chrome: ChromeConfig{
			HeadlessMode: true,
			ProfilesDir:  "./tmp/chromium-user-data",
		},
		Capture: CaptureConfig{
			Dir:             "screenshots",
			Extension:       "jpg",
			DefaultWidth:    1920,
			DefaultHeight:   1080,
			DefaultPause:    2 * time.Second,
			DefaultInterval: 10 * time.Second,
			KeyCode:         9,
		},
		Worker: WorkerConfig{
			Ceiling:        2 * time.Minute,
			StartupCeiling: 2 * time.Minute,
		},
		Timing: DefaultTiming(),
		Janitor: JanitorConfig{
			Schedule:   "0 */30 * * * *",
			ProfileTTL: 14 * 24 * time.Hour,
			StaleAfter: time.Hour,
		},
		Log: LogConfig{
			Level:   "info",
			Writers: []string{"console"},
			File:    "logs/dashshot.log",
		},
	}
}

// LoadConfig builds the configuration from defaults, an optional YAML file
// named by DASHSHOT_CONFIG, and environment overrides, in that order.
func LoadConfig() (*Config, error) {
	return LoadConfigFile(os.Getenv("DASHSHOT_CONFIG"))
}

func LoadConfigFile(path string) (*Config, error) {
	config := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	config.Server.Port = getEnv("SERVER_PORT", config.Server.Port)
	config.Server.Host = getEnv("SERVER_HOST", config.Server.Host)
	config.Server.Mode = getEnv("SERVER_MODE", config.Server.Mode)
	config.Server.ReadTimeout = getEnvAsInt("SERVER_READ_TIMEOUT", config.Server.ReadTimeout)
	config.Server.WriteTimeout = getEnvAsInt("SERVER_WRITE_TIMEOUT", config.Server.WriteTimeout)

	config.Database.Driver = getEnv("DB_DRIVER", config.Database.Driver)
	config.Database.Path = getEnv("DB_PATH", config.Database.Path)
	config.Database.Host = getEnv("DB_HOST", config.Database.Host)
	config.Database.Port = getEnv("DB_PORT", config.Database.Port)
	config.Database.Username = getEnv("DB_USERNAME", config.Database.Username)
	config.Database.Password = getEnv("DB_PASSWORD", config.Database.Password)
	config.Database.Database = getEnv("DB_NAME", config.Database.Database)
	config.Database.Charset = getEnv("DB_CHARSET", config.Database.Charset)

	config.JWT.Secret = getEnv("JWT_SECRET", config.JWT.Secret)
	config.JWT.ExpireTime = getEnvAsInt("JWT_EXPIRE_TIME", config.JWT.ExpireTime)

	config.Chrome.Path = getEnv("CHROME_PATH", config.Chrome.Path)
	config.Chrome.HeadlessMode = getEnvAsBool("CHROME_HEADLESS", config.Chrome.HeadlessMode)
	config.Chrome.ProfilesDir = getEnv("CHROME_PROFILES_DIR", config.Chrome.ProfilesDir)
	config.Chrome.DebugPort = getEnvAsInt("CHROME_DEBUG_PORT", config.Chrome.DebugPort)

	config.Capture.Dir = getEnv("CAPTURE_DIR", config.Capture.Dir)
	config.Capture.Extension = strings.TrimPrefix(getEnv("CAPTURE_EXTENSION", config.Capture.Extension), ".")
	config.Capture.DefaultInterval = getEnvAsDuration("CAPTURE_DEFAULT_INTERVAL", config.Capture.DefaultInterval)
	config.Capture.WaitForNavigation = getEnvAsBool("CAPTURE_WAIT_FOR_NAVIGATION", config.Capture.WaitForNavigation)

	config.Worker.Executable = getEnv("WORKER_EXECUTABLE", config.Worker.Executable)
	config.Worker.Ceiling = getEnvAsDuration("WORKER_CEILING", config.Worker.Ceiling)
	config.Worker.StartupCeiling = getEnvAsDuration("WORKER_STARTUP_CEILING", config.Worker.StartupCeiling)

	config.Janitor.Schedule = getEnv("JANITOR_SCHEDULE", config.Janitor.Schedule)

	config.Log.Level = getEnv("LOG_LEVEL", config.Log.Level)
	config.Log.File = getEnv("LOG_FILE", config.Log.File)
	if writers := os.Getenv("LOG_WRITERS"); writers != "" {
		config.Log.Writers = strings.Split(writers, ",")
	}

	return config, nil
}

func (c *Config) GetDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=%s&parseTime=True&loc=Local",
		c.Database.Username,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Database,
		c.Database.Charset,
	)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		// bare numbers are milliseconds
		if ms, err := strconv.Atoi(value); err == nil {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return defaultValue
}
