package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config application configuration structure
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Log        LogConfig        `yaml:"log"`
	Auth       AuthConfig       `yaml:"auth"`
	Admin      AdminConfig      `yaml:"admin"`
	CORS       CORSConfig       `yaml:"cors"`
	Ledger     LedgerConfig     `yaml:"ledger"`
	Settlement SettlementConfig `yaml:"settlement"`
	Custody    CustodyConfig    `yaml:"custody"`
	IPFS       IPFSConfig       `yaml:"ipfs"`
	NATS       NATSConfig       `yaml:"nats"`
}

// ServerConfig server configuration
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DatabaseConfig database configuration
type DatabaseConfig struct {
	DSN          string `yaml:"dsn"`
	Driver       string `yaml:"driver"` // postgres | memory
	MaxOpenConns int    `yaml:"maxOpenConns"`
	MaxIdleConns int    `yaml:"maxIdleConns"`
}

// LogConfig logging configuration
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text | json
}

// AuthConfig wallet sign-in and session configuration
type AuthConfig struct {
	Domain            string `yaml:"domain"`
	Statement         string `yaml:"statement"`
	JWTSecret         string `yaml:"jwtSecret"`
	Issuer            string `yaml:"issuer"`
	SessionTTLMinutes int    `yaml:"sessionTtlMinutes"`
	NonceTTLSeconds   int    `yaml:"nonceTtlSeconds"`
}

// AdminConfig admin API access control configuration
type AdminConfig struct {
	AllowedIPs      []string `yaml:"allowedIPs"` // IPs or CIDR ranges, empty means localhost only
	Username        string   `yaml:"username"`
	Password        string   `yaml:"password"`
	TOTPSecret      string   `yaml:"totpSecret"`
	JWTSecret       string   `yaml:"jwtSecret"`
	TokenTTLMinutes int      `yaml:"tokenTtlMinutes"`
}

// CORSConfig CORS configuration
type CORSConfig struct {
	AllowedOrigins   []string `yaml:"allowedOrigins"`
	AllowCredentials bool     `yaml:"allowCredentials"`
	MaxAge           int      `yaml:"maxAge"` // seconds
}

// LedgerConfig ledger node configuration
type LedgerConfig struct {
	Driver     string `yaml:"driver"` // rpc | memory
	RPCURL     string `yaml:"rpcUrl"`
	Timeout    int    `yaml:"timeout"` // seconds
	Commitment string `yaml:"commitment"`
	ProgramID  string `yaml:"programId"`
}

// SettlementMode how approvals obtain a transfer signature
type SettlementMode string

const (
	SettlementManual   SettlementMode = "manual"
	SettlementCustody  SettlementMode = "custody"
	SettlementExternal SettlementMode = "external"
)

// Valid known mode
func (m SettlementMode) Valid() bool {
	switch m {
	case SettlementManual, SettlementCustody, SettlementExternal:
		return true
	}
	return false
}

// SettlementConfig settlement configuration
type SettlementConfig struct {
	Mode        SettlementMode `yaml:"mode"`
	AllowManual bool           `yaml:"allowManual"` // development only
	// ConfirmTimeout upper bound on awaiting a custody transfer, seconds
	ConfirmTimeout    int     `yaml:"confirmTimeout"`
	PollInitialMs     int     `yaml:"pollInitialMs"`
	PollMaxMs         int     `yaml:"pollMaxMs"`
	PollMultiplier    float64 `yaml:"pollMultiplier"`
	PollMaxAttempts   int     `yaml:"pollMaxAttempts"`
	ReconcileInterval int     `yaml:"reconcileInterval"` // seconds, 0 disables the background reconciler
}

// CustodyConfig encrypted payer key location
type CustodyConfig struct {
	Keystore       string `yaml:"keystore"`
	Passphrase     string `yaml:"passphrase"`
	PassphraseFile string `yaml:"passphraseFile"`
	// MinBalanceLamports monitoring warns below this balance
	MinBalanceLamports uint64 `yaml:"minBalanceLamports"`
}

// IPFSConfig artifact store configuration
type IPFSConfig struct {
	APIURL        string `yaml:"apiUrl"`
	ProjectID     string `yaml:"projectId"`
	ProjectSecret string `yaml:"projectSecret"`
	Timeout       int    `yaml:"timeout"` // seconds
	Gateway       string `yaml:"gateway"`
	// LocalDir used instead of IPFS when APIURL is empty
	LocalDir string `yaml:"localDir"`
}

// NATSConfig NATS message server configuration
type NATSConfig struct {
	URL        string       `yaml:"url"`
	Timeout    int          `yaml:"timeout"`
	StreamName string       `yaml:"streamName"`
	Subjects   NATSSubjects `yaml:"subjects"`
}

// NATSSubjects subjects used by the service
type NATSSubjects struct {
	TaskEvents          string `yaml:"taskEvents"`
	LedgerConfirmations string `yaml:"ledgerConfirmations"`
}

// WithDefaults fill empty subjects
func (s NATSSubjects) WithDefaults() NATSSubjects {
	if s.TaskEvents == "" {
		s.TaskEvents = "datalabel.tasks"
	}
	if s.LedgerConfirmations == "" {
		s.LedgerConfirmations = "datalabel.ledger.confirmations"
	}
	return s
}

var AppConfig *Config

// Default configuration used for missing values
func Default() Config {
	return Config{
		Server:   ServerConfig{Host: "0.0.0.0", Port: 8080},
		Database: DatabaseConfig{Driver: "postgres", MaxOpenConns: 25, MaxIdleConns: 5},
		Log:      LogConfig{Level: "info", Format: "text"},
		Auth: AuthConfig{
			Domain:            "localhost:3000",
			Issuer:            "datalabel-backend",
			SessionTTLMinutes: 24 * 60,
			NonceTTLSeconds:   300,
		},
		Admin:  AdminConfig{TokenTTLMinutes: 60},
		CORS:   CORSConfig{MaxAge: 12 * 3600},
		Ledger: LedgerConfig{Driver: "rpc", Timeout: 30, Commitment: "confirmed"},
		Settlement: SettlementConfig{
			Mode:              SettlementExternal,
			ConfirmTimeout:    60,
			PollInitialMs:     500,
			PollMaxMs:         5000,
			PollMultiplier:    2,
			PollMaxAttempts:   10,
			ReconcileInterval: 30,
		},
		IPFS: IPFSConfig{Timeout: 30, Gateway: "https://ipfs.io"},
		NATS: NATSConfig{Timeout: 10, Subjects: NATSSubjects{}.WithDefaults()},
	}
}

// LoadConfig load configuration file
func LoadConfig(configPath string) error {
	cfg, err := Load(configPath)
	if err != nil {
		return err
	}
	AppConfig = cfg
	return nil
}

// Load parse the file at configPath (or config.local.yaml / config.yaml),
// apply environment overrides and validate the result
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
		if _, err := os.Stat("config.local.yaml"); err == nil {
			configPath = "config.local.yaml"
			fmt.Printf("🔧 Using local configuration file: config.local.yaml\n")
		}
	}

	config := Default()
	data, err := os.ReadFile(configPath)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
		fmt.Printf("✅ [%s] Loading configuration from config file: %s\n", time.Now().Format("2006-01-02 15:04:05"), configPath)
	case errors.Is(err, os.ErrNotExist):
		fmt.Printf("⚠️ [Config] %s not found, using defaults and environment\n", configPath)
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	overrideFromEnv(&config)
	config.NATS.Subjects = config.NATS.Subjects.WithDefaults()

	if err := config.Validate(); err != nil {
		return nil, err
	}

	fmt.Printf("📋 [Config] Settlement mode: %s (allowManual=%v)\n", config.Settlement.Mode, config.Settlement.AllowManual)
	if len(config.Admin.AllowedIPs) > 0 {
		fmt.Printf("📋 [Config] Admin IP whitelist loaded: %d IPs/CIDRs configured\n", len(config.Admin.AllowedIPs))
	} else {
		fmt.Printf("📋 [Config] Admin IP whitelist: not configured (localhost-only mode)\n")
	}
	if len(config.CORS.AllowedOrigins) > 0 {
		fmt.Printf("📋 [Config] CORS allowed origins loaded: %d origins configured\n", len(config.CORS.AllowedOrigins))
	} else {
		fmt.Printf("📋 [Config] CORS: not configured (will allow all origins *)\n")
	}
	return &config, nil
}

// overrideFromEnv override configuration from environment variables
func overrideFromEnv(config *Config) {
	setString := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setInt := func(dst *int, key string) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	setBool := func(dst *bool, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v == "true" || v == "1"
		}
	}

	// server
	setString(&config.Server.Host, "SERVER_HOST")
	setInt(&config.Server.Port, "SERVER_PORT")

	// database
	setString(&config.Database.DSN, "DATABASE_DSN")
	setString(&config.Database.Driver, "DATABASE_DRIVER")

	// logging
	setString(&config.Log.Level, "LOG_LEVEL")
	setString(&config.Log.Format, "LOG_FORMAT")

	// auth
	setString(&config.Auth.JWTSecret, "JWT_SECRET")
	setString(&config.Auth.Domain, "AUTH_DOMAIN")

	// admin
	setString(&config.Admin.Username, "ADMIN_USERNAME")
	setString(&config.Admin.Password, "ADMIN_PASSWORD")
	setString(&config.Admin.TOTPSecret, "ADMIN_TOTP_SECRET")
	setString(&config.Admin.JWTSecret, "ADMIN_JWT_SECRET")

	// ledger
	setString(&config.Ledger.Driver, "LEDGER_DRIVER")
	setString(&config.Ledger.RPCURL, "LEDGER_RPC_URL")
	setString(&config.Ledger.ProgramID, "LEDGER_PROGRAM_ID")

	// settlement
	if mode := os.Getenv("SETTLEMENT_MODE"); mode != "" {
		config.Settlement.Mode = SettlementMode(strings.ToLower(mode))
	}
	setBool(&config.Settlement.AllowManual, "SETTLEMENT_ALLOW_MANUAL")

	// custody
	setString(&config.Custody.Keystore, "CUSTODY_KEYSTORE")
	setString(&config.Custody.Passphrase, "CUSTODY_PASSPHRASE")
	setString(&config.Custody.PassphraseFile, "CUSTODY_PASSPHRASE_FILE")

	// ipfs
	setString(&config.IPFS.APIURL, "IPFS_API_URL")
	setString(&config.IPFS.ProjectID, "IPFS_PROJECT_ID")
	setString(&config.IPFS.ProjectSecret, "IPFS_PROJECT_SECRET")
	setInt(&config.IPFS.Timeout, "IPFS_HTTP_TIMEOUT_SEC")

	// nats
	setString(&config.NATS.URL, "NATS_URL")
	setInt(&config.NATS.Timeout, "NATS_TIMEOUT")

	// CORS, comma separated
	if corsOrigins := os.Getenv("CORS_ALLOWED_ORIGINS"); corsOrigins != "" {
		origins := strings.Split(corsOrigins, ",")
		config.CORS.AllowedOrigins = make([]string, 0, len(origins))
		for _, origin := range origins {
			if trimmed := strings.TrimSpace(origin); trimmed != "" {
				config.CORS.AllowedOrigins = append(config.CORS.AllowedOrigins, trimmed)
			}
		}
	}
}

// Validate reject inconsistent combinations
func (c *Config) Validate() error {
	var problems []string
	if !c.Settlement.Mode.Valid() {
		problems = append(problems, fmt.Sprintf("settlement.mode %q must be manual, custody or external", c.Settlement.Mode))
	}
	if c.Settlement.Mode == SettlementCustody {
		if c.Custody.Keystore == "" {
			problems = append(problems, "custody settlement requires custody.keystore")
		}
		if c.Custody.Passphrase == "" && c.Custody.PassphraseFile == "" {
			problems = append(problems, "custody settlement requires custody.passphrase or custody.passphraseFile")
		}
	}
	if c.Settlement.Mode == SettlementManual && !c.Settlement.AllowManual {
		problems = append(problems, "manual settlement requires settlement.allowManual")
	}
	if c.Settlement.Mode == SettlementCustody && c.Ledger.Driver == "rpc" && c.Ledger.RPCURL == "" {
		problems = append(problems, "custody settlement requires ledger.rpcUrl")
	}
	switch c.Ledger.Driver {
	case "rpc", "memory":
	default:
		problems = append(problems, fmt.Sprintf("ledger.driver %q must be rpc or memory", c.Ledger.Driver))
	}
	switch c.Database.Driver {
	case "postgres":
		if c.Database.DSN == "" {
			problems = append(problems, "database.dsn is required for the postgres driver")
		}
	case "memory":
	default:
		problems = append(problems, fmt.Sprintf("database.driver %q must be postgres or memory", c.Database.Driver))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		problems = append(problems, fmt.Sprintf("server.port %d out of range", c.Server.Port))
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// CustodyPassphrase passphrase from config or the passphrase file
func (c *Config) CustodyPassphrase() ([]byte, error) {
	if c.Custody.PassphraseFile != "" {
		data, err := os.ReadFile(c.Custody.PassphraseFile)
		if err != nil {
			return nil, fmt.Errorf("read custody passphrase file: %w", err)
		}
		return []byte(strings.TrimRight(string(data), "\r\n")), nil
	}
	return []byte(c.Custody.Passphrase), nil
}

// SessionTTL session token lifetime
func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.Auth.SessionTTLMinutes) * time.Minute
}

// NonceTTL sign-in nonce lifetime
func (c *Config) NonceTTL() time.Duration {
	return time.Duration(c.Auth.NonceTTLSeconds) * time.Second
}
