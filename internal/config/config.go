package config

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"github.com/straye-as/blob-processor/internal/secrets"
	"go.uber.org/zap"
)

// Environment variables read directly by the processor
const (
	EnvConnectionString = "DATA_STORAGE_CONNECTION_STRING"
	EnvInputContainer   = "INPUT_CONTAINER"
	EnvOutputContainer  = "OUTPUT_CONTAINER"
)

// ConnectionStringSecretName is the Key Vault secret holding the data storage connection string
const ConnectionStringSecretName = "data-storage-connection-string"

// Config holds all application configuration
type Config struct {
	App       AppConfig
	Processor ProcessorConfig
	Storage   StorageConfig
	Secrets   SecretsConfig
	Logging   LoggingConfig
	Server    ServerConfig
	Security  SecurityConfig
	RateLimit RateLimitConfig
	EventGrid EventGridConfig
	Sweep     SweepConfig
}

type AppConfig struct {
	Name        string
	Environment string
	Port        int
}

// ProcessorConfig is read once at startup and passed by value
type ProcessorConfig struct {
	InputContainer  string
	OutputContainer string
}

type StorageConfig struct {
	// Mode is "azure" or "local"
	Mode string
	// ConnectionString selects connection-string credentials when set
	ConnectionString string
	// EndpointSuffix is used to build account URLs for managed identity
	EndpointSuffix string
	LocalBasePath  string
}

type SecretsConfig struct {
	// Source determines where secrets are loaded from: "environment", "vault", or "auto"
	// "auto" uses environment in development, vault in staging/production
	Source       string
	KeyVaultName string
	CacheEnabled bool
	CacheTTL     int // seconds
}

type LoggingConfig struct {
	Level  string
	Format string
}

type ServerConfig struct {
	ReadTimeout  int
	WriteTimeout int
	// MaxBodySizeKB caps a single Event Grid delivery
	MaxBodySizeKB int64
}

// SecurityConfig holds the response headers set on every webhook reply
type SecurityConfig struct {
	ContentTypeNosniff bool
	NoStore            bool
	EnableHSTS         bool
	HSTSMaxAge         int
}

// RateLimitConfig holds rate limiting configuration for the webhook
type RateLimitConfig struct {
	Enabled           bool
	RequestsPerMinute int
	WhitelistIPs      []string
	WhitelistPaths    []string
}

// EventGridConfig controls authentication of Event Grid deliveries.
// When AuthEnabled is set, deliveries must carry an Azure AD bearer token.
type EventGridConfig struct {
	AuthEnabled bool
	TenantId    string
	Audience    string
	InstanceUrl string
	// RequiredRole is the app role Event Grid's service principal is assigned
	RequiredRole string
}

// SweepConfig controls the periodic backfill of unprocessed input blobs
type SweepConfig struct {
	Enabled     bool
	Cron        string
	AccountName string
	Timeout     int // seconds
	// RunOnStartup runs one sweep in the background right after start
	RunOnStartup bool
}

// ReadTimeoutDuration returns read timeout as duration
func (s *ServerConfig) ReadTimeoutDuration() time.Duration {
	return time.Duration(s.ReadTimeout) * time.Second
}

// WriteTimeoutDuration returns write timeout as duration
func (s *ServerConfig) WriteTimeoutDuration() time.Duration {
	return time.Duration(s.WriteTimeout) * time.Second
}

// MaxBodySizeBytes returns the delivery size limit in bytes
func (s *ServerConfig) MaxBodySizeBytes() int64 {
	return s.MaxBodySizeKB * 1024
}

// TimeoutDuration returns the sweep timeout as duration
func (s *SweepConfig) TimeoutDuration() time.Duration {
	return time.Duration(s.Timeout) * time.Second
}

// Load loads configuration from file and environment variables.
// It does not consult Key Vault; use LoadWithSecrets for that.
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	v := viper.New()

	setDefaults(v)
	bindEnv(v)

	v.SetConfigName("config")
	v.SetConfigType("json")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Environment variables override config file
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks the settings the processor cannot run without
func (c *Config) Validate() error {
	if c.Processor.InputContainer == "" {
		return fmt.Errorf("%s must not be empty", EnvInputContainer)
	}
	if c.Processor.OutputContainer == "" {
		return fmt.Errorf("%s must not be empty", EnvOutputContainer)
	}
	switch c.Storage.Mode {
	case "azure", "local":
	default:
		return fmt.Errorf("unsupported storage mode: %s", c.Storage.Mode)
	}
	if c.EventGrid.AuthEnabled && c.EventGrid.TenantId == "" {
		return fmt.Errorf("AZURE_TENANT_ID is required when eventGrid.authEnabled=true")
	}
	if c.EventGrid.AuthEnabled && c.EventGrid.Audience == "" {
		return fmt.Errorf("EVENTGRID_AUDIENCE is required when eventGrid.authEnabled=true")
	}
	if c.Sweep.Enabled && c.Sweep.AccountName == "" {
		return fmt.Errorf("sweep.accountName is required when sweep.enabled=true")
	}
	return nil
}

// LoadWithSecrets loads configuration and resolves the storage connection
// string from the configured secret source. An explicitly set
// DATA_STORAGE_CONNECTION_STRING always wins over Key Vault.
func LoadWithSecrets(ctx context.Context, logger *zap.Logger) (*Config, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}

	if cfg.Storage.Mode != "azure" {
		return cfg, nil
	}

	source := secrets.SecretSource(cfg.Secrets.Source)
	if source == secrets.SourceAuto && cfg.Secrets.KeyVaultName == "" {
		// Nothing to look up; managed identity or the env var decide
		logger.Info("No Key Vault configured, using environment for storage credentials",
			zap.String("environment", cfg.App.Environment),
		)
		return cfg, nil
	}

	provider, err := secrets.NewProvider(&secrets.ProviderConfig{
		Source:       source,
		VaultName:    cfg.Secrets.KeyVaultName,
		Environment:  cfg.App.Environment,
		CacheEnabled: cfg.Secrets.CacheEnabled,
		CacheTTL:     time.Duration(cfg.Secrets.CacheTTL) * time.Second,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize secrets provider: %w", err)
	}

	resolveConnectionString(ctx, cfg, provider, logger)
	return cfg, nil
}

// SecretGetter is the part of secrets.Provider the config loader depends on
type SecretGetter interface {
	GetSecretOrEnv(ctx context.Context, secretName, envName string) (string, error)
	IsVaultEnabled() bool
}

func resolveConnectionString(ctx context.Context, cfg *Config, provider SecretGetter, logger *zap.Logger) {
	if !provider.IsVaultEnabled() {
		return
	}

	connStr, err := provider.GetSecretOrEnv(ctx, ConnectionStringSecretName, EnvConnectionString)
	if err != nil {
		// An absent secret means managed identity is intended
		logger.Info("Storage connection string not found in Key Vault, using managed identity",
			zap.String("secret_name", ConnectionStringSecretName),
			zap.Error(err),
		)
		return
	}

	cfg.Storage.ConnectionString = connStr
	logger.Info("Storage connection string loaded from secrets")
}

func bindEnv(v *viper.Viper) {
	_ = v.BindEnv("processor.inputContainer", EnvInputContainer)
	_ = v.BindEnv("processor.outputContainer", EnvOutputContainer)
	_ = v.BindEnv("storage.connectionString", EnvConnectionString)
	_ = v.BindEnv("app.port", "FUNCTIONS_CUSTOMHANDLER_PORT", "PORT")
	_ = v.BindEnv("secrets.keyVaultName", "AZURE_KEY_VAULT_NAME")
	_ = v.BindEnv("eventGrid.tenantId", "AZURE_TENANT_ID")
	_ = v.BindEnv("eventGrid.audience", "EVENTGRID_AUDIENCE")
}

func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("app.name", "Straye Blob Processor")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.port", 8080)

	// Processor defaults
	v.SetDefault("processor.inputContainer", "input")
	v.SetDefault("processor.outputContainer", "output")

	// Storage defaults
	v.SetDefault("storage.mode", "azure")
	v.SetDefault("storage.connectionString", "")
	v.SetDefault("storage.endpointSuffix", "core.windows.net")
	v.SetDefault("storage.localBasePath", "./storage")

	// Secrets defaults
	v.SetDefault("secrets.source", "auto")
	v.SetDefault("secrets.keyVaultName", "")
	v.SetDefault("secrets.cacheEnabled", true)
	v.SetDefault("secrets.cacheTTL", 300) // 5 minutes

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	// Server defaults
	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 300) // downloads and uploads run inside the request
	v.SetDefault("server.maxBodySizeKB", 1024)

	// Security header defaults
	v.SetDefault("security.contentTypeNosniff", true)
	v.SetDefault("security.noStore", true)
	v.SetDefault("security.enableHSTS", false)
	v.SetDefault("security.hstsMaxAge", 31536000) // 1 year

	// Rate limiting defaults
	v.SetDefault("rateLimit.enabled", true)
	v.SetDefault("rateLimit.requestsPerMinute", 600)
	v.SetDefault("rateLimit.whitelistIPs", []string{"127.0.0.1", "::1"})
	v.SetDefault("rateLimit.whitelistPaths", []string{"/health", "/health/ready", "/metrics"})

	// Event Grid defaults
	v.SetDefault("eventGrid.authEnabled", false)
	v.SetDefault("eventGrid.tenantId", "")
	v.SetDefault("eventGrid.audience", "")
	v.SetDefault("eventGrid.instanceUrl", "https://login.microsoftonline.com/")
	v.SetDefault("eventGrid.requiredRole", "AzureEventGridSecureWebhookSubscriber")

	// Sweep defaults
	v.SetDefault("sweep.enabled", false)
	v.SetDefault("sweep.accountName", "")
	v.SetDefault("sweep.cron", "0 */15 * * * *") // every 15 minutes (with seconds field)
	v.SetDefault("sweep.timeout", 600)
	v.SetDefault("sweep.runOnStartup", false)
}
