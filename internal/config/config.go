// Package config provides configuration management for legisub using Viper.
// It supports configuration from files, environment variables, and defaults.
package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/jihoonkim/legisub/pkg/bytesize"
	"github.com/jihoonkim/legisub/pkg/duration"
)

// Default configuration values.
const (
	defaultServerPort            = 8080
	defaultServerTimeout         = 30 * time.Second
	defaultShutdownTimeout       = 10 * time.Second
	defaultMaxOpenConns          = 25
	defaultMaxIdleConns          = 10
	defaultConnMaxIdleTime       = 30 * time.Minute
	defaultLiveStatusPoll        = 15 * time.Second
	defaultLiveStatusCacheTTL    = 10 * time.Second
	defaultSubscriberQueueSize   = 50
	defaultSubscriberRingSize    = 200
	defaultASRReconnectMinDelay  = 1 * time.Second
	defaultASRReconnectMaxDelay  = 30 * time.Second
	defaultASRKeepaliveInterval  = 10 * time.Second
	defaultHLSFetchInterval      = 4 * time.Second
	defaultAutoSTTReconcile      = 30 * time.Second
	defaultRefinerBatchSize      = 8
	defaultRefinerBatchInterval  = 2 * time.Second
	defaultObjectStorePartSize   = 8 * 1024 * 1024 // 8MB
	defaultVODDownloadTimeout    = 30 * time.Minute
	defaultVODTranscribeTimeout  = 60 * time.Minute
	defaultVODTaskStateGCPeriod  = 1 * time.Hour
	defaultVODTaskStateRetention = 24 * time.Hour
	defaultVODDownloadChunkSize  = 512 * 1024
	defaultVODUploadChunkSize    = 1024 * 1024
)

// Config holds all configuration for the application.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	ASR         ASRConfig         `mapstructure:"asr"`
	LiveStatus  LiveStatusConfig  `mapstructure:"live_status"`
	HLS         HLSConfig         `mapstructure:"hls"`
	AutoSTT     AutoSTTConfig     `mapstructure:"auto_stt"`
	Refiner     RefinerConfig     `mapstructure:"refiner"`
	ObjectStore ObjectStoreConfig `mapstructure:"object_store"`
	VOD         VODConfig         `mapstructure:"vod"`
	Channels    []ChannelConfig   `mapstructure:"channels"`
}

// ChannelConfig is one row of the static channel catalog (spec.md §4.1).
// internal/registry turns these into catalog.Channel values at startup.
type ChannelConfig struct {
	ID           string `mapstructure:"id"`
	DisplayName  string `mapstructure:"display_name"`
	UpstreamCode string `mapstructure:"upstream_code"`
	PlaylistURL  string `mapstructure:"playlist_url"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
}

// DatabaseConfig holds database connection configuration.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // sqlite, postgres, mysql
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	LogLevel        string        `mapstructure:"log_level"` // silent, error, warn, info
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`  // debug, info, warn, error
	Format     string `mapstructure:"format"` // json, text
	AddSource  bool   `mapstructure:"add_source"`
	TimeFormat string `mapstructure:"time_format"`
}

// ASRConfig holds the realtime speech-to-text provider connection the Live
// Caption Worker and VOD Batch Worker both dial out to.
type ASRConfig struct {
	ProviderURL         string        `mapstructure:"provider_url"`
	PrerecordedURL       string        `mapstructure:"prerecorded_url"`
	APIKey              string        `mapstructure:"api_key"` // redacted by internal/observability
	Language            string        `mapstructure:"language"`
	SampleRateHz        int           `mapstructure:"sample_rate_hz"`
	ReconnectMinDelay   time.Duration `mapstructure:"reconnect_min_delay"`
	ReconnectMaxDelay   time.Duration `mapstructure:"reconnect_max_delay"`
	KeepaliveInterval   time.Duration `mapstructure:"keepalive_interval"`
}

// LiveStatusConfig holds the Live-Status Poller's timing.
type LiveStatusConfig struct {
	Endpoint           string        `mapstructure:"endpoint"`
	PollInterval       time.Duration `mapstructure:"poll_interval"`
	CacheTTL           time.Duration `mapstructure:"cache_ttl"`
	SubscriberQueueSize int          `mapstructure:"subscriber_queue_size"`
}

// HLSConfig holds the HLS Playlist Reader's fetch cadence.
type HLSConfig struct {
	FetchInterval time.Duration `mapstructure:"fetch_interval"`
	UserAgent     string        `mapstructure:"user_agent"`
}

// AutoSTTConfig holds the Auto-STT Supervisor's reconciliation cadence and
// its enable flag. The supervisor only starts when both this flag is true
// and an ASR provider credential is configured (spec.md §4.8).
type AutoSTTConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	ReconcileInterval time.Duration `mapstructure:"reconcile_interval"`
}

// RefinerConfig holds the Caption Refiner's batching and rewrite-model
// settings, plus the speaker-roster substitution table (spec.md's Open
// Question on roster source — resolved as configuration, see DESIGN.md).
type RefinerConfig struct {
	BatchSize      int               `mapstructure:"batch_size"`
	BatchInterval  time.Duration     `mapstructure:"batch_interval"`
	RewriterURL    string            `mapstructure:"rewriter_url"`
	RewriterAPIKey string            `mapstructure:"rewriter_api_key"` // redacted by internal/observability
	RewriterModel  string            `mapstructure:"rewriter_model"`
	Roster         map[string]string `mapstructure:"roster"`
}

// ObjectStoreConfig holds the object-store endpoint, bucket, credentials and
// upload settings. They are loaded and validated here; no component in this
// module reads them.
type ObjectStoreConfig struct {
	Endpoint  string          `mapstructure:"endpoint"`
	Bucket    string          `mapstructure:"bucket"`
	AccessKey string          `mapstructure:"access_key"`
	SecretKey string          `mapstructure:"object_store_key"` // redacted by internal/observability
	PartSize  bytesize.Size   `mapstructure:"part_size"`
	UseTLS    bool            `mapstructure:"use_tls"`
}

// VODConfig holds the VOD Batch Worker's per-task timeouts and the
// task-state GC backstop the scheduler runs.
type VODConfig struct {
	DownloadTimeout    time.Duration `mapstructure:"download_timeout"`
	TranscribeTimeout  time.Duration `mapstructure:"transcribe_timeout"`
	TaskStateGCPeriod  time.Duration `mapstructure:"task_state_gc_period"`
	TaskStateRetention time.Duration `mapstructure:"task_state_retention"`
	DownloadChunkSize  bytesize.Size `mapstructure:"download_chunk_size"`
	UploadChunkSize    bytesize.Size `mapstructure:"upload_chunk_size"`
}

// Load reads configuration from file and environment variables.
// Environment variables take precedence over file configuration.
// Environment variables are prefixed with LEGISUB_ and use underscores for
// nesting. Example: LEGISUB_SERVER_PORT=8080.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	SetDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/legisub")
		v.AddConfigPath("$HOME/.legisub")
	}

	v.SetEnvPrefix("LEGISUB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Bare upstream env-var names (spec.md §6) bound as aliases alongside
	// the LEGISUB_-prefixed ones, so deployments using the original
	// variable names keep working.
	bindBareEnvAliases(v)

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Config file not found is OK - we'll use defaults and env vars
	}

	var cfg Config
	decodeHook := mapstructure.ComposeDecodeHookFunc(
		durationDecodeHook,
		byteSizeDecodeHook,
	)
	if err := v.Unmarshal(&cfg, viper.DecodeHook(decodeHook)); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// bindBareEnvAliases binds the bare upstream env-var names spec.md §6 names
// (ASR_PROVIDER_KEY, REWRITER_API_KEY, AUTO_STT, OBJECT_STORE_URL,
// OBJECT_STORE_KEY) to their config keys, so either the bare name or the
// LEGISUB_-prefixed form is honored.
func bindBareEnvAliases(v *viper.Viper) {
	_ = v.BindEnv("asr.api_key", "ASR_PROVIDER_KEY")
	_ = v.BindEnv("refiner.rewriter_api_key", "REWRITER_API_KEY")
	_ = v.BindEnv("auto_stt.enabled", "AUTO_STT")
	_ = v.BindEnv("object_store.endpoint", "OBJECT_STORE_URL")
	_ = v.BindEnv("object_store.object_store_key", "OBJECT_STORE_KEY")
}

// SetDefaults configures default values for all configuration options.
// This should be called before reading the config file to ensure defaults
// are in place.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", defaultServerPort)
	v.SetDefault("server.read_timeout", defaultServerTimeout)
	v.SetDefault("server.write_timeout", defaultServerTimeout)
	v.SetDefault("server.shutdown_timeout", defaultShutdownTimeout)
	v.SetDefault("server.cors_origins", []string{"*"})

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "legisub.db")
	v.SetDefault("database.max_open_conns", defaultMaxOpenConns)
	v.SetDefault("database.max_idle_conns", defaultMaxIdleConns)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.conn_max_idle_time", defaultConnMaxIdleTime)
	v.SetDefault("database.log_level", "warn")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	v.SetDefault("asr.sample_rate_hz", 16000)
	v.SetDefault("asr.language", "ko")
	v.SetDefault("asr.reconnect_min_delay", defaultASRReconnectMinDelay)
	v.SetDefault("asr.reconnect_max_delay", defaultASRReconnectMaxDelay)
	v.SetDefault("asr.keepalive_interval", defaultASRKeepaliveInterval)

	v.SetDefault("live_status.poll_interval", defaultLiveStatusPoll)
	v.SetDefault("live_status.cache_ttl", defaultLiveStatusCacheTTL)
	v.SetDefault("live_status.subscriber_queue_size", defaultSubscriberQueueSize)

	v.SetDefault("hls.fetch_interval", defaultHLSFetchInterval)
	v.SetDefault("hls.user_agent", "legisub-hls-reader/1.0")

	v.SetDefault("auto_stt.enabled", false)
	v.SetDefault("auto_stt.reconcile_interval", defaultAutoSTTReconcile)

	v.SetDefault("refiner.batch_size", defaultRefinerBatchSize)
	v.SetDefault("refiner.batch_interval", defaultRefinerBatchInterval)

	v.SetDefault("object_store.part_size", defaultObjectStorePartSize)
	v.SetDefault("object_store.use_tls", true)

	v.SetDefault("vod.download_timeout", defaultVODDownloadTimeout)
	v.SetDefault("vod.transcribe_timeout", defaultVODTranscribeTimeout)
	v.SetDefault("vod.task_state_gc_period", defaultVODTaskStateGCPeriod)
	v.SetDefault("vod.task_state_retention", defaultVODTaskStateRetention)
	v.SetDefault("vod.download_chunk_size", defaultVODDownloadChunkSize)
	v.SetDefault("vod.upload_chunk_size", defaultVODUploadChunkSize)
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	const maxPort = 65535
	if c.Server.Port < 1 || c.Server.Port > maxPort {
		return fmt.Errorf("server.port must be between 1 and %d", maxPort)
	}

	validDrivers := map[string]bool{"sqlite": true, "postgres": true, "mysql": true}
	if !validDrivers[c.Database.Driver] {
		return fmt.Errorf("database.driver must be one of: sqlite, postgres, mysql")
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	if c.Refiner.BatchSize < 1 {
		return fmt.Errorf("refiner.batch_size must be at least 1")
	}
	if c.ASR.SampleRateHz < 1 {
		return fmt.Errorf("asr.sample_rate_hz must be at least 1")
	}
	if c.AutoSTT.Enabled && c.AutoSTT.ReconcileInterval <= 0 {
		return fmt.Errorf("auto_stt.reconcile_interval must be positive when auto_stt.enabled is true")
	}

	return nil
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// byteSizeDecodeHook lets mapstructure/viper decode human-readable size
// strings ("8MB") and plain integers into bytesize.Size, mirroring
// StringToTimeDurationHookFunc's string/numeric handling.
func byteSizeDecodeHook(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
	if to != reflect.TypeOf(bytesize.Size(0)) {
		return data, nil
	}
	switch from.Kind() {
	case reflect.String:
		return bytesize.Parse(data.(string))
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return bytesize.Size(reflect.ValueOf(data).Int()), nil
	case reflect.Float32, reflect.Float64:
		return bytesize.Size(reflect.ValueOf(data).Float()), nil
	default:
		return data, nil
	}
}

// durationDecodeHook lets mapstructure/viper decode duration strings in
// pkg/duration's format ("30s", "5m", "1h", "30d") into time.Duration.
func durationDecodeHook(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
	if to != reflect.TypeOf(time.Duration(0)) || from.Kind() != reflect.String {
		return data, nil
	}
	return duration.Parse(data.(string))
}
