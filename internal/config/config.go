package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const envPrefix = "MEDIA"

type Config struct {
	HTTP      HTTPConfig      `mapstructure:"http"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Search    SearchConfig    `mapstructure:"search"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Transcode TranscodeConfig `mapstructure:"transcode"`
	Worker    WorkerConfig    `mapstructure:"worker"`
	Outbox    OutboxConfig    `mapstructure:"outbox"`
	Reconcile ReconcileConfig `mapstructure:"reconcile"`
	Log       LogConfig       `mapstructure:"log"`
}

type HTTPConfig struct {
	Addr              string        `mapstructure:"addr"`
	PublicURL         string        `mapstructure:"public_url"`
	MaxUploadBytes    int64         `mapstructure:"max_upload_bytes"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

type KafkaConfig struct {
	Brokers      []string      `mapstructure:"brokers"`
	Topic        string        `mapstructure:"topic"`
	GroupID      string        `mapstructure:"group_id"`
	Partitions   int           `mapstructure:"partitions"`
	Replication  int           `mapstructure:"replication"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
	MaxBackoff   time.Duration `mapstructure:"max_backoff"`
}

type StorageConfig struct {
	UploadDir string `mapstructure:"upload_dir"`
}

type SearchConfig struct {
	Addresses []string `mapstructure:"addresses"`
	Index     string   `mapstructure:"index"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
}

type AuthConfig struct {
	JWTSecret    string        `mapstructure:"jwt_secret"`
	Issuer       string        `mapstructure:"issuer"`
	TokenTTL     time.Duration `mapstructure:"token_ttl"`
	UploaderRole string        `mapstructure:"uploader_role"`
}

type TranscodeConfig struct {
	FFmpegPath     string        `mapstructure:"ffmpeg_path"`
	FFprobePath    string        `mapstructure:"ffprobe_path"`
	SegmentSeconds int           `mapstructure:"segment_seconds"`
	VideoPreset    string        `mapstructure:"video_preset"`
	Timeout        time.Duration `mapstructure:"timeout"`
}

type WorkerConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

type OutboxConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Interval  time.Duration `mapstructure:"interval"`
	BatchSize int           `mapstructure:"batch_size"`
}

type ReconcileConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
	PageSize int           `mapstructure:"page_size"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads .env (if present), then the optional YAML file at path, then
// MEDIA_* environment variables, e.g. MEDIA_KAFKA_BROKERS=a:9092,b:9092.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.normalize()
	return &cfg, nil
}

// Every key needs a default so that AutomaticEnv overrides reach Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("http.addr", ":8081")
	v.SetDefault("http.public_url", "http://localhost:8081")
	v.SetDefault("http.max_upload_bytes", int64(1<<30))
	v.SetDefault("http.read_header_timeout", 5*time.Second)
	v.SetDefault("http.shutdown_timeout", 10*time.Second)

	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 30*time.Minute)
	v.SetDefault("database.conn_max_idle_time", 5*time.Minute)
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "media.transcode")
	v.SetDefault("kafka.group_id", "media-transcoder")
	v.SetDefault("kafka.partitions", 1)
	v.SetDefault("kafka.replication", 1)
	v.SetDefault("kafka.write_timeout", 10*time.Second)
	v.SetDefault("kafka.retry_backoff", time.Second)
	v.SetDefault("kafka.max_backoff", time.Minute)

	v.SetDefault("storage.upload_dir", "./uploads")

	v.SetDefault("search.addresses", []string{"http://localhost:9200"})
	v.SetDefault("search.index", "media")
	v.SetDefault("search.username", "")
	v.SetDefault("search.password", "")

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.issuer", "")
	v.SetDefault("auth.token_ttl", 24*time.Hour)
	v.SetDefault("auth.uploader_role", "uploader")

	v.SetDefault("transcode.ffmpeg_path", "ffmpeg")
	v.SetDefault("transcode.ffprobe_path", "ffprobe")
	v.SetDefault("transcode.segment_seconds", 6)
	v.SetDefault("transcode.video_preset", "veryfast")
	v.SetDefault("transcode.timeout", time.Duration(0))

	v.SetDefault("worker.enabled", true)

	v.SetDefault("outbox.enabled", true)
	v.SetDefault("outbox.interval", 2*time.Second)
	v.SetDefault("outbox.batch_size", 100)

	v.SetDefault("reconcile.enabled", true)
	v.SetDefault("reconcile.interval", 10*time.Minute)
	v.SetDefault("reconcile.page_size", 500)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

func (c *Config) normalize() {
	c.HTTP.PublicURL = strings.TrimRight(strings.TrimSpace(c.HTTP.PublicURL), "/")
	if c.HTTP.MaxUploadBytes <= 0 {
		c.HTTP.MaxUploadBytes = 1 << 30
	}
	if c.HTTP.ShutdownTimeout <= 0 {
		c.HTTP.ShutdownTimeout = 10 * time.Second
	}

	c.Kafka.Brokers = compact(c.Kafka.Brokers)
	if c.Kafka.Partitions <= 0 {
		c.Kafka.Partitions = 1
	}
	if c.Kafka.Replication <= 0 {
		c.Kafka.Replication = 1
	}
	if c.Kafka.RetryBackoff <= 0 {
		c.Kafka.RetryBackoff = time.Second
	}
	if c.Kafka.MaxBackoff < c.Kafka.RetryBackoff {
		c.Kafka.MaxBackoff = c.Kafka.RetryBackoff
	}

	c.Search.Addresses = compact(c.Search.Addresses)

	if c.Transcode.SegmentSeconds <= 0 {
		c.Transcode.SegmentSeconds = 6
	}
	if c.Transcode.Timeout < 0 {
		c.Transcode.Timeout = 0
	}

	if c.Outbox.BatchSize <= 0 {
		c.Outbox.BatchSize = 100
	}
	if c.Outbox.Interval <= 0 {
		c.Outbox.Interval = 2 * time.Second
	}
	if c.Reconcile.PageSize <= 0 {
		c.Reconcile.PageSize = 500
	}
	if c.Reconcile.Interval <= 0 {
		c.Reconcile.Interval = 10 * time.Minute
	}

	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	c.Log.Format = strings.ToLower(strings.TrimSpace(c.Log.Format))
}

// Validate reports every missing setting needed by the background tasks at once.
// Processes that authenticate requests also check Auth.Validate.
func (c *Config) Validate() error {
	var errs []error
	if c.Database.DSN == "" {
		errs = append(errs, errors.New("database.dsn is required"))
	}
	if len(c.Kafka.Brokers) == 0 {
		errs = append(errs, errors.New("kafka.brokers is required"))
	}
	if c.Kafka.Topic == "" {
		errs = append(errs, errors.New("kafka.topic is required"))
	}
	if c.Kafka.GroupID == "" {
		errs = append(errs, errors.New("kafka.group_id is required"))
	}
	if c.Storage.UploadDir == "" {
		errs = append(errs, errors.New("storage.upload_dir is required"))
	}
	if len(c.Search.Addresses) == 0 {
		errs = append(errs, errors.New("search.addresses is required"))
	}
	if c.Search.Index == "" {
		errs = append(errs, errors.New("search.index is required"))
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("log.format must be json or console, got %q", c.Log.Format))
	}
	return errors.Join(errs...)
}

func (a AuthConfig) Validate() error {
	var errs []error
	if a.JWTSecret == "" {
		errs = append(errs, errors.New("auth.jwt_secret is required"))
	}
	if a.UploaderRole == "" {
		errs = append(errs, errors.New("auth.uploader_role is required"))
	}
	return errors.Join(errs...)
}

func compact(in []string) []string {
	out := in[:0]
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
