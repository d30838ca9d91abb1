package config

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

type Config struct {
	HTTPPort    string `mapstructure:"http_port"`
	HTTPTimeout int    `mapstructure:"http_timeout"`

	PostgresHost            string `mapstructure:"postgres_host"              validate:"required"`
	PostgresUsername        string `mapstructure:"postgres_username"          validate:"required"`
	PostgresPassword        string `mapstructure:"postgres_password"          validate:"required"`
	PostgresPort            string `mapstructure:"postgres_port"              validate:"required"`
	PostgresDatabase        string `mapstructure:"postgres_database"          validate:"required"`
	DBIntervalCB            uint32 `mapstructure:"db_interval_cb"`
	DBConsecutiveFailuresCB uint32 `mapstructure:"db_consecutive_failures_cb"`

	KafkaBootstrapServer       string `mapstructure:"kafka_bootstrap_server"        validate:"required"`
	KafkaUsername              string `mapstructure:"kafka_username"                validate:"required"`
	KafkaPassword              string `mapstructure:"kafka_password"                validate:"required"`
	KafkaSessionEventsTopic    string `mapstructure:"kafka_session_events_topic"    validate:"required"`
	KafkaIntervalCB            uint32 `mapstructure:"kafka_interval_cb"`
	KafkaConsecutiveFailuresCB uint32 `mapstructure:"kafka_consecutive_failures_cb"`

	AnalysisBaseUrl               string `mapstructure:"analysis_base_url"                validate:"required"`
	AnalysisAPIKey                string `mapstructure:"analysis_api_key"                 validate:"required"`
	AnalysisModel                 string `mapstructure:"analysis_model"                   validate:"required"`
	AnalysisTimeout               int    `mapstructure:"analysis_timeout"`
	AnalysisRetryMaxAttempts      uint   `mapstructure:"analysis_retry_max_attempts"`
	AnalysisRetryMinBackoff       int    `mapstructure:"analysis_retry_min_backoff"`
	AnalysisRetryMaxBackoff       int    `mapstructure:"analysis_retry_max_backoff"`
	AnalysisIntervalCB            uint32 `mapstructure:"analysis_interval_cb"`
	AnalysisConsecutiveFailuresCB uint32 `mapstructure:"analysis_consecutive_failures_cb"`

	MinioEndpointURL            string `mapstructure:"minio_endpoint_url"              validate:"required"`
	MinioAccessKey              string `mapstructure:"minio_access_key"                validate:"required"`
	MinioSecretKey              string `mapstructure:"minio_secret_key"                validate:"required"`
	MinioBucketName             string `mapstructure:"minio_bucket_name"               validate:"required"`
	MinioPathPrefix             string `mapstructure:"minio_path_prefix"               validate:"required"`
	MinioMaxRetryAttempts       uint   `mapstructure:"minio_max_retry_attempts"`
	MinioRetryBackoffMinSeconds int    `mapstructure:"minio_retry_backoff_min_seconds"`
	MinioRetryBackoffMaxSeconds int    `mapstructure:"minio_retry_backoff_max_seconds"`
	MinioTimeout                int    `mapstructure:"minio_timeout"`
	MinioIntervalCB             uint32 `mapstructure:"minio_interval_cb"`
	MinioConsecutiveFailuresCB  uint32 `mapstructure:"minio_consecutive_failures_cb"`

	CommissionRate      float64 `mapstructure:"commission_rate"       validate:"gt=0,lt=1"`
	DefaultRate10Min    float64 `mapstructure:"default_rate_10min"`
	DefaultRate20Min    float64 `mapstructure:"default_rate_20min"`
	MatchCandidateLimit int     `mapstructure:"match_candidate_limit"`

	OutboxPoolSize     int `mapstructure:"outbox_pool_size"`
	OutboxMaxRetries   int `mapstructure:"outbox_max_retries"`
	OutboxLimit        int `mapstructure:"outbox_limit"`
	OutboxInterval     int `mapstructure:"outbox_interval"`
	OutboxRetryDelay   int `mapstructure:"outbox_retry_delay"`

	LogLevel    string `mapstructure:"log_level"`
	LogFilePath string `mapstructure:"log_file_path"`

	HealthCheckerMonitorInterval int `mapstructure:"health_checker_monitor_interval"`

	PrometheusPort    string `mapstructure:"prometheus_port"`
	PrometheusTimeout int    `mapstructure:"prometheus_timeout"`
}

var Conf Config

func init() {
	err := loadEnvConfig(&Conf)
	if err != nil {
		zap.NewExample().Fatal("failed to load config", zap.String("error", err.Error()))
	}
}

func loadEnvConfig(cfg *Config) error {
	viper.AutomaticEnv()
	viper.AllowEmptyEnv(true)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setupDefaults()

	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")

	err := viper.ReadInConfig()
	if err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError

		ok := errors.As(err, &configFileNotFoundError)
		if !ok {
			return err
		}
	}

	err = viper.Unmarshal(cfg)
	if err != nil {
		return err
	}

	return nil
}

// Validate enforces the required fields. Binaries call it at startup;
// loading stays lenient so partial configs are inspectable.
func Validate() error {
	return validator.New().Struct(&Conf)
}

func setupDefaults() {
	confType := reflect.TypeOf(Conf)
	for i := range confType.NumField() {
		field := confType.Field(i)
		viper.SetDefault(field.Tag.Get("mapstructure"), "")
	}

	viper.SetDefault("HTTP_PORT", "8080")
	viper.SetDefault("HTTP_TIMEOUT", "30")
	viper.SetDefault("LOG_LEVEL", "INFO")
	viper.SetDefault("LOG_FILE_PATH", "./access.log")
	viper.SetDefault("ANALYSIS_TIMEOUT", "20")
	viper.SetDefault("ANALYSIS_RETRY_MAX_ATTEMPTS", "2")
	viper.SetDefault("ANALYSIS_RETRY_MIN_BACKOFF", "1")
	viper.SetDefault("ANALYSIS_RETRY_MAX_BACKOFF", "5")
	viper.SetDefault("ANALYSIS_INTERVAL_CB", "30")
	viper.SetDefault("ANALYSIS_CONSECUTIVE_FAILURES_CB", "3")
	viper.SetDefault("MINIO_MAX_RETRY_ATTEMPTS", "3")
	viper.SetDefault("MINIO_RETRY_BACKOFF_MIN_SECONDS", "1")
	viper.SetDefault("MINIO_RETRY_BACKOFF_MAX_SECONDS", "10")
	viper.SetDefault("MINIO_TIMEOUT", "60")
	viper.SetDefault("MINIO_INTERVAL_CB", "300")
	viper.SetDefault("MINIO_CONSECUTIVE_FAILURES_CB", "3")
	viper.SetDefault("COMMISSION_RATE", "0.25")
	viper.SetDefault("DEFAULT_RATE_10MIN", "30")
	viper.SetDefault("DEFAULT_RATE_20MIN", "50")
	viper.SetDefault("MATCH_CANDIDATE_LIMIT", "3")
	viper.SetDefault("OUTBOX_POOL_SIZE", "3")
	viper.SetDefault("OUTBOX_MAX_RETRIES", "10")
	viper.SetDefault("OUTBOX_LIMIT", "100")
	viper.SetDefault("OUTBOX_INTERVAL", "1")
	viper.SetDefault("OUTBOX_RETRY_DELAY", "1")
	viper.SetDefault("DB_INTERVAL_CB", "30")
	viper.SetDefault("DB_CONSECUTIVE_FAILURES_CB", "3")
	viper.SetDefault("KAFKA_INTERVAL_CB", "30")
	viper.SetDefault("KAFKA_CONSECUTIVE_FAILURES_CB", "5")
	viper.SetDefault("HEALTH_CHECKER_MONITOR_INTERVAL", "60")
	viper.SetDefault("PROMETHEUS_PORT", "2112")
	viper.SetDefault("PROMETHEUS_TIMEOUT", "60")
}
