package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	CORS     CORSConfig
	Log      LogConfig
	Crypto   CryptoConfig
	IPFS     IPFSConfig
	Hedera   HederaConfig
	Records  RecordsConfig
	Badges   BadgesConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret     string
	Expiration time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// CryptoConfig holds the service-level encryption key material. Envelope key
// references resolve against KeyID, so moving to an external KMS is a new
// resolver implementation rather than a schema change.
type CryptoConfig struct {
	MasterKeyHex string
	KeyID        string
}

// IPFSConfig points at a Pinata-compatible pinning API and read gateway.
type IPFSConfig struct {
	APIBaseURL     string
	GatewayBaseURL string
	APIKey         string
	RequestTimeout time.Duration
}

// HederaConfig carries operator credentials plus the fixed anchor topic and
// badge NFT collection the service writes to.
type HederaConfig struct {
	Network        string
	OperatorID     string
	OperatorKey    string
	AnchorTopicID  string
	BadgeTokenID   string
	MirrorBaseURL  string
	RequestTimeout time.Duration
}

// RecordsConfig tunes the anchoring pipeline.
type RecordsConfig struct {
	MaxContentBytes  int64
	PublicCacheTTL   time.Duration
	AnchorWorkers    int
	AnchorMaxRetries int
	AnchorRetryDelay time.Duration
}

// BadgesConfig tunes badge minting.
type BadgesConfig struct {
	MetadataMaxBytes int
	Issuer           string
	Symbol           string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:     v.GetString("JWT_SECRET"),
		Expiration: parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Crypto = CryptoConfig{
		MasterKeyHex: v.GetString("CRYPTO_MASTER_KEY"),
		KeyID:        v.GetString("CRYPTO_KEY_ID"),
	}

	cfg.IPFS = IPFSConfig{
		APIBaseURL:     v.GetString("IPFS_API_BASE_URL"),
		GatewayBaseURL: v.GetString("IPFS_GATEWAY_BASE_URL"),
		APIKey:         v.GetString("IPFS_API_KEY"),
		RequestTimeout: parseDuration(v.GetString("IPFS_REQUEST_TIMEOUT"), 30*time.Second),
	}

	cfg.Hedera = HederaConfig{
		Network:        v.GetString("HEDERA_NETWORK"),
		OperatorID:     v.GetString("HEDERA_OPERATOR_ID"),
		OperatorKey:    v.GetString("HEDERA_OPERATOR_KEY"),
		AnchorTopicID:  v.GetString("HEDERA_ANCHOR_TOPIC_ID"),
		BadgeTokenID:   v.GetString("HEDERA_BADGE_TOKEN_ID"),
		MirrorBaseURL:  v.GetString("HEDERA_MIRROR_BASE_URL"),
		RequestTimeout: parseDuration(v.GetString("HEDERA_REQUEST_TIMEOUT"), 30*time.Second),
	}

	cfg.Records = RecordsConfig{
		MaxContentBytes:  v.GetInt64("RECORDS_MAX_CONTENT_BYTES"),
		PublicCacheTTL:   parseDuration(v.GetString("RECORDS_PUBLIC_CACHE_TTL"), 5*time.Minute),
		AnchorWorkers:    v.GetInt("RECORDS_ANCHOR_WORKERS"),
		AnchorMaxRetries: v.GetInt("RECORDS_ANCHOR_MAX_RETRIES"),
		AnchorRetryDelay: parseDuration(v.GetString("RECORDS_ANCHOR_RETRY_DELAY"), 30*time.Second),
	}

	cfg.Badges = BadgesConfig{
		MetadataMaxBytes: v.GetInt("BADGES_METADATA_MAX_BYTES"),
		Issuer:           v.GetString("BADGES_ISSUER"),
		Symbol:           v.GetString("BADGES_SYMBOL"),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "vitalchain")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "24h")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("CRYPTO_MASTER_KEY", "")
	v.SetDefault("CRYPTO_KEY_ID", "local-master-v1")

	v.SetDefault("IPFS_API_BASE_URL", "https://api.pinata.cloud")
	v.SetDefault("IPFS_GATEWAY_BASE_URL", "https://gateway.pinata.cloud/ipfs")
	v.SetDefault("IPFS_API_KEY", "")
	v.SetDefault("IPFS_REQUEST_TIMEOUT", "30s")

	v.SetDefault("HEDERA_NETWORK", "testnet")
	v.SetDefault("HEDERA_OPERATOR_ID", "")
	v.SetDefault("HEDERA_OPERATOR_KEY", "")
	v.SetDefault("HEDERA_ANCHOR_TOPIC_ID", "")
	v.SetDefault("HEDERA_BADGE_TOKEN_ID", "")
	v.SetDefault("HEDERA_MIRROR_BASE_URL", "https://testnet.mirrornode.hedera.com")
	v.SetDefault("HEDERA_REQUEST_TIMEOUT", "30s")

	v.SetDefault("RECORDS_MAX_CONTENT_BYTES", 1024*1024)
	v.SetDefault("RECORDS_PUBLIC_CACHE_TTL", "5m")
	v.SetDefault("RECORDS_ANCHOR_WORKERS", 1)
	v.SetDefault("RECORDS_ANCHOR_MAX_RETRIES", 3)
	v.SetDefault("RECORDS_ANCHOR_RETRY_DELAY", "30s")

	v.SetDefault("BADGES_METADATA_MAX_BYTES", 100)
	v.SetDefault("BADGES_ISSUER", "VitalChain")
	v.SetDefault("BADGES_SYMBOL", "VCB")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
