package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// DefaultPath is where Load looks when no path is given.
const DefaultPath = "config.yaml"

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port                     string `yaml:"port"`
	LogLevel                 string `yaml:"logLevel"`
	LogsDir                  string `yaml:"logsDir"`
	DatabaseURL              string `yaml:"databaseURL"`
	JWTSecret                string `yaml:"jwtSecret"`
	SessionTTLHours          int    `yaml:"sessionTtlHours"`
	AIServiceURL             string `yaml:"aiServiceURL"`
	YouTubeAPIKey            string `yaml:"youtubeApiKey"`
	CORSOrigin               string `yaml:"corsOrigin"`
	MaxUploadMB              int    `yaml:"maxUploadMB"`
	RedisAddr                string `yaml:"redisAddr"`
	RedisPassword            string `yaml:"redisPassword"`
	SignupRateLimitPerMinute int    `yaml:"signupRateLimitPerMinute"`
	LoginRateLimitPerMinute  int    `yaml:"loginRateLimitPerMinute"`
	MinioEndpoint            string `yaml:"minioEndpoint"`
	MinioAccessKey           string `yaml:"minioAccessKey"`
	MinioSecretKey           string `yaml:"minioSecretKey"`
	MinioBucket              string `yaml:"minioBucket"`
	MinioUseSSL              bool   `yaml:"minioUseSSL"`
}

// Load reads config from path (defaults to config.yaml).
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = DefaultPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	// Override with environment variables
	if v := os.Getenv("PORT"); v != "" {
		cfg.Port = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("LOGS_DIR"); v != "" {
		cfg.LogsDir = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		cfg.JWTSecret = v
	}
	if v := os.Getenv("SESSION_TTL_HOURS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.SessionTTLHours = n
		}
	}
	if v := os.Getenv("AI_SERVICE_URL"); v != "" {
		cfg.AIServiceURL = v
	}
	if v := os.Getenv("YOUTUBE_API_KEY"); v != "" {
		cfg.YouTubeAPIKey = v
	}
	if v := os.Getenv("CORS_ORIGIN"); v != "" {
		cfg.CORSOrigin = v
	}
	if v := os.Getenv("MAX_UPLOAD_MB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxUploadMB = n
		}
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("SIGNUP_RATE_LIMIT_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.SignupRateLimitPerMinute = n
		}
	}
	if v := os.Getenv("LOGIN_RATE_LIMIT_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.LoginRateLimitPerMinute = n
		}
	}
	if v := os.Getenv("MINIO_ENDPOINT"); v != "" {
		cfg.MinioEndpoint = v
	}
	if v := os.Getenv("MINIO_ACCESS_KEY"); v != "" {
		cfg.MinioAccessKey = v
	}
	if v := os.Getenv("MINIO_SECRET_KEY"); v != "" {
		cfg.MinioSecretKey = v
	}
	if v := os.Getenv("MINIO_BUCKET"); v != "" {
		cfg.MinioBucket = v
	}
	if v := os.Getenv("MINIO_USE_SSL"); v != "" {
		if useSSL, err := strconv.ParseBool(v); err == nil {
			cfg.MinioUseSSL = useSSL
		}
	}
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml)")
	}
	if cfg.DatabaseURL == "" {
		return errors.New("config: databaseURL is required (set in config.yaml or DATABASE_URL)")
	}
	if cfg.JWTSecret == "" {
		return errors.New("config: jwtSecret is required (set in config.yaml or JWT_SECRET)")
	}
	if cfg.SessionTTLHours < 0 {
		return errors.New("config: sessionTtlHours must be >= 0")
	}
	if cfg.AIServiceURL == "" {
		return errors.New("config: aiServiceURL is required (set in config.yaml or AI_SERVICE_URL)")
	}
	if cfg.MaxUploadMB < 0 {
		return errors.New("config: maxUploadMB must be >= 0")
	}
	if cfg.SignupRateLimitPerMinute < 0 || cfg.LoginRateLimitPerMinute < 0 {
		return errors.New("config: rate limits must be >= 0")
	}
	if cfg.MinioEndpoint == "" {
		return errors.New("config: minioEndpoint is required (set in config.yaml or MINIO_ENDPOINT)")
	}
	if cfg.MinioAccessKey == "" || cfg.MinioSecretKey == "" {
		return errors.New("config: minio credentials are required (MINIO_ACCESS_KEY + MINIO_SECRET_KEY)")
	}
	if cfg.MinioBucket == "" {
		return errors.New("config: minioBucket is required (set in config.yaml or MINIO_BUCKET)")
	}
	return nil
}
