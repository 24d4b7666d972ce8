package config

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// AppConfig holds environment driven configuration values.
// Secrets (Elasticsearch, Redis, S3 credentials) have no defaults and must come from the config file or the environment.
type AppConfig struct {
	AppPort            string
	RateLimitPerMinute int
	AllowedOrigins     []string
	MaxUploadMB        int
	// Gin framework configuration
	GinMode string
	GinPath string
	// On-disk layout
	PostsDir        string
	UploadsDir      string
	ImagesDir       string
	ImagesURLPrefix string
	// Search sink (Elasticsearch)
	SearchEnabled bool
	ESURL         string
	ESIndex       string
	ESUsername    string
	ESPassword    string
	// Redis response cache
	RedisEnabled    bool
	RedisHost       string
	RedisPort       int
	RedisDB         int
	RedisPassword   string
	CacheTTLSeconds int
	// Logging configuration
	LogLevel      string
	LogPath       string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int
	LogCompress   bool
	// Export staging sweeper and archive offload
	ExportSweepMinutes int
	ExportS3Endpoint   string
	ExportS3Region     string
	ExportS3Bucket     string
	ExportS3AccessKey  string
	ExportS3SecretKey  string
	ExportS3Prefix     string
	ExportS3UseSSL     bool
}

var cfg AppConfig
var loaded bool

// Load loads the application configuration. It should be called once during boot.
func Load() AppConfig {
	if loaded {
		return cfg
	}
	cfg = LoadFrom(filepath.Join("config", "config.json"))
	loaded = true
	return cfg
}

// LoadFrom builds a configuration from the given JSON file without caching it.
// Precedence: .env (into the environment) -> JSON file -> defaults -> environment variable overrides.
func LoadFrom(path string) AppConfig {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	var c AppConfig
	if err := loadJSONConfig(path, &c); err != nil {
		log.Printf("invalid config file %s: %v", path, err)
	}
	applyDefaults(&c)
	applyEnvOverrides(&c)
	if c.ExportSweepMinutes < 1 {
		c.ExportSweepMinutes = 1
	}
	return c
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// loadJSONConfig reads JSON file into out if present. Returns error only for invalid JSON.
func loadJSONConfig(path string, out *AppConfig) error {
	f, err := os.Open(path)
	if err != nil {
		return nil // silently ignore missing file
	}
	defer f.Close()

	var raw map[string]any
	if err := json.NewDecoder(f).Decode(&raw); err != nil {
		return err
	}

	getString := func(m map[string]any, key string) string {
		if v, ok := m[key]; ok {
			if s, ok := v.(string); ok {
				return s
			}
		}
		return ""
	}
	getInt := func(m map[string]any, key string) int {
		if v, ok := m[key]; ok {
			switch t := v.(type) {
			case float64:
				return int(t)
			case int:
				return t
			}
		}
		return 0
	}
	getBool := func(m map[string]any, key string) bool {
		if v, ok := m[key]; ok {
			if b, ok := v.(bool); ok {
				return b
			}
		}
		return false
	}
	getStringSlice := func(m map[string]any, key string) []string {
		if v, ok := m[key]; ok {
			if arr, ok := v.([]any); ok {
				res := make([]string, 0, len(arr))
				for _, it := range arr {
					if s, ok := it.(string); ok {
						res = append(res, s)
					}
				}
				return res
			}
		}
		return nil
	}

	if app, ok := raw["app"].(map[string]any); ok {
		out.AppPort = getString(app, "AppPort")
		out.RateLimitPerMinute = getInt(app, "RateLimitPerMinute")
		out.MaxUploadMB = getInt(app, "MaxUploadMB")
		out.AllowedOrigins = getStringSlice(app, "AllowedOrigins")
		out.GinMode = getString(app, "GinMode")
		out.GinPath = getString(app, "GinPath")
	}

	if st, ok := raw["storage"].(map[string]any); ok {
		out.PostsDir = getString(st, "PostsDir")
		out.UploadsDir = getString(st, "UploadsDir")
		out.ImagesDir = getString(st, "ImagesDir")
		out.ImagesURLPrefix = getString(st, "ImagesURLPrefix")
	}

	if sr, ok := raw["search"].(map[string]any); ok {
		out.SearchEnabled = getBool(sr, "Enabled")
		out.ESURL = getString(sr, "URL")
		out.ESIndex = getString(sr, "Index")
		out.ESUsername = getString(sr, "Username")
		out.ESPassword = getString(sr, "Password")
	}

	if rds, ok := raw["redis"].(map[string]any); ok {
		out.RedisEnabled = getBool(rds, "Enabled")
		out.RedisHost = getString(rds, "RedisHost")
		out.RedisPort = getInt(rds, "RedisPort")
		out.RedisDB = getInt(rds, "RedisDB")
		out.RedisPassword = getString(rds, "RedisPassword")
		out.CacheTTLSeconds = getInt(rds, "CacheTTLSeconds")
	}

	if lg, ok := raw["log"].(map[string]any); ok {
		out.LogLevel = getString(lg, "Level")
		out.LogPath = getString(lg, "Path")
		out.LogMaxSizeMB = getInt(lg, "MaxSizeMB")
		out.LogMaxBackups = getInt(lg, "MaxBackups")
		out.LogMaxAgeDays = getInt(lg, "MaxAgeDays")
		out.LogCompress = getBool(lg, "Compress")
	}

	if ex, ok := raw["export"].(map[string]any); ok {
		out.ExportSweepMinutes = getInt(ex, "SweepMinutes")
		if s3, ok := ex["s3"].(map[string]any); ok {
			out.ExportS3Endpoint = getString(s3, "Endpoint")
			out.ExportS3Region = getString(s3, "Region")
			out.ExportS3Bucket = getString(s3, "Bucket")
			out.ExportS3AccessKey = getString(s3, "AccessKey")
			out.ExportS3SecretKey = getString(s3, "SecretKey")
			out.ExportS3Prefix = getString(s3, "Prefix")
			out.ExportS3UseSSL = getBool(s3, "UseSSL")
		}
	}

	return nil
}

// applyDefaults sets sane defaults for zero-value fields.
func applyDefaults(c *AppConfig) {
	if c.AppPort == "" {
		c.AppPort = "8002"
	}
	if c.GinMode == "" {
		c.GinMode = "release"
	}
	if c.GinPath == "" {
		c.GinPath = "logs/go_gin.log"
	}
	if c.RateLimitPerMinute == 0 {
		c.RateLimitPerMinute = 60
	}
	if c.MaxUploadMB == 0 {
		c.MaxUploadMB = 50
	}
	if len(c.AllowedOrigins) == 0 {
		c.AllowedOrigins = []string{"*"}
	}
	if c.PostsDir == "" {
		c.PostsDir = filepath.Join("data", "posts")
	}
	if c.UploadsDir == "" {
		c.UploadsDir = filepath.Join("data", "uploads")
	}
	if c.ImagesDir == "" {
		c.ImagesDir = filepath.Join("data", "images")
	}
	if c.ImagesURLPrefix == "" {
		c.ImagesURLPrefix = "/static/images"
	}
	c.ImagesURLPrefix = "/" + strings.Trim(c.ImagesURLPrefix, "/")
	if c.ESURL == "" {
		c.ESURL = "http://localhost:9200"
	}
	if c.ESIndex == "" {
		c.ESIndex = "posts"
	}
	if c.RedisHost == "" {
		c.RedisHost = "127.0.0.1"
	}
	if c.RedisPort == 0 {
		c.RedisPort = 6379
	}
	if c.CacheTTLSeconds == 0 {
		c.CacheTTLSeconds = 3600
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogMaxSizeMB == 0 {
		c.LogMaxSizeMB = 100
	}
	if c.LogMaxBackups == 0 {
		c.LogMaxBackups = 3
	}
	if c.LogMaxAgeDays == 0 {
		c.LogMaxAgeDays = 7
	}
	if c.ExportSweepMinutes == 0 {
		c.ExportSweepMinutes = 30
	}
	if c.ExportS3Prefix == "" {
		c.ExportS3Prefix = "exports"
	}
}

// applyEnvOverrides maps known environment variables onto config values when present.
func applyEnvOverrides(c *AppConfig) {
	if v := getEnv("APP_PORT", ""); v != "" {
		c.AppPort = v
	}
	if v := getEnv("GIN_MODE", ""); v != "" {
		c.GinMode = v
	}
	if v := getEnv("GIN_PATH", ""); v != "" {
		c.GinPath = v
	}
	if v := getEnv("CORS_ALLOWED_ORIGINS", ""); v != "" {
		c.AllowedOrigins = splitAndTrim(v)
	}
	if v := getEnv("RATE_LIMIT_PER_MINUTE", ""); v != "" {
		c.RateLimitPerMinute = mustParseInt(v)
	}
	if v := getEnv("MAX_UPLOAD_MB", ""); v != "" {
		c.MaxUploadMB = mustParseInt(v)
	}
	if v := getEnv("POSTS_DIR", ""); v != "" {
		c.PostsDir = v
	}
	if v := getEnv("UPLOADS_DIR", ""); v != "" {
		c.UploadsDir = v
	}
	if v := getEnv("IMAGES_DIR", ""); v != "" {
		c.ImagesDir = v
	}
	if v := getEnv("IMAGES_URL_PREFIX", ""); v != "" {
		c.ImagesURLPrefix = "/" + strings.Trim(v, "/")
	}
	if v := getEnv("SEARCH_ENABLED", ""); v != "" {
		c.SearchEnabled = v == "true"
	}
	if v := getEnv("ES_URL", ""); v != "" {
		c.ESURL = v
	}
	if v := getEnv("ES_INDEX", ""); v != "" {
		c.ESIndex = v
	}
	if v := getEnv("ES_USERNAME", ""); v != "" {
		c.ESUsername = v
	}
	if v := getEnv("ES_PASSWORD", ""); v != "" {
		c.ESPassword = v
	}
	if v := getEnv("REDIS_ENABLED", ""); v != "" {
		c.RedisEnabled = v == "true"
	}
	if v := getEnv("REDIS_HOST", ""); v != "" {
		c.RedisHost = v
	}
	if v := getEnv("REDIS_PORT", ""); v != "" {
		c.RedisPort = mustParseInt(v)
	}
	if v := getEnv("REDIS_DB", ""); v != "" {
		c.RedisDB = mustParseInt(v)
	}
	if v := getEnv("REDIS_PASSWORD", ""); v != "" {
		c.RedisPassword = v
	}
	if v := getEnv("CACHE_TTL_SECONDS", ""); v != "" {
		c.CacheTTLSeconds = mustParseInt(v)
	}
	if v := getEnv("LOG_LEVEL", ""); v != "" {
		c.LogLevel = v
	}
	if v := getEnv("LOG_PATH", ""); v != "" {
		c.LogPath = v
	}
	if v := getEnv("LOG_MAX_SIZE_MB", ""); v != "" {
		c.LogMaxSizeMB = mustParseInt(v)
	}
	if v := getEnv("LOG_MAX_BACKUPS", ""); v != "" {
		c.LogMaxBackups = mustParseInt(v)
	}
	if v := getEnv("LOG_MAX_AGE_DAYS", ""); v != "" {
		c.LogMaxAgeDays = mustParseInt(v)
	}
	if v := getEnv("LOG_COMPRESS", ""); v != "" {
		c.LogCompress = v == "true"
	}
	if v := getEnv("EXPORT_SWEEP_MINUTES", ""); v != "" {
		c.ExportSweepMinutes = mustParseInt(v)
	}
	if v := getEnv("EXPORT_S3_ENDPOINT", ""); v != "" {
		c.ExportS3Endpoint = v
	}
	if v := getEnv("EXPORT_S3_REGION", ""); v != "" {
		c.ExportS3Region = v
	}
	if v := getEnv("EXPORT_S3_BUCKET", ""); v != "" {
		c.ExportS3Bucket = v
	}
	if v := getEnv("EXPORT_S3_ACCESS_KEY", ""); v != "" {
		c.ExportS3AccessKey = v
	}
	if v := getEnv("EXPORT_S3_SECRET_KEY", ""); v != "" {
		c.ExportS3SecretKey = v
	}
	if v := getEnv("EXPORT_S3_PREFIX", ""); v != "" {
		c.ExportS3Prefix = v
	}
	if v := getEnv("EXPORT_S3_USE_SSL", ""); v != "" {
		c.ExportS3UseSSL = v == "true"
	}
}

func mustParseInt(val string) int {
	i, err := strconv.Atoi(val)
	if err != nil {
		log.Fatalf("invalid integer value %s: %v", val, err)
	}
	return i
}

func splitAndTrim(raw string) []string {
	items := []string{}
	for _, item := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}
