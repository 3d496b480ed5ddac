// Package config は環境変数と設定ファイルから設定を読み込み、アプリケーション全体で使用する設定を提供します。
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

const defaultConfigFile = "config.toml"

// Config はアプリケーションの設定を保持する構造体です。
type Config struct {
	// 認証設定
	AuthPassword        string // ログイン用パスワード（優先キー）
	AuthDefaultPassword string // AuthPassword が空のときに使うパスワード
	SessionSecret       string // セッションCookie署名用の秘密鍵

	// サーバー設定
	Port    string // APIサーバーのポート番号
	GinMode string // Ginの実行モード (debug, release, test)

	// CORS設定
	CORSAllowedOrigins string // CORS許可オリジン（カンマ区切り）

	// ログ設定
	LogLevel      string
	LogFormatJSON bool
	LogFile       string // 空の場合は標準出力のみ

	// セッション失効リスト（空の場合はプロセス内メモリ）
	RevocationRedisURL string

	// ログイン試行制限
	LoginMaxAttempts   int // 0以下で無効
	LoginWindowMinutes int
	LoginLockMinutes   int
}

// fileConfig は TOML 設定ファイルの構造です。
type fileConfig struct {
	Auth struct {
		Password        string `toml:"password"`
		DefaultPassword string `toml:"default_password"`
		SessionSecret   string `toml:"session_secret"`
	} `toml:"auth"`
	Server struct {
		Port               string `toml:"port"`
		GinMode            string `toml:"gin_mode"`
		CORSAllowedOrigins string `toml:"cors_allowed_origins"`
	} `toml:"server"`
	Log struct {
		Level string `toml:"level"`
		JSON  bool   `toml:"json"`
		File  string `toml:"file"`
	} `toml:"log"`
	Revocation struct {
		RedisURL string `toml:"redis_url"`
	} `toml:"revocation"`
}

// Load は環境変数から設定を読み込みます。
// .env.local ファイルと TOML 設定ファイルが存在する場合はそれらも読み込みます。
// 優先順位は 環境変数 > 設定ファイル > デフォルト値 です。
func Load() (*Config, error) {
	// .env.local ファイルを読み込む（存在しない場合はスキップ）
	loadEnvFile()

	file, err := loadConfigFile(getEnv("CONFIG_FILE", defaultConfigFile))
	if err != nil {
		return nil, err
	}

	config := &Config{
		// 認証設定
		AuthPassword:        getEnv("AUTH_PASSWORD", file.Auth.Password),
		AuthDefaultPassword: getEnv("AUTH_DEFAULT_PASSWORD", file.Auth.DefaultPassword),
		SessionSecret:       getEnv("SESSION_SECRET", file.Auth.SessionSecret),

		// サーバー設定
		Port:    getEnv("PORT", orDefault(file.Server.Port, "8080")),
		GinMode: getEnv("GIN_MODE", orDefault(file.Server.GinMode, "debug")),

		// CORS設定
		CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", orDefault(file.Server.CORSAllowedOrigins, "http://localhost:5173")),

		// ログ設定
		LogLevel:      getEnv("LOG_LEVEL", orDefault(file.Log.Level, "info")),
		LogFormatJSON: getEnvAsBool("LOG_FORMAT_JSON", file.Log.JSON),
		LogFile:       getEnv("LOG_FILE", file.Log.File),

		RevocationRedisURL: getEnv("REVOCATION_REDIS_URL", file.Revocation.RedisURL),

		// ログイン試行制限
		LoginMaxAttempts:   getEnvAsInt("LOGIN_MAX_ATTEMPTS", 5),
		LoginWindowMinutes: getEnvAsInt("LOGIN_WINDOW_MINUTES", 15),
		LoginLockMinutes:   getEnvAsInt("LOGIN_LOCK_MINUTES", 10),
	}

	// 必須設定のバリデーション
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Password はログインに使うパスワードを返します。
// 優先キーが空の場合はデフォルトキーの値を返し、両方空なら空文字列です。
func (c *Config) Password() string {
	if c.AuthPassword != "" {
		return c.AuthPassword
	}
	return c.AuthDefaultPassword
}

// Validate は設定の妥当性を検証します。
func (c *Config) Validate() error {
	switch c.GinMode {
	case "debug", "release", "test":
	default:
		return fmt.Errorf("unknown GIN_MODE: %q", c.GinMode)
	}

	// パスワード未設定は起動エラーにしない（ログイン時に 500 を返す）
	if c.GinMode == "release" {
		if c.SessionSecret == "" {
			return fmt.Errorf("SESSION_SECRET is required in release mode")
		}
	}

	return nil
}

func loadEnvFile() {
	if err := godotenv.Load(".env.local"); err == nil {
		return
	}

	cwd, err := os.Getwd()
	if err != nil {
		return
	}

	parent := filepath.Dir(cwd)
	if parent == "" || parent == cwd {
		return
	}

	_ = godotenv.Load(filepath.Join(parent, ".env.local"))
}

// loadConfigFile は TOML 設定ファイルを読み込みます。ファイルが無い場合は空の設定を返します。
func loadConfigFile(path string) (*fileConfig, error) {
	var fc fileConfig
	if path == "" {
		return &fc, nil
	}
	if _, err := toml.DecodeFile(path, &fc); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &fc, nil
		}
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return &fc, nil
}

// getEnv は環境変数を取得し、存在しない場合はデフォルト値を返します。
func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvAsInt は環境変数を整数として取得します。
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func orDefault(value, defaultValue string) string {
	if value == "" {
		return defaultValue
	}
	return value
}
