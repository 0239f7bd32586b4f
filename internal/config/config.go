package config

import (
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config хранит все настройки приложения
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Engine    EngineConfig
	Codec     CodecConfig
	Ledger    LedgerConfig
	Notify    NotifyConfig
	WebSocket WebSocketConfig
}

// ServerConfig содержит настройки HTTP сервера
type ServerConfig struct {
	Port         string
	ReadTimeout  int
	WriteTimeout int
}

// DatabaseConfig содержит настройки подключения к PostgreSQL
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RedisConfig содержит унифицированные настройки подключения к Redis
// Поддерживает режимы: single, sentinel, cluster
type RedisConfig struct {
	// Mode: Режим работы Redis ("single", "sentinel", "cluster"). По умолчанию "single".
	Mode string `mapstructure:"mode"`

	// Addrs: Список адресов Redis (хост:порт). Используется для всех режимов.
	// Для 'single', если не пуст, используется первый адрес из списка.
	Addrs []string `mapstructure:"addrs"`

	// Addr: Альтернативный адрес для режима 'single' (для обратной совместимости).
	// Используется, если Mode="single" и Addrs пустой.
	Addr string `mapstructure:"addr"`

	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`

	// MasterName: Имя мастер-сервера Redis (только для режима "sentinel")
	MasterName string `mapstructure:"master_name"`

	// MaxRetries: Максимальное количество попыток переподключения (-1 - бесконечно). По умолчанию 0 (без ретраев).
	MaxRetries int `mapstructure:"max_retries"`

	// MinRetryBackoff: Минимальный интервал между попытками (в миллисекундах). По умолчанию 8ms.
	MinRetryBackoff int `mapstructure:"min_retry_backoff"`

	// MaxRetryBackoff: Максимальный интервал между попытками (в миллисекундах). По умолчанию 512ms.
	MaxRetryBackoff int `mapstructure:"max_retry_backoff"`
}

// EngineConfig содержит настройки движка конфиденциальных вычислений
type EngineConfig struct {
	// Mode: "local" (движок в процессе) или "http" (удалённый движок)
	Mode string `mapstructure:"mode"`

	// BaseURL: адрес удалённого движка (только для режима "http")
	BaseURL string `mapstructure:"base_url"`

	// AuthToken добавляется Bearer-заголовком к запросам движку. Пустая
	// строка отключает авторизацию исходящих запросов.
	AuthToken string `mapstructure:"auth_token"`

	// CallbackSecret — ключ HS256 для токенов обратных вызовов движка
	CallbackSecret string `mapstructure:"callback_secret"`

	// CallbackTokenTTL — срок жизни токена обратного вызова
	CallbackTokenTTL time.Duration `mapstructure:"callback_token_ttl"`

	// ResultTimeout — потолок ожидания вердикта одного сравнения
	ResultTimeout time.Duration `mapstructure:"result_timeout"`

	// PollInterval — период опроса удалённого движка
	PollInterval time.Duration `mapstructure:"poll_interval"`

	// MaxBatch — максимум ответов в одной попытке прохождения
	MaxBatch int `mapstructure:"max_batch"`
}

// CodecConfig содержит настройки кодека шифроблоков
type CodecConfig struct {
	// Cipher: "nonce" (референсный формат хранения) или "chacha20"
	Cipher string `mapstructure:"cipher"`

	// Key — ключ ChaCha20 в hex (64 символа). Обязателен для "chacha20".
	Key string `mapstructure:"key"`
}

// LedgerConfig содержит настройки реестра
type LedgerConfig struct {
	// InitialBalance — стартовый баланс счёта при первом обращении
	InitialBalance uint64 `mapstructure:"initial_balance"`

	// VerifierSeed — секрет для вывода ключей верификации блоков.
	// Без него авторы обязаны передавать собственный ключ при публикации.
	VerifierSeed string `mapstructure:"verifier_seed"`
}

// NotifyConfig содержит настройки уведомлений победителям
type NotifyConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	ResendAPIKey string `mapstructure:"resend_api_key"`
	FromEmail    string `mapstructure:"from_email"`
}

// WebSocketConfig содержит настройки WebSocket-подсистемы
type WebSocketConfig struct {
	// AllowedOrigins разделяется между CORS HTTP API и проверкой Origin
	// при апгрейде WebSocket
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// PostgresConnectionString формирует строку подключения к PostgreSQL
func (d *DatabaseConfig) PostgresConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

// CodecKeyBytes декодирует hex-ключ шифра. Пустой ключ возвращает nil.
func (c *CodecConfig) CodecKeyBytes() ([]byte, error) {
	if c.Key == "" {
		return nil, nil
	}
	key, err := hex.DecodeString(c.Key)
	if err != nil {
		return nil, fmt.Errorf("codec key must be hex: %w", err)
	}
	return key, nil
}

// Load загружает конфигурацию из файла
func Load(configPath string) (*Config, error) {
	vip := viper.New() // Используем новый экземпляр Viper, чтобы избежать глобального состояния

	// 1. Устанавливаем значения по умолчанию
	vip.SetDefault("server.port", "8080")
	vip.SetDefault("server.readtimeout", 15)
	vip.SetDefault("server.writetimeout", 30)
	vip.SetDefault("engine.mode", "local")
	vip.SetDefault("engine.callback_token_ttl", 10*time.Minute)
	vip.SetDefault("engine.result_timeout", 30*time.Second)
	vip.SetDefault("engine.poll_interval", 500*time.Millisecond)
	vip.SetDefault("engine.max_batch", 50)
	vip.SetDefault("codec.cipher", "nonce")
	vip.SetDefault("ledger.initial_balance", 1000000)
	vip.SetDefault("websocket.allowed_origins", []string{
		"http://localhost:5173",
		"http://localhost:8000",
		"http://localhost:3000",
	})

	// 2. Привязываем переменные окружения ЯВНО
	// Привязка для секции Database
	vip.BindEnv("database.host", "DATABASE_HOST")
	vip.BindEnv("database.port", "DATABASE_PORT")
	vip.BindEnv("database.user", "DATABASE_USER")
	vip.BindEnv("database.password", "DATABASE_PASSWORD")
	vip.BindEnv("database.dbname", "DATABASE_DBNAME")
	vip.BindEnv("database.sslmode", "DATABASE_SSLMODE")

	// Привязка для секции Redis
	vip.BindEnv("redis.mode", "REDIS_MODE")
	vip.BindEnv("redis.addrs", "REDIS_ADDRS") // Для массива строк
	vip.BindEnv("redis.addr", "REDIS_ADDR")   // Для одиночной строки
	vip.BindEnv("redis.password", "REDIS_PASSWORD")
	vip.BindEnv("redis.db", "REDIS_DB")
	vip.BindEnv("redis.master_name", "REDIS_MASTER_NAME")

	// Привязка для секции Engine
	vip.BindEnv("engine.mode", "ENGINE_MODE")
	vip.BindEnv("engine.base_url", "ENGINE_BASE_URL")
	vip.BindEnv("engine.auth_token", "ENGINE_AUTH_TOKEN")
	vip.BindEnv("engine.callback_secret", "ENGINE_CALLBACK_SECRET")
	vip.BindEnv("engine.callback_token_ttl", "ENGINE_CALLBACK_TOKEN_TTL")
	vip.BindEnv("engine.result_timeout", "ENGINE_RESULT_TIMEOUT")
	vip.BindEnv("engine.poll_interval", "ENGINE_POLL_INTERVAL")
	vip.BindEnv("engine.max_batch", "ENGINE_MAX_BATCH")

	// Привязка для секции Codec
	vip.BindEnv("codec.cipher", "CODEC_CIPHER")
	vip.BindEnv("codec.key", "CODEC_KEY")

	// Привязка для секции Ledger
	vip.BindEnv("ledger.initial_balance", "LEDGER_INITIAL_BALANCE")
	vip.BindEnv("ledger.verifier_seed", "LEDGER_VERIFIER_SEED")

	// Привязка для секции Notify
	vip.BindEnv("notify.enabled", "NOTIFY_ENABLED")
	vip.BindEnv("notify.resend_api_key", "NOTIFY_RESEND_API_KEY")
	vip.BindEnv("notify.from_email", "NOTIFY_FROM_EMAIL")

	// Привязка для Server
	vip.BindEnv("server.port", "SERVER_PORT")

	// Привязка для WebSocket
	vip.BindEnv("websocket.allowed_origins", "WEBSOCKET_ALLOWED_ORIGINS")

	// 3. Устанавливаем путь к файлу конфигурации
	if configPath != "" {
		vip.SetConfigFile(configPath)
		// 4. Пытаемся прочитать файл конфигурации (не страшно, если его нет, т.к. есть BindEnv)
		if err := vip.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); ok {
				log.Printf("Файл конфигурации '%s' не найден, используются переменные окружения/умолчания.", configPath)
			} else {
				log.Printf("Предупреждение: не удалось прочитать файл конфигурации '%s': %v", configPath, err)
			}
		}
	}

	// 5. Анмаршалим конфигурацию (Viper объединит значения из файла и привязанных env vars)
	var cfg Config
	if err := vip.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// 6. Логирование конфигурации (только в debug режиме)
	if os.Getenv("GIN_MODE") != "release" {
		log.Printf("--- Загруженные значения конфигурации ---")
		log.Printf("Database Host: %s", cfg.Database.Host)
		log.Printf("Database Port: %s", cfg.Database.Port)
		log.Printf("Database User: %s", cfg.Database.User)
		log.Printf("Database Name: %s", cfg.Database.DBName)
		log.Printf("Database SSLMode: %s", cfg.Database.SSLMode)
		log.Printf("Redis Addr: %s", cfg.Redis.Addr)
		log.Printf("Redis Mode: %s", cfg.Redis.Mode)
		log.Printf("Engine Mode: %s", cfg.Engine.Mode)
		log.Printf("Engine Base URL: %s", cfg.Engine.BaseURL)
		log.Printf("Engine Callback Secret Set: %t", cfg.Engine.CallbackSecret != "")
		log.Printf("Codec Cipher: %s", cfg.Codec.Cipher)
		log.Printf("Ledger Verifier Seed Set: %t", cfg.Ledger.VerifierSeed != "")
		log.Printf("Notify Enabled: %t", cfg.Notify.Enabled)
		log.Printf("Server Port: %s", cfg.Server.Port)
		log.Printf("-----------------------------------------")
	}

	// 7. Проверка обязательных параметров
	if cfg.Database.Host == "" || cfg.Database.DBName == "" || cfg.Database.User == "" {
		return nil, fmt.Errorf("database configuration (host, dbname, user) is incomplete in config (check DATABASE_HOST, DATABASE_DBNAME, DATABASE_USER env vars)")
	}

	switch cfg.Engine.Mode {
	case "local":
	case "http":
		if cfg.Engine.BaseURL == "" {
			return nil, fmt.Errorf("engine base URL is required in http mode (check ENGINE_BASE_URL env var)")
		}
		if cfg.Engine.CallbackSecret == "" {
			return nil, fmt.Errorf("engine callback secret is required in http mode (check ENGINE_CALLBACK_SECRET env var)")
		}
	default:
		return nil, fmt.Errorf("unknown engine mode %q (expected \"local\" or \"http\")", cfg.Engine.Mode)
	}

	switch cfg.Codec.Cipher {
	case "nonce":
	case "chacha20":
		key, err := cfg.Codec.CodecKeyBytes()
		if err != nil {
			return nil, err
		}
		if len(key) != 32 {
			return nil, fmt.Errorf("chacha20 requires a 32-byte hex key (check CODEC_KEY env var)")
		}
	default:
		return nil, fmt.Errorf("unknown codec cipher %q (expected \"nonce\" or \"chacha20\")", cfg.Codec.Cipher)
	}

	if cfg.Notify.Enabled && cfg.Notify.ResendAPIKey == "" {
		return nil, fmt.Errorf("resend API key is required when notifications are enabled (check NOTIFY_RESEND_API_KEY env var)")
	}

	// Проверяем пароль БД, если приложение не в режиме разработки
	ginMode := vip.GetString("GIN_MODE")
	if ginMode != "debug" {
		if cfg.Database.Password == "" {
			return nil, fmt.Errorf("database password is required in production mode (check DATABASE_PASSWORD env var)")
		}
		if cfg.Ledger.VerifierSeed == "" {
			log.Println("Warning: LEDGER_VERIFIER_SEED is not set; authors must supply verifier keys explicitly.")
		}
	}

	return &cfg, nil
}
