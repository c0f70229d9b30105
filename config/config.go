package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config представляет конфигурацию приложения
type Config struct {
	Server struct {
		Port    int `mapstructure:"port"`
		OpsPort int `mapstructure:"ops_port"`
		// Запросов в минуту с одного IP
		RateLimit int `mapstructure:"rate_limit"`
	} `mapstructure:"server"`
	DB struct {
		// postgres или memory
		Driver         string `mapstructure:"driver"`
		Host           string `mapstructure:"host"`
		Port           int    `mapstructure:"port"`
		User           string `mapstructure:"user"`
		Password       string `mapstructure:"password"`
		DBName         string `mapstructure:"name"`
		SSLMode        string `mapstructure:"sslmode"`
		MigrationsPath string `mapstructure:"migrations_path"`
	} `mapstructure:"db"`
	JWT struct {
		SecretKey string `mapstructure:"secret_key"`
		ExpiresIn int    `mapstructure:"expires_in"` // в часах
	} `mapstructure:"jwt"`
	SMTP struct {
		Enabled  bool   `mapstructure:"enabled"`
		Host     string `mapstructure:"host"`
		Port     int    `mapstructure:"port"`
		Username string `mapstructure:"username"`
		Password string `mapstructure:"password"`
		From     string `mapstructure:"from"`
	} `mapstructure:"smtp"`
	// Пустой addr отключает Redis
	Redis struct {
		Addr     string `mapstructure:"addr"`
		Password string `mapstructure:"password"`
		DB       int    `mapstructure:"db"`
	} `mapstructure:"redis"`
	RabbitMQ struct {
		URL      string `mapstructure:"url"`
		Exchange string `mapstructure:"exchange"`
	} `mapstructure:"rabbitmq"`
	Ledger struct {
		MinOpeningBalance     string `mapstructure:"min_opening_balance"`
		AccountNumberAttempts int    `mapstructure:"account_number_attempts"`
		ReconcileSchedule     string `mapstructure:"reconcile_schedule"`
	} `mapstructure:"ledger"`
	Log struct {
		Level       string `mapstructure:"level"`
		Development bool   `mapstructure:"development"`
	} `mapstructure:"log"`
}

// NewConfig создает новый экземпляр конфигурации.
// Порядок приоритета: переменные окружения, config.yaml, значения по умолчанию.
func NewConfig() (*Config, error) {
	// .env нужен только для локальной разработки
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var notFound viper.ConfigFileNotFoundError
	if err := v.ReadInConfig(); err != nil && !errors.As(err, &notFound) {
		return nil, fmt.Errorf("ошибка чтения файла конфигурации: %w", err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("ошибка разбора конфигурации: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// setDefaults задает значения по умолчанию
func setDefaults(v *viper.Viper) {
	// Настройки сервера
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.ops_port", 8081)
	v.SetDefault("server.rate_limit", 100)

	// Настройки базы данных
	v.SetDefault("db.driver", "postgres")
	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.user", "postgres")
	v.SetDefault("db.password", "postgres")
	v.SetDefault("db.name", "bank_db")
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("db.migrations_path", "database/migrations")

	// Настройки JWT
	v.SetDefault("jwt.secret_key", "your-secret-key-here")
	v.SetDefault("jwt.expires_in", 24)

	// Настройки SMTP
	v.SetDefault("smtp.enabled", false)
	v.SetDefault("smtp.host", "smtp.gmail.com")
	v.SetDefault("smtp.port", 587)
	v.SetDefault("smtp.username", "")
	v.SetDefault("smtp.password", "")
	v.SetDefault("smtp.from", "")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("rabbitmq.url", "")
	v.SetDefault("rabbitmq.exchange", "ledger.events")

	// Настройки журнала
	v.SetDefault("ledger.min_opening_balance", "2000")
	v.SetDefault("ledger.account_number_attempts", 5)
	v.SetDefault("ledger.reconcile_schedule", "@every 1h")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
}

// Validate проверяет согласованность настроек
func (c *Config) Validate() error {
	switch c.DB.Driver {
	case "postgres", "memory":
	default:
		return fmt.Errorf("неизвестный драйвер базы данных: %q", c.DB.Driver)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("неверный формат порта сервера: %d", c.Server.Port)
	}
	if _, err := c.MinOpeningBalance(); err != nil {
		return err
	}
	if c.Ledger.AccountNumberAttempts <= 0 {
		return fmt.Errorf("ledger.account_number_attempts должно быть больше 0")
	}
	return nil
}

// MinOpeningBalance возвращает минимальный начальный баланс
func (c *Config) MinOpeningBalance() (decimal.Decimal, error) {
	d, err := decimal.NewFromString(c.Ledger.MinOpeningBalance)
	if err != nil {
		return decimal.Zero, fmt.Errorf("неверный формат минимального баланса: %w", err)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("минимальный баланс не может быть отрицательным")
	}
	return d, nil
}

// PostgresDSN строка подключения для gorm
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.DBName,
		c.DB.SSLMode,
	)
}

// PostgresURL строка подключения для golang-migrate, учетные данные экранируются
func (c *Config) PostgresURL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.DB.User, c.DB.Password),
		Host:     net.JoinHostPort(c.DB.Host, strconv.Itoa(c.DB.Port)),
		Path:     "/" + c.DB.DBName,
		RawQuery: url.Values{"sslmode": {c.DB.SSLMode}}.Encode(),
	}
	return u.String()
}
