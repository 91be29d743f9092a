package config

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var config = viper.New()

type Config struct {
	AppEnv     string `mapstructure:"APP_ENV"`
	AppName    string `mapstructure:"APP_NAME"`
	AppVersion string `mapstructure:"APP_VERSION"`
	Server     struct {
		Addr         string        `mapstructure:"ADDR"`
		ReadTimeout  time.Duration `mapstructure:"READ_TIMEOUT"`
		WriteTimeout time.Duration `mapstructure:"WRITE_TIMEOUT"`
		IdleTimeout  time.Duration `mapstructure:"IDLE_TIMEOUT"`
	} `mapstructure:"HTTP_SERVER"`
	TLS struct {
		Enable   bool   `mapstructure:"ENABLE"`
		CertPath string `mapstructure:"CERT_PATH"`
		KeyPath  string `mapstructure:"KEY_PATH"`
	} `mapstructure:"TLS"`
	Database struct {
		Host           string `mapstructure:"HOST"`
		Port           string `mapstructure:"PORT"`
		DBNAME         string `mapstructure:"DBNAME"`
		User           string `mapstructure:"USER"`
		Password       string `mapstructure:"PASSWORD"`
		SSLMode        string `mapstructure:"SSLMODE"`
		Timezone       string `mapstructure:"TIMEZONE"`
		ConnectionPool struct {
			MaxIdleConn     int           `mapstructure:"MAX_IDLE_CONN"`
			MaxOpenConns    int           `mapstructure:"MAX_OPEN_CONNS"`
			ConnMaxLifetime time.Duration `mapstructure:"CONN_MAX_LIFETIME"`
			ConnMaxIdleTime time.Duration `mapstructure:"CONN_MAX_IDLE_TIME"`
		} `mapstructure:"CONNECTION_POOL"`
	} `mapstructure:"DATABASE"`
	Redis struct {
		Addr        string        `mapstructure:"ADDR"`
		Password    string        `mapstructure:"PASSWORD"`
		DB          int           `mapstructure:"DB"`
		PoolSize    int           `mapstructure:"POOL_SIZE"`
		PoolTimeout time.Duration `mapstructure:"POOL_TIMEOUT"`
	} `mapstructure:"REDIS"`
	Kafka struct {
		Addrs         string `mapstructure:"ADDR"`
		ConsumerGroup string `mapstructure:"CONSUMER_GROUP"`
		TradeTopic    string `mapstructure:"TRADE_TOPIC"`
		StatusTopic   string `mapstructure:"STATUS_TOPIC"`
		DeadTopic     string `mapstructure:"DEAD_TOPIC"`
		ParkedTopic   string `mapstructure:"PARKED_TOPIC"`
	} `mapstructure:"KAFKA"`
	Engine struct {
		RetryCeiling     int           `mapstructure:"RETRY_CEILING"`
		LeaderboardTTL   time.Duration `mapstructure:"LEADERBOARD_TTL"`
		RateLimitWindow  time.Duration `mapstructure:"RATE_LIMIT_WINDOW"`
		RateLimitMax     int64         `mapstructure:"RATE_LIMIT_MAX"`
		DistributionLock time.Duration `mapstructure:"DISTRIBUTION_LOCK_TTL"`
	} `mapstructure:"ENGINE"`
}

var Module = fx.Module("config", fx.Provide(LoadConfig))

func LoadConfig() *Config {
	config.SetConfigName("config")
	config.SetConfigType("yaml")
	config.AddConfigPath(".")

	config.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	config.AutomaticEnv()

	setDefaults(config)

	if err := config.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			zap.L().Error("failed to read config file", zap.Error(err))
			os.Exit(1)
		}
	}

	var cfg Config
	if err := config.Unmarshal(&cfg); err != nil {
		zap.L().Error("failed to unmarshal config", zap.Error(err))
		os.Exit(1)
	}

	return &cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("APP_NAME", "tradeleague-engine")

	v.SetDefault("HTTP_SERVER.ADDR", "8080")
	v.SetDefault("HTTP_SERVER.READ_TIMEOUT", 15*time.Second)
	v.SetDefault("HTTP_SERVER.WRITE_TIMEOUT", 15*time.Second)
	v.SetDefault("HTTP_SERVER.IDLE_TIMEOUT", 60*time.Second)

	v.SetDefault("REDIS.ADDR", "127.0.0.1:6379")
	v.SetDefault("REDIS.POOL_SIZE", 10)
	v.SetDefault("REDIS.POOL_TIMEOUT", 30*time.Second)

	v.SetDefault("KAFKA.ADDR", "127.0.0.1:9092")
	v.SetDefault("KAFKA.CONSUMER_GROUP", "tradeleague-engine")
	v.SetDefault("KAFKA.TRADE_TOPIC", "trade.completed")
	v.SetDefault("KAFKA.STATUS_TOPIC", "competition.status")
	v.SetDefault("KAFKA.DEAD_TOPIC", "tradeleague.dead-letter")
	v.SetDefault("KAFKA.PARKED_TOPIC", "tradeleague.dead-letter.parked")

	v.SetDefault("ENGINE.RETRY_CEILING", 5)
	v.SetDefault("ENGINE.LEADERBOARD_TTL", 15*time.Second)
	v.SetDefault("ENGINE.RATE_LIMIT_WINDOW", time.Minute)
	v.SetDefault("ENGINE.RATE_LIMIT_MAX", 120)
	v.SetDefault("ENGINE.DISTRIBUTION_LOCK_TTL", 2*time.Minute)
}
