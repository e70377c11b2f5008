package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v2"
)

const (
	configFilePathENV = "CONFIG_FILE"
	databaseDSN       = "DATABASE_DSN"
	amqpURLENV        = "AMQP_URL"
	redisAddrENV      = "REDIS_ADDR"
	tokenTelegramENV  = "TELEGRAM_TOKEN"
)

// Config ...
type Config struct {
	DB    string `yaml:"db_dsn"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	AMQP struct {
		URL      string `yaml:"url"`
		Prefetch int    `yaml:"prefetch"`
	} `yaml:"amqp"`
	Service struct {
		Host       string `yaml:"host"`
		PublicPort int    `yaml:"public_port"`
		AdminPort  int    `yaml:"admin_port"`
	} `yaml:"service"`
	Jaeger struct {
		Host string `yaml:"host"`
		Port int    `yaml:"port"`
	} `yaml:"jaeger"`
	Telegram struct {
		Token  string `yaml:"token"`
		ChatID int64  `yaml:"chat_id"`
	} `yaml:"telegram"`

	// Цикл оценки
	TickInterval time.Duration `yaml:"tick_interval"` // шаг поллинга, не зависит от таймфреймов условий
	FetchTimeout time.Duration `yaml:"fetch_timeout"` // на один запрос свечей; должен быть < TickInterval
	GroupWorkers int           `yaml:"group_workers"` // одновременных групп (symbol, timeframe)
	Lookback     int           `yaml:"lookback"`      // свечей на выборку

	// Кэш свечей
	CandleTTL  time.Duration `yaml:"candle_ttl"`
	WarmStream bool          `yaml:"warm_stream"` // WS-прогрев кэша закрытыми свечами

	// Reconcile-свип по неопубликованным триггерам
	ReconcileSpec  string        `yaml:"reconcile_spec"` // cron, например "0 * * * * *"
	ReconcileGrace time.Duration `yaml:"reconcile_grace"`
}

func NewConfig() (*Config, error) {
	configFileName := os.Getenv(configFilePathENV)
	if configFileName == "" {
		configFileName = "values_local.yaml"
	}
	file, err := os.Open("configs/" + configFileName)
	if err != nil {
		log.Fatalf("Failed to open config file: %v", err)
	}

	defer func() {
		_ = file.Close()
	}()

	decoder := yaml.NewDecoder(file)
	config := Config{
		TickInterval: durationFromEnv("TICK_INTERVAL", "1s"),
		FetchTimeout: durationFromEnv("FETCH_TIMEOUT", "700ms"),
		GroupWorkers: intFromEnv("GROUP_WORKERS", 4),
		Lookback:     intFromEnv("LOOKBACK", 200),

		CandleTTL:  durationFromEnv("CANDLE_TTL", "3s"),
		WarmStream: boolFromEnv("WARM_STREAM", false),

		ReconcileSpec:  getenvDefault("RECONCILE_SPEC", "0 * * * * *"),
		ReconcileGrace: durationFromEnv("RECONCILE_GRACE", "30s"),
	}
	err = decoder.Decode(&config)
	if err != nil {
		log.Fatalf("Failed to decode config file: %v", err)
	}

	if dsn := os.Getenv(databaseDSN); dsn != "" {
		config.DB = dsn
	}
	if u := os.Getenv(amqpURLENV); u != "" {
		config.AMQP.URL = u
	}
	if a := os.Getenv(redisAddrENV); a != "" {
		config.Redis.Addr = a
	}
	if t := os.Getenv(tokenTelegramENV); t != "" {
		config.Telegram.Token = t
	}

	// запрос свечей не должен съедать весь тик
	if config.FetchTimeout >= config.TickInterval {
		config.FetchTimeout = config.TickInterval * 7 / 10
	}

	return &config, nil
}

func intFromEnv(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func boolFromEnv(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if v == "1" || v == "true" || v == "TRUE" {
			return true
		}
		if v == "0" || v == "false" || v == "FALSE" {
			return false
		}
	}
	return def
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func durationFromEnv(key, def string) time.Duration {
	val := getenvDefault(key, def)
	d, err := time.ParseDuration(val)
	if err != nil {
		d, _ = time.ParseDuration(def)
	}
	return d
}
