package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	MQTT        MQTTConfig
	Redis       RedisConfig
	Registry    RegistryConfig
	Monitor     MonitorConfig
	Calibration CalibrationConfig
}

type MQTTConfig struct {
	Broker      string
	Username    string
	Password    string
	TopicPrefix string
}

type RedisConfig struct {
	URL      string
	Password string
	Username string
	DB       int
}

type RegistryConfig struct {
	URL      string
	Token    string
	CacheTTL time.Duration
}

// MonitorConfig holds the liveness tunables. The defaults (2 minute staleness
// window, 30 second sweep) match the device firmware's reporting cadence but
// carry no deeper rationale, hence configurable.
type MonitorConfig struct {
	StalenessWindow time.Duration
	SweepInterval   time.Duration
}

type CalibrationConfig struct {
	DuplicateTolerance float64
	PublishTimeout     time.Duration
}

func LoadConfig() *Config {
	viper.SetConfigFile(".env")
	viper.ReadInConfig()
	viper.AutomaticEnv()

	viper.SetDefault("MQTT_TOPIC_PREFIX", "simonair")
	viper.SetDefault("MONITOR_STALENESS_WINDOW", "120s")
	viper.SetDefault("MONITOR_SWEEP_INTERVAL", "30s")
	viper.SetDefault("CALIBRATION_DUPLICATE_TOLERANCE", 0.01)
	viper.SetDefault("CALIBRATION_PUBLISH_TIMEOUT", "15s")
	viper.SetDefault("REGISTRY_CACHE_TTL", "3h")

	return &Config{
		MQTT: MQTTConfig{
			Broker:      viper.GetString("MQTT_BROKER"),
			Username:    viper.GetString("MQTT_USERNAME"),
			Password:    viper.GetString("MQTT_PASSWORD"),
			TopicPrefix: viper.GetString("MQTT_TOPIC_PREFIX"),
		},
		Redis: RedisConfig{
			URL:      viper.GetString("REDIS_URL"),
			Password: viper.GetString("REDIS_PASSWORD"),
			Username: viper.GetString("REDIS_USERNAME"),
			DB:       viper.GetInt("REDIS_DB"),
		},
		Registry: RegistryConfig{
			URL:      viper.GetString("REGISTRY_URL"),
			Token:    viper.GetString("REGISTRY_TOKEN"),
			CacheTTL: viper.GetDuration("REGISTRY_CACHE_TTL"),
		},
		Monitor: MonitorConfig{
			StalenessWindow: viper.GetDuration("MONITOR_STALENESS_WINDOW"),
			SweepInterval:   viper.GetDuration("MONITOR_SWEEP_INTERVAL"),
		},
		Calibration: CalibrationConfig{
			DuplicateTolerance: viper.GetFloat64("CALIBRATION_DUPLICATE_TOLERANCE"),
			PublishTimeout:     viper.GetDuration("CALIBRATION_PUBLISH_TIMEOUT"),
		},
	}
}
