package config

import (
	"os"
	"strconv"
	"time"
)

// Config usergrid（用户管理表格引擎）配置
type Config struct {
	Log struct {
		Level  string
		Format string
	}

	// API is the console backend the grid mirrors rows from.
	API struct {
		BaseURL string
	}

	// Console is the origin the presence endpoint is derived from. In the
	// local dev topology UI and API run on separate ports, so APIPort
	// overrides the origin's port; in single-origin production it is 0.
	Console struct {
		Origin  string
		APIPort int
	}

	Presence PresenceConfig

	Redis struct {
		Addr     string
		Password string
		DB       int
	}

	Grid struct {
		PageSize  int
		SortField string
		SortDesc  bool
	}

	Ops struct {
		Addr string
	}
}

// PresenceConfig 在线状态源配置
type PresenceConfig struct {
	Transport   string // "websocket" (default) or "mqtt"
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	MaxAttempts int

	MQTT struct {
		Broker   string
		ClientID string
		Username string
		Password string
		Topic    string
		QoS      byte
	}
}

func Load() *Config {
	cfg := &Config{}

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	cfg.API.BaseURL = getEnv("API_BASE_URL", "http://localhost:8000")
	cfg.Console.Origin = getEnv("CONSOLE_ORIGIN", "http://localhost:3000")
	cfg.Console.APIPort = parseInt(getEnv("CONSOLE_API_PORT", "8000"), 8000)

	cfg.Presence.Transport = getEnv("PRESENCE_TRANSPORT", "websocket")
	cfg.Presence.BaseDelay = time.Duration(parseInt(getEnv("PRESENCE_BASE_DELAY_MS", "1000"), 1000)) * time.Millisecond
	cfg.Presence.MaxDelay = time.Duration(parseInt(getEnv("PRESENCE_MAX_DELAY_MS", "30000"), 30000)) * time.Millisecond
	cfg.Presence.MaxAttempts = parseInt(getEnv("PRESENCE_MAX_ATTEMPTS", "8"), 8)
	cfg.Presence.MQTT.Broker = getEnv("PRESENCE_MQTT_BROKER", "tcp://localhost:1883")
	cfg.Presence.MQTT.ClientID = getEnv("PRESENCE_MQTT_CLIENT_ID", "usergrid")
	cfg.Presence.MQTT.Username = getEnv("PRESENCE_MQTT_USERNAME", "")
	cfg.Presence.MQTT.Password = getEnv("PRESENCE_MQTT_PASSWORD", "")
	cfg.Presence.MQTT.Topic = getEnv("PRESENCE_MQTT_TOPIC", "usergrid/user-status")
	cfg.Presence.MQTT.QoS = byte(parseInt(getEnv("PRESENCE_MQTT_QOS", "1"), 1))

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = parseInt(getEnv("REDIS_DB", "0"), 0)

	cfg.Grid.PageSize = parseInt(getEnv("GRID_PAGE_SIZE", "10"), 10)
	cfg.Grid.SortField = getEnv("GRID_SORT_FIELD", "date_joined")
	cfg.Grid.SortDesc = getEnv("GRID_SORT_DESC", "true") == "true"

	cfg.Ops.Addr = getEnv("OPS_ADDR", ":9090")

	return cfg
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseInt(s string, def int) int {
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}
