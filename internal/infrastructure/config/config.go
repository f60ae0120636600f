package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Reward action names accepted in the rewards table.
const (
	ActionColor      = "color"
	ActionPower      = "power"
	ActionBrightness = "brightness"
)

// Config is the root configuration structure for Stream Lights.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Twitch       TwitchConfig       `yaml:"twitch"`
	Session      SessionConfig      `yaml:"session"`
	Hue          HueConfig          `yaml:"hue"`
	Registration RegistrationConfig `yaml:"registration"`
	Lamps        LampsConfig        `yaml:"lamps"`
	Rewards      []RewardConfig     `yaml:"rewards"`
	Chat         ChatConfig         `yaml:"chat"`
	Colors       ColorsConfig       `yaml:"colors"`
	Database     DatabaseConfig     `yaml:"database"`
	MQTT         MQTTConfig         `yaml:"mqtt"`
	API          APIConfig          `yaml:"api"`
	InfluxDB     InfluxDBConfig     `yaml:"influxdb"`
	Logging      LoggingConfig      `yaml:"logging"`
}

// TwitchConfig contains the Twitch application and channel identity.
type TwitchConfig struct {
	ClientID      string `yaml:"client_id"`
	ClientSecret  string `yaml:"client_secret"`
	BroadcasterID string `yaml:"broadcaster_id"`

	// BotUserID is the account that reads chat and sends corrective replies.
	// Defaults to BroadcasterID when empty.
	BotUserID string `yaml:"bot_user_id"`

	AccessToken  string   `yaml:"access_token"`
	RefreshToken string   `yaml:"refresh_token"`
	Scopes       []string `yaml:"scopes"`

	EventSubURL string `yaml:"eventsub_url"`
	HelixURL    string `yaml:"helix_url"`
	TokenURL    string `yaml:"token_url"`

	// SubscribeChat adds the channel.chat.message subscription used for
	// chat commands.
	SubscribeChat bool `yaml:"subscribe_chat"`

	// ResubscribeOnReconnect re-issues subscriptions after the welcome that
	// follows a session_reconnect.
	ResubscribeOnReconnect bool `yaml:"resubscribe_on_reconnect"`

	IRC IRCConfig `yaml:"irc"`
}

// IRCConfig contains the optional IRC chat source settings.
type IRCConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Username string `yaml:"username"`
	Channel  string `yaml:"channel"`
}

// SessionConfig contains EventSub websocket session tuning.
type SessionConfig struct {
	// KeepaliveGrace is added to the keepalive timeout announced in the
	// welcome message before the session is declared dead (seconds).
	KeepaliveGrace int `yaml:"keepalive_grace"`

	// MaxMessageSize bounds a reassembled message in bytes.
	MaxMessageSize int `yaml:"max_message_size"`

	// DedupSize is how many recent notification ids are remembered.
	DedupSize int `yaml:"dedup_size"`
}

// HueConfig contains Hue bridge connection settings.
type HueConfig struct {
	BridgeIP   string `yaml:"bridge_ip"`
	BridgeID   string `yaml:"bridge_id"`
	AppKey     string `yaml:"app_key"`
	ClientKey  string `yaml:"client_key"`
	AppName    string `yaml:"app_name"`
	DeviceName string `yaml:"device_name"`

	// InsecureTLS skips verification of the bridge's self-signed certificate.
	InsecureTLS bool `yaml:"insecure_tls"`

	RateLimit      float64       `yaml:"rate_limit"`
	RateBurst      int           `yaml:"rate_burst"`
	CommandTimeout int           `yaml:"command_timeout"`
	Breaker        BreakerConfig `yaml:"breaker"`
}

// BreakerConfig contains circuit breaker settings for device commands.
type BreakerConfig struct {
	MaxFailures int `yaml:"max_failures"`
	OpenTimeout int `yaml:"open_timeout"`
}

// RegistrationConfig contains link-button polling settings (seconds).
type RegistrationConfig struct {
	Interval         int  `yaml:"interval"`
	MaxInterval      int  `yaml:"max_interval"`
	MaxDuration      int  `yaml:"max_duration"`
	Backoff          bool `yaml:"backoff"`
	RetryUnreachable bool `yaml:"retry_unreachable"`
}

// LampsConfig maps logical lamp names to bridge device names.
type LampsConfig struct {
	Default string            `yaml:"default"`
	Devices map[string]string `yaml:"devices"`
}

// RewardConfig binds a channel-point reward title to a lamp action.
type RewardConfig struct {
	Title  string `yaml:"title"`
	Lamp   string `yaml:"lamp"`
	Action string `yaml:"action"`
}

// ChatConfig contains chat command settings.
type ChatConfig struct {
	Prefix string `yaml:"prefix"`
}

// ColorsConfig points at an optional palette override file.
type ColorsConfig struct {
	File string `yaml:"file"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// APIConfig contains the status HTTP server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: STREAMLIGHTS_SECTION_KEY
// For example: STREAMLIGHTS_TWITCH_CLIENT_ID, STREAMLIGHTS_HUE_BRIDGE_IP
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if cfg.Twitch.BotUserID == "" {
		cfg.Twitch.BotUserID = cfg.Twitch.BroadcasterID
	}
	// Maps merge on unmarshal, so the default lamps are only applied when
	// the file names none.
	if len(cfg.Lamps.Devices) == 0 {
		cfg.Lamps.Devices = defaultLampDevices()
	}
	if len(cfg.Rewards) == 0 {
		cfg.Rewards = defaultRewards(cfg.Lamps.Devices)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Twitch: TwitchConfig{
			Scopes: []string{
				"channel:bot",
				"user:read:chat",
				"channel:read:redemptions",
				"user:write:chat",
			},
			EventSubURL:            "wss://eventsub.wss.twitch.tv/ws",
			HelixURL:               "https://api.twitch.tv/helix",
			TokenURL:               "https://id.twitch.tv/oauth2/token",
			SubscribeChat:          true,
			ResubscribeOnReconnect: true,
		},
		Session: SessionConfig{
			KeepaliveGrace: 5,
			MaxMessageSize: 1 << 20,
			DedupSize:      64,
		},
		Hue: HueConfig{
			AppName:        "streamlights",
			DeviceName:     "core",
			InsecureTLS:    true,
			RateLimit:      10,
			RateBurst:      1,
			CommandTimeout: 5,
			Breaker: BreakerConfig{
				MaxFailures: 5,
				OpenTimeout: 30,
			},
		},
		Registration: RegistrationConfig{
			Interval:    5,
			MaxInterval: 30,
			MaxDuration: 300,
		},
		Lamps: LampsConfig{
			Default: "left",
		},
		Database: DatabaseConfig{
			Path:        "./data/streamlights.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "streamlights-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		API: APIConfig{
			Enabled: true,
			Host:    "127.0.0.1",
			Port:    8090,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// Default returns the built-in configuration, as Load would produce from
// an empty file before environment overrides.
func Default() *Config {
	cfg := defaultConfig()
	cfg.Lamps.Devices = defaultLampDevices()
	cfg.Rewards = defaultRewards(cfg.Lamps.Devices)
	return cfg
}

// defaultLampDevices returns the lamps used when the file defines none.
func defaultLampDevices() map[string]string {
	return map[string]string{
		"left":  "room_streaming_left_lamp",
		"right": "room_streaming_right_lamp",
	}
}

// defaultRewards returns the rewards used when the file defines none,
// limited to the lamps that exist in devices.
func defaultRewards(devices map[string]string) []RewardConfig {
	var rewards []RewardConfig
	for _, r := range []RewardConfig{
		{Title: "Change left lamp color", Lamp: "left", Action: ActionColor},
		{Title: "Change right lamp color", Lamp: "right", Action: ActionColor},
	} {
		if _, ok := devices[r.Lamp]; ok {
			rewards = append(rewards, r)
		}
	}
	return rewards
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: STREAMLIGHTS_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Twitch
	if v := os.Getenv("STREAMLIGHTS_TWITCH_CLIENT_ID"); v != "" {
		cfg.Twitch.ClientID = v
	}
	if v := os.Getenv("STREAMLIGHTS_TWITCH_CLIENT_SECRET"); v != "" {
		cfg.Twitch.ClientSecret = v
	}
	if v := os.Getenv("STREAMLIGHTS_TWITCH_BROADCASTER_ID"); v != "" {
		cfg.Twitch.BroadcasterID = v
	}
	if v := os.Getenv("STREAMLIGHTS_TWITCH_ACCESS_TOKEN"); v != "" {
		cfg.Twitch.AccessToken = v
	}
	if v := os.Getenv("STREAMLIGHTS_TWITCH_REFRESH_TOKEN"); v != "" {
		cfg.Twitch.RefreshToken = v
	}

	// Hue
	if v := os.Getenv("STREAMLIGHTS_HUE_BRIDGE_IP"); v != "" {
		cfg.Hue.BridgeIP = v
	}
	if v := os.Getenv("STREAMLIGHTS_HUE_APP_KEY"); v != "" {
		cfg.Hue.AppKey = v
	}

	// Database
	if v := os.Getenv("STREAMLIGHTS_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("STREAMLIGHTS_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("STREAMLIGHTS_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("STREAMLIGHTS_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("STREAMLIGHTS_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	// InfluxDB
	if v := os.Getenv("STREAMLIGHTS_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Logging
	if v := os.Getenv("STREAMLIGHTS_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Twitch validation
	if c.Twitch.ClientID == "" {
		errs = append(errs, "twitch.client_id is required")
	}
	if c.Twitch.BroadcasterID == "" {
		errs = append(errs, "twitch.broadcaster_id is required")
	}
	if c.Twitch.AccessToken == "" && c.Twitch.RefreshToken == "" {
		errs = append(errs, "twitch.access_token or twitch.refresh_token is required (set STREAMLIGHTS_TWITCH_ACCESS_TOKEN)")
	}
	if c.Twitch.IRC.Enabled && c.Twitch.IRC.Channel == "" {
		errs = append(errs, "twitch.irc.channel is required when irc is enabled")
	}

	// Registration validation
	if c.Registration.Interval <= 0 {
		errs = append(errs, "registration.interval must be positive")
	}
	if c.Registration.MaxDuration <= 0 {
		errs = append(errs, "registration.max_duration must be positive")
	}
	if c.Registration.MaxInterval < c.Registration.Interval {
		errs = append(errs, "registration.max_interval must not be less than registration.interval")
	}

	// Lamp and reward validation
	if len(c.Lamps.Devices) == 0 {
		errs = append(errs, "lamps.devices must name at least one lamp")
	}
	if _, ok := c.Lamps.Devices[c.Lamps.Default]; !ok {
		errs = append(errs, fmt.Sprintf("lamps.default %q is not in lamps.devices", c.Lamps.Default))
	}
	for i, r := range c.Rewards {
		if strings.TrimSpace(r.Title) == "" {
			errs = append(errs, fmt.Sprintf("rewards[%d].title is required", i))
		}
		if _, ok := c.Lamps.Devices[r.Lamp]; !ok {
			errs = append(errs, fmt.Sprintf("rewards[%d].lamp %q is not in lamps.devices", i, r.Lamp))
		}
		switch r.Action {
		case ActionColor, ActionPower, ActionBrightness:
		default:
			errs = append(errs, fmt.Sprintf("rewards[%d].action %q must be color, power, or brightness", i, r.Action))
		}
	}

	// Hue validation
	if c.Hue.RateLimit <= 0 {
		errs = append(errs, "hue.rate_limit must be positive")
	}

	// Session validation
	if c.Session.MaxMessageSize <= 0 {
		errs = append(errs, "session.max_message_size must be positive")
	}

	// Database validation
	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	// MQTT validation
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	// API validation
	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}

// Seconds converts a whole-second config value to a Duration.
func Seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
