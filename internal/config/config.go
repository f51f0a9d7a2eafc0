package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Show      ShowConfig      `mapstructure:"show"`
	Directory DirectoryConfig `mapstructure:"directory"`
	Serial    SerialConfig    `mapstructure:"serial"`
	SACN      SACNConfig      `mapstructure:"sacn"`
	PLC       PLCConfig       `mapstructure:"plc"`
}

type ServerConfig struct {
	HTTPPort        int           `mapstructure:"http_port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

type ShowConfig struct {
	Script            string        `mapstructure:"script"`
	TickInterval      time.Duration `mapstructure:"tick_interval"`
	DispatchWindow    time.Duration `mapstructure:"dispatch_window"`
	RGBWEnabled       bool          `mapstructure:"rgbw_enabled"`
	LockableAddresses []int         `mapstructure:"lockable_addresses"`
	LegacyMarker      string        `mapstructure:"legacy_marker"`
	AutoPlay          bool          `mapstructure:"auto_play"`
}

type DirectoryConfig struct {
	SearchPaths []string `mapstructure:"search_paths"`
	Palette     string   `mapstructure:"palette"`
	Fixtures    string   `mapstructure:"fixtures"`
	Groups      string   `mapstructure:"groups"`
}

type SerialConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	Port           string        `mapstructure:"port"`
	BaudRate       int           `mapstructure:"baud_rate"`
	IOTimeout      time.Duration `mapstructure:"io_timeout"`
	VendorID       string        `mapstructure:"vendor_id"`
	ProductIDs     []string      `mapstructure:"product_ids"`
	ReopenInterval time.Duration `mapstructure:"reopen_interval"`
}

type SACNConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	Universe          uint16        `mapstructure:"universe"`
	Destination       string        `mapstructure:"destination"`
	SourceName        string        `mapstructure:"source_name"`
	CID               string        `mapstructure:"cid"`
	Priority          uint8         `mapstructure:"priority"`
	Filter            string        `mapstructure:"filter"`
	KeepAliveInterval time.Duration `mapstructure:"keepalive_interval"`
}

type PLCConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	Address        string        `mapstructure:"address"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	SendInterval   time.Duration `mapstructure:"send_interval"`
}

// Load reads the YAML file at path. Every key can be overridden from the
// environment as FOUNTAIN_<SECTION>_<KEY>.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	setDefaults(v)

	v.SetEnvPrefix("FOUNTAIN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	v := viper.New()
	setDefaults(v)

	var config Config
	// Unmarshalling plain defaults cannot fail.
	_ = v.Unmarshal(&config)
	return &config
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("logging.level", "info")

	v.SetDefault("show.script", "shows/show.ctl")
	v.SetDefault("show.tick_interval", "20ms")
	v.SetDefault("show.dispatch_window", "25ms")
	v.SetDefault("show.rgbw_enabled", true)
	v.SetDefault("show.lockable_addresses", []int{504, 505, 506})
	v.SetDefault("show.legacy_marker", "CTLv1")
	v.SetDefault("show.auto_play", false)

	v.SetDefault("directory.search_paths", []string{"./configs/directory"})
	v.SetDefault("directory.palette", "palette")
	v.SetDefault("directory.fixtures", "fixtures")
	v.SetDefault("directory.groups", "groups")

	v.SetDefault("serial.enabled", true)
	v.SetDefault("serial.baud_rate", 57600)
	v.SetDefault("serial.io_timeout", "100ms")
	v.SetDefault("serial.vendor_id", "0403")
	v.SetDefault("serial.product_ids", []string{"6001", "6015"})
	v.SetDefault("serial.reopen_interval", "5s")

	v.SetDefault("sacn.enabled", true)
	v.SetDefault("sacn.universe", 1)
	v.SetDefault("sacn.source_name", "FountainCore")
	v.SetDefault("sacn.priority", 100)
	v.SetDefault("sacn.filter", "all")
	v.SetDefault("sacn.keepalive_interval", "0s")

	v.SetDefault("plc.enabled", false)
	v.SetDefault("plc.address", "192.168.0.10:2000")
	v.SetDefault("plc.connect_timeout", "2s")
	v.SetDefault("plc.send_interval", "100ms")
}

// Validate rejects values the runtime cannot work with.
func (c *Config) Validate() error {
	if c.Show.TickInterval <= 0 {
		return fmt.Errorf("show.tick_interval must be positive")
	}
	if c.Show.DispatchWindow < 0 {
		return fmt.Errorf("show.dispatch_window must not be negative")
	}
	// A line is only due for 2*dispatch_window of playback; a coarser tick can
	// step over it for the whole show.
	if c.Show.TickInterval > 2*c.Show.DispatchWindow {
		return fmt.Errorf("show.tick_interval %s exceeds twice show.dispatch_window %s",
			c.Show.TickInterval, c.Show.DispatchWindow)
	}
	if c.Serial.BaudRate <= 0 {
		return fmt.Errorf("serial.baud_rate must be positive")
	}
	switch strings.ToLower(c.SACN.Filter) {
	case "all", "code900":
	default:
		return fmt.Errorf("sacn.filter must be \"all\" or \"code900\", got %q", c.SACN.Filter)
	}
	if c.PLC.Enabled && c.PLC.Address == "" {
		return fmt.Errorf("plc.address is required when plc is enabled")
	}
	if c.PLC.SendInterval <= 0 {
		return fmt.Errorf("plc.send_interval must be positive")
	}
	return nil
}
