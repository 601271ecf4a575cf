package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Device DeviceConfig `yaml:"device"`
	Host   HostConfig   `yaml:"host"`
}

type DeviceConfig struct {
	Control SerialConfig `yaml:"control"`
	GPS     GPSConfig    `yaml:"gps"`
	Sim     SimConfig    `yaml:"sim"`
	Log     LogConfig    `yaml:"log"`
	RTC     RTCConfig    `yaml:"rtc"`
	LED     LEDConfig    `yaml:"led"`
	Limits  LimitsConfig `yaml:"limits"`
}

type SerialConfig struct {
	Device string `yaml:"device"`
	Baud   int    `yaml:"baud"`
}

type GPSConfig struct {
	Source string `yaml:"source"`
	Device string `yaml:"device"`
	Baud   int    `yaml:"baud"`
}

type SimConfig struct {
	CenterLatDeg float64       `yaml:"center_lat_deg"`
	CenterLonDeg float64       `yaml:"center_lon_deg"`
	SpeedKmh     float64       `yaml:"speed_kmh"`
	Period       time.Duration `yaml:"period"`
}

type LogConfig struct {
	Path   string `yaml:"path"`
	Mirror int    `yaml:"mirror"`
}

type RTCConfig struct {
	Source string `yaml:"source"`
	Bus    string `yaml:"bus"`
	Addr   int    `yaml:"addr"`
}

type LEDConfig struct {
	Enable bool `yaml:"enable"`
	Pin    int  `yaml:"pin"`
}

type LimitsConfig struct {
	SpeedKmh int `yaml:"speed_kmh"`
	LimpKmh  int `yaml:"limp_kmh"`
}

type HostConfig struct {
	Port     SerialConfig   `yaml:"port"`
	Download DownloadConfig `yaml:"download"`
	Archive  ArchiveConfig  `yaml:"archive"`
	Publish  PublishConfig  `yaml:"publish"`
	Feed     FeedConfig     `yaml:"feed"`
}

type DownloadConfig struct {
	ReadTimeout time.Duration `yaml:"read_timeout"`
	IdleLimit   int           `yaml:"idle_limit"`
	Ceiling     time.Duration `yaml:"ceiling"`
}

type ArchiveConfig struct {
	Path string `yaml:"path"`
}

type PublishConfig struct {
	Broker   string `yaml:"broker"`
	Topic    string `yaml:"topic"`
	ClientID string `yaml:"client_id"`
}

type FeedConfig struct {
	Listen string `yaml:"listen"`
}

func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}

	// Device side.
	if cfg.Device.Control.Device == "" {
		return Config{}, fmt.Errorf("device.control.device is required")
	}
	if cfg.Device.Control.Baud <= 0 {
		cfg.Device.Control.Baud = 115200
	}

	if cfg.Device.GPS.Source == "" {
		cfg.Device.GPS.Source = "serial"
	}
	switch cfg.Device.GPS.Source {
	case "serial":
		if cfg.Device.GPS.Device == "" {
			return Config{}, fmt.Errorf("device.gps.device is required when device.gps.source is serial")
		}
		if cfg.Device.GPS.Baud <= 0 {
			cfg.Device.GPS.Baud = 9600
		}
	case "sim":
	default:
		return Config{}, fmt.Errorf("device.gps.source must be serial or sim, got %q", cfg.Device.GPS.Source)
	}

	// Simulator defaults (safe even if the source is serial).
	if cfg.Device.Sim.SpeedKmh <= 0 {
		cfg.Device.Sim.SpeedKmh = 40
	}
	if cfg.Device.Sim.Period <= 0 {
		cfg.Device.Sim.Period = 120 * time.Second
	}

	if cfg.Device.Log.Path == "" {
		return Config{}, fmt.Errorf("device.log.path is required")
	}
	if cfg.Device.Log.Mirror <= 0 {
		cfg.Device.Log.Mirror = 50
	}

	if cfg.Device.RTC.Source == "" {
		cfg.Device.RTC.Source = "system"
	}
	switch cfg.Device.RTC.Source {
	case "system":
	case "ds3231":
		if cfg.Device.RTC.Bus == "" {
			cfg.Device.RTC.Bus = "/dev/i2c-1"
		}
		if cfg.Device.RTC.Addr == 0 {
			cfg.Device.RTC.Addr = 0x68
		}
	default:
		return Config{}, fmt.Errorf("device.rtc.source must be system or ds3231, got %q", cfg.Device.RTC.Source)
	}

	if cfg.Device.LED.Enable && cfg.Device.LED.Pin <= 0 {
		return Config{}, fmt.Errorf("device.led.pin is required when device.led.enable is true")
	}

	if cfg.Device.Limits.SpeedKmh == 0 {
		cfg.Device.Limits.SpeedKmh = 80
	}
	if cfg.Device.Limits.SpeedKmh < 0 || cfg.Device.Limits.SpeedKmh >= 200 {
		return Config{}, fmt.Errorf("device.limits.speed_kmh must be between 1 and 199")
	}
	if cfg.Device.Limits.LimpKmh == 0 {
		cfg.Device.Limits.LimpKmh = 40
	}
	if cfg.Device.Limits.LimpKmh < 0 || cfg.Device.Limits.LimpKmh >= cfg.Device.Limits.SpeedKmh {
		return Config{}, fmt.Errorf("device.limits.limp_kmh must be between 1 and %d", cfg.Device.Limits.SpeedKmh-1)
	}

	// Host side. The serial port is only checked when the host tooling
	// runs; tracklogctl reports a missing port at startup.
	if cfg.Host.Port.Baud <= 0 {
		cfg.Host.Port.Baud = 115200
	}
	if cfg.Host.Download.ReadTimeout <= 0 {
		cfg.Host.Download.ReadTimeout = 1 * time.Second
	}
	if cfg.Host.Download.IdleLimit <= 0 {
		cfg.Host.Download.IdleLimit = 15
	}
	if cfg.Host.Download.Ceiling <= 0 {
		cfg.Host.Download.Ceiling = 120 * time.Second
	}
	if cfg.Host.Publish.Broker != "" && cfg.Host.Publish.Topic == "" {
		cfg.Host.Publish.Topic = "tracklog/records"
	}

	return cfg, nil
}
