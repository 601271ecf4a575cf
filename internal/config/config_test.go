package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTempConfig(t *testing.T, contents string) string {
	t.Helper()
	tmp := t.TempDir()
	path := filepath.Join(tmp, "cfg.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}
	return path
}

func requireErrEq(t *testing.T, err error, want string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error %q, got nil", want)
	}
	if err.Error() != want {
		t.Fatalf("error=%q want %q", err.Error(), want)
	}
}

const minimalDevice = "device:\n  control: {device: /dev/ttyUSB0}\n  gps: {source: sim}\n  log: {path: ./track.log}\n"

func TestLoad_RequiresControlDevice(t *testing.T) {
	path := writeTempConfig(t, "device: {}\n")
	_, err := Load(path)
	requireErrEq(t, err, "device.control.device is required")
}

func TestLoad_RequiresLogPath(t *testing.T) {
	path := writeTempConfig(t, "device:\n  control: {device: /dev/ttyUSB0}\n  gps: {source: sim}\n")
	_, err := Load(path)
	requireErrEq(t, err, "device.log.path is required")
}

func TestLoad_SerialGPSRequiresDevice(t *testing.T) {
	path := writeTempConfig(t, "device:\n  control: {device: /dev/ttyUSB0}\n  gps: {source: serial}\n  log: {path: ./track.log}\n")
	_, err := Load(path)
	requireErrEq(t, err, "device.gps.device is required when device.gps.source is serial")
}

func TestLoad_UnknownGPSSourceRejected(t *testing.T) {
	path := writeTempConfig(t, "device:\n  control: {device: /dev/ttyUSB0}\n  gps: {source: gpsd}\n  log: {path: ./track.log}\n")
	_, err := Load(path)
	requireErrEq(t, err, `device.gps.source must be serial or sim, got "gpsd"`)
}

func TestLoad_DefaultsApplied(t *testing.T) {
	path := writeTempConfig(t, minimalDevice)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Device.Control.Baud != 115200 {
		t.Fatalf("control baud=%d want 115200", cfg.Device.Control.Baud)
	}
	if cfg.Device.Log.Mirror != 50 {
		t.Fatalf("mirror=%d want 50", cfg.Device.Log.Mirror)
	}
	if cfg.Device.RTC.Source != "system" {
		t.Fatalf("rtc source=%q want system", cfg.Device.RTC.Source)
	}
	if cfg.Device.Limits.SpeedKmh != 80 || cfg.Device.Limits.LimpKmh != 40 {
		t.Fatalf("limits=%+v want 80/40", cfg.Device.Limits)
	}
	// Simulator defaults should be populated even when unused.
	if cfg.Device.Sim.SpeedKmh != 40 || cfg.Device.Sim.Period != 120*time.Second {
		t.Fatalf("sim defaults=%+v", cfg.Device.Sim)
	}
	if cfg.Host.Download.ReadTimeout != 1*time.Second {
		t.Fatalf("read_timeout=%s want 1s", cfg.Host.Download.ReadTimeout)
	}
	if cfg.Host.Download.IdleLimit != 15 {
		t.Fatalf("idle_limit=%d want 15", cfg.Host.Download.IdleLimit)
	}
	if cfg.Host.Download.Ceiling != 120*time.Second {
		t.Fatalf("ceiling=%s want 120s", cfg.Host.Download.Ceiling)
	}
}

func TestLoad_DS3231Defaults(t *testing.T) {
	path := writeTempConfig(t, minimalDevice+"  rtc: {source: ds3231}\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Device.RTC.Bus != "/dev/i2c-1" {
		t.Fatalf("rtc bus=%q want /dev/i2c-1", cfg.Device.RTC.Bus)
	}
	if cfg.Device.RTC.Addr != 0x68 {
		t.Fatalf("rtc addr=%#x want 0x68", cfg.Device.RTC.Addr)
	}
}

func TestLoad_UnknownRTCSourceRejected(t *testing.T) {
	path := writeTempConfig(t, minimalDevice+"  rtc: {source: pcf8563}\n")
	_, err := Load(path)
	requireErrEq(t, err, `device.rtc.source must be system or ds3231, got "pcf8563"`)
}

func TestLoad_LEDRequiresPin(t *testing.T) {
	path := writeTempConfig(t, minimalDevice+"  led: {enable: true}\n")
	_, err := Load(path)
	requireErrEq(t, err, "device.led.pin is required when device.led.enable is true")
}

func TestLoad_LimitValidation(t *testing.T) {
	cases := []struct {
		name  string
		extra string
		want  string
	}{
		{
			name:  "SpeedTooHigh",
			extra: "  limits: {speed_kmh: 200}\n",
			want:  "device.limits.speed_kmh must be between 1 and 199",
		},
		{
			name:  "SpeedNegative",
			extra: "  limits: {speed_kmh: -5}\n",
			want:  "device.limits.speed_kmh must be between 1 and 199",
		},
		{
			name:  "LimpAtLimit",
			extra: "  limits: {speed_kmh: 80, limp_kmh: 80}\n",
			want:  "device.limits.limp_kmh must be between 1 and 79",
		},
		{
			name:  "LimpAboveLimit",
			extra: "  limits: {speed_kmh: 60, limp_kmh: 90}\n",
			want:  "device.limits.limp_kmh must be between 1 and 59",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeTempConfig(t, minimalDevice+tc.extra)
			_, err := Load(path)
			requireErrEq(t, err, tc.want)
		})
	}
}

func TestLoad_PublishTopicDefault(t *testing.T) {
	path := writeTempConfig(t, minimalDevice+"host:\n  publish: {broker: 'tcp://localhost:1883'}\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Host.Publish.Topic != "tracklog/records" {
		t.Fatalf("topic=%q want tracklog/records", cfg.Host.Publish.Topic)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}
