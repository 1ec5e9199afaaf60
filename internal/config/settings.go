package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	SettingsFile   = "myOwnWebServer.toml"
	SettingsEnvVar = "MYOWNWEBSERVER_CONFIG"

	DefaultReadBufferSize = 2048
	DefaultTFTPTimeout    = 5 * time.Second

	maxReadBufferSize = 1 << 20
)

// Duration decodes TOML strings such as "5s"
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// Settings are the optional tunables read from the settings file
type Settings struct {
	LogFile        string   `toml:"log_file"`
	ReadBufferSize int      `toml:"read_buffer_size"`
	FlattenPaths   bool     `toml:"flatten_paths"`
	TFTPAddr       string   `toml:"tftp_addr"`
	TFTPTimeout    Duration `toml:"tftp_timeout"`
}

func DefaultSettings() Settings {
	return Settings{
		ReadBufferSize: DefaultReadBufferSize,
		FlattenPaths:   true,
		TFTPTimeout:    Duration{DefaultTFTPTimeout},
	}
}

// SettingsPath returns the settings file location. explicit reports
// whether it came from the environment, in which case it must exist.
func SettingsPath() (path string, explicit bool) {
	if p := os.Getenv(SettingsEnvVar); p != "" {
		return p, true
	}
	exe, err := os.Executable()
	if err != nil {
		return SettingsFile, false
	}
	return filepath.Join(filepath.Dir(exe), SettingsFile), false
}

// LoadSettings decodes path over the defaults. A missing file yields the
// defaults unless explicit is set.
func LoadSettings(path string, explicit bool) (Settings, error) {
	s := DefaultSettings()

	meta, err := toml.DecodeFile(path, &s)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && !explicit {
			return DefaultSettings(), nil
		}
		return Settings{}, fmt.Errorf("load settings %s: %w", path, err)
	}

	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		sort.Strings(keys)
		return Settings{}, fmt.Errorf("load settings %s: unknown keys: %s", path, strings.Join(keys, ", "))
	}

	if err := s.validate(); err != nil {
		return Settings{}, fmt.Errorf("load settings %s: %w", path, err)
	}
	return s, nil
}

func (s Settings) validate() error {
	if s.ReadBufferSize < 1 || s.ReadBufferSize > maxReadBufferSize {
		return fmt.Errorf("read_buffer_size must be between 1 and %d, got %d", maxReadBufferSize, s.ReadBufferSize)
	}
	if s.TFTPTimeout.Duration <= 0 {
		return fmt.Errorf("tftp_timeout must be positive, got %s", s.TFTPTimeout.Duration)
	}
	return nil
}
