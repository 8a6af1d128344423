package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/evanschultz/kantime/internal/board"
	toml "github.com/pelletier/go-toml/v2"
)

// MinTickInterval is the shortest accepted timer tick.
const MinTickInterval = time.Second

// Config holds every option read from config.toml.
type Config struct {
	Database DatabaseConfig `toml:"database"`
	Timers   TimersConfig   `toml:"timers"`
	Board    BoardConfig    `toml:"board"`
	Logging  LoggingConfig  `toml:"logging"`
}

type DatabaseConfig struct {
	Path string `toml:"path"`
}

// TimersConfig locates the durable timer store and sets the accrual cadence.
type TimersConfig struct {
	StorePath    string `toml:"store_path"`
	TickInterval string `toml:"tick_interval"`
}

type BoardConfig struct {
	DefaultProject     string `toml:"default_project"`
	SortBy             string `toml:"sort_by"`
	SortOrder          string `toml:"sort_order"`
	ConfirmQuitPending bool   `toml:"confirm_quit_pending"`
}

type LoggingConfig struct {
	Level   string        `toml:"level"`
	DevFile DevFileConfig `toml:"dev_file"`
}

// DevFileConfig controls the logfmt file sink used in dev mode.
type DevFileConfig struct {
	Enabled bool   `toml:"enabled"`
	Dir     string `toml:"dir"`
}

// Default returns the built-in configuration for the resolved paths.
func Default(dbPath, timerStorePath string) Config {
	return Config{
		Database: DatabaseConfig{
			Path: dbPath,
		},
		Timers: TimersConfig{
			StorePath:    timerStorePath,
			TickInterval: board.DefaultTickInterval.String(),
		},
		Board: BoardConfig{
			DefaultProject:     "Inbox",
			SortBy:             string(board.SortCreated),
			SortOrder:          string(board.SortDesc),
			ConfirmQuitPending: true,
		},
		Logging: LoggingConfig{
			Level: "info",
			DevFile: DevFileConfig{
				Enabled: true,
				Dir:     ".kantime/log",
			},
		},
	}
}

// Load reads path over defaults. A missing or empty file yields defaults.
func Load(path string, defaults Config) (Config, error) {
	cfg := defaults
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if len(content) == 0 {
		return cfg, nil
	}

	if err := toml.Unmarshal(content, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode toml: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate checks every option.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Database.Path) == "" {
		return errors.New("database path is required")
	}
	if strings.TrimSpace(c.Timers.StorePath) == "" {
		return errors.New("timers.store_path is required")
	}
	if _, err := c.TickInterval(); err != nil {
		return err
	}
	if _, err := board.ParseSortKey(c.Board.SortBy); err != nil {
		return fmt.Errorf("invalid board.sort_by: %w", err)
	}
	if _, err := board.ParseSortOrder(c.Board.SortOrder); err != nil {
		return fmt.Errorf("invalid board.sort_order: %w", err)
	}
	if _, err := log.ParseLevel(strings.TrimSpace(c.Logging.Level)); err != nil {
		return fmt.Errorf("invalid logging.level: %q", c.Logging.Level)
	}
	return nil
}

// TickInterval parses timers.tick_interval; blank means the default.
func (c Config) TickInterval() (time.Duration, error) {
	raw := strings.TrimSpace(c.Timers.TickInterval)
	if raw == "" {
		return board.DefaultTickInterval, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid timers.tick_interval %q: %w", raw, err)
	}
	if d < MinTickInterval {
		return 0, fmt.Errorf("timers.tick_interval must be >= %s, got %s", MinTickInterval, d)
	}
	return d, nil
}

// BoardFilter returns the default filter with the configured sort applied.
func (c Config) BoardFilter() board.FilterState {
	f := board.DefaultFilter()
	if key, err := board.ParseSortKey(c.Board.SortBy); err == nil {
		f.SortBy = key
	}
	if order, err := board.ParseSortOrder(c.Board.SortOrder); err == nil {
		f.SortOrder = order
	}
	return f
}

// EnsureConfigDir creates the parent directory of path.
func EnsureConfigDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
