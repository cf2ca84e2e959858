package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
	"github.com/robfig/cron/v3"
)

// Config represents the harness configuration
type Config struct {
	App         AppConfig         `toml:"app"`
	Timeouts    TimeoutsConfig    `toml:"timeouts"`
	Readiness   ReadinessConfig   `toml:"readiness"`
	Scenarios   ScenariosConfig   `toml:"scenarios"`
	Diagnostics DiagnosticsConfig `toml:"diagnostics"`
	Output      OutputConfig      `toml:"output"`
	Storage     StorageConfig     `toml:"storage"`
	Schedule    ScheduleConfig    `toml:"schedule"`
	Logging     LoggingConfig     `toml:"logging"`
}

// AppConfig describes how to launch the application under test
type AppConfig struct {
	Command   string            `toml:"command" validate:"required"` // Executable (e.g. path to electron)
	Args      []string          `toml:"args"`                        // Arguments passed before the debugging flag
	Env       map[string]string `toml:"env"`                         // Extra environment variables
	WorkDir   string            `toml:"work_dir"`                    // Working directory (default: current)
	DebugHost string            `toml:"debug_host" validate:"required"`
	DebugPort int               `toml:"debug_port" validate:"min=0,max=65535"` // 0 picks a free port
}

// TimeoutsConfig bounds every blocking phase of a run
type TimeoutsConfig struct {
	Startup string `toml:"startup"` // Process launch -> transport handshake (default: "30s")
	Ready   string `toml:"ready"`   // Handshake -> embedded engine started (default: "20s")
	Stop    string `toml:"stop"`    // Graceful terminate before force-kill (default: "10s")
	Kill    string `toml:"kill"`    // Force-kill before ShutdownError (default: "5s")
	Call    string `toml:"call"`    // Single automation call (default: "10s")
}

// ReadinessConfig selects how the embedded engine's boot is detected
type ReadinessConfig struct {
	Policy          string  `toml:"policy" validate:"oneof=poll settle"`
	Expression      string  `toml:"expression"`       // Defaults to scenarios.started_expression
	SettleDelay     string  `toml:"settle_delay"`     // Used by the settle policy (default: "3s")
	InitialInterval string  `toml:"initial_interval"` // First poll backoff (default: "100ms")
	MaxInterval     string  `toml:"max_interval"`     // Backoff cap (default: "2s")
	Factor          float64 `toml:"factor" validate:"gte=1"`
	Jitter          float64 `toml:"jitter" validate:"gte=0,lte=1"`
}

// ScenariosConfig holds values the smoke scenarios assert against
type ScenariosConfig struct {
	HostSelector      string   `toml:"host_selector" validate:"required"`
	StartedExpression string   `toml:"started_expression" validate:"required"`
	Only              []string `toml:"only"` // Run only scenarios whose name contains one of these
}

// DiagnosticsConfig controls what is captured for failed scenarios
type DiagnosticsConfig struct {
	Screenshots  bool `toml:"screenshots"`
	DOMSummary   bool `toml:"dom_summary"`
	MaxHostLines int  `toml:"max_host_lines" validate:"min=0"` // Host log buffer size, 0 = unbounded
}

// OutputConfig controls where run artifacts are written
type OutputConfig struct {
	ResultsDir string `toml:"results_dir"` // Empty disables artifacts
}

// StorageConfig configures run history persistence
type StorageConfig struct {
	Enabled        bool   `toml:"enabled"`
	Path           string `toml:"path" validate:"required_if=Enabled true"`
	ResetOnStartup bool   `toml:"reset_on_startup"`
}

// ScheduleConfig configures repeated runs
type ScheduleConfig struct {
	Cron string `toml:"cron"` // Six-field cron expression (with seconds)
}

type LoggingConfig struct {
	Level  string   `toml:"level" validate:"oneof=trace debug info warn error"`
	Output []string `toml:"output"` // "stdout", "file"
}

// NewDefaultConfig creates a configuration with default values
func NewDefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Command:   "electron",
			Args:      []string{"."},
			DebugHost: "127.0.0.1",
			DebugPort: 0,
		},
		Timeouts: TimeoutsConfig{
			Startup: "30s",
			Ready:   "20s",
			Stop:    "10s",
			Kill:    "5s",
			Call:    "10s",
		},
		Readiness: ReadinessConfig{
			Policy:          "poll",
			SettleDelay:     "3s",
			InitialInterval: "100ms",
			MaxInterval:     "2s",
			Factor:          2.0,
			Jitter:          0.1,
		},
		Scenarios: ScenariosConfig{
			HostSelector:      "neovim-editor",
			StartedExpression: DefaultStartedExpression,
		},
		Diagnostics: DiagnosticsConfig{
			Screenshots:  true,
			DOMSummary:   true,
			MaxHostLines: 5000,
		},
		Output: OutputConfig{
			ResultsDir: "./results",
		},
		Storage: StorageConfig{
			Enabled: false,
			Path:    "./data/runs",
		},
		Schedule: ScheduleConfig{
			Cron: "0 */15 * * * *",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout"},
		},
	}
}

// DefaultStartedExpression reads the embedded engine's started flag, yielding
// false instead of throwing while the editor element is still being built.
const DefaultStartedExpression = `(() => {
	const el = document.getElementById('nyaovim-editor');
	return !!(el && el.editor && el.editor.process && el.editor.process.started);
})()`

// LoadFromFiles loads configuration with priority: default -> file1 -> file2 -> ... -> env
// Later files override earlier files. CLI overrides are applied by the caller.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if command := os.Getenv("SHELLPROBE_APP_COMMAND"); command != "" {
		config.App.Command = command
	}
	if args := os.Getenv("SHELLPROBE_APP_ARGS"); args != "" {
		config.App.Args = strings.Fields(args)
	}
	if workDir := os.Getenv("SHELLPROBE_APP_WORK_DIR"); workDir != "" {
		config.App.WorkDir = workDir
	}
	if host := os.Getenv("SHELLPROBE_DEBUG_HOST"); host != "" {
		config.App.DebugHost = host
	}
	if port := os.Getenv("SHELLPROBE_DEBUG_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.App.DebugPort = p
		}
	}
	if startup := os.Getenv("SHELLPROBE_STARTUP_TIMEOUT"); startup != "" {
		config.Timeouts.Startup = startup
	}
	if ready := os.Getenv("SHELLPROBE_READY_TIMEOUT"); ready != "" {
		config.Timeouts.Ready = ready
	}
	if stop := os.Getenv("SHELLPROBE_STOP_TIMEOUT"); stop != "" {
		config.Timeouts.Stop = stop
	}
	if policy := os.Getenv("SHELLPROBE_READINESS_POLICY"); policy != "" {
		config.Readiness.Policy = policy
	}
	if resultsDir := os.Getenv("SHELLPROBE_RESULTS_DIR"); resultsDir != "" {
		config.Output.ResultsDir = resultsDir
	}
	if enabled := os.Getenv("SHELLPROBE_STORAGE_ENABLED"); enabled != "" {
		if b, err := strconv.ParseBool(enabled); err == nil {
			config.Storage.Enabled = b
		}
	}
	if path := os.Getenv("SHELLPROBE_STORAGE_PATH"); path != "" {
		config.Storage.Path = path
	}
	if level := os.Getenv("SHELLPROBE_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("SHELLPROBE_LOG_OUTPUT"); output != "" {
		outputs := strings.Split(output, ",")
		validOutputs := []string{}
		for _, o := range outputs {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				validOutputs = append(validOutputs, trimmed)
			}
		}
		if len(validOutputs) > 0 {
			config.Logging.Output = validOutputs
		}
	}
}

// FlagOverrides holds CLI values that take precedence over files and env
type FlagOverrides struct {
	Command    string
	ResultsDir string
	Only       []string
	LogLevel   string
}

// ApplyFlagOverrides applies command-line flag overrides to config
// CLI flags have the highest priority
func ApplyFlagOverrides(config *Config, flags FlagOverrides) {
	if flags.Command != "" {
		config.App.Command = flags.Command
	}
	if flags.ResultsDir != "" {
		config.Output.ResultsDir = flags.ResultsDir
	}
	if len(flags.Only) > 0 {
		config.Scenarios.Only = flags.Only
	}
	if flags.LogLevel != "" {
		config.Logging.Level = flags.LogLevel
	}
}

// Validate checks struct constraints and duration/cron syntax
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	durations := map[string]string{
		"timeouts.startup":           c.Timeouts.Startup,
		"timeouts.ready":             c.Timeouts.Ready,
		"timeouts.stop":              c.Timeouts.Stop,
		"timeouts.kill":              c.Timeouts.Kill,
		"timeouts.call":              c.Timeouts.Call,
		"readiness.settle_delay":     c.Readiness.SettleDelay,
		"readiness.initial_interval": c.Readiness.InitialInterval,
		"readiness.max_interval":     c.Readiness.MaxInterval,
	}
	// Zero would expire before the first attempt
	positive := map[string]bool{
		"timeouts.startup": true,
		"timeouts.ready":   true,
		"timeouts.call":    true,
	}
	for key, value := range durations {
		if value == "" {
			continue
		}
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid configuration: %s=%q: %w", key, value, err)
		}
		if d < 0 {
			return fmt.Errorf("invalid configuration: %s must not be negative", key)
		}
		if d == 0 && positive[key] {
			return fmt.Errorf("invalid configuration: %s must be greater than zero", key)
		}
	}

	if c.Schedule.Cron != "" {
		if _, err := ParseSchedule(c.Schedule.Cron); err != nil {
			return fmt.Errorf("invalid configuration: schedule.cron=%q: %w", c.Schedule.Cron, err)
		}
	}

	return nil
}

// ParseSchedule parses a six-field cron expression (seconds first)
func ParseSchedule(spec string) (cron.Schedule, error) {
	parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	return parser.Parse(spec)
}

// ParseDurationOr parses a duration string, falling back to def when empty or invalid
func ParseDurationOr(value string, def time.Duration) time.Duration {
	if value == "" {
		return def
	}
	d, err := time.ParseDuration(value)
	if err != nil || d < 0 {
		return def
	}
	return d
}

// ReadinessExpression returns the expression polled by the readiness gate
func (c *Config) ReadinessExpression() string {
	if c.Readiness.Expression != "" {
		return c.Readiness.Expression
	}
	return c.Scenarios.StartedExpression
}
