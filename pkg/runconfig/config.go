// Package runconfig loads the runtime's configuration surface
// from CLI flags and an optional .env file, grounded on the teacher's
// cmd-level config loading conventions.
package runconfig

import (
	"time"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
)

// Config is every recognized option from configuration table.
type Config struct {
	RunsRoot string `help:"directory under which run directories are created." default:"./runs" env:"AGENTRUN_RUNS_ROOT"`
	RunName  string `help:"name of this run's directory; derived from the task if empty." env:"AGENTRUN_RUN_NAME"`

	MaxConcurrentThinkerRequests int           `help:"Thinker Client request queue concurrency." default:"6" env:"AGENTRUN_MAX_CONCURRENT_THINKER_REQUESTS"`
	MinInterRequestDelaySeconds  float64       `help:"minimum spacing between thinker requests." default:"1.0" env:"AGENTRUN_MIN_INTER_REQUEST_DELAY_SECONDS"`
	ThinkerTimeoutSeconds        int           `help:"per-request thinker timeout." default:"600" env:"AGENTRUN_THINKER_TIMEOUT_SECONDS"`

	CacheEnabled    bool    `help:"enable the thinker Response Cache." default:"true" env:"AGENTRUN_CACHE_ENABLED"`
	CacheMaxSize    int     `help:"Response Cache max entries." default:"100" env:"AGENTRUN_CACHE_MAX_SIZE"`
	CacheTTLSeconds float64 `help:"Response Cache entry TTL." default:"3600" env:"AGENTRUN_CACHE_TTL_SECONDS"`

	CircuitFailureThreshold       int     `help:"consecutive failures before the circuit opens." default:"5" env:"AGENTRUN_CIRCUIT_FAILURE_THRESHOLD"`
	CircuitRecoveryTimeoutSeconds float64 `help:"time an open circuit waits before probing." default:"60" env:"AGENTRUN_CIRCUIT_RECOVERY_TIMEOUT_SECONDS"`

	MaxIterations  int `help:"per-agent iteration budget." default:"300" env:"AGENTRUN_MAX_ITERATIONS"`
	MaxWaitSeconds int `help:"per-agent max time in a waiting status." default:"300" env:"AGENTRUN_MAX_WAIT_SECONDS"`

	SandboxRequestTimeoutSeconds  int `help:"sandbox worker request enqueue timeout; the Sandbox Dispatcher does not read this option and has no enqueue wait." default:"120" env:"AGENTRUN_SANDBOX_REQUEST_TIMEOUT_SECONDS"`
	SandboxResponseTimeoutSeconds int `help:"sandbox worker response wait timeout; the Sandbox Dispatcher does not read this option and always waits 180s." default:"180" env:"AGENTRUN_SANDBOX_RESPONSE_TIMEOUT_SECONDS"`

	StreamingEnabled bool     `help:"stream thinker responses, stopping early at the action-end marker." default:"true" env:"AGENTRUN_STREAMING_ENABLED"`
	StreamingOptOut  []string `help:"regex patterns of model names that fall back to non-streaming." env:"AGENTRUN_STREAMING_OPT_OUT"`

	ThinkerModel        string `help:"model name passed to the thinker transport." default:"" env:"AGENTRUN_THINKER_MODEL"`
	ThinkerSystemPrompt string `help:"static system prompt prepended to every thinker call." env:"AGENTRUN_THINKER_SYSTEM_PROMPT"`
	ThinkerEndpoint     string `help:"URL the reference HTTP thinker transport posts conversations to." env:"AGENTRUN_THINKER_ENDPOINT"`
	ThinkerAPIKey       string `help:"bearer token for the thinker transport endpoint." env:"AGENTRUN_THINKER_API_KEY"`

	Task string `arg:"" help:"task description for the root agent." optional:""`

	LogLevel string `help:"minimum log level (debug, info, warn, error)." default:"info" env:"AGENTRUN_LOG_LEVEL"`
	LogFile  string `help:"path to a log file; stderr if empty." env:"AGENTRUN_LOG_FILE"`

	MetricsAddr string `help:"address the internal /metrics mux listens on; empty disables it." default:":9090" env:"AGENTRUN_METRICS_ADDR"`

	DotenvPath string `help:"path to a .env file to load before flag parsing." default:".env"`
}

// ThinkerTimeout/MinInterRequestDelay/CacheTTL/CircuitRecoveryTimeout
// convert the seconds-valued config fields into time.Duration.
func (c Config) ThinkerTimeout() time.Duration        { return time.Duration(c.ThinkerTimeoutSeconds) * time.Second }
func (c Config) MinInterRequestDelay() time.Duration  { return time.Duration(c.MinInterRequestDelaySeconds * float64(time.Second)) }
func (c Config) CacheTTL() time.Duration              { return time.Duration(c.CacheTTLSeconds * float64(time.Second)) }
func (c Config) CircuitRecoveryTimeout() time.Duration {
	return time.Duration(c.CircuitRecoveryTimeoutSeconds * float64(time.Second))
}
func (c Config) SandboxRequestTimeout() time.Duration {
	return time.Duration(c.SandboxRequestTimeoutSeconds) * time.Second
}
func (c Config) SandboxResponseTimeout() time.Duration {
	return time.Duration(c.SandboxResponseTimeoutSeconds) * time.Second
}

// Load parses CLI args (typically os.Args[1:]) into a Config, first
// loading any .env file found at dotenvPath (godotenv populates the
// process environment, which kong's env tags then read).
func Load(args []string, dotenvPath string) (Config, error) {
	if dotenvPath == "" {
		dotenvPath = ".env"
	}
	_ = godotenv.Load(dotenvPath) // a missing .env file is not an error

	var cfg Config
	parser, err := kong.New(&cfg, kong.Name("agentrun"), kong.Description("autonomous agent runtime"))
	if err != nil {
		return Config{}, err
	}
	if _, err := parser.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
