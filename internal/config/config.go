// Package config provides configuration loading from environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

// DefaultEnvFile is loaded when no other env file is named.
const DefaultEnvFile = ".env"

// ErrInvalidConfig is returned by Validate for out-of-range values.
var ErrInvalidConfig = errors.New("config: invalid configuration")

// Config holds all configuration for the evaluation harness.
type Config struct {
	// Cartesia settings
	CartesiaAPIKey  string `env:"CARTESIA_API_KEY" json:"-"` // Masked in JSON
	CartesiaBaseURL string `env:"CARTESIA_BASE_URL, default=https://api.cartesia.ai" json:"cartesia_base_url" validate:"url"`
	CartesiaVersion string `env:"CARTESIA_VERSION, default=2025-04-16" json:"cartesia_version" validate:"required"`

	// Inputs
	SourceAudio string `env:"SOURCE_AUDIO, default=data/source.wav" json:"source_audio" validate:"required"`
	VoiceSample string `env:"VOICE_SAMPLE" json:"voice_sample,omitempty"`
	VoiceID     string `env:"VOICE_ID" json:"voice_id,omitempty"`
	VoiceName   string `env:"VOICE_NAME, default=infill-eval" json:"voice_name"`

	// Models
	Language    string `env:"LANGUAGE, default=en" json:"language" validate:"required"`
	STTModel    string `env:"STT_MODEL, default=ink-whisper" json:"stt_model" validate:"required"`
	InfillModel string `env:"INFILL_MODEL, default=sonic-2" json:"infill_model" validate:"required"`

	// Trial window
	LeftWords   int `env:"LEFT_WORDS, default=6" json:"left_words" validate:"min=0"`
	MiddleWords int `env:"MIDDLE_WORDS, default=3" json:"middle_words" validate:"min=1"`
	RightWords  int `env:"RIGHT_WORDS, default=6" json:"right_words" validate:"min=0"`
	Trials      int `env:"TRIALS, default=5" json:"trials" validate:"min=1"`

	// Storage settings
	OutputDir string `env:"OUTPUT_DIR, default=output" json:"output_dir" validate:"required"`
	CacheDir  string `env:"CACHE_DIR" json:"cache_dir,omitempty"`
	TempDir   string `env:"TEMP_DIR" json:"temp_dir,omitempty"`

	// Audio settings
	SampleRate   int     `env:"SAMPLE_RATE, default=44100" json:"sample_rate" validate:"min=8000"`
	Channels     int     `env:"CHANNELS, default=1" json:"channels" validate:"min=1,max=2"`
	Container    string  `env:"OUTPUT_CONTAINER, default=wav" json:"output_container" validate:"oneof=wav mp3"`
	JoinMode     string  `env:"JOIN_MODE, default=concat" json:"join_mode" validate:"oneof=concat crossfade"`
	CrossfadeSec float64 `env:"CROSSFADE_SEC, default=0.05" json:"crossfade_sec" validate:"min=0"`
	FadeSec      float64 `env:"FADE_SEC, default=0" json:"fade_sec" validate:"min=0"`
	SlugLength   int     `env:"SLUG_LENGTH, default=40" json:"slug_length" validate:"min=1"`
	FFmpegPath   string  `env:"FFMPEG_PATH" json:"ffmpeg_path,omitempty"`

	HTTPTimeout time.Duration `env:"HTTP_TIMEOUT, default=5m" json:"http_timeout" validate:"min=0"`

	// Optional S3 settings
	S3Bucket           string `env:"S3_BUCKET" json:"s3_bucket,omitempty"`
	S3Region           string `env:"S3_REGION" json:"s3_region,omitempty"`
	S3Endpoint         string `env:"S3_ENDPOINT" json:"s3_endpoint,omitempty"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID" json:"-"`     // Masked in JSON
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" json:"-"` // Masked in JSON

	// Output
	ReportPath string `env:"REPORT_PATH" json:"report_path,omitempty"`

	// Logging settings
	LogFormat string `env:"LOG_FORMAT, default=text" json:"log_format"` // "json" or "text"
	LogLevel  string `env:"LOG_LEVEL, default=info" json:"log_level"`   // "debug", "info", "warn", "error"
}

// S3Enabled returns true if S3 configuration is provided.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != "" && c.S3Region != ""
}

// VoiceSamplePath returns the file voices are cloned from, which defaults to
// the source recording.
func (c *Config) VoiceSamplePath() string {
	if c.VoiceSample != "" {
		return c.VoiceSample
	}
	return c.SourceAudio
}

// LoadEnvFile exports the variables of a dotenv file into the process
// environment without overriding variables that are already set. An empty
// path means DefaultEnvFile; a missing file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		path = DefaultEnvFile
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: load %s: %w", path, err)
	}
	return nil
}

// Load reads configuration from environment variables using go-envconfig.
// A missing API key is not an error here; see Warnings.
func Load() (*Config, error) {
	return LoadContext(context.Background())
}

// LoadContext is Load with a caller-supplied context.
func LoadContext(ctx context.Context) (*Config, error) {
	cfg := &Config{}

	if err := envconfig.Process(ctx, cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// Validate checks value ranges and enumerations.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// Warnings lists problems that do not stop the process from starting but
// will make later operations fail.
func (c *Config) Warnings() []string {
	var warnings []string
	if c.CartesiaAPIKey == "" {
		warnings = append(warnings, "CARTESIA_API_KEY is not set; remote calls will fail")
	}
	if c.S3Bucket != "" && c.S3Region == "" {
		warnings = append(warnings, "S3_BUCKET is set without S3_REGION; publishing is disabled")
	}
	if c.JoinMode == "crossfade" && c.CrossfadeSec == 0 {
		warnings = append(warnings, "JOIN_MODE=crossfade with CROSSFADE_SEC=0 joins without overlap")
	}
	return warnings
}

// NewLogger creates a structured logger based on the configuration.
// Logs go to stderr so command output on stdout stays clean.
func (c *Config) NewLogger() *slog.Logger {
	return c.newLogger(os.Stderr)
}

// newLogger builds the logger on w. When LogFormat is "json", it outputs JSON
// logs; otherwise human-readable text logs.
func (c *Config) newLogger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(c.LogLevel)}

	var handler slog.Handler
	if strings.ToLower(c.LogFormat) == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}

// String returns a string representation of the config with sensitive values masked.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{SourceAudio: %s, VoiceID: %s, Language: %s, STTModel: %s, InfillModel: %s, Window: %d/%d/%d, Trials: %d, OutputDir: %s, JoinMode: %s, S3Bucket: %s, S3Region: %s, LogFormat: %s, LogLevel: %s}",
		c.SourceAudio,
		c.VoiceID,
		c.Language,
		c.STTModel,
		c.InfillModel,
		c.LeftWords,
		c.MiddleWords,
		c.RightWords,
		c.Trials,
		c.OutputDir,
		c.JoinMode,
		c.S3Bucket,
		c.S3Region,
		c.LogFormat,
		c.LogLevel,
	)
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
