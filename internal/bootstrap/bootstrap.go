// Package bootstrap provides dependency initialization for the evaluation harness.
package bootstrap

import (
	"fmt"
	"log/slog"

	"github.com/maauso/infill-eval/internal/cache"
	"github.com/maauso/infill-eval/internal/cartesia"
	"github.com/maauso/infill-eval/internal/config"
	"github.com/maauso/infill-eval/internal/eval"
	"github.com/maauso/infill-eval/internal/media"
	"github.com/maauso/infill-eval/internal/storage"
	"github.com/maauso/infill-eval/internal/transcript"
)

// Dependencies holds all initialized dependencies for the CLI.
type Dependencies struct {
	Client      *cartesia.HTTPClient
	Transcriber *cache.CachingTranscriber
	Runner      *eval.Runner
	Store       storage.Storage
}

// NewDependencies creates and initializes all dependencies for the application.
func NewDependencies(cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	// Initialize storage
	store, err := initStorage(cfg, logger)
	if err != nil {
		return nil, err
	}

	// Initialize Cartesia client
	client, err := cartesia.NewClient(
		cartesia.WithAPIKey(cfg.CartesiaAPIKey),
		cartesia.WithBaseURL(cfg.CartesiaBaseURL),
		cartesia.WithVersion(cfg.CartesiaVersion),
		cartesia.WithTimeout(cfg.HTTPTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("create Cartesia client: %w", err)
	}

	// Initialize timestamp cache
	cacheStore, err := cache.NewStore(cfg.CacheDir)
	if err != nil {
		return nil, fmt.Errorf("create timestamp cache: %w", err)
	}
	logger.Info("timestamp cache configured", slog.String("dir", cacheStore.Dir()))

	processor := media.NewFFmpegProcessor(cfg.FFmpegPath)
	driver := eval.NewDriver(processor, client, store, logger, DriverOptions(cfg))

	voices := eval.NewCachedVoice(cfg.VoiceID, cfg.VoiceSamplePath(), cartesia.CloneOptions{
		Name:        cfg.VoiceName,
		Description: "cloned for infill evaluation",
		Language:    cfg.Language,
	}, client, logger)

	return &Dependencies{
		Client:      client,
		Transcriber: cache.NewCachingTranscriber(cacheStore, client, logger),
		Runner:      eval.NewRunner(driver, voices, logger),
		Store:       store,
	}, nil
}

// TranscribeOptions returns the transcription parameters from cfg.
func TranscribeOptions(cfg *config.Config) transcript.TranscribeOptions {
	return transcript.TranscribeOptions{
		Model:       cfg.STTModel,
		Language:    cfg.Language,
		Granularity: "word",
	}
}

// BatchOptions returns the trial layout from cfg.
func BatchOptions(cfg *config.Config) eval.BatchOptions {
	return eval.BatchOptions{
		Trials:      cfg.Trials,
		Left:        cfg.LeftWords,
		Middle:      cfg.MiddleWords,
		Right:       cfg.RightWords,
		SourceAudio: cfg.SourceAudio,
	}
}

// DriverOptions returns the rendering options from cfg.
func DriverOptions(cfg *config.Config) eval.DriverOptions {
	encode := media.EncodeOpts{
		SampleRate: cfg.SampleRate,
		Channels:   cfg.Channels,
		Codec:      "pcm_s16le",
	}

	format := cartesia.OutputFormat{
		Container:  cfg.Container,
		SampleRate: cfg.SampleRate,
	}
	// Intermediates stay PCM WAV; only the joined artifact takes the container.
	joinEncode := encode
	if cfg.Container == "wav" {
		format.Encoding = "pcm_s16le"
	} else {
		// ffmpeg picks the compressed codec from the artifact extension.
		format.BitRate = 128000
		joinEncode.Codec = ""
	}

	return eval.DriverOptions{
		OutputDir: cfg.OutputDir,
		Encode:    encode,
		Format:    format,
		Join: media.JoinOpts{
			Mode:         media.JoinMode(cfg.JoinMode),
			CrossfadeSec: cfg.CrossfadeSec,
			Encode:       joinEncode,
		},
		FadeSec:    cfg.FadeSec,
		ModelID:    cfg.InfillModel,
		Language:   cfg.Language,
		SlugLength: cfg.SlugLength,
		Publish:    cfg.S3Enabled(),
	}
}

// initStorage creates the appropriate storage backend based on configuration.
func initStorage(cfg *config.Config, logger *slog.Logger) (storage.Storage, error) {
	if cfg.S3Enabled() {
		s3Cfg := storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		}
		s3Store, err := storage.NewS3Storage(cfg.TempDir, s3Cfg)
		if err != nil {
			return nil, fmt.Errorf("create S3 storage: %w", err)
		}
		logger.Info("S3 publishing configured",
			slog.String("bucket", cfg.S3Bucket),
			slog.String("region", cfg.S3Region),
		)
		return s3Store, nil
	}

	localStore, err := storage.NewLocalStorage(cfg.TempDir)
	if err != nil {
		return nil, fmt.Errorf("create local storage: %w", err)
	}
	logger.Info("local storage configured",
		slog.String("temp_dir", localStore.TempDir()),
	)
	return localStore, nil
}
