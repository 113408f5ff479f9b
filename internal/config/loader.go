package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// ValidClassifierProviders lists known classifier backend names.
// Used by [Validate] to warn about unrecognised provider names.
var ValidClassifierProviders = []string{
	"openai", "anthropic", "gemini", "ollama", "deepseek", "mistral", "groq", "llamacpp", "llamafile",
}

// envRef matches ${NAME} and ${NAME:default} references in raw config text.
var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::([^}]*))?\}`)

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, expands environment variable
// references, applies defaults, and validates the result. Useful in tests
// where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	raw = expandEnv(raw)

	cfg := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}

	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// expandEnv replaces ${NAME} and ${NAME:default} references with the value of
// the corresponding environment variable. An unset variable without a default
// expands to the empty string.
func expandEnv(raw []byte) []byte {
	return envRef.ReplaceAllFunc(raw, func(match []byte) []byte {
		groups := envRef.FindSubmatch(match)
		name := string(groups[1])
		if val, ok := os.LookupEnv(name); ok {
			return []byte(val)
		}
		return groups[2] // default value, possibly empty
	})
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if !cfg.Logging.Level.IsValid() {
		errs = append(errs, fmt.Errorf("logging.level %q is invalid; valid values: debug, info, warn, error", cfg.Logging.Level))
	}
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d is out of range [1, 65535]", cfg.Server.Port))
	}
	if !strings.HasPrefix(cfg.Server.WebhookPath, "/") {
		errs = append(errs, fmt.Errorf("server.webhook_path %q must start with /", cfg.Server.WebhookPath))
	}
	if !strings.HasPrefix(cfg.Server.WSPath, "/") {
		errs = append(errs, fmt.Errorf("server.ws_path %q must start with /", cfg.Server.WSPath))
	}

	// Carrier credentials must come as a pair.
	if (cfg.Carrier.SID == "") != (cfg.Carrier.Token == "") {
		errs = append(errs, errors.New("carrier.sid and carrier.token must be set together"))
	}
	if cfg.Carrier.SID == "" {
		slog.Warn("carrier credentials not configured; outbound dialing and hangup are disabled")
	}
	if cfg.Server.PublicHost == "" {
		slog.Warn("server.public_host is empty; TwiML stream URLs cannot be built for inbound calls")
	}

	// Exactly one model must be usable.
	if cfg.ModelB.Enabled {
		if cfg.ModelB.APIKey == "" {
			errs = append(errs, errors.New("model_b.enabled is true but model_b.api_key is empty"))
		}
	} else if cfg.ModelA.APIKey == "" {
		errs = append(errs, errors.New("model_a.api_key is required unless model_b is enabled"))
	}

	if cfg.ExternalSTT.Enabled {
		if cfg.ExternalSTT.URL == "" {
			errs = append(errs, errors.New("external_stt.enabled is true but external_stt.url is empty"))
		}
		if cfg.ExternalSTT.RMSThreshold < 0 {
			errs = append(errs, fmt.Errorf("external_stt.rms_threshold %.1f must not be negative", cfg.ExternalSTT.RMSThreshold))
		}
		if cfg.ExternalSTT.SilenceMs <= 0 {
			errs = append(errs, fmt.Errorf("external_stt.silence_ms %d must be positive", cfg.ExternalSTT.SilenceMs))
		}
		if cfg.ExternalSTT.MinBufferMs <= 0 {
			errs = append(errs, fmt.Errorf("external_stt.min_buffer_ms %d must be positive", cfg.ExternalSTT.MinBufferMs))
		}
	}

	if cfg.Executor.Command == "" && !cfg.Executor.UseMCP {
		slog.Warn("executor.command is empty; actionable utterances will fail with the fallback phrase")
	}
	if cfg.Executor.UseMCP && cfg.Executor.Command == "" {
		errs = append(errs, errors.New("executor.use_mcp requires executor.command"))
	}
	if cfg.Executor.TimeoutS <= 0 {
		errs = append(errs, fmt.Errorf("executor.timeout_s %d must be positive", cfg.Executor.TimeoutS))
	}

	if cfg.Classifier.Provider != "" && !slices.Contains(ValidClassifierProviders, cfg.Classifier.Provider) {
		slog.Warn("unknown classifier provider — may be a typo or third-party provider",
			"name", cfg.Classifier.Provider,
			"known", ValidClassifierProviders,
		)
	}
	if cfg.Classifier.Provider == "" {
		slog.Warn("classifier.provider is empty; ambiguous utterances will be treated as actionable")
	}

	if cfg.Notifier.DiscordToken != "" && cfg.Notifier.ChannelID == "" {
		errs = append(errs, errors.New("notifier.discord_token is set but notifier.channel_id is empty"))
	}

	if cfg.Bridge.StagingMs < 0 {
		errs = append(errs, fmt.Errorf("bridge.staging_ms %d must not be negative", cfg.Bridge.StagingMs))
	}
	if cfg.Bridge.QueueCap <= 0 {
		errs = append(errs, fmt.Errorf("bridge.queue_cap %d must be positive", cfg.Bridge.QueueCap))
	}
	if cfg.Bridge.BatchFrames <= 0 {
		errs = append(errs, fmt.Errorf("bridge.batch_frames %d must be positive", cfg.Bridge.BatchFrames))
	}

	return errors.Join(errs...)
}
