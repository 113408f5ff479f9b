package config

// DefaultVerbs is the built-in imperative-verb list for the heuristic
// classifier stage. A caller utterance whose leading token matches one of
// these (exactly or phonetically) is treated as an actionable command.
var DefaultVerbs = []string{
	"open", "close", "start", "stop", "play", "pause", "resume",
	"turn", "switch", "set", "run", "launch", "kill", "restart",
	"send", "write", "read", "delete", "remove", "create", "make",
	"search", "find", "look", "check", "show", "list", "get",
	"call", "text", "email", "remind", "schedule", "cancel",
	"mute", "unmute", "increase", "decrease", "raise", "lower",
	"enable", "disable", "install", "update", "download",
}

// DefaultTrivial is the built-in set of phrases always treated as
// conversational, bypassing the classifier entirely.
var DefaultTrivial = []string{
	"yes", "no", "yeah", "yep", "nope", "ok", "okay", "sure",
	"thanks", "thank you", "hello", "hi", "hey", "bye", "goodbye",
	"sorry", "please", "what", "why", "how", "when", "where", "who",
	"hm", "hmm", "uh", "um", "huh", "right", "correct", "exactly",
	"good", "great", "nice", "cool", "fine", "alright",
}

const (
	defaultPort        = 8080
	defaultWebhookPath = "/carrier/voice"
	defaultWSPath      = "/carrier/media-stream"

	defaultExecutorTimeoutS = 90

	defaultSTTLanguage     = "en"
	defaultSTTRMSThreshold = 500.0
	defaultSTTSilenceMs    = 500
	defaultSTTMinBufferMs  = 300

	defaultBridgeStagingMs   = 50
	defaultBridgeQueueCap    = 100
	defaultBridgeBatchFrames = 10
)

// applyDefaults fills zero-valued fields with their documented defaults.
// Called by the loader after decoding and before validation.
func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = defaultPort
	}
	if cfg.Server.WebhookPath == "" {
		cfg.Server.WebhookPath = defaultWebhookPath
	}
	if cfg.Server.WSPath == "" {
		cfg.Server.WSPath = defaultWSPath
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = LogInfo
	}
	if cfg.Executor.TimeoutS == 0 {
		cfg.Executor.TimeoutS = defaultExecutorTimeoutS
	}
	if cfg.ExternalSTT.Language == "" {
		cfg.ExternalSTT.Language = defaultSTTLanguage
	}
	if cfg.ExternalSTT.RMSThreshold == 0 {
		cfg.ExternalSTT.RMSThreshold = defaultSTTRMSThreshold
	}
	if cfg.ExternalSTT.SilenceMs == 0 {
		cfg.ExternalSTT.SilenceMs = defaultSTTSilenceMs
	}
	if cfg.ExternalSTT.MinBufferMs == 0 {
		cfg.ExternalSTT.MinBufferMs = defaultSTTMinBufferMs
	}
	if len(cfg.Classifier.Verbs) == 0 {
		cfg.Classifier.Verbs = DefaultVerbs
	}
	if len(cfg.Classifier.Trivial) == 0 {
		cfg.Classifier.Trivial = DefaultTrivial
	}
	if cfg.Bridge.StagingMs == 0 {
		cfg.Bridge.StagingMs = defaultBridgeStagingMs
	}
	if cfg.Bridge.QueueCap == 0 {
		cfg.Bridge.QueueCap = defaultBridgeQueueCap
	}
	if cfg.Bridge.BatchFrames == 0 {
		cfg.Bridge.BatchFrames = defaultBridgeBatchFrames
	}
}
