package config_test

import (
	"strings"
	"testing"

	"github.com/phonio-ai/phonio/internal/config"
)

const sampleYAML = `
server:
  port: 8080
  public_host: voice.example.com

logging:
  level: info

carrier:
  sid: AC123
  token: secret
  from_number: "+15550001111"

model_a:
  api_key: sk-test
  voice: alloy
  instruction: "You are a helpful phone agent."

executor:
  command: "assistant-cli --oneshot"
  timeout_s: 90

classifier:
  provider: openai
  model: gpt-4o-mini
  api_key: sk-test
`

func TestLoadFromReader_ValidConfig(t *testing.T) {
	cfg, err := config.LoadFromReader(strings.NewReader(sampleYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Carrier.SID != "AC123" {
		t.Errorf("carrier.sid = %q; want AC123", cfg.Carrier.SID)
	}
	if cfg.ModelA.Voice != "alloy" {
		t.Errorf("model_a.voice = %q; want alloy", cfg.ModelA.Voice)
	}
	if cfg.Server.WSPath != "/carrier/media-stream" {
		t.Errorf("ws path default not applied: %q", cfg.Server.WSPath)
	}
	if cfg.Bridge.QueueCap != 100 {
		t.Errorf("bridge.queue_cap default not applied: %d", cfg.Bridge.QueueCap)
	}
}

func TestLoadFromReader_UnknownField(t *testing.T) {
	yaml := sampleYAML + "\nunknown_section:\n  foo: bar\n"
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for unknown top-level field, got nil")
	}
}

func TestLoadFromReader_EnvExpansion(t *testing.T) {
	t.Setenv("PHONIO_TEST_API_KEY", "sk-from-env")
	yaml := strings.Replace(sampleYAML, "api_key: sk-test", "api_key: ${PHONIO_TEST_API_KEY}", 1)

	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.ModelA.APIKey != "sk-from-env" {
		t.Errorf("model_a.api_key = %q; want sk-from-env", cfg.ModelA.APIKey)
	}
}

func TestLoadFromReader_EnvDefault(t *testing.T) {
	yaml := strings.Replace(sampleYAML, "port: 8080", "port: ${PHONIO_TEST_UNSET_PORT:9090}", 1)

	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("server.port = %d; want 9090 from default", cfg.Server.Port)
	}
}

func TestValidate_MissingModelKey(t *testing.T) {
	yaml := strings.Replace(sampleYAML, "api_key: sk-test\n  voice: alloy", "voice: alloy", 1)
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for missing model_a.api_key, got nil")
	}
	if !strings.Contains(err.Error(), "model_a.api_key") {
		t.Errorf("error should mention model_a.api_key, got: %v", err)
	}
}

func TestValidate_ModelBEnabledSkipsModelARequirement(t *testing.T) {
	yaml := strings.Replace(sampleYAML, "model_a:\n  api_key: sk-test", "model_b:\n  enabled: true\n  api_key: gk-test\nmodel_a:", 1)
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if !cfg.ModelB.Enabled {
		t.Error("model_b.enabled should be true")
	}
}

func TestValidate_CarrierCredentialsPaired(t *testing.T) {
	yaml := strings.Replace(sampleYAML, "  token: secret\n", "", 1)
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for sid without token, got nil")
	}
	if !strings.Contains(err.Error(), "carrier.sid and carrier.token") {
		t.Errorf("error should mention carrier credential pairing, got: %v", err)
	}
}

func TestValidate_ExternalSTTRequiresURL(t *testing.T) {
	yaml := sampleYAML + "\nexternal_stt:\n  enabled: true\n"
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for external_stt.enabled without url, got nil")
	}
	if !strings.Contains(err.Error(), "external_stt.url") {
		t.Errorf("error should mention external_stt.url, got: %v", err)
	}
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	yaml := strings.Replace(sampleYAML, "level: info", "level: loud", 1)
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for invalid log level, got nil")
	}
}

func TestValidate_UseMCPRequiresCommand(t *testing.T) {
	yaml := strings.Replace(sampleYAML,
		"executor:\n  command: \"assistant-cli --oneshot\"\n  timeout_s: 90",
		"executor:\n  use_mcp: true\n  timeout_s: 90", 1)
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for use_mcp without command, got nil")
	}
}

func TestValidate_BridgeBounds(t *testing.T) {
	yaml := sampleYAML + "\nbridge:\n  queue_cap: -1\n"
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for negative queue cap, got nil")
	}
}
