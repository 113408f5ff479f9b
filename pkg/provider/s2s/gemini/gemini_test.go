package gemini_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/phonio-ai/phonio/pkg/provider/s2s"
	"github.com/phonio-ai/phonio/pkg/provider/s2s/gemini"
)

// ── Helpers ───────────────────────────────────────────────────────────────────

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

// startLiveServer launches a test WebSocket server acting as the Gemini Live
// endpoint. The handler receives the accepted conn and the HTTP request.
func startLiveServer(t *testing.T, handler func(conn *websocket.Conn, r *http.Request)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			InsecureSkipVerify: true,
		})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "done")
		handler(conn, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func readJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("readJSON: %v", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		t.Fatalf("readJSON unmarshal: %v", err)
	}
}

func writeJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	data, _ := json.Marshal(v)
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		t.Logf("writeJSON: %v (may be expected on close)", err)
	}
}

func waitEvent(t *testing.T, handle s2s.SessionHandle, kind s2s.EventKind) s2s.Event {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case evt, ok := <-handle.Events():
			if !ok {
				t.Fatalf("Events channel closed while waiting for %v", kind)
			}
			if evt.Kind == kind {
				return evt
			}
		case <-deadline:
			t.Fatalf("timeout waiting for event %v", kind)
		}
	}
}

// ── Capabilities ──────────────────────────────────────────────────────────────

func TestCapabilities(t *testing.T) {
	t.Parallel()
	caps := gemini.New("key").Capabilities()
	if caps.InputSampleRate != 24000 {
		t.Errorf("InputSampleRate = %d; want 24000", caps.InputSampleRate)
	}
	if caps.OutputSampleRate != 24000 {
		t.Errorf("OutputSampleRate = %d; want 24000", caps.OutputSampleRate)
	}
	if caps.ServerVAD {
		t.Error("ServerVAD should be false; turn boundaries come from transcript ordering")
	}
	if caps.MaxSessionDurationMs != 15*60*1000 {
		t.Errorf("MaxSessionDurationMs = %d; want 900000", caps.MaxSessionDurationMs)
	}
}

// ── Connect / setup ───────────────────────────────────────────────────────────

func TestConnect_SendsSetupMessage(t *testing.T) {
	t.Parallel()

	type setupMsg struct {
		Setup struct {
			Model            string `json:"model"`
			GenerationConfig struct {
				ResponseModalities []string `json:"responseModalities"`
				SpeechConfig       *struct {
					VoiceConfig struct {
						PrebuiltVoiceConfig struct {
							VoiceName string `json:"voiceName"`
						} `json:"prebuiltVoiceConfig"`
					} `json:"voiceConfig"`
				} `json:"speechConfig"`
			} `json:"generationConfig"`
			SystemInstruction *struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"systemInstruction"`
			InputAudioTranscription  json.RawMessage `json:"inputAudioTranscription"`
			OutputAudioTranscription json.RawMessage `json:"outputAudioTranscription"`
			ContextWindowCompression *struct {
				TriggerTokens int `json:"triggerTokens"`
				SlidingWindow struct {
					TargetTokens int `json:"targetTokens"`
				} `json:"slidingWindow"`
			} `json:"contextWindowCompression"`
		} `json:"setup"`
	}

	received := make(chan setupMsg, 1)
	apiKey := make(chan string, 1)

	srv := startLiveServer(t, func(conn *websocket.Conn, r *http.Request) {
		apiKey <- r.URL.Query().Get("key")
		var msg setupMsg
		readJSON(t, conn, &msg)
		received <- msg
		<-conn.CloseRead(context.Background()).Done()
	})

	p := gemini.New("gemini-api-key", gemini.WithModel("gemini-2.0-flash-live-001"), gemini.WithBaseURL(wsURL(srv)))
	handle, err := p.Connect(context.Background(), s2s.SessionConfig{
		Instructions: "You are a phone agent.",
		Voice:        "Puck",
	})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer handle.Close()

	select {
	case key := <-apiKey:
		if key != "gemini-api-key" {
			t.Errorf("key query param = %q; want gemini-api-key", key)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for request")
	}

	select {
	case msg := <-received:
		if msg.Setup.Model != "models/gemini-2.0-flash-live-001" {
			t.Errorf("model = %q; want models/gemini-2.0-flash-live-001", msg.Setup.Model)
		}
		mods := msg.Setup.GenerationConfig.ResponseModalities
		if len(mods) != 1 || mods[0] != "AUDIO" {
			t.Errorf("responseModalities = %v; want [AUDIO]", mods)
		}
		if msg.Setup.GenerationConfig.SpeechConfig == nil ||
			msg.Setup.GenerationConfig.SpeechConfig.VoiceConfig.PrebuiltVoiceConfig.VoiceName != "Puck" {
			t.Errorf("speechConfig voice missing or wrong: %+v", msg.Setup.GenerationConfig.SpeechConfig)
		}
		if msg.Setup.SystemInstruction == nil ||
			len(msg.Setup.SystemInstruction.Parts) == 0 ||
			msg.Setup.SystemInstruction.Parts[0].Text != "You are a phone agent." {
			t.Errorf("systemInstruction missing or wrong: %+v", msg.Setup.SystemInstruction)
		}
		if msg.Setup.InputAudioTranscription == nil || msg.Setup.OutputAudioTranscription == nil {
			t.Error("both audio transcription flags should be present")
		}
		cc := msg.Setup.ContextWindowCompression
		if cc == nil {
			t.Fatal("contextWindowCompression should be present")
		}
		if cc.TriggerTokens != 25600 {
			t.Errorf("triggerTokens = %d; want 25600", cc.TriggerTokens)
		}
		if cc.SlidingWindow.TargetTokens != 12800 {
			t.Errorf("targetTokens = %d; want 12800", cc.SlidingWindow.TargetTokens)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for setup message")
	}
}

func TestConnect_SendsInitialPrompt(t *testing.T) {
	t.Parallel()

	type clientContentMsg struct {
		ClientContent struct {
			Turns []struct {
				Role  string `json:"role"`
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"turns"`
			TurnComplete bool `json:"turnComplete"`
		} `json:"clientContent"`
	}

	prompts := make(chan clientContentMsg, 1)

	srv := startLiveServer(t, func(conn *websocket.Conn, _ *http.Request) {
		var raw map[string]any
		readJSON(t, conn, &raw) // setup

		var msg clientContentMsg
		readJSON(t, conn, &msg)
		prompts <- msg

		<-conn.CloseRead(context.Background()).Done()
	})

	p := gemini.New("key", gemini.WithBaseURL(wsURL(srv)))
	handle, err := p.Connect(context.Background(), s2s.SessionConfig{InitialPrompt: "Greet the caller."})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer handle.Close()

	select {
	case msg := <-prompts:
		if len(msg.ClientContent.Turns) != 1 {
			t.Fatalf("turns = %d; want 1", len(msg.ClientContent.Turns))
		}
		turn := msg.ClientContent.Turns[0]
		if turn.Role != "user" {
			t.Errorf("role = %q; want user", turn.Role)
		}
		if len(turn.Parts) == 0 || turn.Parts[0].Text != "Greet the caller." {
			t.Errorf("parts = %+v; want the initial prompt", turn.Parts)
		}
		if !msg.ClientContent.TurnComplete {
			t.Error("turnComplete should be true for the initial prompt")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for initial prompt")
	}
}

func TestConnect_CancelledContext_ReturnsError(t *testing.T) {
	t.Parallel()

	srv := startLiveServer(t, func(conn *websocket.Conn, _ *http.Request) {
		<-conn.CloseRead(context.Background()).Done()
	})

	p := gemini.New("key", gemini.WithBaseURL(wsURL(srv)))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := p.Connect(ctx, s2s.SessionConfig{}); err == nil {
		t.Fatal("Connect with cancelled context should return an error")
	}
}

// ── SendAudio ─────────────────────────────────────────────────────────────────

func TestSendAudio_SendsMediaChunk(t *testing.T) {
	t.Parallel()

	type realtimeMsg struct {
		RealtimeInput struct {
			MediaChunks []struct {
				MIMEType string `json:"mimeType"`
				Data     string `json:"data"`
			} `json:"mediaChunks"`
		} `json:"realtimeInput"`
	}

	chunks := make(chan realtimeMsg, 1)

	srv := startLiveServer(t, func(conn *websocket.Conn, _ *http.Request) {
		var raw map[string]any
		readJSON(t, conn, &raw) // setup

		var msg realtimeMsg
		readJSON(t, conn, &msg)
		chunks <- msg

		<-conn.CloseRead(context.Background()).Done()
	})

	p := gemini.New("key", gemini.WithBaseURL(wsURL(srv)))
	handle, err := p.Connect(context.Background(), s2s.SessionConfig{})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer handle.Close()

	wantPCM := []byte{0x01, 0x02, 0x03, 0x04}
	if err := handle.SendAudio(wantPCM); err != nil {
		t.Fatalf("SendAudio: %v", err)
	}

	select {
	case msg := <-chunks:
		if len(msg.RealtimeInput.MediaChunks) != 1 {
			t.Fatalf("mediaChunks = %d; want 1", len(msg.RealtimeInput.MediaChunks))
		}
		chunk := msg.RealtimeInput.MediaChunks[0]
		if chunk.MIMEType != "audio/pcm;rate=24000" {
			t.Errorf("mimeType = %q; want audio/pcm;rate=24000", chunk.MIMEType)
		}
		got, err := base64.StdEncoding.DecodeString(chunk.Data)
		if err != nil {
			t.Fatalf("base64 decode: %v", err)
		}
		if string(got) != string(wantPCM) {
			t.Errorf("decoded audio = %v; want %v", got, wantPCM)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for media chunk")
	}
}

func TestSendAudio_AfterClose_ReturnsError(t *testing.T) {
	t.Parallel()

	srv := startLiveServer(t, func(conn *websocket.Conn, _ *http.Request) {
		var raw map[string]any
		readJSON(t, conn, &raw)
		<-conn.CloseRead(context.Background()).Done()
	})

	p := gemini.New("key", gemini.WithBaseURL(wsURL(srv)))
	handle, err := p.Connect(context.Background(), s2s.SessionConfig{})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	_ = handle.Close()

	if err := handle.SendAudio([]byte{1, 2}); err == nil {
		t.Fatal("SendAudio after Close should return an error")
	}
}

// ── Receive events ────────────────────────────────────────────────────────────

func TestAudio_DeliversModelTurnInlineData(t *testing.T) {
	t.Parallel()

	wantPCM := []byte{0xAA, 0xBB, 0xCC, 0xDD}
	encoded := base64.StdEncoding.EncodeToString(wantPCM)

	srv := startLiveServer(t, func(conn *websocket.Conn, _ *http.Request) {
		var raw map[string]any
		readJSON(t, conn, &raw) // setup

		writeJSON(t, conn, map[string]any{
			"serverContent": map[string]any{
				"modelTurn": map[string]any{
					"parts": []map[string]any{
						{"inlineData": map[string]any{"mimeType": "audio/pcm;rate=24000", "data": encoded}},
					},
				},
			},
		})

		<-conn.CloseRead(context.Background()).Done()
	})

	p := gemini.New("key", gemini.WithBaseURL(wsURL(srv)))
	handle, err := p.Connect(context.Background(), s2s.SessionConfig{})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer handle.Close()

	select {
	case chunk, ok := <-handle.Audio():
		if !ok {
			t.Fatal("Audio channel closed unexpectedly")
		}
		if string(chunk) != string(wantPCM) {
			t.Errorf("audio chunk = %v; want %v", chunk, wantPCM)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for audio chunk")
	}
}

func TestEvents_TranscriptsAndTurnComplete(t *testing.T) {
	t.Parallel()

	srv := startLiveServer(t, func(conn *websocket.Conn, _ *http.Request) {
		var raw map[string]any
		readJSON(t, conn, &raw) // setup

		writeJSON(t, conn, map[string]any{
			"serverContent": map[string]any{
				"inputTranscription": map[string]any{"text": "turn off the lights"},
			},
		})
		writeJSON(t, conn, map[string]any{
			"serverContent": map[string]any{
				"outputTranscription": map[string]any{"text": "Turning them off now."},
			},
		})
		writeJSON(t, conn, map[string]any{
			"serverContent": map[string]any{"turnComplete": true},
		})

		<-conn.CloseRead(context.Background()).Done()
	})

	p := gemini.New("key", gemini.WithBaseURL(wsURL(srv)))
	handle, err := p.Connect(context.Background(), s2s.SessionConfig{})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer handle.Close()

	user := waitEvent(t, handle, s2s.EventUserTranscriptDelta)
	if user.Text != "turn off the lights" {
		t.Errorf("user transcript = %q; want %q", user.Text, "turn off the lights")
	}

	assistant := waitEvent(t, handle, s2s.EventAssistantTranscriptDelta)
	if assistant.Text != "Turning them off now." {
		t.Errorf("assistant transcript = %q; want %q", assistant.Text, "Turning them off now.")
	}

	waitEvent(t, handle, s2s.EventResponseDone)
}

func TestEvents_InterruptedMapsToSpeechStarted(t *testing.T) {
	t.Parallel()

	srv := startLiveServer(t, func(conn *websocket.Conn, _ *http.Request) {
		var raw map[string]any
		readJSON(t, conn, &raw) // setup

		writeJSON(t, conn, map[string]any{
			"serverContent": map[string]any{"interrupted": true},
		})

		<-conn.CloseRead(context.Background()).Done()
	})

	p := gemini.New("key", gemini.WithBaseURL(wsURL(srv)))
	handle, err := p.Connect(context.Background(), s2s.SessionConfig{})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer handle.Close()

	waitEvent(t, handle, s2s.EventUserSpeechStarted)
}

func TestEvents_ErrorMessage(t *testing.T) {
	t.Parallel()

	srv := startLiveServer(t, func(conn *websocket.Conn, _ *http.Request) {
		var raw map[string]any
		readJSON(t, conn, &raw) // setup

		writeJSON(t, conn, map[string]any{
			"error": map[string]any{
				"code":    429,
				"message": "Resource exhausted.",
				"status":  "RESOURCE_EXHAUSTED",
			},
		})

		<-conn.CloseRead(context.Background()).Done()
	})

	p := gemini.New("key", gemini.WithBaseURL(wsURL(srv)))
	handle, err := p.Connect(context.Background(), s2s.SessionConfig{})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer handle.Close()

	evt := waitEvent(t, handle, s2s.EventError)
	if evt.Code != "RESOURCE_EXHAUSTED" {
		t.Errorf("error code = %q; want RESOURCE_EXHAUSTED", evt.Code)
	}
	if !strings.Contains(evt.Message, "Resource exhausted") {
		t.Errorf("error message = %q", evt.Message)
	}
}

// ── Interrupt / Close ─────────────────────────────────────────────────────────

func TestInterrupt_IsNoOp(t *testing.T) {
	t.Parallel()

	srv := startLiveServer(t, func(conn *websocket.Conn, _ *http.Request) {
		var raw map[string]any
		readJSON(t, conn, &raw)
		<-conn.CloseRead(context.Background()).Done()
	})

	p := gemini.New("key", gemini.WithBaseURL(wsURL(srv)))
	handle, err := p.Connect(context.Background(), s2s.SessionConfig{})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer handle.Close()

	if err := handle.Interrupt(); err != nil {
		t.Errorf("Interrupt: %v; want nil", err)
	}
}

func TestClose_IdempotentAndClosesChannels(t *testing.T) {
	t.Parallel()

	srv := startLiveServer(t, func(conn *websocket.Conn, _ *http.Request) {
		var raw map[string]any
		readJSON(t, conn, &raw)
		<-conn.CloseRead(context.Background()).Done()
	})

	p := gemini.New("key", gemini.WithBaseURL(wsURL(srv)))
	handle, err := p.Connect(context.Background(), s2s.SessionConfig{})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}

	if err := handle.Close(); err != nil {
		t.Fatalf("first Close() returned error: %v", err)
	}
	if err := handle.Close(); err != nil {
		t.Fatalf("second Close() returned error: %v", err)
	}

	select {
	case _, open := <-handle.Audio():
		if open {
			t.Error("Audio channel should be closed after Close()")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for Audio channel to close")
	}

	select {
	case _, open := <-handle.Events():
		if open {
			t.Error("Events channel should be closed after Close()")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for Events channel to close")
	}
}
