// Package whisper provides a local whisper.cpp-backed batch transcriber.
//
// It connects to a running whisper-server binary (which exposes a REST API at
// POST /inference), wraps each PCM utterance in a WAV container, and submits
// it as a multipart/form-data inference request.
//
// Usage:
//
//	t, err := whisper.New("http://localhost:8080", whisper.WithLanguage("en"))
//	text, err := t.Transcribe(ctx, pcm, 16000)
package whisper

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/phonio-ai/phonio/pkg/provider/stt"
)

// bitsPerSample is fixed at 16 for the 16-bit signed little-endian PCM audio
// that whisper.cpp expects.
const bitsPerSample = 16

const (
	defaultLanguage = "en"
	defaultTimeout  = 30 * time.Second
)

// Compile-time assertion that Transcriber implements stt.Transcriber.
var _ stt.Transcriber = (*Transcriber)(nil)

// Option is a functional option for configuring a Transcriber.
type Option func(*Transcriber)

// WithModel sets the model identifier forwarded to the whisper.cpp server
// (e.g., "base.en", "small"). When empty the server uses whichever model it
// was started with — this is the default.
func WithModel(model string) Option {
	return func(t *Transcriber) {
		t.model = model
	}
}

// WithLanguage sets the BCP-47 language code sent to the whisper.cpp server
// (e.g., "en", "de", "fr"). Defaults to "en".
func WithLanguage(lang string) Option {
	return func(t *Transcriber) {
		t.language = lang
	}
}

// WithTimeout sets the per-request HTTP timeout. Defaults to 30 s.
func WithTimeout(d time.Duration) Option {
	return func(t *Transcriber) {
		t.httpClient.Timeout = d
	}
}

// WithHTTPClient replaces the underlying HTTP client entirely.
func WithHTTPClient(c *http.Client) Option {
	return func(t *Transcriber) {
		t.httpClient = c
	}
}

// WithAPIKey sends the given key as a bearer token on every request, for
// whisper-compatible servers that sit behind an authenticating proxy.
func WithAPIKey(key string) Option {
	return func(t *Transcriber) {
		t.apiKey = key
	}
}

// Transcriber implements stt.Transcriber backed by a local whisper.cpp HTTP
// server. It is safe for concurrent use.
type Transcriber struct {
	serverURL  string
	model      string
	language   string
	apiKey     string
	httpClient *http.Client
}

// New creates a new Transcriber that connects to the whisper.cpp HTTP server
// at serverURL (e.g., "http://localhost:8080"). serverURL must be non-empty.
func New(serverURL string, opts ...Option) (*Transcriber, error) {
	if serverURL == "" {
		return nil, errors.New("whisper: serverURL must not be empty")
	}
	t := &Transcriber{
		serverURL:  strings.TrimRight(serverURL, "/"),
		language:   defaultLanguage,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(t)
	}
	return t, nil
}

// Transcribe encodes pcm as a WAV file and POSTs it to the whisper.cpp
// /inference endpoint as multipart/form-data. It returns the transcribed text
// with surrounding whitespace trimmed.
func (t *Transcriber) Transcribe(ctx context.Context, pcm []byte, sampleRate int) (string, error) {
	if len(pcm) == 0 {
		return "", nil
	}
	if sampleRate <= 0 {
		return "", fmt.Errorf("whisper: invalid sample rate %d", sampleRate)
	}

	wav := encodeWAV(pcm, sampleRate, 1)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return "", fmt.Errorf("whisper: create form file: %w", err)
	}
	if _, err := fw.Write(wav); err != nil {
		return "", fmt.Errorf("whisper: write wav data: %w", err)
	}

	if t.language != "" {
		if err := mw.WriteField("language", t.language); err != nil {
			return "", fmt.Errorf("whisper: write language field: %w", err)
		}
	}
	if t.model != "" {
		if err := mw.WriteField("model", t.model); err != nil {
			return "", fmt.Errorf("whisper: write model field: %w", err)
		}
	}

	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("whisper: close multipart writer: %w", err)
	}

	endpoint := t.serverURL + "/inference"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return "", fmt.Errorf("whisper: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if t.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+t.apiKey)
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("whisper: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("whisper: server returned HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("whisper: read response body: %w", err)
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return "", fmt.Errorf("whisper: parse JSON response: %w", err)
	}

	return strings.TrimSpace(result.Text), nil
}

// encodeWAV wraps raw 16-bit signed little-endian PCM data in a standard
// RIFF/WAV container. The returned byte slice is suitable for direct inclusion
// in a multipart form upload.
func encodeWAV(pcm []byte, sampleRate, channels int) []byte {
	bps := bitsPerSample
	byteRate := sampleRate * channels * bps / 8
	blockAlign := channels * bps / 8
	dataSize := len(pcm)

	buf := make([]byte, 44+dataSize)

	// RIFF chunk descriptor
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize)) // file size − 8
	copy(buf[8:12], "WAVE")

	// fmt sub-chunk
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)                 // sub-chunk size (PCM)
	binary.LittleEndian.PutUint16(buf[20:22], 1)                  // audio format: PCM
	binary.LittleEndian.PutUint16(buf[22:24], uint16(channels))   // num channels
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate)) // sample rate
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))   // byte rate
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign)) // block align
	binary.LittleEndian.PutUint16(buf[34:36], uint16(bps))        // bits per sample

	// data sub-chunk
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))
	copy(buf[44:], pcm)

	return buf
}
