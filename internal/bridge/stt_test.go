package bridge_test

import (
	"context"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/phonio-ai/phonio/internal/bridge"
	"github.com/phonio-ai/phonio/pkg/audio"
	"github.com/phonio-ai/phonio/pkg/provider/s2s"
	sttmock "github.com/phonio-ai/phonio/pkg/provider/stt/mock"
)

// loudChunk returns 20 ms of PCM16 at 8 kHz well above the silence threshold.
func loudChunk() []byte {
	chunk := make([]byte, 320)
	for i := 0; i < len(chunk); i += 2 {
		binary.LittleEndian.PutUint16(chunk[i:], uint16(int16(4000)))
	}
	return chunk
}

// silentChunk returns 20 ms of PCM16 silence at 8 kHz.
func silentChunk() []byte {
	return make([]byte, 320)
}

// feedUtterance pushes speech followed by enough silence to cross the
// detector's window and trigger a flush.
func feedUtterance(ctx context.Context, e *bridge.ExternalBatchSTT, speechChunks int) {
	for range speechChunks {
		e.OnCarrierPCM(ctx, loudChunk())
	}
	// 500 ms silence window at 8 kHz is 8000 bytes, i.e. 25 chunks.
	for range 25 {
		e.OnCarrierPCM(ctx, silentChunk())
	}
}

func TestExternalBatchSTT_TranscribesUtteranceOnSilence(t *testing.T) {
	t.Parallel()

	transcriber := &sttmock.Transcriber{Text: "turn on the lights"}
	sink := newFakeSink()
	e := bridge.NewExternalBatchSTT(transcriber, sink, audio.CarrierSampleRate)

	feedUtterance(context.Background(), e, 20)
	e.Wait()

	calls := transcriber.Transcriptions()
	if len(calls) != 1 {
		t.Fatalf("transcribe call count = %d; want 1", len(calls))
	}
	if calls[0].SampleRate != audio.CarrierSampleRate {
		t.Errorf("sample rate = %d", calls[0].SampleRate)
	}
	// The whole utterance buffer, speech plus trailing silence.
	if want := 45 * 320; len(calls[0].PCM) != want {
		t.Errorf("utterance bytes = %d; want %d", len(calls[0].PCM), want)
	}

	ops := sink.awaitOps(t, 2)
	if ops[0].kind != "user" || ops[0].text != "turn on the lights" {
		t.Errorf("first op = %+v; want user fragment", ops[0])
	}
	if ops[1].kind != "flush_user" {
		t.Errorf("second op = %+v; want flush", ops[1])
	}
}

func TestExternalBatchSTT_SeparateUtterances(t *testing.T) {
	t.Parallel()

	transcriber := &sttmock.Transcriber{Texts: []string{"first", "second"}}
	sink := newFakeSink()
	e := bridge.NewExternalBatchSTT(transcriber, sink, audio.CarrierSampleRate)

	feedUtterance(context.Background(), e, 20)
	e.Wait()
	feedUtterance(context.Background(), e, 20)
	e.Wait()

	if got := len(transcriber.Transcriptions()); got != 2 {
		t.Fatalf("transcribe call count = %d; want 2", got)
	}
	ops := sink.awaitOps(t, 4)
	if ops[0].text != "first" || ops[2].text != "second" {
		t.Errorf("ops = %+v; want both utterances in order", ops)
	}
}

func TestExternalBatchSTT_SilenceOnlyNeverFlushes(t *testing.T) {
	t.Parallel()

	transcriber := &sttmock.Transcriber{Text: "ghost"}
	sink := newFakeSink()
	e := bridge.NewExternalBatchSTT(transcriber, sink, audio.CarrierSampleRate)

	// A minute of dead air: no speech was heard, so nothing to transcribe.
	for range 3000 {
		e.OnCarrierPCM(context.Background(), silentChunk())
	}
	e.Wait()

	if got := len(transcriber.Transcriptions()); got != 0 {
		t.Errorf("transcribe call count = %d; want 0", got)
	}
}

func TestExternalBatchSTT_TranscriberErrorDropsUtterance(t *testing.T) {
	t.Parallel()

	transcriber := &sttmock.Transcriber{Err: errors.New("whisper down")}
	sink := newFakeSink()
	e := bridge.NewExternalBatchSTT(transcriber, sink, audio.CarrierSampleRate)

	feedUtterance(context.Background(), e, 20)
	e.Wait()

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.ops) != 0 {
		t.Errorf("sink ops = %+v; want none after transcriber failure", sink.ops)
	}
}

func TestBridge_ExternalSTTSuppressesModelUserTranscripts(t *testing.T) {
	t.Parallel()

	sess := newMockSession()
	sink := newFakeSink()
	strategy := bridge.NewExternalBatchSTT(&sttmock.Transcriber{}, sink, audio.CarrierSampleRate)
	b := bridge.New(bridge.Config{
		Session:     sess,
		Caps:        defaultCaps(),
		Carrier:     newFakeCarrier(),
		Transcripts: sink,
		STT:         strategy,
	})
	runBridge(t, b)

	sess.EventsCh <- s2s.Event{Kind: s2s.EventUserTranscriptDelta, Text: "model heard this"}
	sess.EventsCh <- s2s.Event{Kind: s2s.EventUserTranscriptFinal, Text: "and this"}
	sess.EventsCh <- s2s.Event{Kind: s2s.EventUserSpeechStopped}
	// Assistant transcripts still flow.
	sess.EventsCh <- s2s.Event{Kind: s2s.EventAssistantTranscriptDelta, Text: "Sure."}

	ops := sink.awaitOps(t, 1)
	if len(ops) != 1 || ops[0].kind != "assistant" {
		t.Errorf("ops = %+v; want only the assistant fragment", ops)
	}
}
