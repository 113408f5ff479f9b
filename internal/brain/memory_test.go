package brain_test

import (
	"testing"

	"github.com/phonio-ai/phonio/internal/brain"
)

func TestMemory_TurnsOrdered(t *testing.T) {
	m := brain.NewMemory()
	m.AddTurn(brain.SpeakerUser, "hello")
	m.AddTurn(brain.SpeakerAssistant, "hi there")
	m.AddTurn(brain.SpeakerUser, "open spotify")

	turns := m.Turns()
	if len(turns) != 3 {
		t.Fatalf("turn count = %d; want 3", len(turns))
	}
	if turns[0].Text != "hello" || turns[2].Text != "open spotify" {
		t.Errorf("turns out of order: %v", turns)
	}
}

func TestMemory_EntitiesDeduplicated(t *testing.T) {
	m := brain.NewMemory()
	m.AddEntity("app", "spotify")
	m.AddEntity("app", "spotify")
	m.AddEntity("app", "youtube")
	m.AddEntity("", "ignored")
	m.AddEntity("app", "  ")

	apps := m.Entities()["app"]
	if len(apps) != 2 {
		t.Fatalf("apps = %v; want 2 entries", apps)
	}
	if apps[0] != "spotify" || apps[1] != "youtube" {
		t.Errorf("apps = %v", apps)
	}
}

func TestMemory_Summary(t *testing.T) {
	m := brain.NewMemory()
	if got := m.Summary(); got != "no actionable commands" {
		t.Errorf("empty summary = %q", got)
	}

	m.AddCommand("open spotify")
	m.AddCommand("play jazz")
	want := "dispatched: open spotify; play jazz"
	if got := m.Summary(); got != want {
		t.Errorf("summary = %q; want %q", got, want)
	}

	m.AddEntity("phone_numbers", "+49 170 1234567")
	want += " | phone_numbers: +49 170 1234567"
	if got := m.Summary(); got != want {
		t.Errorf("summary with entities = %q; want %q", got, want)
	}
}

func TestMemory_ExtractEntitiesFindsPhoneNumbers(t *testing.T) {
	m := brain.NewMemory()
	m.ExtractEntities("call me back at +1 (555) 010-4477 tomorrow")
	m.ExtractEntities("room 12 is fine") // too few digits

	numbers := m.Entities()["phone_numbers"]
	if len(numbers) != 1 {
		t.Fatalf("numbers = %v; want exactly one", numbers)
	}
	if numbers[0] != "+1 (555) 010-4477" {
		t.Errorf("number = %q", numbers[0])
	}
}
