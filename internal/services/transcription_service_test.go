package services

import (
	"VoiceKarte-backend/internal/models"
	"context"
	"errors"
	"fmt"
	"testing"
)

func newTestTranscriptionService(db *fakeDBStore, transcriber *fakeTranscriber) (*TranscriptionService, *fakeAudioStorage) {
	audio := newFakeAudioStorage()
	svc, err := NewTranscriptionService(testConfig(), db, audio, transcriber)
	if err != nil {
		panic(err)
	}
	return svc, audio
}

func TestResolveTranscript_ManualWins(t *testing.T) {
	t.Parallel()

	db := newFakeDBStore()
	transcriber := &fakeTranscriber{text: "should not be called"}
	svc, audio := newTestTranscriptionService(db, transcriber)
	rec := seedRecording(db, audio, "rec-1", models.ContextPatient, "patient-42")

	text, err := svc.ResolveTranscript(context.Background(), rec, "人工修正稿")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "人工修正稿" {
		t.Errorf("expected manual transcript, got %q", text)
	}
	if transcriber.callCount() != 0 {
		t.Errorf("manual transcript must not trigger transcription, got %d calls", transcriber.callCount())
	}
	stored, _ := db.GetRecording("rec-1")
	if stored.TranscriptionText.String != "人工修正稿" {
		t.Errorf("manual transcript must be persisted, got %q", stored.TranscriptionText.String)
	}
}

func TestResolveTranscript_DegenerateManualFallsThrough(t *testing.T) {
	t.Parallel()

	db := newFakeDBStore()
	transcriber := &fakeTranscriber{text: "新しい逐字稿"}
	svc, audio := newTestTranscriptionService(db, transcriber)
	rec := seedRecording(db, audio, "rec-1", models.ContextPatient, "patient-42")

	// a literal "null" manual override is not a transcript
	text, err := svc.ResolveTranscript(context.Background(), rec, "null")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "新しい逐字稿" {
		t.Errorf("expected fresh transcription, got %q", text)
	}
	if transcriber.callCount() != 1 {
		t.Errorf("expected one transcriber call, got %d", transcriber.callCount())
	}
}

func TestResolveTranscript_ReusesStored(t *testing.T) {
	t.Parallel()

	db := newFakeDBStore()
	transcriber := &fakeTranscriber{text: "should not be called"}
	svc, audio := newTestTranscriptionService(db, transcriber)
	seedRecording(db, audio, "rec-1", models.ContextPatient, "patient-42")
	if err := db.SetTranscript("rec-1", "保存済みの逐字稿"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rec, _ := db.GetRecording("rec-1")

	text, err := svc.ResolveTranscript(context.Background(), rec, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "保存済みの逐字稿" {
		t.Errorf("expected stored transcript, got %q", text)
	}
	if transcriber.callCount() != 0 {
		t.Errorf("stored transcript must be reused, got %d calls", transcriber.callCount())
	}
}

func TestResolveTranscript_EmptyResultRevertsState(t *testing.T) {
	t.Parallel()

	db := newFakeDBStore()
	transcriber := &fakeTranscriber{text: "   "}
	svc, audio := newTestTranscriptionService(db, transcriber)
	rec := seedRecording(db, audio, "rec-1", models.ContextPatient, "patient-42")

	_, err := svc.ResolveTranscript(context.Background(), rec, "")
	if !errors.Is(err, models.ErrEmptyTranscript) {
		t.Fatalf("expected ErrEmptyTranscript, got %v", err)
	}
	stored, _ := db.GetRecording("rec-1")
	if stored.State != models.StateUploaded {
		t.Errorf("state must revert to uploaded for retry, got %s", stored.State)
	}
	if stored.HasUsableTranscript() {
		t.Error("no transcript must be stored on empty result")
	}
}

func TestResolveTranscript_ServiceErrorRevertsState(t *testing.T) {
	t.Parallel()

	db := newFakeDBStore()
	transcriber := &fakeTranscriber{err: fmt.Errorf("%w: connection refused", models.ErrTranscriptionUnavailable)}
	svc, audio := newTestTranscriptionService(db, transcriber)
	rec := seedRecording(db, audio, "rec-1", models.ContextPatient, "patient-42")

	_, err := svc.ResolveTranscript(context.Background(), rec, "")
	if !errors.Is(err, models.ErrTranscriptionUnavailable) {
		t.Fatalf("expected ErrTranscriptionUnavailable, got %v", err)
	}
	stored, _ := db.GetRecording("rec-1")
	if stored.State != models.StateUploaded {
		t.Errorf("state must be net-unchanged after service failure, got %s", stored.State)
	}
}

func TestResolveTranscript_TranscribingExclusive(t *testing.T) {
	t.Parallel()

	db := newFakeDBStore()
	transcriber := &fakeTranscriber{text: "逐字稿"}
	svc, audio := newTestTranscriptionService(db, transcriber)
	rec := seedRecording(db, audio, "rec-1", models.ContextPatient, "patient-42")
	if err := db.SetRecordingState("rec-1", models.StateTranscribing); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err := svc.ResolveTranscript(context.Background(), rec, "")
	if !errors.Is(err, models.ErrDuplicateInFlight) {
		t.Errorf("expected ErrDuplicateInFlight while transcribing elsewhere, got %v", err)
	}
}
