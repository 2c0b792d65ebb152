package services

import (
	"VoiceKarte-backend/internal/models"
	"context"
	"errors"
	"testing"
)

func TestCategorize_FullPipelineCreatesPendingReview(t *testing.T) {
	t.Parallel()

	db := newFakeDBStore()
	transcriber := &fakeTranscriber{text: "体温は36度5分、血圧は120の80です。"}
	extractor := &fakeExtractor{}
	svc, audio := newTestReviewService(db, transcriber, extractor)
	seedRecording(db, audio, "rec-1", models.ContextPatient, "patient-42")

	item, err := svc.Categorize(context.Background(), "rec-1", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if item.Status != models.StatusPendingReview {
		t.Errorf("expected pending_review, got %s", item.Status)
	}
	if len(item.Categories) != 1 || item.Categories[0].Type != "vitals" {
		t.Errorf("unexpected categories: %+v", item.Categories)
	}
	if transcriber.callCount() != 1 {
		t.Errorf("expected one transcriber call, got %d", transcriber.callCount())
	}

	rec, err := db.GetRecording("rec-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.State != models.StateTranscribed {
		t.Errorf("expected recording state transcribed, got %s", rec.State)
	}
	if !rec.HasUsableTranscript() {
		t.Error("expected transcript to be persisted")
	}
}

func TestCategorize_ReusesStoredTranscript(t *testing.T) {
	t.Parallel()

	db := newFakeDBStore()
	transcriber := &fakeTranscriber{text: "should not be called"}
	extractor := &fakeExtractor{}
	svc, audio := newTestReviewService(db, transcriber, extractor)
	seedRecording(db, audio, "rec-1", models.ContextPatient, "patient-42")
	if err := db.SetTranscript("rec-1", "既存の逐字稿"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := svc.Categorize(context.Background(), "rec-1", ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if transcriber.callCount() != 0 {
		t.Errorf("expected stored transcript reuse without transcriber call, got %d calls", transcriber.callCount())
	}
	if extractor.lastTranscript != "既存の逐字稿" {
		t.Errorf("extractor received wrong transcript: %q", extractor.lastTranscript)
	}
}

func TestCategorize_ManualTranscriptWinsOverStored(t *testing.T) {
	t.Parallel()

	db := newFakeDBStore()
	transcriber := &fakeTranscriber{text: "should not be called"}
	extractor := &fakeExtractor{}
	svc, audio := newTestReviewService(db, transcriber, extractor)
	seedRecording(db, audio, "rec-1", models.ContextPatient, "patient-42")
	if err := db.SetTranscript("rec-1", "古い逐字稿"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := svc.Categorize(context.Background(), "rec-1", "修正済みの逐字稿"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if extractor.lastTranscript != "修正済みの逐字稿" {
		t.Errorf("expected manual transcript to win, extractor got %q", extractor.lastTranscript)
	}
	rec, _ := db.GetRecording("rec-1")
	if rec.TranscriptionText.String != "修正済みの逐字稿" {
		t.Errorf("expected manual transcript persisted, got %q", rec.TranscriptionText.String)
	}
}

func TestCategorize_ActiveReviewRejected(t *testing.T) {
	t.Parallel()

	db := newFakeDBStore()
	transcriber := &fakeTranscriber{text: "逐字稿"}
	extractor := &fakeExtractor{}
	svc, audio := newTestReviewService(db, transcriber, extractor)
	seedRecording(db, audio, "rec-1", models.ContextPatient, "patient-42")

	if _, err := svc.Categorize(context.Background(), "rec-1", ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err := svc.Categorize(context.Background(), "rec-1", "")
	if !errors.Is(err, models.ErrDuplicateInFlight) {
		t.Errorf("expected ErrDuplicateInFlight, got %v", err)
	}
}

func TestCategorize_ExtractionFailureLeavesNoReview(t *testing.T) {
	t.Parallel()

	db := newFakeDBStore()
	transcriber := &fakeTranscriber{text: "逐字稿"}
	extractor := &fakeExtractor{err: models.ErrExtractionService}
	svc, audio := newTestReviewService(db, transcriber, extractor)
	seedRecording(db, audio, "rec-1", models.ContextPatient, "patient-42")

	_, err := svc.Categorize(context.Background(), "rec-1", "")
	if !errors.Is(err, models.ErrExtractionService) {
		t.Fatalf("expected ErrExtractionService, got %v", err)
	}
	active, _ := db.GetActiveReviewForRecording("rec-1")
	if active != nil {
		t.Error("expected no review item after extraction failure")
	}
	// transcript survived, so a retry does not pay for transcription again
	rec, _ := db.GetRecording("rec-1")
	if !rec.HasUsableTranscript() {
		t.Error("expected transcript to survive extraction failure")
	}
}

func TestConfirm_InsertsAndResolves(t *testing.T) {
	t.Parallel()

	db := newFakeDBStore()
	svc, audio := newTestReviewService(db, &fakeTranscriber{text: "逐字稿"}, &fakeExtractor{})
	seedRecording(db, audio, "rec-1", models.ContextPatient, "patient-42")
	item, err := svc.Categorize(context.Background(), "rec-1", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	confirmed, err := svc.Confirm(context.Background(), item.ID, "staff-1", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if confirmed.Status != models.StatusConfirmed {
		t.Errorf("expected confirmed, got %s", confirmed.Status)
	}
	if confirmed.InsertionResult == nil {
		t.Fatal("expected insertion result")
	}
	if _, ok := confirmed.InsertionResult.Inserted["vitals"]; !ok {
		t.Errorf("expected vitals insertion, got %+v", confirmed.InsertionResult.Inserted)
	}
	if db.domainRowCount() != 1 {
		t.Errorf("expected exactly one domain row, got %d", db.domainRowCount())
	}
}

func TestConfirm_GlobalContextInsertsNothing(t *testing.T) {
	t.Parallel()

	db := newFakeDBStore()
	svc, audio := newTestReviewService(db, &fakeTranscriber{text: "申し送り事項です"}, &fakeExtractor{})
	seedRecording(db, audio, "rec-g", models.ContextGlobal, "")
	item, err := svc.Categorize(context.Background(), "rec-g", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	confirmed, err := svc.Confirm(context.Background(), item.ID, "staff-1", nil)
	if err != nil {
		t.Fatalf("global confirm must succeed: %v", err)
	}
	if confirmed.Status != models.StatusConfirmed {
		t.Errorf("expected confirmed, got %s", confirmed.Status)
	}
	if len(confirmed.InsertionResult.Inserted) != 0 {
		t.Errorf("expected empty inserted map, got %+v", confirmed.InsertionResult.Inserted)
	}
	if db.domainRowCount() != 0 {
		t.Errorf("expected no domain rows for global context, got %d", db.domainRowCount())
	}
}

func TestConfirm_ReplayReturnsOriginalResult(t *testing.T) {
	t.Parallel()

	db := newFakeDBStore()
	svc, audio := newTestReviewService(db, &fakeTranscriber{text: "逐字稿"}, &fakeExtractor{})
	seedRecording(db, audio, "rec-1", models.ContextPatient, "patient-42")
	item, err := svc.Categorize(context.Background(), "rec-1", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	first, err := svc.Confirm(context.Background(), item.ID, "staff-1", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	replay, err := svc.Confirm(context.Background(), item.ID, "staff-2", nil)
	if err != nil {
		t.Fatalf("replay must not be an error: %v", err)
	}
	if replay.Status != models.StatusConfirmed {
		t.Errorf("expected confirmed on replay, got %s", replay.Status)
	}
	if db.domainRowCount() != 1 {
		t.Errorf("replay must not insert again, got %d domain rows", db.domainRowCount())
	}
	firstID := first.InsertionResult.Inserted["vitals"]
	replayID := replay.InsertionResult.Inserted["vitals"]
	if firstID != replayID {
		t.Errorf("replay returned a different insertion result: %d vs %d", firstID, replayID)
	}
}

func TestDiscard_AfterConfirmReturnsConfirmedResult(t *testing.T) {
	t.Parallel()

	db := newFakeDBStore()
	svc, audio := newTestReviewService(db, &fakeTranscriber{text: "逐字稿"}, &fakeExtractor{})
	seedRecording(db, audio, "rec-1", models.ContextPatient, "patient-42")
	item, err := svc.Categorize(context.Background(), "rec-1", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := svc.Confirm(context.Background(), item.ID, "staff-1", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := svc.Discard(context.Background(), item.ID, "staff-2")
	if err != nil {
		t.Fatalf("discard replay must not be an error: %v", err)
	}
	if got.Status != models.StatusConfirmed {
		t.Errorf("expected original confirmed status, got %s", got.Status)
	}
}

func TestDiscard_NoInsertion(t *testing.T) {
	t.Parallel()

	db := newFakeDBStore()
	svc, audio := newTestReviewService(db, &fakeTranscriber{text: "逐字稿"}, &fakeExtractor{})
	seedRecording(db, audio, "rec-1", models.ContextPatient, "patient-42")
	item, err := svc.Categorize(context.Background(), "rec-1", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	discarded, err := svc.Discard(context.Background(), item.ID, "staff-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if discarded.Status != models.StatusDiscarded {
		t.Errorf("expected discarded, got %s", discarded.Status)
	}
	if db.domainRowCount() != 0 {
		t.Errorf("discard must not insert, got %d domain rows", db.domainRowCount())
	}
	// discarded items stay queryable, never deleted
	stored, err := db.GetReviewItem(item.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stored.Status != models.StatusDiscarded {
		t.Errorf("expected stored discarded item, got %s", stored.Status)
	}
}

func TestConfirm_RequiresRequester(t *testing.T) {
	t.Parallel()

	db := newFakeDBStore()
	svc, audio := newTestReviewService(db, &fakeTranscriber{text: "逐字稿"}, &fakeExtractor{})
	seedRecording(db, audio, "rec-1", models.ContextPatient, "patient-42")
	item, err := svc.Categorize(context.Background(), "rec-1", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := svc.Confirm(context.Background(), item.ID, "  ", nil); !errors.Is(err, models.ErrAuthorizationMissing) {
		t.Errorf("expected ErrAuthorizationMissing, got %v", err)
	}
	if _, err := svc.Discard(context.Background(), item.ID, ""); !errors.Is(err, models.ErrAuthorizationMissing) {
		t.Errorf("expected ErrAuthorizationMissing, got %v", err)
	}
	stored, _ := db.GetReviewItem(item.ID)
	if stored.Status != models.StatusPendingReview {
		t.Errorf("state must be unchanged, got %s", stored.Status)
	}
}

func TestReanalyze_ThenConfirmCommitsReanalyzedData(t *testing.T) {
	t.Parallel()

	db := newFakeDBStore()
	extractor := &fakeExtractor{}
	svc, audio := newTestReviewService(db, &fakeTranscriber{text: "最初の逐字稿"}, extractor)
	seedRecording(db, audio, "rec-1", models.ContextPatient, "patient-42")
	item, err := svc.Categorize(context.Background(), "rec-1", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	extractor.mu.Lock()
	extractor.result = &models.ExtractionResult{
		Categories: []models.Category{
			{Type: "medication", Confidence: 0.8, Data: map[string]any{"drug": "アムロジピン"}},
		},
		OverallConfidence: 0.8,
	}
	extractor.mu.Unlock()

	reanalyzed, err := svc.Reanalyze(context.Background(), item.ID, "修正された逐字稿", "staff-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(reanalyzed.Categories) != 1 || reanalyzed.Categories[0].Type != "medication" {
		t.Errorf("expected reanalyzed categories, got %+v", reanalyzed.Categories)
	}

	confirmed, err := svc.Confirm(context.Background(), item.ID, "staff-1", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := confirmed.InsertionResult.Inserted["medication"]; !ok {
		t.Errorf("confirm must commit the reanalyzed payload, got %+v", confirmed.InsertionResult.Inserted)
	}
	if _, ok := confirmed.InsertionResult.Inserted["vitals"]; ok {
		t.Error("original extraction must not leak into confirm after reanalyze")
	}
}

func TestReanalyze_TerminalRejected(t *testing.T) {
	t.Parallel()

	db := newFakeDBStore()
	svc, audio := newTestReviewService(db, &fakeTranscriber{text: "逐字稿"}, &fakeExtractor{})
	seedRecording(db, audio, "rec-1", models.ContextPatient, "patient-42")
	item, err := svc.Categorize(context.Background(), "rec-1", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := svc.Confirm(context.Background(), item.ID, "staff-1", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = svc.Reanalyze(context.Background(), item.ID, "別の逐字稿", "staff-1")
	if !errors.Is(err, models.ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestReanalyze_EmptyTranscriptRejected(t *testing.T) {
	t.Parallel()

	db := newFakeDBStore()
	svc, audio := newTestReviewService(db, &fakeTranscriber{text: "逐字稿"}, &fakeExtractor{})
	seedRecording(db, audio, "rec-1", models.ContextPatient, "patient-42")
	item, err := svc.Categorize(context.Background(), "rec-1", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, transcript := range []string{"", "   ", "null", "NULL"} {
		if _, err := svc.Reanalyze(context.Background(), item.ID, transcript, "staff-1"); !errors.Is(err, models.ErrMissingTranscript) {
			t.Errorf("transcript %q: expected ErrMissingTranscript, got %v", transcript, err)
		}
	}
}

func TestRun_PipelineSweepCategorizesUploaded(t *testing.T) {
	t.Parallel()

	db := newFakeDBStore()
	svc, audio := newTestReviewService(db, &fakeTranscriber{text: "逐字稿"}, &fakeExtractor{})
	seedRecording(db, audio, "rec-1", models.ContextPatient, "patient-42")
	seedRecording(db, audio, "rec-2", models.ContextGlobal, "")

	if err := svc.Run(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, id := range []string{"rec-1", "rec-2"} {
		active, err := db.GetActiveReviewForRecording(id)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if active == nil {
			t.Errorf("expected pending review for %s after sweep", id)
		}
	}

	// second sweep is a no-op: every recording already has a review
	if err := svc.Run(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
