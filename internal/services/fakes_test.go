package services

import (
	"VoiceKarte-backend/internal/config"
	"VoiceKarte-backend/internal/models"
	"context"
	"fmt"
	"sync"
	"time"
)

// fakeDBStore is an in-memory DBStore mirroring the conditional-update
// semantics of the MySQL store.
type fakeDBStore struct {
	mu           sync.Mutex
	recordings   map[string]*models.VoiceRecording
	reviews      map[string]*models.ReviewItem
	domainRows   []domainRow
	nextDomainID int64

	// failInsertTables forces InsertDomainRecord to fail for the named tables.
	failInsertTables map[string]error
}

type domainRow struct {
	table      string
	patientID  string
	reviewID   string
	recordedBy string
	payload    []byte
}

func newFakeDBStore() *fakeDBStore {
	return &fakeDBStore{
		recordings: make(map[string]*models.VoiceRecording),
		reviews:    make(map[string]*models.ReviewItem),
	}
}

func (s *fakeDBStore) Close() error { return nil }

func (s *fakeDBStore) CreateRecording(rec *models.VoiceRecording) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec == nil || rec.ID == "" {
		return fmt.Errorf("invalid recording")
	}
	switch rec.ContextType {
	case models.ContextPatient:
		if !rec.ContextPatientID.Valid || rec.ContextPatientID.String == "" {
			return fmt.Errorf("%w: patient context without patient id", models.ErrInvalidContext)
		}
	case models.ContextGlobal:
		if rec.ContextPatientID.Valid && rec.ContextPatientID.String != "" {
			return fmt.Errorf("%w: global context with patient id", models.ErrInvalidContext)
		}
	default:
		return fmt.Errorf("%w: unknown context type", models.ErrInvalidContext)
	}
	clone := *rec
	if clone.State == "" {
		clone.State = models.StateUploaded
	}
	s.recordings[rec.ID] = &clone
	return nil
}

func (s *fakeDBStore) GetRecording(recordingID string) (*models.VoiceRecording, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.recordings[recordingID]
	if !ok {
		return nil, fmt.Errorf("%w: recording %s", models.ErrNotFound, recordingID)
	}
	clone := *rec
	return &clone, nil
}

func (s *fakeDBStore) SetTranscript(recordingID string, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if models.IsDegenerateTranscript(text) {
		return fmt.Errorf("%w: degenerate transcript", models.ErrMissingTranscript)
	}
	rec, ok := s.recordings[recordingID]
	if !ok {
		return fmt.Errorf("%w: recording %s", models.ErrNotFound, recordingID)
	}
	rec.TranscriptionText = models.NullableString(text)
	rec.State = models.StateTranscribed
	return nil
}

func (s *fakeDBStore) SetRecordingState(recordingID string, state models.RecordingState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.recordings[recordingID]
	if !ok {
		return fmt.Errorf("%w: recording %s", models.ErrNotFound, recordingID)
	}
	rec.State = state
	return nil
}

func (s *fakeDBStore) TryMarkTranscribing(recordingID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.recordings[recordingID]
	if !ok {
		return false, fmt.Errorf("%w: recording %s", models.ErrNotFound, recordingID)
	}
	if rec.State == models.StateTranscribing {
		return false, nil
	}
	rec.State = models.StateTranscribing
	return true, nil
}

func (s *fakeDBStore) CreateReviewItem(item *models.ReviewItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.reviews {
		if existing.RecordingID == item.RecordingID && existing.Status == models.StatusPendingReview {
			return fmt.Errorf("%w: recording %s already has a pending review", models.ErrDuplicateInFlight, item.RecordingID)
		}
	}
	clone := *item
	clone.Status = models.StatusPendingReview
	if clone.CreatedAt.IsZero() {
		clone.CreatedAt = time.Now()
	}
	s.reviews[item.ID] = &clone
	return nil
}

func (s *fakeDBStore) GetReviewItem(reviewID string) (*models.ReviewItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.reviews[reviewID]
	if !ok {
		return nil, fmt.Errorf("%w: review %s", models.ErrNotFound, reviewID)
	}
	clone := *item
	return &clone, nil
}

func (s *fakeDBStore) GetActiveReviewForRecording(recordingID string) (*models.ReviewItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, item := range s.reviews {
		if item.RecordingID == recordingID && item.Status == models.StatusPendingReview {
			clone := *item
			return &clone, nil
		}
	}
	return nil, nil
}

func (s *fakeDBStore) ReplaceReviewData(reviewID string, categories []models.Category, extracted models.EditedData, overallConfidence float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.reviews[reviewID]
	if !ok || item.Status != models.StatusPendingReview {
		return fmt.Errorf("%w: review %s is not pending", models.ErrInvalidTransition, reviewID)
	}
	item.Categories = categories
	item.ExtractedData = extracted
	item.OverallConfidence = overallConfidence
	item.UpdatedAt = time.Now()
	return nil
}

func (s *fakeDBStore) ResolveReviewItem(reviewID string, status models.ReviewStatus, resolvedBy string, edited *models.EditedData, result *models.InsertionResult) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !status.IsTerminal() {
		return false, fmt.Errorf("%w: %s is not terminal", models.ErrInvalidTransition, status)
	}
	item, ok := s.reviews[reviewID]
	if !ok {
		return false, fmt.Errorf("%w: review %s", models.ErrNotFound, reviewID)
	}
	if item.Status != models.StatusPendingReview {
		return false, nil
	}
	item.Status = status
	if edited != nil {
		item.ExtractedData = *edited
	}
	item.InsertionResult = result
	item.ResolvedBy = models.NullableString(resolvedBy).NullString
	now := time.Now()
	item.ResolvedAt.Time = now
	item.ResolvedAt.Valid = true
	item.UpdatedAt = now
	return true, nil
}

func (s *fakeDBStore) ListReviewSummaries(staffID string, limit int) ([]models.ReviewSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var summaries []models.ReviewSummary
	for _, item := range s.reviews {
		rec, ok := s.recordings[item.RecordingID]
		if !ok || rec.RecordedBy != staffID {
			continue
		}
		sum := models.ReviewSummary{
			ReviewID:          item.ID,
			RecordingID:       item.RecordingID,
			Status:            item.Status,
			ContextType:       rec.ContextType,
			OverallConfidence: item.OverallConfidence,
			CreatedAt:         item.CreatedAt,
		}
		if rec.ContextPatientID.Valid {
			sum.ContextPatientID = rec.ContextPatientID.String
		}
		summaries = append(summaries, sum)
		if limit > 0 && len(summaries) >= limit {
			break
		}
	}
	return summaries, nil
}

func (s *fakeDBStore) GetRecordingsPendingPipeline(limit int) ([]models.VoiceRecording, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var recordings []models.VoiceRecording
	for _, rec := range s.recordings {
		if rec.State != models.StateUploaded {
			continue
		}
		hasReview := false
		for _, item := range s.reviews {
			if item.RecordingID == rec.ID {
				hasReview = true
				break
			}
		}
		if hasReview {
			continue
		}
		recordings = append(recordings, *rec)
		if limit > 0 && len(recordings) >= limit {
			break
		}
	}
	return recordings, nil
}

func (s *fakeDBStore) ListConfirmedReviews(limit int) ([]models.ReviewItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var items []models.ReviewItem
	for _, item := range s.reviews {
		if item.Status != models.StatusConfirmed {
			continue
		}
		items = append(items, *item)
		if limit > 0 && len(items) >= limit {
			break
		}
	}
	return items, nil
}

func (s *fakeDBStore) InsertDomainRecord(tableName string, patientID string, reviewID string, recordedBy string, payload []byte) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, forced := s.failInsertTables[tableName]; forced {
		return 0, err
	}
	s.nextDomainID++
	s.domainRows = append(s.domainRows, domainRow{
		table:      tableName,
		patientID:  patientID,
		reviewID:   reviewID,
		recordedBy: recordedBy,
		payload:    payload,
	})
	return s.nextDomainID, nil
}

func (s *fakeDBStore) domainRowCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.domainRows)
}

// fakeAudioStorage keeps audio blobs in a map keyed by relative path.
type fakeAudioStorage struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

func newFakeAudioStorage() *fakeAudioStorage {
	return &fakeAudioStorage{blobs: make(map[string][]byte)}
}

func (s *fakeAudioStorage) SaveAudio(recordedBy string, recordingID string, originalFileName string, audioData []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	path := recordedBy + "/" + recordingID + "/" + originalFileName
	s.blobs[path] = audioData
	return path, nil
}

func (s *fakeAudioStorage) ReadAudio(relativePath string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.blobs[relativePath]
	if !ok {
		return nil, fmt.Errorf("audio not found: %s", relativePath)
	}
	return data, nil
}

// fakeTranscriber returns a canned transcript or error and counts calls.
type fakeTranscriber struct {
	mu     sync.Mutex
	text   string
	err    error
	calls  int
	lastLn string
}

func (t *fakeTranscriber) Transcribe(ctx context.Context, audioData []byte, fileName string, language string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls++
	t.lastLn = language
	if t.err != nil {
		return "", t.err
	}
	return t.text, nil
}

func (t *fakeTranscriber) callCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.calls
}

// fakeExtractor returns a canned extraction result and records the transcript
// it was asked to extract.
type fakeExtractor struct {
	mu             sync.Mutex
	result         *models.ExtractionResult
	err            error
	calls          int
	lastTranscript string
}

func (e *fakeExtractor) ExtractCategories(ctx context.Context, transcript string, languageHint string, prompt string) (*models.ExtractionResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	e.lastTranscript = transcript
	if e.err != nil {
		return nil, e.err
	}
	if e.result != nil {
		return e.result, nil
	}
	return &models.ExtractionResult{
		Categories: []models.Category{
			{Type: "vitals", Confidence: 0.9, Data: map[string]any{"temperature": 36.5}},
		},
		OverallConfidence: 0.9,
	}, nil
}

func testConfig() *config.Config {
	return &config.Config{
		AppName: "VoiceKarte-test",
		WhisperClient: config.WhisperClientConfig{
			BaseURL:        "http://127.0.0.1:8090",
			Language:       "ja",
			TimeoutSeconds: 5,
		},
		GeminiClient: config.GeminiClientConfig{
			Model:          "gemini-1.5-flash-latest",
			TimeoutSeconds: 5,
		},
		Prompts: config.PromptConfig{
			CategoryExtraction: config.CategoryExtractionPrompts{
				CurrentVersion: "test-v1",
				Versions:       map[string]string{"test-v1": "extract categories"},
			},
		},
	}
}

// newTestReviewService wires a full service graph over the fakes.
func newTestReviewService(db *fakeDBStore, transcriber *fakeTranscriber, extractor *fakeExtractor) (*ReviewService, *fakeAudioStorage) {
	cfg := testConfig()
	audio := newFakeAudioStorage()
	transcriptionSvc, err := NewTranscriptionService(cfg, db, audio, transcriber)
	if err != nil {
		panic(err)
	}
	insertSvc, err := NewInsertService(db)
	if err != nil {
		panic(err)
	}
	reviewSvc, err := NewReviewService(cfg, db, transcriptionSvc, extractor, insertSvc)
	if err != nil {
		panic(err)
	}
	return reviewSvc, audio
}

// seedRecording inserts a recording with stored audio and returns it.
func seedRecording(db *fakeDBStore, audio *fakeAudioStorage, id string, contextType models.ContextType, patientID string) *models.VoiceRecording {
	path, _ := audio.SaveAudio("staff-1", id, "note.wav", []byte("fake-audio"))
	rec := &models.VoiceRecording{
		ID:          id,
		RecordedBy:  "staff-1",
		ContextType: contextType,
		AudioPath:   path,
		Language:    "ja",
		State:       models.StateUploaded,
		UploadedAt:  time.Now(),
	}
	if patientID != "" {
		rec.ContextPatientID = models.NullableString(patientID).NullString
	}
	if err := db.CreateRecording(rec); err != nil {
		panic(err)
	}
	return rec
}
