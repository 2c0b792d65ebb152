package services

import (
	"VoiceKarte-backend/internal/config"
	"VoiceKarte-backend/internal/models"
	"VoiceKarte-backend/internal/web/handlers" // 為了 DBStore 介面
	"database/sql"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
)

// RecordingService 結構：處理錄音上傳（音檔落地 + 建立記錄）。
// 情境（patient / global）在上傳時決定一次，之後管線不再隱含推導。
type RecordingService struct {
	cfg   *config.Config
	db    handlers.DBStore
	audio AudioStorage
}

// NewRecordingService 建立 RecordingService 實例
func NewRecordingService(cfg *config.Config, db handlers.DBStore, audio AudioStorage) (*RecordingService, error) {
	if cfg == nil {
		return nil, fmt.Errorf("RecordingService：設定不得為空")
	}
	if db == nil {
		return nil, fmt.Errorf("RecordingService：DBStore 不得為空")
	}
	if audio == nil {
		return nil, fmt.Errorf("RecordingService：AudioStorage 不得為空")
	}
	log.Println("資訊：RecordingService 初始化完成。")
	return &RecordingService{cfg: cfg, db: db, audio: audio}, nil
}

// Upload 儲存音檔並建立錄音記錄，回傳新的 recording_id
func (s *RecordingService) Upload(recordedBy string, contextType models.ContextType, contextPatientID string, durationSeconds int64, fileName string, audioData []byte) (*models.VoiceRecording, error) {
	recordedBy = strings.TrimSpace(recordedBy)
	if recordedBy == "" {
		return nil, fmt.Errorf("%w: recorded_by 不得為空", models.ErrInvalidRequest)
	}
	if len(audioData) == 0 {
		return nil, fmt.Errorf("%w: 音檔不得為空", models.ErrInvalidRequest)
	}

	contextPatientID = strings.TrimSpace(contextPatientID)
	switch contextType {
	case models.ContextPatient:
		if contextPatientID == "" {
			return nil, fmt.Errorf("%w: context_type 為 patient 但未提供 context_patient_id", models.ErrInvalidContext)
		}
	case models.ContextGlobal:
		if contextPatientID != "" {
			return nil, fmt.Errorf("%w: context_type 為 global 但提供了 context_patient_id", models.ErrInvalidContext)
		}
	default:
		return nil, fmt.Errorf("%w: 未知的 context_type '%s'", models.ErrInvalidContext, contextType)
	}

	recordingID := uuid.NewString()
	if fileName == "" {
		fileName = "recording.wav"
	}
	relativePath, err := s.audio.SaveAudio(recordedBy, recordingID, fileName, audioData)
	if err != nil {
		return nil, fmt.Errorf("儲存音檔失敗: %w", err)
	}

	rec := &models.VoiceRecording{
		ID:          recordingID,
		RecordedBy:  recordedBy,
		ContextType: contextType,
		AudioPath:   relativePath,
		Language:    s.cfg.WhisperClient.Language,
		State:       models.StateUploaded,
		UploadedAt:  time.Now(),
	}
	if contextPatientID != "" {
		rec.ContextPatientID = sql.NullString{String: contextPatientID, Valid: true}
	}
	if durationSeconds > 0 {
		rec.DurationSeconds = sql.NullInt64{Int64: durationSeconds, Valid: true}
	}

	if err := s.db.CreateRecording(rec); err != nil {
		log.Printf("錯誤：[RecordingService] 建立錄音記錄失敗（音檔已落地: %s）: %v", relativePath, err)
		return nil, err
	}
	log.Printf("資訊：[RecordingService] 錄音上傳完成，ID: %s (context: %s)。\n", rec.ID, rec.ContextType)
	return rec, nil
}
