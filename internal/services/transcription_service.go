package services

import (
	"VoiceKarte-backend/internal/config"
	"VoiceKarte-backend/internal/models"
	"VoiceKarte-backend/internal/web/handlers" // 為了 DBStore 介面
	"context"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"time"
)

// TranscriptionService 結構：轉錄協調器。
// 在萃取之前為錄音決定出一份確定的逐字稿，來源優先序為：
// (a) 本次請求附帶的人工修正稿 > (b) 已儲存且真正存在的逐字稿 > (c) 呼叫外部語音轉文字服務。
type TranscriptionService struct {
	cfg         *config.Config
	db          handlers.DBStore
	audio       AudioStorage
	transcriber Transcriber
}

// NewTranscriptionService 建立 TranscriptionService 實例
func NewTranscriptionService(cfg *config.Config, db handlers.DBStore, audio AudioStorage, transcriber Transcriber) (*TranscriptionService, error) {
	if cfg == nil {
		return nil, fmt.Errorf("TranscriptionService：設定不得為空")
	}
	if db == nil {
		return nil, fmt.Errorf("TranscriptionService：DBStore 不得為空")
	}
	if audio == nil {
		return nil, fmt.Errorf("TranscriptionService：AudioStorage 不得為空")
	}
	if transcriber == nil {
		return nil, fmt.Errorf("TranscriptionService：Transcriber 不得為空")
	}
	log.Println("資訊：TranscriptionService 初始化完成。")
	return &TranscriptionService{cfg: cfg, db: db, audio: audio, transcriber: transcriber}, nil
}

// ResolveTranscript 依優先序為錄音產生確定的逐字稿並持久化。
// 回傳的逐字稿保證非空；任何空值或退化值都在此處擋下，不會流入萃取。
func (s *TranscriptionService) ResolveTranscript(ctx context.Context, rec *models.VoiceRecording, manualTranscript string) (string, error) {
	if rec == nil {
		return "", fmt.Errorf("%w: 錄音不得為 nil", models.ErrNotFound)
	}

	// (a) 人工修正稿在本次請求中優先，不論已儲存的狀態為何
	manual := strings.TrimSpace(manualTranscript)
	if manual != "" && !models.IsDegenerateTranscript(manual) {
		if err := s.db.SetTranscript(rec.ID, manual); err != nil {
			return "", fmt.Errorf("儲存人工修正稿失敗 (錄音: %s): %w", rec.ID, err)
		}
		rec.TranscriptionText = models.NullableString(manual)
		rec.State = models.StateTranscribed
		log.Printf("資訊：[TranscriptionService] 錄音 %s 使用人工修正稿 (長度: %d 字元)。\n", rec.ID, len(manual))
		return manual, nil
	}

	// (b) 已儲存且真正存在的逐字稿直接重用；
	// 退化的佔位值（空白、字面 "null"）視同缺值，落入 (c) 重新轉錄
	if rec.HasUsableTranscript() {
		log.Printf("資訊：[TranscriptionService] 錄音 %s 重用已儲存的逐字稿。\n", rec.ID)
		return rec.TranscriptionText.String, nil
	}

	// (c) 呼叫外部語音轉文字服務
	return s.transcribeFresh(ctx, rec)
}

// transcribeFresh 呼叫外部服務產生新逐字稿。
// 以條件更新取得 transcribing 排他；服務失敗或逾時時狀態還原為 uploaded，
// 錄音保持可重試，不會卡在 transcribing。
func (s *TranscriptionService) transcribeFresh(ctx context.Context, rec *models.VoiceRecording) (string, error) {
	acquired, err := s.db.TryMarkTranscribing(rec.ID)
	if err != nil {
		return "", err
	}
	if !acquired {
		return "", fmt.Errorf("%w: 錄音 %s 已在轉錄中", models.ErrDuplicateInFlight, rec.ID)
	}
	completed := false
	defer func() {
		if !completed {
			if revertErr := s.db.SetRecordingState(rec.ID, models.StateUploaded); revertErr != nil {
				log.Printf("錯誤：[TranscriptionService] 還原錄音 %s 狀態失敗: %v", rec.ID, revertErr)
			}
		}
	}()

	audioData, err := s.audio.ReadAudio(rec.AudioPath)
	if err != nil {
		return "", fmt.Errorf("讀取錄音 %s 的音檔失敗: %w", rec.ID, err)
	}

	timeout := time.Duration(s.cfg.WhisperClient.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	transcribeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	text, err := s.transcriber.Transcribe(transcribeCtx, audioData, filepath.Base(rec.AudioPath), rec.Language)
	if err != nil {
		log.Printf("錯誤：[TranscriptionService] 錄音 %s 轉錄失敗: %v", rec.ID, err)
		return "", err
	}
	if models.IsDegenerateTranscript(text) {
		log.Printf("警告：[TranscriptionService] 錄音 %s 的轉錄結果為空，錄音保持可重試。\n", rec.ID)
		return "", fmt.Errorf("%w: 錄音 %s", models.ErrEmptyTranscript, rec.ID)
	}

	if err := s.db.SetTranscript(rec.ID, text); err != nil {
		return "", fmt.Errorf("儲存錄音 %s 的逐字稿失敗: %w", rec.ID, err)
	}
	completed = true
	rec.TranscriptionText = models.NullableString(text)
	rec.State = models.StateTranscribed
	log.Printf("資訊：[TranscriptionService] 錄音 %s 轉錄完成 (長度: %d 字元)。\n", rec.ID, len(text))
	return text, nil
}
