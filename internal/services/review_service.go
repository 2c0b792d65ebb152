package services

import (
	"VoiceKarte-backend/internal/config"
	"VoiceKarte-backend/internal/models"
	"VoiceKarte-backend/internal/web/handlers" // 為了 DBStore 介面
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ReviewService 結構：審核佇列狀態機。
// pending_review（初始）→ confirmed / discarded（終態）。
// 終態轉換以 review_id 為鍵互斥，重放回傳原始結果，不重新執行寫入。
type ReviewService struct {
	cfg           *config.Config
	db            handlers.DBStore
	transcription *TranscriptionService
	extractor     Extractor
	insert        *InsertService
	guard         *InFlightGuard
}

// NewReviewService 建立 ReviewService 實例
func NewReviewService(
	cfg *config.Config,
	db handlers.DBStore,
	transcription *TranscriptionService,
	extractor Extractor,
	insert *InsertService,
) (*ReviewService, error) {
	if cfg == nil {
		return nil, fmt.Errorf("ReviewService：設定不得為空")
	}
	if db == nil {
		return nil, fmt.Errorf("ReviewService：DBStore 不得為空")
	}
	if transcription == nil {
		return nil, fmt.Errorf("ReviewService：TranscriptionService 不得為空")
	}
	if extractor == nil {
		return nil, fmt.Errorf("ReviewService：Extractor 不得為空")
	}
	if insert == nil {
		return nil, fmt.Errorf("ReviewService：InsertService 不得為空")
	}
	log.Println("資訊：ReviewService 初始化完成。")
	return &ReviewService{
		cfg:           cfg,
		db:            db,
		transcription: transcription,
		extractor:     extractor,
		insert:        insert,
		guard:         NewInFlightGuard(),
	}, nil
}

// recordingKey / reviewKey 是 InFlightGuard 的鍵空間
func recordingKey(recordingID string) string { return "recording:" + recordingID }
func reviewKey(reviewID string) string       { return "review:" + reviewID }

// extractionPrompt 取得目前版本的萃取 Prompt
func (s *ReviewService) extractionPrompt() (string, error) {
	versionKey := s.cfg.Prompts.CategoryExtraction.CurrentVersion
	prompt, ok := s.cfg.Prompts.CategoryExtraction.Versions[versionKey]
	if !ok || prompt == "" {
		return "", fmt.Errorf("未設定有效的分類萃取 Prompt (版本: %s)", versionKey)
	}
	return prompt, nil
}

// runExtraction 以設定的逾時執行萃取；逐字稿非空已由呼叫端保證，此處再做防衛性檢查
func (s *ReviewService) runExtraction(ctx context.Context, transcript string, language string) (*models.ExtractionResult, error) {
	if models.IsDegenerateTranscript(transcript) {
		return nil, fmt.Errorf("%w: 逐字稿為空卻進入萃取階段", models.ErrMissingTranscript)
	}
	prompt, err := s.extractionPrompt()
	if err != nil {
		return nil, err
	}
	timeout := time.Duration(s.cfg.GeminiClient.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	extractCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return s.extractor.ExtractCategories(extractCtx, transcript, language, prompt)
}

// Categorize 為錄音跑完整的轉錄＋萃取流程，建立一個新的待審核項目。
// 同一錄音同時最多一個進行中的分類作業與一個未終結的審核項目。
func (s *ReviewService) Categorize(ctx context.Context, recordingID string, manualTranscript string) (*models.ReviewItem, error) {
	recordingID = strings.TrimSpace(recordingID)
	if recordingID == "" {
		return nil, fmt.Errorf("%w: recording_id 不得為空", models.ErrInvalidRequest)
	}

	if !s.guard.TryAcquire(recordingKey(recordingID)) {
		return nil, fmt.Errorf("%w: 錄音 %s 已有處理中的分類作業", models.ErrDuplicateInFlight, recordingID)
	}
	defer s.guard.Release(recordingKey(recordingID))

	rec, err := s.db.GetRecording(recordingID)
	if err != nil {
		return nil, err
	}
	if rec.State == models.StateTranscribing {
		return nil, fmt.Errorf("%w: 錄音 %s 正在轉錄中", models.ErrDuplicateInFlight, recordingID)
	}
	active, err := s.db.GetActiveReviewForRecording(recordingID)
	if err != nil {
		return nil, err
	}
	if active != nil {
		return nil, fmt.Errorf("%w: 錄音 %s 已有待審核項目 %s", models.ErrDuplicateInFlight, recordingID, active.ID)
	}

	transcript, err := s.transcription.ResolveTranscript(ctx, rec, manualTranscript)
	if err != nil {
		return nil, err
	}

	extraction, err := s.runExtraction(ctx, transcript, rec.Language)
	if err != nil {
		return nil, err
	}

	item := &models.ReviewItem{
		ID:                uuid.NewString(),
		RecordingID:       recordingID,
		Status:            models.StatusPendingReview,
		Categories:        extraction.Categories,
		ExtractedData:     models.EditedData{Categories: extraction.Categories},
		OverallConfidence: extraction.OverallConfidence,
		CreatedAt:         time.Now(),
	}
	if err := s.db.CreateReviewItem(item); err != nil {
		return nil, err
	}
	log.Printf("資訊：[ReviewService] 錄音 %s 分類完成，審核項目: %s (%d 個分類)。\n", recordingID, item.ID, len(item.Categories))
	return item, nil
}

// Reanalyze 以人工修正的逐字稿重跑轉錄＋萃取，原地替換審核項目的資料。
// 僅允許在 pending_review 狀態執行；替換是原子性的（全部換或都不換），
// 中途取消不會留下部分替換。
func (s *ReviewService) Reanalyze(ctx context.Context, reviewID string, transcript string, requesterID string) (*models.ReviewItem, error) {
	reviewID = strings.TrimSpace(reviewID)
	if reviewID == "" {
		return nil, fmt.Errorf("%w: review_id 不得為空", models.ErrInvalidRequest)
	}
	if models.IsDegenerateTranscript(transcript) {
		return nil, fmt.Errorf("%w: reanalyze 需要非空的逐字稿", models.ErrMissingTranscript)
	}

	item, err := s.db.GetReviewItem(reviewID)
	if err != nil {
		return nil, err
	}
	if item.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: 審核項目 %s 已終結 (狀態: %s)", models.ErrInvalidTransition, reviewID, item.Status)
	}

	if !s.guard.TryAcquire(recordingKey(item.RecordingID)) {
		return nil, fmt.Errorf("%w: 錄音 %s 已有處理中的分類作業", models.ErrDuplicateInFlight, item.RecordingID)
	}
	defer s.guard.Release(recordingKey(item.RecordingID))

	rec, err := s.db.GetRecording(item.RecordingID)
	if err != nil {
		return nil, err
	}

	resolved, err := s.transcription.ResolveTranscript(ctx, rec, transcript)
	if err != nil {
		return nil, err
	}

	extraction, err := s.runExtraction(ctx, resolved, rec.Language)
	if err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		// 取消時不做部分替換
		return nil, fmt.Errorf("reanalyze 已取消 (審核項目: %s): %w", reviewID, ctx.Err())
	}

	edited := models.EditedData{Categories: extraction.Categories}
	if err := s.db.ReplaceReviewData(reviewID, extraction.Categories, edited, extraction.OverallConfidence); err != nil {
		return nil, err
	}

	item.Categories = extraction.Categories
	item.ExtractedData = edited
	item.OverallConfidence = extraction.OverallConfidence
	item.Status = models.StatusPendingReview
	log.Printf("資訊：[ReviewService] 審核項目 %s 重新分析完成 (操作者: %s)。\n", reviewID, requesterID)
	return item, nil
}

// Confirm 將審核項目轉入 confirmed 終態，並將編輯後的資料交給寫入服務。
// 對已終結項目的重放回傳原始結果（含先前的寫入摘要），不重新寫入。
func (s *ReviewService) Confirm(ctx context.Context, reviewID string, requesterID string, edited *models.EditedData) (*models.ReviewItem, error) {
	reviewID = strings.TrimSpace(reviewID)
	if reviewID == "" {
		return nil, fmt.Errorf("%w: review_id 不得為空", models.ErrInvalidRequest)
	}
	if strings.TrimSpace(requesterID) == "" {
		return nil, fmt.Errorf("%w: confirm 需要 requester_id", models.ErrAuthorizationMissing)
	}

	s.guard.Lock(reviewKey(reviewID))
	defer s.guard.Unlock(reviewKey(reviewID))

	item, err := s.db.GetReviewItem(reviewID)
	if err != nil {
		return nil, err
	}
	if item.Status.IsTerminal() {
		// 重放：回傳先前的結果，不重新執行寫入
		log.Printf("資訊：[ReviewService] confirm 重放於已終結的審核項目 %s (狀態: %s)，回傳原始結果。\n", reviewID, item.Status)
		return item, nil
	}

	rec, err := s.db.GetRecording(item.RecordingID)
	if err != nil {
		return nil, err
	}
	if edited == nil {
		edited = &item.ExtractedData
	}

	result := s.insert.Insert(item, rec, *edited)

	resolved, err := s.db.ResolveReviewItem(reviewID, models.StatusConfirmed, requesterID, edited, result)
	if err != nil {
		return nil, err
	}
	if !resolved {
		// 條件更新落敗：他處已搶先終結，回傳其結果
		log.Printf("警告：[ReviewService] confirm 與他處的終態轉換競爭落敗 (審核項目: %s)，回傳已儲存的結果。\n", reviewID)
		return s.db.GetReviewItem(reviewID)
	}

	item.Status = models.StatusConfirmed
	item.ExtractedData = *edited
	item.InsertionResult = result
	return item, nil
}

// Discard 將審核項目轉入 discarded 終態，不做任何寫入。
// 對已終結項目的重放回傳原始結果。
func (s *ReviewService) Discard(ctx context.Context, reviewID string, requesterID string) (*models.ReviewItem, error) {
	reviewID = strings.TrimSpace(reviewID)
	if reviewID == "" {
		return nil, fmt.Errorf("%w: review_id 不得為空", models.ErrInvalidRequest)
	}
	if strings.TrimSpace(requesterID) == "" {
		return nil, fmt.Errorf("%w: discard 需要 requester_id", models.ErrAuthorizationMissing)
	}

	s.guard.Lock(reviewKey(reviewID))
	defer s.guard.Unlock(reviewKey(reviewID))

	item, err := s.db.GetReviewItem(reviewID)
	if err != nil {
		return nil, err
	}
	if item.Status.IsTerminal() {
		log.Printf("資訊：[ReviewService] discard 重放於已終結的審核項目 %s (狀態: %s)，回傳原始結果。\n", reviewID, item.Status)
		return item, nil
	}

	resolved, err := s.db.ResolveReviewItem(reviewID, models.StatusDiscarded, requesterID, nil, nil)
	if err != nil {
		return nil, err
	}
	if !resolved {
		log.Printf("警告：[ReviewService] discard 與他處的終態轉換競爭落敗 (審核項目: %s)，回傳已儲存的結果。\n", reviewID)
		return s.db.GetReviewItem(reviewID)
	}

	item.Status = models.StatusDiscarded
	return item, nil
}

// Run 實現排程掃描：對尚未進入管線的新上傳錄音逐一執行分類流程。
// 單筆失敗只記錄並繼續；DuplicateInFlight 表示他處已在處理，不是錯誤。
func (s *ReviewService) Run() error {
	log.Println("資訊：[ReviewService-PipelineSweep] 排程掃描開始...")
	recordings, err := s.db.GetRecordingsPendingPipeline(10)
	if err != nil {
		log.Printf("錯誤：[ReviewService-PipelineSweep] 查詢待處理錄音失敗: %v", err)
		return err
	}
	if len(recordings) == 0 {
		log.Println("資訊：[ReviewService-PipelineSweep] 沒有待處理的錄音。")
		return nil
	}

	var successCount, failCount int
	for _, rec := range recordings {
		if _, err := s.Categorize(context.Background(), rec.ID, ""); err != nil {
			if errors.Is(err, models.ErrDuplicateInFlight) {
				log.Printf("資訊：[ReviewService-PipelineSweep] 錄音 %s 已在他處處理，略過。\n", rec.ID)
				continue
			}
			log.Printf("錯誤：[ReviewService-PipelineSweep] 錄音 %s 分類失敗: %v", rec.ID, err)
			failCount++
			continue
		}
		successCount++
	}
	log.Printf("資訊：[ReviewService-PipelineSweep] 排程掃描完成。成功: %d, 失敗: %d\n", successCount, failCount)
	return nil
}
