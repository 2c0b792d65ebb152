package handlers

import (
	"VoiceKarte-backend/internal/models"
	"context"
	"encoding/json"
	"log"
	"net/http"
)

// ReviewPipeline 定義分類與審核操作需要的服務介面
type ReviewPipeline interface {
	Categorize(ctx context.Context, recordingID string, manualTranscript string) (*models.ReviewItem, error)
	Reanalyze(ctx context.Context, reviewID string, transcript string, requesterID string) (*models.ReviewItem, error)
	Confirm(ctx context.Context, reviewID string, requesterID string, edited *models.EditedData) (*models.ReviewItem, error)
	Discard(ctx context.Context, reviewID string, requesterID string) (*models.ReviewItem, error)
}

// CategorizeHandler 負責觸發單筆錄音的轉錄＋分類流程
type CategorizeHandler struct {
	pipeline ReviewPipeline
}

// NewCategorizeHandler 建立一個 CategorizeHandler 實例
func NewCategorizeHandler(pipeline ReviewPipeline) *CategorizeHandler {
	if pipeline == nil {
		log.Panicln("CategorizeHandler：ReviewPipeline 不得為空")
	}
	return &CategorizeHandler{pipeline: pipeline}
}

// categorizeRequest 是 POST /categorize 的請求格式
type categorizeRequest struct {
	RecordingID      string `json:"recording_id"`
	ManualTranscript string `json:"manual_transcript"`
}

// writeReviewItem 以統一格式寫出審核項目回應
func writeReviewItem(w http.ResponseWriter, statusCode int, item *models.ReviewItem) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(item)
}

// ServeHTTP 實現 http.Handler 介面。
// POST /categorize，JSON：{recording_id, manual_transcript?}。
func (h *CategorizeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log.Printf("資訊：[CategorizeHandler] 收到請求: %s %s 來自 %s\n", r.Method, r.URL.Path, r.RemoteAddr)

	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "僅支援 POST 方法")
		return
	}

	var req categorizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "無效的 JSON 請求")
		return
	}

	item, err := h.pipeline.Categorize(r.Context(), req.RecordingID, req.ManualTranscript)
	if err != nil {
		log.Printf("錯誤：[CategorizeHandler] 分類失敗 (錄音: %s): %v", req.RecordingID, err)
		writeDomainError(w, err)
		return
	}
	writeReviewItem(w, http.StatusCreated, item)
}
