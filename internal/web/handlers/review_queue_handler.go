package handlers

import (
	"VoiceKarte-backend/internal/models"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"
)

// DBStore 定義了應用程式需要的資料庫操作介面
type DBStore interface {
	Close() error
	CreateRecording(rec *models.VoiceRecording) error
	GetRecording(recordingID string) (*models.VoiceRecording, error)
	SetTranscript(recordingID string, text string) error
	SetRecordingState(recordingID string, state models.RecordingState) error
	TryMarkTranscribing(recordingID string) (bool, error)
	CreateReviewItem(item *models.ReviewItem) error
	GetReviewItem(reviewID string) (*models.ReviewItem, error)
	GetActiveReviewForRecording(recordingID string) (*models.ReviewItem, error)
	ReplaceReviewData(reviewID string, categories []models.Category, extracted models.EditedData, overallConfidence float64) error
	ResolveReviewItem(reviewID string, status models.ReviewStatus, resolvedBy string, edited *models.EditedData, result *models.InsertionResult) (bool, error)
	ListReviewSummaries(staffID string, limit int) ([]models.ReviewSummary, error)
	GetRecordingsPendingPipeline(limit int) ([]models.VoiceRecording, error)
	ListConfirmedReviews(limit int) ([]models.ReviewItem, error)
	InsertDomainRecord(tableName string, patientID string, reviewID string, recordedBy string, payload []byte) (int64, error)
}

// ReviewQueueHandler 負責審核佇列的列表查詢
type ReviewQueueHandler struct {
	db DBStore
}

// NewReviewQueueHandler 建立一個 ReviewQueueHandler 實例
func NewReviewQueueHandler(db DBStore) *ReviewQueueHandler {
	if db == nil {
		log.Panicln("ReviewQueueHandler：DBStore 不得為空")
	}
	return &ReviewQueueHandler{db: db}
}

// ServeHTTP 實現 http.Handler 介面。
// GET /review-queue?staff_id=...&limit=... 回傳該人員的審核項目摘要（最新在前）。
func (h *ReviewQueueHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log.Printf("資訊：[ReviewQueueHandler] 收到請求: %s %s 來自 %s\n", r.Method, r.URL.Path, r.RemoteAddr)

	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "僅支援 GET 方法")
		return
	}

	staffID := strings.TrimSpace(r.URL.Query().Get("staff_id"))
	if staffID == "" {
		writeDomainError(w, models.ErrAuthorizationMissing)
		return
	}
	limit := 50
	if rawLimit := r.URL.Query().Get("limit"); rawLimit != "" {
		if parsed, err := strconv.Atoi(rawLimit); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	summaries, err := h.db.ListReviewSummaries(staffID, limit)
	if err != nil {
		log.Printf("錯誤：[ReviewQueueHandler] 查詢審核佇列失敗: %v", err)
		writeDomainError(w, err)
		return
	}
	if summaries == nil {
		summaries = []models.ReviewSummary{}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]any{"items": summaries})
}
