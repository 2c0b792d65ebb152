package handlers

import (
	"VoiceKarte-backend/internal/models"
	"encoding/json"
	"log"
	"net/http"
)

// ConfirmHandler 負責審核項目的確認（終態轉換＋領域資料寫入）
type ConfirmHandler struct {
	pipeline ReviewPipeline
}

// NewConfirmHandler 建立一個 ConfirmHandler 實例
func NewConfirmHandler(pipeline ReviewPipeline) *ConfirmHandler {
	if pipeline == nil {
		log.Panicln("ConfirmHandler：ReviewPipeline 不得為空")
	}
	return &ConfirmHandler{pipeline: pipeline}
}

// confirmRequest 是 POST /confirm 的請求格式；
// edited_data 缺省時使用項目目前儲存的萃取資料
type confirmRequest struct {
	ReviewID    string             `json:"review_id"`
	RequesterID string             `json:"requester_id"`
	EditedData  *models.EditedData `json:"edited_data"`
}

// ServeHTTP 實現 http.Handler 介面。
// POST /confirm，JSON：{review_id, requester_id, edited_data?}。
// 對已終結項目的重放回 200 與原始結果，不重新寫入。
func (h *ConfirmHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log.Printf("資訊：[ConfirmHandler] 收到請求: %s %s 來自 %s\n", r.Method, r.URL.Path, r.RemoteAddr)

	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "僅支援 POST 方法")
		return
	}

	var req confirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "無效的 JSON 請求")
		return
	}

	item, err := h.pipeline.Confirm(r.Context(), req.ReviewID, req.RequesterID, req.EditedData)
	if err != nil {
		log.Printf("錯誤：[ConfirmHandler] 確認失敗 (審核項目: %s): %v", req.ReviewID, err)
		writeDomainError(w, err)
		return
	}
	writeReviewItem(w, http.StatusOK, item)
}
