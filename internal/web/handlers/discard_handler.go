package handlers

import (
	"encoding/json"
	"log"
	"net/http"
)

// DiscardHandler 負責審核項目的捨棄（終態轉換，不做任何寫入）
type DiscardHandler struct {
	pipeline ReviewPipeline
}

// NewDiscardHandler 建立一個 DiscardHandler 實例
func NewDiscardHandler(pipeline ReviewPipeline) *DiscardHandler {
	if pipeline == nil {
		log.Panicln("DiscardHandler：ReviewPipeline 不得為空")
	}
	return &DiscardHandler{pipeline: pipeline}
}

// discardRequest 是 POST /discard 的請求格式
type discardRequest struct {
	ReviewID    string `json:"review_id"`
	RequesterID string `json:"requester_id"`
}

// ServeHTTP 實現 http.Handler 介面。
// POST /discard，JSON：{review_id, requester_id}。
// 對已終結項目的重放回 200 與原始結果。
func (h *DiscardHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log.Printf("資訊：[DiscardHandler] 收到請求: %s %s 來自 %s\n", r.Method, r.URL.Path, r.RemoteAddr)

	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "僅支援 POST 方法")
		return
	}

	var req discardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "無效的 JSON 請求")
		return
	}

	item, err := h.pipeline.Discard(r.Context(), req.ReviewID, req.RequesterID)
	if err != nil {
		log.Printf("錯誤：[DiscardHandler] 捨棄失敗 (審核項目: %s): %v", req.ReviewID, err)
		writeDomainError(w, err)
		return
	}
	writeReviewItem(w, http.StatusOK, item)
}
