package handlers

import (
	"encoding/json"
	"log"
	"net/http"
)

// ReanalyzeHandler 負責以人工修正的逐字稿重跑萃取並替換審核資料
type ReanalyzeHandler struct {
	pipeline ReviewPipeline
}

// NewReanalyzeHandler 建立一個 ReanalyzeHandler 實例
func NewReanalyzeHandler(pipeline ReviewPipeline) *ReanalyzeHandler {
	if pipeline == nil {
		log.Panicln("ReanalyzeHandler：ReviewPipeline 不得為空")
	}
	return &ReanalyzeHandler{pipeline: pipeline}
}

// reanalyzeRequest 是 POST /reanalyze 的請求格式
type reanalyzeRequest struct {
	ReviewID    string `json:"review_id"`
	Transcript  string `json:"transcript"`
	RequesterID string `json:"requester_id"`
}

// ServeHTTP 實現 http.Handler 介面。
// POST /reanalyze，JSON：{review_id, transcript, requester_id}。
// 僅允許在 pending_review 狀態執行；空逐字稿回 400。
func (h *ReanalyzeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log.Printf("資訊：[ReanalyzeHandler] 收到請求: %s %s 來自 %s\n", r.Method, r.URL.Path, r.RemoteAddr)

	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "僅支援 POST 方法")
		return
	}

	var req reanalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "無效的 JSON 請求")
		return
	}

	item, err := h.pipeline.Reanalyze(r.Context(), req.ReviewID, req.Transcript, req.RequesterID)
	if err != nil {
		log.Printf("錯誤：[ReanalyzeHandler] 重新分析失敗 (審核項目: %s): %v", req.ReviewID, err)
		writeDomainError(w, err)
		return
	}
	writeReviewItem(w, http.StatusOK, item)
}
