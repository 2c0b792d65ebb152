package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
)

// PipelineRunner 定義手動觸發管線掃描需要的服務介面
type PipelineRunner interface {
	Run() error
}

// TriggerPipelineHandler 負責手動觸發管線掃描（轉錄＋分類新上傳的錄音）
type TriggerPipelineHandler struct {
	pipelineService PipelineRunner
	mu              sync.Mutex
	isRunning       bool
}

// NewTriggerPipelineHandler 建立一個 TriggerPipelineHandler 實例
func NewTriggerPipelineHandler(ps PipelineRunner) *TriggerPipelineHandler {
	if ps == nil {
		log.Panicln("TriggerPipelineHandler：PipelineRunner 不得為空")
	}
	return &TriggerPipelineHandler{
		pipelineService: ps,
	}
}

// ServeHTTP 實現 http.Handler 介面
func (h *TriggerPipelineHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log.Printf("資訊：[TriggerPipelineHandler] 收到請求: %s %s 來自 %s\n", r.Method, r.URL.Path, r.RemoteAddr)

	if r.Method != http.MethodPost {
		log.Printf("警告：[TriggerPipelineHandler] 收到非 POST 請求 (%s)，已拒絕。\n", r.Method)
		writeJSONError(w, http.StatusMethodNotAllowed, "僅支援 POST 方法")
		return
	}

	h.mu.Lock()
	if h.isRunning {
		h.mu.Unlock()
		log.Println("警告：[TriggerPipelineHandler] 手動管線掃描已在進行中，拒絕新的觸發。")
		writeJSONError(w, http.StatusConflict, "管線掃描已在進行中，請稍候。")
		return
	}
	h.isRunning = true
	h.mu.Unlock()

	log.Println("資訊：[TriggerPipelineHandler] 收到手動觸發管線掃描請求，準備啟動 goroutine。")

	go func() {
		defer func() {
			h.mu.Lock()
			h.isRunning = false
			h.mu.Unlock()
			log.Println("資訊：[TriggerPipelineHandler] 手動觸發的管線掃描 goroutine 已結束。")
		}()

		log.Println("資訊：[TriggerPipelineHandler] 開始執行手動觸發的管線掃描...")
		if err := h.pipelineService.Run(); err != nil {
			log.Printf("錯誤：[TriggerPipelineHandler] 手動觸發的管線掃描執行失敗: %v", err)
		} else {
			log.Println("資訊：[TriggerPipelineHandler] 手動觸發的管線掃描執行成功。")
		}
	}()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"message": "管線掃描已觸發，正在背景執行。請稍後查看審核佇列。"})
}
