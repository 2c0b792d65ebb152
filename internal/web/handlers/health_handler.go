package handlers

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"
)

// TranscriberHealth 定義健康檢查需要的轉錄服務介面
type TranscriberHealth interface {
	Health(ctx context.Context) error
}

// HealthHandler 負責服務的存活檢查
type HealthHandler struct {
	appName     string
	transcriber TranscriberHealth
}

// NewHealthHandler 建立一個 HealthHandler 實例；transcriber 可為 nil（僅回報自身存活）
func NewHealthHandler(appName string, transcriber TranscriberHealth) *HealthHandler {
	return &HealthHandler{appName: appName, transcriber: transcriber}
}

// ServeHTTP 實現 http.Handler 介面。
// GET /health 回報自身狀態與下游轉錄服務的可用性。
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "僅支援 GET 方法")
		return
	}

	response := map[string]string{
		"status":  "ok",
		"service": h.appName,
	}
	if h.transcriber != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		if err := h.transcriber.Health(ctx); err != nil {
			log.Printf("警告：[HealthHandler] 轉錄服務健康檢查失敗: %v", err)
			response["transcriber"] = "unavailable"
		} else {
			response["transcriber"] = "ok"
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(response)
}
