package handlers

import (
	"VoiceKarte-backend/internal/config"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// AudioHandler 負責提供錄音音檔串流
type AudioHandler struct {
	audioBasePath string // 音檔儲存的絕對根路徑
}

// NewAudioHandler 建立一個 AudioHandler 實例
func NewAudioHandler(audioCfg config.AudioStoreConfig) (*AudioHandler, error) {
	if audioCfg.AudioPath == "" {
		return nil, fmt.Errorf("AudioHandler: 設定中的 audioPath 不得為空")
	}
	absBasePath, err := filepath.Abs(audioCfg.AudioPath)
	if err != nil {
		return nil, fmt.Errorf("AudioHandler: 無法取得 audioPath 的絕對路徑 '%s': %w", audioCfg.AudioPath, err)
	}
	log.Printf("資訊：[AudioHandler] 初始化成功，音檔服務根路徑: %s", absBasePath)
	return &AudioHandler{audioBasePath: absBasePath}, nil
}

// ServeHTTP 實現 http.Handler 介面
// 它期望 URL 路徑是 /media/{音檔在儲存根路徑下的相對路徑}
// 例如：/media/staff-001/2026/08/30/recordingID123/recording.wav
func (h *AudioHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	relativePath := strings.TrimPrefix(r.URL.Path, "/media/")
	if relativePath == "" || strings.HasSuffix(relativePath, "/") {
		http.Error(w, "無效的音檔路徑", http.StatusBadRequest)
		return
	}

	// filepath.Join 會清理路徑，防止路徑遍歷攻擊 (例如 ../)
	fullPath := filepath.Join(h.audioBasePath, relativePath)

	// 再次清理，並檢查最終路徑是否仍然在 basePath 下，防止惡意遍歷
	cleanedFullPath, err := filepath.Abs(fullPath)
	if err != nil {
		log.Printf("錯誤：[AudioHandler] 無法解析音檔絕對路徑 '%s': %v", fullPath, err)
		http.Error(w, "內部伺服器錯誤", http.StatusInternalServerError)
		return
	}
	if !strings.HasPrefix(cleanedFullPath, h.audioBasePath) {
		log.Printf("警告：[AudioHandler] 偵測到潛在的路徑遍歷嘗試: '%s' (解析為 '%s')", relativePath, cleanedFullPath)
		http.Error(w, "禁止存取", http.StatusForbidden)
		return
	}

	if _, err := os.Stat(cleanedFullPath); os.IsNotExist(err) {
		log.Printf("錯誤：[AudioHandler] 請求的音檔不存在: %s", cleanedFullPath)
		http.NotFound(w, r)
		return
	} else if err != nil {
		log.Printf("錯誤：[AudioHandler] 檢查音檔 '%s' 時發生錯誤: %v", cleanedFullPath, err)
		http.Error(w, "內部伺服器錯誤", http.StatusInternalServerError)
		return
	}

	log.Printf("資訊：[AudioHandler] 正在提供音檔: %s", cleanedFullPath)
	// http.ServeFile 會自動處理 Content-Type, ETag, Range requests 等
	http.ServeFile(w, r, cleanedFullPath)
}
