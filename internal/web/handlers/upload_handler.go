package handlers

import (
	"VoiceKarte-backend/internal/models"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strconv"
)

// maxUploadBytes 限制單次上傳的音檔大小 (64MB)
const maxUploadBytes = 64 << 20

// RecordingUploader 定義上傳處理需要的服務介面
type RecordingUploader interface {
	Upload(recordedBy string, contextType models.ContextType, contextPatientID string, durationSeconds int64, fileName string, audioData []byte) (*models.VoiceRecording, error)
}

// UploadHandler 負責處理錄音上傳
type UploadHandler struct {
	uploader RecordingUploader
}

// NewUploadHandler 建立一個 UploadHandler 實例
func NewUploadHandler(uploader RecordingUploader) *UploadHandler {
	if uploader == nil {
		log.Panicln("UploadHandler：RecordingUploader 不得為空")
	}
	return &UploadHandler{uploader: uploader}
}

// ServeHTTP 實現 http.Handler 介面。
// POST /upload-recording，multipart 欄位：
// file（音檔）、recorded_by、context_type（patient|global）、
// context_patient_id（patient 時必填）、duration_seconds（選填）。
func (h *UploadHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log.Printf("資訊：[UploadHandler] 收到請求: %s %s 來自 %s\n", r.Method, r.URL.Path, r.RemoteAddr)

	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "僅支援 POST 方法")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		log.Printf("警告：[UploadHandler] 解析 multipart 請求失敗: %v", err)
		writeJSONError(w, http.StatusBadRequest, "無效的 multipart 請求")
		return
	}

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "缺少音檔欄位 'file'")
		return
	}
	defer file.Close()

	audioData, err := io.ReadAll(file)
	if err != nil {
		log.Printf("錯誤：[UploadHandler] 讀取上傳音檔失敗: %v", err)
		writeJSONError(w, http.StatusBadRequest, "讀取音檔失敗")
		return
	}

	var durationSeconds int64
	if raw := r.FormValue("duration_seconds"); raw != "" {
		if parsed, parseErr := strconv.ParseInt(raw, 10, 64); parseErr == nil && parsed > 0 {
			durationSeconds = parsed
		}
	}

	rec, err := h.uploader.Upload(
		r.FormValue("recorded_by"),
		models.ContextType(r.FormValue("context_type")),
		r.FormValue("context_patient_id"),
		durationSeconds,
		fileHeader.Filename,
		audioData,
	)
	if err != nil {
		log.Printf("錯誤：[UploadHandler] 上傳處理失敗: %v", err)
		writeDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]any{
		"recording_id": rec.ID,
		"state":        rec.State,
	})
}
