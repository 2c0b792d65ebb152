package handlers

import (
	"VoiceKarte-backend/internal/models"
	"encoding/json"
	"errors"
	"net/http"
)

// writeJSONError 以統一的 JSON 包封寫出錯誤回應
func writeJSONError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// writeDomainError 將管線的哨兵錯誤對應到 HTTP 狀態碼。
// AlreadyResolved 不在此處理：重放回傳 200 與原始結果，由各 handler 自行處理。
func writeDomainError(w http.ResponseWriter, err error) {
	statusCode := http.StatusInternalServerError
	switch {
	case errors.Is(err, models.ErrInvalidContext),
		errors.Is(err, models.ErrInvalidRequest),
		errors.Is(err, models.ErrMissingTranscript):
		statusCode = http.StatusBadRequest
	case errors.Is(err, models.ErrAuthorizationMissing):
		statusCode = http.StatusUnauthorized
	case errors.Is(err, models.ErrNotFound):
		statusCode = http.StatusNotFound
	case errors.Is(err, models.ErrDuplicateInFlight),
		errors.Is(err, models.ErrInvalidTransition):
		statusCode = http.StatusConflict
	case errors.Is(err, models.ErrEmptyTranscript):
		statusCode = http.StatusUnprocessableEntity
	case errors.Is(err, models.ErrTranscriptionUnavailable),
		errors.Is(err, models.ErrExtractionService):
		statusCode = http.StatusBadGateway
	}
	writeJSONError(w, statusCode, err.Error())
}
