package models

import (
	"database/sql"
	"strings"
	"time"
)

// ContextType 定義錄音所屬的臨床情境：特定病患或無病患（全域）
type ContextType string

const (
	ContextPatient ContextType = "patient"
	ContextGlobal  ContextType = "global"
)

// RecordingState 定義錄音的轉錄狀態
type RecordingState string

const (
	StateUploaded     RecordingState = "uploaded"     // 初始狀態，音檔已上傳，尚未轉錄
	StateTranscribing RecordingState = "transcribing" // 轉錄進行中（同一錄音同時只允許一個）
	StateTranscribed  RecordingState = "transcribed"  // 逐字稿已產生
)

// VoiceRecording 對應 voice_recordings 資料表。
// TranscriptionText 的「缺值」必須以真正的 NULL 表示，
// 絕不可儲存為字面文字 "null"（見 IsDegenerateTranscript）。
type VoiceRecording struct {
	ID                string         `json:"recording_id"`
	RecordedBy        string         `json:"recorded_by"`
	ContextType       ContextType    `json:"context_type"`
	ContextPatientID  sql.NullString `json:"context_patient_id"`
	AudioPath         string         `json:"-"`
	DurationSeconds   sql.NullInt64  `json:"duration_seconds"`
	Language          string         `json:"language"`
	TranscriptionText JsonNullString `json:"transcription_text"`
	State             RecordingState `json:"state"`
	UploadedAt        time.Time      `json:"uploaded_at"`
}

// IsDegenerateTranscript 回報一段已儲存的逐字稿文字是否為「退化的佔位值」：
// 空白字串，或歷史資料中代表缺值的字面文字（"null"、"undefined"）。
// 遷移期間這些值一律視同缺值處理。
func IsDegenerateTranscript(s string) bool {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return true
	}
	switch strings.ToLower(trimmed) {
	case "null", "undefined", "(null)":
		return true
	}
	return false
}

// HasUsableTranscript 回報錄音是否已有「真正存在」的逐字稿可供重用
func (r *VoiceRecording) HasUsableTranscript() bool {
	return r.TranscriptionText.Valid && !IsDegenerateTranscript(r.TranscriptionText.String)
}

// HasPatientContext 回報錄音是否綁定了有效的病患情境
func (r *VoiceRecording) HasPatientContext() bool {
	return r.ContextType == ContextPatient && r.ContextPatientID.Valid && strings.TrimSpace(r.ContextPatientID.String) != ""
}
