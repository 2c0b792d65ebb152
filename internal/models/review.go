package models

import (
	"database/sql"
	"time"
)

// ReviewStatus 定義審核項目的狀態
type ReviewStatus string

const (
	StatusPendingReview ReviewStatus = "pending_review" // 初始狀態，等待人工處置
	StatusConfirmed     ReviewStatus = "confirmed"      // 終態：已確認並寫入領域資料表
	StatusDiscarded     ReviewStatus = "discarded"      // 終態：已捨棄，不做任何寫入
)

// IsTerminal 回報狀態是否為終態（confirmed / discarded）
func (s ReviewStatus) IsTerminal() bool {
	return s == StatusConfirmed || s == StatusDiscarded
}

// Category 是萃取服務回傳的一組分類資料（例如 vitals / medication / observation）
type Category struct {
	Type             string             `json:"type"`
	Confidence       float64            `json:"confidence"`
	Data             map[string]any     `json:"data"`
	FieldConfidences map[string]float64 `json:"field_confidences,omitempty"`
}

// ExtractionResult 是萃取服務對一段逐字稿的完整回應
type ExtractionResult struct {
	Categories        []Category `json:"categories"`
	OverallConfidence float64    `json:"overall_confidence"`
}

// EditedData 是確認時由人工編輯後送回的結構化資料
type EditedData struct {
	Categories []Category `json:"categories"`
}

// InsertionResult 記錄一次確認的逐分類寫入結果。
// Inserted 只包含成功寫入的分類；Skipped 是未知分類等被略過者（非錯誤）；
// Failed 是寫入失敗的分類與原因（單一分類失敗不影響其他分類）。
type InsertionResult struct {
	Inserted map[string]int64  `json:"inserted"`
	Skipped  []string          `json:"skipped,omitempty"`
	Failed   map[string]string `json:"failed,omitempty"`
}

// NewInsertionResult 建立一個空的（但非 nil map 的）寫入結果
func NewInsertionResult() *InsertionResult {
	return &InsertionResult{Inserted: make(map[string]int64)}
}

// ReviewItem 對應 review_items 資料表。
// 終態轉換最多發生一次；重放 confirm/discard 回傳原始結果，不重新寫入。
// 項目從不實體刪除，discard 只是狀態。
type ReviewItem struct {
	ID                string           `json:"review_id"`
	RecordingID       string           `json:"recording_id"`
	Status            ReviewStatus     `json:"status"`
	Categories        []Category       `json:"categories"`
	ExtractedData     EditedData       `json:"extracted_data"`
	OverallConfidence float64          `json:"overall_confidence"`
	InsertionResult   *InsertionResult `json:"insertion_result,omitempty"`
	ResolvedBy        sql.NullString   `json:"-"`
	ResolvedAt        sql.NullTime     `json:"-"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"-"`
}

// ReviewSummary 是審核佇列列表用的精簡檢視
type ReviewSummary struct {
	ReviewID          string       `json:"review_id"`
	RecordingID       string       `json:"recording_id"`
	Status            ReviewStatus `json:"status"`
	ContextType       ContextType  `json:"context_type"`
	ContextPatientID  string       `json:"context_patient_id,omitempty"`
	CategoryTypes     []string     `json:"category_types"`
	OverallConfidence float64      `json:"overall_confidence"`
	CreatedAt         time.Time    `json:"created_at"`
}
