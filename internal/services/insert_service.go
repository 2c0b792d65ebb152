package services

import (
	"VoiceKarte-backend/internal/models"
	"VoiceKarte-backend/internal/web/handlers" // 為了 DBStore 介面
	"encoding/json"
	"fmt"
	"log"
)

// categoryTableRegistry 是分類類型到領域資料表的明確對照表。
// 新的分類類型在此登錄即可，不需改動寫入流程。
var categoryTableRegistry = map[string]string{
	"vitals":      "vitals_records",
	"medication":  "medication_records",
	"observation": "observation_records",
}

// InsertService 結構：將已確認、已編輯的分類資料寫入正確的領域資料表。
// 情境檢查逐分類進行；global 情境下不做任何病患範圍的寫入，回傳空結果（成功，非錯誤）。
type InsertService struct {
	db handlers.DBStore
}

// NewInsertService 建立 InsertService 實例
func NewInsertService(db handlers.DBStore) (*InsertService, error) {
	if db == nil {
		return nil, fmt.Errorf("InsertService：DBStore 不得為空")
	}
	log.Println("資訊：InsertService 初始化完成。")
	return &InsertService{db: db}, nil
}

// domainPayload 是寫入領域資料表 payload 欄位的結構
type domainPayload struct {
	Fields           map[string]any     `json:"fields"`
	Confidence       float64            `json:"confidence"`
	FieldConfidences map[string]float64 `json:"field_confidences,omitempty"`
}

// Insert 逐分類寫入。單一分類失敗不影響其他分類（逐分類回報，不做跨分類交易）。
// 未知的分類類型記入 Skipped 並發出警告，不視為失敗。
func (s *InsertService) Insert(item *models.ReviewItem, rec *models.VoiceRecording, edited models.EditedData) *models.InsertionResult {
	result := models.NewInsertionResult()
	if item == nil || rec == nil {
		return result
	}

	for _, category := range edited.Categories {
		// 情境檢查逐分類評估，為未來多病患情境的擴充保留空間
		if !rec.HasPatientContext() {
			log.Printf("資訊：[InsertService] 錄音 %s 無病患情境，略過分類 '%s' 的寫入。\n", rec.ID, category.Type)
			continue
		}

		tableName, known := categoryTableRegistry[category.Type]
		if !known {
			log.Printf("警告：[InsertService] 未知的分類類型 '%s'（審核項目: %s），已略過。\n", category.Type, item.ID)
			result.Skipped = append(result.Skipped, category.Type)
			continue
		}

		payloadBytes, err := json.Marshal(domainPayload{
			Fields:           category.Data,
			Confidence:       category.Confidence,
			FieldConfidences: category.FieldConfidences,
		})
		if err != nil {
			s.recordFailure(result, category.Type, fmt.Errorf("%w: 序列化分類 '%s' 失敗: %v", models.ErrInsertionFailed, category.Type, err))
			continue
		}

		recordID, err := s.db.InsertDomainRecord(tableName, rec.ContextPatientID.String, item.ID, rec.RecordedBy, payloadBytes)
		if err != nil {
			s.recordFailure(result, category.Type, fmt.Errorf("%w: %v", models.ErrInsertionFailed, err))
			continue
		}
		result.Inserted[category.Type] = recordID
	}
	log.Printf("資訊：[InsertService] 審核項目 %s 寫入完成（成功: %d, 略過: %d, 失敗: %d）。\n",
		item.ID, len(result.Inserted), len(result.Skipped), len(result.Failed))
	return result
}

// recordFailure 記錄單一分類的寫入失敗
func (s *InsertService) recordFailure(result *models.InsertionResult, categoryType string, err error) {
	log.Printf("錯誤：[InsertService] 分類 '%s' 寫入失敗: %v", categoryType, err)
	if result.Failed == nil {
		result.Failed = make(map[string]string)
	}
	result.Failed[categoryType] = err.Error()
}
