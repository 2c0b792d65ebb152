package mysql

import (
	"fmt"
	"log"
	"time"
)

// allowedDomainTables 是可寫入的領域資料表白名單。
// 表名一律經此驗證後才併入 SQL，避免任意字串進入查詢。
var allowedDomainTables = map[string]bool{
	"vitals_records":      true,
	"medication_records":  true,
	"observation_records": true,
}

// InsertDomainRecord 將一筆已確認的分類資料寫入指定的領域資料表，
// 以病患身分為鍵。回傳新記錄的 ID。
func (s *MySQLStore) InsertDomainRecord(tableName string, patientID string, reviewID string, recordedBy string, payload []byte) (int64, error) {
	if !allowedDomainTables[tableName] {
		return 0, fmt.Errorf("未知的領域資料表: %s", tableName)
	}
	if patientID == "" {
		return 0, fmt.Errorf("patient_id 不得為空")
	}
	if len(payload) == 0 || string(payload) == "null" {
		return 0, fmt.Errorf("payload 不得為空")
	}
	query := fmt.Sprintf(`INSERT INTO %s (patient_id, review_id, recorded_by, payload, created_at) VALUES (?, ?, ?, ?, ?);`, tableName)
	res, err := s.db.Exec(query, patientID, reviewID, recordedBy, payload, time.Now())
	if err != nil {
		return 0, fmt.Errorf("寫入領域資料表 %s 失敗 (patient: %s): %w", tableName, patientID, err)
	}
	recordID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("獲取領域資料表 %s 新記錄的 ID 失敗: %w", tableName, err)
	}
	log.Printf("資訊：領域資料寫入成功 (表: %s, 記錄 ID: %d, 病患: %s)。\n", tableName, recordID, patientID)
	return recordID, nil
}
