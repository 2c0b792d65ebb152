package mysql

import (
	"VoiceKarte-backend/internal/config"
	"VoiceKarte-backend/internal/models"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// MySQLStore 結構
type MySQLStore struct {
	db *sql.DB
}

// NewMySQLStore 建立 MySQL 連線並設定連線池
func NewMySQLStore(dbCfg config.DatabaseConfig) (*MySQLStore, error) {
	if dbCfg.Driver != "mysql" {
		return nil, fmt.Errorf("不支援的資料庫驅動程式: %s", dbCfg.Driver)
	}
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local", dbCfg.User, dbCfg.Password, dbCfg.Host, dbCfg.Port, dbCfg.DBName)
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("開啟資料庫連線失敗: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("無法連線到資料庫 (ping 失敗): %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)
	log.Println("資訊：成功連線到 MySQL 資料庫。")
	return &MySQLStore{db: db}, nil
}

func (s *MySQLStore) Close() error {
	if s.db != nil {
		log.Println("資訊：正在關閉 MySQL 資料庫連線...")
		return s.db.Close()
	}
	return nil
}

// CreateRecording 建立一筆錄音記錄。
// context_patient_id 必須且僅在 context_type = patient 時提供，否則回傳 ErrInvalidContext。
func (s *MySQLStore) CreateRecording(rec *models.VoiceRecording) error {
	if rec == nil || rec.ID == "" {
		return fmt.Errorf("傳入的 recording 物件無效")
	}
	if rec.RecordedBy == "" {
		return fmt.Errorf("%w: recorded_by 不得為空", models.ErrInvalidRequest)
	}
	switch rec.ContextType {
	case models.ContextPatient:
		if !rec.ContextPatientID.Valid || strings.TrimSpace(rec.ContextPatientID.String) == "" {
			return fmt.Errorf("%w: context_type 為 patient 但未提供 context_patient_id", models.ErrInvalidContext)
		}
	case models.ContextGlobal:
		if rec.ContextPatientID.Valid && rec.ContextPatientID.String != "" {
			return fmt.Errorf("%w: context_type 為 global 但提供了 context_patient_id", models.ErrInvalidContext)
		}
	default:
		return fmt.Errorf("%w: 未知的 context_type '%s'", models.ErrInvalidContext, rec.ContextType)
	}

	uploadedAt := rec.UploadedAt
	if uploadedAt.IsZero() {
		uploadedAt = time.Now()
	}
	state := rec.State
	if state == "" {
		state = models.StateUploaded
	}
	query := `INSERT INTO voice_recordings
		(id, recorded_by, context_type, context_patient_id, audio_path, duration_seconds, language, transcription_text, state, uploaded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`
	_, err := s.db.Exec(query,
		rec.ID, rec.RecordedBy, rec.ContextType, rec.ContextPatientID, rec.AudioPath,
		rec.DurationSeconds, rec.Language, rec.TranscriptionText.NullString, state, uploadedAt)
	if err != nil {
		return fmt.Errorf("插入錄音記錄失敗 (ID: %s): %w", rec.ID, err)
	}
	log.Printf("資訊：新增錄音記錄成功，ID: %s (recorded_by: %s, context: %s)\n", rec.ID, rec.RecordedBy, rec.ContextType)
	return nil
}

// scanRecording 掃描單列錄音查詢結果。
// 歷史資料中逐字稿欄位可能存有字面的 "null" 佔位文字，讀取時一律正規化為缺值。
func scanRecording(row interface{ Scan(...any) error }) (*models.VoiceRecording, error) {
	var rec models.VoiceRecording
	var transcriptSQL sql.NullString
	err := row.Scan(&rec.ID, &rec.RecordedBy, &rec.ContextType, &rec.ContextPatientID,
		&rec.AudioPath, &rec.DurationSeconds, &rec.Language, &transcriptSQL, &rec.State, &rec.UploadedAt)
	if err != nil {
		return nil, err
	}
	if transcriptSQL.Valid && !models.IsDegenerateTranscript(transcriptSQL.String) {
		rec.TranscriptionText = models.JsonNullString{NullString: transcriptSQL}
	}
	return &rec, nil
}

const recordingColumns = `id, recorded_by, context_type, context_patient_id, audio_path, duration_seconds, language, transcription_text, state, uploaded_at`

// GetRecording 以 ID 查詢錄音
func (s *MySQLStore) GetRecording(recordingID string) (*models.VoiceRecording, error) {
	if recordingID == "" {
		return nil, fmt.Errorf("%w: recording_id 不得為空", models.ErrInvalidRequest)
	}
	query := `SELECT ` + recordingColumns + ` FROM voice_recordings WHERE id = ?;`
	rec, err := scanRecording(s.db.QueryRow(query, recordingID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: 錄音 %s 不存在", models.ErrNotFound, recordingID)
		}
		return nil, fmt.Errorf("查詢錄音 %s 失敗: %w", recordingID, err)
	}
	return rec, nil
}

// SetTranscript 寫入逐字稿並同步狀態為 transcribed
func (s *MySQLStore) SetTranscript(recordingID string, text string) error {
	if models.IsDegenerateTranscript(text) {
		return fmt.Errorf("%w: 不得將退化的佔位值寫入逐字稿欄位", models.ErrMissingTranscript)
	}
	query := `UPDATE voice_recordings SET transcription_text = ?, state = ? WHERE id = ?;`
	res, err := s.db.Exec(query, text, models.StateTranscribed, recordingID)
	if err != nil {
		return fmt.Errorf("更新錄音 %s 的逐字稿失敗: %w", recordingID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: 錄音 %s 不存在", models.ErrNotFound, recordingID)
	}
	log.Printf("資訊：錄音 %s 的逐字稿已更新 (長度: %d 字元)。\n", recordingID, len(text))
	return nil
}

// SetRecordingState 更新錄音狀態
func (s *MySQLStore) SetRecordingState(recordingID string, state models.RecordingState) error {
	query := `UPDATE voice_recordings SET state = ? WHERE id = ?;`
	res, err := s.db.Exec(query, state, recordingID)
	if err != nil {
		return fmt.Errorf("更新錄音 %s 的狀態失敗: %w", recordingID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: 錄音 %s 不存在", models.ErrNotFound, recordingID)
	}
	return nil
}

// TryMarkTranscribing 嘗試以條件更新將錄音標記為轉錄中。
// 若錄音已在轉錄中（他處持有），回傳 false，呼叫端應以 DuplicateInFlight 失敗。
func (s *MySQLStore) TryMarkTranscribing(recordingID string) (bool, error) {
	query := `UPDATE voice_recordings SET state = ? WHERE id = ? AND state <> ?;`
	res, err := s.db.Exec(query, models.StateTranscribing, recordingID, models.StateTranscribing)
	if err != nil {
		return false, fmt.Errorf("標記錄音 %s 為轉錄中失敗: %w", recordingID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("讀取標記結果失敗 (錄音 %s): %w", recordingID, err)
	}
	return n > 0, nil
}

// marshalJSONColumn 序列化 JSON 欄位，nil 以 SQL NULL 表示
func marshalJSONColumn(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("序列化 JSON 欄位失敗: %w", err)
	}
	return b, nil
}

// CreateReviewItem 建立一筆待審核項目。
// 以條件插入保證同一錄音最多只有一個未終結的審核項目，違反時回傳 ErrDuplicateInFlight。
func (s *MySQLStore) CreateReviewItem(item *models.ReviewItem) error {
	if item == nil || item.ID == "" || item.RecordingID == "" {
		return fmt.Errorf("傳入的 review item 物件無效")
	}
	categoriesJSON, err := marshalJSONColumn(item.Categories)
	if err != nil {
		return err
	}
	extractedJSON, err := marshalJSONColumn(item.ExtractedData)
	if err != nil {
		return err
	}
	createdAt := item.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	query := `INSERT INTO review_items
		(id, recording_id, status, categories, extracted_data, overall_confidence, created_at, updated_at)
		SELECT ?, ?, ?, ?, ?, ?, ?, ?
		FROM DUAL
		WHERE NOT EXISTS (
			SELECT 1 FROM review_items WHERE recording_id = ? AND status = ?
		);`
	res, err := s.db.Exec(query,
		item.ID, item.RecordingID, models.StatusPendingReview, categoriesJSON, extractedJSON,
		item.OverallConfidence, createdAt, createdAt,
		item.RecordingID, models.StatusPendingReview)
	if err != nil {
		return fmt.Errorf("插入審核項目失敗 (錄音: %s): %w", item.RecordingID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("讀取審核項目插入結果失敗: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: 錄音 %s 已有待審核項目", models.ErrDuplicateInFlight, item.RecordingID)
	}
	log.Printf("資訊：新增審核項目成功，ID: %s (錄音: %s)\n", item.ID, item.RecordingID)
	return nil
}

const reviewColumns = `id, recording_id, status, categories, extracted_data, overall_confidence, insertion_result, resolved_by, resolved_at, created_at, updated_at`

// scanReviewItem 掃描單列審核項目查詢結果
func scanReviewItem(row interface{ Scan(...any) error }) (*models.ReviewItem, error) {
	var item models.ReviewItem
	var categoriesSQL, extractedSQL, insertionSQL []byte
	err := row.Scan(&item.ID, &item.RecordingID, &item.Status, &categoriesSQL, &extractedSQL,
		&item.OverallConfidence, &insertionSQL, &item.ResolvedBy, &item.ResolvedAt, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(categoriesSQL) > 0 && string(categoriesSQL) != "null" {
		if err := json.Unmarshal(categoriesSQL, &item.Categories); err != nil {
			return nil, fmt.Errorf("解析審核項目 %s 的 categories 欄位失敗: %w", item.ID, err)
		}
	}
	if len(extractedSQL) > 0 && string(extractedSQL) != "null" {
		if err := json.Unmarshal(extractedSQL, &item.ExtractedData); err != nil {
			return nil, fmt.Errorf("解析審核項目 %s 的 extracted_data 欄位失敗: %w", item.ID, err)
		}
	}
	if len(insertionSQL) > 0 && string(insertionSQL) != "null" {
		var result models.InsertionResult
		if err := json.Unmarshal(insertionSQL, &result); err != nil {
			return nil, fmt.Errorf("解析審核項目 %s 的 insertion_result 欄位失敗: %w", item.ID, err)
		}
		item.InsertionResult = &result
	}
	return &item, nil
}

// GetReviewItem 以 ID 查詢審核項目
func (s *MySQLStore) GetReviewItem(reviewID string) (*models.ReviewItem, error) {
	if reviewID == "" {
		return nil, fmt.Errorf("%w: review_id 不得為空", models.ErrInvalidRequest)
	}
	query := `SELECT ` + reviewColumns + ` FROM review_items WHERE id = ?;`
	item, err := scanReviewItem(s.db.QueryRow(query, reviewID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: 審核項目 %s 不存在", models.ErrNotFound, reviewID)
		}
		return nil, fmt.Errorf("查詢審核項目 %s 失敗: %w", reviewID, err)
	}
	return item, nil
}

// GetActiveReviewForRecording 查詢錄音目前未終結的審核項目，不存在時回傳 nil
func (s *MySQLStore) GetActiveReviewForRecording(recordingID string) (*models.ReviewItem, error) {
	query := `SELECT ` + reviewColumns + ` FROM review_items WHERE recording_id = ? AND status = ? LIMIT 1;`
	item, err := scanReviewItem(s.db.QueryRow(query, recordingID, models.StatusPendingReview))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("查詢錄音 %s 的待審核項目失敗: %w", recordingID, err)
	}
	return item, nil
}

// ReplaceReviewData 以單一條件更新原子性地替換審核項目的萃取資料（reanalyze 用）。
// 項目已終結時不做任何變更並回傳 ErrInvalidTransition。
func (s *MySQLStore) ReplaceReviewData(reviewID string, categories []models.Category, extracted models.EditedData, overallConfidence float64) error {
	categoriesJSON, err := marshalJSONColumn(categories)
	if err != nil {
		return err
	}
	extractedJSON, err := marshalJSONColumn(extracted)
	if err != nil {
		return err
	}
	query := `UPDATE review_items
		SET categories = ?, extracted_data = ?, overall_confidence = ?, updated_at = ?
		WHERE id = ? AND status = ?;`
	res, err := s.db.Exec(query, categoriesJSON, extractedJSON, overallConfidence, time.Now(), reviewID, models.StatusPendingReview)
	if err != nil {
		return fmt.Errorf("替換審核項目 %s 的萃取資料失敗: %w", reviewID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("讀取替換結果失敗 (審核項目 %s): %w", reviewID, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: 審核項目 %s 不在待審核狀態", models.ErrInvalidTransition, reviewID)
	}
	log.Printf("資訊：審核項目 %s 的萃取資料已原子性替換。\n", reviewID)
	return nil
}

// ResolveReviewItem 以條件更新將審核項目轉入終態。
// 回傳 false 表示項目已被他處終結（呼叫端應回傳先前的結果，不得重新寫入）。
func (s *MySQLStore) ResolveReviewItem(reviewID string, status models.ReviewStatus, resolvedBy string, edited *models.EditedData, result *models.InsertionResult) (bool, error) {
	if !status.IsTerminal() {
		return false, fmt.Errorf("%w: '%s' 不是終態", models.ErrInvalidTransition, status)
	}
	resultJSON, err := marshalJSONColumn(result)
	if err != nil {
		return false, err
	}
	editedJSON, err := marshalJSONColumn(edited)
	if err != nil {
		return false, err
	}
	now := time.Now()
	var res sql.Result
	if edited != nil {
		query := `UPDATE review_items
			SET status = ?, extracted_data = ?, insertion_result = ?, resolved_by = ?, resolved_at = ?, updated_at = ?
			WHERE id = ? AND status = ?;`
		res, err = s.db.Exec(query, status, editedJSON, resultJSON, resolvedBy, now, now, reviewID, models.StatusPendingReview)
	} else {
		query := `UPDATE review_items
			SET status = ?, insertion_result = ?, resolved_by = ?, resolved_at = ?, updated_at = ?
			WHERE id = ? AND status = ?;`
		res, err = s.db.Exec(query, status, resultJSON, resolvedBy, now, now, reviewID, models.StatusPendingReview)
	}
	if err != nil {
		return false, fmt.Errorf("終結審核項目 %s 失敗: %w", reviewID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("讀取終結結果失敗 (審核項目 %s): %w", reviewID, err)
	}
	if n == 0 {
		return false, nil
	}
	log.Printf("資訊：審核項目 %s 已終結，狀態: %s (操作者: %s)。\n", reviewID, status, resolvedBy)
	return true, nil
}

// ListReviewSummaries 列出某位人員的審核佇列（最新在前）
func (s *MySQLStore) ListReviewSummaries(staffID string, limit int) ([]models.ReviewSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ri.id, ri.recording_id, ri.status, ri.categories, ri.overall_confidence, ri.created_at,
			vr.context_type, vr.context_patient_id
		FROM review_items ri
		JOIN voice_recordings vr ON vr.id = ri.recording_id
		WHERE vr.recorded_by = ?
		ORDER BY ri.created_at DESC, ri.id DESC
		LIMIT ?;`
	rows, err := s.db.Query(query, staffID, limit)
	if err != nil {
		return nil, fmt.Errorf("查詢審核佇列失敗 (staff: %s): %w", staffID, err)
	}
	defer rows.Close()

	var summaries []models.ReviewSummary
	for rows.Next() {
		var sum models.ReviewSummary
		var categoriesSQL []byte
		var patientIDSQL sql.NullString
		if err := rows.Scan(&sum.ReviewID, &sum.RecordingID, &sum.Status, &categoriesSQL,
			&sum.OverallConfidence, &sum.CreatedAt, &sum.ContextType, &patientIDSQL); err != nil {
			log.Printf("錯誤：掃描審核佇列查詢結果行失敗: %v", err)
			continue
		}
		if patientIDSQL.Valid {
			sum.ContextPatientID = patientIDSQL.String
		}
		if len(categoriesSQL) > 0 && string(categoriesSQL) != "null" {
			var categories []models.Category
			if err := json.Unmarshal(categoriesSQL, &categories); err == nil {
				for _, cat := range categories {
					sum.CategoryTypes = append(sum.CategoryTypes, cat.Type)
				}
			}
		}
		summaries = append(summaries, sum)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("處理審核佇列查詢結果集時發生錯誤: %w", err)
	}
	log.Printf("資訊：查詢到 %d 個審核項目 (staff: %s)。\n", len(summaries), staffID)
	return summaries, nil
}

// GetRecordingsPendingPipeline 查詢尚未進入管線的新上傳錄音（排程掃描用）
func (s *MySQLStore) GetRecordingsPendingPipeline(limit int) ([]models.VoiceRecording, error) {
	if limit <= 0 {
		limit = 10
	}
	query := `SELECT ` + recordingColumns + ` FROM voice_recordings vr
		WHERE vr.state = ?
		AND NOT EXISTS (SELECT 1 FROM review_items ri WHERE ri.recording_id = vr.id)
		ORDER BY vr.uploaded_at ASC
		LIMIT ?;`
	rows, err := s.db.Query(query, models.StateUploaded, limit)
	if err != nil {
		return nil, fmt.Errorf("查詢待處理錄音失敗: %w", err)
	}
	defer rows.Close()

	var recordings []models.VoiceRecording
	for rows.Next() {
		rec, err := scanRecording(rows)
		if err != nil {
			log.Printf("錯誤：掃描待處理錄音查詢結果行失敗: %v", err)
			continue
		}
		recordings = append(recordings, *rec)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("處理待處理錄音查詢結果集時發生錯誤: %w", err)
	}
	log.Printf("資訊：查詢到 %d 個待處理錄音。\n", len(recordings))
	return recordings, nil
}

// ListConfirmedReviews 查詢已確認的審核項目（匯出用，最新在前）
func (s *MySQLStore) ListConfirmedReviews(limit int) ([]models.ReviewItem, error) {
	if limit <= 0 {
		limit = 1000
	}
	query := `SELECT ` + reviewColumns + ` FROM review_items WHERE status = ? ORDER BY resolved_at DESC LIMIT ?;`
	rows, err := s.db.Query(query, models.StatusConfirmed, limit)
	if err != nil {
		return nil, fmt.Errorf("查詢已確認審核項目失敗: %w", err)
	}
	defer rows.Close()

	var items []models.ReviewItem
	for rows.Next() {
		item, err := scanReviewItem(rows)
		if err != nil {
			log.Printf("錯誤：掃描已確認審核項目查詢結果行失敗: %v", err)
			continue
		}
		items = append(items, *item)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("處理已確認審核項目查詢結果集時發生錯誤: %w", err)
	}
	return items, nil
}
