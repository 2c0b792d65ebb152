package handlers

import (
	"encoding/csv"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// ExportHandler 負責匯出已確認的審核項目
type ExportHandler struct {
	db DBStore
}

// NewExportHandler 建立一個 ExportHandler 實例
func NewExportHandler(db DBStore) *ExportHandler {
	if db == nil {
		log.Panicln("ExportHandler：DBStore 不得為空")
	}
	return &ExportHandler{
		db: db,
	}
}

// ServeHTTP 實現 http.Handler 介面。
// GET /export 以 CSV 匯出已確認的審核項目與其寫入結果。
func (h *ExportHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log.Printf("資訊：[ExportHandler] 收到請求: %s %s 來自 %s\n", r.Method, r.URL.Path, r.RemoteAddr)

	if r.Method != http.MethodGet {
		log.Printf("警告：[ExportHandler] 收到非 GET 請求 (%s)，已拒絕。\n", r.Method)
		writeJSONError(w, http.StatusMethodNotAllowed, "僅支援 GET 方法")
		return
	}

	limit := 1000
	if rawLimit := r.URL.Query().Get("limit"); rawLimit != "" {
		if parsed, err := strconv.Atoi(rawLimit); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	items, err := h.db.ListConfirmedReviews(limit)
	if err != nil {
		log.Printf("錯誤：[ExportHandler] 從資料庫獲取已確認項目失敗: %v", err)
		writeJSONError(w, http.StatusInternalServerError, "無法獲取匯出數據")
		return
	}
	log.Printf("資訊：[ExportHandler] 獲取到 %d 個已確認的審核項目", len(items))

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=已確認審核資料_%s.csv", time.Now().Format("2006-01-02")))

	writer := csv.NewWriter(w)
	defer writer.Flush()

	headers := []string{
		"審核項目編號",
		"錄音編號",
		"分類",
		"整體信心",
		"確認者",
		"確認時間",
		"寫入成功",
		"寫入略過",
		"寫入失敗",
	}
	if err := writer.Write(headers); err != nil {
		log.Printf("錯誤：[ExportHandler] 寫入 CSV 標題失敗: %v", err)
		return
	}

	for _, item := range items {
		row := make([]string, len(headers))
		row[0] = item.ID
		row[1] = item.RecordingID

		var categoryTypes []string
		for _, category := range item.ExtractedData.Categories {
			categoryTypes = append(categoryTypes, category.Type)
		}
		row[2] = strings.Join(categoryTypes, "; ")
		row[3] = strconv.FormatFloat(item.OverallConfidence, 'f', 2, 64)

		if item.ResolvedBy.Valid {
			row[4] = item.ResolvedBy.String
		}
		if item.ResolvedAt.Valid {
			row[5] = item.ResolvedAt.Time.Format("2006-01-02 15:04:05")
		}

		if item.InsertionResult != nil {
			var inserted []string
			for categoryType, recordID := range item.InsertionResult.Inserted {
				inserted = append(inserted, fmt.Sprintf("%s:%d", categoryType, recordID))
			}
			row[6] = strings.Join(inserted, "; ")
			row[7] = strings.Join(item.InsertionResult.Skipped, "; ")

			var failed []string
			for categoryType, reason := range item.InsertionResult.Failed {
				failed = append(failed, fmt.Sprintf("%s:%s", categoryType, reason))
			}
			row[8] = strings.Join(failed, "; ")
		}

		if err := writer.Write(row); err != nil {
			log.Printf("錯誤：[ExportHandler] 寫入 CSV 資料列失敗: %v", err)
			return
		}
	}
}
