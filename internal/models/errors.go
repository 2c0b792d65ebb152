package models

import "errors"

// 管線的錯誤分類。各層以 fmt.Errorf("...: %w", Err...) 包裝，
// 呼叫端以 errors.Is 判別。上游服務失敗一律回報給呼叫端，核心不自動重試。
var (
	// ErrNotFound 查無指定的錄音或審核項目
	ErrNotFound = errors.New("查無指定資源")
	// ErrInvalidContext 建立錄音時 context_type 與 context_patient_id 不一致
	ErrInvalidContext = errors.New("情境設定無效：context_type 與 context_patient_id 不一致")
	// ErrInvalidRequest 請求格式不符合共用結構（邊界驗證拒絕）
	ErrInvalidRequest = errors.New("請求格式無效")
	// ErrDuplicateInFlight 同一錄音已有轉錄/萃取進行中，或已存在未終結的審核項目
	ErrDuplicateInFlight = errors.New("同一錄音已有處理中的作業或未終結的審核項目")
	// ErrMissingTranscript 沒有可用的逐字稿卻要求進行萃取（防衛性失敗）
	ErrMissingTranscript = errors.New("缺少逐字稿")
	// ErrEmptyTranscript 語音轉文字服務回傳了空白內容，錄音仍可重試
	ErrEmptyTranscript = errors.New("語音轉文字結果為空")
	// ErrTranscriptionUnavailable 語音轉文字服務無法連線或回傳錯誤
	ErrTranscriptionUnavailable = errors.New("語音轉文字服務不可用")
	// ErrExtractionService 萃取服務失敗或回傳格式不正確的結果
	ErrExtractionService = errors.New("分類萃取服務錯誤")
	// ErrInvalidTransition 對終態審核項目執行不合法的狀態轉換
	ErrInvalidTransition = errors.New("不合法的審核狀態轉換")
	// ErrAuthorizationMissing 變更審核狀態的請求缺少 requester_id
	ErrAuthorizationMissing = errors.New("缺少操作者身分")
	// ErrInsertionFailed 單一分類寫入領域資料表失敗（僅影響該分類）
	ErrInsertionFailed = errors.New("分類資料寫入失敗")
	// ErrAlreadyResolved 對已終結的審核項目重放終態轉換（回傳原始結果，非呼叫端錯誤）
	ErrAlreadyResolved = errors.New("審核項目已終結")
)
