package whisper

import (
	"VoiceKarte-backend/internal/config"
	"VoiceKarte-backend/internal/models"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

// Client 結構用於與外部 Whisper 語音轉文字服務互動。
// 服務契約：POST {baseURL}/transcribe（multipart：file + language），
// 成功回傳 {"status":"success","full_text":...}，失敗回傳 {"status":"error","error":...}。
type Client struct {
	baseURL         string
	defaultLanguage string
	httpClient      *http.Client
}

// transcribeResponse 對應 Whisper 服務的回應格式
type transcribeResponse struct {
	Status              string `json:"status"`
	Language            string `json:"language,omitempty"`
	LanguageProbability string `json:"language_probability,omitempty"`
	Duration            string `json:"duration,omitempty"`
	FullText            string `json:"full_text,omitempty"`
	Error               string `json:"error,omitempty"`
}

// NewClient 建立一個 Whisper 客戶端實例
func NewClient(cfg config.WhisperClientConfig) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("Whisper 服務的 baseURL 不得為空")
	}
	language := cfg.Language
	if language == "" {
		language = "ja"
		log.Printf("警告：[Whisper Client] 未提供語言設定，使用預設值: %s\n", language)
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	log.Printf("資訊：[Whisper Client] 初始化成功，服務位址: %s (語言: %s)\n", cfg.BaseURL, language)
	return &Client{
		baseURL:         strings.TrimRight(cfg.BaseURL, "/"),
		defaultLanguage: language,
		httpClient:      &http.Client{Timeout: timeout},
	}, nil
}

// Transcribe 將音檔上傳到 Whisper 服務並回傳完整逐字稿文字。
// 呼叫以 ctx 為界；逾時或服務錯誤一律包裝為 ErrTranscriptionUnavailable，
// 由呼叫端回報，不在此處重試。
func (c *Client) Transcribe(ctx context.Context, audioData []byte, fileName string, language string) (string, error) {
	if len(audioData) == 0 {
		return "", fmt.Errorf("要轉錄的音檔數據不得為空")
	}
	if fileName == "" {
		fileName = "recording.wav"
	}
	if language == "" {
		language = c.defaultLanguage
	}
	log.Printf("資訊：[Whisper Client] 開始轉錄音檔 '%s' (大小: %d bytes, 語言: %s)\n", fileName, len(audioData), language)

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	filePart, err := writer.CreateFormFile("file", fileName)
	if err != nil {
		return "", fmt.Errorf("建立 multipart 檔案欄位失敗: %w", err)
	}
	if _, err := filePart.Write(audioData); err != nil {
		return "", fmt.Errorf("寫入音檔數據到 multipart 失敗: %w", err)
	}
	if err := writer.WriteField("language", language); err != nil {
		return "", fmt.Errorf("寫入 language 欄位到 multipart 失敗: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("關閉 multipart writer 失敗: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/transcribe", &body)
	if err != nil {
		return "", fmt.Errorf("建立轉錄請求失敗: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: 呼叫 Whisper 服務失敗: %v", models.ErrTranscriptionUnavailable, err)
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: 讀取 Whisper 服務回應失敗: %v", models.ErrTranscriptionUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: Whisper 服務回傳非預期狀態碼 %d: %s", models.ErrTranscriptionUnavailable, resp.StatusCode, firstNChars(string(respBytes), 200))
	}

	var parsed transcribeResponse
	if err := json.Unmarshal(respBytes, &parsed); err != nil {
		return "", fmt.Errorf("%w: 無法解析 Whisper 服務回應: %v", models.ErrTranscriptionUnavailable, err)
	}
	if parsed.Status != "success" {
		return "", fmt.Errorf("%w: Whisper 服務回報錯誤: %s", models.ErrTranscriptionUnavailable, parsed.Error)
	}

	log.Printf("資訊：[Whisper Client] 轉錄完成 (語言: %s, 長度: %d 字元)\n", parsed.Language, len(parsed.FullText))
	return parsed.FullText, nil
}

// Health 檢查 Whisper 服務是否存活
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("建立健康檢查請求失敗: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: Whisper 服務健康檢查失敗: %v", models.ErrTranscriptionUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: Whisper 服務健康檢查回傳狀態碼 %d", models.ErrTranscriptionUnavailable, resp.StatusCode)
	}
	return nil
}

// firstNChars 輔助函式
func firstNChars(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
