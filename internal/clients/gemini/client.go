package gemini

import (
	"VoiceKarte-backend/internal/models"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"unicode/utf8"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// Client 結構用於與 Gemini API 互動，將逐字稿萃取為結構化的臨床分類資料
type Client struct {
	extractionModel *genai.GenerativeModel
}

// NewClient 建立一個 Gemini 客戶端實例
func NewClient(apiKey string, modelName string) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("Gemini API Key 不得為空")
	}
	if modelName == "" {
		modelName = "gemini-1.5-flash-latest"
		log.Printf("警告：[Gemini Client] 未提供萃取模型名稱，使用預設值: %s\n", modelName)
	}

	ctx := context.Background()
	genaiSDKClient, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("無法建立 Gemini GenAI SDK 客戶端: %w", err)
	}

	model := genaiSDKClient.GenerativeModel(modelName)
	var genConfig genai.GenerationConfig
	genConfig.ResponseMIMEType = "application/json"
	model.GenerationConfig = genConfig
	log.Printf("資訊：[Gemini Client] 分類萃取模型 '%s' 初始化成功。\n", modelName)

	return &Client{extractionModel: model}, nil
}

// cleanJSONString 清理從 LLM 收到的可能包含雜質的 JSON 字串：
// 移除 markdown 代碼塊標記、擷取最外層的 JSON 結構、修復無效的 UTF-8 與控制字元。
func cleanJSONString(rawResponse string) string {
	cleaned := strings.TrimSpace(rawResponse)

	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	firstBrace := strings.Index(cleaned, "{")
	lastBrace := strings.LastIndex(cleaned, "}")
	if firstBrace != -1 && lastBrace > firstBrace {
		cleaned = cleaned[firstBrace : lastBrace+1]
	}

	if !utf8.ValidString(cleaned) {
		log.Println("警告：[Gemini Client Clean] 回應包含無效的 UTF-8 字元，嘗試替換...")
		cleaned = strings.ToValidUTF8(cleaned, "")
	}

	var sb strings.Builder
	for _, r := range cleaned {
		if (r >= 0 && r < 9) || (r > 10 && r < 13) || (r > 13 && r < 32) || r == 127 {
			continue
		}
		sb.WriteRune(r)
	}
	return strings.TrimSpace(strings.TrimPrefix(sb.String(), "\uFEFF"))
}

// ExtractCategories 向 Gemini API 發送逐字稿與提示，期望回傳分類萃取結果的 JSON。
// 每次呼叫只請求一次，不在內部重試；回應格式驗證失敗視為萃取服務錯誤。
// 此函式不寫入任何儲存狀態，結果由呼叫端持久化。
func (c *Client) ExtractCategories(ctx context.Context, transcript string, languageHint string, prompt string) (*models.ExtractionResult, error) {
	log.Printf("資訊：[Gemini Client] ExtractCategories - 開始萃取逐字稿 (長度: %d 字元, 語言: %s)\n", len(transcript), languageHint)
	if strings.TrimSpace(transcript) == "" {
		return nil, fmt.Errorf("%w: 要萃取的逐字稿不得為空", models.ErrMissingTranscript)
	}
	if strings.TrimSpace(prompt) == "" {
		return nil, fmt.Errorf("分類萃取的 Prompt 不得為空")
	}

	requestParts := []genai.Part{genai.Text(prompt)}
	if languageHint != "" {
		requestParts = append(requestParts, genai.Text("（逐字稿語言: "+languageHint+"）"))
	}
	requestParts = append(requestParts, genai.Text(transcript))

	log.Println("資訊：[Gemini Client] ExtractCategories - 正在向 Gemini API 發送請求...")
	resp, err := c.extractionModel.GenerateContent(ctx, requestParts...)
	if err != nil {
		return nil, fmt.Errorf("%w: Gemini API GenerateContent 失敗: %v", models.ErrExtractionService, err)
	}

	if resp == nil || len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("%w: Gemini API 回應無效或為空 (nil response or no candidates)", models.ErrExtractionService)
	}
	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		if candidate.FinishReason != genai.FinishReasonStop && candidate.FinishReason != genai.FinishReasonUnspecified {
			for _, rating := range candidate.SafetyRatings {
				log.Printf("警告：[Gemini Client] 安全評級 - Category: %s, Probability: %s\n", rating.Category, rating.Probability)
			}
			return nil, fmt.Errorf("%w: 回應內容被阻止，原因: %s", models.ErrExtractionService, candidate.FinishReason.String())
		}
		return nil, fmt.Errorf("%w: 回應無內容 (FinishReason: %s)", models.ErrExtractionService, candidate.FinishReason.String())
	}

	var responseTextBuilder strings.Builder
	for _, part := range candidate.Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			responseTextBuilder.WriteString(string(txt))
		} else {
			log.Printf("警告：[Gemini Client] ExtractCategories - 收到非預期的 Part 類型: %T\n", part)
		}
	}
	rawResponse := responseTextBuilder.String()
	if strings.TrimSpace(rawResponse) == "" {
		return nil, fmt.Errorf("%w: Gemini API 回傳的內容為空", models.ErrExtractionService)
	}

	cleanedJSON := cleanJSONString(rawResponse)
	result, err := ParseExtractionResponse(cleanedJSON)
	if err != nil {
		log.Printf("錯誤：[Gemini Client] ExtractCategories - 回應驗證失敗: %v\n清理後的 JSON:\n%s\n", err, cleanedJSON)
		return nil, err
	}
	log.Printf("資訊：[Gemini Client] ExtractCategories - 萃取成功，共 %d 個分類 (整體信心: %.2f)。\n", len(result.Categories), result.OverallConfidence)
	return result, nil
}

// ParseExtractionResponse 解析並驗證萃取服務回傳的 JSON 字串。
// 分類缺少 type 或信心值超出 [0,1] 範圍都視為萃取服務錯誤。
func ParseExtractionResponse(cleanedJSON string) (*models.ExtractionResult, error) {
	if !json.Valid([]byte(cleanedJSON)) {
		return nil, fmt.Errorf("%w: 清理後的字串不是有效的 JSON", models.ErrExtractionService)
	}
	var result models.ExtractionResult
	if err := json.Unmarshal([]byte(cleanedJSON), &result); err != nil {
		return nil, fmt.Errorf("%w: 無法將回應解析為萃取結果: %v", models.ErrExtractionService, err)
	}
	if result.OverallConfidence < 0 || result.OverallConfidence > 1 {
		return nil, fmt.Errorf("%w: overall_confidence %.4f 超出 [0,1] 範圍", models.ErrExtractionService, result.OverallConfidence)
	}
	for i, cat := range result.Categories {
		if strings.TrimSpace(cat.Type) == "" {
			return nil, fmt.Errorf("%w: 第 %d 個分類缺少 type", models.ErrExtractionService, i)
		}
		if cat.Confidence < 0 || cat.Confidence > 1 {
			return nil, fmt.Errorf("%w: 分類 '%s' 的信心值 %.4f 超出 [0,1] 範圍", models.ErrExtractionService, cat.Type, cat.Confidence)
		}
		for field, fc := range cat.FieldConfidences {
			if fc < 0 || fc > 1 {
				return nil, fmt.Errorf("%w: 分類 '%s' 欄位 '%s' 的信心值 %.4f 超出 [0,1] 範圍", models.ErrExtractionService, cat.Type, field, fc)
			}
		}
	}
	return &result, nil
}
