package services

import (
	"VoiceKarte-backend/internal/models"
	"context"
)

// AudioStorage 介面定義了音檔儲存操作
type AudioStorage interface {
	SaveAudio(recordedBy string, recordingID string, originalFileName string, audioData []byte) (string, error)
	ReadAudio(relativePath string) ([]byte, error)
}

// Transcriber 介面定義了外部語音轉文字服務的窄契約
type Transcriber interface {
	Transcribe(ctx context.Context, audioData []byte, fileName string, language string) (string, error)
}

// Extractor 介面定義了外部分類萃取服務的窄契約
type Extractor interface {
	ExtractCategories(ctx context.Context, transcript string, languageHint string, prompt string) (*models.ExtractionResult, error)
}
