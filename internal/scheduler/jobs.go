package scheduler

import (
	"VoiceKarte-backend/internal/services"
	"log"
)

// PipelineJob 是一個排程任務，用於掃描新上傳的錄音並跑完整的轉錄＋分類流程
type PipelineJob struct {
	reviewService *services.ReviewService
}

// NewPipelineJob 建立一個 PipelineJob
func NewPipelineJob(rs *services.ReviewService) *PipelineJob {
	return &PipelineJob{reviewService: rs}
}

// Run 實現 cron.Job 介面 (github.com/robfig/cron/v3)
func (j *PipelineJob) Run() {
	log.Println("資訊：執行排程任務 - 錄音管線掃描...")
	if err := j.reviewService.Run(); err != nil {
		log.Printf("錯誤：錄音管線掃描排程任務執行失敗: %v", err)
	} else {
		log.Println("資訊：錄音管線掃描排程任務執行完成。")
	}
}
