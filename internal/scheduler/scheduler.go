package scheduler

import (
	"VoiceKarte-backend/internal/services"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler 結構
type Scheduler struct {
	cron        *cron.Cron
	pipelineJob *PipelineJob
}

// NewScheduler 接收 Cron 表達式並註冊管線掃描任務
func NewScheduler(
	rs *services.ReviewService,
	pipelineCronSpec string,
) *Scheduler {
	c := cron.New(cron.WithSeconds())

	pipelineJob := NewPipelineJob(rs)

	// 使用從設定檔傳入的 Cron 表達式
	if pipelineCronSpec != "" {
		_, err := c.AddJob(pipelineCronSpec, pipelineJob)
		if err != nil {
			log.Fatalf("錯誤：無法新增錄音管線掃描任務到排程器 (spec: %s): %v", pipelineCronSpec, err)
		}
		log.Printf("資訊：錄音管線掃描任務已註冊，排程：%s\n", pipelineCronSpec)
	} else {
		log.Println("警告：未提供錄音管線掃描任務的 Cron 表達式，該任務將不會被排程。")
	}

	return &Scheduler{
		cron:        c,
		pipelineJob: pipelineJob,
	}
}

// Start 非阻塞啟動排程器
func (s *Scheduler) Start() {
	s.cron.Start()
	log.Println("資訊：排程器已非阻塞啟動 (如果任務已註冊)。")
}

// Stop 優雅停止排程器，等待運行中任務完成
func (s *Scheduler) Stop() {
	log.Println("資訊：正在停止排程器...")
	ctx := s.cron.Stop()
	select {
	case <-ctx.Done():
		log.Println("資訊：排程器已優雅停止，所有運行中任務已完成。")
	case <-time.After(10 * time.Second):
		log.Println("警告：排程器停止超時，可能仍有任務在執行。")
	}
}
