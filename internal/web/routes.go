package web

import (
	"VoiceKarte-backend/internal/config"
	"VoiceKarte-backend/internal/services"
	"VoiceKarte-backend/internal/web/handlers"
	"log"
	"net/http"
)

// SetupRouter 組裝全部 HTTP 路由
func SetupRouter(
	appConfig *config.Config,
	db handlers.DBStore,
	recordingService *services.RecordingService,
	reviewService *services.ReviewService,
	transcriberHealth handlers.TranscriberHealth,
) http.Handler {
	mux := http.NewServeMux()

	if recordingService == nil {
		log.Panicln("SetupRouter：RecordingService 不得為空")
	}
	if reviewService == nil {
		log.Panicln("SetupRouter：ReviewService 不得為空")
	}

	// 上傳與管線路由
	mux.Handle("/upload-recording", handlers.NewUploadHandler(recordingService))
	mux.Handle("/categorize", handlers.NewCategorizeHandler(reviewService))
	mux.Handle("/reanalyze", handlers.NewReanalyzeHandler(reviewService))

	// 審核佇列路由
	mux.Handle("/review-queue", handlers.NewReviewQueueHandler(db))
	mux.Handle("/confirm", handlers.NewConfirmHandler(reviewService))
	mux.Handle("/discard", handlers.NewDiscardHandler(reviewService))

	// 手動觸發管線掃描的路由
	mux.Handle("/trigger-pipeline", handlers.NewTriggerPipelineHandler(reviewService))

	// 匯出處理器
	mux.Handle("/export", handlers.NewExportHandler(db))

	// 音檔串流服務路由
	audioHandler, err := handlers.NewAudioHandler(appConfig.AudioStore)
	if err != nil {
		log.Fatalf("錯誤：無法建立 Audio Handler: %v", err)
	}
	mux.Handle("/media/", audioHandler)

	// 存活檢查
	mux.Handle("/health", handlers.NewHealthHandler(appConfig.AppName, transcriberHealth))

	log.Println("資訊：HTTP 路由設定完成。")
	return mux
}
