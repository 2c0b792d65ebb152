package audio

import (
	"VoiceKarte-backend/internal/config"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// FileSystemStorage 結構負責音檔在本地檔案系統上的存放
type FileSystemStorage struct {
	basePath string // 從設定檔讀取的音檔儲存根路徑
}

// NewFileSystemStorage 建立一個 FileSystemStorage 實例。
// 它會檢查 basePath 是否存在，如果不存在則嘗試建立它。
func NewFileSystemStorage(audioCfg config.AudioStoreConfig) (*FileSystemStorage, error) {
	if audioCfg.AudioPath == "" {
		return nil, fmt.Errorf("audioStore 設定中的 audioPath 不得為空")
	}

	absBasePath, err := filepath.Abs(audioCfg.AudioPath)
	if err != nil {
		return nil, fmt.Errorf("無法取得 audioPath 的絕對路徑 '%s': %w", audioCfg.AudioPath, err)
	}

	if _, err := os.Stat(absBasePath); os.IsNotExist(err) {
		log.Printf("資訊：音檔根目錄 '%s' 不存在，正在嘗試建立...", absBasePath)
		if err := os.MkdirAll(absBasePath, 0o755); err != nil {
			return nil, fmt.Errorf("無法建立音檔根目錄 '%s': %w", absBasePath, err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("檢查音檔根目錄 '%s' 時發生錯誤: %w", absBasePath, err)
	}

	log.Printf("資訊：FileSystemStorage 初始化成功，音檔根路徑設定為: %s", absBasePath)
	return &FileSystemStorage{basePath: absBasePath}, nil
}

// buildTargetPath 根據上傳者與錄音 ID 構造儲存路徑。
// 例如：/basePath/staff01/2026/08/30/{recording_id}/note.wav
func (fs *FileSystemStorage) buildTargetPath(recordedBy, recordingID, originalFileName string) string {
	datePath := time.Now().Format("2006/01/02")
	safeRecordedBy := filepath.Base(filepath.Clean(recordedBy))
	safeRecordingID := filepath.Base(filepath.Clean(recordingID))
	safeFileName := filepath.Base(filepath.Clean(originalFileName))
	targetDir := filepath.Join(fs.basePath, safeRecordedBy, datePath, safeRecordingID)
	return filepath.Join(targetDir, safeFileName)
}

// SaveAudio 將音檔數據儲存到本地檔案系統。
// 返回相對於 basePath 的路徑（存入資料庫的 audio_path），以及可能的錯誤。
func (fs *FileSystemStorage) SaveAudio(recordedBy string, recordingID string, originalFileName string, audioData []byte) (string, error) {
	if recordedBy == "" || recordingID == "" || originalFileName == "" {
		return "", fmt.Errorf("SaveAudio 參數 recordedBy, recordingID, originalFileName 不得為空")
	}
	if len(audioData) == 0 {
		return "", fmt.Errorf("SaveAudio 參數 audioData 不得為空")
	}

	targetPath := fs.buildTargetPath(recordedBy, recordingID, originalFileName)
	if err := os.MkdirAll(filepath.Dir(targetPath), 0o755); err != nil {
		return "", fmt.Errorf("無法建立音檔目錄 '%s': %w", filepath.Dir(targetPath), err)
	}
	if err := os.WriteFile(targetPath, audioData, 0o644); err != nil {
		return "", fmt.Errorf("寫入音檔 '%s' 失敗: %w", targetPath, err)
	}

	relativePath, err := filepath.Rel(fs.basePath, targetPath)
	if err != nil {
		return "", fmt.Errorf("無法取得音檔 '%s' 的相對路徑: %w", targetPath, err)
	}
	log.Printf("資訊：[AudioStorage] 音檔儲存成功: %s (%d bytes)\n", relativePath, len(audioData))
	return relativePath, nil
}

// GetAudioAbsolutePath 將資料庫中的相對路徑轉為絕對路徑，並防止路徑遍歷
func (fs *FileSystemStorage) GetAudioAbsolutePath(relativePath string) (string, error) {
	if relativePath == "" {
		return "", fmt.Errorf("相對路徑不得為空")
	}
	fullPath := filepath.Join(fs.basePath, relativePath)
	cleanedFullPath, err := filepath.Abs(fullPath)
	if err != nil {
		return "", fmt.Errorf("無法解析音檔路徑 '%s': %w", relativePath, err)
	}
	if !strings.HasPrefix(cleanedFullPath, fs.basePath+string(os.PathSeparator)) {
		return "", fmt.Errorf("音檔路徑 '%s' 超出儲存根目錄範圍", relativePath)
	}
	return cleanedFullPath, nil
}

// ReadAudio 讀取已儲存的音檔
func (fs *FileSystemStorage) ReadAudio(relativePath string) ([]byte, error) {
	fullPath, err := fs.GetAudioAbsolutePath(relativePath)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(fullPath)
	if err != nil {
		return nil, fmt.Errorf("讀取音檔 '%s' 失敗: %w", relativePath, err)
	}
	return data, nil
}
