package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// CategoryExtractionPrompts 結構：版本化的萃取 Prompt
type CategoryExtractionPrompts struct {
	CurrentVersion string            `mapstructure:"currentVersion"`
	Versions       map[string]string `mapstructure:"versions"`
}

// PromptConfig 結構
type PromptConfig struct {
	CategoryExtraction CategoryExtractionPrompts `mapstructure:"categoryExtraction"`
}

// SchedulerConfig 結構
type SchedulerConfig struct {
	Enabled          bool   `mapstructure:"enabled"`
	PipelineCronSpec string `mapstructure:"pipelineCronSpec"`
}

// Config 結構
type Config struct {
	AppName       string              `mapstructure:"appName"`
	Server        ServerConfig        `mapstructure:"server"`
	WhisperClient WhisperClientConfig `mapstructure:"whisperClient"`
	GeminiClient  GeminiClientConfig  `mapstructure:"geminiClient"`
	Database      DatabaseConfig      `mapstructure:"database"`
	AudioStore    AudioStoreConfig    `mapstructure:"audioStore"`
	Prompts       PromptConfig        `mapstructure:"prompts"`
	Scheduler     SchedulerConfig     `mapstructure:"scheduler"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}
type WhisperClientConfig struct {
	BaseURL        string `mapstructure:"baseURL"`
	Language       string `mapstructure:"language"`
	TimeoutSeconds int    `mapstructure:"timeoutSeconds"`
}
type GeminiClientConfig struct {
	APIKey         string `mapstructure:"apiKey"`
	Model          string `mapstructure:"model"`
	TimeoutSeconds int    `mapstructure:"timeoutSeconds"`
}
type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbName"`
}
type AudioStoreConfig struct {
	AudioPath string `mapstructure:"audioPath"`
}

// Load 函式：讀取 yaml 設定檔並套用預設值與環境變數
func Load(configPath string, configName string) (*Config, error) {
	v := viper.New()
	v.AddConfigPath(configPath)
	v.SetConfigName(configName)
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// 設定預設值
	v.SetDefault("appName", "VoiceKarte-DefaultApp")
	v.SetDefault("server.port", 8080)
	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.port", 3306)
	v.SetDefault("database.host", "127.0.0.1")
	v.SetDefault("whisperClient.baseURL", "http://127.0.0.1:8090")
	v.SetDefault("whisperClient.language", "ja")
	v.SetDefault("whisperClient.timeoutSeconds", 120)
	v.SetDefault("geminiClient.model", "gemini-1.5-flash-latest")
	v.SetDefault("geminiClient.timeoutSeconds", 60)
	v.SetDefault("audioStore.audioPath", "./data/audio")
	v.SetDefault("prompts.categoryExtraction.currentVersion", "default-v1")
	v.SetDefault("prompts.categoryExtraction.versions.default-v1",
		"請從以下的照護語音逐字稿中萃取結構化的臨床分類資料（vitals、medication、observation），並以 JSON 回傳 categories 與 overall_confidence。")
	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.pipelineCronSpec", "0 */5 * * * *")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			fmt.Println("警告：找不到設定檔，將使用預設值和環境變數。")
		} else {
			return nil, fmt.Errorf("讀取設定檔時發生錯誤: %w", err)
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("無法解析設定檔到結構: %w", err)
	}

	if cfg.GeminiClient.APIKey == "" {
		fmt.Println("警告：Gemini API Key 未設定！")
	}
	if cfg.WhisperClient.BaseURL == "" {
		fmt.Println("警告：Whisper 服務的 baseURL 未設定！")
	}

	fmt.Println("資訊：設定載入成功。")
	return &cfg, nil
}
