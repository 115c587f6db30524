package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

func init() {
	// 加载.env文件
	if err := godotenv.Load(); err != nil {
		log.Printf("警告: 无法加载.env文件: %v", err)
	}
}

// Config 应用配置
type Config struct {
	Server   ServerConfig
	OpenAI   OpenAIConfig
	MinIO    MinIOConfig
	Speech   SpeechConfig
	Pipeline PipelineConfig
	Database DatabaseConfig
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Port string
	Env  string
}

// OpenAIConfig OpenAI兼容接口配置（用于题目主题分类）
type OpenAIConfig struct {
	BaseURL   string
	APIKey    string
	Model     string
	MaxTokens int
}

// MinIOConfig MinIO存储配置
type MinIOConfig struct {
	Endpoint        string
	PublicBaseURL   string
	BucketName      string
	AccessKeyID     string
	SecretAccessKey string
	PublicRead      bool
}

// SpeechConfig 语音合成配置
type SpeechConfig struct {
	Endpoint     string
	OutputFormat string
	Voice        string
	Locale       string
	SpeakingRate string
	Pitch        string
}

// PipelineConfig 批量合成管道配置
type PipelineConfig struct {
	PathPrefix       string
	MaxConcurrency   int
	Retries          int
	PauseMs          int
	ChunkDelayMs     int
	BackoffBaseMs    int
	CallTimeoutSec   int
	MinAudioBytes    int
	ClassifyChunk    int
	ClassifyDelayMs  int
	SkipExisting     bool
	DedupeByStableID bool
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	DSN string
}

// LoadConfig 从环境变量加载配置
func LoadConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port: getEnvOrDefault("APP_PORT", "3002"),
			Env:  getEnvOrDefault("WORKER_ENV", "production"),
		},
		OpenAI: OpenAIConfig{
			BaseURL:   getEnvOrDefault("OPENAI_BASE_URL", "https://api.deepseek.com/v1"),
			APIKey:    getEnvOrDefault("OPENAI_API_KEY", ""),
			Model:     getEnvOrDefault("OPENAI_MODEL", "deepseek-chat"),
			MaxTokens: getEnvIntOrDefault("OPENAI_MAX_TOKENS", 256),
		},
		MinIO: MinIOConfig{
			Endpoint:        getEnvOrDefault("QUIZ_BUCKET_URL", "http://localhost:9000"),
			PublicBaseURL:   getEnvOrDefault("QUIZ_PUBLIC_BASE_URL", ""),
			BucketName:      getEnvOrDefault("QUIZ_AUDIO_BUCKET", "quiz-audio"),
			AccessKeyID:     getEnvOrDefault("MINIO_ACCESS_KEY", "minioadmin"),
			SecretAccessKey: getEnvOrDefault("MINIO_SECRET_KEY", "minioadmin"),
			PublicRead:      getEnvBoolOrDefault("QUIZ_AUDIO_PUBLIC_READ", true),
		},
		Speech: SpeechConfig{
			Endpoint:     getEnvOrDefault("SPEECH_ENDPOINT", "https://speech.platform.bing.com/consumer/speech/synthesize/readaloud/edge/v1"),
			OutputFormat: getEnvOrDefault("SPEECH_FORMAT", "audio-24khz-48kbitrate-mono-mp3"),
			Voice:        getEnvOrDefault("SPEECH_VOICE", "en-US-JennyNeural"),
			Locale:       getEnvOrDefault("SPEECH_LOCALE", "en-US"),
			SpeakingRate: getEnvOrDefault("SPEECH_RATE", "0%"),
			Pitch:        getEnvOrDefault("SPEECH_PITCH", "0%"),
		},
		Pipeline: PipelineConfig{
			PathPrefix:       getEnvOrDefault("QUIZ_AUDIO_PREFIX", "questions"),
			MaxConcurrency:   getEnvIntOrDefault("MAX_CONCURRENCY", 3),
			Retries:          getEnvIntOrDefault("SYNTH_RETRIES", 3),
			PauseMs:          getEnvIntOrDefault("BLANK_PAUSE_MS", 800),
			ChunkDelayMs:     getEnvIntOrDefault("CHUNK_DELAY_MS", 1000),
			BackoffBaseMs:    getEnvIntOrDefault("BACKOFF_BASE_MS", 1000),
			CallTimeoutSec:   getEnvIntOrDefault("CALL_TIMEOUT_SEC", 30),
			MinAudioBytes:    getEnvIntOrDefault("MIN_AUDIO_BYTES", 1024),
			ClassifyChunk:    getEnvIntOrDefault("CLASSIFY_CHUNK", 5),
			ClassifyDelayMs:  getEnvIntOrDefault("CLASSIFY_DELAY_MS", 1000),
			SkipExisting:     getEnvBoolOrDefault("SYNTH_SKIP_EXISTING", false),
			DedupeByStableID: getEnvBoolOrDefault("INGEST_DEDUPE", false),
		},
		Database: DatabaseConfig{
			DSN: getEnvOrDefault("DATABASE_DSN", "host=localhost user=postgres password=postgres dbname=lingua_quiz port=5432 sslmode=disable"),
		},
	}
}

// getEnvOrDefault 获取环境变量或默认值
func getEnvOrDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvIntOrDefault 获取环境变量(整数)或默认值
func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return intValue
}

// getEnvBoolOrDefault 获取环境变量(布尔)或默认值
func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	boolValue, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return boolValue
}
