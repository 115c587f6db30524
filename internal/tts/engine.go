package tts

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"lingua-quiz/config"
)

// HTTPEngine 通过HTTP语音服务合成音频
type HTTPEngine struct {
	endpoint     string
	outputFormat string
	client       *http.Client
}

// NewHTTPEngine 创建一个新的HTTP合成引擎
func NewHTTPEngine(cfg *config.SpeechConfig) *HTTPEngine {
	return &HTTPEngine{
		endpoint:     cfg.Endpoint,
		outputFormat: cfg.OutputFormat,
		client:       &http.Client{Timeout: 60 * time.Second},
	}
}

// Synthesize 将SSML文档转换为音频字节
func (e *HTTPEngine) Synthesize(ctx context.Context, ssmlDoc string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, strings.NewReader(ssmlDoc))
	if err != nil {
		return nil, fmt.Errorf("创建请求失败: %w", err)
	}

	// 设置请求头
	req.Header.Set("Content-Type", "application/ssml+xml")
	req.Header.Set("X-Microsoft-OutputFormat", e.outputFormat)
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/93.0.4577.63 Safari/537.36 Edg/93.0.961.47")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("发送请求失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &ServiceError{StatusCode: resp.StatusCode}
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("读取响应内容失败: %w", err)
	}

	return audio, nil
}

// Provider 返回合成引擎名称
func (e *HTTPEngine) Provider() string {
	return "http-speech"
}
