package validator

import (
	"context"
	"net/http"
	"strings"
	"time"
)

// Result 音频可达性检查结果
// 只做报告，任何失败都体现在字段里而不是错误返回
type Result struct {
	URL           string `json:"url"`
	Accessible    bool   `json:"accessible"`
	IsAudio       bool   `json:"isAudio"`
	SizeOK        bool   `json:"sizeOk"`
	Status        int    `json:"status"`
	ContentType   string `json:"contentType"`
	ContentLength int64  `json:"contentLength"`
	Error         string `json:"error,omitempty"`
}

// Validator 检查已上传音频是否可正常访问
type Validator struct {
	client   *http.Client
	minBytes int64
}

// New 创建一个新的校验器，minBytes以下的文件视为损坏
func New(minBytes int64) *Validator {
	return &Validator{
		client:   &http.Client{Timeout: 15 * time.Second},
		minBytes: minBytes,
	}
}

// Check 对URL做HEAD请求并判定资源状态，从不下载内容
func (v *Validator) Check(ctx context.Context, url string) Result {
	result := Result{URL: url}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		result.Error = err.Error()
		return result
	}

	resp, err := v.client.Do(req)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	defer resp.Body.Close()

	result.Status = resp.StatusCode
	result.ContentType = resp.Header.Get("Content-Type")
	result.ContentLength = resp.ContentLength

	result.Accessible = resp.StatusCode == http.StatusOK
	result.IsAudio = result.Accessible && strings.HasPrefix(result.ContentType, "audio/")
	result.SizeOK = result.Accessible && resp.ContentLength >= v.minBytes

	return result
}
