package tts

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Engine 定义语音合成引擎接口
type Engine interface {
	// Synthesize 将SSML文档转换为音频字节
	Synthesize(ctx context.Context, ssmlDoc string) ([]byte, error)

	// Provider 返回合成引擎名称
	Provider() string
}

// ObjectStore 定义音频对象存储接口
type ObjectStore interface {
	EnsureBucket(ctx context.Context) error
	Upload(ctx context.Context, objectName string, data []byte, contentType string) (string, error)
	ObjectExists(ctx context.Context, objectName string) (bool, int64, error)
	PublicURL(objectName string) string
}

// ErrEmptySynthesis 语音服务返回了空音频，说明输入有问题，不重试
var ErrEmptySynthesis = errors.New("语音服务返回了空音频")

// ServiceError 语音服务返回的HTTP错误
type ServiceError struct {
	StatusCode int
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("语音服务请求失败，状态码: %d", e.StatusCode)
}

// ExhaustedError 重试次数耗尽后的最终错误
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("合成重试%d次后仍然失败: %v", e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Last
}

// IsRetryable 判断错误是否是瞬时故障
// 限流(429)、服务端5xx和超时可重试；输入类错误立即失败
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var serviceErr *ServiceError
	if errors.As(err, &serviceErr) {
		return serviceErr.StatusCode == 429 || serviceErr.StatusCode >= 500
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	return false
}
