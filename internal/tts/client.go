package tts

import (
	"context"
	"fmt"
	"path"
	"time"

	"lingua-quiz/config"
	"lingua-quiz/internal/logger"
	"lingua-quiz/internal/models"
	"lingua-quiz/internal/ssml"
)

// audioContentType 合成音频的MIME类型
const audioContentType = "audio/mpeg"

// Options 单次合成的参数，零值字段使用配置默认值
type Options struct {
	Retries      int
	PauseMs      int
	Voice        string
	OutputFolder string
	SkipExisting bool
	Kind         models.ItemKind
}

// Client 语音合成客户端
// 负责SSML构建、带退避的重试和音频上传
type Client struct {
	engine   Engine
	store    ObjectStore
	speech   config.SpeechConfig
	pipeline config.PipelineConfig
	log      *logger.Logger
}

// NewClient 创建一个新的语音合成客户端
func NewClient(engine Engine, store ObjectStore, speech config.SpeechConfig, pipeline config.PipelineConfig, log *logger.Logger) *Client {
	return &Client{
		engine:   engine,
		store:    store,
		speech:   speech,
		pipeline: pipeline,
		log:      log,
	}
}

// Synthesize 合成一段文本并上传，返回音频资源
// 同一个(id, text, voice)总是得到同一个对象路径，重复调用是幂等的
func (c *Client) Synthesize(ctx context.Context, id, text string, opts Options) (*models.AudioAsset, error) {
	opts = c.withDefaults(opts)

	objectPath := path.Join(opts.OutputFolder, id+".mp3")

	// 已有同名音频时按策略跳过合成，直接复用存储里的对象
	if opts.SkipExisting {
		exists, size, err := c.store.ObjectExists(ctx, objectPath)
		if err != nil {
			c.log.Warn("检查已有音频失败，继续合成", "id", id, "error", err)
		} else if exists {
			c.log.Info("音频已存在，跳过合成", "id", id, "object", objectPath)
			return &models.AudioAsset{
				ObjectPath:  objectPath,
				PublicURL:   c.store.PublicURL(objectPath),
				ByteSize:    size,
				ContentType: audioContentType,
			}, nil
		}
	}

	// 步骤1: 构建SSML
	doc, err := ssml.Document(text, opts.PauseMs, opts.Voice, c.speech.Locale, c.speech.SpeakingRate, c.speech.Pitch)
	if err != nil {
		return nil, fmt.Errorf("构建SSML失败: %w", err)
	}

	// 步骤2: 调用语音服务，瞬时错误按指数退避重试
	audio, err := c.synthesizeWithRetry(ctx, id, doc, opts.Retries)
	if err != nil {
		return nil, err
	}

	// 步骤3: 确保bucket存在
	if err := c.store.EnsureBucket(ctx); err != nil {
		return nil, fmt.Errorf("准备存储bucket失败: %w", err)
	}

	// 步骤4: 上传音频
	publicURL, err := c.store.Upload(ctx, objectPath, audio, audioContentType)
	if err != nil {
		return nil, fmt.Errorf("上传音频失败: %w", err)
	}

	return &models.AudioAsset{
		ObjectPath:  objectPath,
		PublicURL:   publicURL,
		ByteSize:    int64(len(audio)),
		ContentType: audioContentType,
	}, nil
}

// synthesizeWithRetry 带重试的合成调用
// retries是总尝试次数；非瞬时错误不消耗重试预算，立即失败
func (c *Client) synthesizeWithRetry(ctx context.Context, id, doc string, retries int) ([]byte, error) {
	timeout := time.Duration(c.pipeline.CallTimeoutSec) * time.Second
	backoff := time.Duration(c.pipeline.BackoffBaseMs) * time.Millisecond

	var lastErr error
	for attempt := 1; attempt <= retries; attempt++ {
		// 调用方取消后不再继续
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		audio, err := c.synthesizeOnce(ctx, doc, timeout)
		if err == nil {
			return audio, nil
		}

		if !IsRetryable(err) {
			return nil, err
		}

		lastErr = err
		if attempt < retries {
			c.log.Warn("合成失败，准备重试", "id", id, "attempt", attempt, "retries", retries, "error", err)
			time.Sleep(backoff)
			backoff *= 2
		}
	}

	return nil, &ExhaustedError{Attempts: retries, Last: lastErr}
}

// synthesizeOnce 单次合成调用，带独立超时
func (c *Client) synthesizeOnce(ctx context.Context, doc string, timeout time.Duration) ([]byte, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	audio, err := c.engine.Synthesize(callCtx, doc)
	if err != nil {
		return nil, err
	}

	// 空音频说明输入本身有问题，不值得重试
	if len(audio) == 0 {
		return nil, ErrEmptySynthesis
	}

	return audio, nil
}

// withDefaults 补齐未指定的参数
func (c *Client) withDefaults(opts Options) Options {
	if opts.Retries <= 0 {
		opts.Retries = c.pipeline.Retries
	}
	if opts.PauseMs <= 0 {
		opts.PauseMs = c.pipeline.PauseMs
	}
	if opts.Voice == "" {
		opts.Voice = c.speech.Voice
	}
	if opts.OutputFolder == "" {
		opts.OutputFolder = c.pipeline.PathPrefix
	}
	if opts.Kind == "" {
		opts.Kind = models.KindComprehensionAudio
	}
	return opts
}
