package topics

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"lingua-quiz/config"
	"lingua-quiz/internal/logger"
	"lingua-quiz/internal/models"
)

// chatCompleter 文本生成服务接口，*openai.Client满足该接口
type chatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Classifier 调用文本生成服务给题目打主题标签
// 任何失败都退回默认主题，分类永远不会让管道停下来
type Classifier struct {
	client    chatCompleter
	model     string
	maxTokens int
	chunkSize int
	delay     time.Duration
	log       *logger.Logger
}

// NewClassifier 创建一个新的主题分类器
func NewClassifier(cfg *config.OpenAIConfig, pipeline *config.PipelineConfig, log *logger.Logger) *Classifier {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	clientConfig.BaseURL = cfg.BaseURL

	return &Classifier{
		client:    openai.NewClientWithConfig(clientConfig),
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		chunkSize: pipeline.ClassifyChunk,
		delay:     time.Duration(pipeline.ClassifyDelayMs) * time.Millisecond,
		log:       log,
	}
}

// classifyPrompt 约束模型只能从词表中选择主题
func classifyPrompt() string {
	return fmt.Sprintf(`你是英语学习题目的主题分类器。阅读给出的题目文本，从以下主题中选择最贴切的一个：%s。
只输出JSON对象，格式为 {"topic": "主题名"}，不要输出其他内容。`, strings.Join(Names(), ", "))
}

// Classify 给单道题目打主题标签
func (c *Classifier) Classify(ctx context.Context, item *models.GeneratedItem, kind models.ItemKind) models.TopicAssignment {
	content := item.PrimaryText
	if content == "" && len(item.SubQuestions) > 0 {
		content = item.SubQuestions[0].Prompt
	}

	req := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: classifyPrompt(),
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: content,
			},
		},
		MaxTokens: c.maxTokens,
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		c.log.Warn("主题分类请求失败，使用默认主题", "kind", kind, "error", err)
		return DefaultTopic(kind)
	}

	if len(resp.Choices) == 0 {
		c.log.Warn("主题分类响应为空，使用默认主题", "kind", kind)
		return DefaultTopic(kind)
	}

	name, err := parseTopicName(resp.Choices[0].Message.Content)
	if err != nil {
		c.log.Warn("解析主题响应失败，使用默认主题", "kind", kind, "error", err)
		return DefaultTopic(kind)
	}

	// 模型给出的标签必须在词表内，否则不可信
	topic, ok := Lookup(name)
	if !ok {
		c.log.Warn("模型返回了词表外的主题，使用默认主题", "kind", kind, "label", name)
		return DefaultTopic(kind)
	}

	return models.TopicAssignment{
		TopicName:  topic.Name,
		TopicID:    topic.ID,
		Confidence: "high",
		Source:     "ai",
	}
}

// ClassifyBatch 分块批量打标签
// 块之间固定间隔以避开限流，单个条目的失败不影响其他条目
func (c *Classifier) ClassifyBatch(ctx context.Context, items []*models.GeneratedItem, kind models.ItemKind) {
	chunkSize := c.chunkSize
	if chunkSize <= 0 {
		chunkSize = 5
	}

	for start := 0; start < len(items); start += chunkSize {
		end := start + chunkSize
		if end > len(items) {
			end = len(items)
		}

		for _, item := range items[start:end] {
			assignment := c.Classify(ctx, item, kind)
			item.Topic = &assignment
		}

		if end < len(items) && c.delay > 0 {
			time.Sleep(c.delay)
		}
	}
}

// parseTopicName 从自由文本响应中提取主题名
// 先截取第一段配平的{...}，再做严格解析，多余字段视为失败
func parseTopicName(raw string) (string, error) {
	region, err := extractJSONObject(raw)
	if err != nil {
		return "", err
	}

	var parsed struct {
		Topic string `json:"topic"`
	}

	decoder := json.NewDecoder(strings.NewReader(region))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&parsed); err != nil {
		return "", fmt.Errorf("解析主题JSON失败: %w", err)
	}

	if parsed.Topic == "" {
		return "", fmt.Errorf("响应中没有topic字段")
	}

	return parsed.Topic, nil
}

// extractJSONObject 提取文本中第一段大括号配平的区域
func extractJSONObject(raw string) (string, error) {
	start := strings.Index(raw, "{")
	if start < 0 {
		return "", fmt.Errorf("响应中没有JSON对象")
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(raw); i++ {
		ch := raw[i]
		if escaped {
			escaped = false
			continue
		}
		switch ch {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return raw[start : i+1], nil
				}
			}
		}
	}

	return "", fmt.Errorf("JSON对象大括号不配平")
}
