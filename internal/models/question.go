package models

import "fmt"

// ItemKind 题目类型
type ItemKind string

const (
	// KindComprehensionAudio 听力理解题（音频+多个小题）
	KindComprehensionAudio ItemKind = "comprehension-audio"
	// KindContinuationAudio 听后续写题（音频+单个小题）
	KindContinuationAudio ItemKind = "continuation-audio"
	// KindTextOnly 纯文本变体题（无音频）
	KindTextOnly ItemKind = "text-only-variants"
)

// Kinds 所有支持的题目类型
var Kinds = []ItemKind{KindComprehensionAudio, KindContinuationAudio, KindTextOnly}

// RequiresAudio 该类型是否需要合成音频
func (k ItemKind) RequiresAudio() bool {
	return k == KindComprehensionAudio || k == KindContinuationAudio
}

// Difficulty 题目难度
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// SubQuestion 一个小题
type SubQuestion struct {
	Prompt       string   `json:"prompt"`
	Options      []string `json:"options"`
	CorrectIndex int      `json:"correctIndex"`
	Explanation  string   `json:"explanation"`
}

// TopicAssignment 主题标注结果
type TopicAssignment struct {
	TopicName  string `json:"topicName"`
	TopicID    int    `json:"topicId"`
	Confidence string `json:"confidence"` // high 或 fallback
	Source     string `json:"source"`     // ai 或 default
}

// AudioAsset 合成得到的音频资源
type AudioAsset struct {
	ObjectPath  string `json:"objectPath"`
	PublicURL   string `json:"publicUrl"`
	ByteSize    int64  `json:"byteSize"`
	ContentType string `json:"contentType"`
}

// GeneratedItem 上游生成的一道题目，可能包含多个小题
type GeneratedItem struct {
	ID                    string           `json:"id,omitempty"`
	Kind                  ItemKind         `json:"kind"`
	PrimaryText           string           `json:"primaryText"`
	SubQuestions          []SubQuestion    `json:"subQuestions"`
	Difficulty            Difficulty       `json:"difficulty"`
	TargetDurationSeconds int              `json:"targetDurationSeconds,omitempty"`
	Topic                 *TopicAssignment `json:"topic,omitempty"`
	Audio                 *AudioAsset      `json:"audio,omitempty"`
}

// MultiQuestion 是否需要按小题拆分持久化
func (g *GeneratedItem) MultiQuestion() bool {
	return len(g.SubQuestions) > 1
}

// Validate 校验题目数据是否完整
func (g *GeneratedItem) Validate() error {
	if g.Kind.RequiresAudio() && g.PrimaryText == "" {
		return fmt.Errorf("题目类型 %s 需要非空的主文本", g.Kind)
	}
	if len(g.SubQuestions) == 0 {
		return fmt.Errorf("题目至少需要一个小题")
	}
	for i, sq := range g.SubQuestions {
		if len(sq.Options) == 0 {
			return fmt.Errorf("小题 %d 没有选项", i+1)
		}
		if sq.CorrectIndex < 0 || sq.CorrectIndex >= len(sq.Options) {
			return fmt.Errorf("小题 %d 的正确答案下标 %d 超出范围 [0, %d)", i+1, sq.CorrectIndex, len(sq.Options))
		}
	}
	return nil
}
