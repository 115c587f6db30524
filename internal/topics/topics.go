package topics

import "lingua-quiz/internal/models"

// Topic 题目主题
type Topic struct {
	Name string `json:"name"`
	ID   int    `json:"id"`
}

// Vocabulary 封闭的主题词表，分类结果必须落在其中
var Vocabulary = []Topic{
	{Name: "daily-life", ID: 1},
	{Name: "campus", ID: 2},
	{Name: "travel", ID: 3},
	{Name: "business", ID: 4},
	{Name: "science", ID: 5},
	{Name: "culture", ID: 6},
	{Name: "health", ID: 7},
	{Name: "environment", ID: 8},
}

// defaultByKind 各题目类型的兜底主题
var defaultByKind = map[models.ItemKind]Topic{
	models.KindComprehensionAudio: {Name: "daily-life", ID: 1},
	models.KindContinuationAudio:  {Name: "campus", ID: 2},
	models.KindTextOnly:           {Name: "culture", ID: 6},
}

// fallbackTopic 未知题目类型的最终兜底
var fallbackTopic = Topic{Name: "daily-life", ID: 1}

// Lookup 按名称查找主题，返回是否命中词表
func Lookup(name string) (Topic, bool) {
	for _, t := range Vocabulary {
		if t.Name == name {
			return t, true
		}
	}
	return Topic{}, false
}

// DefaultTopic 返回该题目类型的默认主题
// 纯查表，任何输入都有结果，从不失败
func DefaultTopic(kind models.ItemKind) models.TopicAssignment {
	topic, ok := defaultByKind[kind]
	if !ok {
		topic = fallbackTopic
	}

	return models.TopicAssignment{
		TopicName:  topic.Name,
		TopicID:    topic.ID,
		Confidence: "fallback",
		Source:     "default",
	}
}

// Names 词表中所有主题名称
func Names() []string {
	names := make([]string, 0, len(Vocabulary))
	for _, t := range Vocabulary {
		names = append(names, t.Name)
	}
	return names
}
