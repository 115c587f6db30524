package ingest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"lingua-quiz/internal/logger"
	"lingua-quiz/internal/models"
)

func newTestAssembler(t *testing.T, dedupe bool) *Assembler {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	assembler := NewAssembler(db, dedupe, logger.NewNop())
	require.NoError(t, assembler.Migrate())

	return assembler
}

func multiQuestionItem() *models.GeneratedItem {
	return &models.GeneratedItem{
		ID:          "lc-0-abcdef123456",
		Kind:        models.KindComprehensionAudio,
		PrimaryText: "A conversation at the airport.",
		Difficulty:  models.DifficultyMedium,
		Audio: &models.AudioAsset{
			ObjectPath:  "questions/lc-0-abcdef123456.mp3",
			PublicURL:   "http://store.local/quiz-audio/questions/lc-0-abcdef123456.mp3",
			ByteSize:    40960,
			ContentType: "audio/mpeg",
		},
		Topic: &models.TopicAssignment{TopicName: "travel", TopicID: 3, Confidence: "high", Source: "ai"},
		SubQuestions: []models.SubQuestion{
			{Prompt: "Where are they?", Options: []string{"Airport", "Station", "Hotel", "School"}, CorrectIndex: 0, Explanation: "They mention boarding."},
			{Prompt: "Why is the flight delayed?", Options: []string{"Weather", "Strike", "Fuel", "Crew"}, CorrectIndex: 1, Explanation: "A strike is announced."},
			{Prompt: "What will they do next?", Options: []string{"Wait", "Leave", "Rebook", "Complain"}, CorrectIndex: 2, Explanation: "They head to the counter."},
		},
	}
}

func TestPersistFanOut(t *testing.T) {
	assembler := newTestAssembler(t, false)
	item := multiQuestionItem()

	ids, err := assembler.Persist(context.Background(), []*models.GeneratedItem{item}, models.KindComprehensionAudio)
	require.NoError(t, err)
	// 3个小题展开为恰好3行
	require.Len(t, ids, 3)

	rows, err := assembler.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	seenIDs := map[string]bool{}
	seenOrdinals := map[int]bool{}
	for _, row := range rows {
		assert.False(t, seenIDs[row.ID], "行ID必须唯一")
		seenIDs[row.ID] = true
		seenOrdinals[row.Ordinal] = true

		// 每行都指回同一道题并共享同一份音频
		assert.Equal(t, item.ID, row.Metadata["parentId"])
		assert.Equal(t, item.Audio.PublicURL, row.Metadata["audioUrl"])
		assert.Equal(t, item.ID, row.StableID)
		assert.Equal(t, string(models.KindComprehensionAudio), row.Type)
	}
	assert.Equal(t, map[int]bool{1: true, 2: true, 3: true}, seenOrdinals)
}

func TestPersistSingleQuestion(t *testing.T) {
	assembler := newTestAssembler(t, false)
	item := &models.GeneratedItem{
		Kind:        models.KindContinuationAudio,
		PrimaryText: "She opened the letter and froze.",
		Difficulty:  models.DifficultyHard,
		SubQuestions: []models.SubQuestion{
			{Prompt: "Continue the story.", Options: []string{"a", "b", "c", "d"}, CorrectIndex: 3, Explanation: "d follows naturally."},
		},
	}

	ids, err := assembler.Persist(context.Background(), []*models.GeneratedItem{item}, models.KindContinuationAudio)
	require.NoError(t, err)
	require.Len(t, ids, 1)

	rows, err := assembler.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	row := rows[0]
	assert.Equal(t, "Continue the story.", row.QuestionText)
	assert.Equal(t, "3", row.CorrectAnswer)
	assert.Equal(t, 1, row.Ordinal)
	// 单行没有fan-out，不带parentId
	_, hasParent := row.Metadata["parentId"]
	assert.False(t, hasParent)
	// 未显式给ID时按内容派生
	assert.Contains(t, row.StableID, "ct-0-")
}

func TestPersistInvalidItemRejected(t *testing.T) {
	assembler := newTestAssembler(t, false)
	item := &models.GeneratedItem{
		Kind:        models.KindComprehensionAudio,
		PrimaryText: "text",
		SubQuestions: []models.SubQuestion{
			{Prompt: "?", Options: []string{"a", "b"}, CorrectIndex: 5},
		},
	}

	_, err := assembler.Persist(context.Background(), []*models.GeneratedItem{item}, models.KindComprehensionAudio)
	require.Error(t, err)

	rows, err := assembler.Recent(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestPersistDedupeByStableID(t *testing.T) {
	assembler := newTestAssembler(t, true)
	item := multiQuestionItem()

	first, err := assembler.Persist(context.Background(), []*models.GeneratedItem{item}, models.KindComprehensionAudio)
	require.NoError(t, err)
	require.Len(t, first, 3)

	// 重复提交同一道题是空操作
	second, err := assembler.Persist(context.Background(), []*models.GeneratedItem{multiQuestionItem()}, models.KindComprehensionAudio)
	require.NoError(t, err)
	assert.Empty(t, second)

	rows, err := assembler.Recent(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, rows, 3)
}

func TestPersistWithoutDedupeInsertsAgain(t *testing.T) {
	assembler := newTestAssembler(t, false)
	item := multiQuestionItem()

	_, err := assembler.Persist(context.Background(), []*models.GeneratedItem{item}, models.KindComprehensionAudio)
	require.NoError(t, err)
	_, err = assembler.Persist(context.Background(), []*models.GeneratedItem{multiQuestionItem()}, models.KindComprehensionAudio)
	require.NoError(t, err)

	rows, err := assembler.Recent(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, rows, 6)
}
