package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"lingua-quiz/config"
	"lingua-quiz/internal/ingest"
	"lingua-quiz/internal/logger"
	"lingua-quiz/internal/models"
	"lingua-quiz/internal/topics"
	"lingua-quiz/internal/tts"
	"lingua-quiz/internal/validator"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// memEngine 固定返回足够大的假音频
type memEngine struct {
	mu    sync.Mutex
	calls int
	fail  string
}

func (e *memEngine) Synthesize(_ context.Context, ssmlDoc string) ([]byte, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	if e.fail != "" && strings.Contains(ssmlDoc, e.fail) {
		return nil, &tts.ServiceError{StatusCode: 400}
	}
	return []byte(strings.Repeat("x", 2048)), nil
}

func (e *memEngine) Provider() string { return "mem" }

// memStore 内存对象存储，公开URL指向assetServer
type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	base    string
}

func (s *memStore) EnsureBucket(context.Context) error { return nil }

func (s *memStore) Upload(_ context.Context, objectName string, data []byte, _ string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[objectName] = data
	return s.PublicURL(objectName), nil
}

func (s *memStore) ObjectExists(_ context.Context, objectName string) (bool, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[objectName]
	return ok, int64(len(data)), nil
}

func (s *memStore) PublicURL(objectName string) string {
	return s.base + "/" + objectName
}

// newPipelineServer 用假引擎、内存存储、sqlite和假分类服务搭一个完整Server
func newPipelineServer(t *testing.T, engine tts.Engine) (*Server, *memStore) {
	t.Helper()

	store := &memStore{objects: map[string][]byte{}}

	// 提供HEAD校验用的资源服务
	assetServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		store.mu.Lock()
		data, ok := store.objects[strings.TrimPrefix(r.URL.Path, "/")]
		store.mu.Unlock()
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	}))
	t.Cleanup(assetServer.Close)
	store.base = assetServer.URL

	// OpenAI兼容的假分类服务
	aiServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"{\"topic\": \"travel\"}"}}]}`))
	}))
	t.Cleanup(aiServer.Close)

	cfg := config.LoadConfig()
	cfg.OpenAI.BaseURL = aiServer.URL
	cfg.OpenAI.APIKey = "test-key"
	cfg.Pipeline.ChunkDelayMs = 0
	cfg.Pipeline.ClassifyDelayMs = 0
	cfg.Pipeline.BackoffBaseMs = 1
	cfg.Pipeline.MinAudioBytes = 1024

	log := logger.NewNop()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	assembler := ingest.NewAssembler(db, false, log)
	require.NoError(t, assembler.Migrate())

	synth := tts.NewClient(engine, store, cfg.Speech, cfg.Pipeline, log)
	classifier := topics.NewClassifier(&cfg.OpenAI, &cfg.Pipeline, log)
	checker := validator.New(int64(cfg.Pipeline.MinAudioBytes))

	return NewServer(cfg, classifier, synth, assembler, checker, log), store
}

func airportItem() *models.GeneratedItem {
	return &models.GeneratedItem{
		Kind:        models.KindComprehensionAudio,
		PrimaryText: "Two travelers talk about a delayed flight to Rome.",
		Difficulty:  models.DifficultyMedium,
		SubQuestions: []models.SubQuestion{
			{Prompt: "Where are they going?", Options: []string{"Rome", "Paris", "Oslo", "Kyiv"}, CorrectIndex: 0},
			{Prompt: "Why the delay?", Options: []string{"Fog", "Strike", "Snow", "Wind"}, CorrectIndex: 1},
			{Prompt: "How do they feel?", Options: []string{"Calm", "Angry", "Bored", "Happy"}, CorrectIndex: 2},
		},
	}
}

func TestProcessItemsEndToEnd(t *testing.T) {
	server, store := newPipelineServer(t, &memEngine{})

	server.processItems(context.Background(), processRequest{
		Items: []*models.GeneratedItem{airportItem()},
		Kind:  models.KindComprehensionAudio,
	})

	summary := server.lastSummary
	require.NotNil(t, summary)
	assert.Empty(t, summary.Errors)
	assert.Equal(t, 1, summary.Synthesized)
	// 3个小题展开为3行
	assert.Equal(t, 3, summary.PersistedRows)

	// 音频真的落到了对象存储
	assert.Len(t, store.objects, 1)

	// 校验结果全部通过
	require.Len(t, summary.Validation, 1)
	assert.True(t, summary.Validation[0].Accessible)
	assert.True(t, summary.Validation[0].IsAudio)
	assert.True(t, summary.Validation[0].SizeOK)

	// 入库行共享同一音频并带有AI主题
	rows, err := server.assembler.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	for _, row := range rows {
		assert.Equal(t, rows[0].Metadata["audioUrl"], row.Metadata["audioUrl"])
		assert.Equal(t, "travel", row.Metadata["topicName"])
	}
}

func TestProcessItemsAudioFailureIsolated(t *testing.T) {
	// 包含poison文本的题目合成失败，另一道照常入库
	server, _ := newPipelineServer(t, &memEngine{fail: "poison"})

	good := airportItem()
	bad := airportItem()
	bad.PrimaryText = "poison passage that the engine rejects"

	server.processItems(context.Background(), processRequest{
		Items: []*models.GeneratedItem{good, bad},
		Kind:  models.KindComprehensionAudio,
	})

	summary := server.lastSummary
	require.NotNil(t, summary)
	assert.Equal(t, 2, summary.Total)
	assert.Equal(t, 1, summary.Synthesized)
	assert.Equal(t, 3, summary.PersistedRows)
	require.Len(t, summary.Errors, 1)
	assert.Contains(t, summary.Errors[0], "合成失败")
}

func TestProcessItemsTextOnlySkipsSynthesis(t *testing.T) {
	engine := &memEngine{}
	server, store := newPipelineServer(t, engine)

	item := &models.GeneratedItem{
		Kind: models.KindTextOnly,
		SubQuestions: []models.SubQuestion{
			{Prompt: "Pick the synonym of rapid.", Options: []string{"fast", "slow", "late", "dull"}, CorrectIndex: 0},
		},
	}

	server.processItems(context.Background(), processRequest{
		Items:    []*models.GeneratedItem{item},
		Kind:     models.KindTextOnly,
		Classify: boolPtr(false),
	})

	summary := server.lastSummary
	require.NotNil(t, summary)
	assert.Equal(t, 1, summary.PersistedRows)
	assert.Equal(t, 0, engine.calls)
	assert.Empty(t, store.objects)

	// 不走AI分类时使用默认主题
	rows, err := server.assembler.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, topics.DefaultTopic(models.KindTextOnly).TopicName, rows[0].Metadata["topicName"])
}

func TestProcessItemsStripRichText(t *testing.T) {
	server, _ := newPipelineServer(t, &memEngine{})

	item := airportItem()
	item.PrimaryText = "<p>Two travelers talk about a <b>delayed</b> flight.</p>"

	server.processItems(context.Background(), processRequest{
		Items:         []*models.GeneratedItem{item},
		Kind:          models.KindComprehensionAudio,
		StripRichText: true,
	})

	summary := server.lastSummary
	require.NotNil(t, summary)
	assert.Empty(t, summary.Errors)
	assert.Equal(t, "Two travelers talk about a delayed flight.", item.PrimaryText)
}

func boolPtr(b bool) *bool { return &b }
