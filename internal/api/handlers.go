package api

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"lingua-quiz/config"
	"lingua-quiz/internal/ident"
	"lingua-quiz/internal/ingest"
	"lingua-quiz/internal/logger"
	"lingua-quiz/internal/models"
	"lingua-quiz/internal/ssml"
	"lingua-quiz/internal/topics"
	"lingua-quiz/internal/tts"
	"lingua-quiz/internal/validator"
)

// RunSummary 一次管道运行的汇总
type RunSummary struct {
	Kind          string            `json:"kind"`
	Total         int               `json:"total"`
	Synthesized   int               `json:"synthesized"`
	PersistedRows int               `json:"persistedRows"`
	Errors        []string          `json:"errors"`
	Validation    []validator.Result `json:"validation,omitempty"`
	FinishedAt    time.Time         `json:"finishedAt"`
}

// Server 是API服务器结构
type Server struct {
	config     *config.Config
	router     *gin.Engine
	classifier *topics.Classifier
	synth      *tts.Client
	assembler  *ingest.Assembler
	checker    *validator.Validator
	log        *logger.Logger

	mu            sync.Mutex
	isProcessing  bool
	lastProcessed time.Time
	lastSummary   *RunSummary
}

// NewServer 创建一个新的API服务器
func NewServer(cfg *config.Config, classifier *topics.Classifier, synth *tts.Client, assembler *ingest.Assembler, checker *validator.Validator, log *logger.Logger) *Server {
	router := gin.Default()

	// 启用CORS
	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	server := &Server{
		config:     cfg,
		router:     router,
		classifier: classifier,
		synth:      synth,
		assembler:  assembler,
		checker:    checker,
		log:        log,
	}

	server.registerRoutes()

	return server
}

// registerRoutes 注册API路由
func (s *Server) registerRoutes() {
	// 健康检查
	s.router.GET("/health", s.healthHandler)

	// API v1
	v1 := s.router.Group("/api/v1")
	{
		// 完整管道：分类 -> 合成 -> 校验 -> 入库
		v1.POST("/process", s.processHandler)

		// 单条文本转语音
		v1.POST("/tts", s.ttsHandler)

		// 批量文本转语音
		v1.POST("/tts/batch", s.ttsBatchHandler)

		// 音频可达性校验
		v1.GET("/validate", s.validateHandler)

		// 查询最近入库的题目
		v1.GET("/questions", s.questionsHandler)

		// 获取处理状态
		v1.GET("/status", s.getStatusHandler)
	}
}

// Run 启动API服务器
func (s *Server) Run() error {
	return s.router.Run(":" + s.config.Server.Port)
}

// healthHandler 健康检查处理程序
func (s *Server) healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().Format(time.RFC3339),
	})
}

// processRequest 管道处理请求
type processRequest struct {
	Items         []*models.GeneratedItem `json:"items" binding:"required"`
	Kind          models.ItemKind         `json:"kind" binding:"required"`
	Classify      *bool                   `json:"classify"`
	StripRichText bool                    `json:"stripRichText"`
	SkipExisting  *bool                   `json:"skipExisting"`
}

// processHandler 触发完整管道处理
func (s *Server) processHandler(c *gin.Context) {
	var req processRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "无效的请求参数",
		})
		return
	}

	s.mu.Lock()
	if s.isProcessing {
		s.mu.Unlock()
		c.JSON(http.StatusConflict, gin.H{
			"error": "上一批还在处理中",
		})
		return
	}
	s.isProcessing = true
	s.mu.Unlock()

	// 在后台处理
	go func() {
		defer func() {
			s.mu.Lock()
			s.isProcessing = false
			s.lastProcessed = time.Now()
			s.mu.Unlock()
		}()
		s.processItems(context.Background(), req)
	}()

	c.JSON(http.StatusAccepted, gin.H{
		"total":   len(req.Items),
		"kind":    req.Kind,
		"message": "处理已开始",
	})
}

// processItems 管道处理的核心逻辑
func (s *Server) processItems(ctx context.Context, req processRequest) {
	s.log.Info("开始处理题目批次", "kind", req.Kind, "total", len(req.Items))

	summary := &RunSummary{Kind: string(req.Kind), Total: len(req.Items)}

	// 预处理：去掉上游富文本标记，补齐稳定ID
	for i, item := range req.Items {
		item.Kind = req.Kind
		if req.StripRichText {
			item.PrimaryText = ssml.StripRichText(item.PrimaryText)
		}
		if item.ID == "" && item.PrimaryText != "" {
			item.ID = ident.Derive(item.PrimaryText, req.Kind, i)
		}
	}

	// 步骤1: 主题分类，失败自动退回默认主题
	if req.Classify == nil || *req.Classify {
		s.classifier.ClassifyBatch(ctx, req.Items, req.Kind)
	} else {
		for _, item := range req.Items {
			assignment := topics.DefaultTopic(req.Kind)
			item.Topic = &assignment
		}
	}

	// 步骤2: 需要音频的类型走批量合成
	survivors := req.Items
	if req.Kind.RequiresAudio() {
		survivors = s.synthesizeItems(ctx, req, summary)
	}
	summary.Synthesized = len(survivors)

	// 步骤3: 入库
	if len(survivors) > 0 {
		ids, err := s.assembler.Persist(ctx, survivors, req.Kind)
		if err != nil {
			s.log.Error("题目入库失败", "error", err)
			summary.Errors = append(summary.Errors, err.Error())
		} else {
			summary.PersistedRows = len(ids)
		}
	}

	summary.FinishedAt = time.Now()

	s.mu.Lock()
	s.lastSummary = summary
	s.mu.Unlock()

	s.log.Info("批次处理完成", "kind", req.Kind,
		"total", summary.Total, "synthesized", summary.Synthesized,
		"persistedRows", summary.PersistedRows, "errors", len(summary.Errors))
}

// synthesizeItems 批量合成音频并把结果挂回题目
// 合成失败的题目不入库，失败原因记入汇总
func (s *Server) synthesizeItems(ctx context.Context, req processRequest, summary *RunSummary) []*models.GeneratedItem {
	batch := make([]tts.BatchItem, len(req.Items))
	for i, item := range req.Items {
		batch[i] = tts.BatchItem{ID: item.ID, Text: item.PrimaryText}
	}

	opts := tts.Options{Kind: req.Kind}
	if req.SkipExisting != nil {
		opts.SkipExisting = *req.SkipExisting
	} else {
		opts.SkipExisting = s.config.Pipeline.SkipExisting
	}

	result := s.synth.SynthesizeBatch(ctx, batch, s.config.Pipeline.MaxConcurrency, opts)

	var survivors []*models.GeneratedItem
	for i, r := range result.Results {
		item := req.Items[i]
		if r.Error != "" {
			summary.Errors = append(summary.Errors, "合成失败 "+r.ID+": "+r.Error)
			continue
		}
		item.Audio = r.Asset

		// 校验只做报告，不阻断入库
		check := s.checker.Check(ctx, r.Asset.PublicURL)
		summary.Validation = append(summary.Validation, check)
		if !check.Accessible || !check.IsAudio || !check.SizeOK {
			s.log.Warn("音频校验未通过", "id", r.ID, "url", r.Asset.PublicURL,
				"accessible", check.Accessible, "isAudio", check.IsAudio, "sizeOk", check.SizeOK)
		}

		survivors = append(survivors, item)
	}

	return survivors
}

// ttsHandler 单条文本转语音
func (s *Server) ttsHandler(c *gin.Context) {
	var req struct {
		ID    string `json:"id"`
		Text  string `json:"text" binding:"required"`
		Voice string `json:"voice"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "无效的请求参数",
		})
		return
	}

	if req.ID == "" {
		req.ID = ident.Derive(req.Text, models.KindComprehensionAudio, 0)
	}

	ctx := c.Request.Context()
	asset, err := s.synth.Synthesize(ctx, req.ID, req.Text, tts.Options{Voice: req.Voice})
	if err != nil {
		s.log.Error("文本转语音失败", "id", req.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "文本转语音失败",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":    req.ID,
		"asset": asset,
	})
}

// ttsBatchHandler 批量文本转语音
func (s *Server) ttsBatchHandler(c *gin.Context) {
	var req struct {
		Items          []tts.BatchItem `json:"items" binding:"required"`
		MaxConcurrency int             `json:"maxConcurrency"`
		SkipExisting   bool            `json:"skipExisting"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "无效的请求参数",
		})
		return
	}

	ctx := c.Request.Context()
	result := s.synth.SynthesizeBatch(ctx, req.Items, req.MaxConcurrency, tts.Options{SkipExisting: req.SkipExisting})

	// 批量操作永远返回结构化汇总，部分失败不算请求失败
	c.JSON(http.StatusOK, gin.H{
		"succeeded": result.Succeeded(),
		"total":     len(req.Items),
		"results":   result.Results,
		"errors":    result.Errors,
	})
}

// validateHandler 音频可达性校验
func (s *Server) validateHandler(c *gin.Context) {
	url := c.Query("url")
	if url == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "url参数不能为空",
		})
		return
	}

	result := s.checker.Check(c.Request.Context(), url)
	c.JSON(http.StatusOK, result)
}

// questionsHandler 查询最近入库的题目
func (s *Server) questionsHandler(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= 500 {
			limit = parsed
		}
	}

	rows, err := s.assembler.Recent(c.Request.Context(), limit)
	if err != nil {
		s.log.Error("查询题目失败", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "查询题目失败",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"count":     len(rows),
		"questions": rows,
	})
}

// getStatusHandler 获取处理状态
func (s *Server) getStatusHandler(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c.JSON(http.StatusOK, gin.H{
		"isProcessing":  s.isProcessing,
		"lastProcessed": s.lastProcessed.Format(time.RFC3339),
		"lastSummary":   s.lastSummary,
	})
}

// SweepAudio 巡检最近入库题目的音频可达性，定时任务调用
func (s *Server) SweepAudio(ctx context.Context, limit int) {
	rows, err := s.assembler.Recent(ctx, limit)
	if err != nil {
		s.log.Error("巡检查询题目失败", "error", err)
		return
	}

	checked := 0
	broken := 0
	seen := map[string]bool{}
	for _, row := range rows {
		url, ok := row.Metadata["audioUrl"].(string)
		if !ok || url == "" || seen[url] {
			continue
		}
		seen[url] = true

		result := s.checker.Check(ctx, url)
		checked++
		if !result.Accessible || !result.IsAudio || !result.SizeOK {
			broken++
			s.log.Warn("巡检发现异常音频", "stableId", row.StableID, "url", url,
				"status", result.Status, "contentType", result.ContentType, "error", result.Error)
		}
	}

	s.log.Info("音频巡检完成", "rows", len(rows), "checked", checked, "broken", broken)
}
