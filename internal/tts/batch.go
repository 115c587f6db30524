package tts

import (
	"context"
	"sync"
	"time"

	"lingua-quiz/internal/ident"
	"lingua-quiz/internal/models"
)

// BatchItem 批量合成的一个条目，ID为空时按内容派生
type BatchItem struct {
	ID   string `json:"id,omitempty"`
	Text string `json:"text"`
}

// ItemResult 单个条目的合成结果
type ItemResult struct {
	ID    string             `json:"id"`
	Text  string             `json:"text"`
	Asset *models.AudioAsset `json:"asset,omitempty"`
	Error string             `json:"error,omitempty"`
}

// ItemError 失败条目的记录
type ItemError struct {
	ID    string `json:"id"`
	Text  string `json:"text"`
	Error string `json:"error"`
}

// BatchResult 批量合成的汇总结果
// Results与输入一一对应且保持顺序；Errors只含失败条目
type BatchResult struct {
	Results []ItemResult `json:"results"`
	Errors  []ItemError  `json:"errors"`
}

// Succeeded 成功条目数
func (r *BatchResult) Succeeded() int {
	return len(r.Results) - len(r.Errors)
}

// SynthesizeBatch 按并发上限分块批量合成
// 块内条目并发执行，单个条目失败不影响同块其余条目；块之间有固定间隔，
// 避免压垮上游服务。本方法从不返回错误，失败都记录在结果里
func (c *Client) SynthesizeBatch(ctx context.Context, items []BatchItem, maxConcurrency int, opts Options) BatchResult {
	opts = c.withDefaults(opts)
	if maxConcurrency <= 0 {
		maxConcurrency = c.pipeline.MaxConcurrency
	}
	chunkDelay := time.Duration(c.pipeline.ChunkDelayMs) * time.Millisecond

	results := make([]ItemResult, len(items))

	for start := 0; start < len(items); start += maxConcurrency {
		end := start + maxConcurrency
		if end > len(items) {
			end = len(items)
		}

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(idx int) {
				defer wg.Done()
				results[idx] = c.synthesizeItem(ctx, items[idx], idx, opts)
			}(i)
		}
		wg.Wait()

		// 下一块开始前稍作停顿
		if end < len(items) && chunkDelay > 0 {
			time.Sleep(chunkDelay)
		}
	}

	var errs []ItemError
	for _, r := range results {
		if r.Error != "" {
			errs = append(errs, ItemError{ID: r.ID, Text: r.Text, Error: r.Error})
		}
	}

	c.log.Info("批量合成完成", "total", len(items), "succeeded", len(items)-len(errs), "failed", len(errs))

	return BatchResult{Results: results, Errors: errs}
}

// synthesizeItem 处理批次中的一个条目
func (c *Client) synthesizeItem(ctx context.Context, item BatchItem, index int, opts Options) ItemResult {
	id := item.ID
	if id == "" {
		// 按内容派生稳定ID，重跑批次时命中同一对象路径
		id = ident.Derive(item.Text, opts.Kind, index)
	}

	asset, err := c.Synthesize(ctx, id, item.Text, opts)
	if err != nil {
		c.log.Error("条目合成失败", "id", id, "error", err)
		return ItemResult{ID: id, Text: item.Text, Error: err.Error()}
	}

	return ItemResult{ID: id, Text: item.Text, Asset: asset}
}
