package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"lingua-quiz/internal/ident"
	"lingua-quiz/internal/logger"
	"lingua-quiz/internal/models"
)

// insertBatchSize 单次插入的行数上限
const insertBatchSize = 100

// Assembler 把题目展开为数据库行并批量写入
type Assembler struct {
	db     *gorm.DB
	dedupe bool
	log    *logger.Logger
}

// NewAssembler 创建一个新的入库组装器
// dedupe开启时，重复提交相同(stableId, ordinal)的行会被跳过
func NewAssembler(db *gorm.DB, dedupe bool, log *logger.Logger) *Assembler {
	return &Assembler{db: db, dedupe: dedupe, log: log}
}

// Migrate 建表
func (a *Assembler) Migrate() error {
	return a.db.AutoMigrate(&models.QuestionRow{})
}

// Persist 展开并写入一批题目，返回新行的ID
// 所有行在同一个事务里插入；任何插入失败都会让整批回滚并报错，
// 绝不留下悄悄写了一半的批次
func (a *Assembler) Persist(ctx context.Context, items []*models.GeneratedItem, kind models.ItemKind) ([]string, error) {
	var rows []*models.QuestionRow
	for _, item := range items {
		if err := item.Validate(); err != nil {
			return nil, fmt.Errorf("题目数据不合法: %w", err)
		}
		expanded, err := a.expand(item, kind)
		if err != nil {
			return nil, err
		}
		rows = append(rows, expanded...)
	}

	if len(rows) == 0 {
		return nil, nil
	}

	err := a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if a.dedupe {
			filtered, err := a.dropExisting(tx, rows)
			if err != nil {
				return err
			}
			rows = filtered
		}

		if len(rows) == 0 {
			return nil
		}

		return tx.CreateInBatches(rows, insertBatchSize).Error
	})
	if err != nil {
		return nil, fmt.Errorf("批量写入题目失败: %w", err)
	}

	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}

	a.log.Info("题目入库完成", "items", len(items), "rows", len(ids))

	return ids, nil
}

// expand 把一道题目展开为数据库行
// 多小题的题目丢弃整题框架，每个小题各成一行并继承音频和主题
func (a *Assembler) expand(item *models.GeneratedItem, kind models.ItemKind) ([]*models.QuestionRow, error) {
	stableID := item.ID
	if stableID == "" {
		stableID = ident.Derive(item.PrimaryText, kind, 0)
	}

	if item.MultiQuestion() {
		rows := make([]*models.QuestionRow, 0, len(item.SubQuestions))
		for i, sq := range item.SubQuestions {
			row, err := a.buildRow(item, kind, stableID, i+1, sq, true)
			if err != nil {
				return nil, err
			}
			rows = append(rows, row)
		}
		return rows, nil
	}

	row, err := a.buildRow(item, kind, stableID, 1, item.SubQuestions[0], false)
	if err != nil {
		return nil, err
	}
	return []*models.QuestionRow{row}, nil
}

// buildRow 构造单行记录
func (a *Assembler) buildRow(item *models.GeneratedItem, kind models.ItemKind, stableID string, ordinal int, sq models.SubQuestion, fanout bool) (*models.QuestionRow, error) {
	optionsJSON, err := json.Marshal(sq.Options)
	if err != nil {
		return nil, fmt.Errorf("序列化选项失败: %w", err)
	}

	metadata := datatypes.JSONMap{
		"stableId": stableID,
	}
	if item.Audio != nil {
		metadata["audioUrl"] = item.Audio.PublicURL
	}
	if item.Topic != nil {
		metadata["topicId"] = item.Topic.TopicID
		metadata["topicName"] = item.Topic.TopicName
	}
	if fanout {
		metadata["parentId"] = stableID
	}

	return &models.QuestionRow{
		ID:            uuid.NewString(),
		QuestionText:  sq.Prompt,
		Options:       datatypes.JSON(optionsJSON),
		CorrectAnswer: strconv.Itoa(sq.CorrectIndex),
		Explanation:   sq.Explanation,
		Type:          string(kind),
		Difficulty:    string(item.Difficulty),
		StableID:      stableID,
		Ordinal:       ordinal,
		Metadata:      metadata,
	}, nil
}

// dropExisting 过滤掉已入库的(stableId, ordinal)组合
func (a *Assembler) dropExisting(tx *gorm.DB, rows []*models.QuestionRow) ([]*models.QuestionRow, error) {
	stableIDs := make([]string, 0, len(rows))
	for _, row := range rows {
		stableIDs = append(stableIDs, row.StableID)
	}

	var existing []models.QuestionRow
	if err := tx.Select("stable_id", "ordinal").Where("stable_id IN ?", stableIDs).Find(&existing).Error; err != nil {
		return nil, fmt.Errorf("查询已有题目失败: %w", err)
	}

	seen := make(map[string]bool, len(existing))
	for _, row := range existing {
		seen[row.StableID+"#"+strconv.Itoa(row.Ordinal)] = true
	}

	var filtered []*models.QuestionRow
	for _, row := range rows {
		if seen[row.StableID+"#"+strconv.Itoa(row.Ordinal)] {
			a.log.Info("跳过重复行", "stableId", row.StableID, "ordinal", row.Ordinal)
			continue
		}
		filtered = append(filtered, row)
	}

	return filtered, nil
}

// Recent 查询最近入库的行，维护任务和API都会用到
func (a *Assembler) Recent(ctx context.Context, limit int) ([]models.QuestionRow, error) {
	var rows []models.QuestionRow
	err := a.db.WithContext(ctx).Order("created_at DESC").Limit(limit).Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("查询题目失败: %w", err)
	}
	return rows, nil
}
