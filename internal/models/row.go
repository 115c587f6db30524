package models

import (
	"time"

	"gorm.io/datatypes"
)

// QuestionRow 持久化到数据库的一行题目记录
// 一道含N个小题的题目会展开为N行，metadata中记录parentId指回原题
type QuestionRow struct {
	ID            string            `gorm:"primaryKey" json:"id"`
	QuestionText  string            `json:"question_text"`
	Options       datatypes.JSON    `json:"options"`
	CorrectAnswer string            `json:"correct_answer"`
	Explanation   string            `json:"explanation"`
	Type          string            `json:"type"`
	Difficulty    string            `json:"difficulty"`
	StableID      string            `gorm:"index:idx_stable_ordinal" json:"stable_id"`
	Ordinal       int               `gorm:"index:idx_stable_ordinal" json:"ordinal"`
	Metadata      datatypes.JSONMap `json:"metadata"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// TableName 指定表名
func (QuestionRow) TableName() string {
	return "quiz_questions"
}
