package ident

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"lingua-quiz/internal/models"
)

// digestLen 截断后的摘要长度（十六进制字符数）
const digestLen = 12

// kindPrefixes 各题目类型的固定前缀
var kindPrefixes = map[models.ItemKind]string{
	models.KindComprehensionAudio: "lc",
	models.KindContinuationAudio:  "ct",
	models.KindTextOnly:           "tv",
}

// Derive 根据文本内容派生稳定ID
// 纯函数：相同输入永远得到相同输出，重跑批次时可复用已合成的音频
func Derive(text string, kind models.ItemKind, index int) string {
	prefix, ok := kindPrefixes[kind]
	if !ok {
		prefix = "q"
	}

	sum := sha256.Sum256([]byte(text))
	digest := hex.EncodeToString(sum[:])[:digestLen]

	return fmt.Sprintf("%s-%d-%s", prefix, index, digest)
}
