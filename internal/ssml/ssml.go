package ssml

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ErrMalformedInput 文本包含不成对的标记字符，无法生成合法SSML
var ErrMalformedInput = errors.New("文本包含不成对的标记字符")

// blankRun 连续下划线构成一个填空标记
var blankRun = regexp.MustCompile(`_+`)

// Build 将原始文本转换为SSML片段
// 每一段连续下划线替换为一个定时停顿；没有填空时原样包裹
func Build(text string, pauseMs int) (string, error) {
	body, err := renderBody(text, pauseMs)
	if err != nil {
		return "", err
	}

	ssml := fmt.Sprintf(`<speak version="1.0" xmlns="http://www.w3.org/2001/10/synthesis" xml:lang="en-US">%s</speak>`, body)
	return ssml, nil
}

// Document 生成带语音和韵律设置的完整SSML文档
func Document(text string, pauseMs int, voice, locale, rate, pitch string) (string, error) {
	body, err := renderBody(text, pauseMs)
	if err != nil {
		return "", err
	}

	ssml := fmt.Sprintf(`
<speak version="1.0" xmlns="http://www.w3.org/2001/10/synthesis" xml:lang="%s">
	<voice name="%s">
		<prosody rate="%s" pitch="%s">%s</prosody>
	</voice>
</speak>`, locale, voice, rate, pitch, body)
	return ssml, nil
}

// renderBody 转义文本并把填空标记替换为停顿指令
func renderBody(text string, pauseMs int) (string, error) {
	// 不成对的尖括号无法通过转义修复，直接拒绝
	if strings.Count(text, "<") != strings.Count(text, ">") {
		return "", ErrMalformedInput
	}

	breakTag := fmt.Sprintf(`<break time="%s"/>`, formatPause(pauseMs))

	var builder strings.Builder
	last := 0
	for _, loc := range blankRun.FindAllStringIndex(text, -1) {
		builder.WriteString(escapeXML(text[last:loc[0]]))
		builder.WriteString(breakTag)
		last = loc[1]
	}
	builder.WriteString(escapeXML(text[last:]))

	return builder.String(), nil
}

// formatPause 按语音服务接受的时长语法格式化停顿
// 1000ms以上用秒表示，否则用毫秒
func formatPause(pauseMs int) string {
	if pauseMs >= 1000 {
		if pauseMs%1000 == 0 {
			return fmt.Sprintf("%ds", pauseMs/1000)
		}
		return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.3f", float64(pauseMs)/1000), "0"), ".") + "s"
	}
	return fmt.Sprintf("%dms", pauseMs)
}

// StripRichText 去除上游生成文本中携带的HTML标记，保留纯文本
func StripRichText(text string) string {
	if !strings.Contains(text, "<") {
		return text
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(text))
	if err != nil {
		return text
	}

	return strings.TrimSpace(doc.Text())
}

// escapeXML 转义XML特殊字符
func escapeXML(text string) string {
	text = strings.ReplaceAll(text, "&", "&amp;")
	text = strings.ReplaceAll(text, "<", "&lt;")
	text = strings.ReplaceAll(text, ">", "&gt;")
	text = strings.ReplaceAll(text, "\"", "&quot;")
	text = strings.ReplaceAll(text, "'", "&apos;")
	return text
}
