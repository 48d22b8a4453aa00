package security

import (
	"fmt"
	"html"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var whitespace = regexp.MustCompile(`\s+`)

// TextField 用户输入的自由文本（退货原因、备注等）
type TextField struct {
	Name      string
	MaxLength int // 按字符计，0 表示不限制
	Required  bool
}

// Clean 去除控制字符、合并空白并转义 HTML，然后校验长度
func (f TextField) Clean(value string) (string, error) {
	value = Sanitize(value)
	if value == "" {
		if f.Required {
			return "", fmt.Errorf("%s is required", f.Name)
		}
		return "", nil
	}
	if f.MaxLength > 0 && utf8.RuneCountInString(value) > f.MaxLength {
		return "", fmt.Errorf("%s too long, maximum length is %d", f.Name, f.MaxLength)
	}
	return value, nil
}

// Sanitize 清理字符串
func Sanitize(value string) string {
	value = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, value)
	value = whitespace.ReplaceAllString(value, " ")
	return html.EscapeString(strings.TrimSpace(value))
}
