package security

import (
	"html"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizerService はユーザー入力のプレーンテキスト化を行うインターフェース。
// 表示名、グループ名、グループ説明の保存前に使用される。
type TextSanitizerService interface {
	// Sanitize はHTMLタグをすべて除去し、前後の空白を取り除いたテキストを返す。
	// 連続する空白は1つにまとめ、maxRunesを超える部分は切り詰める（0以下は無制限）。
	Sanitize(raw string, maxRunes int) string
}

// textSanitizer はTextSanitizerServiceの実装。
// bluemondayのStrictPolicyはタグを許可しないため、要素と属性はすべて除去される。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerServiceの新しいインスタンスを生成する。
func NewTextSanitizer() *textSanitizer {
	return &textSanitizer{policy: bluemonday.StrictPolicy()}
}

// Sanitize はrawをプレーンテキストに変換する。
// 結果はJSONでクライアントに渡すため、bluemondayが付与する文字参照は元の文字に戻す。
func (s *textSanitizer) Sanitize(raw string, maxRunes int) string {
	if raw == "" {
		return ""
	}
	text := html.UnescapeString(s.policy.Sanitize(raw))
	text = strings.Join(strings.Fields(text), " ")

	if maxRunes > 0 && utf8.RuneCountInString(text) > maxRunes {
		runes := []rune(text)
		text = strings.TrimSpace(string(runes[:maxRunes]))
	}
	return text
}
