// Package security はアプリケーションのセキュリティ機能を提供する。
//
// 面接の説明文やコメントのようにユーザーが入力したテキストは、
// bluemondayの許可リストポリシーでサニタイズしてから保存する。
package security

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// ContentSanitizer はユーザー入力のサニタイズ機能のインターフェース。
type ContentSanitizer interface {
	// SanitizeRichText は説明文向けに最小限の書式タグのみを残す。
	// 許可タグ: p, br, ul, ol, li, strong, em, code, pre, a(href)
	SanitizeRichText(raw string) string

	// SanitizeText はタイトルやコメント向けに全てのHTMLタグを除去し、前後の空白を取り除く。
	SanitizeText(raw string) string
}

// contentSanitizer はContentSanitizerの実装。
// bluemondayのポリシーはゴルーチンセーフ。
type contentSanitizer struct {
	rich  *bluemonday.Policy
	plain *bluemonday.Policy
}

// NewContentSanitizer はContentSanitizerの新しいインスタンスを生成する。
func NewContentSanitizer() ContentSanitizer {
	rich := bluemonday.NewPolicy()
	rich.AllowElements("p", "br", "ul", "ol", "li", "strong", "em", "code", "pre")
	rich.AllowAttrs("href").OnElements("a")
	rich.AllowURLSchemes("https", "http")
	rich.AllowRelativeURLs(false)
	rich.AddTargetBlankToFullyQualifiedLinks(true)
	rich.RequireNoReferrerOnLinks(true)

	return &contentSanitizer{
		rich:  rich,
		plain: bluemonday.StrictPolicy(),
	}
}

// SanitizeRichText は説明文をサニタイズする。
func (s *contentSanitizer) SanitizeRichText(raw string) string {
	return strings.TrimSpace(s.rich.Sanitize(raw))
}

// SanitizeText は全てのタグを除去する。
func (s *contentSanitizer) SanitizeText(raw string) string {
	return strings.TrimSpace(s.plain.Sanitize(raw))
}
