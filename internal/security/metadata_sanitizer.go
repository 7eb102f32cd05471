// Package security はアプリケーションのセキュリティ機能を提供する。
//
// MetadataSanitizerService は割り当てメタデータ（備考や開始日などの自由入力値）を
// サニタイズし、HTMLタグを一切含まないプレーンテキストに正規化する。
// メタデータは画面にそのまま表示されるため、許可タグを持たない
// bluemondayのStrictPolicyですべてのタグを除去する。
package security

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// MetadataSanitizerService は自由入力メタデータのサニタイズ機能のインターフェースを定義する。
// キャッシュへの格納前および上流API送信前に使用される。
type MetadataSanitizerService interface {
	// Sanitize はメタデータ値からすべてのHTMLタグを除去したプレーンテキストを返す。
	// script, img, aを含む一切のタグを通過させない。
	// 前後の空白は除去される。
	// 空文字列の入力には空文字列を返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(raw string) string
}

// metadataSanitizer はMetadataSanitizerServiceの実装。
// bluemondayのStrictPolicyを保持し、スレッドセーフにサニタイズ処理を行う。
type metadataSanitizer struct {
	policy *bluemonday.Policy
}

// NewMetadataSanitizer はMetadataSanitizerServiceの新しいインスタンスを生成する。
// StrictPolicyは許可タグを持たないため、タグはすべて除去されテキスト内容のみが残る。
func NewMetadataSanitizer() *metadataSanitizer {
	return &metadataSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize はメタデータ値をサニタイズしてプレーンテキストを返す。
func (s *metadataSanitizer) Sanitize(raw string) string {
	return strings.TrimSpace(s.policy.Sanitize(raw))
}
