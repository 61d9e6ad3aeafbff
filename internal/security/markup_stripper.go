// Package security はアプリケーションのセキュリティ機能を提供する。
//
// MarkupStripperService はコマンドラッパーに渡される自由記述テキスト
// （メッセージ本文、チャンネルタイトル・説明）からマークアップを除去し、
// 外部ネットワークへプレーンテキストのみを送出することを保証する。
// bluemondayのStrictPolicyを使用し、全てのHTMLタグと属性を除去する。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// MarkupStripperService は自由記述テキストのマークアップ除去インターフェース。
// コマンドラッパーの入力検証で、長さ検査の前に適用される。
type MarkupStripperService interface {
	// Strip は入力からHTMLタグ・属性を全て除去したプレーンテキストを返す。
	// エンティティ参照（&amp;等）は元の文字に復元する。
	// 前後の空白は取り除く。空文字列の入力には空文字列を返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Strip(raw string) string
}

// markupStripper はMarkupStripperServiceの実装。
// bluemondayのポリシーを保持し、スレッドセーフに除去処理を行う。
type markupStripper struct {
	policy *bluemonday.Policy
}

// NewMarkupStripper はMarkupStripperServiceの新しいインスタンスを生成する。
// StrictPolicy（許可タグなし）を用いるため、<b>や<script>を含むあらゆる
// タグが出力から消える。タグの中身のテキストは保持される。
func NewMarkupStripper() *markupStripper {
	return &markupStripper{
		policy: bluemonday.StrictPolicy(),
	}
}

// Strip は入力からマークアップを除去したプレーンテキストを返す。
func (s *markupStripper) Strip(raw string) string {
	stripped := s.policy.Sanitize(raw)
	// bluemondayは&をエンティティ化するため、プレーンテキストに戻す
	return strings.TrimSpace(html.UnescapeString(stripped))
}
