package command

import (
	"regexp"
	"strconv"
	"strings"
)

// 自由記述テキストの長さ上限（マークアップ除去後に適用）。
const (
	maxBodyLength        = 4096
	maxTitleLength       = 128
	maxDescriptionLength = 255
)

// usernamePattern はメッセージングネットワークのユーザー名形式。
// 先頭の@は除去してから照合する。
var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_]{5,32}$`)

// parseNumericID は文字列のIDを数値IDへ変換する。
// 数値として解釈できない場合は (0, false) を返す。
func parseNumericID(raw string) (int64, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// normalizeUsername はユーザー名を正規化して検証する。
// 先頭の@はあってもなくても同一の対象に正規化される。
// 不正な形式の場合は ("", false) を返す。
func normalizeUsername(raw string) (string, bool) {
	name := strings.TrimSpace(raw)
	name = strings.TrimPrefix(name, "@")
	if !usernamePattern.MatchString(name) {
		return "", false
	}
	return name, true
}
