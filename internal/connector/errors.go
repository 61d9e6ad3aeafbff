package connector

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
)

// ErrNotAuthorized はログインしていないハンドルで認可が必要な操作を
// 呼び出した場合にブリッジから返るエラー。
var ErrNotAuthorized = errors.New("connector: not authorized")

// FloodWaitError はコネクタのレート制限（flood wait）を表す。
// Secondsは再試行まで待機すべき秒数。自動リトライは行わず、
// 呼び出し元へ待機時間をそのまま通知する。
type FloodWaitError struct {
	Seconds int
}

// Error はerrorインターフェースを実装する。
func (e *FloodWaitError) Error() string {
	return fmt.Sprintf("connector: flood wait, retry after %d seconds", e.Seconds)
}

// floodWaitPattern はエラーテキストから待機秒数を抽出するパターン。
// ブリッジが構造化フィールドを返さない場合のフォールバック。
var floodWaitPattern = regexp.MustCompile(`FLOOD_WAIT_(\d+)`)

// ParseFloodWait はエラーテキストからflood waitの待機秒数を抽出する。
// 該当しないテキストには (0, false) を返す。
func ParseFloodWait(message string) (int, bool) {
	m := floodWaitPattern.FindStringSubmatch(message)
	if m == nil {
		return 0, false
	}
	seconds, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return seconds, true
}

// AsFloodWait はエラーがレート制限に該当するかを判定し、待機秒数を返す。
// 型付きのFloodWaitErrorを優先し、エラーテキストのパターン照合を
// フォールバックとして使用する。
func AsFloodWait(err error) (int, bool) {
	if err == nil {
		return 0, false
	}
	var fw *FloodWaitError
	if errors.As(err, &fw) {
		return fw.Seconds, true
	}
	return ParseFloodWait(err.Error())
}
