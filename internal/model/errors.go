// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, connector, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeValidationFailure = "VALIDATION_FAILURE"
	ErrCodeRateLimited       = "RATE_LIMITED"
	ErrCodeConnectorFailure  = "CONNECTOR_FAILURE"
	ErrCodeNotAuthorized     = "NOT_AUTHORIZED"
	ErrCodeSessionNotFound   = "SESSION_NOT_FOUND"
	ErrCodeUserNotFound      = "USER_NOT_FOUND"
)

// NewValidationError は入力検証エラーを生成する。ネットワーク呼び出し前に返される。
func NewValidationError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeValidationFailure,
		Message:  message,
		Category: "validation",
		Action:   "Correct the input and try again.",
	}
}

// NewRateLimitedError はコネクタのレート制限エラーを生成する。
// waitSecondsはコネクタが要求した待機秒数。自動リトライは行わない。
func NewRateLimitedError(waitSeconds int) *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  fmt.Sprintf("The messaging network is rate limiting this account. Wait %d seconds before retrying.", waitSeconds),
		Category: "connector",
		Action:   "Wait for the indicated time and try again.",
	}
}

// NewConnectorFailureError はコネクタ障害エラーを生成する。
// 詳細はログと診断シンクのみに記録し、ユーザーには短い文を返す。
func NewConnectorFailureError() *APIError {
	return &APIError{
		Code:     ErrCodeConnectorFailure,
		Message:  "Could not reach the messaging network.",
		Category: "connector",
		Action:   "Try again in a few moments.",
	}
}

// NewNotAuthorizedError は未ログインハンドルでの操作エラーを生成する。
func NewNotAuthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeNotAuthorized,
		Message:  "This account is not connected to the messaging network.",
		Category: "auth",
		Action:   "Link the account first via QR code or phone login.",
	}
}

// NewSessionNotFoundError はセッションが見つからない場合のエラーを生成する。
func NewSessionNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeSessionNotFound,
		Message:  "No active session was found.",
		Category: "auth",
		Action:   "Start a new session and try again.",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "The user does not exist.",
		Category: "auth",
		Action:   "Check the user ID.",
	}
}
