// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, request, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeValidationFailed   = "VALIDATION_FAILED"
	ErrCodeRequestNotFound    = "REQUEST_NOT_FOUND"
	ErrCodeIllegalTransition  = "ILLEGAL_TRANSITION"
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeInvalidCredentials = "INVALID_CREDENTIALS"
	ErrCodeAccountLocked      = "ACCOUNT_LOCKED"
	ErrCodeInvalidRequest     = "INVALID_REQUEST"
	ErrCodeInvalidAttachment  = "INVALID_ATTACHMENT"
)

// NewValidationError は入力検証エラーを生成する。
func NewValidationError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeValidationFailed,
		Message:  fmt.Sprintf("入力内容に誤りがあります: %s", reason),
		Category: "validation",
		Action:   "入力内容を確認して再度送信してください。",
	}
}

// NewRequestNotFoundError はリクエスト未検出エラーを生成する。
func NewRequestNotFoundError(requestID string) *APIError {
	return &APIError{
		Code:     ErrCodeRequestNotFound,
		Message:  fmt.Sprintf("指定されたリクエストが見つかりません: %s", requestID),
		Category: "request",
		Action:   "リクエストIDを確認してください。",
	}
}

// NewIllegalTransitionError は許可されていないステータス遷移のエラーを生成する。
// 拒否された遷移の両端をメッセージに含める。
func NewIllegalTransitionError(from, to Status) *APIError {
	return &APIError{
		Code:     ErrCodeIllegalTransition,
		Message:  fmt.Sprintf("許可されていないステータス遷移です: %s → %s", from, to),
		Category: "request",
		Action:   "現在のステータスから遷移可能なステータスを指定してください。",
	}
}

// NewUnauthorizedError は未認証エラーを生成する。
// 期限切れセッションと不明なセッションを呼び出し側が区別できないよう、内容は常に同一。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "管理者としてログインしてください。",
	}
}

// NewInvalidCredentialsError は認証失敗エラーを生成する。
// ユーザー名の存在有無を漏らさないよう、メッセージは原因を区別しない。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "ユーザー名またはパスワードが正しくありません。",
		Category: "auth",
		Action:   "入力内容を確認して再度ログインしてください。",
	}
}

// NewAccountLockedError はアカウントロック中のエラーを生成する。
func NewAccountLockedError() *APIError {
	return &APIError{
		Code:     ErrCodeAccountLocked,
		Message:  "ログイン失敗が続いたため、アカウントが一時的にロックされています。",
		Category: "auth",
		Action:   "しばらく待ってから再度ログインしてください。",
	}
}

// NewInvalidAttachmentError は添付ファイルが受付対象外の場合のエラーを生成する。
func NewInvalidAttachmentError(filename string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidAttachment,
		Message:  fmt.Sprintf("この形式のファイルは添付できません: %s", filename),
		Category: "validation",
		Action:   "png, jpg, jpeg, gif, pdf, doc, docx, txt, log のいずれかの形式で添付してください。",
	}
}
