// Package model はドメインモデルを定義する。
package model

import "fmt"

// PortalError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
// VALIDATION_ERRORの場合はDetailsにフィールド単位の詳細を保持する。
type PortalError struct {
	Code     string            // エラーコード
	Message  string            // エラーメッセージ
	Category string            // カテゴリ: auth, validation, network, system
	Action   string            // ユーザー向け対処方法
	Details  map[string]string // フィールド単位の検証エラー詳細（422のみ）
}

// Error はerrorインターフェースを実装する。
func (e *PortalError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeNetwork          = "NETWORK_ERROR"
	ErrCodeUnauthorized     = "UNAUTHORIZED"
	ErrCodeForbidden        = "FORBIDDEN"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeValidation       = "VALIDATION_ERROR"
	ErrCodeRateLimited      = "RATE_LIMITED"
	ErrCodeInternalServer   = "INTERNAL_SERVER_ERROR"
	ErrCodeInvalidRequest   = "INVALID_REQUEST"
	ErrCodeSubmitIncomplete = "SUBMIT_INCOMPLETE"
)

// NewNetworkError はレスポンスがサーバーに到達しなかった場合のエラーを生成する。
func NewNetworkError(reason string) *PortalError {
	return &PortalError{
		Code:     ErrCodeNetwork,
		Message:  fmt.Sprintf("ポータルAPIへの接続に失敗しました: %s", reason),
		Category: "network",
		Action:   "ネットワーク接続を確認し、しばらく待ってから再度お試しください。",
	}
}

// NewUnauthorizedError は401応答に対応するエラーを生成する。
// このエラーを受け取った上位層はセッションクリア（トークン破棄）を実施する。
func NewUnauthorizedError() *PortalError {
	return &PortalError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証が無効です。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewForbiddenError は403応答に対応するエラーを生成する。
func NewForbiddenError() *PortalError {
	return &PortalError{
		Code:     ErrCodeForbidden,
		Message:  "この操作を実行する権限がありません。",
		Category: "auth",
		Action:   "管理者に権限の付与を依頼してください。",
	}
}

// NewNotFoundError は404応答に対応するエラーを生成する。
func NewNotFoundError(resource string) *PortalError {
	return &PortalError{
		Code:     ErrCodeNotFound,
		Message:  fmt.Sprintf("対象が見つかりません: %s", resource),
		Category: "validation",
		Action:   "指定したID・店舗コードを確認してください。",
	}
}

// NewValidationError は422応答に対応するエラーを生成する。
// detailsにはフィールド名からエラー理由へのマッピングを渡す。
func NewValidationError(details map[string]string) *PortalError {
	return &PortalError{
		Code:     ErrCodeValidation,
		Message:  "入力内容に誤りがあります。",
		Category: "validation",
		Action:   "各フィールドのエラー内容を確認して修正してください。",
		Details:  details,
	}
}

// NewRateLimitedError は429応答に対応するエラーを生成する。
func NewRateLimitedError() *PortalError {
	return &PortalError{
		Code:     ErrCodeRateLimited,
		Message:  "リクエストが多すぎます。",
		Category: "network",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewServerError は500以上の応答に対応するエラーを生成する。
func NewServerError(statusCode int) *PortalError {
	return &PortalError{
		Code:     ErrCodeInternalServer,
		Message:  fmt.Sprintf("ポータルAPIでサーバーエラーが発生しました（ステータス %d）。", statusCode),
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewUnknownStatusError は分類外のHTTPステータスに対応するエラーを生成する。
// エラーコードはステータスコードをキーとした HTTP_<code> 形式となる。
func NewUnknownStatusError(statusCode int) *PortalError {
	return &PortalError{
		Code:     fmt.Sprintf("HTTP_%d", statusCode),
		Message:  fmt.Sprintf("ポータルAPIが予期しないステータス %d を返しました。", statusCode),
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewInvalidRequestError はリクエストボディの解析失敗エラーを生成する。
func NewInvalidRequestError(reason string) *PortalError {
	return &PortalError{
		Code:     ErrCodeInvalidRequest,
		Message:  fmt.Sprintf("リクエストの解析に失敗しました: %s", reason),
		Category: "validation",
		Action:   "正しいJSON形式でリクエストしてください。",
	}
}

// NewSubmitIncompleteError は3ステップ未完了のまま確定しようとした場合のエラーを生成する。
func NewSubmitIncompleteError() *PortalError {
	return &PortalError{
		Code:     ErrCodeSubmitIncomplete,
		Message:  "ユーザー・ロール・店舗のすべてを1件以上選択してください。",
		Category: "validation",
		Action:   "未選択のステップを完了してから確定してください。",
	}
}
