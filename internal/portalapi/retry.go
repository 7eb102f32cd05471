package portalapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/pizzaportal/assignhub/internal/model"
)

// classifyStatus はHTTPステータスコードを統一エラーフォーマットに分類する。
// 422はレスポンスボディからフィールド単位の詳細を抽出して保持する。
func classifyStatus(statusCode int, body []byte) *model.PortalError {
	switch {
	case statusCode == http.StatusUnauthorized:
		return model.NewUnauthorizedError()
	case statusCode == http.StatusForbidden:
		return model.NewForbiddenError()
	case statusCode == http.StatusNotFound:
		return model.NewNotFoundError(upstreamMessage(body))
	case statusCode == http.StatusUnprocessableEntity:
		return model.NewValidationError(validationDetails(body))
	case statusCode == http.StatusTooManyRequests:
		return model.NewRateLimitedError()
	case statusCode >= 500:
		return model.NewServerError(statusCode)
	default:
		return model.NewUnknownStatusError(statusCode)
	}
}

// shouldRetry はエラーがリトライ対象かどうかを判定する。
// GET系の読み取りは上流由来の失敗すべてをリトライ対象とする
// （表面化する前に上限回数まで透過的に再試行する契約）。
// POST系の書き込みはネットワークエラー・429・5xxのみリトライし、
// 401/403/404/422は再試行しても結果が変わらないため即座に表面化させる。
func shouldRetry(method string, err error) bool {
	var portalErr *model.PortalError
	if !errors.As(err, &portalErr) {
		// URL構築やボディのエンコード失敗など、上流に届く前のエラー
		return false
	}
	if method == http.MethodGet {
		return true
	}
	switch portalErr.Code {
	case model.ErrCodeNetwork, model.ErrCodeRateLimited, model.ErrCodeInternalServer:
		return true
	default:
		return false
	}
}

// backoffDelay はリトライ回数に応じた線形バックオフ遅延を計算する。
// attemptは0始まりで、遅延は (attempt+1) × base となる（1秒, 2秒, 3秒, ...）。
func backoffDelay(base time.Duration, attempt int) time.Duration {
	return time.Duration(attempt+1) * base
}

// upstreamMessage はエラーレスポンスのボディからメッセージを取り出す。
// パースできない場合は空文字列を返す。
func upstreamMessage(body []byte) string {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return ""
	}
	return env.Message
}

// validationDetails は422レスポンスのボディからフィールド単位の詳細を取り出す。
// パースできない場合はnilを返す。
func validationDetails(body []byte) map[string]string {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil
	}
	return env.Errors
}
