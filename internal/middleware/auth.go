// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/pizzaportal/assignhub/internal/model"
	"github.com/pizzaportal/assignhub/internal/portalapi"
)

const bearerPrefix = "Bearer "

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// operatorContextKey はリクエストコンテキストにオペレーターIDを格納するためのキー。
var operatorContextKey = contextKey("operator_id")

// NewAuthMiddleware はAuthorizationヘッダーのBearerトークンを検証するミドルウェアを返す。
// トークンの署名検証は上流のPortal APIが行うため、ここでは形式と有効期限のみを
// 事前チェックし、期限切れトークンを上流に転送する前に弾く。
// オペレーターID（JWTのsubクレーム）と生トークンをリクエストコンテキストに注入する。
// 未認証リクエストには401 Unauthorizedを統一エラーフォーマットで返す。
func NewAuthMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// 1. AuthorizationヘッダーからBearerトークンを取得
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, bearerPrefix) {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}
			tokenString := strings.TrimPrefix(header, bearerPrefix)
			if tokenString == "" {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			// 2. トークンの形式と有効期限を事前チェック
			claims := &jwt.RegisteredClaims{}
			if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err != nil {
				slog.Warn("malformed bearer token",
					slog.String("error", err.Error()),
				)
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}
			if claims.ExpiresAt != nil && claims.ExpiresAt.Before(time.Now()) {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}
			if claims.Subject == "" {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			// 3. オペレーターIDと生トークンをコンテキストに注入
			ctx := context.WithValue(r.Context(), operatorContextKey, claims.Subject)
			ctx = portalapi.ContextWithToken(ctx, tokenString)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OperatorFromContext はリクエストコンテキストからオペレーターIDを取得する。
// 認証ミドルウェアを通過したリクエストでのみ有効。
func OperatorFromContext(ctx context.Context) (string, error) {
	operatorID, ok := ctx.Value(operatorContextKey).(string)
	if !ok || operatorID == "" {
		return "", fmt.Errorf("operator ID not found in context")
	}
	return operatorID, nil
}

// ContextWithOperator はコンテキストにオペレーターIDを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithOperator(ctx context.Context, operatorID string) context.Context {
	return context.WithValue(ctx, operatorContextKey, operatorID)
}
