package portalapi

import "context"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// tokenContextKey はリクエストコンテキストにBearerトークンを格納するためのキー。
var tokenContextKey = contextKey("portal_token")

// ContextWithToken はコンテキストにBearerトークンを注入する。
// トークンの発行・保管は外部のトークンストアの責務であり、
// このパッケージは受け取った値をそのまま上流に転送するだけとなる。
func ContextWithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenContextKey, token)
}

// TokenFromContext はコンテキストからBearerトークンを取得する。
// トークンが存在しない場合は第2戻り値がfalseとなる。
func TokenFromContext(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(tokenContextKey).(string)
	if !ok || token == "" {
		return "", false
	}
	return token, true
}
