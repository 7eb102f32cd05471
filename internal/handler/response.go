// Package handler はゲートウェイAPIのHTTPハンドラーを提供する。
// 選択状態の操作、割り当ての確定・個別操作、オペレーター設定、
// 送信履歴の参照に対応するJSONエンドポイントを含む。
package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/pizzaportal/assignhub/internal/middleware"
	"github.com/pizzaportal/assignhub/internal/model"
)

// validate はリクエストボディ検証用のバリデータ。
// フィールド名はJSONタグ名で報告される。
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decodeAndValidate はリクエストボディをデコードし、バリデーションを実施する。
// 失敗時はハンドラーがそのまま書き込めるPortalErrorを返す。
func decodeAndValidate(r *http.Request, dst any) *model.PortalError {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return model.NewInvalidRequestError(err.Error())
	}
	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			details := make(map[string]string, len(verrs))
			for _, fe := range verrs {
				details[fe.Field()] = validationMessage(fe)
			}
			return model.NewValidationError(details)
		}
		return model.NewInvalidRequestError(err.Error())
	}
	return nil
}

// validationMessage はバリデーションタグからユーザー向けメッセージを生成する。
func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "必須項目です。"
	case "min":
		return fmt.Sprintf("最低%s件必要です。", fe.Param())
	default:
		return "入力値が不正です。"
	}
}

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(v)
}

// handleServiceError はワークフロー層から返されたエラーを
// 適切なHTTPステータスコードの統一エラーフォーマットに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var portalErr *model.PortalError
	if errors.As(err, &portalErr) {
		middleware.WriteErrorResponse(w, mapPortalErrorToHTTPStatus(portalErr), portalErr)
		return
	}

	// PortalError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	middleware.WriteInternalServerError(w)
}

// mapPortalErrorToHTTPStatus はPortalErrorコードからHTTPステータスコードにマッピングする。
// 上流起因のエラー（ネットワーク・サーバーエラー・分類外ステータス）は502となる。
func mapPortalErrorToHTTPStatus(portalErr *model.PortalError) int {
	switch portalErr.Code {
	case model.ErrCodeInvalidRequest:
		return http.StatusBadRequest
	case model.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case model.ErrCodeForbidden:
		return http.StatusForbidden
	case model.ErrCodeNotFound:
		return http.StatusNotFound
	case model.ErrCodeValidation, model.ErrCodeSubmitIncomplete:
		return http.StatusUnprocessableEntity
	case model.ErrCodeRateLimited:
		return http.StatusTooManyRequests
	default:
		// NETWORK_ERROR, INTERNAL_SERVER_ERROR, HTTP_<code>
		return http.StatusBadGateway
	}
}

// requireOperator はコンテキストからオペレーターIDを取得する。
// 取得できない場合は401を書き込み、falseを返す。
func requireOperator(w http.ResponseWriter, r *http.Request) (string, bool) {
	operator, err := middleware.OperatorFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return "", false
	}
	return operator, true
}
