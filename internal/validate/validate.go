// Package validate はフォーム入力の検証を提供する。
// 構造体のvalidateタグを評価し、フィールドごとの表示言語メッセージに
// 変換する。検証に失敗した入力はネットワークに到達させない（呼び出し側は
// 検証を通過した場合のみAPI呼び出しを行う）。
package validate

import (
	"strings"

	"github.com/go-playground/validator/v10"
)

// FieldErrors はフィールド名から表示言語のエラーメッセージへのマップ。
type FieldErrors map[string]string

// Error はerrorインターフェースの実装。
// フィールド順は不定のため、メッセージをソートせずに連結する。
func (fe FieldErrors) Error() string {
	parts := make([]string, 0, len(fe))
	for _, message := range fe {
		parts = append(parts, message)
	}
	return strings.Join(parts, "; ")
}

// Validator はvalidateタグ付き構造体の検証器。
type Validator struct {
	validate *validator.Validate
}

// New はValidatorを生成する。
func New() *Validator {
	return &Validator{
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Struct は構造体のvalidateタグを評価する。
// 違反がある場合はFieldErrorsを返し、問題がない場合はnilを返す。
func (v *Validator) Struct(s any) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	validationErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}

	fields := make(FieldErrors, len(validationErrs))
	for _, fe := range validationErrs {
		fields[fe.Field()] = translateFieldError(fe)
	}
	return fields
}

// translateFieldError は検証違反を表示言語のメッセージへ翻訳する。
// 元システムのフォームが表示していた文言をそのまま引き継ぐ。
func translateFieldError(fe validator.FieldError) string {
	switch fe.Field() {
	case "Email":
		if fe.Tag() == "required" {
			return "Email é obrigatório"
		}
		return "Email inválido"
	case "Password":
		if fe.Tag() == "required" {
			return "Senha é obrigatória"
		}
		return "Senha deve ter pelo menos 6 caracteres"
	case "FullName":
		return "Nome completo é obrigatório"
	case "Role":
		return "Função deve ser admin ou user"
	default:
		return "Campo inválido: " + fe.Field()
	}
}
