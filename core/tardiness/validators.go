package tardiness

import (
	"sort"
	"strings"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/telatku/telatku/core"
)

var (
	reasonTag    = "reason"
	reasonText   = "invalid reason"
	reasonTextID = "alasan tidak valid"
)

// InitValidators registers the tardiness validators and their translations.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(reasonTag, func(fl validator.FieldLevel) bool {
		return Reason(fl.Field().String()).IsValid()
	})
	core.RegisterCustomTranslation(validate, translator, reasonTag, core.Localized(translator, reasonText, reasonTextID))
}

func joinSorted(ss []string) string {
	sorted := append([]string(nil), ss...)
	sort.Strings(sorted)
	return strings.Join(sorted, ",")
}
