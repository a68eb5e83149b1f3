package core

import (
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/locales/en"
	"github.com/go-playground/locales/id"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
	id_translations "github.com/go-playground/validator/v10/translations/id"
)

const LocaleID = "id"

var (
	// custom validation tags & texts
	notBlankTag    = "notblank"
	notBlankText   = "this field cannot be blank"
	notBlankTextID = "kolom ini tidak boleh kosong"

	phoneTag    = "phone"
	phoneText   = "invalid phone number"
	phoneTextID = "format nomor HP tidak valid"
	phoneRegex  = regexp.MustCompile(`^[\d\s\-\+\(\)]+$`)

	requiredTag     = "required"
	requiredWithTag = "required_with"
	requiredText    = "this field is required"
	requiredTextID  = "kolom ini wajib diisi"
)

// NewTranslator returns the translator of locale ("en" or "id"), english when unknown.
func NewTranslator(locale string) ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en, id.New())
	translator, found := uni.GetTranslator(locale)
	if !found {
		translator, _ = uni.GetTranslator("en")
	}
	return translator
}

// Localized picks the text matching the translator's locale.
func Localized(translator ut.Translator, text, textID string) string {
	if translator.Locale() == LocaleID {
		return textID
	}
	return text
}

// InitValidators instantiates the validator for use.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	if translator.Locale() == LocaleID {
		_ = id_translations.RegisterDefaultTranslations(validate, translator)
	} else {
		_ = en_translations.RegisterDefaultTranslations(validate, translator)
	}

	// Use JSON tag names for errors instead of Go struct names.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	// register custom validators
	_ = validate.RegisterValidation(notBlankTag, notBlankValidation)
	RegisterCustomTranslation(validate, translator, notBlankTag, Localized(translator, notBlankText, notBlankTextID))

	_ = validate.RegisterValidation(phoneTag, phoneValidation)
	RegisterCustomTranslation(validate, translator, phoneTag, Localized(translator, phoneText, phoneTextID))

	reqText := Localized(translator, requiredText, requiredTextID)
	RegisterCustomTranslation(validate, translator, requiredTag, reqText, true)
	RegisterCustomTranslation(validate, translator, requiredWithTag, reqText, true)
}

// RegisterCustomTranslation registers a custom translation for the specified validation tag.
func RegisterCustomTranslation(validate *validator.Validate, translator ut.Translator, tag, text string, override ...bool) {
	var ovrd bool
	if len(override) > 0 {
		ovrd = override[0]
	}
	_ = validate.RegisterTranslation(
		tag, translator,
		func(t ut.Translator) error { return t.Add(tag, text, ovrd) },
		func(t ut.Translator, fe validator.FieldError) string {
			s, _ := t.T(tag, fe.Field())
			return s
		},
	)
}

// IsPhone reports whether s only holds digits, spaces and the + - ( ) signs.
func IsPhone(s string) bool {
	return phoneRegex.MatchString(s)
}

// Custom Global Validators

func notBlankValidation(fl validator.FieldLevel) bool {
	if str, ok := fl.Field().Interface().(string); ok {
		return strings.TrimSpace(str) != ""
	}
	return false
}

// phoneValidation accepts empty values; pair it with `required` when mandatory.
func phoneValidation(fl validator.FieldLevel) bool {
	s := strings.TrimSpace(fl.Field().String())
	return s == "" || IsPhone(s)
}
