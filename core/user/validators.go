package user

import (
	"fmt"
	"strings"
	"unicode"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pmezard/go-difflib/difflib"

	"github.com/telatku/telatku/core"
)

var (
	roleTag    = "role"
	roleText   = "invalid role"
	roleTextID = "peran tidak valid"

	// password policy
	pwdMinLen      = 8
	pwdMinLenTag   = "pwdminlen"
	pwdMinLenText  = fmt.Sprintf("password must contain at least %d characters", pwdMinLen)
	pwdMinLenTxtID = fmt.Sprintf("kata sandi minimal %d karakter", pwdMinLen)

	pwdNoSpaceTag    = "pwdnospace"
	pwdNoSpaceText   = "password must not contain whitespace"
	pwdNoSpaceTextID = "kata sandi tidak boleh mengandung spasi"

	pwdNotAllNumTag    = "pwdnotallnum"
	pwdNotAllNumText   = "password cannot be entirely numeric"
	pwdNotAllNumTextID = "kata sandi tidak boleh hanya angka"

	pwdMaxSim        = .7
	pwdAttrSimTag    = "pwdtoosim"
	pwdAttrSimText   = "password cannot be similar to user attributes"
	pwdAttrSimTextID = "kata sandi terlalu mirip dengan data pengguna"

	pwdPolicyTexts = map[string]string{
		pwdMinLenTag:    pwdMinLenText,
		pwdNoSpaceTag:   pwdNoSpaceText,
		pwdNotAllNumTag: pwdNotAllNumText,
		pwdAttrSimTag:   pwdAttrSimText,
	}
)

// InitValidators registers the user validators and their translations.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(roleTag, roleValidation)
	core.RegisterCustomTranslation(validate, translator, roleTag, core.Localized(translator, roleText, roleTextID))

	validate.RegisterStructValidation(userStructValidation, NewUser{}, UpdateUser{})
	core.RegisterCustomTranslation(validate, translator, pwdMinLenTag, core.Localized(translator, pwdMinLenText, pwdMinLenTxtID))
	core.RegisterCustomTranslation(validate, translator, pwdNoSpaceTag, core.Localized(translator, pwdNoSpaceText, pwdNoSpaceTextID))
	core.RegisterCustomTranslation(validate, translator, pwdNotAllNumTag, core.Localized(translator, pwdNotAllNumText, pwdNotAllNumTextID))
	core.RegisterCustomTranslation(validate, translator, pwdAttrSimTag, core.Localized(translator, pwdAttrSimText, pwdAttrSimTextID))
}

// Custom Validators

func roleValidation(fl validator.FieldLevel) bool {
	return Role(fl.Field().String()).IsValid()
}

// userStructValidation does struct level validation on NewUser and UpdateUser structs.
func userStructValidation(sl validator.StructLevel) {
	switch usr := sl.Current().Interface().(type) {
	case NewUser:
		if tag := checkPassword(usr.Password, usr.FullName, usr.Email); tag != "" {
			sl.ReportError(usr.Password, "password", "Password", tag, "")
		}
	case UpdateUser:
		if usr.Password == "" {
			return
		}
		if tag := checkPassword(usr.Password, usr.FullName, usr.Email); tag != "" {
			sl.ReportError(usr.Password, "password", "Password", tag, "")
		}
	}
}

// checkPassword applies the password policy to pwd and returns the tag of the first broken rule:
// - minLen: 8
// - no whitespace
// - not all numeric
// - not similar to the user attributes
func checkPassword(pwd string, attrs ...string) string {
	chars := []rune(pwd)
	if len(chars) < pwdMinLen {
		return pwdMinLenTag
	}

	var digitCount int
	for _, char := range chars {
		if unicode.IsSpace(char) {
			return pwdNoSpaceTag
		}
		if unicode.IsDigit(char) {
			digitCount++
		}
	}
	if digitCount == len(chars) {
		return pwdNotAllNumTag
	}

	lpwd := strings.ToLower(pwd)
	for _, attr := range attrs {
		if attr == "" {
			continue
		}
		attr = strings.ToLower(attr)
		ratio := difflib.NewMatcher(strings.Split(lpwd, ""), strings.Split(attr, "")).QuickRatio()
		if ratio >= pwdMaxSim {
			return pwdAttrSimTag
		}
	}
	return ""
}
