package core

import (
	"reflect"
	"regexp"
	"strings"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

// custom validation tags
const (
	alphaNumUnderTag = "alphanum_"
	siretTag         = "siret"
)

var (
	alphaNumUnderRegex = regexp.MustCompile(`^[\w\s]+$`)
	siretRegex         = regexp.MustCompile(`^\d{14}$`)

	// error texts keyed by tag; required variants override the default
	// translation so the text stays consistent across tags
	customTexts = map[string]string{
		alphaNumUnderTag: "only alphanumeric characters and underscores are allowed",
		siretTag:         "a SIRET number must be exactly 14 digits",
	}
	overrideTexts = map[string]string{
		"required":      "this field is required",
		"required_with": "this field is required",
	}
)

// InitValidators wires the custom validators and their translations into
// validate. Field names in errors come from json tags, not Go identifiers.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = en_translations.RegisterDefaultTranslations(validate, translator)

	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	_ = validate.RegisterValidation(alphaNumUnderTag, func(fl validator.FieldLevel) bool {
		return alphaNumUnderRegex.MatchString(fl.Field().String())
	})
	_ = validate.RegisterValidation(siretTag, func(fl validator.FieldLevel) bool {
		return siretRegex.MatchString(fl.Field().String())
	})

	for tag, text := range customTexts {
		registerTranslation(validate, translator, tag, text, false)
	}
	for tag, text := range overrideTexts {
		registerTranslation(validate, translator, tag, text, true)
	}
}

func registerTranslation(validate *validator.Validate, translator ut.Translator, tag, text string, override bool) {
	_ = validate.RegisterTranslation(
		tag, translator,
		func(t ut.Translator) error { return t.Add(tag, text, override) },
		func(t ut.Translator, fe validator.FieldError) string {
			s, _ := t.T(tag, fe.Field())
			return s
		},
	)
}
