// Package forms validates typed form payloads against tag-declared rules and
// returns field errors keyed by JSON name, translated to English.
package forms

import (
	"errors"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	enTranslations "github.com/go-playground/validator/v10/translations/en"

	"portal/internal/domain/therapist"
)

// custom validation tags & texts
const (
	notBlankTag      = "notblank"
	notBlankText     = "{0} cannot be blank"
	alphaNumDashTag  = "alphanumdash"
	alphaNumDashText = "{0} may only contain letters, digits and dashes"
	minPriceTag      = "min_price_lte_price"
	minPriceText     = "{0} cannot be higher than the session price"
	requiredText     = "{0} is required"
)

var alphaNumDashRegex = regexp.MustCompile(`^[A-Za-z0-9-]+$`)

// FieldErrors maps a JSON field name to a human-readable message.
type FieldErrors map[string]string

// Error implements error.
func (fe FieldErrors) Error() string {
	parts := make([]string, 0, len(fe))
	for k, v := range fe {
		parts = append(parts, k+": "+v)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Validator wraps a configured validator and its English translator.
type Validator struct {
	validate   *validator.Validate
	translator ut.Translator
}

// New builds a Validator with the portal's custom rules registered.
// POST: returned Validator is safe for concurrent use
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	english := en.New()
	uni := ut.New(english, english)
	translator, _ := uni.GetTranslator("en")
	_ = enTranslations.RegisterDefaultTranslations(v, translator)

	// Use JSON tag names for errors instead of Go struct names.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	_ = v.RegisterValidation(notBlankTag, notBlank)
	_ = v.RegisterValidation(alphaNumDashTag, func(fl validator.FieldLevel) bool {
		return alphaNumDashRegex.MatchString(fl.Field().String())
	})
	v.RegisterStructValidation(ratesStructValidation, therapist.Rates{})

	registerTranslation(v, translator, notBlankTag, notBlankText, false)
	registerTranslation(v, translator, alphaNumDashTag, alphaNumDashText, false)
	registerTranslation(v, translator, minPriceTag, minPriceText, false)
	registerTranslation(v, translator, "required", requiredText, true)
	registerTranslation(v, translator, "required_if", requiredText, true)

	return &Validator{validate: v, translator: translator}
}

// Struct validates s and returns FieldErrors, or nil when s is valid.
// PRE: s is a struct or pointer to struct
func (v *Validator) Struct(s any) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	out := make(FieldErrors, len(verrs))
	for _, fe := range verrs {
		key := fieldPath(fe.Namespace())
		if _, exists := out[key]; exists {
			continue
		}
		out[key] = fe.Translate(v.translator)
	}
	return out
}

// fieldPath drops the top-level struct name: "Personal.email" -> "email".
func fieldPath(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func registerTranslation(v *validator.Validate, t ut.Translator, tag, text string, override bool) {
	_ = v.RegisterTranslation(tag, t,
		func(t ut.Translator) error { return t.Add(tag, text, override) },
		func(t ut.Translator, fe validator.FieldError) string {
			s, _ := t.T(tag, fe.Field())
			return s
		},
	)
}

// notBlank rejects strings made only of whitespace.
func notBlank(fl validator.FieldLevel) bool {
	return strings.TrimSpace(fl.Field().String()) != ""
}

// ratesStructValidation enforces that a sliding-scale minimum does not exceed the list price.
func ratesStructValidation(sl validator.StructLevel) {
	r := sl.Current().Interface().(therapist.Rates)
	if r.SlidingScale && r.MinPrice > r.SessionPrice {
		sl.ReportError(r.MinPrice, "min_price", "MinPrice", minPriceTag, "")
	}
}
