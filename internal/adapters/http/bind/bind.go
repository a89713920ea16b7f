// Package bind decodes JSON request bodies and validates them with struct tags.
package bind

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

// DefaultMaxBytes caps request bodies.
const DefaultMaxBytes = 1 << 20

// Sentinel kinds for binding failures.
var (
	ErrBadJSON    = errors.New("invalid JSON body")
	ErrValidation = errors.New("validation failed")
)

// FieldError names the first request field that failed validation.
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string { return e.Message }

// Is matches ErrValidation.
func (e *FieldError) Is(target error) bool { return target == ErrValidation }

// Validator holds a validator and its English translator.
type Validator struct {
	validate   *validator.Validate
	translator ut.Translator
}

var (
	once sync.Once
	svc  *Validator
)

// Get returns the process-wide validator, initializing it on first use.
func Get() *Validator {
	once.Do(func() {
		loc := en.New()
		trans, _ := ut.New(loc, loc).GetTranslator("en")

		v := validator.New(validator.WithRequiredStructEnabled())
		// messages use json names
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			tag := fld.Tag.Get("json")
			if tag == "-" || tag == "" {
				return fld.Name
			}
			if idx := strings.Index(tag, ","); idx >= 0 {
				tag = tag[:idx]
			}
			return tag
		})
		_ = en_translations.RegisterDefaultTranslations(v, trans)
		registerShort(v, trans, "min", "{0} must be at least {1}")
		registerShort(v, trans, "max", "{0} must be at most {1}")
		registerShort(v, trans, "datetime", "{0} must be a date formatted as {1}")

		svc = &Validator{validate: v, translator: trans}
	})
	return svc
}

// Struct validates v and returns a *FieldError for the first failure.
func (s *Validator) Struct(v any) error {
	err := s.validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return &FieldError{Field: fieldPath(fe), Message: fe.Translate(s.translator)}
	}
	return fmt.Errorf("%w: %w", ErrValidation, err)
}

// ParseJSON decodes the body into T, rejecting unknown fields and trailing
// data, then validates it.
func ParseJSON[T any](r *http.Request) (T, error) {
	var dst T
	defer r.Body.Close()

	dec := json.NewDecoder(io.LimitReader(r.Body, DefaultMaxBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&dst); err != nil {
		return dst, fmt.Errorf("%w: %w", ErrBadJSON, err)
	}
	if dec.More() {
		return dst, fmt.Errorf("%w: unexpected trailing data", ErrBadJSON)
	}
	if err := Get().Struct(dst); err != nil {
		return dst, err
	}
	return dst, nil
}

// fieldPath drops the top-level struct name from the namespace, so
// "PredictRequest.genres[0]" becomes "genres[0]".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

func registerShort(v *validator.Validate, trans ut.Translator, tag, text string) {
	_ = v.RegisterTranslation(tag, trans,
		func(t ut.Translator) error {
			return t.Add(tag, text, true)
		},
		func(t ut.Translator, fe validator.FieldError) string {
			msg, _ := t.T(tag, fe.Field(), fe.Param())
			return msg
		},
	)
}
