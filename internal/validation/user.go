// Package validation checks create-user candidates before they reach the
// store.
//
// HOW IT'S SPLIT:
// Shape rules that never change (email format, IANA timezone, password byte
// limit) are struct tags run by go-playground/validator. Rules that depend on
// configuration (name length, numeric names, the language list, the tier
// registry) are explicit checks, mostly delegated to validator.Var so the
// same engine produces every decision.
//
// The first failing rule wins and is reported as apperror.ValidationFailed
// with the JSON field name, so clients can highlight the offending input.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	"github.com/sakif/issuedesk/internal/access"
	"github.com/sakif/issuedesk/internal/apperror"
	"github.com/sakif/issuedesk/internal/auth"
	"github.com/sakif/issuedesk/internal/model"

	// Embedded IANA database, so timezone checks do not depend on the host.
	_ "time/tzdata"
)

// Rules is the configurable part of user validation.
type Rules struct {
	MaxNameLength      int
	MaxRealNameLength  int
	RejectNumericNames bool
	Languages          []string
	DefaultLanguage    string
	DefaultTimezone    string
}

// DefaultRules mirrors the stock configuration.
func DefaultRules() Rules {
	return Rules{
		MaxNameLength:      191,
		MaxRealNameLength:  191,
		RejectNumericNames: true,
		Languages:          []string{"english"},
		DefaultLanguage:    "english",
		DefaultTimezone:    "America/Los_Angeles",
	}
}

// Candidate is a validated, normalized create request with defaults applied.
type Candidate struct {
	Name      string
	RealName  string
	Email     string
	Password  string
	Tier      access.Tier
	Language  string
	Timezone  string
	Enabled   bool
	Protected bool
}

// fields carries the tag-driven rules. Field names come from the json tags.
type fields struct {
	Email    string `json:"email"    validate:"omitempty,email"`
	Timezone string `json:"timezone" validate:"omitempty,timezone"`
}

// UserValidator validates model.NewUser values.
type UserValidator struct {
	rules     Rules
	registry  *access.Registry
	validate  *validator.Validate
	languages map[string]struct{}
}

// New creates a UserValidator. Zero limits in rules fall back to the
// defaults.
func New(rules Rules, registry *access.Registry) *UserValidator {
	def := DefaultRules()
	if rules.MaxNameLength <= 0 {
		rules.MaxNameLength = def.MaxNameLength
	}
	if rules.MaxRealNameLength <= 0 {
		rules.MaxRealNameLength = def.MaxRealNameLength
	}
	if rules.DefaultLanguage == "" {
		rules.DefaultLanguage = def.DefaultLanguage
	}
	if rules.DefaultTimezone == "" {
		rules.DefaultTimezone = def.DefaultTimezone
	}

	langs := make(map[string]struct{}, len(rules.Languages)+1)
	for _, l := range rules.Languages {
		langs[strings.ToLower(strings.TrimSpace(l))] = struct{}{}
	}
	langs[strings.ToLower(rules.DefaultLanguage)] = struct{}{}

	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	return &UserValidator{
		rules:     rules,
		registry:  registry,
		validate:  v,
		languages: langs,
	}
}

// Validate checks in and returns the normalized candidate. The returned
// error is always an *apperror.AppError wrapping apperror.ErrValidation.
func (uv *UserValidator) Validate(in model.NewUser) (*Candidate, error) {
	name := strings.TrimSpace(in.Name)
	if err := uv.checkName(name); err != nil {
		return nil, err
	}

	realName := strings.TrimSpace(in.RealName)
	if utf8.RuneCountInString(realName) > uv.rules.MaxRealNameLength {
		return nil, apperror.ValidationFailed("real_name",
			fmt.Sprintf("real_name must be at most %d characters", uv.rules.MaxRealNameLength))
	}

	f := fields{
		Email:    strings.TrimSpace(in.Email),
		Timezone: strings.TrimSpace(in.Timezone),
	}
	if err := uv.validate.Struct(f); err != nil {
		return nil, translate(err)
	}

	if len(in.Password) > auth.MaxPasswordBytes {
		return nil, apperror.ValidationFailed("password",
			fmt.Sprintf("password must be %d bytes or fewer", auth.MaxPasswordBytes))
	}

	language := strings.ToLower(strings.TrimSpace(in.Language))
	if language == "" {
		language = uv.rules.DefaultLanguage
	}
	if _, ok := uv.languages[language]; !ok {
		return nil, apperror.ValidationFailed("language",
			fmt.Sprintf("language %q is not supported", language))
	}

	tier := uv.registry.Default()
	if in.AccessLevel != nil {
		t, ok := uv.registry.Resolve(*in.AccessLevel)
		if !ok {
			return nil, apperror.ValidationFailed("access_level", "access level not found")
		}
		tier = t
	}

	tz := f.Timezone
	if tz == "" {
		tz = uv.rules.DefaultTimezone
	}

	c := &Candidate{
		Name:     name,
		RealName: realName,
		Email:    f.Email,
		Password: in.Password,
		Tier:     tier,
		Language: language,
		Timezone: tz,
		Enabled:  true,
	}
	if in.Enabled != nil {
		c.Enabled = *in.Enabled
	}
	if in.Protected != nil {
		c.Protected = *in.Protected
	}
	return c, nil
}

// checkName expects an already trimmed name, so whitespace-only input
// arrives here empty.
func (uv *UserValidator) checkName(name string) error {
	if name == "" {
		return apperror.ValidationFailed("name", "name must not be empty")
	}
	if err := uv.validate.Var(name, fmt.Sprintf("max=%d", uv.rules.MaxNameLength)); err != nil {
		return apperror.ValidationFailed("name",
			fmt.Sprintf("name must be at most %d characters", uv.rules.MaxNameLength))
	}
	if uv.rules.RejectNumericNames && uv.isNumeric(name) {
		return apperror.ValidationFailed("name", "name must not be purely numeric")
	}
	return nil
}

// isNumeric reports whether s looks like a number ("1234", "-7", "3.5").
func (uv *UserValidator) isNumeric(s string) bool {
	return uv.validate.Var(s, "numeric") == nil
}

func translate(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return apperror.ValidationFailed("", err.Error())
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "email":
		return apperror.ValidationFailed(fe.Field(), "email is not a valid address")
	case "timezone":
		return apperror.ValidationFailed(fe.Field(), fmt.Sprintf("timezone %q is not a valid IANA time zone", fe.Value()))
	default:
		return apperror.ValidationFailed(fe.Field(), fmt.Sprintf("%s failed the %q rule", fe.Field(), fe.Tag()))
	}
}
