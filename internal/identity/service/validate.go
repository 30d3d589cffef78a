package service

import (
	"errors"
	"strconv"
	"strings"
	"unicode"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/nexstaff/identity/internal/identity/domain"
)

// DefaultPasswordMinLength is the password policy floor.
const DefaultPasswordMinLength = 8

// normalizeEmail lowercases and trims an address. Email is the tenant-scoped
// lookup key, so every read and write goes through this first.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateRegisterInput(in domain.RegisterInput, passwordMinLength int) error {
	err := validation.ValidateStruct(&in,
		validation.Field(&in.Email, validation.Required, validation.Length(3, 254), is.Email),
		validation.Field(&in.FirstName, validation.Required, validation.Length(1, 200)),
		validation.Field(&in.LastName, validation.Required, validation.Length(1, 200)),
		validation.Field(&in.Password, validation.Required, validation.By(passwordStrength(passwordMinLength))),
		validation.Field(&in.PersonaType, validation.Required, validation.By(validPersonaType)),
	)
	return mapValidationError(err)
}

func validatePassword(password string, minLength int) error {
	err := validation.Validate(password,
		validation.Required,
		validation.By(passwordStrength(minLength)),
	)
	if err == nil {
		return nil
	}
	return &ValidationError{Fields: map[string]string{"password": err.Error()}}
}

// passwordStrength enforces the platform policy: minimum length plus at least
// one upper, one lower, one digit and one symbol. Every unmet requirement is
// reported, not just the first.
func passwordStrength(minLength int) validation.RuleFunc {
	if minLength <= 0 {
		minLength = DefaultPasswordMinLength
	}

	return func(value any) error {
		password, _ := value.(string)

		var missing []string
		if len(password) < minLength {
			missing = append(missing, "at least "+strconv.Itoa(minLength)+" characters")
		}

		var hasUpper, hasLower, hasDigit, hasSymbol bool
		for _, r := range password {
			switch {
			case unicode.IsUpper(r):
				hasUpper = true
			case unicode.IsLower(r):
				hasLower = true
			case unicode.IsDigit(r):
				hasDigit = true
			default:
				hasSymbol = true
			}
		}
		if !hasUpper {
			missing = append(missing, "an uppercase letter")
		}
		if !hasLower {
			missing = append(missing, "a lowercase letter")
		}
		if !hasDigit {
			missing = append(missing, "a digit")
		}
		if !hasSymbol {
			missing = append(missing, "a symbol")
		}

		if len(missing) > 0 {
			return errors.New("must contain " + strings.Join(missing, ", "))
		}
		return nil
	}
}

func validPersonaType(value any) error {
	t, _ := value.(domain.PersonaType)
	if !t.Valid() {
		return errors.New("must be a known persona type")
	}
	return nil
}

// mapValidationError converts ozzo's field error map into our taxonomy.
func mapValidationError(err error) error {
	if err == nil {
		return nil
	}

	fields := map[string]string{}
	if verrs, ok := err.(validation.Errors); ok {
		for field, ferr := range verrs {
			if ferr != nil {
				fields[field] = ferr.Error()
			}
		}
		return &ValidationError{Fields: fields}
	}

	return &ValidationError{Fields: map[string]string{"input": err.Error()}}
}
