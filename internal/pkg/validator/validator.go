package validator

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/hatid/hatid-api/internal/pkg/money"
)

var validate *validator.Validate

func init() {
	validate = validator.New()

	// Use JSON tag names in error messages
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	registerCustomValidations()
}

func registerCustomValidations() {
	validate.RegisterValidation("wallet_role", func(fl validator.FieldLevel) bool {
		role := fl.Field().String()
		return role == "merchant" || role == "rider"
	})

	// Positive PHP amount written as a decimal string with at most two places.
	validate.RegisterValidation("php_amount", func(fl validator.FieldLevel) bool {
		d, err := money.Parse(fl.Field().String())
		return err == nil && d.IsPositive()
	})
}

// Validate validates a struct and returns a map of field errors
func Validate(s interface{}) map[string]string {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return map[string]string{"_": "Invalid request"}
	}

	fieldErrors := make(map[string]string)
	for _, fe := range verrs {
		field := fe.Field()
		switch fe.Tag() {
		case "required":
			fieldErrors[field] = "This field is required"
		case "gte":
			fieldErrors[field] = "Value must be at least " + fe.Param()
		case "lte":
			fieldErrors[field] = "Value must be at most " + fe.Param()
		case "wallet_role":
			fieldErrors[field] = "Invalid role. Must be: merchant or rider"
		case "php_amount":
			fieldErrors[field] = "Must be a positive amount with at most 2 decimal places"
		default:
			fieldErrors[field] = "Invalid value"
		}
	}
	return fieldErrors
}

// ValidateVar validates a single variable
func ValidateVar(field interface{}, tag string) error {
	return validate.Var(field, tag)
}
