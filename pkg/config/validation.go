package config

import (
	"reflect"

	sserr "github.com/StricklySoft/academic-platform/pkg/errors"
)

// Validator may be implemented by configuration structs that need checks
// beyond the `required` tag. Validate runs after tag validation succeeds.
// An *sserr.Error is returned unchanged; any other error is wrapped with
// [sserr.CodeValidation].
//
// Example:
//
//	func (c *GatewayConfig) Validate() error {
//	    if c.Profile != "docker" && c.Profile != "local" {
//	        return sserr.Newf(sserr.CodeValidation,
//	            "config: unknown profile %q", c.Profile)
//	    }
//	    return nil
//	}
type Validator interface {
	Validate() error
}

func validate(cfg any, rv reflect.Value) error {
	if err := validateRequired(rv, ""); err != nil {
		return err
	}

	v, ok := cfg.(Validator)
	if !ok {
		return nil
	}
	err := v.Validate()
	if err == nil {
		return nil
	}
	if _, isPlatform := sserr.AsError(err); isPlatform {
		return err
	}
	return sserr.Wrap(err, sserr.CodeValidation, "config: custom validation failed")
}

// validateRequired walks the struct and reports the first `required:"true"`
// field still holding its zero value, named by its dotted path
// (e.g. "JWT.PublicKey").
func validateRequired(rv reflect.Value, path string) error {
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		field, sf := rv.Field(i), rt.Field(i)
		if !field.CanSet() {
			continue
		}

		fieldPath := sf.Name
		if path != "" {
			fieldPath = path + "." + sf.Name
		}

		if field.Kind() == reflect.Struct {
			if err := validateRequired(field, fieldPath); err != nil {
				return err
			}
			continue
		}
		if sf.Tag.Get("required") == "true" && field.IsZero() {
			return sserr.Newf(sserr.CodeValidationRequired,
				"config: required field %q is empty", fieldPath)
		}
	}
	return nil
}
