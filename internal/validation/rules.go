// Package validation provides custom validation rules for the application.
package validation

import (
	validation "github.com/jellydator/validation"

	apperrors "github.com/clinicbase/phivault/internal/errors"
)

// maxFieldValueBytes bounds a single field value before encryption. Clinical
// narrative fields are large but a value past this size is a caller bug, not
// patient data.
const maxFieldValueBytes = 1 << 20

// maxFieldNameLength matches the schema field name column width.
const maxFieldNameLength = 255

// WrapValidationError wraps validation errors as domain ErrInvalidInput
func WrapValidationError(err error) error {
	if err == nil {
		return nil
	}
	return apperrors.Wrap(apperrors.ErrInvalidInput, err.Error())
}

// FieldValues validates a record's plaintext field map: names must be
// non-empty and bounded, values must fit the size limit.
var FieldValues = validation.By(func(value interface{}) error {
	m, ok := value.(map[string]string)
	if !ok {
		return validation.NewError("validation_field_values_type", "must be a field map")
	}
	if len(m) == 0 {
		return validation.NewError("validation_field_values_empty", "must contain at least one field")
	}
	for name, v := range m {
		if name == "" {
			return validation.NewError("validation_field_name_empty", "field names must not be empty")
		}
		if len(name) > maxFieldNameLength {
			return validation.NewError("validation_field_name_length", "field name "+name+" is too long")
		}
		if len(v) > maxFieldValueBytes {
			return validation.NewError("validation_field_value_size", "field "+name+" exceeds the size limit")
		}
	}
	return nil
})

// OrganizationID validates a tenant identifier.
var OrganizationID = validation.By(func(value interface{}) error {
	id, ok := value.(int64)
	if !ok {
		return validation.NewError("validation_organization_id_type", "must be an integer")
	}
	if id <= 0 {
		return validation.NewError("validation_organization_id", "must be a positive number")
	}
	return nil
})
