package services

import (
	"github.com/go-playground/validator/v10"

	"github.com/SscSPs/fiscal_journal/internal/apperrors"
)

// validate checks request DTOs with the same "binding" tags gin uses, so
// callers that bypass the HTTP layer get the same rules.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.SetTagName("binding")
	return v
}

func validateRequest(req any) error {
	if err := validate.Struct(req); err != nil {
		return apperrors.NewValidationError("invalid request: %v", err)
	}
	return nil
}
