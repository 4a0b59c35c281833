package validator

import (
	"errors"
	"fmt"
	"strings"

	"labslot/pkg/interval"
	"labslot/pkg/logger"
	"labslot/pkg/model"
	"labslot/pkg/sanitizer"

	"github.com/go-playground/validator/v10"
)

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (v ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", v.Field, v.Message)
}

type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	if len(v) == 0 {
		return ""
	}
	var messages []string
	for _, err := range v {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("validation failed: %d error(s): [%s]", len(v), strings.Join(messages, "; "))
}

// Details flattens the errors into the AppError details map.
func (v ValidationErrors) Details() map[string]any {
	details := make(map[string]any, len(v))
	for _, err := range v {
		details[err.Field] = err.Message
	}
	return details
}

type BookingValidator struct {
	validate *validator.Validate
	logger   *logger.Logger
}

func NewBookingValidator(log *logger.Logger) *BookingValidator {
	v := validator.New()

	if err := v.RegisterValidation("identifier", validateIdentifier); err != nil {
		log.Fatal("Failed to register 'identifier' validator",
			"error", err,
		)
	}

	return &BookingValidator{
		validate: v,
		logger:   log,
	}
}

func validateIdentifier(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	return sanitizer.SanitizeIdentifier(value) == strings.TrimSpace(value) && strings.TrimSpace(value) != ""
}

// ValidateRequest checks a reservation request at the boundary and returns
// its interval. Shape problems come back as ValidationErrors; a range whose
// start is not before its end comes back wrapping interval.ErrInvalidInterval.
func (v *BookingValidator) ValidateRequest(req *model.BookingRequest) (interval.Interval, error) {
	if err := v.validate.Struct(req); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			return interval.Interval{}, v.translateValidationErrors(validationErrs)
		}
		return interval.Interval{}, err
	}

	iv, err := interval.New(req.StartTime.UTC(), req.EndTime.UTC())
	if err != nil {
		return interval.Interval{}, err
	}
	return iv, nil
}

func (v *BookingValidator) ValidateDecision(decision *model.BookingDecision) error {
	if err := v.validate.Struct(decision); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			return v.translateValidationErrors(validationErrs)
		}
		return err
	}
	return nil
}

func (v *BookingValidator) translateValidationErrors(errs validator.ValidationErrors) ValidationErrors {
	var validationErrors ValidationErrors

	for _, err := range errs {
		message := err.Error()

		switch err.Tag() {
		case "required":
			message = fmt.Sprintf("%s is required", err.Field())
		case "min":
			message = fmt.Sprintf("%s must be at least %s", err.Field(), err.Param())
		case "max":
			message = fmt.Sprintf("%s must be at most %s", err.Field(), err.Param())
		case "identifier":
			message = fmt.Sprintf("%s may only contain letters, digits and - _ . :", err.Field())
		case "oneof":
			message = fmt.Sprintf("%s must be one of: %s", err.Field(), err.Param())
		}

		validationErrors = append(validationErrors, ValidationError{
			Field:   err.Field(),
			Message: message,
		})
	}

	return validationErrors
}
