package app

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"classroom-quiz-service/internal/domain"
)

var usnPattern = regexp.MustCompile(`^[A-Za-z]{3}\d{2}[A-Za-z]{2}\d{3}$`)

// RegisterInput is the student registration payload.
type RegisterInput struct {
	Name  string `json:"name" validate:"required,min=2"`
	USN   string `json:"usn" validate:"required,min=3,usn"`
	Email string `json:"email" validate:"omitempty,email"`
}

// AnswerInput is one answer submission.
type AnswerInput struct {
	SessionID      string `json:"sessionId" validate:"required"`
	QuestionID     string `json:"questionId" validate:"required"`
	Level          string `json:"level" validate:"required"`
	SelectedAnswer *int   `json:"selectedAnswer" validate:"required,min=0"`
	CorrectAnswer  *int   `json:"correctAnswer" validate:"required,min=0"`
	TimeTaken      int    `json:"timeTaken" validate:"min=0"`
}

func newValidator(strictUSN bool) *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	_ = v.RegisterValidation("usn", func(fl validator.FieldLevel) bool {
		return !strictUSN || usnPattern.MatchString(fl.Field().String())
	})
	return v
}

// validationError turns validator output into a domain validation error naming the first bad field.
func validationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	fe := fieldErrs[0]
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return domain.Invalid("%s is required", field)
	case "min":
		if fe.Kind() == reflect.String {
			return domain.Invalid("%s must be at least %s characters", field, fe.Param())
		}
		return domain.Invalid("%s must be at least %s", field, fe.Param())
	case "email":
		return domain.Invalid("email must be a valid address")
	case "usn":
		return domain.Invalid("usn has an invalid format")
	default:
		return domain.Invalid("%s is invalid", field)
	}
}
