package appointment

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// BookingForm is the submission payload. ClinicID comes from the request
// context, not the body.
type BookingForm struct {
	ClinicID       uuid.UUID `json:"-" validate:"required"`
	DoctorID       uuid.UUID `json:"doctor_id" validate:"required"`
	ExamID         uuid.UUID `json:"exam_id" validate:"required"`
	CompanionExams []string  `json:"companion_exams,omitempty" validate:"max=10,dive,max=120"`
	Date           string    `json:"date" validate:"required,datetime=2006-01-02"`
	Time           string    `json:"time" validate:"required,datetime=15:04"`
	PatientName    string    `json:"patient_name" validate:"required,min=2,max=120"`
	PatientPhone   string    `json:"patient_phone" validate:"required,phone"`
	PatientEmail   string    `json:"patient_email,omitempty" validate:"omitempty,email"`
	BirthDate      string    `json:"birth_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	InsurancePlan  string    `json:"insurance_plan,omitempty" validate:"omitempty,max=80"`
	Notes          string    `json:"notes,omitempty" validate:"max=1000"`
	CreatedBy      string    `json:"created_by,omitempty" validate:"max=120"`
}

var phoneDigits = regexp.MustCompile(`^\d{10,13}$`)

// NormalizePhone strips everything but digits.
func NormalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func validatePhone(fl validator.FieldLevel) bool {
	return phoneDigits.MatchString(NormalizePhone(fl.Field().String()))
}

// NewValidator returns a validator with the custom tags used by booking
// and waiting-list forms registered.
func NewValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("phone", validatePhone)
	return v
}

var fieldMessages = map[string]string{
	"required": "is required",
	"phone":    "must have 10 to 13 digits",
	"email":    "must be a valid email",
	"datetime": "has an invalid format",
	"min":      "is too short",
	"max":      "is too long",
}

// formError turns the first validator failure into a BookingError.
func formError(err error) *BookingError {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return &BookingError{Kind: KindValidation, Code: CodeInvalidField, Message: err.Error()}
	}
	fe := verrs[0]
	field := fe.Field()
	msg, ok := fieldMessages[fe.Tag()]
	if !ok {
		msg = "is invalid"
	}
	return &BookingError{
		Kind:    KindValidation,
		Code:    CodeInvalidField,
		Field:   field,
		Message: fmt.Sprintf("%s %s", field, msg),
	}
}

// ageOn returns whole years between birth and day.
func ageOn(birth, day time.Time) int {
	age := day.Year() - birth.Year()
	if day.Month() < birth.Month() || (day.Month() == birth.Month() && day.Day() < birth.Day()) {
		age--
	}
	return age
}
