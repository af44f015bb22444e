package appointment

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	all := []AppointmentStatus{StatusScheduled, StatusConfirmed, StatusCanceled, StatusCanceledDueToBlock}

	for _, from := range all {
		for _, to := range all {
			want := from == StatusScheduled && to != StatusScheduled
			assert.Equal(t, want, CanTransition(from, to), "%s -> %s", from, to)
		}
	}
	assert.False(t, CanTransition(StatusScheduled, "expired"))
}

func TestStatusLive(t *testing.T) {
	assert.True(t, StatusScheduled.Live())
	assert.True(t, StatusConfirmed.Live())
	assert.False(t, StatusCanceled.Live())
	assert.False(t, StatusCanceledDueToBlock.Live())

	assert.False(t, StatusScheduled.Terminal())
	assert.True(t, StatusConfirmed.Terminal())
}

func TestNormalizePhone(t *testing.T) {
	assert.Equal(t, "5511987654321", NormalizePhone("+55 (11) 98765-4321"))
	assert.Equal(t, "", NormalizePhone("n/a"))
}

func TestAgeOn(t *testing.T) {
	birth := time.Date(1990, 5, 20, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, 34, ageOn(birth, time.Date(2025, 5, 19, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, 35, ageOn(birth, time.Date(2025, 5, 20, 0, 0, 0, 0, time.UTC)))
}

func TestFormError_UsesJSONFieldNames(t *testing.T) {
	v := NewValidator()
	err := v.Struct(BookingForm{ClinicID: uuid.New()})
	be := formError(err)
	assert.Equal(t, KindValidation, be.Kind)
	assert.Equal(t, CodeInvalidField, be.Code)
	assert.Equal(t, "doctor_id", be.Field)
	assert.Equal(t, "doctor_id is required", be.Message)
}
