package equipment

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/teranos/nightshift/errors"
)

func TestParkingStatusIsParked(t *testing.T) {
	assert.True(t, Parked.IsParked())
	assert.True(t, ParkingIdle.IsParked())
	assert.False(t, Unparked.IsParked())
	assert.False(t, ParkingBusy.IsParked())
	assert.False(t, ParkingError.IsParked())
}

func TestStatusStrings(t *testing.T) {
	assert.Equal(t, "PARKED", Parked.String())
	assert.Equal(t, "UNKNOWN", ParkingStatus(42).String())
	assert.Equal(t, "ALERT", StateAlert.String())
	assert.Equal(t, "SUCCESS", CommSuccess.String())
	assert.Equal(t, "FAILED", FocusFailed.String())
	assert.Equal(t, "ABORTED", AlignAborted.String())
	assert.Equal(t, "DITHERING_ERROR", GuideDitheringError.String())
}

func TestServicesValidate(t *testing.T) {
	err := Services{}.Validate()
	assert.True(t, errors.IsInvalidRequestError(err))
	assert.Contains(t, err.Error(), "mount")
}
