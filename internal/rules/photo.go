package rules

import (
	"strings"
	"time"

	"snapify/internal/models"
)

// DeviceLimit is the number of photos a single device may contribute.
func DeviceLimit(event models.Event) int {
	if event.MaxPhotosPerUser != nil {
		return *event.MaxPhotosPerUser
	}
	return event.MaxPhotos
}

// CheckEventOpen covers the event-wide part of admission: expiry first, then
// the total cap.
func CheckEventOpen(event models.Event, now time.Time) error {
	if !now.Before(event.ExpiresAt) {
		return ErrEventExpired
	}
	if event.UsedPhotos >= event.MaxPhotos {
		return ErrEventFull
	}
	return nil
}

// CheckPhotoAdmission decides whether one more photo may be recorded.
// deviceCount is the number of photos already recorded for the device and
// is ignored when deviceID is empty. The device check runs last so a device
// quota error is only reported while the event itself still has room.
func CheckPhotoAdmission(event models.Event, deviceID string, deviceCount int, now time.Time) error {
	if err := CheckEventOpen(event, now); err != nil {
		return err
	}
	if deviceID != "" && deviceCount >= DeviceLimit(event) {
		return ErrDeviceQuotaExceeded
	}
	return nil
}

func NormalizeCreator(creator string) (string, error) {
	creator = strings.TrimSpace(creator)
	if creator == "" {
		return "", invalid("creator is required")
	}
	if len([]rune(creator)) > MaxCreatorName {
		return "", invalid("creator must be at most %d characters", MaxCreatorName)
	}
	return creator, nil
}

func NormalizeDeviceID(deviceID string) (string, error) {
	deviceID = strings.TrimSpace(deviceID)
	if len(deviceID) > MaxDeviceIDSize {
		return "", invalid("deviceId must be at most %d characters", MaxDeviceIDSize)
	}
	return deviceID, nil
}
