package auth

import (
	"context"
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/infinitune/roomserver/internal/models"
	"github.com/infinitune/roomserver/internal/utils"
)

// ErrInvalidDeviceToken covers every device-token rejection; callers get no
// detail about which half failed.
var ErrInvalidDeviceToken = errors.New("invalid device token")

// DeviceLookup is the storage lookup device verification needs.
type DeviceLookup interface {
	FindByID(ctx context.Context, id string) (*models.StoredDevice, error)
}

// DeviceVerifier validates x-device-token headers of the form
// "<deviceId>.<secret>" against the registered device table.
type DeviceVerifier struct {
	devices DeviceLookup
	logger  *utils.Logger
}

// NewDeviceVerifier creates a device token verifier.
func NewDeviceVerifier(devices DeviceLookup, logger *utils.Logger) *DeviceVerifier {
	return &DeviceVerifier{
		devices: devices,
		logger:  logger.Named("device_verifier"),
	}
}

// Verify checks a device token and returns the caller identity.
func (v *DeviceVerifier) Verify(ctx context.Context, token string) (*Identity, error) {
	deviceID, secret, ok := strings.Cut(token, ".")
	if !ok || deviceID == "" || secret == "" {
		return nil, ErrInvalidDeviceToken
	}

	device, err := v.devices.FindByID(ctx, deviceID)
	if err != nil {
		v.logger.Error("Device lookup failed", err, "deviceId", deviceID)
		return nil, err
	}
	if device == nil {
		return nil, ErrInvalidDeviceToken
	}

	if err := bcrypt.CompareHashAndPassword([]byte(device.TokenHash), []byte(secret)); err != nil {
		return nil, ErrInvalidDeviceToken
	}

	return &Identity{DeviceID: device.ID}, nil
}
