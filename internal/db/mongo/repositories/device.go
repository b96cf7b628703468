package repositories

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/infinitune/roomserver/internal/models"
	"github.com/infinitune/roomserver/internal/utils"
)

const deviceCollection = "devices"

// DeviceRepository defines the interface for registered-device lookups used
// by x-device-token admission.
type DeviceRepository interface {
	FindByID(ctx context.Context, id string) (*models.StoredDevice, error)
}

type deviceRepository struct {
	collection *mongo.Collection
	logger     *utils.Logger
}

// NewDeviceRepository creates a new instance of DeviceRepository.
func NewDeviceRepository(db *mongo.Database, logger *utils.Logger) DeviceRepository {
	return &deviceRepository{
		collection: db.Collection(deviceCollection),
		logger:     logger.Named("device_repository"),
	}
}

// FindByID returns the registered device, or nil when absent.
func (r *deviceRepository) FindByID(ctx context.Context, id string) (*models.StoredDevice, error) {
	var device models.StoredDevice
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&device)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		r.logger.Error("Failed to find device", err, "deviceId", id)
		return nil, err
	}
	return &device, nil
}
