// Package repositories contains MongoDB repository implementations. The
// generation pipeline owns this schema; the coordinator reads playlists and
// songs and writes back only terminal song state.
package repositories

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/infinitune/roomserver/internal/models"
	"github.com/infinitune/roomserver/internal/utils"
)

const playlistCollection = "playlists"

// PlaylistRepository defines the interface for playlist data access.
type PlaylistRepository interface {
	FindByID(ctx context.Context, id string) (*models.Playlist, error)
	FindByKey(ctx context.Context, key string) (*models.Playlist, error)
}

type playlistRepository struct {
	collection *mongo.Collection
	logger     *utils.Logger
}

// NewPlaylistRepository creates a new instance of PlaylistRepository.
func NewPlaylistRepository(db *mongo.Database, logger *utils.Logger) PlaylistRepository {
	return &playlistRepository{
		collection: db.Collection(playlistCollection),
		logger:     logger.Named("playlist_repository"),
	}
}

// FindByID returns the playlist with the given id, or nil when absent.
func (r *playlistRepository) FindByID(ctx context.Context, id string) (*models.Playlist, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

// FindByKey returns the playlist with the given key, or nil when absent.
func (r *playlistRepository) FindByKey(ctx context.Context, key string) (*models.Playlist, error) {
	return r.findOne(ctx, bson.M{"key": key})
}

func (r *playlistRepository) findOne(ctx context.Context, filter bson.M) (*models.Playlist, error) {
	var playlist models.Playlist
	err := r.collection.FindOne(ctx, filter).Decode(&playlist)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		r.logger.Error("Failed to find playlist", err)
		return nil, err
	}
	return &playlist, nil
}
