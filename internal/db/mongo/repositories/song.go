package repositories

import (
	"context"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/infinitune/roomserver/internal/models"
	"github.com/infinitune/roomserver/internal/utils"
)

const songCollection = "songs"

// SongRepository defines the interface for song data access.
type SongRepository interface {
	FindQueue(ctx context.Context, playlistID string) ([]models.Song, error)
	UpdateStatus(ctx context.Context, songID string, status models.SongStatus) error
	UpdateRating(ctx context.Context, songID string, rating models.Rating) error
}

type songRepository struct {
	collection *mongo.Collection
	logger     *utils.Logger
}

// NewSongRepository creates a new instance of SongRepository.
func NewSongRepository(db *mongo.Database, logger *utils.Logger) SongRepository {
	return &songRepository{
		collection: db.Collection(songCollection),
		logger:     logger.Named("song_repository"),
	}
}

// FindQueue returns every song of a playlist ordered by orderIndex.
func (r *songRepository) FindQueue(ctx context.Context, playlistID string) ([]models.Song, error) {
	opts := options.Find().SetSort(bson.D{{Key: "orderIndex", Value: 1}})
	cursor, err := r.collection.Find(ctx, bson.M{"playlistId": playlistID}, opts)
	if err != nil {
		r.logger.Error("Failed to find song queue", err, "playlistId", playlistID)
		return nil, err
	}
	defer cursor.Close(ctx)

	songs := []models.Song{}
	if err := cursor.All(ctx, &songs); err != nil {
		r.logger.Error("Failed to decode song queue", err, "playlistId", playlistID)
		return nil, err
	}
	return songs, nil
}

// UpdateStatus sets a song's status. Missing songs are not an error: the row
// may have been deleted between the event and the write-back.
func (r *songRepository) UpdateStatus(ctx context.Context, songID string, status models.SongStatus) error {
	update := bson.D{cmdSet(bson.M{"status": status})}
	_, err := r.collection.UpdateOne(ctx, bson.M{"_id": songID}, update)
	if err != nil {
		r.logger.Error("Failed to update song status", err, "songId", songID, "status", string(status))
		return err
	}
	return nil
}

// UpdateRating records a listener rating on a song.
func (r *songRepository) UpdateRating(ctx context.Context, songID string, rating models.Rating) error {
	update := bson.D{cmdSet(bson.M{"rating": rating})}
	_, err := r.collection.UpdateOne(ctx, bson.M{"_id": songID}, update)
	if err != nil {
		r.logger.Error("Failed to update song rating", err, "songId", songID)
		return err
	}
	return nil
}
