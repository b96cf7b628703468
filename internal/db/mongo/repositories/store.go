package repositories

import (
	"context"

	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/infinitune/roomserver/internal/models"
	"github.com/infinitune/roomserver/internal/utils"
)

// Store bundles the repositories behind the storage surface the sync bridge
// consumes.
type Store struct {
	Playlists PlaylistRepository
	Songs     SongRepository
	Devices   DeviceRepository
}

// NewStore creates repositories over the given database.
func NewStore(db *mongo.Database, logger *utils.Logger) *Store {
	return &Store{
		Playlists: NewPlaylistRepository(db, logger),
		Songs:     NewSongRepository(db, logger),
		Devices:   NewDeviceRepository(db, logger),
	}
}

// GetPlaylistByKey returns the playlist with the given key, or nil.
func (s *Store) GetPlaylistByKey(ctx context.Context, key string) (*models.Playlist, error) {
	return s.Playlists.FindByKey(ctx, key)
}

// GetPlaylist returns the playlist with the given id, or nil.
func (s *Store) GetPlaylist(ctx context.Context, id string) (*models.Playlist, error) {
	return s.Playlists.FindByID(ctx, id)
}

// GetSongQueue returns a playlist's songs ordered by orderIndex.
func (s *Store) GetSongQueue(ctx context.Context, playlistID string) ([]models.Song, error) {
	return s.Songs.FindQueue(ctx, playlistID)
}

// UpdateSongStatus sets a song's status.
func (s *Store) UpdateSongStatus(ctx context.Context, songID string, status models.SongStatus) error {
	return s.Songs.UpdateStatus(ctx, songID, status)
}

// UpdateSongRating records a listener rating.
func (s *Store) UpdateSongRating(ctx context.Context, songID string, rating models.Rating) error {
	return s.Songs.UpdateRating(ctx, songID, rating)
}
