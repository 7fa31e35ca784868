package cafs

import (
	"github.com/oneconcern/treemon/pkg/storage"
	"go.uber.org/zap"
)

// Option to configure content addressable store components
type Option func(*Store)

// Backend specifies the backend store
func Backend(store storage.Store) Option {
	return func(s *Store) {
		s.backend = store
	}
}

// WithMode sets the storage mode (bare or archive)
func WithMode(mode Mode) Option {
	return func(s *Store) {
		s.mode = mode
	}
}

// CacheSize sets the number of metadata objects kept in memory. 0 disables caching.
func CacheSize(size int) Option {
	return func(s *Store) {
		s.cacheSize = size
	}
}

// VerifyExisting fully re-hashes already stored objects before skipping a write
func VerifyExisting(enabled bool) Option {
	return func(s *Store) {
		s.verifyExisting = enabled
	}
}

// Logger for this store
func Logger(l *zap.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.l = l
		}
	}
}
