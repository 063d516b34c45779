// Package allowlist tracks the one conversation-enabled channel per guild.
package allowlist

import (
	"errors"
	"fmt"
	"maps"
	"sync"

	"go.uber.org/zap"
)

// ErrPersist marks a mutation that was applied in memory but could not be saved.
var ErrPersist = errors.New("allowlist not persisted")

type Repository interface {
	Load() (map[string]string, error)
	Save(entries map[string]string) error
}

type Service struct {
	mu       sync.RWMutex
	repo     Repository
	channels map[string]string // guild id -> channel id
	logger   *zap.Logger
}

// New loads the allowlist once from repo. A nil repo keeps everything in
// memory; load failures start from an empty list.
func New(repo Repository, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{repo: repo, channels: make(map[string]string), logger: logger}
	if repo != nil {
		entries, err := repo.Load()
		if err != nil {
			logger.Warn("failed to load allowlist, starting empty", zap.Error(err))
		} else {
			for g, c := range entries {
				s.channels[g] = c
			}
		}
	}
	return s
}

// Enable makes channelID the chat channel of guildID, replacing any previous one.
func (s *Service) Enable(guildID, channelID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channels[guildID] = channelID
	return s.persistLocked()
}

// Disable forgets the guild's chat channel. Unknown guilds are a no-op.
func (s *Service) Disable(guildID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.channels[guildID]; !ok {
		return nil
	}
	delete(s.channels, guildID)
	return s.persistLocked()
}

// IsAllowed reports whether channelID is the chat channel of guildID.
func (s *Service) IsAllowed(guildID, channelID string) bool {
	if guildID == "" || channelID == "" {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.channels[guildID] == channelID
}

func (s *Service) Channel(guildID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.channels[guildID]
	return c, ok
}

func (s *Service) Snapshot() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.channels)
}

func (s *Service) persistLocked() error {
	if s.repo == nil {
		return nil
	}
	if err := s.repo.Save(maps.Clone(s.channels)); err != nil {
		s.logger.Warn("failed to persist allowlist; keeping in-memory state", zap.Error(err))
		return fmt.Errorf("%w: %v", ErrPersist, err)
	}
	return nil
}
