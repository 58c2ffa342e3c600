package service

import (
	"log/slog"
	"sync"

	"github.com/tejashwikalptaru/beatviz/internal/domain"
	"github.com/tejashwikalptaru/beatviz/internal/ports"
)

// StateService keeps the persisted preset path and playlist folder.
// Values are cached after the first load. All operations are thread-safe.
type StateService struct {
	logger     *slog.Logger
	repository ports.StateRepository

	presetPath     string
	playlistFolder string
	subscription   domain.SubscriptionID
	bus            ports.EventBus

	mu sync.RWMutex
}

// NewStateService creates a state service and loads the saved values.
func NewStateService(logger *slog.Logger, repository ports.StateRepository) *StateService {
	s := &StateService{
		logger:     logger.With(slog.String("component", "state_service")),
		repository: repository,
	}
	s.load()
	return s
}

func (s *StateService) load() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if path, err := s.repository.LoadPresetPath(); err == nil {
		s.presetPath = path
	} else {
		s.logger.Warn("failed to load preset path", slog.Any("error", err))
	}
	if dir, err := s.repository.LoadPlaylistFolder(); err == nil {
		s.playlistFolder = dir
	} else {
		s.logger.Warn("failed to load playlist folder", slog.Any("error", err))
	}
}

// PresetPath returns the saved preset path.
func (s *StateService) PresetPath() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.presetPath
}

// SetPresetPath saves the preset path.
func (s *StateService) SetPresetPath(path string) error {
	if err := s.repository.SavePresetPath(path); err != nil {
		return err
	}
	s.mu.Lock()
	s.presetPath = path
	s.mu.Unlock()
	return nil
}

// PlaylistFolder returns the saved playlist folder.
func (s *StateService) PlaylistFolder() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.playlistFolder
}

// SetPlaylistFolder saves the playlist folder.
func (s *StateService) SetPlaylistFolder(dir string) error {
	if err := s.repository.SavePlaylistFolder(dir); err != nil {
		return err
	}
	s.mu.Lock()
	s.playlistFolder = dir
	s.mu.Unlock()
	return nil
}

// Restore reloads the saved playlist folder into playlist and asks worker to load the
// saved preset. Either value may be absent. A folder that can no longer be read is
// logged and skipped.
func (s *StateService) Restore(worker *VisualizationWorker, playlist *PresetPlaylist) {
	dir, path := s.PlaylistFolder(), s.PresetPath()

	if dir != "" && playlist != nil {
		if err := playlist.LoadFolder(dir); err != nil {
			s.logger.Warn("saved playlist folder unavailable", slog.String("folder", dir), slog.Any("error", err))
		}
	}
	if path != "" && worker != nil {
		worker.PostLoadPreset(path)
		s.logger.Info("restoring preset", slog.String("path", path))
	}
}

// Capture saves the worker's active preset and the playlist folder.
// An idle worker leaves the saved preset untouched.
func (s *StateService) Capture(worker *VisualizationWorker, playlist *PresetPlaylist) error {
	if worker != nil {
		if path := worker.CurrentPresetPath(); path != "" {
			if err := s.SetPresetPath(path); err != nil {
				return domain.NewServiceError("StateService", "Capture", "failed to save preset path", err)
			}
		}
	}
	if playlist != nil {
		if dir := playlist.Folder(); dir != "" {
			if err := s.SetPlaylistFolder(dir); err != nil {
				return domain.NewServiceError("StateService", "Capture", "failed to save playlist folder", err)
			}
		}
	}
	return nil
}

// Track saves the preset path every time a preset is loaded on bus. Calling Track again
// replaces the previous subscription.
func (s *StateService) Track(bus ports.EventBus) {
	s.Untrack()
	id := bus.Subscribe(domain.EventPresetLoaded, s.onPresetLoaded)

	s.mu.Lock()
	s.bus, s.subscription = bus, id
	s.mu.Unlock()
}

// TrackInstance is Track limited to presets loaded by one worker.
func (s *StateService) TrackInstance(bus ports.FilteringEventBus, instanceID string) {
	s.Untrack()
	id := bus.SubscribeFiltered(domain.EventPresetLoaded, func(e domain.Event) bool {
		loaded, ok := e.(domain.PresetLoadedEvent)
		return ok && loaded.InstanceID == instanceID
	}, s.onPresetLoaded)

	s.mu.Lock()
	s.bus, s.subscription = bus, id
	s.mu.Unlock()
}

func (s *StateService) onPresetLoaded(e domain.Event) {
	loaded, ok := e.(domain.PresetLoadedEvent)
	if !ok {
		return
	}
	if err := s.SetPresetPath(loaded.Path); err != nil {
		s.logger.Warn("failed to persist preset path", slog.String("path", loaded.Path), slog.Any("error", err))
	}
}

// Untrack removes the subscription installed by Track.
func (s *StateService) Untrack() {
	s.mu.Lock()
	bus, id := s.bus, s.subscription
	s.bus, s.subscription = nil, ""
	s.mu.Unlock()

	if bus != nil {
		bus.Unsubscribe(id)
	}
}
