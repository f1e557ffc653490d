package rooms

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/frostdev-ops/pma-homesim/internal/core/store"
	apperrors "github.com/frostdev-ops/pma-homesim/pkg/errors"
)

// Store keys owned by the service.
const (
	HomesKey       = "homes"
	CurrentHomeKey = "currentHome"
)

// Home is one household with its rooms.
type Home struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Address   string     `json:"address,omitempty"`
	Rooms     []Room     `json:"rooms"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
}

type Room struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Type      string     `json:"type,omitempty"`
	Icon      string     `json:"icon,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
}

// HomePatch updates the editable home fields.
type HomePatch struct {
	Name    *string `json:"name,omitempty"`
	Address *string `json:"address,omitempty"`
}

type RoomPatch struct {
	Name *string `json:"name,omitempty"`
	Type *string `json:"type,omitempty"`
	Icon *string `json:"icon,omitempty"`
}

// DeviceRemover deletes the devices placed in a room.
type DeviceRemover interface {
	DeleteByRoom(roomID string) []string
}

// RoomService manages homes, their rooms and the current home selection.
type RoomService struct {
	store   *store.Store
	devices DeviceRemover
	logger  *logrus.Logger

	mutex sync.RWMutex
	now   func() time.Time
}

// NewRoomService creates a new room service
func NewRoomService(s *store.Store, devices DeviceRemover, logger *logrus.Logger) *RoomService {
	store.Define(s, HomesKey, func() []Home { return []Home{} })
	store.Define(s, CurrentHomeKey, func() string { return "" })
	return &RoomService{
		store:   s,
		devices: devices,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *RoomService) clock() time.Time {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.now()
}

// Homes returns all homes.
func (s *RoomService) Homes() []Home {
	homes := store.GetAs[[]Home](s.store, HomesKey)
	out := make([]Home, len(homes))
	for i, h := range homes {
		out[i] = h.clone()
	}
	return out
}

func (s *RoomService) Home(id string) (Home, error) {
	for _, h := range store.GetAs[[]Home](s.store, HomesKey) {
		if h.ID == id {
			return h.clone(), nil
		}
	}
	return Home{}, apperrors.NotFound("home", id)
}

// AddHome creates a home. The first home becomes the current one.
func (s *RoomService) AddHome(h Home) (Home, error) {
	if strings.TrimSpace(h.Name) == "" {
		return Home{}, apperrors.Invalid("home", "name is required")
	}
	if h.ID == "" {
		h.ID = uuid.NewString()
	}
	h.CreatedAt = s.clock()
	if h.Rooms == nil {
		h.Rooms = []Room{}
	}
	for i := range h.Rooms {
		if h.Rooms[i].ID == "" {
			h.Rooms[i].ID = uuid.NewString()
		}
		if h.Rooms[i].CreatedAt.IsZero() {
			h.Rooms[i].CreatedAt = h.CreatedAt
		}
	}

	first := false
	store.MutateAs(s.store, HomesKey, func(homes []Home) ([]Home, bool) {
		first = len(homes) == 0
		next := make([]Home, 0, len(homes)+1)
		next = append(next, homes...)
		return append(next, h.clone()), true
	})
	if first {
		s.store.Set(CurrentHomeKey, h.ID)
	}

	s.logger.WithFields(logrus.Fields{"home_id": h.ID, "name": h.Name}).Info("Home created")
	return h, nil
}

// UpdateHome applies patch to the home.
func (s *RoomService) UpdateHome(id string, patch HomePatch) (Home, error) {
	return s.mutateHome(id, func(h *Home) error {
		if patch.Name != nil {
			if strings.TrimSpace(*patch.Name) == "" {
				return apperrors.Invalid("home", "name is required")
			}
			h.Name = *patch.Name
		}
		if patch.Address != nil {
			h.Address = *patch.Address
		}
		return nil
	})
}

// DeleteHome removes the home and the devices in its rooms. When it was the
// current home the first remaining home takes over.
func (s *RoomService) DeleteHome(id string) error {
	var removed Home
	var remaining []Home
	found := false
	store.MutateAs(s.store, HomesKey, func(homes []Home) ([]Home, bool) {
		next := make([]Home, 0, len(homes))
		for _, h := range homes {
			if h.ID == id {
				found = true
				removed = h
				continue
			}
			next = append(next, h)
		}
		remaining = next
		return next, found
	})
	if !found {
		return apperrors.NotFound("home", id)
	}

	for _, r := range removed.Rooms {
		s.devices.DeleteByRoom(r.ID)
	}
	if s.CurrentHomeID() == id {
		next := ""
		if len(remaining) > 0 {
			next = remaining[0].ID
		}
		s.store.Set(CurrentHomeKey, next)
	}

	s.logger.WithField("home_id", id).Info("Home deleted")
	return nil
}

// SetCurrentHome selects the active home.
func (s *RoomService) SetCurrentHome(id string) error {
	if _, err := s.Home(id); err != nil {
		return err
	}
	s.store.Set(CurrentHomeKey, id)
	return nil
}

// CurrentHomeID is the selected home id, empty when there is none.
func (s *RoomService) CurrentHomeID() string {
	return store.GetAs[string](s.store, CurrentHomeKey)
}

func (s *RoomService) CurrentHome() (Home, bool) {
	id := s.CurrentHomeID()
	if id == "" {
		return Home{}, false
	}
	h, err := s.Home(id)
	return h, err == nil
}

// Rooms lists the rooms of a home.
func (s *RoomService) Rooms(homeID string) ([]Room, error) {
	h, err := s.Home(homeID)
	if err != nil {
		return nil, err
	}
	return h.Rooms, nil
}

// AddRoom creates a room in the home.
func (s *RoomService) AddRoom(homeID string, room Room) (Room, error) {
	if strings.TrimSpace(room.Name) == "" {
		return Room{}, apperrors.Invalid("room", "name is required")
	}
	if room.ID == "" {
		room.ID = uuid.NewString()
	}
	room.CreatedAt = s.clock()

	_, err := s.mutateHome(homeID, func(h *Home) error {
		for _, existing := range h.Rooms {
			if existing.ID == room.ID {
				return apperrors.Invalid("room", "duplicate id %q", room.ID)
			}
		}
		h.Rooms = append(h.Rooms, room)
		return nil
	})
	if err != nil {
		return Room{}, err
	}

	s.logger.WithFields(logrus.Fields{"home_id": homeID, "room_id": room.ID, "name": room.Name}).Info("Room created")
	return room, nil
}

// UpdateRoom applies patch to a room.
func (s *RoomService) UpdateRoom(homeID, roomID string, patch RoomPatch) (Room, error) {
	var updated Room
	now := s.clock()
	_, err := s.mutateHome(homeID, func(h *Home) error {
		for i := range h.Rooms {
			if h.Rooms[i].ID != roomID {
				continue
			}
			r := &h.Rooms[i]
			if patch.Name != nil {
				r.Name = *patch.Name
			}
			if patch.Type != nil {
				r.Type = *patch.Type
			}
			if patch.Icon != nil {
				r.Icon = *patch.Icon
			}
			r.UpdatedAt = &now
			updated = *r
			return nil
		}
		return apperrors.NotFound("room", roomID)
	})
	return updated, err
}

// DeleteRoom removes the room and every device in it.
func (s *RoomService) DeleteRoom(homeID, roomID string) error {
	_, err := s.mutateHome(homeID, func(h *Home) error {
		next := make([]Room, 0, len(h.Rooms))
		for _, r := range h.Rooms {
			if r.ID != roomID {
				next = append(next, r)
			}
		}
		if len(next) == len(h.Rooms) {
			return apperrors.NotFound("room", roomID)
		}
		h.Rooms = next
		return nil
	})
	if err != nil {
		return err
	}

	removed := s.devices.DeleteByRoom(roomID)
	s.logger.WithFields(logrus.Fields{
		"room_id":         roomID,
		"devices_removed": len(removed),
	}).Info("Room deleted")
	return nil
}

func (s *RoomService) mutateHome(id string, fn func(h *Home) error) (Home, error) {
	now := s.clock()
	var result Home
	var err error
	found := false
	store.MutateAs(s.store, HomesKey, func(homes []Home) ([]Home, bool) {
		for i := range homes {
			if homes[i].ID != id {
				continue
			}
			found = true
			h := homes[i].clone()
			if err = fn(&h); err != nil {
				return nil, false
			}
			h.UpdatedAt = &now
			next := make([]Home, len(homes))
			copy(next, homes)
			next[i] = h
			result = h.clone()
			return next, true
		}
		return nil, false
	})
	if !found {
		return Home{}, apperrors.NotFound("home", id)
	}
	return result, err
}

func (h Home) clone() Home {
	c := h
	c.Rooms = append([]Room(nil), h.Rooms...)
	if c.Rooms == nil {
		c.Rooms = []Room{}
	}
	return c
}
