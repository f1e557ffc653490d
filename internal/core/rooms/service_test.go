package rooms

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frostdev-ops/pma-homesim/internal/core/store"
	apperrors "github.com/frostdev-ops/pma-homesim/pkg/errors"
	"github.com/frostdev-ops/pma-homesim/pkg/logger"
)

type fakeDevices struct {
	byRoom  map[string][]string
	deleted []string
}

func (f *fakeDevices) DeleteByRoom(roomID string) []string {
	ids := f.byRoom[roomID]
	delete(f.byRoom, roomID)
	f.deleted = append(f.deleted, ids...)
	return ids
}

func newService() (*RoomService, *fakeDevices) {
	devs := &fakeDevices{byRoom: map[string][]string{"bath": {"wh", "td"}, "kitchen": {"fridge"}}}
	return NewRoomService(store.New(logger.NewNop()), devs, logger.NewNop()), devs
}

func TestHomesAndCurrentHome(t *testing.T) {
	svc, _ := newService()

	_, ok := svc.CurrentHome()
	assert.False(t, ok)

	first, err := svc.AddHome(Home{Name: "Apartment"})
	require.NoError(t, err)
	second, err := svc.AddHome(Home{Name: "Beach house"})
	require.NoError(t, err)

	assert.Equal(t, first.ID, svc.CurrentHomeID(), "first home becomes current")

	require.NoError(t, svc.SetCurrentHome(second.ID))
	assert.Equal(t, second.ID, svc.CurrentHomeID())
	assert.True(t, apperrors.IsNotFound(svc.SetCurrentHome("nope")))

	updated, err := svc.UpdateHome(second.ID, HomePatch{Address: strPtr("1 Beach Rd")})
	require.NoError(t, err)
	assert.Equal(t, "1 Beach Rd", updated.Address)
	require.NotNil(t, updated.UpdatedAt)

	_, err = svc.AddHome(Home{})
	assert.True(t, apperrors.IsInvalid(err))

	require.NoError(t, svc.DeleteHome(second.ID))
	assert.Equal(t, first.ID, svc.CurrentHomeID(), "current falls back to the first remaining home")
	assert.Len(t, svc.Homes(), 1)
}

func TestRooms(t *testing.T) {
	svc, devs := newService()
	home, err := svc.AddHome(Home{Name: "Apartment"})
	require.NoError(t, err)

	bath, err := svc.AddRoom(home.ID, Room{ID: "bath", Name: "Bathroom", Type: "bathroom"})
	require.NoError(t, err)
	_, err = svc.AddRoom(home.ID, Room{ID: "kitchen", Name: "Kitchen"})
	require.NoError(t, err)

	_, err = svc.AddRoom(home.ID, Room{ID: "bath", Name: "Again"})
	assert.True(t, apperrors.IsInvalid(err))
	_, err = svc.AddRoom("ghost", Room{Name: "Attic"})
	assert.True(t, apperrors.IsNotFound(err))

	renamed, err := svc.UpdateRoom(home.ID, bath.ID, RoomPatch{Name: strPtr("Main bathroom")})
	require.NoError(t, err)
	assert.Equal(t, "Main bathroom", renamed.Name)

	require.NoError(t, svc.DeleteRoom(home.ID, bath.ID))
	assert.Equal(t, []string{"wh", "td"}, devs.deleted)
	assert.True(t, apperrors.IsNotFound(svc.DeleteRoom(home.ID, bath.ID)))

	rooms, err := svc.Rooms(home.ID)
	require.NoError(t, err)
	require.Len(t, rooms, 1)
	assert.Equal(t, "kitchen", rooms[0].ID)

	require.NoError(t, svc.DeleteHome(home.ID))
	assert.Contains(t, devs.deleted, "fridge")
	assert.Equal(t, "", svc.CurrentHomeID())
}

func strPtr(s string) *string { return &s }
