package notifications

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frostdev-ops/pma-homesim/internal/core/devices"
	"github.com/frostdev-ops/pma-homesim/internal/core/store"
	apperrors "github.com/frostdev-ops/pma-homesim/pkg/errors"
	"github.com/frostdev-ops/pma-homesim/pkg/logger"
)

func newCenter(capacity int) *Center {
	return NewCenter(store.New(logger.NewNop()), capacity, logger.NewNop())
}

func TestCenterNewestFirstAndBounded(t *testing.T) {
	c := newCenter(3)
	for _, title := range []string{"a", "b", "c", "d"} {
		c.Add(Notification{Title: title})
	}

	list := c.List()
	require.Len(t, list, 3)
	assert.Equal(t, "d", list[0].Title)
	assert.Equal(t, "b", list[2].Title)
	assert.Equal(t, LevelInfo, list[0].Type)
	assert.Equal(t, 3, c.UnreadCount())
}

func TestCenterReadAndDelete(t *testing.T) {
	c := newCenter(0)
	first := c.Add(Notification{Title: "first"})
	c.Add(Notification{Title: "second"})

	require.NoError(t, c.MarkRead(first.ID))
	assert.Equal(t, 1, c.UnreadCount())
	assert.True(t, apperrors.IsNotFound(c.MarkRead("missing")))

	c.MarkAllRead()
	assert.Equal(t, 0, c.UnreadCount())

	require.NoError(t, c.Delete(first.ID))
	assert.Len(t, c.List(), 1)
	assert.True(t, apperrors.IsNotFound(c.Delete(first.ID)))
}

func TestCenterSinks(t *testing.T) {
	c := newCenter(0)
	var delivered []string
	c.AddSink(SinkFunc(func(n Notification) { delivered = append(delivered, n.Title) }))
	c.AddSink(SinkFunc(func(Notification) { panic("broken sink") }))

	c.Add(Notification{Title: "one"})

	enabled := false
	c.SetDeliveryGate(func() bool { return enabled })
	c.Add(Notification{Title: "muted"})

	assert.Equal(t, []string{"one"}, delivered)
	assert.Len(t, c.List(), 2, "muted notifications are still stored")
}

func TestCenterSmart(t *testing.T) {
	c := newCenter(0)
	d := devices.Device{ID: "td", Name: "Towel Dryer", CurrentTemperature: 45}

	tests := []struct {
		kind  SmartKind
		level Level
	}{
		{SmartTemperatureReached, LevelSuccess},
		{SmartEnergyHigh, LevelWarning},
		{SmartMaintenanceReminder, LevelInfo},
		{SmartAutomationExecuted, LevelSuccess},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			n := c.Smart(tt.kind, d)
			assert.Equal(t, tt.level, n.Type)
			assert.Equal(t, "td", n.DeviceID)
			assert.NotEmpty(t, n.Title)
		})
	}
}
