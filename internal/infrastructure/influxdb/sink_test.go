package influxdb

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frostdev-ops/pma-homesim/internal/core/devices"
	"github.com/frostdev-ops/pma-homesim/internal/core/simulation"
	"github.com/frostdev-ops/pma-homesim/pkg/logger"
)

type capturingWriter struct {
	lines   []string
	flushes int
}

func (c *capturingWriter) WritePoint(p *write.Point) {
	c.lines = append(c.lines, strings.TrimSpace(write.PointToLineProtocol(p, time.Second)))
}

func (c *capturingWriter) Flush() { c.flushes++ }

func TestWriteEnergy(t *testing.T) {
	w := &capturingWriter{}
	sink := NewSink(w, logger.NewNop())
	sink.SetHomeResolver(func() string { return "home-1" })

	at := time.Date(2025, 7, 21, 10, 0, 0, 0, time.UTC)
	err := sink.WriteEnergy(context.Background(), simulation.EnergySample{
		At:    at,
		Total: 1.5,
		Readings: []simulation.EnergyReading{
			{DeviceID: "heater", Name: "Water heater", Type: devices.TypeWaterHeater, RoomID: "bath", KWh: 1.2},
			{DeviceID: "lamp", Name: "Lamp", Type: devices.TypeLight, KWh: 0.3},
		},
	})
	require.NoError(t, err)
	require.Len(t, w.lines, 3)

	assert.True(t, strings.HasPrefix(w.lines[0], "device_energy,"))
	assert.Contains(t, w.lines[0], "device_id=heater")
	assert.Contains(t, w.lines[0], "room_id=bath")
	assert.Contains(t, w.lines[0], "home_id=home-1")
	assert.Contains(t, w.lines[0], "kwh=1.2")
	assert.NotContains(t, w.lines[1], "room_id")

	assert.True(t, strings.HasPrefix(w.lines[2], "home_energy,home_id=home-1"))
	assert.Contains(t, w.lines[2], "kwh=1.5")
	assert.True(t, strings.HasSuffix(w.lines[2], " 1753092000"))
}

func TestClosedSinkRejectsWrites(t *testing.T) {
	w := &capturingWriter{}
	sink := NewSink(w, logger.NewNop())

	sink.Close()
	sink.Close()
	assert.Equal(t, 1, w.flushes)

	err := sink.WriteEnergy(context.Background(), simulation.EnergySample{At: time.Now()})
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.Empty(t, w.lines)
}
