package discovery

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/frostdev-ops/pma-homesim/pkg/version"
)

func TestTXTRecords(t *testing.T) {
	txt := TXTRecords(map[string]string{"home": "My Home", "api": "/v2"})

	assert.Equal(t, []string{
		"api=/v2",
		"home=My Home",
		"version=" + version.GetVersion(),
		"ws=/ws",
	}, txt)
}

func TestShutdownNilAnnouncer(t *testing.T) {
	var a *Announcer
	assert.NotPanics(t, a.Shutdown)
}
