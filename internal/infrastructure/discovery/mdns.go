// Package discovery announces the API on the local network over mDNS so
// dashboards can find the simulator without configuration.
package discovery

import (
	"fmt"
	"sort"

	"github.com/grandcat/zeroconf"
	"github.com/sirupsen/logrus"

	"github.com/frostdev-ops/pma-homesim/internal/config"
	"github.com/frostdev-ops/pma-homesim/pkg/version"
)

const (
	defaultService = "_homesim._tcp"
	defaultDomain  = "local."
)

// Announcer owns a registered mDNS service.
type Announcer struct {
	server *zeroconf.Server
	logger *logrus.Logger
}

// Announce registers instance on port. Extra metadata is published as TXT
// records next to the version and API paths.
func Announce(cfg config.DiscoveryConfig, port int, extra map[string]string, logger *logrus.Logger) (*Announcer, error) {
	service, domain := cfg.Service, cfg.Domain
	if service == "" {
		service = defaultService
	}
	if domain == "" {
		domain = defaultDomain
	}
	instance := cfg.Instance
	if instance == "" {
		instance = "homesim"
	}

	server, err := zeroconf.Register(instance, service, domain, port, TXTRecords(extra), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to register mDNS service: %w", err)
	}

	logger.WithFields(logrus.Fields{
		"instance": instance,
		"service":  service,
		"port":     port,
	}).Info("Announced service over mDNS")
	return &Announcer{server: server, logger: logger}, nil
}

// TXTRecords renders key=value pairs in key order.
func TXTRecords(extra map[string]string) []string {
	fields := map[string]string{
		"version": version.GetVersion(),
		"api":     "/api/v1",
		"ws":      "/ws",
	}
	for k, v := range extra {
		fields[k] = v
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	txt := make([]string, 0, len(keys))
	for _, k := range keys {
		txt = append(txt, k+"="+fields[k])
	}
	return txt
}

// Shutdown withdraws the announcement.
func (a *Announcer) Shutdown() {
	if a == nil || a.server == nil {
		return
	}
	a.server.Shutdown()
	a.logger.Info("mDNS announcement withdrawn")
}
