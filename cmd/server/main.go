package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/frostdev-ops/pma-homesim/internal/api"
	"github.com/frostdev-ops/pma-homesim/internal/config"
	"github.com/frostdev-ops/pma-homesim/internal/database/backend"
	"github.com/frostdev-ops/pma-homesim/internal/infrastructure/discovery"
	"github.com/frostdev-ops/pma-homesim/internal/infrastructure/influxdb"
	"github.com/frostdev-ops/pma-homesim/internal/infrastructure/mqtt"
	"github.com/frostdev-ops/pma-homesim/internal/smarthome"
	"github.com/frostdev-ops/pma-homesim/internal/websocket"
	"github.com/frostdev-ops/pma-homesim/pkg/logger"
	"github.com/frostdev-ops/pma-homesim/pkg/version"
)

func main() {
	// Initialize logger
	log := logger.New()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration: ", err)
	}
	log.Configure(cfg.Logging.Level, cfg.Logging.Format)
	log.WithField("version", version.GetFullVersion()).Info("Starting smart home simulator")

	ctx := context.Background()

	// Open snapshot storage
	storage, err := backend.Open(ctx, cfg.Persistence, log.Logger)
	if err != nil {
		log.Fatal("Failed to open persistence backend: ", err)
	}
	defer storage.Close()
	log.WithField("backend", storage.Kind).Info("Persistence backend ready")

	app := smarthome.New(cfg, storage.Backend, log.Logger)

	// Optional exporters attach before Start so they see the first sample.
	var energySink *influxdb.Sink
	if cfg.InfluxDB.Enabled {
		energySink, err = influxdb.Connect(ctx, cfg.InfluxDB, log.Logger)
		if err != nil {
			log.WithError(err).Warn("InfluxDB export disabled")
		} else {
			energySink.SetHomeResolver(app.Rooms.CurrentHomeID)
			app.Clock.AddSink(energySink)
		}
	}

	if err := app.Start(ctx); err != nil {
		log.Fatal("Failed to start simulation: ", err)
	}

	// Create WebSocket hub
	hubCtx, stopHub := context.WithCancel(ctx)
	wsHub := websocket.NewHub(app.Store, websocket.HubConfig{
		PingInterval: time.Duration(cfg.WebSocket.PingInterval) * time.Second,
		PongTimeout:  time.Duration(cfg.WebSocket.PongTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.WebSocket.WriteTimeout) * time.Second,
	}, log.Logger)
	wsHub.SetObserver(app.Metrics)
	wsHub.Mirror()
	app.Notifications.AddSink(wsHub)
	go wsHub.Run(hubCtx)

	var (
		mqttClient *mqtt.Client
		mirror     *mqtt.Mirror
	)
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT, log.Logger)
		if err != nil {
			log.WithError(err).Warn("MQTT mirror disabled")
		} else {
			mirror = mqtt.NewMirror(mqttClient, app.Store, app.Devices, app.Loop, cfg.MQTT.TopicPrefix, log.Logger)
			if err := mirror.Start(); err != nil {
				log.WithError(err).Warn("Failed to start MQTT mirror")
			} else {
				app.Notifications.AddSink(mirror)
			}
		}
	}

	var announcer *discovery.Announcer
	if cfg.Discovery.Enabled {
		extra := map[string]string{}
		if home, ok := app.Rooms.CurrentHome(); ok {
			extra["home"] = home.Name
		}
		announcer, err = discovery.Announce(cfg.Discovery, cfg.Server.Port, extra, log.Logger)
		if err != nil {
			log.WithError(err).Warn("mDNS announcement disabled")
		}
	}

	// Initialize router
	router := api.NewRouter(cfg, app, wsHub, log)

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server
	go func() {
		log.Infof("Listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server: ", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("Server forced to shutdown")
	}
	announcer.Shutdown()
	if mirror != nil {
		mirror.Stop()
	}
	if mqttClient != nil {
		mqttClient.Close()
	}
	stopHub()

	if err := app.Stop(shutdownCtx); err != nil {
		log.WithError(err).Warn("Simulation did not stop cleanly")
	}
	if energySink != nil {
		energySink.Close()
	}
	log.FlushPending()

	log.Info("Server exited")
}
