package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	adactor "github.com/berfenger/senec2mqtt/internal/adapter/actor"
	"github.com/berfenger/senec2mqtt/internal/adapter/senec"
	"github.com/berfenger/senec2mqtt/internal/adapter/statefile"
	"github.com/berfenger/senec2mqtt/internal/adapter/store"
	"github.com/berfenger/senec2mqtt/internal/adapter/sunspec"
	"github.com/berfenger/senec2mqtt/internal/config"
	"github.com/berfenger/senec2mqtt/internal/core/actor"
	"github.com/berfenger/senec2mqtt/internal/core/port"
	"github.com/berfenger/senec2mqtt/internal/core/service"
	"github.com/berfenger/senec2mqtt/internal/metrics"
	"github.com/berfenger/senec2mqtt/internal/server"
	"github.com/berfenger/senec2mqtt/internal/util/actorutil"

	pactor "github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/carlmjohnson/versioninfo"
	"go.uber.org/zap"
)

func gracefulShutdown(apiServer *http.Server, done chan bool) {
	// Create context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Listen for the interrupt signal.
	<-ctx.Done()

	log.Println("shutting down gracefully, press Ctrl+C again to force")

	// The context is used to inform the server it has 5 seconds to finish
	// the request it is currently handling
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown with error: %v", err)
	}

	log.Println("Server exiting")

	// Notify the main goroutine that the shutdown is complete
	done <- true
}

func main() {

	// load and print config
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config errors", "error", err)
		return
	}
	slog.Info("Using", "config", cfg.Redacted())

	// zap logger
	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)

	logger := zap.Must(zapCfg.Build())
	defer logger.Sync()

	logger.Info("senec2mqtt starting", zap.String("version", versioninfo.Short()), zap.Time("revision_time", versioninfo.LastCommit))

	// init actor system
	as := actorutil.NewActorSystemWithZapLogger(logger)
	ctx := as.Root

	m := metrics.NewMetrics()
	accumulator := service.NewEnergyAccumulator()
	if cfg.StateFile != "" {
		n, err := statefile.Restore(cfg.StateFile, accumulator)
		if err != nil {
			logger.Warn("could not restore energy totals, starting from zero", zap.String("file", cfg.StateFile), zap.Error(err))
		} else {
			logger.Info("energy totals restored", zap.String("file", cfg.StateFile), zap.Int("keys", n))
		}
	}

	devices, err := buildDevices(cfg, accumulator, m, logger)
	if err != nil {
		logger.Error("invalid device setup", zap.Error(err))
		return
	}

	eventStream := &eventstream.EventStream{}
	props := pactor.PropsFromProducer(func() pactor.Actor {
		return actor.NewMasterOfPuppetsActor(*cfg, devices, eventStream, mqttActorProvider(cfg, logger), kafkaActorProvider(cfg, logger), logger)
	})
	pid, err := ctx.SpawnNamed(props, "master")
	if err != nil {
		logger.Error("could not start master actor", zap.Error(err))
		return
	}

	server := server.NewServer(*cfg, ctx, pid, m.Handler())
	// Create a done channel to signal when the shutdown is complete
	done := make(chan bool, 1)

	// Run graceful shutdown in a separate goroutine
	go gracefulShutdown(server, done)

	err = server.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		panic(fmt.Sprintf("http server error: %s", err))
	}

	// Wait for the graceful shutdown to complete
	<-done
	log.Println("Graceful shutdown complete.")

	if err := ctx.StopFuture(pid).Wait(); err != nil {
		logger.Warn("master actor did not stop in time", zap.Error(err))
	}
	if cfg.StateFile != "" {
		if err := statefile.Save(cfg.StateFile, accumulator.Snapshot(), time.Now()); err != nil {
			logger.Error("could not persist energy totals", zap.Error(err))
		}
	}
	as.Shutdown()
}

// buildDevices wires one update cycle per configured device. Accumulator and
// value store are shared by all devices.
func buildDevices(cfg *config.Config, accumulator *service.EnergyAccumulator, m *metrics.Metrics, logger *zap.Logger) ([]actor.DeviceSpec, error) {
	values := store.NewMemory()
	faultSink := port.FaultSinks{service.NewLoggingFaultSink(logger), m}

	var saveMu sync.Mutex
	persist := func() {
		if cfg.StateFile == "" {
			return
		}
		saveMu.Lock()
		defer saveMu.Unlock()
		if err := statefile.Save(cfg.StateFile, accumulator.Snapshot(), time.Now()); err != nil {
			logger.Warn("could not persist energy totals", zap.String("file", cfg.StateFile), zap.Error(err))
		}
	}

	specs := make([]actor.DeviceSpec, 0, len(cfg.Devices))
	for _, d := range cfg.Devices {
		name := d.DisplayName()

		var factory port.DeviceClientFactory
		switch d.Type {
		case config.DeviceTypeSenec:
			factory = senec.Factory(name, senec.Options{
				IPAddress:   d.Senec.IPAddress,
				UseHTTPS:    d.Senec.UseHTTPS,
				InsecureTLS: d.Senec.InsecureTLS,
				Timeout:     time.Duration(d.Senec.TimeoutMillis) * time.Millisecond,
			}, logger)
		case config.DeviceTypeSunSpec:
			factory = sunspec.Factory(name, sunspec.Options{
				Host:       d.SunSpec.Host,
				Port:       d.SunSpec.Port,
				InverterId: uint8(d.SunSpec.InverterId),
				MeterId:    uint8(d.SunSpec.MeterId),
				Timeout:    time.Duration(d.SunSpec.TimeoutMillis) * time.Millisecond,
			}, logger, m.ModbusInstrument())
		default:
			return nil, fmt.Errorf("device %d: unknown type %q", d.Id, d.Type)
		}

		session := service.NewDeviceSession(name, factory, logger)
		cycle := service.NewUpdateCycle(d.DeviceId(), session, accumulator, values, logger,
			service.WithSharedReading(d.Shared()),
			service.WithFaultSink(faultSink))

		infos, err := d.ComponentInfos()
		if err != nil {
			return nil, err
		}
		for _, info := range infos {
			if _, err := cycle.Register(info); err != nil {
				return nil, err
			}
		}

		deviceId := d.DeviceId()
		specs = append(specs, actor.DeviceSpec{
			Id:    deviceId,
			Name:  name,
			Type:  d.Type,
			Cycle: cycle,
			OnCycle: func(report service.CycleReport) {
				m.ObserveCycle(deviceId, report.Duration, report.Failed())
				for _, comp := range cycle.Components() {
					totals := accumulator.Totals(comp.Meter.Key())
					m.SetEnergy(comp.Info, totals.Imported, totals.Exported)
				}
				persist()
			},
		})
	}
	return specs, nil
}

func mqttActorProvider(cfg *config.Config, logger *zap.Logger) actor.PublisherActorProvider {
	if !cfg.MQTT.Enabled() {
		return nil
	}
	newClient := adactor.NewMQTTClientFactory(cfg.MQTT)
	return func(es *eventstream.EventStream) pactor.Actor {
		return adactor.NewMQTTActor(newClient, es, logger)
	}
}

func kafkaActorProvider(cfg *config.Config, logger *zap.Logger) actor.PublisherActorProvider {
	if !cfg.Kafka.Enabled() {
		return nil
	}
	return func(es *eventstream.EventStream) pactor.Actor {
		return adactor.NewKafkaActor(func() adactor.MessageWriter {
			return adactor.NewKafkaWriter(cfg.Kafka)
		}, es, logger)
	}
}
