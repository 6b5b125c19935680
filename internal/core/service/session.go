package service

import (
	"context"
	"errors"

	"github.com/berfenger/senec2mqtt/internal/core/domain"
	"github.com/berfenger/senec2mqtt/internal/core/port"
	"go.uber.org/zap"
)

// DeviceSession owns the connection shared by all components of one device.
// The client is built on first use, at most once.
//
// A session is not safe for concurrent use. It is driven by a single update
// cycle; schedulers running cycles of the same device from several goroutines
// must serialize them.
type DeviceSession struct {
	name    string
	factory port.DeviceClientFactory
	client  port.DeviceClient
	logger  *zap.Logger
}

func NewDeviceSession(name string, factory port.DeviceClientFactory, logger *zap.Logger) *DeviceSession {
	return &DeviceSession{
		name:    name,
		factory: factory,
		logger:  logger.With(zap.String("device", name)),
	}
}

func (s *DeviceSession) Name() string {
	return s.name
}

func (s *DeviceSession) Connected() bool {
	return s.client != nil
}

// EnsureConnected returns the shared client, building it on the first call.
// A failed construction is retried on the next call.
func (s *DeviceSession) EnsureConnected() (port.DeviceClient, error) {
	if s.client != nil {
		return s.client, nil
	}
	s.logger.Info("session: creating device client")
	client, err := s.factory()
	if err != nil {
		return nil, &domain.DeviceUnavailableError{Device: s.name, Err: err}
	}
	if client == nil {
		return nil, &domain.DeviceUnavailableError{Device: s.name, Err: errors.New("factory returned no client")}
	}
	s.client = client
	return client, nil
}

// Read fetches the current raw reading. Transport failures surface as
// *domain.DeviceUnavailableError and leave the session usable for the next read.
func (s *DeviceSession) Read(ctx context.Context) (domain.RawReading, error) {
	client, err := s.EnsureConnected()
	if err != nil {
		return nil, err
	}
	reading, err := client.GetValues(ctx)
	if err != nil {
		if domain.IsMalformedReading(err) || domain.IsDeviceUnavailable(err) {
			return nil, err
		}
		return nil, &domain.DeviceUnavailableError{Device: s.name, Err: err}
	}
	if reading == nil {
		return nil, &domain.MalformedReadingError{Path: "/", Reason: "empty reading"}
	}
	return reading, nil
}
