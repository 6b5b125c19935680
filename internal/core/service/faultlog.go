package service

import (
	"sync"

	"github.com/berfenger/senec2mqtt/internal/core/domain"
	"github.com/berfenger/senec2mqtt/internal/core/port"
	"go.uber.org/zap"
)

// LoggingFaultSink logs every failed update and the first healthy update after
// a failure.
type LoggingFaultSink struct {
	logger *zap.Logger
	mu     sync.Mutex
	failed map[domain.ComponentId]bool
}

func NewLoggingFaultSink(logger *zap.Logger) *LoggingFaultSink {
	return &LoggingFaultSink{
		logger: logger,
		failed: make(map[domain.ComponentId]bool),
	}
}

func (s *LoggingFaultSink) Report(info domain.ComponentInfo, record domain.FaultRecord) {
	s.mu.Lock()
	wasFailed := s.failed[info.Id]
	s.failed[info.Id] = !record.Healthy
	s.mu.Unlock()

	fields := []zap.Field{
		zap.Int("device", int(info.DeviceId)),
		zap.String("component", info.String()),
	}
	switch {
	case !record.Healthy:
		s.logger.Warn("component update failed", append(fields,
			zap.Stringer("cause", record.Cause),
			zap.String("detail", record.Detail))...)
	case wasFailed:
		s.logger.Info("component recovered", fields...)
	}
}

var _ port.FaultSink = (*LoggingFaultSink)(nil)
