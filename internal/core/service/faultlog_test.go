package service

import (
	"testing"

	"github.com/berfenger/senec2mqtt/internal/core/domain"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLoggingFaultSink(t *testing.T) {

	require := require.New(t)

	core, logs := observer.New(zapcore.DebugLevel)
	sink := NewLoggingFaultSink(zap.New(core))
	info := domain.ComponentInfo{Id: 11, DeviceId: 1, Kind: domain.ComponentKindCounter}

	sink.Report(info, domain.HealthyRecord(t0))
	require.Equal(0, logs.Len(), "healthy updates are quiet")

	sink.Report(info, domain.FaultRecord{Cause: domain.FaultCauseMalformed, Detail: "malformed reading at PM1OBJ1.U_AC: missing", UpdatedAt: t0})
	require.Equal(1, logs.FilterMessage("component update failed").Len())

	sink.Report(info, domain.HealthyRecord(t0))
	sink.Report(info, domain.HealthyRecord(t0))
	require.Equal(1, logs.FilterMessage("component recovered").Len())
}
