package port

import (
	"context"

	"github.com/berfenger/senec2mqtt/internal/core/domain"
)

// DeviceClient fetches one raw reading from a connected physical device.
type DeviceClient interface {
	GetValues(ctx context.Context) (domain.RawReading, error)
}

// DeviceClientFactory builds the client for one device. It is called at most
// once per session.
type DeviceClientFactory func() (DeviceClient, error)
