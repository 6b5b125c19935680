package port

import "github.com/berfenger/senec2mqtt/internal/core/domain"

// FaultSink receives every fault record written by a fault scope.
type FaultSink interface {
	Report(info domain.ComponentInfo, record domain.FaultRecord)
}

type FaultSinkFunc func(info domain.ComponentInfo, record domain.FaultRecord)

func (f FaultSinkFunc) Report(info domain.ComponentInfo, record domain.FaultRecord) {
	f(info, record)
}

// FaultSinks fans a record out to several sinks, in order.
type FaultSinks []FaultSink

func (s FaultSinks) Report(info domain.ComponentInfo, record domain.FaultRecord) {
	for _, sink := range s {
		if sink != nil {
			sink.Report(info, record)
		}
	}
}

// ensure interface compliance
var (
	_ FaultSink = FaultSinkFunc(nil)
	_ FaultSink = FaultSinks(nil)
)
