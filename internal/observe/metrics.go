// Package observe exports the audio router's data-path counters and levels
// as OpenTelemetry metrics.
//
// The router's callbacks only bump atomic counters; every instrument here is
// asynchronous and reads those counters when the reader collects, so nothing
// on the real-time path touches the OTel SDK.
package observe

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/petems/scan-converter/internal/audio"
)

// meterName is the instrumentation scope name used for all metrics.
const meterName = "github.com/petems/scan-converter"

// Source is read on every collection.
type Source interface {
	Stats() audio.Stats
	Levels() (captured, played audio.Level)
	State() audio.State
}

// Metrics holds the registered instruments.
type Metrics struct {
	BlocksCaptured metric.Int64ObservableCounter
	BlocksPlayed   metric.Int64ObservableCounter
	Dropped        metric.Int64ObservableCounter
	Underruns      metric.Int64ObservableCounter
	// CallbackFaults is reported per host status flag:
	//   attribute.String("flag", ...)
	CallbackFaults metric.Int64ObservableCounter
	// Level is reported per side:
	//   attribute.String("side", "captured"|"played")
	Level          metric.Float64ObservableGauge
	// State is the router lifecycle state (0 idle, 1 negotiating, 2 running).
	State          metric.Int64ObservableGauge

	reg metric.Registration
}

var (
	sideCaptured = metric.WithAttributes(attribute.String("side", "captured"))
	sidePlayed   = metric.WithAttributes(attribute.String("side", "played"))
)

// NewMetrics creates the instruments on mp and registers a callback that
// reads src.
func NewMetrics(mp metric.MeterProvider, src Source) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.BlocksCaptured, err = m.Int64ObservableCounter("scanconverter.audio.blocks_captured",
		metric.WithDescription("Blocks delivered by the capture callback."),
	); err != nil {
		return nil, err
	}
	if met.BlocksPlayed, err = m.Int64ObservableCounter("scanconverter.audio.blocks_played",
		metric.WithDescription("Blocks written to the output from the transfer channel."),
	); err != nil {
		return nil, err
	}
	if met.Dropped, err = m.Int64ObservableCounter("scanconverter.audio.blocks_dropped",
		metric.WithDescription("Captured blocks discarded because the transfer channel was full."),
	); err != nil {
		return nil, err
	}
	if met.Underruns, err = m.Int64ObservableCounter("scanconverter.audio.underruns",
		metric.WithDescription("Playback periods filled with silence."),
	); err != nil {
		return nil, err
	}
	if met.CallbackFaults, err = m.Int64ObservableCounter("scanconverter.audio.callback_faults",
		metric.WithDescription("Host-reported callback status flags by flag."),
	); err != nil {
		return nil, err
	}
	if met.Level, err = m.Float64ObservableGauge("scanconverter.audio.level",
		metric.WithDescription("Latest level reading in [0, 1] by side."),
	); err != nil {
		return nil, err
	}
	if met.State, err = m.Int64ObservableGauge("scanconverter.audio.state",
		metric.WithDescription("Router state: 0 idle, 1 negotiating, 2 running."),
	); err != nil {
		return nil, err
	}

	met.reg, err = m.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		s := src.Stats()
		o.ObserveInt64(met.BlocksCaptured, int64(s.BlocksCaptured))
		o.ObserveInt64(met.BlocksPlayed, int64(s.BlocksPlayed))
		o.ObserveInt64(met.Dropped, int64(s.Dropped))
		o.ObserveInt64(met.Underruns, int64(s.Underruns))
		for flag, n := range s.Faults {
			o.ObserveInt64(met.CallbackFaults, int64(n), metric.WithAttributes(attribute.String("flag", flag)))
		}

		captured, played := src.Levels()
		o.ObserveFloat64(met.Level, float64(captured), sideCaptured)
		o.ObserveFloat64(met.Level, float64(played), sidePlayed)
		o.ObserveInt64(met.State, int64(src.State()))
		return nil
	},
		met.BlocksCaptured, met.BlocksPlayed, met.Dropped, met.Underruns,
		met.CallbackFaults, met.Level, met.State,
	)
	if err != nil {
		return nil, err
	}
	return met, nil
}

// Unregister stops the collection callback.
func (m *Metrics) Unregister() error {
	return m.reg.Unregister()
}
