package diag

import (
	"errors"
	"io"

	"lautenbacher.net/ppmswitch/config"
	"lautenbacher.net/ppmswitch/ppm"
)

// Sink is an observer that holds an external resource.
type Sink interface {
	ppm.Observer
	io.Closer
}

// Open creates the sinks enabled in cfg. Already opened sinks are closed
// again if a later one fails.
func Open(cfg config.DiagnosticsConfig) ([]Sink, error) {
	var sinks []Sink
	if cfg.MQTT.Enabled {
		o, err := NewMQTTObserver(cfg.MQTT)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, o)
	}
	if cfg.Serial.Enabled {
		o, err := NewSerialObserver(cfg.Serial)
		if err != nil {
			return nil, errors.Join(err, CloseAll(sinks))
		}
		sinks = append(sinks, o)
	}
	return sinks, nil
}

func CloseAll(sinks []Sink) error {
	var errs []error
	for _, s := range sinks {
		errs = append(errs, s.Close())
	}
	return errors.Join(errs...)
}
