package zerolog

import (
	"github.com/rs/zerolog"
	"github.com/unkn0wn-root/flowstore/logging"
)

var _ logging.Logger = Logger{}

// Logger adapts a zerolog.Logger. Use zerolog.Nop() for silence.
type Logger struct{ L zerolog.Logger }

func (z Logger) Debug(msg string, f logging.Fields) { z.emit(z.L.Debug(), msg, f) }
func (z Logger) Info(msg string, f logging.Fields)  { z.emit(z.L.Info(), msg, f) }
func (z Logger) Warn(msg string, f logging.Fields)  { z.emit(z.L.Warn(), msg, f) }
func (z Logger) Error(msg string, f logging.Fields) { z.emit(z.L.Error(), msg, f) }

func (z Logger) emit(e *zerolog.Event, msg string, f logging.Fields) {
	if e == nil {
		return // level disabled
	}
	for k, v := range f {
		if err, ok := v.(error); ok {
			e = e.AnErr(k, err)
			continue
		}
		e = e.Interface(k, v)
	}
	e.Msg(msg)
}
