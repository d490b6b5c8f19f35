package relay

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
)

// Sink is where fanouts built from webhook calls are delivered. A sink either accepts
// the whole fanout or returns an error, in which case nothing should be considered delivered.
type Sink interface {
	Deliver(ctx context.Context, fanout *Fanout) error
}

// SinkConstructorFunc defines a function to create a particular sink type
type SinkConstructorFunc func(*Config) (Sink, error)

// RegisterSink adds a new sink, called by individual sinks in their init() func
func RegisterSink(sinkType string, constructorFunc SinkConstructorFunc) {
	registeredSinks[strings.ToLower(sinkType)] = constructorFunc
}

// NewSink creates the type of sink passed in
func NewSink(config *Config) (Sink, error) {
	sinkFunc, found := registeredSinks[strings.ToLower(config.OutputSink)]
	if !found {
		return nil, fmt.Errorf("no such sink type: '%s'", config.OutputSink)
	}
	return sinkFunc(config)
}

var registeredSinks = map[string]SinkConstructorFunc{
	"log": func(*Config) (Sink, error) { return NewLogSink(), nil },
}

// LogSink writes every fanout to our log, useful in development
type LogSink struct {
	log *logrus.Entry
}

// NewLogSink creates a new log sink
func NewLogSink() *LogSink {
	return &LogSink{log: logrus.WithField("comp", "log_sink")}
}

// Deliver logs the record of the passed in fanout
func (s *LogSink) Deliver(ctx context.Context, fanout *Fanout) error {
	record := fanout.Record()
	log := s.log.WithField("channel", fanout.Channel().String()).WithField("event", record.JSON["event"])
	if record.Binary != nil {
		log = log.WithField("file_name", record.Binary.FileName).WithField("mime_type", record.Binary.MimeType).WithField("file_size", record.Binary.FileSize)
	}
	log.WithField("json", record.JSON).Info("event delivered")
	return nil
}
