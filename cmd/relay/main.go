package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/evalphobia/logrus_sentry"
	"github.com/kesherwa/relay"
	"github.com/sirupsen/logrus"
	_ "go.uber.org/automaxprocs"

	// load webhook handlers
	_ "github.com/kesherwa/relay/handlers/kesherwa"

	// load output sinks
	_ "github.com/kesherwa/relay/outputs"

	// load available backends
	_ "github.com/kesherwa/relay/backends/kesherwa"
)

var version = "Dev"

func main() {
	config := relay.LoadConfig("relay.toml")

	// if we have a custom version, use it
	if version != "Dev" {
		config.Version = version
	}

	// configure our logger
	logrus.SetOutput(os.Stdout)
	level, err := logrus.ParseLevel(config.LogLevel)
	if err != nil {
		logrus.Fatalf("Invalid log level '%s'", config.LogLevel)
	}
	logrus.SetLevel(level)

	// if we have a DSN entry, try to initialize it
	if config.SentryDSN != "" {
		hook, err := logrus_sentry.NewSentryHook(config.SentryDSN, []logrus.Level{logrus.PanicLevel, logrus.FatalLevel, logrus.ErrorLevel})
		if err != nil {
			logrus.Fatalf("Invalid sentry DSN: '%s': %s", config.SentryDSN, err)
		}
		hook.Timeout = 0
		hook.StacktraceConfiguration.Enable = true
		hook.StacktraceConfiguration.Skip = 4
		hook.StacktraceConfiguration.Context = 5
		logrus.StandardLogger().Hooks.Add(hook)
	}

	backend, err := relay.NewBackend(config)
	if err != nil {
		logrus.Fatalf("Error creating backend: %s", err)
	}

	sink, err := relay.NewSink(config)
	if err != nil {
		logrus.Fatalf("Error creating output sink: %s", err)
	}

	server := relay.NewServer(config, backend, sink)
	err = server.Start()
	if err != nil {
		logrus.Fatalf("Error starting server: %s", err)
	}

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	logrus.WithField("comp", "main").WithField("signal", <-ch).Info("stopping")

	server.Stop()
}
