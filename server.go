package relay

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"os"
	"runtime/debug"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/kesherwa/relay/metrics"
	"github.com/kesherwa/relay/utils"
	"github.com/nyaruka/librato"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Server is the main interface handlers use to interact with the relay. It provides an
// abstraction that makes mocking easier for isolated unit tests
type Server interface {
	Config() *Config

	AddHandlerRoute(handler ChannelHandler, method string, action string, handlerFunc ChannelHandleFunc)

	Router() chi.Router

	Start() error
	Stop() error
}

// NewServer creates a new Server for the passed in configuration. The server will have to be started
// afterwards, which is when configuration options are checked.
func NewServer(config *Config, backend Backend, sink Sink) Server {
	router := chi.NewRouter()
	router.Use(middleware.StripSlashes)
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(30 * time.Second))

	chanRouter := chi.NewRouter()
	router.Mount("/c/", chanRouter)

	s := &server{
		config:  config,
		backend: backend,
		sink:    sink,
		sender:  NewSender(backend, NewConfigCredentialStore(config), config.ContinueOnFail),

		router:     router,
		chanRouter: chanRouter,

		waitGroup: &sync.WaitGroup{},
	}

	router.Post("/api/commands", s.handleSendCommands)
	router.Get("/api/credentials/check", s.handleCheckCredential)
	s.routes = append(s.routes, fmt.Sprintf("%-30s - %s", "/api/commands", "send a batch of commands"))
	s.routes = append(s.routes, fmt.Sprintf("%-30s - %s", "/api/credentials/check", "check the bot credential"))

	return s
}

// Start starts the Server listening for incoming requests. It will return an error
// if it encounters any unrecoverable error
func (s *server) Start() error {
	// set our user agent, needs to happen before we do anything so we don't change have threading issues
	utils.HTTPUserAgent = fmt.Sprintf("Relay/%s", s.config.Version)

	// configure librato if we have configuration options for it
	host, _ := os.Hostname()
	if s.config.LibratoUsername != "" {
		librato.Configure(s.config.LibratoUsername, s.config.LibratoToken, host, time.Second, s.waitGroup)
		librato.Start()
	}

	if err := s.backend.Start(); err != nil {
		return err
	}

	// wire up our main pages
	s.router.NotFound(s.handle404)
	s.router.MethodNotAllowed(s.handle405)
	s.router.Get("/", s.handleIndex)
	s.router.Get("/status", s.handleStatus)
	s.router.Get("/c/metrics", promhttp.Handler().ServeHTTP)

	if err := s.initializeChannelHandlers(); err != nil {
		return err
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.config.Address, s.config.Port),
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	s.waitGroup.Add(1)
	go func() {
		defer s.waitGroup.Done()
		err := s.httpServer.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			logrus.WithFields(logrus.Fields{
				"comp":  "server",
				"state": "stopping",
				"err":   err,
			}).Error()
		}
	}()

	logrus.WithFields(logrus.Fields{
		"comp":    "server",
		"port":    s.config.Port,
		"state":   "started",
		"version": s.config.Version,
	}).Info("server listening on ", s.config.Port)

	return nil
}

// Stop stops the server, returning only after all threads have stopped
func (s *server) Stop() error {
	log := logrus.WithField("comp", "server")
	log.WithField("state", "stopping").Info("stopping server")

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(context.Background()); err != nil {
			log.WithField("state", "stopping").WithError(err).Error("error shutting down server")
		}
	}

	if err := s.backend.Stop(); err != nil {
		return err
	}

	if closer, ok := s.sink.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			log.WithError(err).Error("error closing sink")
		}
	}

	librato.Stop()

	s.waitGroup.Wait()

	log.WithField("state", "stopped").Info("server stopped")
	return nil
}

func (s *server) Config() *Config   { return s.config }
func (s *server) Router() chi.Router { return s.router }

type server struct {
	backend Backend
	sink    Sink
	sender  *Sender

	httpServer *http.Server
	router     *chi.Mux
	chanRouter *chi.Mux

	config *Config

	waitGroup *sync.WaitGroup

	routes []string
}

func (s *server) initializeChannelHandlers() error {
	for _, handler := range registeredHandlers {
		if err := handler.Initialize(s); err != nil {
			return errors.Wrapf(err, "unable to initialize handler %s", handler.ChannelName())
		}
		logrus.WithField("comp", "server").WithField("handler", handler.ChannelName()).WithField("handler_type", handler.ChannelType()).Info("handler initialized")
	}

	sort.Strings(s.routes)
	return nil
}

// AddHandlerRoute mounts the passed in handler func under /c/{channel type}/{action}
func (s *server) AddHandlerRoute(handler ChannelHandler, method string, action string, handlerFunc ChannelHandleFunc) {
	method = strings.ToLower(method)
	path := fmt.Sprintf("/%s", strings.ToLower(handler.ChannelType()))
	if action != "" {
		path = fmt.Sprintf("%s/%s", path, strings.Trim(action, "/"))
	}

	s.chanRouter.Method(method, path, s.channelHandleWrapper(handler, handlerFunc))
	s.routes = append(s.routes, fmt.Sprintf("%-30s - %s %s", "/c"+path, handler.ChannelName(), action))
}

func (s *server) channelHandleWrapper(handler ChannelHandler, handlerFunc ChannelHandleFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ctx, cancel := context.WithTimeout(r.Context(), time.Second*30)
		defer cancel()

		// cookies never authenticate a webhook and shouldn't end up in our logs
		r.Header.Del("Cookie")
		r = r.WithContext(ctx)

		log := logrus.WithField("comp", "server").WithField("handler", handler.ChannelName()).WithField("url", r.URL.Path)

		defer func() {
			if panicLog := recover(); panicLog != nil {
				debug.PrintStack()
				log.WithField("trace", panicLog).Error("panic handling request")
				WriteError(ctx, w, r, errors.New("panic handling request"))
			}
		}()

		fanout, err := handlerFunc(ctx, w, r)
		if err == nil && fanout == nil {
			err = errors.New("handler produced no event")
		}
		if err == nil {
			if err = s.sink.Deliver(ctx, fanout); err != nil {
				metrics.IncrementSinkDeliverError(fanout.Channel().String())
				err = errors.Wrap(err, "unable to deliver event")
			}
		}

		duration := time.Since(start)
		secondDuration := float64(duration) / float64(time.Second)
		millisecondDuration := float64(duration) / float64(time.Millisecond)

		if err != nil {
			status := ErrorStatus(err)
			entry := log.WithError(err).WithField("resp_status", status).WithField("elapsed", duration)
			if status == http.StatusUnauthorized {
				entry.Warn("webhook rejected")
			} else {
				entry.Error("error handling request")
			}

			librato.Gauge(fmt.Sprintf("relay.webhook_error_%d", status), secondDuration)
			metrics.SetWebhookError(strconv.Itoa(status), millisecondDuration)
			WriteError(ctx, w, r, err)
			return
		}

		event := fmt.Sprint(fanout.Record().JSON["event"])
		librato.Gauge(fmt.Sprintf("relay.webhook_receive_%s", event), secondDuration)
		metrics.SetWebhookReceived(event, millisecondDuration)
		log.WithField("event", event).WithField("channel", fanout.Channel().String()).WithField("elapsed", duration).Info("event received")

		if err := WriteWebhookReceived(ctx, w); err != nil {
			log.WithError(err).Error("error writing response")
		}
	}
}

func (s *server) handleIndex(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	buf.WriteString("<title>relay</title><body><pre>\n")
	buf.WriteString(splash)
	buf.WriteString(s.config.Version)

	buf.WriteString(s.backend.Health())

	buf.WriteString("\n\n")
	buf.WriteString(strings.Join(s.routes, "\n"))
	buf.WriteString("</pre></body>")
	w.Write(buf.Bytes())
}

func (s *server) handle404(w http.ResponseWriter, r *http.Request) {
	logrus.WithField("url", r.URL.String()).WithField("method", r.Method).WithField("resp_status", "404").Info("not found")
	errors := []any{NewErrorData(fmt.Sprintf("not found: %s", r.URL.String()))}
	if err := WriteDataResponse(r.Context(), w, http.StatusNotFound, "Not Found", errors); err != nil {
		logrus.WithError(err).Error()
	}
}

func (s *server) handle405(w http.ResponseWriter, r *http.Request) {
	logrus.WithField("url", r.URL.String()).WithField("method", r.Method).WithField("resp_status", "405").Info("invalid method")
	errors := []any{NewErrorData(fmt.Sprintf("method not allowed: %s", r.Method))}
	if err := WriteDataResponse(r.Context(), w, http.StatusMethodNotAllowed, "Method Not Allowed", errors); err != nil {
		logrus.WithError(err).Error()
	}
}

func (s *server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if s.config.StatusUsername != "" {
		user, pass, ok := r.BasicAuth()
		if !ok || user != s.config.StatusUsername || pass != s.config.StatusPassword {
			w.Header().Set("WWW-Authenticate", `Basic realm="Authenticate"`)
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte("Unauthorised.\n"))
			return
		}
	}

	var buf bytes.Buffer
	buf.WriteString("<title>relay</title><body><pre>\n")
	buf.WriteString(splash)
	buf.WriteString(s.config.Version)

	buf.WriteString("\n\n")
	buf.WriteString(s.backend.Status())
	buf.WriteString(fmt.Sprintf("sink:    %s\n", s.config.OutputSink))
	buf.WriteString("</pre></body>")
	w.Write(buf.Bytes())
}

var splash = `
  _  __        _                 __        ___
 | |/ /___ ___| |__   ___ _ __   \ \      / / \     _ __ ___| | __ _ _   _
 | ' // _ / __| '_ \ / _ \ '__|   \ \ /\ / / _ \   | '__/ _ \ |/ _' | | | |
 | . \  __\__ \ | | |  __/ |       \ V  V / ___ \  | | |  __/ | (_| | |_| |
 |_|\_\___|___/_| |_|\___|_|        \_/\_/_/   \_\ |_|  \___|_|\__,_|\__, |
                                                                     |___/ v`
