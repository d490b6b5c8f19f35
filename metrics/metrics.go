package metrics

import (
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"
)

var botsToMonitor = map[string]bool{}
var monitorAllBots = os.Getenv("RELAY_PROMETHEUS_MONITOR_ALL_BOTS") == "true"

func init() {
	botsString := os.Getenv("RELAY_PROMETHEUS_MONITOR_BOTS")
	if botsString != "" {
		for _, bot := range strings.Split(botsString, ",") {
			bot = strings.TrimSpace(bot)
			if bot == "" {
				continue
			}
			botsToMonitor[strings.ToLower(bot)] = true
		}
	}

	logrus.WithField("bots", botsToMonitor).Info("prometheus bots to monitor")
}

var summaryObjectives = map[float64]float64{
	0.5:  0.05,  // 50th percentile with a max. absolute error of 0.05.
	0.90: 0.01,  // 90th percentile with a max. absolute error of 0.01.
	0.95: 0.005, // 95th percentile with a max. absolute error of 0.005.
	0.99: 0.001, // 99th percentile with a max. absolute error of 0.001.
}

var command_send_success_kind = promauto.NewSummaryVec(prometheus.SummaryOpts{
	Name:       "kw_command_send_success",
	Help:       "The processing duration (milliseconds) of commands sent successfully by kind",
	Objectives: summaryObjectives,
}, []string{"kind"})

var command_send_refused_kind = promauto.NewSummaryVec(prometheus.SummaryOpts{
	Name:       "kw_command_send_refused",
	Help:       "The processing duration (milliseconds) of commands the bot answered with status false by kind",
	Objectives: summaryObjectives,
}, []string{"kind"})

var command_send_error_kind = promauto.NewSummaryVec(prometheus.SummaryOpts{
	Name:       "kw_command_send_error",
	Help:       "The processing duration (milliseconds) of commands that failed by kind",
	Objectives: summaryObjectives,
}, []string{"kind"})

var command_send_bot = promauto.NewSummaryVec(prometheus.SummaryOpts{
	Name:       "kw_command_send_bot",
	Help:       "The processing duration (milliseconds) of commands by bot and outcome",
	Objectives: summaryObjectives,
}, []string{"bot_id", "status"})

var webhook_received_event = promauto.NewSummaryVec(prometheus.SummaryOpts{
	Name:       "kw_webhook_received",
	Help:       "The processing duration (milliseconds) of accepted webhooks by event type",
	Objectives: summaryObjectives,
}, []string{"event"})

var webhook_error_status = promauto.NewSummaryVec(prometheus.SummaryOpts{
	Name:       "kw_webhook_error",
	Help:       "The processing duration (milliseconds) of rejected webhooks by response status",
	Objectives: summaryObjectives,
}, []string{"status"})

var media_decode_event = promauto.NewSummaryVec(prometheus.SummaryOpts{
	Name:       "kw_media_decode",
	Help:       "The duration (milliseconds) of media download and decryption by event type",
	Objectives: summaryObjectives,
}, []string{"event"})

var media_decode_bytes = promauto.NewCounter(prometheus.CounterOpts{
	Name: "kw_media_decode_bytes",
	Help: "The number of bytes of decrypted media",
})

var sink_deliver_error = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "kw_sink_deliver_error",
	Help: "The number of fanouts a sink failed to deliver",
}, []string{"channel"})

func SetCommandSendSuccess(kind string, duration float64) {
	command_send_success_kind.WithLabelValues(kind).Observe(duration)
}

func SetCommandSendRefused(kind string, duration float64) {
	command_send_refused_kind.WithLabelValues(kind).Observe(duration)
}

func SetCommandSendError(kind string, duration float64) {
	command_send_error_kind.WithLabelValues(kind).Observe(duration)
}

func SetCommandSendByBot(botID string, status string, duration float64) {
	if monitorAllBots || botsToMonitor[strings.ToLower(botID)] {
		command_send_bot.WithLabelValues(strings.ToLower(botID), status).Observe(duration)
	}
}

func SetWebhookReceived(event string, duration float64) {
	webhook_received_event.WithLabelValues(event).Observe(duration)
}

func SetWebhookError(status string, duration float64) {
	webhook_error_status.WithLabelValues(status).Observe(duration)
}

func SetMediaDecode(event string, duration float64, size int) {
	media_decode_event.WithLabelValues(event).Observe(duration)
	media_decode_bytes.Add(float64(size))
}

func IncrementSinkDeliverError(channel string) {
	sink_deliver_error.WithLabelValues(channel).Inc()
}
