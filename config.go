package relay

import "github.com/nyaruka/ezconf"

// Config is our top level configuration object
type Config struct {
	Backend        string `help:"the backend that will be used by the relay (currently only kesherwa is supported)"`
	BackendURL     string `help:"the URL pattern of the bot backend, %s is replaced by the bot id"`
	SentryDSN      string `help:"the DSN used for logging errors to Sentry"`
	Address        string `help:"the network interface address the relay will bind to"`
	Port           int    `help:"the port the relay will listen on"`
	LogLevel       string `help:"the logging level the relay should use"`
	Version        string `help:"the version that will be used in request and response headers"`
	StatusUsername string `help:"the username that is needed to authenticate against the /status endpoint"`
	StatusPassword string `help:"the password that is needed to authenticate against the /status endpoint"`

	BotToken         string `help:"the bearer token of the bot"`
	BotID            string `help:"the id of the bot, used as the subdomain of the bot backend"`
	SkipTLSVerify    bool   `help:"whether we connect to the bot backend even if its certificate can't be validated"`
	ContinueOnFail   bool   `help:"whether a failed command in a batch is recorded and the batch continues"`
	MaxBodyBytes     int64  `help:"the maximum size in bytes of an incoming webhook body"`
	WebhookPath      string `help:"the path the webhook is exposed on, under /c/kw/"`
	WebhookAuth      string `help:"the webhook authentication mode: none, header or query"`
	WebhookHeader    string `help:"the header that carries the webhook secret when auth is header"`
	WebhookHeaderVal string `help:"the expected value of the webhook header"`
	WebhookQuery     string `help:"the query parameter that carries the webhook secret when auth is query"`
	WebhookQueryVal  string `help:"the expected value of the webhook query parameter"`

	MediaSourceHost   string `help:"the media host announced by the bot backend"`
	MediaTargetHost   string `help:"the media host encrypted files are downloaded from"`
	MaxMediaBytes     int64  `help:"the maximum size in bytes of an encrypted media download"`
	VerifyMediaMAC    bool   `help:"whether the truncated HMAC of downloaded media is checked before decrypting"`
	ConvertWebPImages bool   `help:"whether WebP images are converted to PNG before being delivered"`

	OutputSink               string `help:"where webhook outputs are delivered: log, rabbitmq or webhook"`
	RabbitmqURL              string `help:"rabbitmq url"`
	RabbitmqRetryPubAttempts int    `help:"rabbitmq retry attempts"`
	RabbitmqRetryPubDelay    int    `help:"rabbitmq retry delay"`
	OutputExchangeName       string `help:"the exchange webhook outputs are published to"`
	ForwardURL               string `help:"the url webhook outputs are posted to when the sink is webhook"`
	ForwardToken             string `help:"the bearer token sent along with forwarded webhook outputs"`

	LibratoUsername string `help:"the username that will be used to authenticate to Librato"`
	LibratoToken    string `help:"the token that will be used to authenticate to Librato"`
}

// NewConfig returns a new default configuration object
func NewConfig() *Config {
	return &Config{
		Backend:                  "kesherwa",
		BackendURL:               "https://%s.kesherwa.dev",
		Address:                  "",
		Port:                     8080,
		LogLevel:                 "error",
		Version:                  "Dev",
		MaxBodyBytes:             1024 * 1024,
		WebhookPath:              "kesherwa-webhook",
		WebhookAuth:              "header",
		WebhookHeader:            "X-BOT-ID",
		WebhookQuery:             "token",
		MediaSourceHost:          "file.kesherwa.dev",
		MediaTargetHost:          "mmg.whatsapp.net",
		MaxMediaBytes:            100 * 1024 * 1024,
		VerifyMediaMAC:           false,
		ConvertWebPImages:        false,
		OutputSink:               "log",
		RabbitmqRetryPubAttempts: 3,
		RabbitmqRetryPubDelay:    1000,
		OutputExchangeName:       "kesherwa.events",
	}
}

// Credential returns the bot credential described by this configuration
func (c *Config) Credential() BotCredential {
	return BotCredential{Token: c.BotToken, BotID: c.BotID, SkipTLSVerify: c.SkipTLSVerify}
}

// LoadConfig loads our configuration from the passed in filename
func LoadConfig(filename string) *Config {
	config := NewConfig()
	loader := ezconf.NewLoader(
		config,
		"relay", "Relay - a gateway between workflow hosts and KesherWA bots",
		[]string{filename},
	)

	loader.MustLoad()
	return config
}
