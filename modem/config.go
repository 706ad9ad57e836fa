package modem

import (
	"log/slog"
	"time"
)

// DefaultBaudCandidates is the order in which baud rates are tried when the
// modem's current speed is unknown.
var DefaultBaudCandidates = []int{115200, 57600, 38400, 19200, 9600, 4800, 2400, 1200}

func (c *Config) validate() error {
	if c.dialer == nil {
		return ErrNoDialer
	}
	return nil
}

// Config holds the settings of a Modem. Use NewConfigBuilder to create one.
type Config struct {
	dialer Dialer
	logger *slog.Logger

	// baudRate is the operating rate negotiated during initialization.
	baudRate       int
	baudCandidates []int
	baudSetter     BaudSetter

	atTimeout           time.Duration
	probeTimeout        time.Duration
	promptTimeout       time.Duration
	echoSettle          time.Duration
	connectTimeout      time.Duration
	attachTimeout       time.Duration
	registrationTimeout time.Duration
	ussdTimeout         time.Duration
	initTimeout         time.Duration

	probeRetries    int
	probeRetryDelay time.Duration

	notify func(line string)
}

func (c *Config) setDefaults() {
	if c.logger == nil {
		c.logger = slog.New(slog.DiscardHandler)
	}
	if c.baudRate == 0 {
		c.baudRate = DefaultSerialBaudRate
	}
	if len(c.baudCandidates) == 0 {
		c.baudCandidates = DefaultBaudCandidates
	}
	if c.atTimeout == 0 {
		c.atTimeout = 5 * time.Second
	}
	if c.probeTimeout == 0 {
		c.probeTimeout = 50 * time.Millisecond
	}
	if c.promptTimeout == 0 {
		c.promptTimeout = 200 * time.Millisecond
	}
	if c.echoSettle == 0 {
		c.echoSettle = 100 * time.Millisecond
	}
	if c.connectTimeout == 0 {
		c.connectTimeout = 60 * time.Second
	}
	if c.attachTimeout == 0 {
		c.attachTimeout = 60 * time.Second
	}
	if c.registrationTimeout == 0 {
		c.registrationTimeout = 120 * time.Second
	}
	if c.ussdTimeout == 0 {
		c.ussdTimeout = 10 * time.Second
	}
	if c.initTimeout == 0 {
		c.initTimeout = 30 * time.Second
	}
	if c.probeRetries == 0 {
		c.probeRetries = 8
	}
	if c.probeRetryDelay == 0 {
		c.probeRetryDelay = 50 * time.Millisecond
	}
}

// ConfigBuilder assembles a Config.
type ConfigBuilder struct {
	config Config
}

func NewConfigBuilder() *ConfigBuilder {
	return &ConfigBuilder{}
}

// WithDialer sets the Dialer used by New to open the transport. Required.
func (b *ConfigBuilder) WithDialer(d Dialer) *ConfigBuilder {
	b.config.dialer = d
	return b
}

func (b *ConfigBuilder) WithLogger(l *slog.Logger) *ConfigBuilder {
	b.config.logger = l
	return b
}

// WithBaudRate sets the desired operating baud rate.
func (b *ConfigBuilder) WithBaudRate(rate int) *ConfigBuilder {
	b.config.baudRate = rate
	return b
}

// WithBaudCandidates sets the rates tried during negotiation, in order. A
// zero entry ends the list.
func (b *ConfigBuilder) WithBaudCandidates(rates ...int) *ConfigBuilder {
	b.config.baudCandidates = rates
	return b
}

// WithBaudSetter sets the callback that reconfigures the transport's baud
// rate. Without it the transport's own SetBaudRate is used if it has one.
func (b *ConfigBuilder) WithBaudSetter(fn BaudSetter) *ConfigBuilder {
	b.config.baudSetter = fn
	return b
}

// WithATTimeout sets the default command deadline.
func (b *ConfigBuilder) WithATTimeout(d time.Duration) *ConfigBuilder {
	b.config.atTimeout = d
	return b
}

// WithProbeTimeout sets the deadline of the AT liveness probe.
func (b *ConfigBuilder) WithProbeTimeout(d time.Duration) *ConfigBuilder {
	b.config.probeTimeout = d
	return b
}

// WithPromptTimeout sets how long to wait for the '>' data prompt.
func (b *ConfigBuilder) WithPromptTimeout(d time.Duration) *ConfigBuilder {
	b.config.promptTimeout = d
	return b
}

// WithEchoSettle sets the pause after ATE0/ATE1 before the next command.
func (b *ConfigBuilder) WithEchoSettle(d time.Duration) *ConfigBuilder {
	b.config.echoSettle = d
	return b
}

// WithConnectTimeout sets the deadline of AT+CIPSTART.
func (b *ConfigBuilder) WithConnectTimeout(d time.Duration) *ConfigBuilder {
	b.config.connectTimeout = d
	return b
}

// WithAttachTimeout sets the deadline of AT+CIICR and AT+CIPSHUT.
func (b *ConfigBuilder) WithAttachTimeout(d time.Duration) *ConfigBuilder {
	b.config.attachTimeout = d
	return b
}

// WithRegistrationTimeout sets the deadline of AT+COPS=<mode>,...
func (b *ConfigBuilder) WithRegistrationTimeout(d time.Duration) *ConfigBuilder {
	b.config.registrationTimeout = d
	return b
}

func (b *ConfigBuilder) WithUSSDTimeout(d time.Duration) *ConfigBuilder {
	b.config.ussdTimeout = d
	return b
}

// WithInitTimeout bounds the link bootstrap done by New.
func (b *ConfigBuilder) WithInitTimeout(d time.Duration) *ConfigBuilder {
	b.config.initTimeout = d
	return b
}

// WithProbeRetries sets how often a failed liveness probe is repeated before
// baud rate negotiation starts, and the pause between attempts. A negative
// n disables retries.
func (b *ConfigBuilder) WithProbeRetries(n int, delay time.Duration) *ConfigBuilder {
	b.config.probeRetries = n
	b.config.probeRetryDelay = delay
	return b
}

// WithNotificationHandler registers fn for unsolicited lines the modem
// sends while no command is outstanding.
func (b *ConfigBuilder) WithNotificationHandler(fn func(line string)) *ConfigBuilder {
	b.config.notify = fn
	return b
}

// Build validates the configuration and fills in defaults.
func (b *ConfigBuilder) Build() (Config, error) {
	if err := b.config.validate(); err != nil {
		return Config{}, err
	}
	config := b.config
	config.setDefaults()
	return config, nil
}
