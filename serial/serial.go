// Package serial provides utilities for opening and configuring the serial devices that feed
// speed and steering readings.
package serial

import (
	"io"
	"time"

	"github.com/pkg/errors"
	goutils "go.viam.com/utils"
	ser "go.bug.st/serial"

	"go.viam.com/ackermann/utils"
)

// ValidBaudRates are the rates accepted in a device Config.
var ValidBaudRates = []uint{4800, 9600, 19200, 38400, 57600, 115200, 230400}

// DefaultBaudRate matches the rate rosserial uses for Arduino boards.
const DefaultBaudRate = 57600

// Config describes a serial device attached to the vehicle.
type Config struct {
	Path     string `json:"path"`
	BaudRate int    `json:"baud_rate,omitempty"`
	// ReadTimeoutMs bounds each read. Zero blocks until data arrives.
	ReadTimeoutMs int `json:"read_timeout_ms,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (cfg *Config) Validate(path string) error {
	if cfg.Path == "" {
		return goutils.NewConfigValidationFieldRequiredError(path, "path")
	}
	if cfg.BaudRate != 0 && !utils.ValidateBaudRate(ValidBaudRates, cfg.BaudRate) {
		return goutils.NewConfigValidationError(path,
			errors.Errorf("baud_rate %d is not one of %v", cfg.BaudRate, ValidBaudRates))
	}
	if cfg.ReadTimeoutMs < 0 {
		return goutils.NewConfigValidationError(path, errors.New("read_timeout_ms cannot be negative"))
	}
	return nil
}

// Options returns the open options for the config, filling in defaults.
func (cfg *Config) Options() Options {
	baud := cfg.BaudRate
	if baud == 0 {
		baud = DefaultBaudRate
	}
	return Options{BaudRate: baud, DataBits: 8, ReadTimeout: cfg.ReadTimeoutMs}
}

// Options to be passed to Open(), closely mirrors go.bug.st/serial Mode.
type Options struct {
	BaudRate    int
	DataBits    int
	StopBits    StopBits
	Parity      Parity
	ReadTimeout int
}

// Parity describes a serial port parity setting.
type Parity int

const (
	// NoParity disable parity control (default).
	NoParity Parity = iota
	// OddParity enable odd-parity check.
	OddParity
	// EvenParity enable even-parity check.
	EvenParity
)

// StopBits describe a serial port stop bits setting.
type StopBits int

const (
	// OneStopBit sets 1 stop bit (default).
	OneStopBit StopBits = iota
	// OnePointFiveStopBits sets 1.5 stop bits.
	OnePointFiveStopBits
	// TwoStopBits sets 2 stop bits.
	TwoStopBits
)

func (options Options) mode() *ser.Mode {
	return &ser.Mode{
		BaudRate: options.BaudRate,
		Parity:   ser.Parity(options.Parity),
		DataBits: options.DataBits,
		StopBits: ser.StopBits(options.StopBits),
	}
}

// Open attempts to open a serial device on the given path. It's a variable
// in case you need to override it during tests.
var Open = func(devicePath string, options Options) (io.ReadWriteCloser, error) {
	device, err := ser.Open(devicePath, options.mode())
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open serial device %q", devicePath)
	}
	if options.ReadTimeout > 0 {
		if err := device.SetReadTimeout(time.Duration(options.ReadTimeout) * time.Millisecond); err != nil {
			return nil, multiCloseErr(err, device)
		}
	}
	return device, nil
}

// SetOptions changes the configuration of a serial port that is already open.
var SetOptions = func(b io.ReadWriteCloser, options Options) error {
	p, ok := b.(ser.Port)
	if !ok {
		return errors.New("couldn't convert to underlying Port interface")
	}
	return p.SetMode(options.mode())
}

// Ports lists the serial device paths present on this machine.
func Ports() ([]string, error) {
	return ser.GetPortsList()
}

func multiCloseErr(err error, c io.Closer) error {
	if closeErr := c.Close(); closeErr != nil {
		return errors.Wrapf(err, "also failed to close device: %v", closeErr)
	}
	return err
}
