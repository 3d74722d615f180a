// Package serial implements a steering servo whose controller reports its position over a serial
// line. The controller answers the query "P\n" with "<degrees>\n".
package serial

import (
	"bufio"
	"context"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"go.viam.com/ackermann/logging"
	serialport "go.viam.com/ackermann/serial"
)

const positionQuery = "P\n"

// maxDeg is the largest position a hobby servo can report.
const maxDeg = 180

// Servo queries a serial servo controller for its position.
type Servo struct {
	mu     sync.Mutex
	dev    io.ReadWriteCloser
	reader *bufio.Reader
	path   string
	logger logging.Logger
}

// NewSerialServo opens the controller described by conf.
func NewSerialServo(conf *serialport.Config, logger logging.Logger) (*Servo, error) {
	if err := conf.Validate("serial"); err != nil {
		return nil, err
	}
	opts := conf.Options()
	if opts.ReadTimeout == 0 {
		// Position is polled for every speed reading; never block it forever.
		opts.ReadTimeout = 100
	}
	dev, err := serialport.Open(conf.Path, opts)
	if err != nil {
		return nil, err
	}
	logger.Infow("reading steering servo position from serial device", "path", conf.Path)
	return newServo(dev, conf.Path, logger), nil
}

func newServo(dev io.ReadWriteCloser, path string, logger logging.Logger) *Servo {
	return &Servo{dev: dev, reader: bufio.NewReader(dev), path: path, logger: logger}
}

// Position returns the current set angle (degrees) of the servo.
func (s *Servo) Position(ctx context.Context, extra map[string]interface{}) (uint32, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := io.WriteString(s.dev, positionQuery); err != nil {
		return 0, errors.Wrapf(err, "failed to query servo on %s", s.path)
	}
	line, err := s.reader.ReadString('\n')
	if err != nil {
		return 0, errors.Wrapf(err, "failed to read servo position on %s", s.path)
	}
	return parsePosition(line)
}

func parsePosition(line string) (uint32, error) {
	line = strings.TrimSpace(line)
	deg, err := strconv.ParseUint(line, 10, 32)
	if err != nil {
		// Some controllers report fractional degrees.
		f, ferr := strconv.ParseFloat(line, 64)
		if ferr != nil || f < 0 {
			return 0, errors.Errorf("invalid servo position %q", line)
		}
		deg = uint64(f + 0.5)
	}
	if deg > maxDeg {
		return 0, errors.Errorf("servo position %d out of range [0, %d]", deg, maxDeg)
	}
	return uint32(deg), nil
}

// Close closes the serial device.
func (s *Servo) Close(ctx context.Context) error {
	return s.dev.Close()
}
