// Package serial implements a speed sensor that reads newline terminated decimal values from a
// serial device, such as a wheel encoder sketch on an Arduino.
package serial

import (
	"bufio"
	"context"
	"io"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"

	"go.viam.com/ackermann/components/speedsensor"
	"go.viam.com/ackermann/logging"
	serialport "go.viam.com/ackermann/serial"
	"go.viam.com/ackermann/utils"
)

// SpeedSensor streams readings parsed from a serial device.
type SpeedSensor struct {
	dev    io.ReadWriteCloser
	path   string
	scale  float64
	clock  clock.Clock
	logger logging.Logger

	readings *speedsensor.Broadcaster
	workers  *utils.Workers
	closed   atomic.Bool

	errMu     sync.Mutex
	lastError error
}

// NewSerialSpeedSensor opens the device described by conf and starts reading from it. Each value
// is multiplied by scale and stamped with the time its line was read.
func NewSerialSpeedSensor(
	conf *serialport.Config,
	scale float64,
	clk clock.Clock,
	logger logging.Logger,
) (*SpeedSensor, error) {
	if err := conf.Validate("serial"); err != nil {
		return nil, err
	}
	dev, err := serialport.Open(conf.Path, conf.Options())
	if err != nil {
		return nil, err
	}
	logger.Infow("reading speed from serial device", "path", conf.Path, "baud_rate", conf.Options().BaudRate)
	return newSpeedSensor(dev, conf.Path, scale, clk, logger), nil
}

func newSpeedSensor(dev io.ReadWriteCloser, path string, scale float64, clk clock.Clock, logger logging.Logger) *SpeedSensor {
	if scale == 0 {
		scale = 1
	}
	if clk == nil {
		clk = clock.New()
	}
	s := &SpeedSensor{
		dev:      dev,
		path:     path,
		scale:    scale,
		clock:    clk,
		logger:   logger,
		readings: speedsensor.NewBroadcaster(),
	}
	s.workers = utils.NewWorkers(context.Background(), s.readLoop)
	return s
}

func (s *SpeedSensor) readLoop(ctx context.Context) {
	defer s.readings.Close()
	r := bufio.NewReader(s.dev)
	for {
		if ctx.Err() != nil {
			return
		}
		line, err := r.ReadString('\n')
		if err != nil {
			if s.closed.Load() {
				return
			}
			s.logger.Errorw("can't read speed from serial device", "path", s.path, "error", err)
			s.setLastError(err)
			return
		}
		now := s.clock.Now()
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		value, err := ParseSpeedLine(line)
		if err != nil {
			s.logger.Warnw("dropping unparsable speed line", "line", line, "error", err)
			continue
		}
		reading := speedsensor.Reading{Speed: value * s.scale, Time: now}
		if dropped := s.readings.Publish(reading); dropped > 0 {
			s.logger.Warnw("speed subscriber fell behind, reading dropped", "subscribers", dropped)
		}
	}
}

// ParseSpeedLine parses one line of device output. Lines may carry a "speed:" or "data:" label,
// as printed by rostopic echo.
func ParseSpeedLine(line string) (float64, error) {
	line = strings.TrimSpace(line)
	if idx := strings.LastIndexByte(line, ':'); idx >= 0 {
		line = strings.TrimSpace(line[idx+1:])
	}
	value, err := strconv.ParseFloat(line, 64)
	if err != nil {
		return 0, err
	}
	if !utils.IsFinite(value) {
		return 0, errors.Errorf("speed %v is not finite", value)
	}
	return value, nil
}

func (s *SpeedSensor) setLastError(err error) {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	s.lastError = err
}

func (s *SpeedSensor) getLastError() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.lastError
}

// LinearSpeed returns the latest reading. Once the device fails, its read error is returned.
func (s *SpeedSensor) LinearSpeed(ctx context.Context, extra map[string]interface{}) (speedsensor.Reading, error) {
	if err := s.getLastError(); err != nil {
		return speedsensor.Reading{}, err
	}
	return s.readings.Latest()
}

// Stream delivers every reading parsed after the call.
func (s *SpeedSensor) Stream(ctx context.Context) <-chan speedsensor.Reading {
	return s.readings.Subscribe(ctx)
}

// Close closes the device and waits for the reader to exit.
func (s *SpeedSensor) Close(ctx context.Context) error {
	if s.closed.Swap(true) {
		return nil
	}
	err := s.dev.Close()
	s.workers.Stop()
	return err
}
