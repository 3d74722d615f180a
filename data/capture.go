package data

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"google.golang.org/protobuf/types/known/structpb"
	"gopkg.in/natefinch/lumberjack.v2"

	"go.viam.com/ackermann/logging"
	"go.viam.com/ackermann/odometry"
	"go.viam.com/ackermann/protoutils"
)

const (
	// CompletedCaptureFileExt is the extension of odometry capture files.
	CompletedCaptureFileExt = ".capture"
	// DefaultMaxSizeMB is the capture file size at which a new file is started.
	DefaultMaxSizeMB = 64
	maxBackups       = 10
)

// CaptureWriter appends every step it is given to a size-rotated capture file as a length
// delimited structpb.Struct. It implements odometry.Publisher.
type CaptureWriter struct {
	session string
	path    string
	logger  logging.Logger

	mu     sync.Mutex
	seq    uint64
	closed bool
	writer *protoutils.DelimitedProtoWriter[*structpb.Struct]
}

// NewCaptureWriter creates dir if needed and starts a capture session in it.
func NewCaptureWriter(dir string, maxSizeMB int, logger logging.Logger) (*CaptureWriter, error) {
	if dir == "" {
		return nil, errors.New("capture directory is required")
	}
	if maxSizeMB <= 0 {
		maxSizeMB = DefaultMaxSizeMB
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, errors.Wrapf(err, "creating capture directory %q", dir)
	}
	session := uuid.NewString()
	path := filepath.Join(dir, "odometry-"+session+CompletedCaptureFileExt)
	rotator := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
	}
	logger.Infow("capturing odometry", "path", path, "max_size", FormatBytes(int64(maxSizeMB)*mib))
	return &CaptureWriter{
		session: session,
		path:    path,
		logger:  logger,
		writer:  protoutils.NewDelimitedProtoWriter[*structpb.Struct](rotator),
	}, nil
}

// Session returns the uuid stamped on every record of this writer.
func (c *CaptureWriter) Session() string {
	return c.session
}

// Path returns the active capture file.
func (c *CaptureWriter) Path() string {
	return c.path
}

// Publish appends one record.
func (c *CaptureWriter) Publish(ctx context.Context, result odometry.StepResult) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("capture writer is closed")
	}
	msg, err := NewRecord(c.session, c.seq, result).ToProto()
	if err != nil {
		return errors.Wrap(err, "encoding capture record")
	}
	if err := c.writer.Append(msg); err != nil {
		return errors.Wrapf(err, "writing capture record to %q", c.path)
	}
	c.seq++
	return nil
}

// Close flushes and closes the capture file.
func (c *CaptureWriter) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.logger.Infow("capture closed", "path", c.path, "records", c.seq)
	return c.writer.Close()
}

// ReadCaptureFile returns every record in the capture file at path.
func ReadCaptureFile(path string) (records []Record, err error) {
	//nolint:gosec
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening capture file")
	}
	reader := protoutils.NewDelimitedProtoReader[structpb.Struct](f)
	defer func() {
		err = multierr.Combine(err, reader.Close())
	}()

	for msg := range reader.All() {
		rec, err := RecordFromProto(msg)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := reader.Err(); err != nil {
		return records, errors.Wrapf(err, "reading %q", path)
	}
	return records, nil
}
