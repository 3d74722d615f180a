package protoutils

import (
	"bufio"
	"encoding/binary"
	"io"
	"iter"
	"math"
	"sync"

	"github.com/pkg/errors"
	"google.golang.org/protobuf/proto"
)

// ErrTruncatedMessage is reported when a stream ends inside a message.
var ErrTruncatedMessage = errors.New("truncated delimited message")

// DelimitedProtoWriter writes proto messages to an [io.Writer]. Each message is prefixed by its
// size in bytes as a little endian uint32 so individual messages can later be retrieved.
// Append is safe for concurrent use.
type DelimitedProtoWriter[M proto.Message] struct {
	mu     sync.Mutex
	writer io.Writer
}

// RawDelimitedProtoReader reads proto messages written by [DelimitedProtoWriter] and returns the
// encoded messages as byte slices.
type RawDelimitedProtoReader struct {
	reader io.Reader
	err    error
}

// DelimitedProtoReader iterates over proto messages written by [DelimitedProtoWriter],
// unmarshalling each one.
type DelimitedProtoReader[T any, M interface {
	*T
	proto.Message
}] struct {
	RawDelimitedProtoReader
}

// NewDelimitedProtoWriter creates a [DelimitedProtoWriter].
func NewDelimitedProtoWriter[M proto.Message](writer io.Writer) *DelimitedProtoWriter[M] {
	return &DelimitedProtoWriter[M]{writer: writer}
}

// NewRawDelimitedProtoReader creates a [RawDelimitedProtoReader].
func NewRawDelimitedProtoReader(reader io.Reader) *RawDelimitedProtoReader {
	return &RawDelimitedProtoReader{reader: reader}
}

// NewDelimitedProtoReader creates a [DelimitedProtoReader].
func NewDelimitedProtoReader[T any, M interface {
	*T
	proto.Message
}](reader io.Reader) *DelimitedProtoReader[T, M] {
	return &DelimitedProtoReader[T, M]{RawDelimitedProtoReader{reader: reader}}
}

// Close closes the underlying writer if it is an [io.Closer].
func (o *DelimitedProtoWriter[_]) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if closer, ok := o.writer.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// Append marshals message and writes it, length prefixed, in a single Write call so a rotating
// writer never splits a message across files.
func (o *DelimitedProtoWriter[M]) Append(message M) error {
	messageBytes, err := proto.Marshal(message)
	if err != nil {
		return err
	}
	buf := make([]byte, 4, 4+len(messageBytes))
	binary.LittleEndian.PutUint32(buf, uint32(len(messageBytes)))
	buf = append(buf, messageBytes...)

	o.mu.Lock()
	defer o.mu.Unlock()
	_, err = o.writer.Write(buf)
	return err
}

// Close closes the underlying reader if it is an [io.Closer].
func (o *RawDelimitedProtoReader) Close() error {
	if closer, ok := o.reader.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// Err returns the error that stopped the last iteration, if any.
func (o *RawDelimitedProtoReader) Err() error {
	return o.err
}

// All returns an [iter.Seq] over the messages, each unmarshalled into a fresh M. Iteration stops
// at the first message that fails to decode; check Err afterwards.
func (o *DelimitedProtoReader[T, M]) All() iter.Seq[M] {
	return o.allWithMessageProvider(func() M {
		return new(T)
	})
}

// AllWithMemory is All but reuses message for every iteration. The yielded value is only valid
// inside the loop body.
func (o *DelimitedProtoReader[T, M]) AllWithMemory(message M) iter.Seq[M] {
	return o.allWithMessageProvider(func() M {
		proto.Reset(message)
		return message
	})
}

func (o *DelimitedProtoReader[T, M]) allWithMessageProvider(getMessage func() M) iter.Seq[M] {
	return func(yield func(M) bool) {
		for messageBytes := range o.RawDelimitedProtoReader.All() {
			message := getMessage()
			if err := proto.Unmarshal(messageBytes, message); err != nil {
				o.err = errors.Wrap(err, "decoding delimited message")
				return
			}
			if !yield(message) {
				return
			}
		}
	}
}

// All returns an [iter.Seq] over the raw encoded messages. The yielded slice may be overwritten
// by the next iteration.
func (o *RawDelimitedProtoReader) All() iter.Seq[[]byte] {
	// 2 GiB, the protobuf limit, plus the length header.
	const bufferMaxSize = 1024*1024*1024*2 + 4
	const realMaxSize = min(bufferMaxSize, math.MaxInt)
	return func(yield func([]byte) bool) {
		o.err = nil
		scanner := bufio.NewScanner(o.reader)
		scanner.Buffer(nil, realMaxSize)
		scanner.Split(splitMessages)

		for scanner.Scan() {
			if !yield(scanner.Bytes()) {
				return
			}
		}
		if err := scanner.Err(); err != nil {
			o.err = err
		}
	}
}

func splitMessages(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if len(data) < 4 {
		if atEOF && len(data) > 0 {
			return 0, nil, ErrTruncatedMessage
		}
		return 0, nil, nil
	}
	messageSize := int(binary.LittleEndian.Uint32(data[:4]))
	if len(data)-4 < messageSize {
		if atEOF {
			return 0, nil, ErrTruncatedMessage
		}
		return 0, nil, nil
	}
	return messageSize + 4, data[4 : 4+messageSize], nil
}
