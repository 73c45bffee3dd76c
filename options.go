package objectstream

import (
	"go.uber.org/zap"
)

const (
	defaultBufferSize = 4 << 10
	defaultMaxDepth   = 1000
)

type options struct {
	logger     *zap.Logger
	leaveOpen  bool
	bufferSize int
	maxDepth   int
}

// Option configures a Decoder or an Encoder.
type Option func(*options)

// WithLogger sets the logger used for diagnostic records. The default
// discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithLeaveOpen keeps the underlying reader or writer open when the
// Decoder or Encoder is closed. By default it is closed if it implements
// io.Closer.
func WithLeaveOpen() Option {
	return func(o *options) {
		o.leaveOpen = true
	}
}

// WithBufferSize sets the size of the I/O buffer placed in front of the
// underlying reader or writer.
func WithBufferSize(size int) Option {
	return func(o *options) {
		if size > 0 {
			o.bufferSize = size
		}
	}
}

// WithMaxDepth limits how deeply a Decoder follows nested content before
// giving up with ErrMalformed. Encoders ignore it.
func WithMaxDepth(depth int) Option {
	return func(o *options) {
		if depth > 0 {
			o.maxDepth = depth
		}
	}
}

func newOptions(opts []Option) *options {
	o := &options{
		logger:     zap.NewNop(),
		bufferSize: defaultBufferSize,
		maxDepth:   defaultMaxDepth,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}
