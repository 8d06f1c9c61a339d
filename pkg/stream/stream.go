package stream

import (
	"bufio"
	"context"
	"io"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const defaultBufferSize = 32

// Stream reads an event-stream response body on its own goroutine and hands
// decoded assistant deltas to the consumer in arrival order.
//
//	s := stream.New(ctx, resp.Body)
//	defer s.Close()
//	for s.Next() {
//		d := s.Current()
//	}
//	if err := s.Err(); err != nil { ... }
//
// Deltas are handed over as decoded, i.e. with cumulative content.
type Stream struct {
	deltas chan Delta
	body   io.ReadCloser
	cancel context.CancelFunc
	group  *errgroup.Group

	// written by the reader goroutine only, read after deltas is closed
	raw   strings.Builder
	count int

	current   Delta
	err       error
	done      bool
	closeOnce sync.Once
}

type Option func(*options)

type options struct {
	bufferSize int
}

// WithBufferSize sets how many decoded deltas may queue up before the reader blocks.
func WithBufferSize(n int) Option {
	return func(o *options) {
		if n >= 0 {
			o.bufferSize = n
		}
	}
}

// New starts reading body. The stream owns body and closes it.
func New(ctx context.Context, body io.ReadCloser, opts ...Option) *Stream {
	o := &options{bufferSize: defaultBufferSize}
	for _, opt := range opts {
		opt(o)
	}

	ctx, cancel := context.WithCancel(ctx)
	group, ctx := errgroup.WithContext(ctx)

	s := &Stream{
		deltas: make(chan Delta, o.bufferSize),
		body:   body,
		cancel: cancel,
		group:  group,
	}
	// a blocked body read only returns once the body is closed
	context.AfterFunc(ctx, func() {
		_ = body.Close()
	})
	group.Go(func() error {
		defer close(s.deltas)
		return s.read(ctx)
	})
	return s
}

func (s *Stream) read(ctx context.Context) error {
	reader := bufio.NewReader(s.body)
	for {
		line, err := reader.ReadBytes('\n')
		if len(line) > 0 {
			s.raw.Write(line)
			if delta, ok := DecodeLine(line); ok {
				s.count++
				log.Trace().Object("delta", delta).Int("delta_number", s.count).Msg("Decoded stream delta")
				select {
				case s.deltas <- delta:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				log.Debug().Int("total_deltas", s.count).Msg("Stream reader finished")
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return errors.Wrap(err, "reading event stream")
		}
	}
}

// Next blocks until the next delta is available. It returns false once the
// body is exhausted, the read failed or the stream was closed.
func (s *Stream) Next() bool {
	if s.done {
		return false
	}
	delta, ok := <-s.deltas
	if !ok {
		s.finish()
		return false
	}
	s.current = delta
	return true
}

func (s *Stream) Current() Delta {
	return s.current
}

// Err reports the read error that ended the stream, if any.
func (s *Stream) Err() error {
	return s.err
}

// Raw returns everything read from the body. It is only complete once Next has
// returned false or Close was called.
func (s *Stream) Raw() string {
	if !s.done {
		return ""
	}
	return s.raw.String()
}

// Close stops the reader and releases the body. It is safe to call more than once.
func (s *Stream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.cancel()
		err = s.body.Close()
		// unblock a reader waiting on a full channel
		for range s.deltas {
		}
		if !s.done {
			s.finish()
		}
	})
	return err
}

func (s *Stream) finish() {
	s.done = true
	s.err = s.group.Wait()
	if errors.Is(s.err, context.Canceled) {
		s.err = nil
	}
	s.cancel()
}
