package stream

import (
	"errors"
	"io"
	"iter"
	"strings"
)

// ErrClosed is reported by a Stream that was closed before it reached its end.
var ErrClosed = errors.New("stream: closed")

// NextFunc produces the next fragment. It returns io.EOF once the source is
// exhausted; any other error terminates the stream.
type NextFunc func() (string, error)

// Stream is a finite, single-use sequence of text fragments.
//
// Next returns false exactly once the stream terminates, either at the end of
// data (Err is nil) or on the first error (Err is non-nil). A terminated
// stream cannot be restarted.
type Stream struct {
	next NextFunc
	stop func()

	cur      string
	err      error
	done     bool
	text     strings.Builder
	onFinish []func(text string, err error)
}

// New builds a Stream from next. stop, when non-nil, is called once to
// release the producer after termination or Close.
func New(next NextFunc, stop func()) *Stream {
	return &Stream{next: next, stop: stop}
}

// FromSeq adapts a push iterator to a Stream.
func FromSeq(seq iter.Seq2[string, error]) *Stream {
	next, stop := iter.Pull2(seq)
	return New(func() (string, error) {
		fragment, err, ok := next()
		if !ok {
			return "", io.EOF
		}
		if err != nil {
			return "", err
		}
		return fragment, nil
	}, stop)
}

// Open pulls the first item of seq before returning, so a source that fails
// to start is reported here rather than through the stream.
func Open(seq iter.Seq2[string, error]) (*Stream, error) {
	next, stop := iter.Pull2(seq)
	first, err, ok := next()
	if err != nil {
		stop()
		return nil, err
	}
	pending := ok
	return New(func() (string, error) {
		if pending {
			pending = false
			return first, nil
		}
		fragment, err, ok := next()
		if !ok {
			return "", io.EOF
		}
		if err != nil {
			return "", err
		}
		return fragment, nil
	}, stop), nil
}

// FromSlice returns a Stream yielding the given fragments in order.
func FromSlice(fragments ...string) *Stream {
	i := 0
	return New(func() (string, error) {
		if i >= len(fragments) {
			return "", io.EOF
		}
		f := fragments[i]
		i++
		return f, nil
	}, nil)
}

// Next advances to the next fragment.
func (s *Stream) Next() bool {
	if s.done {
		return false
	}
	fragment, err := s.next()
	if err != nil {
		s.cur = ""
		if !errors.Is(err, io.EOF) {
			s.err = err
		}
		s.finish()
		return false
	}
	s.cur = fragment
	s.text.WriteString(fragment)
	return true
}

// Fragment returns the fragment read by the last successful call to Next.
func (s *Stream) Fragment() string {
	return s.cur
}

// Err returns the error that terminated the stream, if any.
func (s *Stream) Err() error {
	return s.err
}

// Text returns the concatenation of every fragment read so far.
func (s *Stream) Text() string {
	return s.text.String()
}

// Done reports whether the stream has terminated.
func (s *Stream) Done() bool {
	return s.done
}

// OnFinish registers fn to run once when the stream terminates. fn receives
// the assembled text and the terminating error (nil at a clean end, ErrClosed
// when the stream was closed early).
func (s *Stream) OnFinish(fn func(text string, err error)) {
	if s.done {
		fn(s.text.String(), s.err)
		return
	}
	s.onFinish = append(s.onFinish, fn)
}

// Close stops the producer. Closing a stream that has not terminated marks it
// with ErrClosed.
func (s *Stream) Close() error {
	if s.done {
		return nil
	}
	s.err = ErrClosed
	s.finish()
	return nil
}

// Collect drains the stream and returns the assembled text.
func (s *Stream) Collect() (string, error) {
	for s.Next() {
	}
	return s.Text(), s.Err()
}

func (s *Stream) finish() {
	s.done = true
	if s.stop != nil {
		s.stop()
		s.stop = nil
	}
	hooks := s.onFinish
	s.onFinish = nil
	for _, fn := range hooks {
		fn(s.text.String(), s.err)
	}
}
