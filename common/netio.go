package common

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"io"

	"golang.org/x/time/rate"
)

// DefaultMaxLineLength bounds a single text frame when the caller does not
// configure one.
const DefaultMaxLineLength = 64 << 10

// limiterBurst is the largest token count taken from a rate.Limiter in one
// WaitN call. Limiters handed to Reader and Writer must have at least this
// burst.
const limiterBurst = 128 << 10

var ErrLineTooLong = errors.New("line too long")

// Reader surfaces the frames of the protocol from a raw connection. It never
// reads past the end of the frame it was asked for, so a binary block that
// directly follows a text line starts at the right byte.
type Reader struct {
	r       io.Reader
	maxLine int
	limiter *rate.Limiter
	one     [1]byte
}

func NewReader(r io.Reader, maxLine int) *Reader {
	if maxLine <= 0 {
		maxLine = DefaultMaxLineLength
	}
	return &Reader{r: r, maxLine: maxLine}
}

// SetLimiter makes the reader account the bytes of binary frames against
// lim. A nil limiter disables limiting.
func (r *Reader) SetLimiter(lim *rate.Limiter) {
	r.limiter = lim
}

// ReadLine reads up to and including the next LF and returns the line
// without the LF and without a CR immediately before it. io.EOF is returned
// only when the stream ends before any byte of a new line; a last line
// without terminator is returned as is.
func (r *Reader) ReadLine() (string, error) {
	var line []byte
	for {
		n, err := r.r.Read(r.one[:])
		if n == 1 {
			if r.one[0] == '\n' {
				break
			}
			if len(line) >= r.maxLine {
				return "", ErrLineTooLong
			}
			line = append(line, r.one[0])
			continue
		}
		if err == io.EOF {
			if len(line) == 0 {
				return "", io.EOF
			}
			break
		}
		if err != nil {
			return "", err
		}
	}
	if k := len(line); k > 0 && line[k-1] == '\r' {
		line = line[:k-1]
	}
	return string(line), nil
}

// ReadExact blocks until n bytes have been read.
func (r *Reader) ReadExact(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(r.r, buf); err != nil {
		return nil, err
	}
	take(r.limiter, n)
	return buf, nil
}

// Discard consumes n bytes without keeping them.
func (r *Reader) Discard(n int64) error {
	got, err := io.CopyN(io.Discard, r.r, n)
	take(r.limiter, int(got))
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}

func (r *Reader) ReadInt32BE() (int32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r.r, buf[:]); err != nil {
		return 0, err
	}
	return int32(binary.BigEndian.Uint32(buf[:])), nil
}

// Writer writes frames and flushes before every method returns.
type Writer struct {
	w       *bufio.Writer
	limiter *rate.Limiter
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w)}
}

// SetLimiter makes the writer account binary frames against lim.
func (w *Writer) SetLimiter(lim *rate.Limiter) {
	w.limiter = lim
}

// WriteLine writes s followed by LF.
func (w *Writer) WriteLine(s string) error {
	if _, err := w.w.WriteString(s); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	return w.w.Flush()
}

func (w *Writer) WriteBytes(b []byte) error {
	take(w.limiter, len(b))
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	return w.w.Flush()
}

func (w *Writer) WriteInt32BE(n int32) error {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], uint32(n))
	if _, err := w.w.Write(buf[:]); err != nil {
		return err
	}
	return w.w.Flush()
}

// WriteBlock writes a length-prefixed binary block: a big-endian int32
// length followed by the bytes.
func (w *Writer) WriteBlock(b []byte) error {
	take(w.limiter, len(b))
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], uint32(len(b)))
	if _, err := w.w.Write(buf[:]); err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	return w.w.Flush()
}

// take consumes tokens from lim in slices no larger than limiterBurst.
func take(lim *rate.Limiter, tokens int) {
	if lim == nil {
		return
	}
	for tokens > 0 {
		n := tokens
		if n > limiterBurst {
			n = limiterBurst
		}
		_ = lim.WaitN(context.TODO(), n)
		tokens -= n
	}
}

// NewLimiter returns a limiter for kibps KiB/s, or nil when kibps is not
// positive.
func NewLimiter(kibps int) *rate.Limiter {
	if kibps <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(kibps)*1024, limiterBurst)
}
