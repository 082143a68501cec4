package resource

import (
	"context"
	"io"
)

// ioChunk caps how much of a single Write is charged to the limiter at once.
const ioChunk = 64 * 1024

// ThrottledWriter charges every write against a Controller's IO budget.
// A nil Controller writes without waiting.
type ThrottledWriter struct {
	ctx     context.Context
	dst     io.Writer
	c       *Controller
	written int64
}

// Throttle wraps dst so writes wait on c's IO limiter.
func Throttle(ctx context.Context, dst io.Writer, c *Controller) *ThrottledWriter {
	return &ThrottledWriter{ctx: ctx, dst: dst, c: c}
}

// Write forwards p in chunks, waiting for budget before each one. It stops
// at the first limiter or destination error and reports the bytes written.
func (w *ThrottledWriter) Write(p []byte) (int, error) {
	total := 0
	for len(p) > 0 {
		chunk := p[:min(len(p), ioChunk)]
		if err := w.c.AcquireIO(w.ctx, len(chunk)); err != nil {
			return total, err
		}
		n, err := w.dst.Write(chunk)
		total += n
		w.written += int64(n)
		if err != nil {
			return total, err
		}
		p = p[n:]
	}
	return total, nil
}

// Written returns the number of bytes forwarded so far.
func (w *ThrottledWriter) Written() int64 { return w.written }
