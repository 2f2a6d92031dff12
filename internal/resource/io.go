package resource

import (
	"context"
	"io"
)

// Writer returns w throttled by c. Bytes are charged before they are written.
func (c *Controller) Writer(ctx context.Context, w io.Writer) io.Writer {
	if c == nil {
		return w
	}
	return &throttledWriter{ctx: ctx, w: w, c: c}
}

// Reader returns r throttled by c. Bytes are charged after they are read.
func (c *Controller) Reader(ctx context.Context, r io.Reader) io.Reader {
	if c == nil {
		return r
	}
	return &throttledReader{ctx: ctx, r: r, c: c}
}

type throttledWriter struct {
	ctx context.Context
	w   io.Writer
	c   *Controller
}

func (t *throttledWriter) Write(p []byte) (int, error) {
	if err := t.c.Throttle(t.ctx, len(p)); err != nil {
		return 0, err
	}
	return t.w.Write(p)
}

type throttledReader struct {
	ctx context.Context
	r   io.Reader
	c   *Controller
}

func (t *throttledReader) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if n > 0 {
		if terr := t.c.Throttle(t.ctx, n); terr != nil {
			return n, terr
		}
	}
	return n, err
}
