package docker

import "bytes"

// MaxOutputBytes is how much of each stream Execute keeps.
const MaxOutputBytes = 1 << 20

const truncatedNotice = "\n... output truncated"

// cappedWriter keeps the first limit bytes and discards the rest while still
// reporting success, so stdcopy keeps draining the attach stream.
type cappedWriter struct {
	buf       bytes.Buffer
	limit     int
	truncated bool
}

func newCappedWriter(limit int) *cappedWriter {
	return &cappedWriter{limit: limit}
}

func (w *cappedWriter) Write(p []byte) (int, error) {
	room := w.limit - w.buf.Len()
	switch {
	case room <= 0:
		w.truncated = w.truncated || len(p) > 0
	case len(p) > room:
		w.buf.Write(p[:room])
		w.truncated = true
	default:
		w.buf.Write(p)
	}
	return len(p), nil
}

// String returns the kept bytes, followed by a notice if anything was dropped.
func (w *cappedWriter) String() string {
	if w.truncated {
		return w.buf.String() + truncatedNotice
	}
	return w.buf.String()
}
