package kfmt

import "io"

// PrefixWriter is an io.Writer that wraps another io.Writer and injects a
// prefix at the beginning of each line. Drivers use it to tag their log output
// (e.g. "[nvidia] ") before it reaches a shared sink.
type PrefixWriter struct {
	// A writer where all writes get sent to. A nil Sink discards all output.
	Sink io.Writer

	// The prefix injected at the beginning of each line.
	Prefix []byte

	bytesAfterPrefix int
}

// NewPrefixWriter returns a PrefixWriter that tags every line written to sink
// with prefix.
func NewPrefixWriter(sink io.Writer, prefix string) *PrefixWriter {
	return &PrefixWriter{Sink: sink, Prefix: []byte(prefix)}
}

// Write writes len(p) bytes from p to the underlying data stream and returns
// back the number of bytes written. The injected prefix is not included in the
// number of written bytes returned by this method.
func (w *PrefixWriter) Write(p []byte) (int, error) {
	if w.Sink == nil {
		return len(p), nil
	}

	var (
		written    int
		lineStart  int
		needPrefix = w.bytesAfterPrefix == 0
	)

	for index, b := range p {
		if needPrefix {
			if _, err := w.Sink.Write(w.Prefix); err != nil {
				return written, err
			}
			needPrefix = false
		}

		if b != '\n' {
			continue
		}

		n, err := w.Sink.Write(p[lineStart : index+1])
		written += n
		if err != nil {
			return written, err
		}

		lineStart = index + 1
		w.bytesAfterPrefix = 0
		needPrefix = true
	}

	if lineStart < len(p) {
		n, err := w.Sink.Write(p[lineStart:])
		written += n
		w.bytesAfterPrefix += n
		if err != nil {
			return written, err
		}
	}

	return written, nil
}
