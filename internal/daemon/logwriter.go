package daemon

import (
	"io"

	"github.com/multigit-dev/multigit/pkg/redact"
)

// RedactingWriter masks secret patterns in every chunk before it
// reaches the underlying writer. Redaction happens before emission,
// never after.
type RedactingWriter struct {
	w io.Writer
}

// NewRedactingWriter wraps w.
func NewRedactingWriter(w io.Writer) *RedactingWriter {
	return &RedactingWriter{w: w}
}

// Write implements io.Writer. The reported length is the input length
// so wrapped writers see no short writes when redaction changes the
// byte count.
func (r *RedactingWriter) Write(p []byte) (int, error) {
	if _, err := io.WriteString(r.w, redact.String(string(p))); err != nil {
		return 0, err
	}
	return len(p), nil
}
