package logging

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/Graylog2/go-gelf/gelf"
)

// NewGraylogHandler dials a GELF UDP endpoint and returns a JSON handler
// writing to it. The returned closer releases the socket.
func NewGraylogHandler(address string, opts *slog.HandlerOptions) (slog.Handler, io.Closer, error) {
	w, err := gelf.NewWriter(address)
	if err != nil {
		return nil, nil, fmt.Errorf("dial graylog %s: %w", address, err)
	}
	w.Facility = "coinserver"
	return slog.NewJSONHandler(w, opts), w, nil
}
