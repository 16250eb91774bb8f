// Package video supplies frames to the recognition loop.
package video

import (
	"context"
	"time"
)

// Frame is one encoded image pulled from a source.
type Frame struct {
	Index int       // 0-based position in the source
	Data  []byte    // encoded image (JPEG or PNG)
	Name  string    // file name for directory sources, empty otherwise
	At    time.Time // capture time
}

// Source yields frames one at a time. Next returns io.EOF when the source is exhausted.
// Sources are not safe for concurrent use.
type Source interface {
	Next(ctx context.Context) (Frame, error)
	Close() error
}
