package toolrunner

import (
	"bytes"
	"fmt"
)

// cappedBuffer keeps the first limit bytes written and counts the rest. Write never fails
// so a chatty tool is not killed by a broken pipe.
type cappedBuffer struct {
	buf     bytes.Buffer
	limit   int
	dropped int
}

func newCappedBuffer(limit int) *cappedBuffer {
	return &cappedBuffer{limit: limit}
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	room := b.limit - b.buf.Len()
	switch {
	case room <= 0:
		b.dropped += len(p)
	case len(p) <= room:
		b.buf.Write(p)
	default:
		b.buf.Write(p[:room])
		b.dropped += len(p) - room
	}
	return len(p), nil
}

func (b *cappedBuffer) Truncated() bool {
	return b.dropped > 0
}

func (b *cappedBuffer) String() string {
	if b.dropped == 0 {
		return b.buf.String()
	}
	return fmt.Sprintf("%s… (truncated %d bytes)", b.buf.String(), b.dropped)
}
