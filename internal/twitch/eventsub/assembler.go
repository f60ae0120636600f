package eventsub

import "bytes"

// assembler joins frames into complete messages.
type assembler struct {
	buf      bytes.Buffer
	max      int
	overflow bool
}

func newAssembler(maxSize int) *assembler {
	return &assembler{max: maxSize}
}

// add appends frame and returns the complete message when frame is final.
// ErrMessageTooLarge is returned once when a message crosses the limit;
// the rest of that message is discarded.
func (a *assembler) add(frame Frame) ([]byte, bool, error) {
	if a.overflow {
		if frame.Final {
			a.overflow = false
		}
		return nil, false, nil
	}

	if a.max > 0 && a.buf.Len()+len(frame.Data) > a.max {
		a.buf.Reset()
		a.overflow = !frame.Final
		return nil, false, ErrMessageTooLarge
	}

	a.buf.Write(frame.Data)
	if !frame.Final {
		return nil, false, nil
	}

	msg := make([]byte, a.buf.Len())
	copy(msg, a.buf.Bytes())
	a.buf.Reset()
	return msg, true, nil
}

func (a *assembler) reset() {
	a.buf.Reset()
	a.overflow = false
}

// recentIDs remembers the last n message ids.
type recentIDs struct {
	ring []string
	seen map[string]struct{}
	next int
}

func newRecentIDs(n int) *recentIDs {
	if n <= 0 {
		return nil
	}
	return &recentIDs{ring: make([]string, n), seen: make(map[string]struct{}, n)}
}

// seenBefore records id and reports whether it was already present.
func (r *recentIDs) seenBefore(id string) bool {
	if r == nil || id == "" {
		return false
	}
	if _, ok := r.seen[id]; ok {
		return true
	}
	if old := r.ring[r.next]; old != "" {
		delete(r.seen, old)
	}
	r.ring[r.next] = id
	r.seen[id] = struct{}{}
	r.next = (r.next + 1) % len(r.ring)
	return false
}
