package ansi

import "bytes"

// QueryKind identifies a terminal query the child sent on the PTY.
type QueryKind int

const (
	QueryCursorPos   QueryKind = iota // DSR: CSI 6 n
	QueryDeviceAttrs                  // DA:  CSI c / CSI 0 c
	QueryOSCFg                        // OSC 10 ; ?
	QueryOSCBg                        // OSC 11 ; ?
)

var queryPatterns = []struct {
	kind QueryKind
	seq  []byte
}{
	{QueryCursorPos, []byte("\x1b[6n")},
	{QueryDeviceAttrs, []byte("\x1b[c")},
	{QueryDeviceAttrs, []byte("\x1b[0c")},
	{QueryOSCFg, []byte("\x1b]10;?")},
	{QueryOSCBg, []byte("\x1b]11;?")},
}

// QueryScanner detects terminal queries in child output across chunk
// boundaries. Detection is passive: the caller forwards the raw bytes
// unchanged and separately answers each reported query.
type QueryScanner struct {
	pend []byte
}

// Scan reports the queries completed within chunk, in order.
func (q *QueryScanner) Scan(chunk []byte) []QueryKind {
	var found []QueryKind
	for _, b := range chunk {
		if len(q.pend) == 0 {
			if b == 0x1B {
				q.pend = append(q.pend, b)
			}
			continue
		}
		q.pend = append(q.pend, b)
		matched := false
		prefix := false
		for _, p := range queryPatterns {
			if bytes.Equal(q.pend, p.seq) {
				found = append(found, p.kind)
				matched = true
				break
			}
			if len(q.pend) < len(p.seq) && bytes.HasPrefix(p.seq, q.pend) {
				prefix = true
			}
		}
		if matched || !prefix {
			q.pend = q.pend[:0]
			if !matched && b == 0x1B {
				q.pend = append(q.pend, b)
			}
		}
	}
	return found
}
