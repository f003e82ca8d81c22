// Package transcriptq holds transcripts produced while the backend is busy
// and flushes them as a single injection when the prompt comes back.
package transcriptq

import (
	"strings"

	"github.com/jguida941/voiceterm-sub001/internal/config"
	"github.com/jguida941/voiceterm-sub001/internal/voice"
)

// Item is a queued transcript plus its send-mode override (from macro
// expansion), which takes precedence over the global mode.
type Item struct {
	Transcript   voice.Transcript
	ModeOverride config.SendMode // "" = use global mode
}

// Queue is FIFO and bounded; overflow drops the oldest item and counts it.
// Owned by the event loop; no locking.
type Queue struct {
	items   []Item
	cap     int
	sep     string
	dropped uint64
}

// DefaultCapacity bounds the queue when no capacity is configured.
const DefaultCapacity = 16

// New returns a queue with the given capacity and merge separator.
func New(capacity int, sep string) *Queue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if sep == "" {
		sep = " "
	}
	return &Queue{cap: capacity, sep: sep}
}

// Push enqueues an item, evicting the oldest on overflow.
func (q *Queue) Push(it Item) {
	if len(q.items) >= q.cap {
		q.items = q.items[1:]
		q.dropped++
	}
	q.items = append(q.items, it)
}

// Len returns the number of queued items.
func (q *Queue) Len() int { return len(q.items) }

// Dropped returns the cumulative overflow count, surfaced in the HUD.
func (q *Queue) Dropped() uint64 { return q.dropped }

// Flush merges all pending items into one injection and clears the queue.
// Items are joined FIFO with the separator; the first item's send-mode
// override wins. In auto mode the text gains a trailing newline so the
// backend submits immediately.
func (q *Queue) Flush(global config.SendMode) (text string, ok bool) {
	if len(q.items) == 0 {
		return "", false
	}
	parts := make([]string, len(q.items))
	for i, it := range q.items {
		parts[i] = it.Transcript.Text
	}
	mode := global
	if q.items[0].ModeOverride != "" {
		mode = q.items[0].ModeOverride
	}
	q.items = q.items[:0]

	text = strings.Join(parts, q.sep)
	if mode == config.SendAuto {
		text += "\n"
	}
	return text, true
}

// Render formats a single transcript for immediate injection, applying the
// same send-mode rules without queueing.
func Render(t voice.Transcript, override, global config.SendMode) string {
	mode := global
	if override != "" {
		mode = override
	}
	if mode == config.SendAuto {
		return t.Text + "\n"
	}
	return t.Text
}
