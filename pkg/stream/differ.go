package stream

// ContentMode states how the server sends message content within one pass.
type ContentMode int

const (
	// ContentCumulative means every update repeats all prior text plus the new text.
	// This is what the web backend does today.
	ContentCumulative ContentMode = iota
	// ContentIncremental means every update only carries new text.
	ContentIncremental
)

func (m ContentMode) String() string {
	switch m {
	case ContentCumulative:
		return "cumulative"
	case ContentIncremental:
		return "incremental"
	default:
		return "unknown"
	}
}

// Differ converts the deltas of one pass into suffix-only increments.
//
// It is stateful and must be Reset at the start of every request (initial
// prompt and each continuation).
type Differ struct {
	mode    ContentMode
	seenLen int
}

func NewDiffer(mode ContentMode) *Differ {
	return &Differ{mode: mode}
}

func (d *Differ) Mode() ContentMode {
	return d.mode
}

func (d *Differ) Reset() {
	d.seenLen = 0
}

// Apply returns d with Content replaced by the text not yet seen in this pass.
func (d *Differ) Apply(delta Delta) Delta {
	if d.mode == ContentIncremental {
		return delta
	}
	content := delta.Content
	if len(content) < d.seenLen {
		// the server shortened the message; nothing new to emit
		delta.Content = ""
	} else {
		delta.Content = content[d.seenLen:]
	}
	d.seenLen = len(content)
	return delta
}
