package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"palisade-hq/palisade/pkg/wire"
)

// ProgressRenderer draws daemon progress frames as a single updating
// terminal line. It is safe for concurrent use, though the client delivers
// frames sequentially.
type ProgressRenderer struct {
	mu      sync.Mutex
	writer  io.Writer
	width   int
	drawn   bool
	lastLen int
}

// NewProgressRenderer creates a renderer that writes to w.
// If w is nil, it defaults to os.Stderr so progress never corrupts piped
// command output.
func NewProgressRenderer(w io.Writer) *ProgressRenderer {
	if w == nil {
		w = os.Stderr
	}
	return &ProgressRenderer{
		writer: w,
		width:  40,
	}
}

// Handle renders one progress frame. It has the client.ProgressFunc shape.
func (p *ProgressRenderer) Handle(frame *wire.Progress) {
	if frame == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.render(frame.Percent, frame.Message)
}

// Finish terminates the progress line so subsequent output starts fresh.
// It is a no-op when no frame was ever drawn.
func (p *ProgressRenderer) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.drawn {
		return
	}
	fmt.Fprintln(p.writer)
	p.drawn = false
	p.lastLen = 0
}

func (p *ProgressRenderer) render(percent int, message string) {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}

	filled := p.width * percent / 100
	bar := strings.Repeat("█", filled) + strings.Repeat("░", p.width-filled)

	line := fmt.Sprintf("[%s] %3d%% %s", bar, percent, message)

	// Pad with spaces so a shorter line fully overwrites the previous one.
	pad := ""
	if n := p.lastLen - len([]rune(line)); n > 0 {
		pad = strings.Repeat(" ", n)
	}
	fmt.Fprintf(p.writer, "\r%s%s", line, pad)

	p.drawn = true
	p.lastLen = len([]rune(line))
}
