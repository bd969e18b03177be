package output

import (
	"fmt"
	"io"
	"strings"
	"sync"
)

// Unit renders a progress amount.
type Unit func(n int64) string

// Count renders a plain number.
func Count(n int64) string {
	return fmt.Sprintf("%d", n)
}

// Bytes renders a byte size.
func Bytes(n int64) string {
	return formatBytes(n)
}

// ProgressBar displays progress of a batch or a transfer.
type ProgressBar struct {
	w       io.Writer
	title   string
	unit    Unit
	total   int64
	current int64
	width   int
	mu      sync.Mutex
}

// NewProgressBar creates a progress bar. A nil unit means Count.
func NewProgressBar(w io.Writer, title string, unit Unit) *ProgressBar {
	if unit == nil {
		unit = Count
	}
	return &ProgressBar{
		w:     w,
		title: title,
		unit:  unit,
		width: 30,
	}
}

// SetTotal sets the expected total. Zero means unknown.
func (p *ProgressBar) SetTotal(total int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.total = total
	p.render()
}

// Increment advances by n.
func (p *ProgressBar) Increment(n int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current += n
	p.render()
}

// Current returns the amount done so far.
func (p *ProgressBar) Current() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// Write counts bytes written through it, so the bar can sit in an
// io.MultiWriter or behind io.TeeReader.
func (p *ProgressBar) Write(b []byte) (int, error) {
	p.Increment(int64(len(b)))
	return len(b), nil
}

// Finish renders the final state and ends the line.
func (p *ProgressBar) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.render()
	fmt.Fprintln(p.w)
}

func (p *ProgressBar) render() {
	if p.total <= 0 {
		fmt.Fprintf(p.w, "\r%s %s", p.title, p.unit(p.current))
		return
	}

	percent := float64(p.current) / float64(p.total)
	if percent > 1 {
		percent = 1
	}

	filled := int(float64(p.width) * percent)
	bar := strings.Repeat("#", filled) + strings.Repeat(".", p.width-filled)

	fmt.Fprintf(p.w, "\r%s [%s] %3.0f%% (%s/%s)",
		p.title,
		bar,
		percent*100,
		p.unit(p.current),
		p.unit(p.total),
	)
}

// formatBytes formats bytes to human readable string.
func formatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}
