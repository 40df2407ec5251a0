package fetch

import (
	"io"
	"sync"
	"time"

	"github.com/cheggaaa/pb/v3"
)

const progressTemplate = `{{ string . "prefix" }} {{ counters . }} {{ bar . }} {{ percent . }} {{ rtime . "ETA %s" }}`

// Progress is a terminal progress bar advanced once per finished URL.
type Progress struct {
	out io.Writer

	mu  sync.Mutex
	bar *pb.ProgressBar
}

// NewProgress creates a Progress drawing to out.
func NewProgress(out io.Writer) *Progress {
	return &Progress{out: out}
}

// Start draws a bar for total URLs.
func (p *Progress) Start(total int) {
	bar := pb.New(total)
	bar.SetTemplateString(progressTemplate)
	bar.Set("prefix", "Downloading")
	bar.SetWriter(p.out)
	bar.SetMaxWidth(100)
	bar.SetRefreshRate(500 * time.Millisecond)
	bar.Start()

	p.mu.Lock()
	p.bar = bar
	p.mu.Unlock()
}

// Increment advances the bar by one.
func (p *Progress) Increment() {
	if bar := p.current(); bar != nil {
		bar.Increment()
	}
}

// Current returns the number of finished URLs.
func (p *Progress) Current() int64 {
	if bar := p.current(); bar != nil {
		return bar.Current()
	}
	return 0
}

// Finish stops redrawing and prints the final state.
func (p *Progress) Finish() {
	if bar := p.current(); bar != nil {
		bar.Finish()
	}
}

func (p *Progress) current() *pb.ProgressBar {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.bar
}
