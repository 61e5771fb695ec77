package pipeline

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"

	"upscale-manager/internal/model"
)

var (
	tagOKStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	tagSkipStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	tagFailStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true)
	tagTimeoutStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
	mutedStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

// frameProgress redraws a single status line while a frame is being worked
// on and leaves one summary line behind when it stops.
type frameProgress struct {
	live bool
	out  io.Writer

	index int
	total int
	name  string

	mu      sync.Mutex
	phase   string
	started time.Time
	now     func() time.Time
	remain  string

	stop chan struct{}
	done chan struct{}
}

func newFrameProgress(out io.Writer, live bool, index, total int, name, remain string, now func() time.Time) *frameProgress {
	if now == nil {
		now = time.Now
	}
	return &frameProgress{
		live:    live,
		out:     out,
		index:   index,
		total:   total,
		name:    name,
		phase:   "starting",
		started: now(),
		now:     now,
		remain:  remain,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

func (p *frameProgress) Start() {
	if !p.live || p.out == nil {
		close(p.done)
		return
	}
	go func() {
		defer close(p.done)
		t := time.NewTicker(700 * time.Millisecond)
		defer t.Stop()
		for {
			select {
			case <-p.stop:
				return
			case <-t.C:
				fmt.Fprintf(p.out, "\r\033[2K%s", p.render())
			}
		}
	}()
}

func (p *frameProgress) Stop(final string) {
	close(p.stop)
	<-p.done
	if p.out == nil {
		return
	}
	if p.live {
		fmt.Fprintf(p.out, "\r\033[2K%s\n", final)
		return
	}
	fmt.Fprintln(p.out, final)
}

func (p *frameProgress) SetPhase(phase string) {
	p.mu.Lock()
	p.phase = phase
	p.mu.Unlock()
}

func (p *frameProgress) render() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	parts := []string{
		frameCounter(p.index, p.total),
		p.name,
		p.phase,
		FormatClock(p.now().Sub(p.started)),
	}
	if p.remain != "" {
		parts = append(parts, mutedStyle.Render("remain ~"+p.remain))
	}
	return strings.Join(parts, "  ")
}

type frameLine struct {
	Index     int
	Total     int
	Name      string
	Outcome   model.FrameOutcome
	Elapsed   time.Duration
	Remaining time.Duration
	Median    time.Duration
}

// renderFrameLine is the per-frame summary, e.g.
// [0057/0100] ok       00:07  elapsed 06:40  remain 05:01  median 00:07  thumb0057.png
func renderFrameLine(l frameLine) string {
	parts := []string{
		frameCounter(l.Index, l.Total),
		outcomeTag(l.Outcome),
	}
	if l.Outcome.Kind != model.OutcomeSkipped {
		parts = append(parts, FormatClock(l.Outcome.Duration))
	}
	parts = append(parts,
		"elapsed "+FormatClock(l.Elapsed),
		"remain "+FormatClock(l.Remaining),
		"median "+FormatClock(l.Median),
		l.Name,
	)
	if l.Outcome.Message != "" {
		msg := strings.ReplaceAll(l.Outcome.Message, "\n", " ")
		parts = append(parts, tagFailStyle.Render("error:")+" "+truncate(msg, 160))
	}
	return strings.Join(parts, "  ")
}

func outcomeTag(o model.FrameOutcome) string {
	label := ""
	style := tagOKStyle
	switch o.Kind {
	case model.OutcomeSuccess:
		label = "ok"
	case model.OutcomeSkipped:
		label = "skip"
		style = tagSkipStyle
	case model.OutcomeTimeout:
		label = "timeout"
		style = tagTimeoutStyle
	default:
		label = "fail"
		style = tagFailStyle
	}
	if o.UsedFallback {
		label += "+cpu"
	}
	return style.Render(fmt.Sprintf("%-11s", label))
}

func frameCounter(index, total int) string {
	width := len(strconv.Itoa(total))
	if width < 4 {
		width = 4
	}
	return fmt.Sprintf("[%0*d/%0*d]", width, index, width, total)
}
