package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"upscale-manager/internal/model"
)

// Pattern describes how frame files are named: <prefix><digits>.<ext>.
type Pattern struct {
	Prefix string
	Ext    string
	Width  int
}

func DefaultPattern() Pattern {
	return Pattern{Prefix: "thumb", Ext: "png", Width: 4}
}

// Template is the printf-style pattern handed to the extraction tool.
func (p Pattern) Template() string {
	return fmt.Sprintf("%s%%0%dd.%s", p.Prefix, p.width(), p.ext())
}

func (p Pattern) Name(number int) string {
	return fmt.Sprintf("%s%0*d.%s", p.Prefix, p.width(), number, p.ext())
}

func (p Pattern) width() int {
	if p.Width <= 0 {
		return 4
	}
	return p.Width
}

func (p Pattern) ext() string {
	ext := strings.TrimPrefix(strings.TrimSpace(p.Ext), ".")
	if ext == "" {
		return "png"
	}
	return ext
}

func (p Pattern) matcher() *regexp.Regexp {
	return regexp.MustCompile(`^` + regexp.QuoteMeta(p.Prefix) + `([0-9]+)\.` + regexp.QuoteMeta(p.ext()) + `$`)
}

// Load lists the frames in dir ordered by their embedded number. Names are
// never compared as strings, so thumb10000 sorts after thumb9999.
func Load(dir string, p Pattern) ([]model.Frame, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, model.ErrEmptyCatalog
		}
		return nil, fmt.Errorf("read frames directory %s: %w", dir, err)
	}

	re := p.matcher()
	frames := make([]model.Frame, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := re.FindStringSubmatch(e.Name())
		if len(m) < 2 {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		frames = append(frames, model.Frame{
			Number: n,
			Name:   e.Name(),
			Path:   filepath.Join(dir, e.Name()),
		})
	}
	if len(frames) == 0 {
		return nil, model.ErrEmptyCatalog
	}

	sort.SliceStable(frames, func(i, j int) bool {
		if frames[i].Number != frames[j].Number {
			return frames[i].Number < frames[j].Number
		}
		return frames[i].Name < frames[j].Name
	})
	for i := range frames {
		frames[i].Index = i + 1
	}
	return frames, nil
}

// HasFrames reports whether extraction already left at least one frame.
func HasFrames(dir string, p Pattern) bool {
	frames, err := Load(dir, p)
	return err == nil && len(frames) > 0
}

func OutputPath(frame model.Frame, upscaledDir string) string {
	return filepath.Join(upscaledDir, frame.Name)
}

// Outputs is the set of finished output names in an upscaled directory,
// read with a single listing.
type Outputs map[string]bool

func ListOutputs(upscaledDir string) (Outputs, error) {
	entries, err := os.ReadDir(upscaledDir)
	if err != nil {
		if os.IsNotExist(err) {
			return Outputs{}, nil
		}
		return nil, fmt.Errorf("read upscaled directory %s: %w", upscaledDir, err)
	}
	out := make(Outputs, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		out[e.Name()] = true
	}
	return out, nil
}

func (o Outputs) Count(frames []model.Frame) int {
	n := 0
	for _, f := range frames {
		if o[f.Name] {
			n++
		}
	}
	return n
}

// FirstMissing returns the index of the first frame without an output, or
// len(frames)+1 when every frame is done.
func (o Outputs) FirstMissing(frames []model.Frame) int {
	for _, f := range frames {
		if !o[f.Name] {
			return f.Index
		}
	}
	return len(frames) + 1
}

func (o Outputs) Missing(frames []model.Frame) []model.Frame {
	var missing []model.Frame
	for _, f := range frames {
		if !o[f.Name] {
			missing = append(missing, f)
		}
	}
	return missing
}
