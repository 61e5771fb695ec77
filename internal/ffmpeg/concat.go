package ffmpeg

import (
	"fmt"
	"strconv"
	"strings"
)

// ConcatFrame is one slot of the output timeline.
type ConcatFrame struct {
	Path     string
	Produced bool
}

// BuildConcatList renders an ffmpeg concat-demuxer script. Slots without a
// produced image lengthen the preceding image (or the first one, for a
// leading gap) so the video keeps its original length.
func BuildConcatList(slots []ConcatFrame, frameRate string) (string, error) {
	fps, err := strconv.ParseFloat(strings.TrimSpace(frameRate), 64)
	if err != nil || fps <= 0 {
		return "", fmt.Errorf("invalid frame rate %q", frameRate)
	}

	type entry struct {
		path  string
		slots int
	}
	var entries []entry
	leading := 0
	for _, s := range slots {
		if !s.Produced {
			if len(entries) == 0 {
				leading++
			} else {
				entries[len(entries)-1].slots++
			}
			continue
		}
		entries = append(entries, entry{path: s.Path, slots: 1})
	}
	if len(entries) == 0 {
		return "", fmt.Errorf("no produced frames to concatenate")
	}
	entries[0].slots += leading

	var b strings.Builder
	b.WriteString("ffconcat version 1.0\n")
	for _, e := range entries {
		fmt.Fprintf(&b, "file %s\n", quoteConcatPath(e.path))
		fmt.Fprintf(&b, "duration %s\n", strconv.FormatFloat(float64(e.slots)/fps, 'f', 6, 64))
	}
	// The demuxer ignores the duration of the final entry unless the file
	// is listed once more.
	fmt.Fprintf(&b, "file %s\n", quoteConcatPath(entries[len(entries)-1].path))
	return b.String(), nil
}

func quoteConcatPath(p string) string {
	return "'" + strings.ReplaceAll(p, "'", `'\''`) + "'"
}
