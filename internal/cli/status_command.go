package cli

import (
	"errors"
	"flag"
	"fmt"
	"strings"

	"upscale-manager/internal/discovery"
	"upscale-manager/internal/logging"
	"upscale-manager/internal/runstore"

	tea "github.com/charmbracelet/bubbletea"
)

func runStatus(args []string) error {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	fs.SetOutput(flag.CommandLine.Output())
	flags := bindSettingsFlags(fs)
	jsonOut := fs.Bool("json", false, "print status as JSON")
	watch := fs.Bool("watch", false, "live view that refreshes every few seconds (requires a TTY)")
	job := fs.String("job", "", "only show this job")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *jsonOut && *watch {
		return errors.New("--json and --watch cannot be combined")
	}
	s, err := flags.resolve()
	if err != nil {
		return err
	}
	load := func() (discovery.StatusResult, error) {
		return loadStatus(s, strings.TrimSpace(*job))
	}

	if *watch {
		if !stdinIsTTY() {
			return errors.New("status --watch requires an interactive terminal (TTY)")
		}
		p := tea.NewProgram(newStatusModel(load), tea.WithAltScreen())
		finalModel, err := p.Run()
		if err != nil {
			return err
		}
		if fm, ok := finalModel.(statusModel); ok {
			return fm.fatalErr
		}
		return nil
	}

	res, err := load()
	if err != nil {
		return err
	}
	if *jsonOut {
		return printJSON(res)
	}
	printStatus(res)
	return nil
}

func loadStatus(s discovery.Settings, job string) (discovery.StatusResult, error) {
	store, err := runstore.OpenCheckpointStore(s.CheckpointStore, s.OutputRoot, logging.Discard())
	if err != nil {
		return discovery.StatusResult{}, err
	}
	defer store.Close()

	res, err := discovery.Status(discovery.StatusOptions{
		InputDir:    s.InputDir,
		OutputRoot:  s.OutputRoot,
		Container:   s.Container,
		Extensions:  s.Extensions,
		Checkpoints: store,
	})
	if err != nil || job == "" {
		return res, err
	}
	rows := res.Rows[:0]
	for _, row := range res.Rows {
		if row.Job == job {
			rows = append(rows, row)
		}
	}
	if len(rows) == 0 {
		return discovery.StatusResult{}, fmt.Errorf("job not found: %s", job)
	}
	res.Rows = rows
	return res, nil
}

func printStatus(res discovery.StatusResult) {
	fmt.Printf("output: %s\n", res.OutputRoot)
	if len(res.Rows) == 0 {
		fmt.Println("no jobs")
		return
	}
	fmt.Println()
	fmt.Printf("%-32s %-16s %13s %7s %10s %5s %5s\n", "JOB", "STAGE", "FRAMES", "DONE", "CHECKPOINT", "AUDIO", "FINAL")
	for _, row := range res.Rows {
		fmt.Printf("%-32s %-16s %13s %6.1f%% %10d %5s %5s\n",
			truncateRunes(row.Job, 32),
			row.Stage,
			fmt.Sprintf("%d/%d", row.Upscaled, row.Frames),
			row.Percent()*100,
			row.Checkpoint,
			yesNo(row.Audio),
			yesNo(row.Final),
		)
		if row.LastError != "" {
			fmt.Printf("  last error: %s\n", row.LastError)
		}
	}
	t := res.Totals
	fmt.Println()
	fmt.Printf("jobs: %d (done %d, in progress %d, queued %d, failed %d)\n", t.Jobs, t.Done, t.InProgress, t.Queued, t.Failed)
	fmt.Printf("frames upscaled: %d/%d\n", t.Upscaled, t.Frames)
}
