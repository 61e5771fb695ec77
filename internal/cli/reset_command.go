package cli

import (
	"errors"
	"flag"
	"fmt"
	"strings"

	"upscale-manager/internal/logging"
	"upscale-manager/internal/runstore"
)

func runReset(args []string) error {
	fs := flag.NewFlagSet("reset", flag.ContinueOnError)
	fs.SetOutput(flag.CommandLine.Output())
	flags := bindSettingsFlags(fs)
	job := fs.String("job", "", "job name (the source file name without extension)")
	permanent := fs.Bool("permanent", false, "also clear a permanent-failure marker so the job is retried")
	yes := fs.Bool("yes", false, "do not ask for confirmation")
	if err := fs.Parse(args); err != nil {
		return err
	}
	name := strings.TrimSpace(*job)
	if name == "" {
		return errors.New("missing --job")
	}
	s, err := flags.resolve()
	if err != nil {
		return err
	}

	layout := runstore.NewJobLayout(s.OutputRoot, name, s.Container)
	if !runstore.Exists(layout.Root) {
		return fmt.Errorf("job not found: %s", layout.Root)
	}
	if !*yes {
		ok, err := promptConfirm(fmt.Sprintf("Reset checkpoint for %s? [y/N]: ", name))
		if err != nil {
			return err
		}
		if !ok {
			fmt.Println("reset cancelled")
			return nil
		}
	}

	lock, err := runstore.AcquireRunLock(s.OutputRoot, "reset")
	if err != nil {
		return err
	}
	defer lock.Release()

	store, err := runstore.OpenCheckpointStore(s.CheckpointStore, s.OutputRoot, logging.Discard())
	if err != nil {
		return err
	}
	defer store.Close()
	if err := store.Reset(layout); err != nil {
		return fmt.Errorf("reset checkpoint: %w", err)
	}
	fmt.Printf("checkpoint cleared: %s\n", name)

	if !*permanent {
		return nil
	}
	meta, ok := runstore.ReadJobMeta(layout.Root)
	if !ok || !meta.Permanent {
		fmt.Println("no permanent-failure marker")
		return nil
	}
	meta.Permanent = false
	meta.Reason = ""
	meta.LastError = ""
	if err := runstore.SaveJobMeta(layout.Root, meta); err != nil {
		return err
	}
	fmt.Printf("permanent-failure marker cleared: %s\n", name)
	return nil
}
