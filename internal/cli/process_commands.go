package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"strings"

	"upscale-manager/internal/discovery"
	"upscale-manager/internal/model"
	"upscale-manager/internal/runstore"
)

func runWatch(args []string) error {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	fs.SetOutput(flag.CommandLine.Output())
	flags := bindSettingsFlags(fs)
	once := fs.Bool("once", false, "run a single discovery pass and exit")
	if err := fs.Parse(args); err != nil {
		return err
	}

	s, log, err := flags.load()
	if err != nil {
		return err
	}
	ctx, stop := withInterrupt(context.Background(), log)
	defer stop()

	sess, err := openSession(ctx, s, log, flags.configPath(), "watch")
	if err != nil {
		return err
	}
	defer sess.Close()

	loop := discovery.NewLoop(discovery.LoopOptions{
		InputDir:        s.InputDir,
		OutputRoot:      s.OutputRoot,
		Container:       s.Container,
		Extensions:      s.Extensions,
		PollBusy:        s.PollBusy.Std(),
		PollIdle:        s.PollIdle.Std(),
		FailureCooldown: s.FailureCooldown.Std(),
		Once:            *once,
		Logger:          log,
	}, sess.driver)

	log.Info("watching for videos", "input", s.InputDir, "output", s.OutputRoot, "extensions", strings.Join(s.Extensions, ","))
	if err := loop.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	if ctx.Err() != nil {
		log.Info("stopped")
	}
	return nil
}

func runProcess(args []string) error {
	fs := flag.NewFlagSet("process", flag.ContinueOnError)
	fs.SetOutput(flag.CommandLine.Output())
	flags := bindSettingsFlags(fs)
	source := fs.String("source", "", "video file to process")
	jsonOut := fs.Bool("json", false, "print the job result as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	src := strings.TrimSpace(*source)
	if src == "" && fs.NArg() > 0 {
		src = strings.TrimSpace(fs.Arg(0))
	}
	if src == "" {
		return errors.New("missing --source")
	}
	if !runstore.Exists(src) {
		return fmt.Errorf("source not found: %s", src)
	}

	s, log, err := flags.load()
	if err != nil {
		return err
	}
	ctx, stop := withInterrupt(context.Background(), log)
	defer stop()

	sess, err := openSession(ctx, s, log, flags.configPath(), "process")
	if err != nil {
		return err
	}
	defer sess.Close()

	res, runErr := sess.driver.Run(ctx, src)
	if *jsonOut {
		if err := printJSON(processOutput(res, runErr)); err != nil {
			return err
		}
	} else {
		printProcessResult(res)
	}
	return runErr
}

type processResult struct {
	Job       string           `json:"job"`
	Stage     string           `json:"stage"`
	Resumable bool             `json:"resumable"`
	Archived  bool             `json:"archived"`
	FinalPath string           `json:"final_path,omitempty"`
	Stats     model.FrameStats `json:"stats"`
	Error     string           `json:"error,omitempty"`
	Reason    string           `json:"reason,omitempty"`
}

func processOutput(res model.JobResult, err error) processResult {
	out := processResult{
		Job:       res.Name,
		Stage:     res.Stage,
		Resumable: res.Resumable,
		Archived:  res.Archived,
		FinalPath: res.FinalPath,
		Stats:     res.Stats,
	}
	if err != nil {
		out.Error = err.Error()
		out.Reason = model.ReasonOf(err)
	}
	return out
}

func printProcessResult(res model.JobResult) {
	fmt.Printf("job: %s\n", res.Name)
	fmt.Printf("stage: %s\n", res.Stage)
	fmt.Printf("frames: %d (ok %d, skipped %d, failed %d, timed out %d, fallbacks %d)\n",
		res.Stats.Total, res.Stats.Succeeded, res.Stats.Skipped, res.Stats.Failed, res.Stats.TimedOut, res.Stats.Fallbacks)
	if res.FinalPath != "" {
		fmt.Printf("final: %s\n", res.FinalPath)
	}
	fmt.Printf("archived: %s\n", yesNo(res.Archived))
	if res.Stage == model.StageFailed {
		fmt.Printf("resumable: %s\n", yesNo(res.Resumable))
	}
}
