package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"path/filepath"
	"strings"

	"upscale-manager/internal/ffmpeg"
	"upscale-manager/internal/qpsearch"
	"upscale-manager/internal/runstore"
)

type bitrateOutput struct {
	Input   string          `json:"input"`
	Search  qpsearch.Result `json:"search"`
	Encoded string          `json:"encoded,omitempty"`
}

func runBitrate(args []string) error {
	fs := flag.NewFlagSet("bitrate", flag.ContinueOnError)
	fs.SetOutput(flag.CommandLine.Output())
	flags := bindSettingsFlags(fs)
	def := qpsearch.DefaultParams()
	source := fs.String("source", "", "video to measure (usually a finished *_upscaled file)")
	targetQP := fs.Float64("target-qp", def.TargetQP, "average QP to aim for")
	tolerance := fs.Float64("tolerance", def.Tolerance, "accepted distance from the target QP")
	lowerK := fs.Int("lower", def.LowerK, "lower bitrate bound in kbit/s")
	upperK := fs.Int("upper", def.UpperK, "upper bitrate bound in kbit/s")
	stepK := fs.Int("step", def.StepK, "upper bound increment while it is still above the target QP")
	maxIter := fs.Int("max-iter", def.MaxIter, "iteration cap for bound raising and interpolation")
	probePreset := fs.String("probe-preset", "veryfast", "x265 preset for measurement encodes")
	encode := fs.Bool("encode", false, "run the two-pass x265 encode at the found bitrate")
	encodePreset := fs.String("encode-preset", "veryslow", "x265 preset for the final encode")
	output := fs.String("out", "", "encode destination (default <source>_x265_<bitrate>k.mp4)")
	jsonOut := fs.Bool("json", false, "print JSON output")
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

	client := ffmpeg.New(ffmpeg.Options{
		Binary:       s.FFmpegBinary,
		ProbeBinary:  s.FFprobeBinary,
		AudioBitrate: s.AudioBitrate,
	})
	measurer := ffmpeg.QPMeasurer{
		Client: client,
		Input:  src,
		Preset: strings.TrimSpace(*probePreset),
		Progress: func(line string) {
			log.Debug("x265", "line", line)
		},
	}
	params := qpsearch.Params{
		TargetQP:  *targetQP,
		Tolerance: *tolerance,
		LowerK:    *lowerK,
		UpperK:    *upperK,
		StepK:     *stepK,
		MarginK:   def.MarginK,
		MaxIter:   *maxIter,
	}

	log.Info("searching bitrate", "source", src, "target_qp", params.TargetQP, "lower_k", params.LowerK, "upper_k", params.UpperK)
	res, err := qpsearch.Search(ctx, measurer, params)
	if err != nil {
		return err
	}
	if !res.Converged {
		log.Warn("search did not converge, using the last candidate", "bitrate_k", res.BitrateK, "qp", res.QP)
	}

	out := bitrateOutput{Input: src, Search: res}
	if *encode {
		dst := strings.TrimSpace(*output)
		if dst == "" {
			dst = defaultEncodePath(src, res.BitrateK)
		}
		log.Info("two-pass encode", "bitrate_k", res.BitrateK, "out", dst)
		if err := client.TwoPassEncode(ctx, src, dst, res.BitrateK, strings.TrimSpace(*encodePreset)); err != nil {
			return err
		}
		out.Encoded = dst
	}

	if *jsonOut {
		return printJSON(out)
	}
	printBitrateResult(out)
	return nil
}

func defaultEncodePath(src string, bitrateK int) string {
	ext := filepath.Ext(src)
	base := strings.TrimSuffix(src, ext)
	return fmt.Sprintf("%s_x265_%dk.mp4", base, bitrateK)
}

func printBitrateResult(out bitrateOutput) {
	res := out.Search
	fmt.Printf("source: %s\n", out.Input)
	for _, p := range res.Probes {
		fmt.Printf("probe: %dk -> qp %s\n", p.BitrateK, formatFloat(p.QP))
	}
	for _, it := range res.Iterations {
		fmt.Printf("iteration %d: [%dk, %dk] candidate %dk -> qp %s\n",
			it.Number, it.Lower.BitrateK, it.Upper.BitrateK, it.Candidate.BitrateK, formatFloat(it.Candidate.QP))
	}
	fmt.Printf("bitrate: %dk\n", res.BitrateK)
	fmt.Printf("qp: %s\n", formatFloat(res.QP))
	fmt.Printf("converged: %t\n", res.Converged)
	if out.Encoded != "" {
		fmt.Printf("encoded: %s\n", out.Encoded)
	}
}
