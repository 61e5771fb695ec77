package cli

import "fmt"

func Run(args []string) error {
	if len(args) == 0 {
		printRootUsage()
		return nil
	}

	switch args[0] {
	case "watch":
		return runWatch(args[1:])
	case "process":
		return runProcess(args[1:])
	case "status":
		return runStatus(args[1:])
	case "init":
		return runInit(args[1:])
	case "doctor":
		return runDoctor(args[1:])
	case "settings":
		return runSettings(args[1:])
	case "bitrate":
		return runBitrate(args[1:])
	case "reset":
		return runReset(args[1:])
	case "help", "-h", "--help":
		printRootUsage()
		return nil
	default:
		printRootUsage()
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func printRootUsage() {
	fmt.Println("upscale-manager: resumable video frame upscaling pipeline")
	fmt.Println()
	fmt.Println("Quick Start:")
	fmt.Println("  upscale-manager init")
	fmt.Println("  upscale-manager watch")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  watch     Poll the input directory and process new or unfinished videos")
	fmt.Println("  process   Run one video through extract, upscale, reassemble and archive")
	fmt.Println("  status    Show per-job progress (--watch for a live view)")
	fmt.Println("  init      Create settings, input and output directories, then run doctor")
	fmt.Println("  doctor    Check external tools and directory permissions")
	fmt.Println("  settings  Show or change persisted settings")
	fmt.Println("  bitrate   Search the bitrate that hits a target x265 QP, optionally encode")
	fmt.Println("  reset     Clear a job's checkpoint or permanent-failure marker")
	fmt.Println()
	fmt.Println("Settings precedence: flags > UPSCALE_* environment > config/settings.json > defaults")
	fmt.Println("Interrupt once to stop after the current frame; interrupt again to force.")
	fmt.Println()
	fmt.Println("Run 'upscale-manager <command> -h' for command flags.")
}
