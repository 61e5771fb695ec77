package cli

import (
	"errors"
	"flag"
	"fmt"
	"strings"

	"upscale-manager/internal/discovery"
)

func runInit(args []string) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	config := fs.String("config", discovery.DefaultSettingsConfigPath, "settings file path")
	jsonOut := fs.Bool("json", false, "print JSON output")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}

	res, err := discovery.InitWorkspace(discovery.InitWorkspaceOptions{
		ConfigPath: strings.TrimSpace(*config),
	})
	if err != nil {
		return err
	}
	if *jsonOut {
		return printJSON(res)
	}

	fmt.Println("workspace initialized")
	fmt.Printf("input_dir: %s\n", res.InputDir)
	fmt.Printf("output_root: %s\n", res.OutputRoot)
	fmt.Printf("config: %s\n", res.ConfigPath)
	fmt.Printf("created_input_dir: %t\n", res.CreatedInputDir)
	fmt.Printf("created_output_root: %t\n", res.CreatedOutputRoot)
	fmt.Printf("created_config: %t\n", res.CreatedConfig)
	fmt.Println("checks:")
	printChecks(res.DoctorResult, "  ")
	if !res.DoctorResult.OK {
		return errors.New("doctor checks failed")
	}
	fmt.Println("next: copy videos into " + res.InputDir + " and run 'upscale-manager watch'")
	return nil
}

func runDoctor(args []string) error {
	fs := flag.NewFlagSet("doctor", flag.ContinueOnError)
	fs.SetOutput(flag.CommandLine.Output())
	flags := bindSettingsFlags(fs)
	jsonOut := fs.Bool("json", false, "print JSON output")
	if err := fs.Parse(args); err != nil {
		return err
	}
	s, err := flags.resolve()
	if err != nil {
		return err
	}

	res, err := discovery.Doctor(discovery.DoctorOptions{
		Settings:   s,
		ConfigPath: flags.configPath(),
	})
	if err != nil {
		return err
	}
	if *jsonOut {
		if err := printJSON(res); err != nil {
			return err
		}
	} else {
		printChecks(res, "")
	}
	if !res.OK {
		return errors.New("doctor checks failed")
	}
	if !*jsonOut {
		fmt.Println("doctor: all checks passed")
	}
	return nil
}

func printChecks(res discovery.DoctorResult, indent string) {
	for _, c := range res.Checks {
		status := "ok"
		if !c.OK {
			status = "fail"
		}
		fmt.Printf("%s%s: %s (%s)\n", indent, c.Name, status, c.Message)
	}
}
