package cli

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"strings"

	"upscale-manager/internal/discovery"
)

func runSettings(args []string) error {
	if len(args) == 0 {
		printSettingsUsage()
		return nil
	}
	switch args[0] {
	case "show":
		return runSettingsShow(args[1:])
	case "set":
		return runSettingsSet(args[1:])
	case "help", "-h", "--help":
		printSettingsUsage()
		return nil
	default:
		printSettingsUsage()
		return fmt.Errorf("unknown settings subcommand %q", args[0])
	}
}

func runSettingsShow(args []string) error {
	fs := flag.NewFlagSet("settings show", flag.ContinueOnError)
	config := fs.String("config", discovery.DefaultSettingsConfigPath, "settings file path")
	fileOnly := fs.Bool("file", false, "show the persisted file values without UPSCALE_* overrides")
	jsonOut := fs.Bool("json", false, "print JSON output")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}

	configPath := strings.TrimSpace(*config)
	var (
		s   discovery.Settings
		err error
	)
	if *fileOnly {
		s, err = discovery.ReadSettings(configPath)
	} else {
		s, err = discovery.LoadSettings(configPath)
	}
	if err != nil {
		return err
	}
	if *jsonOut {
		return printJSON(map[string]any{
			"config_path": configPath,
			"settings":    s,
		})
	}

	values, err := settingValues(s)
	if err != nil {
		return err
	}
	fmt.Printf("config: %s\n", configPath)
	for _, key := range discovery.SettingKeys() {
		v, ok := values[key]
		if !ok || v == "" {
			v = "(unset)"
		}
		fmt.Printf("%s: %s\n", key, v)
	}
	return nil
}

func runSettingsSet(args []string) error {
	fs := flag.NewFlagSet("settings set", flag.ContinueOnError)
	config := fs.String("config", discovery.DefaultSettingsConfigPath, "settings file path")
	jsonOut := fs.Bool("json", false, "print JSON output")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}
	pairs, err := parseSettingPairs(fs.Args())
	if err != nil {
		return err
	}

	configPath := strings.TrimSpace(*config)
	s, err := discovery.ReadSettings(configPath)
	if err != nil {
		return err
	}
	for _, p := range pairs {
		if err := discovery.SetSettingValue(&s, p[0], p[1]); err != nil {
			return err
		}
	}
	s = discovery.NormalizeSettings(s)
	if err := s.Validate(); err != nil {
		return err
	}

	res, err := discovery.UpdateSettings(discovery.UpdateSettingsOptions{
		ConfigPath: configPath,
		Settings:   s,
	})
	if err != nil {
		return err
	}
	if *jsonOut {
		return printJSON(res)
	}

	values, err := settingValues(res.Settings)
	if err != nil {
		return err
	}
	fmt.Printf("updated settings in %s\n", res.ConfigPath)
	for _, p := range pairs {
		key := strings.ToLower(p[0])
		fmt.Printf("%s: %s\n", key, values[key])
	}
	return nil
}

// parseSettingPairs accepts either "key value" or one or more "key=value".
func parseSettingPairs(args []string) ([][2]string, error) {
	if len(args) == 0 {
		return nil, errors.New("usage: settings set <key> <value> | <key>=<value>...")
	}
	if len(args) == 2 && !strings.Contains(args[0], "=") {
		return [][2]string{{strings.TrimSpace(args[0]), args[1]}}, nil
	}
	out := make([][2]string, 0, len(args))
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("expected key=value, got %q", arg)
		}
		out = append(out, [2]string{strings.TrimSpace(key), value})
	}
	return out, nil
}

// settingValues renders every setting the way it is stored in the file.
func settingValues(s discovery.Settings) (map[string]string, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	out := make(map[string]string, len(fields))
	for k, v := range fields {
		var str string
		if err := json.Unmarshal(v, &str); err == nil {
			out[k] = str
			continue
		}
		var list []string
		if err := json.Unmarshal(v, &list); err == nil {
			out[k] = strings.Join(list, ",")
			continue
		}
		out[k] = string(v)
	}
	return out, nil
}

func printSettingsUsage() {
	fmt.Println("settings commands:")
	fmt.Println("  upscale-manager settings show [--file] [--json]")
	fmt.Println("  upscale-manager settings set <key> <value>")
	fmt.Println("  upscale-manager settings set <key>=<value> [<key>=<value>...]")
	fmt.Println()
	fmt.Println("keys: " + strings.Join(discovery.SettingKeys(), ", "))
}
