package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/paulschiretz/pgl-mirror/pkg/buildinfo"
	"github.com/paulschiretz/pgl-mirror/pkg/config"
	"github.com/paulschiretz/pgl-mirror/pkg/plog"
	"github.com/paulschiretz/pgl-mirror/pkg/preflight"
)

// RunInit handles the logic for the 'init' command: it writes a configuration
// file from the existing one (if any), the defaults and the given flags.
func RunInit(ctx context.Context, flagMap map[string]interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	configPath, _ := flagMap["config"].(string)
	if configPath == "" {
		configPath = config.ConfigFileName
	}
	absConfigPath, err := filepath.Abs(configPath)
	if err != nil {
		return fmt.Errorf("could not determine absolute config path for %s: %w", configPath, err)
	}

	// Try to load the existing config to preserve settings.
	// config.Load returns NewDefault() if the file simply doesn't exist.
	baseConfig, err := config.Load(absConfigPath)
	if err != nil {
		plog.Warn("Could not load existing configuration, starting with defaults.", "reason", err)
		baseConfig = config.NewDefault()
	}
	runConfig := config.MergeConfigWithFlags(baseConfig, flagMap)

	if err := runConfig.Validate(); err != nil {
		return err
	}
	if err := preflight.CheckSourceAccessible(runConfig.Source); err != nil {
		return fmt.Errorf("initialization preflight failed: %w", err)
	}

	force, _ := flagMap["force"].(bool)
	if !force {
		if _, err := os.Stat(absConfigPath); err == nil {
			fmt.Printf("WARNING: Configuration file already exists at %s.\n", absConfigPath)
			if !PromptForConfirmation("Overwrite it with the merged settings?", false) {
				plog.Info(buildinfo.Name + " init operation canceled.")
				return nil
			}
		}
	}

	if runConfig.Runtime.DryRun {
		plog.Info("[DRY RUN] Initialization complete. No changes made.", "config", absConfigPath)
		return nil
	}

	if err := config.Generate(runConfig, absConfigPath, true); err != nil {
		return fmt.Errorf("failed to generate config file: %w", err)
	}
	plog.Info(buildinfo.Name+" configuration written.", "config", absConfigPath)
	return nil
}

// PromptForConfirmation prompts the user for a yes/no response.
func PromptForConfirmation(prompt string, defaultYes bool) bool {
	suffix := "[y/N]"
	if defaultYes {
		suffix = "[Y/n]"
	}
	fmt.Printf("%s %s: ", prompt, suffix)

	var response string
	_, _ = fmt.Scanln(&response)
	response = strings.ToLower(strings.TrimSpace(response))

	if response == "" {
		return defaultYes
	}
	return response == "y" || response == "yes"
}
