package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/jonboulle/clockwork"

	"github.com/paulschiretz/pgl-mirror/pkg/buildinfo"
	"github.com/paulschiretz/pgl-mirror/pkg/config"
	"github.com/paulschiretz/pgl-mirror/pkg/engine"
	"github.com/paulschiretz/pgl-mirror/pkg/flagparse"
	"github.com/paulschiretz/pgl-mirror/pkg/plog"
)

// RunMirror handles the 'mirror' and 'once' commands.
func RunMirror(ctx context.Context, command flagparse.Command, flagMap map[string]interface{}) error {
	runConfig, err := loadRunConfig(flagMap)
	if err != nil {
		return err
	}
	runConfig.Runtime.Once = command == flagparse.Once

	// CRITICAL: Validate the config for the run
	if err := runConfig.Validate(); err != nil {
		return err
	}

	// Set the global log level based on the final configuration.
	plog.SetLevel(plog.LevelFromString(runConfig.LogLevel))
	runConfig.LogSummary()

	runner := engine.NewRunner(runConfig, clockwork.NewRealClock())
	err = runner.Run(ctx)
	if errors.Is(err, context.Canceled) {
		plog.Info(buildinfo.Name + " stopped.")
		return nil
	}
	if err != nil {
		return err // The error will be logged with full details by main()
	}
	if runConfig.Runtime.Once {
		plog.Info(buildinfo.Name + " finished successfully.")
	}
	return nil
}

// loadRunConfig reads the optional config file and overlays the flags.
func loadRunConfig(flagMap map[string]interface{}) (config.Config, error) {
	configPath, _ := flagMap["config"].(string)
	loadedConfig, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("failed to load configuration: %w", err)
	}
	return config.MergeConfigWithFlags(loadedConfig, flagMap), nil
}
