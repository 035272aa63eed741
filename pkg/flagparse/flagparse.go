package flagparse

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/paulschiretz/pgl-mirror/pkg/buildinfo"
)

// cliFlags holds pointers to all possible command-line flags.
// Fields are pointers so we can distinguish between "not registered for this command" (nil)
// and "registered but not set by user" (non-nil pointer to zero value).
type cliFlags struct {
	// Global
	LogLevel *string
	DryRun   *bool

	// Shared: Mirror / Once / Init
	Config       *string
	Source       *string
	Replica      *string
	LogFile      *string
	FailFast     *bool
	RetryCount   *int
	RetryWait    *int
	BufferSizeKB *int
	ExcludeFiles *string
	ExcludeDirs  *string
	RequireMount *bool

	// Mirror / Init
	Interval *int

	// Init specific
	Force *bool
}

// positionalKeys are the flag map keys filled from bare arguments, in order:
// pgl-mirror <source> <replica> <log> [interval]
var positionalKeys = []string{"source", "replica", "log", "interval"}

func registerGlobalFlags(fs *flag.FlagSet, f *cliFlags) {
	f.LogLevel = fs.String("log-level", "info", "Set the logging level: 'debug', 'notice', 'info', 'warn', 'error'.")
	f.DryRun = fs.Bool("dry-run", false, "Show what would be copied without making any changes.")
}

func registerPathFlags(fs *flag.FlagSet, f *cliFlags) {
	f.Config = fs.String("config", "", "Path to a JSON configuration file.")
	f.Source = fs.String("source", "", "Source directory to mirror from.")
	f.Replica = fs.String("replica", "", "Replica directory to mirror into. Must already exist.")
	f.LogFile = fs.String("log", "", "Path of the append-only sync log. Created if missing.")
}

func registerSyncFlags(fs *flag.FlagSet, f *cliFlags) {
	f.FailFast = fs.Bool("fail-fast", false, "Abort a pass on the first entry that fails to sync.")
	f.RetryCount = fs.Int("retry-count", 0, "Number of retries for failed file copies.")
	f.RetryWait = fs.Int("retry-wait", 0, "Seconds to wait between copy retries.")
	f.BufferSizeKB = fs.Int("buffer-size-kb", 0, "Size of the I/O buffer in kilobytes for hashing and copying.")
	f.ExcludeFiles = fs.String("exclude-files", "", "Comma-separated list of case-insensitive file patterns to skip (supports ** globs).")
	f.RequireMount = fs.Bool("require-mount", false, "Refuse to run unless the replica is a mount point.")
	f.ExcludeDirs = fs.String("exclude-dirs", "", "Comma-separated list of case-insensitive directory patterns to skip (supports ** globs).")
}

func registerIntervalFlag(fs *flag.FlagSet, f *cliFlags) {
	f.Interval = fs.Int("interval", 60, "Seconds to wait between two passes.")
}

// Parse parses the provided arguments (usually os.Args[1:]) and returns the command and config map.
// A first argument that is neither a command nor a flag starts the implicit 'mirror' command,
// so "pgl-mirror <source> <replica> <log>" keeps working. A first argument that spells a
// command is always the command: a source directory named like one is passed as
// "./once" or with -source.
func Parse(args []string) (Command, map[string]interface{}, error) {
	if len(args) == 0 {
		fs := flag.NewFlagSet("main", flag.ContinueOnError)
		printTopLevelUsage(fs)
		return None, nil, nil
	}

	cmdStr := strings.ToLower(args[0])
	if cmdStr == "help" || cmdStr == "-h" || cmdStr == "-help" || cmdStr == "--help" {
		fs := flag.NewFlagSet("main", flag.ContinueOnError)
		printTopLevelUsage(fs)
		return None, nil, nil
	}

	command, err := ParseCommand(cmdStr)
	if err != nil {
		// Implicit mirror: flags or positional paths without a command word.
		command = Mirror
	} else {
		args = args[1:]
	}

	f := &cliFlags{}
	fs := flag.NewFlagSet(command.String(), flag.ContinueOnError)

	switch command {
	case Mirror:
		registerGlobalFlags(fs, f)
		registerPathFlags(fs, f)
		registerSyncFlags(fs, f)
		registerIntervalFlag(fs, f)
		fs.Usage = func() {
			printSubcommandUsage(command, "Mirror the source into the replica, repeating every interval until interrupted.", fs)
		}
	case Once:
		registerGlobalFlags(fs, f)
		registerPathFlags(fs, f)
		registerSyncFlags(fs, f)
		fs.Usage = func() {
			printSubcommandUsage(command, "Run a single mirror pass and exit.", fs)
		}
	case Init:
		registerGlobalFlags(fs, f)
		registerPathFlags(fs, f)
		registerSyncFlags(fs, f)
		registerIntervalFlag(fs, f)
		f.Force = fs.Bool("force", false, "Overwrite an existing configuration file.")
		fs.Usage = func() {
			printSubcommandUsage(command, "Write a configuration file with defaults merged with the given flags.", fs)
		}
	case Version:
		return command, nil, nil
	}

	if err := fs.Parse(args); err != nil {
		return command, nil, err
	}

	flagMap := flagsToMap(fs, f)
	if err := addPositionalArgs(flagMap, fs.Args(), f.Interval != nil); err != nil {
		return command, nil, err
	}
	return command, flagMap, nil
}

func flagsToMap(fs *flag.FlagSet, f *cliFlags) map[string]interface{} {
	// Create a map of the flags that were explicitly set by the user, along with their values.
	// This map is used to selectively override the base configuration.
	usedFlags := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { usedFlags[f.Name] = true })

	flagMap := make(map[string]any)

	addIfUsed(flagMap, usedFlags, "log-level", f.LogLevel)
	addIfUsed(flagMap, usedFlags, "dry-run", f.DryRun)

	addIfUsed(flagMap, usedFlags, "config", f.Config)
	addIfUsed(flagMap, usedFlags, "source", f.Source)
	addIfUsed(flagMap, usedFlags, "replica", f.Replica)
	addIfUsed(flagMap, usedFlags, "log", f.LogFile)
	addIfUsed(flagMap, usedFlags, "interval", f.Interval)
	addIfUsed(flagMap, usedFlags, "fail-fast", f.FailFast)
	addIfUsed(flagMap, usedFlags, "retry-count", f.RetryCount)
	addIfUsed(flagMap, usedFlags, "retry-wait", f.RetryWait)
	addIfUsed(flagMap, usedFlags, "buffer-size-kb", f.BufferSizeKB)
	addIfUsed(flagMap, usedFlags, "require-mount", f.RequireMount)
	addIfUsed(flagMap, usedFlags, "force", f.Force)

	addParsedIfUsed(flagMap, usedFlags, "exclude-files", f.ExcludeFiles, ParseExcludeList)
	addParsedIfUsed(flagMap, usedFlags, "exclude-dirs", f.ExcludeDirs, ParseExcludeList)

	return flagMap
}

// addPositionalArgs fills source, replica, log and interval from bare arguments.
// Keys already set by a flag are skipped, so "-source=once /replica /sync.log"
// assigns the bare arguments to replica and log.
func addPositionalArgs(flagMap map[string]interface{}, rest []string, acceptsInterval bool) error {
	var openKeys []string
	for _, key := range positionalKeys {
		if key == "interval" && !acceptsInterval {
			continue
		}
		if _, set := flagMap[key]; !set {
			openKeys = append(openKeys, key)
		}
	}
	if len(rest) > len(openKeys) {
		return fmt.Errorf("too many arguments: %q", rest[len(openKeys):])
	}

	for i, raw := range rest {
		key := openKeys[i]
		if key == "interval" {
			seconds, err := strconv.Atoi(raw)
			if err != nil {
				return fmt.Errorf("invalid interval %q: must be a whole number of seconds", raw)
			}
			flagMap[key] = seconds
			continue
		}
		flagMap[key] = raw
	}
	return nil
}

// addIfUsed adds the value of ptr to flagMap if ptr is not nil and the flag was set.
func addIfUsed[T any](flagMap map[string]interface{}, usedFlags map[string]bool, name string, ptr *T) {
	if ptr != nil && usedFlags[name] {
		flagMap[name] = *ptr
	}
}

// addParsedIfUsed adds the parsed value of ptr to flagMap if ptr is not nil and the flag was set.
func addParsedIfUsed(flagMap map[string]interface{}, usedFlags map[string]bool, name string, ptr *string, parser func(string) []string) {
	if ptr != nil && usedFlags[name] {
		flagMap[name] = parser(*ptr)
	}
}

// printTopLevelUsage prints the main help message.
func printTopLevelUsage(fs *flag.FlagSet) {
	execName := filepath.Base(os.Args[0])
	fmt.Fprintf(fs.Output(), "%s(%s) ", buildinfo.Name, buildinfo.Version)
	fmt.Fprintf(fs.Output(), "One-way periodic directory mirroring with an append-only sync log.\n\n")
	fmt.Fprintf(fs.Output(), "Usage: %s <command> [flags] [source replica log [interval]]\n\n", execName)
	fmt.Fprintf(fs.Output(), "Commands:\n")
	fmt.Fprintf(fs.Output(), "  mirror      Mirror repeatedly until interrupted (default)\n")
	fmt.Fprintf(fs.Output(), "  once        Run a single mirror pass\n")
	fmt.Fprintf(fs.Output(), "  init        Write a configuration file\n")
	fmt.Fprintf(fs.Output(), "  version     Print the application version\n")
	fmt.Fprintf(fs.Output(), "\nA source directory named like a command must be given as ./<name> or with -source.\n")
	fmt.Fprintf(fs.Output(), "Run '%s <command> -help' for more information on a command.\n", execName)
}

// printSubcommandUsage prints the help message for a specific subcommand.
func printSubcommandUsage(command Command, desc string, fs *flag.FlagSet) {
	execName := filepath.Base(os.Args[0])
	fmt.Fprintf(fs.Output(), "%s(%s) ", buildinfo.Name, buildinfo.Version)
	fmt.Fprintf(fs.Output(), "One-way periodic directory mirroring with an append-only sync log.\n\n")
	fmt.Fprintf(fs.Output(), "Usage of the %s command: %s %s [flags] [source replica log]\n\n", command, execName, command)
	fmt.Fprintf(fs.Output(), "%s\n\n", desc)
	fmt.Fprintf(fs.Output(), "Flags:\n")
	fs.PrintDefaults()
}

// ParseExcludeList parses a comma-separated list of file or directory patterns.
// It removes quotes, as they are only used for grouping items with spaces.
// It treats backslashes as literal characters for Windows path compatibility.
func ParseExcludeList(s string) []string {
	var list []string
	var current strings.Builder
	var quoteChar rune

	appendItem := func() {
		trimmed := strings.TrimSpace(current.String())
		if trimmed != "" {
			list = append(list, trimmed)
		}
		current.Reset()
	}

	for _, r := range s {
		switch {
		case r == '\'' || r == '"':
			if quoteChar == 0 {
				quoteChar = r
			} else if quoteChar == r {
				quoteChar = 0
			} else {
				// A different quote character inside a quoted section is literal.
				current.WriteRune(r)
			}
		case r == ',' && quoteChar == 0:
			appendItem()
		default:
			current.WriteRune(r)
		}
	}
	appendItem()
	return list
}
