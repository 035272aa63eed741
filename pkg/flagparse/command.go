package flagparse

import (
	"fmt"

	"github.com/paulschiretz/pgl-mirror/pkg/util"
)

// Command defines the command to execute.
type Command int

const (
	None Command = iota
	Mirror
	Once
	Init
	Version
)

var commandToString = map[Command]string{
	None:    "none",
	Mirror:  "mirror",
	Once:    "once",
	Init:    "init",
	Version: "version",
}

var stringToCommand map[string]Command

func init() {
	stringToCommand = util.InvertMap(commandToString)
}

func (c Command) String() string {
	if str, ok := commandToString[c]; ok {
		return str
	}
	return fmt.Sprintf("unknown_command(%d)", c)
}

// ParseCommand maps a command name to a Command. "none" is not accepted from the command line.
func ParseCommand(s string) (Command, error) {
	if command, ok := stringToCommand[s]; ok && command != None {
		return command, nil
	}
	return None, fmt.Errorf("invalid command: %q. Must be 'mirror', 'once', 'init' or 'version'", s)
}
