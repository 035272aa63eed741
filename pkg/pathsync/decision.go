package pathsync

import (
	"fmt"

	"github.com/paulschiretz/pgl-mirror/pkg/util"
)

// Decision is the outcome of comparing one source entry with its replica counterpart.
type Decision int

const (
	// Missing means the replica has no entry of that name.
	Missing Decision = iota
	// DirectoryDescend means both sides are directories and the walk continues inside.
	DirectoryDescend
	// ContentMismatch means the replica file differs in size or MD5 digest.
	ContentMismatch
	// InSync means the replica file is byte-identical to the source file.
	InSync
)

var decisionToString = map[Decision]string{
	Missing:          "missing",
	DirectoryDescend: "directory",
	ContentMismatch:  "content_mismatch",
	InSync:           "in_sync",
}
var stringToDecision = map[string]Decision{}

func init() {
	stringToDecision = util.InvertMap(decisionToString)
}

// String returns the string representation of a Decision.
func (d Decision) String() string {
	if str, ok := decisionToString[d]; ok {
		return str
	}
	return fmt.Sprintf("unknown_decision(%d)", d)
}

// ParseDecision parses a string and returns the corresponding Decision.
func ParseDecision(s string) (Decision, error) {
	if d, ok := stringToDecision[s]; ok {
		return d, nil
	}
	return 0, fmt.Errorf("invalid decision: %q", s)
}
