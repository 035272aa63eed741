package cmd

import (
	"fmt"
	"io"
	"runtime"

	"github.com/paulschiretz/pgl-mirror/pkg/buildinfo"
)

// RunVersion writes the application version and the platform it was built for.
func RunVersion(w io.Writer) error {
	_, err := fmt.Fprintf(w, "%s %s (%s, %s/%s)\n", buildinfo.Name, buildinfo.Version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
	return err
}
