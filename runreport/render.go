package runreport

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/goware/prefixer"
	wordwrap "github.com/mitchellh/go-wordwrap"
)

var (
	statusApplied   = color.New(color.FgGreen).Sprint("APPLIED")
	statusFailed    = color.New(color.FgRed).Sprint("FAILED")
	statusConflict  = color.New(color.FgYellow).Sprint("CONFLICT")
	statusCollision = color.New(color.FgYellow).Sprint("COLLISION")
)

// Render writes a per-action human-readable rendering of the report to
// w: one status line per applied action, then one wrapped, indented
// block per failure, then one line per unresolved conflict file, then
// one line per CREATE that landed on a path collision.
func (r *Report) Render(w io.Writer) {
	for _, a := range r.Applied {
		fmt.Fprintf(w, "%s  %s  %s\n", statusApplied, a.Kind, a.DestPath)
	}
	for _, f := range r.Failed {
		fmt.Fprintf(w, "%s  %s  %s\n", statusFailed, f.Action.Kind, f.Action.DestPath)
		wrapped := wordwrap.WrapString(f.Err.Error(), 75)
		reader := prefixer.New(strings.NewReader(wrapped), "    ")
		detail, _ := io.ReadAll(reader)
		fmt.Fprintln(w, string(detail))
	}
	for _, path := range r.Conflicts {
		fmt.Fprintf(w, "%s  %s\n", statusConflict, path)
	}
	for _, c := range r.Collisions {
		fmt.Fprintf(w, "%s  %s\n", statusCollision, c)
	}
}
