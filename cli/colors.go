package cli

import (
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

// SupportsColor disables colored output when stdout is not a terminal,
// when the caller asked for plain output, or when NO_COLOR is set.
func SupportsColor(noColorHint bool) {
	if _, plain := os.LookupEnv("NO_COLOR"); plain {
		color.NoColor = true
		return
	}
	fd := os.Stdout.Fd()
	color.NoColor = noColorHint || (!isatty.IsTerminal(fd) && !isatty.IsCygwinTerminal(fd))
}
