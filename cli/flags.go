package cli

import (
	"flag"
	"time"
)

type Flags interface {
	StringVar(*string, string, string, string)
	BoolVar(*bool, string, bool, string)
	DurationVar(*time.Duration, string, time.Duration, string)
	UintVar(*uint, string, uint, string)
}

// StdFlags binds to the process-wide flag set.
type StdFlags struct{}

func (f *StdFlags) StringVar(p *string, name string, value string, usage string) {
	flag.StringVar(p, name, value, usage)
}

func (f *StdFlags) BoolVar(p *bool, name string, value bool, usage string) {
	flag.BoolVar(p, name, value, usage)
}

func (f *StdFlags) DurationVar(p *time.Duration, name string, value time.Duration, usage string) {
	flag.DurationVar(p, name, value, usage)
}

func (f *StdFlags) UintVar(p *uint, name string, value uint, usage string) {
	flag.UintVar(p, name, value, usage)
}
