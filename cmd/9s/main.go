package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/kardianos/service"
	_ "go.uber.org/automaxprocs"

	"github.com/kaazoo/p9fs/cli"
	"github.com/kaazoo/p9fs/ninep"
)

// fileConfig is the optional YAML config; flags override it and
// environment variables fill in for missing file entries.
type fileConfig struct {
	Addr       string `yaml:"addr" env:"NINEP_ADDR"`
	Root       string `yaml:"root" env:"NINEP_ROOT"`
	MaxMsgSize uint   `yaml:"max_message_size" env:"NINEP_MSIZE"`
	Trace      bool   `yaml:"trace" env:"NINEP_TRACE"`
	LogErrors  bool   `yaml:"log_errors" env:"NINEP_LOG_ERRORS"`
}

func main() {
	var (
		cfg        cli.ServerConfig
		configPath string
		noColor    bool
		runService bool
	)

	cfg.SetFlags(nil)
	flag.StringVar(&configPath, "config", "", "Optional YAML config file; flags take precedence")
	flag.BoolVar(&noColor, "no-color", false, "Disable colored output")
	flag.BoolVar(&runService, "service", false, "Run under the system service manager")

	flag.Usage = func() {
		w := flag.CommandLine.Output()
		fmt.Fprintf(w, "9s - export a directory tree over 9P2000.L\n")
		fmt.Fprintf(w, "Usage: %s [OPTIONS]\n\n", os.Args[0])
		fmt.Fprintf(w, "OPTIONS:\n")
		flag.PrintDefaults()
	}

	flag.Parse()
	cli.SupportsColor(noColor)

	if configPath != "" {
		var fc fileConfig
		if err := cleanenv.ReadConfig(configPath, &fc); err != nil {
			fmt.Fprintf(os.Stderr, "Error: cannot read config %s: %s\n", configPath, err)
			os.Exit(1)
		}
		applyFileConfig(&cfg, &fc)
	}

	if cfg.MaxMsgSize < uint(ninep.MIN_MESSAGE_SIZE) {
		fmt.Fprintf(os.Stderr, "Error: msize must be at least %d\n", ninep.MIN_MESSAGE_SIZE)
		os.Exit(1)
	}

	if runService {
		cli.ServiceMain(&service.Config{
			Name:        "9s",
			DisplayName: "9P directory export server",
			Description: "Exports a local directory tree over the 9P2000.L protocol",
		}, &cfg)
		return
	}

	if err := cfg.ListenAndServe(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

// applyFileConfig fills config-file values into any flag left at its
// default.
func applyFileConfig(cfg *cli.ServerConfig, fc *fileConfig) {
	set := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })

	if !set["addr"] && fc.Addr != "" {
		cfg.Addr = fc.Addr
	}
	if !set["root"] && fc.Root != "" {
		cfg.Root = fc.Root
	}
	if !set["msize"] && fc.MaxMsgSize != 0 {
		cfg.MaxMsgSize = fc.MaxMsgSize
	}
	if !set["srv-trace"] && fc.Trace {
		cfg.PrintTraceMessages = true
	}
	if !set["srv-err"] && fc.LogErrors {
		cfg.PrintErrorMessages = true
	}
}
