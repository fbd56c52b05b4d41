package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/kardianos/service"

	"github.com/kaazoo/p9fs/ninep"
)

// ServerConfig collects everything needed to stand up a directory-export
// server from flags or a config file.
type ServerConfig struct {
	Addr string
	Root string

	MaxMsgSize uint

	PrintTraceMessages bool
	PrintErrorMessages bool

	PrintPrefix string

	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	Stdout io.Writer
	Stderr io.Writer
}

func (c *ServerConfig) SetFlags(f Flags) {
	if f == nil {
		f = &StdFlags{}
	}
	f.StringVar(&c.Addr, "addr", "localhost:5640", "The address for the server to listen on; a path selects a unix socket")
	f.StringVar(&c.Root, "root", ".", "The directory tree to export")
	f.UintVar(&c.MaxMsgSize, "msize", uint(ninep.DEFAULT_MAX_MESSAGE_SIZE), "Maximum message size in bytes")
	f.DurationVar(&c.ReadTimeout, "rtimeout", 0, "Timeout for reading client requests (0 disables)")
	f.DurationVar(&c.WriteTimeout, "wtimeout", 0, "Timeout for writing replies (0 disables)")
	f.BoolVar(&c.PrintTraceMessages, "srv-trace", false, "Print a trace of server requests to stdout")
	f.BoolVar(&c.PrintErrorMessages, "srv-err", false, "Print server errors to stderr")
}

func (c *ServerConfig) CreateServer() *ninep.NetServer {
	var traceLogger, errLogger ninep.Logger

	if c.Stdout == nil {
		c.Stdout = os.Stdout
	}
	if c.Stderr == nil {
		c.Stderr = os.Stderr
	}

	if c.PrintTraceMessages {
		traceLogger = log.New(c.Stdout, c.PrintPrefix, log.LstdFlags)
	}
	if c.PrintErrorMessages {
		errLogger = log.New(c.Stderr, c.PrintPrefix, log.LstdFlags)
	}

	return &ninep.NetServer{
		Root:         c.Root,
		MaxMsgSize:   uint32(c.MaxMsgSize),
		ReadTimeout:  c.ReadTimeout,
		WriteTimeout: c.WriteTimeout,
		ErrorLog:     errLogger,
		TraceLog:     traceLogger,
	}
}

func (c *ServerConfig) ListenAndServe() error {
	return c.CreateServer().ListenAndServe(c.Addr)
}

// BasicServerMain wires flags to a foreground server. The daemon's main
// calls this unless it runs under a service manager.
func BasicServerMain() {
	var cfg ServerConfig
	cfg.SetFlags(nil)
	flag.Parse()

	if err := cfg.ListenAndServe(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

// ServiceMain runs an already-configured server under the platform
// service manager (systemd, launchd, SCM) with logs routed to the
// manager.
func ServiceMain(svcCfg *service.Config, cfg *ServerConfig) {
	prg := &srv{}
	s, err := service.New(prg, svcCfg)
	if err != nil {
		log.Fatal(err)
	}
	prg.logger, err = s.Logger(nil)
	if err != nil {
		log.Fatal(err)
	}

	cfg.Stdout = &proxyInfoLogger{prg.logger}
	cfg.Stderr = &proxyErrorLogger{prg.logger}
	prg.main = srvMain(cfg)

	if err := s.Run(); err != nil {
		prg.logger.Error(err)
	}
}

type proxyInfoLogger struct{ logger service.Logger }

func (l *proxyInfoLogger) Write(p []byte) (int, error) {
	err := l.logger.Info(string(p))
	return len(p), err
}

type proxyErrorLogger struct{ logger service.Logger }

func (l *proxyErrorLogger) Write(p []byte) (int, error) {
	err := l.logger.Error(string(p))
	return len(p), err
}

type srv struct {
	main   func(exit chan struct{})
	logger service.Logger
	exit   chan struct{}
}

func (p *srv) Start(s service.Service) error {
	p.exit = make(chan struct{})
	p.logger.Infof("Starting")
	go p.main(p.exit)
	return nil
}

func (p *srv) Stop(s service.Service) error {
	p.logger.Infof("Stopping")
	close(p.exit)
	return nil
}

func srvMain(cfg *ServerConfig) (start func(exit chan struct{})) {
	return func(exit chan struct{}) {
		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			<-exit
			cancel()
		}()
		go func() {
			defer cancel()
			if err := cfg.ListenAndServe(); err != nil {
				fmt.Fprintf(cfg.Stderr, "Error: %s\n", err)
			}
		}()
		<-ctx.Done()
	}
}
