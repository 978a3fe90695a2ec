// Command poxide runs the PXE-augmenting DHCP co-server: it listens
// alongside an authoritative DHCP server, augments its OFFER/ACK messages
// with netboot options, and optionally serves the referenced files over
// TFTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/peterbourgon/ff/v3"
	"github.com/peterbourgon/ff/v3/ffcli"

	"github.com/poxide/dhcp/config"
	"github.com/poxide/dhcp/guard"
	"github.com/poxide/dhcp/orchestrator"
)

type command struct {
	logLevel   string
	v          verbosity
	confPath   string
	tftpIPv4   string
	bootFile   string
	tftpDir    string
	ifaces     stringList
	maxSess    int
	diagAddr   string
	pidFile    string
	enableRPi  bool
	enableOpt6 bool
	enableArch bool
}

func main() {
	exitCode := 0
	defer func() { os.Exit(exitCode) }()

	ctx, done := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGHUP, syscall.SIGTERM)
	defer done()

	if err := execute(ctx, os.Args[1:]); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "{\"err\":\"%v\"}\n", err)
		exitCode = 1
	}
}

func commandDefaults() *command {
	return &command{
		logLevel:   "info",
		confPath:   "poxide.yaml",
		maxSess:    0,
		pidFile:    defaultPIDFilePath(),
		enableRPi:  true,
		enableOpt6: true,
		enableArch: true,
	}
}

func execute(ctx context.Context, args []string) error {
	c := commandDefaults()
	fs := flag.NewFlagSet("poxide", flag.ExitOnError)
	c.RegisterFlags(fs)

	cmd := &ffcli.Command{
		Name:       "poxide",
		ShortUsage: "Run the PXE-augmenting DHCP co-server",
		FlagSet:    fs,
		Options:    []ff.Option{ff.WithEnvVarPrefix("PO")},
		Exec: func(ctx context.Context, _ []string) error {
			return c.Run(ctx)
		},
	}
	if err := cmd.Parse(args); err != nil {
		return err
	}
	return cmd.Run(ctx)
}

func (c *command) RegisterFlags(f *flag.FlagSet) {
	f.StringVar(&c.logLevel, "log-level", c.logLevel, "log level: error, warn, info, debug, or trace")
	f.Var(&c.v, "v", "increase log verbosity one step per occurrence, stacking on top of -log-level")
	f.StringVar(&c.confPath, "conf-path", c.confPath, "path to the YAML configuration file")
	f.StringVar(&c.tftpIPv4, "tftp-server-ipv4", "", "default boot_server_ipv4, used when the config omits one")
	f.StringVar(&c.bootFile, "boot-file", "", "default boot_file, used when the config omits one")
	f.StringVar(&c.tftpDir, "tftp-server-dir-path", "", "directory to serve over TFTP, used when the config omits tftp_server_dir; if neither names one, the embedded TFTP server is disabled")
	f.Var(&c.ifaces, "ifaces", "comma-separated list of interface names to bind, used when the config omits ifaces; if neither names any, every non-loopback IPv4 interface is bound")
	f.IntVar(&c.maxSess, "max-sessions", 0, "maximum in-flight sessions; 0 uses the session table's built-in default")
	f.StringVar(&c.diagAddr, "diagnostics-addr", "", "address to serve /metrics on; empty disables the diagnostics server")
	f.StringVar(&c.pidFile, "pid-file", c.pidFile, "path to the process guard's PID file")
	f.BoolVar(&c.enableRPi, "enable-rpi-opts", true, "add Raspberry Pi vendor option-43 suboptions to replies")
	f.BoolVar(&c.enableOpt6, "enable-opt60-mirror", true, "mirror PXEClient/HTTPClient classification onto option 60 in replies")
	f.BoolVar(&c.enableArch, "enable-arch-fallback", true, "fall back to an architecture-appropriate boot file when the config doesn't name one")
}

func (c *command) overrides() config.Overrides {
	o := config.Overrides{Ifaces: []string(c.ifaces)}
	if c.bootFile != "" {
		o.BootFile = &c.bootFile
	}
	if c.tftpIPv4 != "" {
		o.BootServerIPv4 = &c.tftpIPv4
	}
	if c.tftpDir != "" {
		o.TFTPServerDir = &c.tftpDir
	}
	if c.maxSess > 0 {
		o.MaxSessions = &c.maxSess
	}
	return o
}

func (c *command) Run(ctx context.Context) error {
	log := defaultLogger(c.v.level(c.logLevel)).WithName("poxide")

	g, err := guard.Acquire(c.pidFile)
	if err != nil {
		return err
	}
	defer g.Release()

	o, err := orchestrator.New(orchestrator.Config{
		Ifaces:          []string(c.ifaces),
		ConfPath:        c.confPath,
		Overrides:       c.overrides(),
		MaxSessions:     c.maxSess,
		ReapInterval:    30 * time.Second,
		SessionTTL:      60 * time.Second,
		TFTPServerDir:   c.tftpDir,
		DiagnosticsAddr: c.diagAddr,
		EnableRPiOpts:      c.enableRPi,
		EnableOpt60:        c.enableOpt6,
		EnableArchFallback: c.enableArch,
		Log:                log,
	})
	if err != nil {
		return err
	}

	log.Info("starting poxide", "ifaces", []string(c.ifaces), "confPath", c.confPath)
	err = o.Run(ctx)
	log.Info("shutting down poxide")
	return err
}

func defaultPIDFilePath() string {
	return filepath.Join(os.TempDir(), "poxide.pid")
}
