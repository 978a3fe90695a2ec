// Package orchestrator wires every other package into a running
// co-server: it binds interfaces, builds the session table and reaper,
// loads the config matcher, starts the readiness poller's dispatch loop,
// and optionally serves TFTP and /metrics.
//
// Grounded on the teacher's dhcp.go Listener.Serve/ListenAndServe, which
// spawns one goroutine per socket and waits on them together; this
// package generalizes that to N interfaces x 2 sockets x 1 poller plus
// the reaper, TFTP, and metrics-HTTP side loops, coordinated with
// golang.org/x/sync/errgroup the way the teacher's own go.mod already
// depends on golang.org/x/sync (here for session.Table's semaphore) —
// errgroup is the same module's sibling package for exactly this
// all-or-nothing goroutine shutdown shape.
package orchestrator

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-logr/logr"
	"golang.org/x/sync/errgroup"

	"github.com/poxide/dhcp/config"
	"github.com/poxide/dhcp/dhcpstate"
	"github.com/poxide/dhcp/ioready"
	"github.com/poxide/dhcp/match"
	"github.com/poxide/dhcp/metrics"
	"github.com/poxide/dhcp/netboot"
	"github.com/poxide/dhcp/netif"
	"github.com/poxide/dhcp/poxerr"
	"github.com/poxide/dhcp/session"
	"github.com/poxide/dhcp/tftpsrv"
	"github.com/poxide/dhcp/wire"
)

// Config is everything the orchestrator needs to start a run.
type Config struct {
	Ifaces          []string
	ConfPath        string
	Overrides       config.Overrides
	MaxSessions     int
	ReapInterval    time.Duration
	SessionTTL      time.Duration
	TFTPServerDir   string
	DiagnosticsAddr string
	EnableRPiOpts   bool
	EnableOpt60     bool
	EnableArchFallback bool
	Log             logr.Logger
}

// Orchestrator owns every long-lived resource a run needs and the
// goroutines driving them.
type Orchestrator struct {
	cfg      Config
	bindings []*netif.Binding
	table    *session.Table
	loader   *config.Loader
	machine  *dhcpstate.Machine
	metrics  *metrics.Registry
	poller   *ioready.Poller
	tftp     *tftpsrv.Server
}

// New builds an Orchestrator: loads the config file, binds every configured
// interface, and wires the session table, matcher, metrics registry, and (if
// the loaded config names a tftp_server_dir) the TFTP server. The reaper is
// built by Run. No goroutine is started until Run is called.
func New(cfg Config) (*Orchestrator, error) {
	loader, err := config.Load(cfg.ConfPath, cfg.Overrides, cfg.Log)
	if err != nil {
		return nil, err
	}

	// loader.File().Ifaces is the YAML list, or cfg.Overrides.Ifaces where
	// the YAML document names none.
	bindings, err := netif.BindAll(loader.File().Ifaces)
	if err != nil {
		return nil, err
	}

	reg := metrics.New()

	// loader.File().MaxSessions already reflects cfg.MaxSessions merged in
	// by config.Overrides.Apply wherever the YAML document left the field
	// unset, so it (not cfg.MaxSessions directly) is the value to build
	// the table from.
	table := session.NewTable(
		session.WithMaxSessions(loader.File().MaxSessions),
		session.WithLogger(cfg.Log),
		session.WithLockTimeoutHook(reg.ObserveLockTimeout),
	)

	machine := dhcpstate.New(table, func() *match.Matcher { return loader.Matcher() },
		dhcpstate.WithRecorder(reg),
		dhcpstate.WithLogger(cfg.Log),
		dhcpstate.WithAugmenter(netboot.Augmenter{
			EnableRPiOpts:      cfg.EnableRPiOpts,
			EnableOpt60Mirror:  cfg.EnableOpt60,
			EnableArchFallback: cfg.EnableArchFallback,
			Log:                cfg.Log,
		}),
	)

	var tftp *tftpsrv.Server
	if dir := loader.File().TFTPServerDir; dir != "" {
		tftp = tftpsrv.New(dir, cfg.Log)
	}

	regs, err := pollerRegistrations(bindings)
	if err != nil {
		closeAll(bindings)
		return nil, err
	}
	poller, err := ioready.New(regs)
	if err != nil {
		closeAll(bindings)
		return nil, err
	}

	return &Orchestrator{
		cfg:      cfg,
		bindings: bindings,
		table:    table,
		loader:   loader,
		machine:  machine,
		metrics:  reg,
		poller:   poller,
		tftp:     tftp,
	}, nil
}

// Metrics exposes the metrics registry. Run itself mounts its Handler at
// /metrics when a diagnostics address is configured.
func (o *Orchestrator) Metrics() *metrics.Registry { return o.metrics }

func pollerRegistrations(bindings []*netif.Binding) ([]ioready.Register, error) {
	var regs []ioready.Register
	for _, b := range bindings {
		serverFD, err := fdOf(b.Server)
		if err != nil {
			return nil, err
		}
		clientFD, err := fdOf(b.Client)
		if err != nil {
			return nil, err
		}
		regs = append(regs,
			ioready.Register{Key: ioready.Key{IfIndex: b.IfIndex, Role: ioready.RoleServer}, FD: serverFD},
			ioready.Register{Key: ioready.Key{IfIndex: b.IfIndex, Role: ioready.RoleClient}, FD: clientFD},
		)
	}
	return regs, nil
}

func fdOf(conn *net.UDPConn) (int, error) {
	sc, err := conn.SyscallConn()
	if err != nil {
		return 0, fmt.Errorf("%w: syscall conn: %v", poxerr.ErrBind, err)
	}
	var fd int
	if err := sc.Control(func(f uintptr) { fd = int(f) }); err != nil {
		return 0, fmt.Errorf("%w: control: %v", poxerr.ErrBind, err)
	}
	return fd, nil
}

func (o *Orchestrator) bindingByIfIndex(ifIndex int) *netif.Binding {
	for _, b := range o.bindings {
		if b.IfIndex == ifIndex {
			return b
		}
	}
	return nil
}

// Run starts every side loop (config hot-reload, reaper, TFTP, metrics
// HTTP, readiness dispatch) and blocks until ctx is canceled or any loop
// returns a non-nil error, at which point every other loop is stopped and
// every bound socket is closed.
func (o *Orchestrator) Run(ctx context.Context) error {
	defer closeAll(o.bindings)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	// Closing the poller is what unblocks dispatchLoop's Wait once ctx is done.
	g.Go(func() error {
		<-ctx.Done()
		o.poller.Close()
		return nil
	})

	g.Go(func() error { return o.loader.Run(ctx) })

	reaper := session.NewReaper(o.table,
		session.WithReapInterval(o.cfg.ReapInterval),
		session.WithSessionTTL(o.cfg.SessionTTL),
		session.WithReaperLogger(o.cfg.Log),
		session.WithEvictionHook(o.metrics.ObserveSessionEvicted),
	)
	g.Go(func() error { return reaper.Run(ctx) })

	g.Go(func() error {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				if n, err := o.table.Len(ctx); err == nil {
					o.metrics.SetSessionsActive(n)
				}
			}
		}
	})

	if o.tftp != nil {
		var conns []*net.UDPConn
		for _, b := range o.bindings {
			conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: b.IPv4, Port: tftpPort})
			if err != nil {
				for _, c := range conns {
					c.Close()
				}
				return fmt.Errorf("%w: tftp listen on %q: %v", poxerr.ErrBind, b.IfName, err)
			}
			conns = append(conns, conn)
		}
		g.Go(func() error {
			<-ctx.Done()
			o.tftp.Shutdown()
			return nil
		})
		for _, conn := range conns {
			conn := conn
			g.Go(func() error { return o.tftp.Serve(conn) })
		}
	}

	if o.cfg.DiagnosticsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", o.metrics.Handler())
		srv := &http.Server{Addr: o.cfg.DiagnosticsAddr, Handler: mux}
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
		g.Go(func() error {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return fmt.Errorf("%w: diagnostics server: %v", poxerr.ErrBind, err)
			}
			return nil
		})
	}

	g.Go(func() error { return o.dispatchLoop(ctx) })

	return g.Wait()
}

// dispatchLoop is the poller's consumer: each ready key is resolved back
// to a Binding and its message is decoded, handled, and (if admitted)
// replied to, one goroutine per event so a slow Matcher lookup for one
// client never stalls delivery to another.
func (o *Orchestrator) dispatchLoop(ctx context.Context) error {
	for {
		keys, err := o.poller.Wait(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			o.cfg.Log.V(1).Info("poller wait error", "error", err.Error())
			continue
		}
		for _, k := range keys {
			k := k
			go o.dispatchOne(ctx, k)
		}
	}
}

func (o *Orchestrator) dispatchOne(ctx context.Context, k ioready.Key) {
	b := o.bindingByIfIndex(k.IfIndex)
	if b == nil {
		return
	}
	conn := b.Server
	if k.Role == ioready.RoleClient {
		conn = b.Client
	}

	buf := make([]byte, wire.MaxDatagram)
	n, _, err := conn.ReadFromUDP(buf)
	if err != nil {
		return
	}
	pkt, err := wire.Decode(buf[:n])
	if err != nil {
		o.cfg.Log.V(2).Info("dropping undecodable datagram", "iface", b.IfName, "error", err.Error())
		return
	}

	if err := o.machine.Handle(ctx, b.Server, b.IPv4, pkt); err != nil {
		o.cfg.Log.V(1).Info("handle error", "iface", b.IfName, "error", err.Error())
	}
}

const tftpPort = 69

func closeAll(bindings []*netif.Binding) {
	for _, b := range bindings {
		b.Close()
	}
}
