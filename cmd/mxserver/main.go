// Command mxserver is the experiment-control middleware process (§1/§6):
// it brings up the handshake, RPC, and event listeners, the RDB store,
// run control, and the webstatus surface, then waits for SIGINT/SIGTERM,
// stops the statistics bridge and snapshots the store before exiting.
// Listeners and open connections are not closed or drained first.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"mulex/config"
	"mulex/eventbus"
	"mulex/handshake"
	"mulex/internal/idalloc"
	"mulex/internal/logging"
	"mulex/internal/netutil"
	"mulex/internal/permission"
	"mulex/rdb"
	"mulex/rpcserver"
	"mulex/runcontrol"
	"mulex/webstatus"
)

func main() {
	confPath := flag.String("config", "mxserver.yaml", "path to the server configuration file")
	permPath := flag.String("permpath", "", "directory holding the permission whitelist file")
	permFile := flag.String("permfile", "permissions.yaml", "permission whitelist file name")
	flag.Parse()

	cfg, err := config.LoadConfig(*confPath)
	if err != nil {
		logging.Warnf("main: using default configuration, err: %s", err)
		cfg = config.Default()
	}

	logging.InitializeLogger(
		logging.WithPath(cfg.LogPath),
		logging.WithExpireDay(cfg.LogExpireDay),
		logging.WithLogLevel(cfg.LogLevel),
	)
	logging.Info("main: mxserver starting")

	perms := permission.New()
	if *permPath != "" {
		if err := perms.Load(*permPath, *permFile); err != nil {
			logging.Warnf("main: permission whitelist disabled, err: %s", err)
		}
	}

	store := rdb.NewStore(cfg.Rdb.ArenaSize)
	if _, statErr := os.Stat(cfg.Rdb.SnapshotPath); statErr == nil {
		if err := store.Load(cfg.Rdb.SnapshotPath); err != nil {
			logging.ErrIf(err)
		}
	}

	ids := idalloc.New()

	hsLn, err := netutil.Listen(cfg.HandshakePort)
	if err != nil {
		logging.Errorf("main: handshake listen failed, err: %s", err)
		os.Exit(1)
	}
	hs := handshake.New(hsLn, ids)
	go hs.Serve()

	rpcLn, err := netutil.Listen(cfg.RPCPort)
	if err != nil {
		logging.Errorf("main: rpc listen failed, err: %s", err)
		os.Exit(1)
	}
	rpc := rpcserver.New(rpcLn, perms, ids)

	evLn, err := netutil.Listen(cfg.EventPort)
	if err != nil {
		logging.Errorf("main: event listen failed, err: %s", err)
		os.Exit(1)
	}
	bus := eventbus.New(evLn)

	store.SetEmitter(bus.Emit)
	store.SetRegistrar(bus.Register)
	rdb.RegisterProcedures(store)
	eventbus.RegisterProcedures(bus)

	ctrl := runcontrol.New(store)
	runcontrol.RegisterProcedures(ctrl)

	rpc.OnDisconnect(func(clientId uint64) {
		logging.Debugf("main: client %d disconnected", clientId)
	})

	go rpc.Serve()
	go bus.Serve()

	statsStop := make(chan struct{})
	go bus.RunStatsBridge(bus, store, statsStop)

	webEngine := webstatus.New(webstatus.Dependencies{Store: store, Run: ctrl})
	go func() {
		if err := webEngine.Run(fmt.Sprintf(":%d", cfg.WebPort)); err != nil {
			logging.Warnf("main: webstatus exited, err: %s", err)
		}
	}()

	logging.Infof("main: listening rpc=%d event=%d handshake=%d web=%d",
		cfg.RPCPort, cfg.EventPort, cfg.HandshakePort, cfg.WebPort)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logging.Info("main: shutting down")
	close(statsStop)
	if err := store.Save(cfg.Rdb.SnapshotPath); err != nil {
		logging.ErrIf(err)
	}
	logging.Info("main: snapshot written, exiting")
}
