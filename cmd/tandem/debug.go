package main

import (
	"expvar"
	"log/slog"
	"net"
	"net/http"
	"net/http/pprof"
	"sync/atomic"
)

// syncStatsProvider is set by the demo once its reconcilers exist, so
// /debug/vars can expose per-pane synchronization counters.
var syncStatsProvider atomic.Value // func() any

func publishSyncStats(fn func() any) {
	syncStatsProvider.Store(fn)
}

func setupDebugHandlers(addr string) error {
	expvar.Publish("tandem_sync", expvar.Func(func() any {
		fn, ok := syncStatsProvider.Load().(func() any)
		if !ok {
			return nil
		}
		return fn()
	}))

	m := http.NewServeMux()
	m.Handle("/debug/vars", expvar.Handler())
	m.Handle("/debug/pprof/", http.HandlerFunc(pprof.Index))
	m.Handle("/debug/pprof/cmdline", http.HandlerFunc(pprof.Cmdline))
	m.Handle("/debug/pprof/profile", http.HandlerFunc(pprof.Profile))
	m.Handle("/debug/pprof/symbol", http.HandlerFunc(pprof.Symbol))
	m.Handle("/debug/pprof/trace", http.HandlerFunc(pprof.Trace))
	m.Handle("/debug/pprof/heap", pprof.Handler("heap"))
	m.Handle("/debug/pprof/goroutine", pprof.Handler("goroutine"))

	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	slog.Info("debug handlers listening", "debugAddr", addr)
	go http.Serve(l, m) //nolint:errcheck
	return nil
}
