package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/dipwatch/dipwatch/internal/scheduler"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the monitoring engine with the cron scheduler",
		RunE:  runServe,
	}
	cmd.Flags().String("universe", "universe.yaml", "Path to sector universe file")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfgPath, _ := cmd.Flags().GetString("config")
	universePath, _ := cmd.Flags().GetString("universe")
	logLevel, _ := cmd.Flags().GetString("log-level")

	a, err := buildApp(ctx, cfgPath, universePath, logLevel, nil)
	if err != nil {
		return err
	}

	loc, err := a.cfg.Location()
	if err != nil {
		return err
	}

	sched := scheduler.New(a.pipeline, a.clk, loc, scheduler.MarketHours{
		OpenMinute:  a.cfg.Exchange.OpenMinute,
		CloseMinute: a.cfg.Exchange.CloseMinute,
	}, scheduler.Config{
		AlertCycleMinutes:  a.cfg.Scheduler.AlertCycleMinutes,
		SectorCycleMinutes: a.cfg.Scheduler.SectorCycleMinutes,
		AlertCycleAlways:   a.cfg.Scheduler.AlertCycleAlways,
	})
	if err := sched.Start(ctx); err != nil {
		return err
	}
	defer sched.Stop()

	a.startQuoteStream(ctx)

	router := mux.NewRouter()
	router.Handle("/metrics", promhttp.Handler())
	router.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ok", "version": version})
	})
	router.HandleFunc("/sectors/{id}/state", a.sectorStateHandler)
	router.HandleFunc("/sectors/{id}/bundles", a.sectorBundlesHandler)
	router.HandleFunc("/symbols/{symbol}/quote", a.symbolQuoteHandler)

	srv := &http.Server{
		Addr:         a.cfg.HTTP.ListenAddr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("Shutdown signal received")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (a *app) sectorStateHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	record, ok := a.sectors.Record(id)
	if !ok {
		http.Error(w, "unknown sector", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(record)
}

func (a *app) sectorBundlesHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(a.emitter.History(id))
}

func (a *app) symbolQuoteHandler(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]
	quote, ok := a.quotes.LastQuote(symbol)
	if !ok {
		http.Error(w, "no quote for symbol", http.StatusNotFound)
		return
	}

	resp := map[string]interface{}{"quote": quote}
	if rsi, ok := a.quotes.StreamingRSI(symbol); ok {
		resp["streaming_rsi"] = rsi
	}
	if snap, ok := a.quotes.Snapshot(symbol); ok && snap.DipPct != nil {
		resp["dip_pct"] = *snap.DipPct
		resp["dip_class"] = snap.Class
		resp["new_high"] = snap.NewHigh
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}
