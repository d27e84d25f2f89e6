// Command trackfind runs the cellular-automaton track finder over an event
// file and exports the found tracks.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"maps"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strings"
	"syscall"
	"time"

	"google.golang.org/grpc"

	"github.com/banshee-data/trackfinder/internal/config"
	"github.com/banshee-data/trackfinder/internal/monitoring"
	"github.com/banshee-data/trackfinder/internal/tracking/monitor"
	"github.com/banshee-data/trackfinder/internal/tracking/pipeline"
	"github.com/banshee-data/trackfinder/internal/tracking/report"
	"github.com/banshee-data/trackfinder/internal/tracking/storage/sqlite"
	"github.com/banshee-data/trackfinder/internal/tracking/stream"
	"github.com/banshee-data/trackfinder/internal/version"
)

type options struct {
	configPath  string
	eventsPath  string
	dbPath      string
	label       string
	plotsDir    string
	reportPath  string
	serve       string
	grpcAddr    string
	workers     int
	verbose     bool
	showVersion bool
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var o options
	fs := flag.NewFlagSet("trackfind", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.configPath, "config", config.DefaultConfigPath, "tuning config (JSON)")
	fs.StringVar(&o.eventsPath, "events", "", "event file (JSON)")
	fs.StringVar(&o.dbPath, "db", "", "sqlite database to store the run in")
	fs.StringVar(&o.label, "label", "", "run label stored with -db (default: event file name)")
	fs.StringVar(&o.plotsDir, "plots", "", "directory for per-event track plots (PNG)")
	fs.StringVar(&o.reportPath, "report", "", "write an HTML statistics page to this file")
	fs.StringVar(&o.serve, "serve", "", "serve debug pages on this address after processing, e.g. localhost:8082")
	fs.StringVar(&o.grpcAddr, "grpc", "", "stream results to gRPC clients on this address, e.g. localhost:50051")
	fs.IntVar(&o.workers, "workers", 0, "concurrent cycles (0 = GOMAXPROCS)")
	fs.BoolVar(&o.verbose, "verbose", false, "log per-cycle and per-pass diagnostics")
	fs.BoolVar(&o.showVersion, "version", false, "print version and exit")
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	if o.showVersion {
		return o, nil
	}
	if o.eventsPath == "" {
		return o, errors.New("-events is required")
	}
	if o.workers < 0 {
		return o, fmt.Errorf("-workers must be >= 0, got %d", o.workers)
	}
	if o.label == "" {
		o.label = strings.TrimSuffix(filepath.Base(o.eventsPath), filepath.Ext(o.eventsPath))
	}
	return o, nil
}

func main() {
	o, err := parseFlags(os.Args[1:], os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		log.Fatalf("trackfind: %v", err)
	}
	if o.showVersion {
		fmt.Println(version.String())
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, o, os.Stdout, os.Stderr); err != nil {
		stop()
		log.Fatalf("trackfind: %v", err)
	}
}

func run(ctx context.Context, o options, stdout, stderr io.Writer) error {
	if o.verbose {
		pipeline.SetLogWriters(stderr, stderr, stderr)
		monitoring.SetLogger(log.New(stderr, "", log.LstdFlags).Printf)
	} else {
		pipeline.SetLogWriters(stderr, nil, nil)
		monitoring.SetLogger(nil)
	}

	tc, err := config.LoadTuningConfig(o.configPath)
	if err != nil {
		return err
	}
	cfg, passes, err := pipeline.ConfigFromTuning(tc)
	if err != nil {
		return err
	}
	finder, err := pipeline.New(cfg, nil, passes...)
	if err != nil {
		return err
	}
	events, err := loadEvents(o.eventsPath)
	if err != nil {
		return err
	}

	var rs *resultStream
	if o.grpcAddr != "" {
		rs, err = startStream(o.grpcAddr)
		if err != nil {
			return err
		}
		defer rs.stop()
	}

	start := time.Now()
	results, err := finder.ProcessEvents(ctx, events, o.workers)
	if err != nil {
		return fmt.Errorf("processing interrupted: %w", err)
	}
	elapsed := time.Since(start)

	var store *sqlite.Store
	if o.dbPath != "" {
		store, err = sqlite.Open(o.dbPath)
		if err != nil {
			return fmt.Errorf("open db: %w", err)
		}
		defer store.Close()
		if err := store.MigrateUp(); err != nil {
			return err
		}
		cfgJSON, err := json.Marshal(tc)
		if err != nil {
			return err
		}
		runID, err := store.BeginRun(ctx, o.label, cfgJSON)
		if err != nil {
			return err
		}
		if err := pipeline.ExportAll(ctx, store.Exporter(runID), results); err != nil {
			return fmt.Errorf("export: %w", err)
		}
		fmt.Fprintf(stdout, "stored run %s in %s\n", runID, o.dbPath)
	}

	if o.plotsDir != "" {
		if err := pipeline.ExportAll(ctx, report.PlotExporter{Dir: o.plotsDir}, results); err != nil {
			return fmt.Errorf("plots: %w", err)
		}
	}
	if o.reportPath != "" {
		if err := writeReport(o.reportPath, results); err != nil {
			return err
		}
	}
	if rs != nil {
		if err := pipeline.ExportAll(ctx, rs.pub, results); err != nil {
			return fmt.Errorf("stream: %w", err)
		}
	}

	printSummary(stdout, results, elapsed)

	if o.serve != "" {
		var db *sql.DB
		if store != nil {
			db = store.DB()
		}
		return serve(ctx, o.serve, db, results)
	}
	if rs != nil {
		<-ctx.Done()
	}
	return nil
}

// resultStream is the gRPC side of -grpc.
type resultStream struct {
	pub    *stream.Publisher
	server *grpc.Server
	addr   net.Addr
}

// startStream serves the result stream on addr.
func startStream(addr string) (*resultStream, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen: %w", err)
	}
	rs := &resultStream{
		pub:  stream.NewPublisher(),
		addr: lis.Addr(),
	}
	rs.server = stream.NewServer(rs.pub)
	go func() {
		if err := rs.server.Serve(lis); err != nil {
			log.Printf("gRPC server error: %v", err)
		}
	}()
	log.Printf("streaming results on %s", rs.addr)
	return rs, nil
}

// stop ends open streams after they drain and shuts the server down.
func (rs *resultStream) stop() {
	rs.pub.Close()
	rs.server.GracefulStop()
}

func writeReport(path string, results []pipeline.Result) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("report: %w", err)
	}
	if err := report.WriteStatsPage(f, results); err != nil {
		f.Close()
		return fmt.Errorf("report: %w", err)
	}
	return f.Close()
}

func printSummary(w io.Writer, results []pipeline.Result, elapsed time.Duration) {
	var s pipeline.Summary
	for _, r := range results {
		s.Add(r)
	}
	t := s.Totals
	fmt.Fprintf(w, "events: %d  tracks: %d  aborted: %d  elapsed: %s\n",
		s.Events, t.Tracks, t.Aborts, elapsed.Round(time.Millisecond))
	fmt.Fprintf(w, "hits=%d out_of_range=%d segments=%d links=%d rounds=%d candidates=%d survived=%d overlapping=%d cleaned=%d\n",
		t.Hits, t.OutOfRange, t.Segments, t.Links, t.Rounds, t.Candidates, t.Survived, t.Overlapping, t.Cleaned)
	if len(t.Rejected) > 0 {
		parts := make([]string, 0, len(t.Rejected))
		for _, k := range slices.Sorted(maps.Keys(t.Rejected)) {
			parts = append(parts, fmt.Sprintf("%s=%d", k, t.Rejected[k]))
		}
		fmt.Fprintf(w, "rejected: %s\n", strings.Join(parts, " "))
	}
	for _, r := range results {
		if r.Aborted {
			fmt.Fprintf(w, "event %d aborted: %s\n", r.EventID, r.AbortReason)
		}
	}
}

func serve(ctx context.Context, addr string, db *sql.DB, results []pipeline.Result) error {
	mux := http.NewServeMux()
	if err := monitor.AttachDebugRoutes(mux, db, func() []pipeline.Result { return results }); err != nil {
		return err
	}
	server := &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	errc := make(chan error, 1)
	go func() {
		errc <- server.ListenAndServe()
	}()
	log.Printf("debug pages on http://%s/debug/", addr)

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
		return server.Close()
	}
	return nil
}
