// Package monitor serves live debugging pages for a track finder run: the
// tsweb debug index, tailsql over the result store, and cycle statistics.
package monitor

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/tailscale/tailsql/server/tailsql"
	"tailscale.com/tsweb"

	"github.com/banshee-data/trackfinder/internal/tracking/pipeline"
	"github.com/banshee-data/trackfinder/internal/tracking/report"
)

// ResultsFunc returns the cycle results processed so far.
type ResultsFunc func() []pipeline.Result

// TableCount is the row count of one result table.
type TableCount struct {
	Name string `json:"name"`
	Rows int64  `json:"rows"`
}

// AttachDebugRoutes mounts the debug handlers under /debug/ on mux. db may be
// nil when no result store is open; the SQL routes are then omitted.
// Access follows tsweb: loopback and tailnet clients only.
func AttachDebugRoutes(mux *http.ServeMux, db *sql.DB, results ResultsFunc) error {
	if results == nil {
		results = func() []pipeline.Result { return nil }
	}
	debug := tsweb.Debugger(mux)

	if db != nil {
		tsql, err := tailsql.NewServer(tailsql.Options{
			RoutePrefix: "/debug/tailsql/",
		})
		if err != nil {
			return fmt.Errorf("failed to create tailsql server: %w", err)
		}
		tsql.SetDB("sqlite://trackfinder.db", db, &tailsql.DBOptions{
			Label: "Track finder DB",
		})
		debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())

		debug.Handle("db-stats", "Row counts of the result tables", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			counts, err := tableCounts(r, db)
			if err != nil {
				http.Error(w, fmt.Sprintf("Failed to get table counts: %v", err), http.StatusInternalServerError)
				return
			}
			writeJSON(w, counts)
		}))
	}

	debug.Handle("stats", "Per-event cycle statistics", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var buf bytes.Buffer
		if err := report.WriteStatsPage(&buf, results()); err != nil {
			http.Error(w, fmt.Sprintf("render error: %v", err), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(buf.Bytes())
	}))

	debug.Handle("summary", "Totals over all processed events (JSON)", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var s pipeline.Summary
		for _, res := range results() {
			s.Add(res)
		}
		writeJSON(w, s)
	}))
	return nil
}

func tableCounts(r *http.Request, db *sql.DB) ([]TableCount, error) {
	rows, err := db.QueryContext(r.Context(),
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name LIKE 'tf\_%' ESCAPE '\' ORDER BY name`)
	if err != nil {
		return nil, err
	}
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return nil, err
		}
		names = append(names, name)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	counts := make([]TableCount, 0, len(names))
	for _, name := range names {
		tc := TableCount{Name: name}
		// name comes from sqlite_master and matches tf_%.
		if err := db.QueryRowContext(r.Context(), fmt.Sprintf(`SELECT COUNT(*) FROM %q`, name)).Scan(&tc.Rows); err != nil {
			return nil, err
		}
		counts = append(counts, tc)
	}
	return counts, nil
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, fmt.Sprintf("Failed to encode response: %v", err), http.StatusInternalServerError)
	}
}
