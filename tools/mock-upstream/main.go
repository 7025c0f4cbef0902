// Command mock-upstream serves fake TCM and Tableau endpoints for local
// development, so the server and CLI can run a full activity pipeline without
// real credentials. Point both the TCM URI and the Tableau server URL at this
// process.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

func main() {
	addr := flag.String("addr", ":9000", "Listen address")
	users := flag.Int("users", 20, "Number of fake users")
	metrics := flag.Int("metrics", 5, "Number of fake metrics")
	events := flag.Int("events", 500, "Number of fake subscription events")
	files := flag.Int("files", 4, "Number of log files the events spread across")
	flag.Parse()

	u := newUpstream(*users, *metrics, *events, *files)

	log.Printf("mock upstream listening on %s (%d users, %d metrics, %d events in %d files)",
		*addr, *users, *metrics, *events, *files)
	log.Fatal(http.ListenAndServe(*addr, u.router()))
}

type upstream struct {
	userIDs   []string
	userNames map[string]string
	metricIDs []string
	logFiles  map[string]string
}

func newUpstream(users, metrics, events, files int) *upstream {
	u := &upstream{
		userNames: make(map[string]string),
		logFiles:  make(map[string]string),
	}

	for i := 0; i < users; i++ {
		id := uuid.NewString()
		u.userIDs = append(u.userIDs, id)
		u.userNames[id] = fmt.Sprintf("user%03d", i)
	}
	for i := 0; i < metrics; i++ {
		u.metricIDs = append(u.metricIDs, uuid.NewString())
	}

	// Spread random follow/unfollow events across the files, biased toward
	// follows so the final state is non-trivial.
	builders := make([]strings.Builder, files)
	base := time.Now().Add(-72 * time.Hour)
	for i := 0; i < events; i++ {
		op := "FOLLOW_OPERATION_FOLLOW"
		if rand.Intn(4) == 0 {
			op = "FOLLOW_OPERATION_UNFOLLOW"
		}
		line := fmt.Sprintf(
			`{"eventType":"metric_subscription_change","actorUserLuid":"%s","scopedMetricId":"%s","subscriptionOperation":"%s","timestamp":"%s"}`,
			u.userIDs[rand.Intn(len(u.userIDs))],
			u.metricIDs[rand.Intn(len(u.metricIDs))],
			op,
			base.Add(time.Duration(i)*time.Minute).UTC().Format(time.RFC3339),
		)
		b := &builders[i%files]
		b.WriteString(line)
		b.WriteByte('\n')
	}
	for i := range builders {
		u.logFiles[fmt.Sprintf("f%d.ndjson", i)] = builders[i].String()
	}

	return u
}

func (u *upstream) router() http.Handler {
	mux := http.NewServeMux()

	// TCM control plane.
	mux.HandleFunc("POST /api/v1/pat/login", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]string{
			"sessionToken": "mock-session",
			"tenantId":     "mock-tenant",
		})
	})
	mux.HandleFunc("GET /api/v1/tenants/{tenant}/sites/{site}/activitylog", func(w http.ResponseWriter, r *http.Request) {
		var files []map[string]string
		for name := range u.logFiles {
			files = append(files, map[string]string{
				"path": fmt.Sprintf("%s/eventType=metric_subscription_change/%s", r.PathValue("site"), name),
			})
		}
		writeJSON(w, map[string]any{"files": files})
	})
	mux.HandleFunc("POST /api/v1/tenants/{tenant}/sites/{site}/activitylog", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Files []string `json:"files"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		var resolved []map[string]string
		for _, path := range body.Files {
			name := path[strings.LastIndex(path, "/")+1:]
			resolved = append(resolved, map[string]string{
				"path": path,
				"url":  "http://" + r.Host + "/blob/" + name,
			})
		}
		writeJSON(w, map[string]any{"files": resolved})
	})
	mux.HandleFunc("GET /blob/{name}", func(w http.ResponseWriter, r *http.Request) {
		content, ok := u.logFiles[r.PathValue("name")]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(content))
	})

	// Tableau REST plane.
	mux.HandleFunc("POST /api/{version}/auth/signin", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"credentials": map[string]any{
				"token": "mock-token",
				"site":  map[string]string{"id": "mock-site"},
				"user":  map[string]string{"id": u.userIDs[0]},
			},
		})
	})
	mux.HandleFunc("GET /api/{version}/sites/{site}/users", func(w http.ResponseWriter, r *http.Request) {
		var list []map[string]string
		for _, id := range u.userIDs {
			list = append(list, map[string]string{"id": id, "name": u.userNames[id]})
		}
		writeJSON(w, map[string]any{
			"users":      map[string]any{"user": list},
			"pagination": map[string]string{"totalAvailable": fmt.Sprint(len(list))},
		})
	})

	// Pulse plane.
	mux.HandleFunc("GET /api/-/pulse/definitions", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"definitions": []any{}})
	})
	mux.HandleFunc("GET /api/-/pulse/metrics/{metricID}", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("metricID")
		short := id
		if len(short) > 8 {
			short = short[:8]
		}
		writeJSON(w, map[string]any{
			"metric": map[string]any{
				"metadata":      map[string]string{"name": "Metric " + short},
				"definition_id": "def-" + id,
			},
		})
	})

	return mux
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
