// Standalone mock status server for trying the CLI.
//
// Usage:
//
//	go run ./example/cmd/mockserver
//
// Then in another terminal:
//
//	go run ./cmd/apimonitor run -c example/config.yaml
//	curl -X POST localhost:9999/status/fail
package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync/atomic"

	"github.com/gorilla/mux"
)

var bodies = map[string]string{
	"success": "<r>success</r>",
	"fail":    "<r>fail</r><message>Upstream dependency down</message>",
	"invalid": "<r>maybe</r>",
}

func main() {
	fmt.Println("Mock status server starting on :9999")
	fmt.Println("GET /status serves the current result")
	fmt.Println("POST /status/{success|fail|invalid} changes it")
	fmt.Println("Press Ctrl+C to stop")
	fmt.Println()

	var current atomic.Value
	current.Store("success")

	r := mux.NewRouter()
	r.HandleFunc("/status", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = fmt.Fprint(w, bodies[current.Load().(string)])
	}).Methods(http.MethodGet)

	r.HandleFunc("/status/{result}", func(w http.ResponseWriter, req *http.Request) {
		name := mux.Vars(req)["result"]
		if _, ok := bodies[name]; !ok {
			http.Error(w, "unknown result "+name, http.StatusBadRequest)
			return
		}
		old := current.Swap(name)
		slog.Info("status change", "from", old, "to", name)
		w.WriteHeader(http.StatusNoContent)
	}).Methods(http.MethodPost)

	if err := http.ListenAndServe(":9999", r); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}
