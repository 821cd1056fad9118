package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"labportal/internal/notify"
	"labportal/pkg/config"
)

// notifysink receives webhook events locally, checks their signature and prints them.
func main() {
	var (
		addr   = flag.String("addr", ":9099", "listen address")
		secret = flag.String("secret", "", "webhook secret (defaults to NOTIFY_WEBHOOK_SECRET)")
	)
	flag.Parse()

	if *secret == "" {
		*secret = config.Load().Notify.WebhookSecret
	}
	if *secret == "" {
		fmt.Fprintln(os.Stderr, "missing -secret (or NOTIFY_WEBHOOK_SECRET in env/.env)")
		os.Exit(2)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
		if err != nil {
			http.Error(w, "read body", http.StatusBadRequest)
			return
		}
		if !notify.Verify(body, r.Header.Get(notify.SignatureHeader), *secret) {
			fmt.Fprintln(os.Stderr, "rejected event with bad signature")
			http.Error(w, "bad signature", http.StatusUnauthorized)
			return
		}
		var ev notify.Event
		if err := json.Unmarshal(body, &ev); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		fmt.Printf("%s %s %s %s -> %s by %s to %v\n",
			ev.Timestamp.Format(time.RFC3339), ev.RequestType, ev.RequestID, ev.FromState, ev.ToState, ev.ActorID, ev.Recipients)
		w.WriteHeader(http.StatusNoContent)
	})

	srv := &http.Server{Addr: *addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	fmt.Printf("notify sink listening on %s\n", *addr)
	if err := srv.ListenAndServe(); err != nil {
		fmt.Fprintf(os.Stderr, "serve: %v\n", err)
		os.Exit(1)
	}
}
