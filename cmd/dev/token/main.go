package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"labportal/pkg/config"
	"labportal/pkg/token"
)

func main() {
	var (
		userID = flag.String("user", "", "user id to put in the token subject")
		role   = flag.String("role", "", "optional role claim (informational only)")
		ttl    = flag.Duration("ttl", 12*time.Hour, "token lifetime")
		secret = flag.String("secret", "", "signing secret (defaults to AUTH_JWT_SECRET)")
	)
	flag.Parse()

	if *userID == "" {
		fmt.Fprintln(os.Stderr, "missing -user")
		os.Exit(2)
	}

	cfg := config.Load()
	if *secret == "" {
		*secret = cfg.Auth.JWTSecret
	}
	if *secret == "" {
		fmt.Fprintln(os.Stderr, "missing -secret (or AUTH_JWT_SECRET in env/.env)")
		os.Exit(2)
	}

	s, err := token.Issue(*userID, *role, cfg.Auth.Issuer, *secret, *ttl, time.Now())
	if err != nil {
		fmt.Fprintf(os.Stderr, "issue: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(s)
}
