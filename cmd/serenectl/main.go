// Command serenectl is an operator tool for a serene deployment.
//
//	serenectl token -user UID [-email E] [-ttl 24h]
//	serenectl vapid
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dukerupert/serene/internal/auth"
	"github.com/dukerupert/serene/internal/config"
	"github.com/dukerupert/serene/internal/push"
)

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Getenv); err != nil {
		fmt.Fprintln(os.Stderr, "serenectl:", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer, getenv func(string) string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: serenectl <token|vapid> [flags]")
	}

	switch args[0] {
	case "token":
		return runToken(args[1:], out, getenv)
	case "vapid":
		return runVAPID(out)
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func runToken(args []string, out io.Writer, getenv func(string) string) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	userID := fs.String("user", "", "user id (token subject)")
	email := fs.String("email", "", "email claim")
	ttl := fs.Duration("ttl", 24*time.Hour, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *userID == "" {
		return fmt.Errorf("token: -user is required")
	}

	cfg, err := config.FromEnv(getenv)
	if err != nil {
		return err
	}

	tok, err := auth.NewTokens(cfg.JWTSecret, cfg.TokenIssuer).Issue(*userID, *email, *ttl)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, tok)
	return nil
}

func runVAPID(out io.Writer) error {
	pub, priv, err := push.GenerateVAPIDKeys()
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "SERENE_VAPID_PUBLIC_KEY=%s\nSERENE_VAPID_PRIVATE_KEY=%s\n", pub, priv)
	return nil
}
