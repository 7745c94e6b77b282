// Command token mints a participant token for the tracker agent, signed
// with the authority's JWT_SECRET.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"movetracker/internal/auth"
	"movetracker/internal/config"
)

func main() {
	if err := run(os.Args[1:], config.Load(), os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string, cfg config.Config, out io.Writer) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	participantID := fs.String("participant", "", "participant id to embed in the token")
	ttl := fs.Duration("ttl", auth.DefaultTokenTTL, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *participantID == "" {
		return errors.New("-participant is required")
	}

	token, err := auth.NewIssuer(cfg.JWTSecret).Issue(*participantID, *ttl)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, token)
	return nil
}
