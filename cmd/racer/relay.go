package main

import (
	"fmt"
	"log"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/kshaa/racer/internal/relay"
)

// newRelayCmd runs the relay server: user registration, lobby admission
// and authenticated message forwarding. It's the operational counterpart
// that connect-game dials into, run as its own mode of this binary.
func newRelayCmd() *cobra.Command {
	var (
		addr     string
		dropRate float64
	)

	cmd := &cobra.Command{
		Use:   "relay",
		Short: "run the relay server that brokers rooms between players",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRelay(addr, dropRate)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8080", "address to listen on")
	cmd.Flags().Float64Var(&dropRate, "drop-rate", 0, "fraction of forwarded messages to drop, for fault injection (0-1)")

	return cmd
}

func runRelay(addr string, dropRate float64) error {
	if dropRate < 0 || dropRate >= 1 {
		return fmt.Errorf("relay: --drop-rate must be in [0, 1)")
	}

	server := relay.NewServer(dropRate)
	server.Router.Handle("/metrics", relay.MetricsHandler())

	log.Printf("[INFO] relay: listening on %s (drop-rate=%.3f)", addr, dropRate)
	return http.ListenAndServe(addr, server.Router)
}
