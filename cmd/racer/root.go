package main

import (
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "racer",
		Short: "racer is a peer-to-peer rollback-netcode driving game",
		Long: "racer runs either a local, network-free demonstration match or a " +
			"relay-connected match against remote peers, plus the relay server " +
			"itself that brokers those matches.",
		SilenceUsage: true,
	}

	root.AddCommand(newDemoGameCmd())
	root.AddCommand(newConnectGameCmd())
	root.AddCommand(newRelayCmd())

	return root
}
