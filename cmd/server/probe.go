package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"fcgiserver/fastcgi"
)

var probeAddr string

func newProbeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fcgi-probe",
		Short: "Query a FastCGI application server's FCGI_GET_VALUES",
		RunE:  runProbe,
	}
	cmd.Flags().StringVar(&probeAddr, "addr", "", "FastCGI upstream address (host:port); defaults to the configured one")

	return cmd
}

func runProbe(cmd *cobra.Command, args []string) error {
	addr := probeAddr
	if addr == "" {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		addr = cfg.FastCGIAddress()
	}

	values, err := fastcgi.Probe(addr)
	if err != nil {
		return fmt.Errorf("probing %s: %w", addr, err)
	}

	for name, value := range values {
		fmt.Printf("%s = %s\n", name, value)
	}

	return nil
}
