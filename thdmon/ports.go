package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/itohio/gothd/pkg/link"
)

func newPortsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ports",
		Short: "List serial ports and the one selected automatically",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ports, err := link.Ports()
			if err != nil {
				return err
			}
			return printPorts(cmd.OutOrStdout(), ports)
		},
	}
}

func printPorts(out io.Writer, ports []link.PortInfo) error {
	if len(ports) == 0 {
		fmt.Fprintln(out, "no serial ports found")
		return nil
	}
	for _, p := range ports {
		usb := ""
		if p.IsUSB {
			usb = fmt.Sprintf("  usb %s:%s", p.VID, p.PID)
		}
		fmt.Fprintf(out, "%-20s %s%s\n", p.Name, p.Description, usb)
	}

	selected, err := link.SelectPort(ports)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "auto: %s\n", selected)
	return nil
}
