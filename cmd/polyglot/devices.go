package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/MrWong99/polyglot/pkg/audio/portaudio"
)

func newDevicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List audio input devices",
		Long:  "Lists every input device. Use a substring of the name as audio.device.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			devices, err := portaudio.ListInputDevices()
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "\tNAME\tCHANNELS\tSAMPLE RATE")
			for _, d := range devices {
				marker := ""
				if d.IsDefault {
					marker = "*"
				}
				fmt.Fprintf(tw, "%s\t%s\t%d\t%.0f\n", marker, d.Name, d.MaxInputChannels, d.DefaultSampleRate)
			}
			return tw.Flush()
		},
	}
}
