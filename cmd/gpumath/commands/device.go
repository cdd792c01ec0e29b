package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gogpu/gpumath"
	"github.com/gogpu/gpumath/device"
)

var deviceCmd = &cobra.Command{
	Use:   "device",
	Short: "Show the compute device gpumath would use",
	RunE:  runDevice,
}

func init() {
	rootCmd.AddCommand(deviceCmd)
}

func runDevice(cmd *cobra.Command, _ []string) error {
	ctx, err := device.New(cmd.Context(), cfg.DeviceOptions()...)
	if err != nil {
		return fmt.Errorf("acquiring device: %w", err)
	}
	defer ctx.Destroy()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "gpumath %s\n", gpumath.Version)
	fmt.Fprintf(out, "  adapter:      %s\n", ctx.AdapterName())
	fmt.Fprintf(out, "  label:        %s\n", ctx.Label())
	fmt.Fprintf(out, "  preference:   %s\n", cfg.Adapter)
	fmt.Fprintf(out, "  poll timeout: %s\n", cfg.PollTimeout)
	return nil
}
