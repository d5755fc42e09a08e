package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-plantid/pkg/camera"
)

func newDevicesCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List local capture devices",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger := ctx.clientLogger()
			host := camera.NewV4LHost(deviceFacings(cfg.Camera), logger)

			devices, err := host.Devices(cmd.Context())
			if err != nil {
				return err
			}
			permission, _ := host.QueryPermission(cmd.Context())

			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), map[string]any{
					"permission": permission,
					"devices":    devices,
				})
			}
			out := cmd.OutOrStdout()
			if len(devices) == 0 {
				fmt.Fprintln(out, "No capture devices found.")
				return nil
			}
			fmt.Fprintln(out, renderDevices(devices))
			fmt.Fprintf(out, "Permission: %s\n", permission)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print devices as JSON")
	return cmd
}

func renderDevices(devices []camera.DeviceInfo) string {
	rows := make([][]string, 0, len(devices))
	for _, d := range devices {
		rows = append(rows, []string{d.ID, d.Label, d.Path, string(d.Facing)})
	}
	return renderTable([]string{"ID", "Label", "Path", "Facing"}, rows, nil)
}
