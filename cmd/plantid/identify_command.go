package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-plantid/pkg/camera"
	"github.com/teslashibe/go-plantid/pkg/plant"
)

func newIdentifyCommand(ctx *commandContext) *cobra.Command {
	var useCamera bool
	var facing string
	var warmup time.Duration
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "identify [image|-]",
		Short: "Identify a plant from an image file, stdin or a local camera",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if !useCamera && len(args) == 0 {
				return fmt.Errorf("an image path, \"-\" or --camera is required")
			}

			logger := ctx.clientLogger()
			app, err := newApplication(cfg, nil, logger)
			if err != nil {
				return err
			}
			defer app.shutdown()

			runCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			if useCamera {
				if err := captureStill(runCtx, app, facing, warmup); err != nil {
					return err
				}
			} else {
				data, err := readImage(cmd.InOrStdin(), args[0])
				if err != nil {
					return err
				}
				if _, err := app.studio.Upload(data); err != nil {
					return err
				}
			}

			rec, err := app.studio.Identify(runCtx)
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), rec)
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderRecord(rec))
			return nil
		},
	}

	cmd.Flags().BoolVar(&useCamera, "camera", false, "Capture a still from a local camera")
	cmd.Flags().StringVar(&facing, "facing", "", "Camera facing: front or rear (default from config)")
	cmd.Flags().DurationVar(&warmup, "warmup", 500*time.Millisecond, "Delay before capturing, for exposure to settle")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the record as JSON")
	return cmd
}

func readImage(stdin io.Reader, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(path)
}

// captureStill opens the camera, waits for warmup and captures one frame,
// retrying while the device has not produced a frame yet.
func captureStill(ctx context.Context, app *application, facing string, warmup time.Duration) error {
	var f camera.Facing
	if facing != "" {
		parsed, err := camera.ParseFacing(facing)
		if err != nil {
			return err
		}
		f = parsed
	}

	st, err := app.studio.OpenCamera(ctx, f)
	if err != nil {
		return err
	}
	app.logger.Info("camera opened", "device", st.Device().Label, "facing", st.Facing())

	select {
	case <-time.After(warmup):
	case <-ctx.Done():
		return ctx.Err()
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		_, err := app.studio.Capture(ctx)
		if err == nil {
			return nil
		}
		if !errors.Is(err, camera.ErrFrameUnavailable) || time.Now().After(deadline) {
			return err
		}
		time.Sleep(100 * time.Millisecond)
	}
}

func renderRecord(rec *plant.Record) string {
	rows := [][]string{
		{"Name", rec.Name},
		{"Scientific name", rec.ScientificName},
		{"Family", rec.Family},
		{"Description", rec.Description},
		{"Care tips", rec.CareTips},
	}
	return renderTable([]string{"Field", "Value"}, rows, nil)
}
