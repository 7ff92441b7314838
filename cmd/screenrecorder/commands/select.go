package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/bryanchriswhite/ScreenRecorder/internal/display"
	"github.com/bryanchriswhite/ScreenRecorder/internal/window"
	"github.com/spf13/cobra"
)

var errSelectionCancelled = errors.New("selection cancelled")

var selectCmd = &cobra.Command{
	Use:   "select",
	Short: "Drag-select an area of the desktop",
	Long: `Open the selection overlay over every connected display and print the
dragged rectangle in virtual-desktop coordinates.

Press Escape or the right mouse button to cancel.`,
	Example: `  # Print the selection as WxH+X+Y
  screenrecorder select

  # Print the selection as JSON
  screenrecorder select --format json`,
	RunE: runSelect,
}

var selectFormat string

func init() {
	rootCmd.AddCommand(selectCmd)

	selectCmd.Flags().StringVarP(&selectFormat, "format", "f", "text", "output format (text or json)")
}

func runSelect(cmd *cobra.Command, args []string) error {
	desk := openDesktop()
	defer desk.Close()

	area, err := selectArea(cmd.Context(), desk.displays)
	if err != nil {
		return err
	}

	if selectFormat == "json" {
		return json.NewEncoder(os.Stdout).Encode(area)
	}
	fmt.Println(area)
	return nil
}

// selectArea runs the overlay without a control window and waits for the
// user to drag or cancel.
func selectArea(ctx context.Context, displays display.Provider) (display.Rect, error) {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	coord := window.NewCoordinator(displays, window.NewHeadlessControl(), window.X11Overlays{})
	defer coord.Close()

	events := coord.Subscribe()
	if _, err := coord.OpenAreaSelector(ctx, ""); err != nil {
		return display.Rect{}, fmt.Errorf("failed to open selector: %w", err)
	}

	select {
	case <-ctx.Done():
		coord.CancelSelection()
		return display.Rect{}, errSelectionCancelled
	case ev, ok := <-events:
		if !ok || ev.Kind != window.EventSelected || ev.Selection == nil {
			return display.Rect{}, errSelectionCancelled
		}
		return *ev.Selection, nil
	}
}
