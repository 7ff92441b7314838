package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var durationCmd = &cobra.Command{
	Use:   "duration PATH",
	Short: "Print the length of a video in seconds",
	Long: `Probe PATH with ffprobe and print its duration in seconds.

0 is printed when the duration cannot be determined.`,
	Example: `  screenrecorder duration ~/Videos/recording-2024-03-09T14-05-07.webm`,
	Args:    cobra.ExactArgs(1),
	RunE:    runDuration,
}

func init() {
	rootCmd.AddCommand(durationCmd)
}

func runDuration(cmd *cobra.Command, args []string) error {
	d := newClipper().Duration(cmd.Context(), args[0])
	fmt.Println(strconv.FormatFloat(d, 'f', -1, 64))
	return nil
}
