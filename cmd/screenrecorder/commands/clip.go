package commands

import (
	"fmt"

	"github.com/bryanchriswhite/ScreenRecorder/internal/clip"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var clipCmd = &cobra.Command{
	Use:   "clip INPUT START END",
	Short: "Trim a recording without re-encoding",
	Long: `Copy the span between START and END of INPUT to <name>_clip<ext> beside it.

Timestamps are SS, M:SS, MM:SS or H:MM:SS; the seconds field may carry a
fraction. Streams are copied, so cuts land on the nearest keyframe.`,
	Example: `  # Keep 0:10 to 0:40
  screenrecorder clip ~/Videos/recording-2024-03-09T14-05-07.webm 0:10 0:40

  # Use a specific ffmpeg
  screenrecorder clip --ffmpeg /opt/ffmpeg/bin/ffmpeg in.webm 5 1:00`,
	Args: cobra.ExactArgs(3),
	RunE: runClip,
}

func init() {
	rootCmd.AddCommand(clipCmd)
}

func newClipper() *clip.Clipper {
	return clip.NewClipper(viper.GetString("ffmpeg"), viper.GetString("ffprobe"))
}

func runClip(cmd *cobra.Command, args []string) error {
	out, err := newClipper().Clip(cmd.Context(), clip.Request{
		InputPath: args[0],
		StartTime: args[1],
		EndTime:   args[2],
	})
	if err != nil {
		return err
	}
	fmt.Println(out)
	return nil
}
