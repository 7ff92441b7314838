package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/bryanchriswhite/ScreenRecorder/internal/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "screenrecorder",
		Short: "ScreenRecorder - record screens, windows and areas to WebM",
		Long: `ScreenRecorder captures a whole screen, a single window or a free-form
area of the desktop and saves it as a WebM file.

Features:
  • List capturable screens and windows with thumbnails
  • Drag-select an area across every connected monitor
  • Pause and resume without splitting the file
  • Trim saved recordings without re-encoding
  • X11 capture through ffmpeg, Wayland capture through the ScreenCast portal
  • REST API and live status stream for a web UI`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger.Init(viper.GetString("log_level"), viper.GetBool("pretty_log"))
		},
		SilenceUsage: true,
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "settings file (default is $HOME/.config/screenrecorder/settings.json)")
	rootCmd.PersistentFlags().Int("port", 8080, "server port")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("pretty-log", false, "human readable log output")
	rootCmd.PersistentFlags().String("ffmpeg", "ffmpeg", "ffmpeg binary")
	rootCmd.PersistentFlags().String("ffprobe", "ffprobe", "ffprobe binary")

	// Bind flags to viper
	viper.BindPFlag("port", rootCmd.PersistentFlags().Lookup("port"))
	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("pretty_log", rootCmd.PersistentFlags().Lookup("pretty-log"))
	viper.BindPFlag("ffmpeg", rootCmd.PersistentFlags().Lookup("ffmpeg"))
	viper.BindPFlag("ffprobe", rootCmd.PersistentFlags().Lookup("ffprobe"))
}

// initConfig lets SCREENRECORDER_PORT, SCREENRECORDER_LOG_LEVEL and friends
// override the flag defaults.
func initConfig() {
	viper.SetEnvPrefix("screenrecorder")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// GetConfigFile returns the settings file path
func GetConfigFile() string {
	return cfgFile
}
