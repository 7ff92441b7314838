package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/bryanchriswhite/ScreenRecorder/internal/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage ScreenRecorder settings",
	Long:  `View and change the persisted recording settings.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current settings",
	Long:  `Display the current settings, with defaults filled in.`,
	Example: `  # Show settings as YAML (default)
  screenrecorder config show

  # Show settings as JSON, as stored on disk
  screenrecorder config show --format json`,
	RunE: runConfigShow,
}

var configSetCmd = &cobra.Command{
	Use:   "set KEY VALUE",
	Short: "Set a setting",
	Long: `Set one setting. Keys are save_directory, quality (medium, high, ultra)
and frame_rate (24, 30, 60).`,
	Example: `  # Record at the highest bitrate
  screenrecorder config set quality ultra

  # Record at 60 frames per second
  screenrecorder config set frame_rate 60`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

var configGetCmd = &cobra.Command{
	Use:   "get KEY",
	Short: "Get a setting",
	Long:  `Print the value of one setting.`,
	Example: `  screenrecorder config get save_directory`,
	Args:    cobra.ExactArgs(1),
	RunE:    runConfigGet,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show settings file path",
	Long:  `Display the path to the settings file.`,
	RunE:  runConfigPath,
}

var formatFlag string

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configPathCmd)

	configShowCmd.Flags().StringVarP(&formatFlag, "format", "f", "yaml", "output format (yaml or json)")
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	settings, err := loadSettings()
	if err != nil {
		return err
	}

	s := settings.Get()

	switch formatFlag {
	case "json":
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(s)
	case "yaml":
		encoder := yaml.NewEncoder(os.Stdout)
		encoder.SetIndent(2)
		return encoder.Encode(s)
	default:
		return fmt.Errorf("unsupported format: %s (use 'yaml' or 'json')", formatFlag)
	}
}

// updateFor builds a one-field update from a key and its text value
func updateFor(key, value string) (config.Update, error) {
	var u config.Update
	switch key {
	case "save_directory":
		u.SaveDirectory = &value
	case "quality":
		q := config.Quality(value)
		u.Quality = &q
	case "frame_rate":
		fps, err := strconv.Atoi(value)
		if err != nil {
			return u, fmt.Errorf("invalid frame rate: %s", value)
		}
		u.FrameRate = &fps
	default:
		return u, fmt.Errorf("unknown setting: %s (use save_directory, quality or frame_rate)", key)
	}
	return u, nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	key := args[0]
	value := args[1]

	u, err := updateFor(key, value)
	if err != nil {
		return err
	}

	settings, err := loadSettings()
	if err != nil {
		return err
	}

	if _, err := settings.Save(u); err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}

	fmt.Printf("✅ Settings updated: %s = %s\n", key, value)
	return nil
}

// settingsMap flattens settings under their YAML keys
func settingsMap(s config.Settings) (map[string]interface{}, error) {
	data, err := yaml.Marshal(s)
	if err != nil {
		return nil, err
	}
	m := make(map[string]interface{})
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func runConfigGet(cmd *cobra.Command, args []string) error {
	key := args[0]

	settings, err := loadSettings()
	if err != nil {
		return err
	}

	m, err := settingsMap(settings.Get())
	if err != nil {
		return fmt.Errorf("failed to read settings: %w", err)
	}
	v, ok := m[key]
	if !ok {
		return fmt.Errorf("setting not found: %s", key)
	}

	fmt.Println(v)
	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	settings, err := loadSettings()
	if err != nil {
		return err
	}

	fmt.Println(settings.Path())
	return nil
}
