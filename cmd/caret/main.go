package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	colorModeAuto   = "auto"
	colorModeAlways = "always"
	colorModeNever  = "never"
)

var supportedColorModes = []string{colorModeAuto, colorModeAlways, colorModeNever}

var flagConfig string

// errorHandled is set by outputError so main() doesn't double-print.
var errorHandled bool

// errInterrupted reports that at least one inspection was cancelled.
var errInterrupted = errors.New("inspection cancelled")

// exitInterrupted is the conventional status for a SIGINT-terminated run.
const exitInterrupted = 130

func main() {
	if err := rootCmd.Execute(); err != nil {
		if errors.Is(err, errInterrupted) {
			os.Exit(exitInterrupted)
		}
		if !errorHandled {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "caret",
	Short:         "Report what surrounds a caret position in a source file",
	Long:          "Caret parses a file with tree-sitter and walks its syntax tree in the background: headers and paragraphs for Markdown, the enclosing method, class and local variables for code.",
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := validateFormat(viper.GetString("format")); err != nil {
			return err
		}
		return validateColor(viper.GetString("color"))
	},
	// No Run: prints help by default.
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&flagConfig, "config", "", "config file (yaml, json or toml)")
	flags.String("format", "json", "output format: "+strings.Join(validFormats, "|"))
	flags.String("color", colorModeAuto, "colour mode: "+strings.Join(supportedColorModes, "|"))
	flags.BoolP("debug", "d", false, "turn on debug logging")
	_ = viper.BindPFlags(flags)

	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(languagesCmd)
}

// initConfig reads the config file and CARET_* environment variables, then
// configures logging.
func initConfig() {
	viper.SetEnvPrefix("caret")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if flagConfig != "" {
		viper.SetConfigFile(flagConfig)
		if err := viper.ReadInConfig(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: reading config %s: %s\n", flagConfig, err)
			os.Exit(1)
		}
	}

	initLogger(viper.GetBool("debug"), viper.GetString("color"))
}

func initLogger(debug bool, colorMode string) {
	logrus.SetOutput(os.Stderr)
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
		ForceColors:   colorMode == colorModeAlways,
		DisableColors: !colorEnabled(colorMode, os.Stderr),
	})
	if debug {
		logrus.SetLevel(logrus.DebugLevel)
		return
	}
	logrus.SetLevel(logrus.WarnLevel)
}

// validateColor checks that the --color flag value is recognized.
func validateColor(mode string) error {
	for _, m := range supportedColorModes {
		if mode == m {
			return nil
		}
	}
	return fmt.Errorf("invalid color mode %q: must be %s", mode, strings.Join(supportedColorModes, ", "))
}
