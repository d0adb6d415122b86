package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"unicode"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// formatVersion adds 'v' prefix if version starts with a digit
func formatVersion(ver string) string {
	if len(ver) > 0 && unicode.IsDigit(rune(ver[0])) {
		return "v" + ver
	}
	return ver
}

// rootCmd is the single entry point: it records one sensor session.
var rootCmd = &cobra.Command{
	Use:   "senselog",
	Short: "BLE sensor session logger",
	Long: `Records acceleration telemetry from a Movesense-protocol BLE sensor.

senselog scans for the first peripheral whose advertised name contains the
given sensor identifier, connects, arms the acceleration stream and buffers
every decoded reading in memory. On Ctrl+C (or link loss) the session is
persisted to a CSV or SQLite file and the program exits.

Examples:
  # Record from the sensor with serial fragment 223430000278
  senselog --sensor 223430000278

  # Write SQLite instead of CSV, scanning for at most 10 seconds
  senselog --sensor 2234 --format sqlite --scan-timeout 10s

  # Forward readings live to an MQTT broker while recording
  senselog --sensor 2234 --publish tcp://localhost:1883`,
	Version: formatVersion(version),
	RunE:    runRecord,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		// Ctrl+C is a normal exit, not an error - exit silently
		if errors.Is(err, context.Canceled) {
			return
		}
		// Print user-friendly error message
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", FormatUserError(err))
		os.Exit(1)
	}
}

func init() {
	// Silence Cobra's "Error:" prefix - main() prints clean errors
	rootCmd.SilenceErrors = true

	rootCmd.Flags().StringVarP(&recordSensor, "sensor", "s", "", "Sensor identifier fragment matched against advertised names")
	rootCmd.Flags().StringVar(&recordConfigFile, "config", "", "YAML configuration file")
	rootCmd.Flags().DurationVar(&recordScanTimeout, "scan-timeout", 0, "Bounded wait for a matching advertisement (default 30s)")
	rootCmd.Flags().DurationVar(&recordConnectTimeout, "connect-timeout", 0, "Bounded wait for connection establishment (default 10s)")
	rootCmd.Flags().BoolVar(&recordCaseInsensitive, "case-insensitive", false, "Fold case when matching the sensor identifier")
	rootCmd.Flags().IntVar(&recordRate, "rate", 0, "Acceleration sampling rate in Hz (default 13)")
	rootCmd.Flags().StringVarP(&recordOutput, "output", "o", "", "Output file path (default sensor_data_<start>.<ext>)")
	rootCmd.Flags().StringVarP(&recordFormat, "format", "f", "", "Output format: csv or sqlite (default csv)")
	rootCmd.Flags().StringVar(&recordPublish, "publish", "", "MQTT broker URL for live forwarding (e.g. tcp://localhost:1883)")

	// Global flags
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.Flags().Bool("verbose", false, "Enable debug logging")

	// Add -v as a short flag for --version
	rootCmd.Flags().BoolP("version", "v", false, "Show version information")
}
