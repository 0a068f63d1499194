// govna - SCPI automation tool for vector network analyzers
// This program drives guided calibrations, trace acquisition and cal-set
// composition over a raw SCPI link.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"govna/internal/cal"
	"govna/internal/config"
	"govna/internal/export"
	"govna/internal/scpi"
	"govna/internal/vna"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Command line flag variables
var (
	cfgFile   string // Configuration file path
	address   string // Instrument SCPI socket address
	transport string // Link transport: tcp or serial
	channel   int    // Measurement channel
	verbose   bool   // Enable verbose logging

	calSetBase   string // Base name for the saved cal set
	calUnlimited bool   // Retry rejected standards until they succeed
	calRetries   int    // Retries per standard when not unlimited
	calTimestamp bool   // Append acquisition timestamp to the saved name

	deembedFinal   string // Name of the composed cal set
	deembedP1File  string // Port 1 fixture s2p file
	deembedP2File  string // Port 2 fixture s2p file
	deembedEnh     bool   // Use the circuit-simulator compose
	deembedExtrap  bool   // Extrapolate fixture data beyond its span
	deembedReplace bool   // Delete a pre-existing final set first

	traceOut    string // Output file for the acquired trace
	traceFormat string // trace output format: bin or csv
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "govna",
	Short: "SCPI automation tool for vector network analyzers",
	Long: `govna drives a vector network analyzer over a raw SCPI link:
guided calibrations with per-standard retry, binary trace acquisition,
and fixture de-embed cal-set composition.`,
}

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Print instrument identity and capabilities",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(func(ctx context.Context, sess *vna.Session) error {
			fmt.Printf("Identity: %s\n", sess.Caps.ID)
			fmt.Printf("Options:  %s\n", sess.Caps.Options)
			fmt.Printf("Ports:    %d\n", sess.Caps.NumPorts)
			fmt.Printf("Sources:  %d\n", sess.Caps.NumSources)
			return nil
		})
	},
}

var traceCmd = &cobra.Command{
	Use:   "trace <measurement>",
	Short: "Acquire one trace and write it to a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(func(ctx context.Context, sess *vna.Session) error {
			return runTrace(ctx, sess, args[0])
		})
	},
}

var calCmd = &cobra.Command{
	Use:   "cal",
	Short: "Guided calibration and cal-set management",
}

var calRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a guided calibration on the channel",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(runCal)
	},
}

var calListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cal sets stored on the instrument",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(func(ctx context.Context, sess *vna.Session) error {
			sets, err := cal.ListSets(ctx, sess)
			if err != nil {
				return err
			}
			for _, s := range sets {
				fmt.Println(s)
			}
			return nil
		})
	},
}

var calDeembedCmd = &cobra.Command{
	Use:   "deembed <base-set>",
	Short: "Compose a fixture-corrected cal set from a base set",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(func(ctx context.Context, sess *vna.Session) error {
			return cal.NewComposer(sess).Compose(ctx, cal.DeembedConfig{
				BaseSet:          args[0],
				FinalSet:         deembedFinal,
				PortOneFile:      deembedP1File,
				PortTwoFile:      deembedP2File,
				EnhancedResponse: deembedEnh,
				Extrapolate:      deembedExtrap,
				Overwrite:        deembedReplace,
			})
		})
	},
}

// init initializes the CLI flags and configuration
func init() {
	// Initialize configuration when cobra starts
	cobra.OnInitialize(initConfig)

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "./config.yaml", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVarP(&address, "address", "a", "localhost:5025", "instrument SCPI socket address")
	rootCmd.PersistentFlags().StringVar(&transport, "transport", "tcp", "link transport: tcp or serial")
	rootCmd.PersistentFlags().IntVar(&channel, "channel", 1, "measurement channel")

	// Calibration options
	calRunCmd.Flags().StringVar(&calSetBase, "set", "govna", "base name for the saved cal set")
	calRunCmd.Flags().BoolVar(&calUnlimited, "unlimited", true, "retry rejected standards until they succeed")
	calRunCmd.Flags().IntVar(&calRetries, "retries", 3, "retries per standard when not unlimited")
	calRunCmd.Flags().BoolVar(&calTimestamp, "timestamp", true, "append acquisition timestamp to the saved name")

	// De-embed options
	calDeembedCmd.Flags().StringVar(&deembedFinal, "final", "", "name of the composed cal set (required)")
	calDeembedCmd.Flags().StringVar(&deembedP1File, "p1-file", "", "port 1 fixture s2p file on the instrument")
	calDeembedCmd.Flags().StringVar(&deembedP2File, "p2-file", "", "port 2 fixture s2p file on the instrument")
	calDeembedCmd.Flags().BoolVar(&deembedEnh, "enhanced", false, "use the circuit-simulator compose")
	calDeembedCmd.Flags().BoolVar(&deembedExtrap, "extrapolate", false, "extrapolate fixture data beyond its span")
	calDeembedCmd.Flags().BoolVar(&deembedReplace, "overwrite", false, "delete a pre-existing final set first")
	calDeembedCmd.MarkFlagRequired("final")

	// Trace options
	traceCmd.Flags().StringVarP(&traceOut, "output", "o", "", "output file (defaults under export.output_dir)")
	traceCmd.Flags().StringVar(&traceFormat, "format", "bin", "output format: bin or csv")

	// Bind command line flags to viper configuration keys
	viper.BindPFlag("instrument.address", rootCmd.PersistentFlags().Lookup("address"))
	viper.BindPFlag("instrument.transport", rootCmd.PersistentFlags().Lookup("transport"))
	viper.BindPFlag("instrument.channel", rootCmd.PersistentFlags().Lookup("channel"))
	viper.BindPFlag("cal.set_prefix", calRunCmd.Flags().Lookup("set"))
	viper.BindPFlag("cal.unlimited", calRunCmd.Flags().Lookup("unlimited"))
	viper.BindPFlag("cal.max_retries", calRunCmd.Flags().Lookup("retries"))
	viper.BindPFlag("cal.timestamp_suffix", calRunCmd.Flags().Lookup("timestamp"))
	viper.BindPFlag("export.format", traceCmd.Flags().Lookup("format"))
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))

	calCmd.AddCommand(calRunCmd, calListCmd, calDeembedCmd)
	rootCmd.AddCommand(infoCmd, traceCmd, calCmd)
}

// initConfig reads in config file and ENV variables if set
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag
		viper.SetConfigFile(cfgFile)
	} else {
		// Search for config.yaml in current directory
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
	}

	// Read in environment variables that match
	viper.AutomaticEnv()

	// If a config file is found, read it in
	if err := viper.ReadInConfig(); err == nil && verbose {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

// loadConfig merges defaults, config file and flags.
func loadConfig() (*config.Config, error) {
	cfg := config.DefaultConfig()
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	level := logrus.InfoLevel
	if verbose {
		level = logrus.DebugLevel
	} else if cfg.Logging.Level != "" {
		parsed, err := logrus.ParseLevel(cfg.Logging.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", cfg.Logging.Level, err)
		}
		level = parsed
	}
	logrus.SetLevel(level)

	switch cfg.Instrument.Transport {
	case "tcp":
		if cfg.Instrument.Address == "" {
			return nil, fmt.Errorf("instrument address not specified for tcp transport")
		}
	case "serial":
		if cfg.Instrument.Port == "" {
			return nil, fmt.Errorf("serial port not specified for serial transport")
		}
	default:
		return nil, fmt.Errorf("invalid transport: %s (must be 'tcp' or 'serial')", cfg.Instrument.Transport)
	}
	return cfg, nil
}

// withSession opens the configured link, runs fn and closes the link,
// cancelling on SIGINT/SIGTERM.
func withSession(fn func(context.Context, *vna.Session) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	var ch scpi.Channel
	switch cfg.Instrument.Transport {
	case "serial":
		ch, err = scpi.OpenSerial(cfg.Instrument.Port, cfg.Instrument.BaudRate, cfg.Instrument.Timeout)
	default:
		ch, err = scpi.Dial(cfg.Instrument.Address, cfg.Instrument.Timeout)
	}
	if err != nil {
		return fmt.Errorf("failed to open instrument link: %w", err)
	}
	defer ch.Close()

	// Set up signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Fprintf(os.Stderr, "\nReceived interrupt signal, shutting down...\n")
		cancel()
	}()

	sess, err := vna.Open(ctx, ch)
	if err != nil {
		return fmt.Errorf("failed to open session: %w", err)
	}
	return fn(ctx, sess)
}

// runCal is the guided calibration logic
func runCal(ctx context.Context, sess *vna.Session) error {
	cfg := config.DefaultConfig()
	if err := viper.Unmarshal(cfg); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}

	g := cal.NewGuided(sess, viper.GetInt("instrument.channel"))
	g.StepTimeout = cfg.Cal.StepTimeout
	g.Retry = cal.RetryPolicy{Unlimited: cfg.Cal.Unlimited, MaxRetries: cfg.Cal.MaxRetries}
	g.Confirm = func(step, total int, description string) error {
		fmt.Printf("Step %d/%d: %s\n", step, total, description)
		fmt.Print("Connect the standard and press Enter to measure...")
		_, err := fmt.Scanln()
		if err != nil && !strings.Contains(err.Error(), "unexpected newline") {
			return err
		}
		return nil
	}

	steps, err := g.Run(ctx)
	if err != nil {
		return fmt.Errorf("calibration failed: %w", err)
	}
	name, err := g.Finalize(ctx, cfg.Cal.SetPrefix, cfg.Cal.TimestampSuffix)
	if err != nil {
		return fmt.Errorf("failed to save calibration: %w", err)
	}
	fmt.Printf("Calibration completed: %d standards measured, saved as %q\n", steps, name)
	return nil
}

// runTrace acquires one trace and writes it out
func runTrace(ctx context.Context, sess *vna.Session, name string) error {
	cfg := config.DefaultConfig()
	if err := viper.Unmarshal(cfg); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}
	ch := viper.GetInt("instrument.channel")

	if err := sess.SingleTrigger(ctx, ch, 0); err != nil {
		return fmt.Errorf("sweep failed: %w", err)
	}
	trace, err := sess.AcquireTrace(ctx, name, ch)
	if err != nil {
		return fmt.Errorf("failed to acquire trace %q: %w", name, err)
	}

	params, err := sess.MeasurementParams(ctx, ch)
	if err != nil {
		return fmt.Errorf("failed to read measurement catalog: %w", err)
	}
	meta := export.Metadata{
		InstrumentID:      sess.Caps.ID,
		MeasurementName:   name,
		Parameter:         params[name],
		AcquisitionTime:   time.Now(),
		FileFormatVersion: 1,
	}

	out := traceOut
	format := viper.GetString("export.format")
	if out == "" {
		ext := "bin"
		if format == "csv" {
			ext = "csv"
		}
		out = fmt.Sprintf("%s/%s_%s.%s", cfg.Export.OutputDir, cfg.Export.FilePrefix, name, ext)
	}

	w := export.NewWriter()
	if format == "csv" {
		err = w.WriteCSV(out, meta, trace)
	} else {
		err = w.WriteFile(out, meta, trace)
	}
	if err != nil {
		return fmt.Errorf("failed to write trace file: %w", err)
	}
	fmt.Printf("Wrote %d points to %s\n", len(trace.Freq), out)
	return nil
}

// main is the entry point of the application
func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
