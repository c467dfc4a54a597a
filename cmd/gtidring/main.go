package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"github.com/aradilov/gtidring"
	"github.com/aradilov/gtidring/internal/config"
	"github.com/aradilov/gtidring/internal/simulate"
)

var (
	rootCmd = &cobra.Command{
		Use:   "gtidring",
		Short: "GTID ring buffer for detector event building",
	}
	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Run a synthetic readout through the buffer",
		RunE:  cmdRun,
	}
	configCmd = &cobra.Command{
		Use:   "config",
		Short: "Inspect the configuration",
	}
	configShowCmd = &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as YAML",
		RunE:  cmdConfigShow,
	}

	cfgFile   string
	dumpStats bool
)

func init() {
	defaults := config.Default()

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (yaml)")
	flags.Int("buffer.capacity", defaults.Buffer.Capacity, "physical slots of the ring buffer")
	flags.Uint64("feeder.staging_capacity", defaults.Feeder.StagingCapacity, "staging queue size, a power of two")
	flags.String("feeder.policy", defaults.Feeder.Policy, "backpressure policy: drop or retry")
	flags.Int("feeder.max_retries", defaults.Feeder.MaxRetries, "retries before an out of capacity record is dropped")
	flags.Int("arena.size", defaults.Arena.Size, "preallocated detector events, a power of two")
	flags.Duration("simulate.duration", defaults.Simulate.Duration, "how long triggers are produced, 0 until interrupted")
	flags.Float64("simulate.trigger_rate", defaults.Simulate.TriggerRate, "trigger rate in Hz")
	flags.Int("simulate.jitter", defaults.Simulate.Jitter, "reorder window in GTIDs")
	flags.Uint32("simulate.run_id", defaults.Simulate.RunID, "run number")
	flags.String("log.level", defaults.Log.Level, "the minimum log level to log")
	flags.Bool("log.development", defaults.Log.Development, "if true, set logging to development mode")

	runCmd.Flags().BoolVar(&dumpStats, "stats", false, "print the collected metrics on exit")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)

	cobra.OnInitialize(func() {
		_ = viper.BindPFlags(rootCmd.PersistentFlags())
		viper.SetEnvPrefix("gtidring")
		viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
		viper.AutomaticEnv()
	})
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the config file and applies environment and flag
// overrides on top of it.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}

	if viper.IsSet("buffer.capacity") {
		cfg.Buffer.Capacity = viper.GetInt("buffer.capacity")
	}
	if viper.IsSet("feeder.staging_capacity") {
		cfg.Feeder.StagingCapacity = viper.GetUint64("feeder.staging_capacity")
	}
	if viper.IsSet("feeder.policy") {
		cfg.Feeder.Policy = viper.GetString("feeder.policy")
	}
	if viper.IsSet("feeder.max_retries") {
		cfg.Feeder.MaxRetries = viper.GetInt("feeder.max_retries")
	}
	if viper.IsSet("arena.size") {
		cfg.Arena.Size = viper.GetInt("arena.size")
	}
	if viper.IsSet("simulate.duration") {
		cfg.Simulate.Duration = viper.GetDuration("simulate.duration")
	}
	if viper.IsSet("simulate.trigger_rate") {
		cfg.Simulate.TriggerRate = viper.GetFloat64("simulate.trigger_rate")
	}
	if viper.IsSet("simulate.jitter") {
		cfg.Simulate.Jitter = viper.GetInt("simulate.jitter")
	}
	if viper.IsSet("simulate.run_id") {
		cfg.Simulate.RunID = viper.GetUint32("simulate.run_id")
	}
	if viper.IsSet("log.level") {
		cfg.Log.Level = viper.GetString("log.level")
	}
	if viper.IsSet("log.development") {
		cfg.Log.Development = viper.GetBool("log.development")
	}

	return cfg, cfg.Validate()
}

func cmdRun(cmd *cobra.Command, args []string) (err error) {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { err = errs.Combine(err, ignoreSyncError(log.Sync())) }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pipeline, err := simulate.New(log, cfg, nil)
	if err != nil {
		return err
	}
	monkit.Default.ScopeNamed("gtidring").Chain(gtidring.NewMonitor("simulate", pipeline.Buffer()))

	report, err := pipeline.Run(ctx)
	if err != nil {
		log.Error("simulation failed", zap.Error(err))
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%+v\n", report)
	if dumpStats {
		printStats(cmd)
	}
	return nil
}

func cmdConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	data, err := cfg.Marshal()
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}

func printStats(cmd *cobra.Command) {
	var lines []string
	monkit.Default.Stats(func(key monkit.SeriesKey, field string, val float64) {
		lines = append(lines, fmt.Sprintf("%s %s %g", key.String(), field, val))
	})
	sort.Strings(lines)
	for _, line := range lines {
		fmt.Fprintln(cmd.OutOrStdout(), line)
	}
}
