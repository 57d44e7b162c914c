package cmd

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"flakeview/internal/common"
	"flakeview/internal/config"
	"flakeview/internal/observability"
	"flakeview/internal/security"
	"flakeview/internal/ui"
	"flakeview/pkg/errors"
	"flakeview/pkg/models"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	verbose bool

	v         *viper.Viper
	appConfig *models.Config
	logger    = observability.Discard()
	logFile   *os.File

	rootCmd = &cobra.Command{
		Use:   "flakeview",
		Short: "Provision Snowflake key pairs and deploy view pipelines",
		Long: `flakeview generates the RSA key pair used for Snowflake key-pair authentication
and deploys an ordered pipeline of CREATE OR REPLACE VIEW statements, one at a
time, stopping at the first failure.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: initConfig,
	}
)

// flagKeys maps command line flags onto configuration keys. Only flags the
// running command defines are bound.
var flagKeys = map[string]string{
	"log-file":         "log.file",
	"log-level":        "log.level",
	"account":          "snowflake.account",
	"user":             "snowflake.user",
	"role":             "snowflake.role",
	"warehouse":        "snowflake.warehouse",
	"database":         "snowflake.database",
	"schema":           "snowflake.schema",
	"private-key-path": "snowflake.private_key_path",
	"pipeline":         "deployment.pipeline",
	"target":           "deployment.target",
	"duckdb":           "deployment.duckdb_path",
	"history-dir":      "history.dir",
	"dir":              "keygen.dir",
	"bits":             "keygen.bits",
}

// Execute runs the command line and returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return run(ctx, os.Args[1:])
}

func run(ctx context.Context, args []string) int {
	defer func() {
		closeLog()
		logger = observability.Discard()
	}()

	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		logger.WithError(err).Error("Command failed")
		ui.ShowError(err)
	}
	return ExitCode(err)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./config.yaml or ~/.flakeview/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "write debug logs to stderr")
	rootCmd.PersistentFlags().String("log-file", "", "append JSON logs to this file")
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")
}

func initConfig(cmd *cobra.Command, args []string) error {
	v = config.New()
	if err := bindFlags(v, cmd.Flags()); err != nil {
		return err
	}

	cfg, err := config.Load(v, cfgFile)
	if err != nil {
		return err
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}
	appConfig = cfg

	return setupLogging(cfg)
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	for name, key := range flagKeys {
		flag := flags.Lookup(name)
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "Failed to bind flag").WithContext("flag", name)
		}
	}
	return nil
}

func setupLogging(cfg *models.Config) error {
	closeLog()

	var writers []io.Writer
	if cfg.Log.File != "" {
		path, err := common.CleanPath(cfg.Log.File)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeConfigInvalid, "Invalid log file path").
				WithContext("path", cfg.Log.File)
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, common.FilePermissionSecure) // #nosec G304 - path is validated
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeFileOperation, "Failed to open log file").
				WithContext("path", path)
		}
		logFile = f
		writers = append(writers, f)
	}
	if verbose {
		writers = append(writers, os.Stderr)
	}

	if len(writers) == 0 {
		logger = observability.Discard()
	} else {
		level := observability.LogLevelFromString(cfg.Log.Level)
		if verbose {
			level = observability.DebugLevel
		}
		logger = observability.NewLogger(observability.LoggerConfig{
			Level:   level,
			Output:  io.MultiWriter(writers...),
			Version: Version,
		})
	}

	observability.SetDefaultLogger(logger)
	return nil
}

func closeLog() {
	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}
}

// credentialStore opens the credential store, or returns nil when none is
// usable on this machine.
func credentialStore() *security.CredentialManager {
	cm, err := security.NewCredentialManager()
	if err != nil {
		logger.WithError(err).Warn("Credential store unavailable")
		return nil
	}
	return cm
}
