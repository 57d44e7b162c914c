package cmd

import (
	"context"
	"fmt"
	"strings"

	"flakeview/internal/config"
	"flakeview/internal/deployer"
	"flakeview/internal/history"
	"flakeview/internal/local"
	"flakeview/internal/observability"
	"flakeview/internal/pipeline"
	"flakeview/internal/snowflake"
	"flakeview/internal/ui"
	"flakeview/pkg/errors"
	"flakeview/pkg/models"
	"github.com/spf13/cobra"
)

var (
	deployFrom       string
	deploySelect     string
	deployResume     bool
	deploySort       bool
	deployDryRun     bool
	deployNoValidate bool
	deployYes        bool
	deployRef        string
)

var deployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Deploy the view pipeline",
	Long: `Apply the view pipeline in order over a single session. Each CREATE OR
REPLACE VIEW statement completes before the next is submitted. The first
failure stops the run: earlier views stay applied and later views are not
attempted. Re-run with --from or --resume once the failing view is fixed.

Without --pipeline the built-in marketplace harmonization pipeline is used.
--target duckdb rehearses a pipeline against a local DuckDB database.`,
	Args: cobra.NoArgs,
	RunE: runDeploy,
}

func init() {
	rootCmd.AddCommand(deployCmd)

	flags := deployCmd.Flags()
	flags.String("pipeline", "", "pipeline YAML file (default built-in harmonize pipeline)")
	flags.String("target", "", "snowflake or duckdb (default snowflake)")
	flags.String("duckdb", "", "DuckDB database file for --target duckdb (default in-memory)")
	flags.String("account", "", "Snowflake account identifier")
	flags.String("user", "", "Snowflake user")
	flags.String("role", "", "Snowflake role")
	flags.String("warehouse", "", "Snowflake warehouse")
	flags.String("database", "", "Snowflake database")
	flags.String("schema", "", "Snowflake schema")
	flags.String("private-key-path", "", "PKCS8 private key file for key-pair authentication")
	flags.String("history-dir", "", "deployment history directory (default ~/.flakeview/history)")

	flags.StringVar(&deployFrom, "from", "", "start at this view")
	flags.StringVar(&deploySelect, "select", "", "comma separated views to deploy with their dependents")
	flags.BoolVar(&deployResume, "resume", false, "start at the view the last failed deployment stopped on")
	flags.BoolVar(&deploySort, "sort", false, "order views by their dependencies first")
	flags.BoolVarP(&deployDryRun, "dry-run", "d", false, "show what would be deployed without executing")
	flags.BoolVar(&deployNoValidate, "no-validate", false, "skip pipeline validation")
	flags.BoolVarP(&deployYes, "yes", "y", false, "do not ask for confirmation")
	flags.StringVar(&deployRef, "ref", "", "read the pipeline file as of this git revision")

	deployCmd.MarkFlagsMutuallyExclusive("from", "select", "resume")
}

func runDeploy(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := appConfig
	validate := cfg.Deployment.Validate && !deployNoValidate

	full, source, err := loadPipeline(cfg, deployRef)
	if err != nil {
		return err
	}
	if deploySort {
		if full, err = full.Sorted(); err != nil {
			return err
		}
	}
	if validate {
		if err := full.Validate(); err != nil {
			return err
		}
	}

	hm, err := historyManager(cfg)
	if err != nil {
		return err
	}
	scope := deployScope(cfg)

	from := deployFrom
	if deployResume {
		if from, err = resumePoint(hm, scope); err != nil {
			return err
		}
	}

	p, err := narrow(full, from, splitNames(deploySelect))
	if err != nil {
		return err
	}

	log := logger.WithFields(map[string]interface{}{
		"command":  "deploy",
		"target":   scope.Target,
		"pipeline": source,
	})

	showDeployPlan(cfg, scope, source, p, len(full))

	if !deployDryRun && !deployYes && cfg.Deployment.Confirm && ui.Interactive() {
		ok, err := ui.Confirm(fmt.Sprintf("Deploy %d views to %s?", len(p), describeScope(scope)), false)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeUserInput, "Confirmation prompt failed")
		}
		if !ok {
			ui.ShowInfo("Deployment cancelled")
			return nil
		}
	}

	var session deployer.Session
	if !deployDryRun {
		s, closeSession, err := openSession(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer closeSession()
		session = s
	}

	progress := ui.NewProgressBar(len(p), deployDryRun)
	report, deployErr := deployer.New(session, deployer.Options{
		DryRun:   deployDryRun,
		Validate: validate,
		Observer: progress,
		Logger:   log,
	}).Deploy(ctx, p)
	progress.Finish()

	if !deployDryRun && report != nil {
		record := history.NewRecord(report, p, scope, source, deployErr)
		record.Commit = pipelineCommit(cfg, deployRef)
		if err := hm.Save(record); err != nil {
			log.WithError(err).Warn("Failed to record deployment")
			ui.ShowWarning("Deployment history was not saved: " + err.Error())
		}
	}

	return deployErr
}

func narrow(p pipeline.Pipeline, from string, selected []string) (pipeline.Pipeline, error) {
	var err error
	if from != "" {
		if p, err = p.From(from); err != nil {
			return nil, err
		}
	}
	if len(selected) > 0 {
		if p, err = p.Select(selected...); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func resumePoint(hm *history.Manager, scope history.Scope) (string, error) {
	rec, err := hm.Latest(scope)
	if err != nil {
		return "", err
	}
	from, ok := rec.ResumeFrom()
	if !ok {
		return "", errors.New(errors.ErrCodeInvalidInput, "The last deployment completed, nothing to resume").
			WithContext("deployment_id", rec.ID).
			WithSuggestions("Run deploy without --resume to apply the whole pipeline")
	}
	ui.ShowInfo(fmt.Sprintf("Resuming deployment %s from view %s", rec.ID, from))
	return from, nil
}

func historyManager(cfg *models.Config) (*history.Manager, error) {
	dir := cfg.History.Dir
	if dir == "" {
		dir = history.DefaultDir()
	}
	hm, err := history.NewManager(dir)
	if err != nil {
		return nil, err
	}
	hm.SetRetention(cfg.History.MaxRecords, cfg.History.RetentionDays)
	return hm, nil
}

func deployScope(cfg *models.Config) history.Scope {
	if cfg.Deployment.Target == config.TargetDuckDB {
		path := cfg.Deployment.DuckDBPath
		if path == "" {
			path = local.MemoryPath
		}
		return history.Scope{Target: config.TargetDuckDB, Database: path}
	}
	return history.Scope{
		Target:   config.TargetSnowflake,
		Account:  cfg.Snowflake.Account,
		Database: strings.ToUpper(cfg.Snowflake.Database),
		Schema:   strings.ToUpper(cfg.Snowflake.Schema),
	}
}

func describeScope(scope history.Scope) string {
	if scope.Target == config.TargetDuckDB {
		return "DuckDB " + scope.Database
	}
	return fmt.Sprintf("%s.%s on %s", scope.Database, scope.Schema, scope.Account)
}

// openSession connects to the configured target and returns the session
// with its close function.
func openSession(ctx context.Context, cfg *models.Config, log *observability.Logger) (deployer.Session, func(), error) {
	if cfg.Deployment.Target == config.TargetDuckDB {
		store, err := local.Open(ctx, cfg.Deployment.DuckDBPath)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil
	}

	var store config.CredentialStore
	if cm := credentialStore(); cm != nil {
		store = cm
	}
	sfCfg, credSource, err := config.Snowflake(cfg, store)
	if err != nil {
		return nil, nil, err
	}
	if err := snowflake.ValidateConfig(sfCfg); err != nil {
		return nil, nil, err
	}
	log.Info("Using Snowflake credential from " + credSource)

	out := ui.NewUI(verbose, false)
	svc := snowflake.NewService(sfCfg).WithLogger(log)
	out.StartProgress(fmt.Sprintf("Connecting to Snowflake account %s...", sfCfg.Account))
	if err := svc.Connect(ctx); err != nil {
		out.StopProgress(false, "Connection failed")
		return nil, nil, err
	}
	out.StopProgress(true, "Connected to Snowflake")

	if current, err := svc.CurrentContext(ctx); err != nil {
		log.WithError(err).Warn("Could not read session context")
	} else {
		log.InfoWithFields("Session context", map[string]interface{}{
			"role":      current["role"],
			"warehouse": current["warehouse"],
			"database":  current["database"],
			"schema":    current["schema"],
		})
		out.Info(fmt.Sprintf("Session role %s, warehouse %s", current["role"], current["warehouse"]))
	}

	return svc, func() { _ = svc.Close() }, nil
}

func showDeployPlan(cfg *models.Config, scope history.Scope, source string, p pipeline.Pipeline, total int) {
	title := "flakeview deploy"
	if deployDryRun {
		title += " (dry run)"
	}
	ui.ShowHeader(title)

	ui.PrintKeyValue("Target", describeScope(scope))
	if scope.Target == config.TargetSnowflake && cfg.Snowflake.Warehouse != "" {
		ui.PrintKeyValue("Warehouse", cfg.Snowflake.Warehouse)
	}
	ui.PrintKeyValue("Pipeline", source)
	if len(p) == total {
		ui.PrintKeyValue("Views", fmt.Sprintf("%d", len(p)))
	} else {
		ui.PrintKeyValue("Views", fmt.Sprintf("%d of %d", len(p), total))
	}
	fmt.Fprintln(ui.Output)
}
