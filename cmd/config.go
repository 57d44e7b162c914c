package cmd

import (
	"fmt"
	"os"
	"strings"

	"flakeview/internal/common"
	"flakeview/internal/config"
	"flakeview/internal/keypair"
	"flakeview/internal/security"
	"flakeview/internal/ui"
	"flakeview/pkg/errors"
	"flakeview/pkg/models"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	configInitForce    bool
	credentialFromFile string
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and initialize flakeview configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration with secrets masked",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := yaml.Marshal(appConfig.Redacted())
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "Failed to encode configuration")
		}
		if used := v.ConfigFileUsed(); used != "" {
			fmt.Fprintf(ui.Output, "# %s\n", used)
		}
		fmt.Fprint(ui.Output, string(data))
		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter configuration file",
	Long: `Write a starter configuration to --config, $FLAKEVIEW_CONFIG or
~/.flakeview/config.yaml. Secrets are never written; use
'flakeview config set-credential' or the SNOWFLAKE_* environment variables.`,
	Args: cobra.NoArgs,
	// The file usually does not exist yet.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	RunE:              runConfigInit,
}

var setCredentialCmd = &cobra.Command{
	Use:       "set-credential password|private-key",
	Short:     "Save a Snowflake password or private key in the credential store",
	Long:      `Save a secret in the OS keyring, or an encrypted file when no keyring is available.`,
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"password", "private-key"},
	RunE:      runSetCredential,
}

var deleteCredentialCmd = &cobra.Command{
	Use:       "delete-credential password|private-key",
	Short:     "Remove a Snowflake password or private key from the credential store",
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"password", "private-key"},
	RunE:      runDeleteCredential,
}

var listCredentialsCmd = &cobra.Command{
	Use:   "list-credentials",
	Short: "List the credentials saved in the credential store",
	Args:  cobra.NoArgs,
	RunE:  runListCredentials,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd, configInitCmd, setCredentialCmd, deleteCredentialCmd, listCredentialsCmd)

	configInitCmd.Flags().BoolVarP(&configInitForce, "force", "f", false, "overwrite an existing configuration file")
	setCredentialCmd.Flags().StringVar(&credentialFromFile, "from-file", "", "read the secret from this file instead of prompting")
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := cfgFile
	if path == "" {
		path = config.GetConfigFile()
	}

	if _, err := os.Stat(path); err == nil && !configInitForce {
		return errors.New(errors.ErrCodeInvalidInput, "Configuration file already exists").
			WithContext("path", path).
			WithSuggestions("Use --force to overwrite it")
	}

	if err := config.Save(starterConfig(), path); err != nil {
		return err
	}

	ui.ShowSuccess("Configuration written to " + path)
	ui.PrintSection("Next steps")
	fmt.Fprintln(ui.Output, "1. Fill in snowflake.account and snowflake.user")
	fmt.Fprintln(ui.Output, "2. Run 'flakeview keygen' and register the public key")
	fmt.Fprintln(ui.Output, "3. Run 'flakeview plan' to review the views, then 'flakeview deploy'")
	return nil
}

func starterConfig() *models.Config {
	return &models.Config{
		Snowflake: models.Snowflake{
			Account:        "myorg-myaccount",
			User:           "DEPLOY_USER",
			PrivateKeyPath: ".snowflake/rsa_key.pem",
			Role:           "SYSADMIN",
			Warehouse:      "QUICKSTART_WH",
			Database:       "QUICKSTART_PROD",
			Schema:         "SILVER",
			LoginTimeout:   "60s",
			QueryTimeout:   "5m",
		},
		Deployment: models.Deployment{
			Pipeline: BuiltinPipeline,
			Target:   config.TargetSnowflake,
			Validate: true,
			Confirm:  true,
		},
		History: models.History{
			MaxRecords:    100,
			RetentionDays: 90,
		},
		Keygen: models.Keygen{
			Dir:  keypair.DefaultDir,
			Bits: keypair.DefaultBits,
		},
		Log: models.Log{Level: "info"},
	}
}

// credentialFor maps a command argument to the stored credential name and type.
func credentialFor(kind string) (string, string) {
	if kind == "private-key" {
		return security.PrivateKeyCredential, security.TypePrivateKey
	}
	return security.PasswordCredential, security.TypePassword
}

func runSetCredential(cmd *cobra.Command, args []string) error {
	name, credType := credentialFor(args[0])

	secret, err := readSecret(args[0])
	if err != nil {
		return err
	}
	if secret == "" {
		return errors.New(errors.ErrCodeRequiredField, "No secret given").WithContext("credential", name)
	}

	metadata := map[string]string{}
	if credType == security.TypePrivateKey {
		key, err := keypair.ParsePrivateKey([]byte(secret))
		if err != nil {
			return err
		}
		kp, err := keypair.FromPrivateKey(key)
		if err != nil {
			return err
		}
		if metadata["fingerprint"], err = kp.Fingerprint(); err != nil {
			return err
		}
	}

	store := credentialStore()
	if store == nil {
		return errors.New(errors.ErrCodeEncryptionFailed, "No credential store available").
			WithSuggestions("Set the SNOWFLAKE_PASSWORD or SNOWFLAKE_PRIVATE_KEY environment variable instead")
	}
	if err := store.StoreCredential(name, credType, secret, metadata); err != nil {
		return err
	}

	logger.InfoWithFields("Credential stored", map[string]interface{}{
		"credential": name,
		"backend":    store.Backend().String(),
	})
	ui.ShowSuccess(fmt.Sprintf("Saved %s in the %s store", name, store.Backend()))
	return nil
}

func runDeleteCredential(cmd *cobra.Command, args []string) error {
	name, _ := credentialFor(args[0])

	store := credentialStore()
	if store == nil {
		return errors.New(errors.ErrCodeEncryptionFailed, "No credential store available")
	}
	if err := store.DeleteCredential(name); err != nil {
		return errors.Wrap(err, errors.ErrCodeEncryptionFailed, "Failed to delete credential").
			WithContext("credential", name)
	}

	logger.InfoWithFields("Credential deleted", map[string]interface{}{
		"credential": name,
		"backend":    store.Backend().String(),
	})
	ui.ShowSuccess(fmt.Sprintf("Removed %s from the %s store", name, store.Backend()))
	return nil
}

func runListCredentials(cmd *cobra.Command, args []string) error {
	store := credentialStore()
	if store == nil {
		return errors.New(errors.ErrCodeEncryptionFailed, "No credential store available")
	}
	names, err := store.ListCredentials()
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeEncryptionFailed, "Failed to list credentials")
	}

	if len(names) == 0 {
		ui.ShowInfo(fmt.Sprintf("No credentials in the %s store", store.Backend()))
		return nil
	}
	out := ui.NewUI(verbose, false)
	for _, name := range names {
		out.Println(name)
	}
	return nil
}

func readSecret(kind string) (string, error) {
	if credentialFromFile != "" {
		path, err := common.CleanPath(credentialFromFile)
		if err != nil {
			return "", errors.Wrap(err, errors.ErrCodeFileOperation, "Invalid secret file path").
				WithContext("path", credentialFromFile)
		}
		data, err := os.ReadFile(path) // #nosec G304 - path is validated
		if err != nil {
			return "", errors.Wrap(err, errors.ErrCodeFileNotFound, "Failed to read secret file").
				WithContext("path", path)
		}
		return strings.TrimRight(string(data), "\r\n") + trailingNewline(kind), nil
	}

	if !ui.Interactive() {
		return "", errors.New(errors.ErrCodeUserInput, "No terminal to prompt for the secret").
			WithSuggestions("Pass the secret with --from-file")
	}
	secret, err := ui.Password("Snowflake "+strings.ReplaceAll(kind, "-", " ")+":", "Input is hidden")
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeUserInput, "Prompt failed")
	}
	return secret, nil
}

// PEM blocks keep their final newline, passwords lose it.
func trailingNewline(kind string) string {
	if kind == "private-key" {
		return "\n"
	}
	return ""
}
