package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"flakeview/internal/keypair"
	"flakeview/internal/security"
	"flakeview/internal/ui"
	"flakeview/pkg/errors"
	"github.com/spf13/cobra"
)

var (
	keygenStore bool
	keygenQuiet bool
)

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate an RSA key pair for Snowflake key-pair authentication",
	Long: `Generate a 2048 bit RSA key pair and write it to .snowflake/rsa_key.pem
(PKCS8, unencrypted) and .snowflake/rsa_key.pub (SubjectPublicKeyInfo).

The report prints the private key for use as the SNOWFLAKE_PRIVATE_KEY CI
secret and the ALTER USER statement that registers the public key.
Existing key files are overwritten.`,
	Args: cobra.NoArgs,
	RunE: runKeygen,
}

func init() {
	rootCmd.AddCommand(keygenCmd)

	keygenCmd.Flags().String("dir", "", "output directory (default .snowflake)")
	keygenCmd.Flags().Int("bits", 0, "RSA modulus size, at least 2048")
	keygenCmd.Flags().String("user", "", "Snowflake user for the ALTER USER statement (default snowflake.user)")
	keygenCmd.Flags().BoolVar(&keygenStore, "store", false, "also save the private key in the credential store")
	keygenCmd.Flags().BoolVarP(&keygenQuiet, "quiet", "q", false, "print only the file paths")
}

func runKeygen(cmd *cobra.Command, args []string) error {
	out := ui.NewUI(verbose, keygenQuiet)
	log := logger.WithField("command", "keygen")

	out.StartProgress("Generating RSA key pair for Snowflake authentication...")
	kp, err := keypair.GenerateWithSize(appConfig.Keygen.Bits)
	if err != nil {
		out.StopProgress(false, "Key generation failed")
		return err
	}
	out.StopProgress(true, "Key pair generated")

	out.VerbosePrintf("Writing key files to %s\n", appConfig.Keygen.Dir)
	paths, err := kp.Write(appConfig.Keygen.Dir)
	if err != nil {
		return err
	}

	fingerprint, err := kp.Fingerprint()
	if err != nil {
		return err
	}

	log.InfoWithFields("Key pair written", map[string]interface{}{
		"dir":         paths.Dir,
		"fingerprint": fingerprint,
	})

	var stored bool
	if keygenStore {
		store := credentialStore()
		if store == nil {
			return errors.New(errors.ErrCodeEncryptionFailed, "No credential store available").
				WithContext("private_key", paths.PrivateKey).
				WithSuggestions("Set SNOWFLAKE_PRIVATE_KEY_PATH to the private key file instead")
		}
		err := store.StoreCredential(security.PrivateKeyCredential, security.TypePrivateKey, string(kp.PrivateKey), map[string]string{
			"fingerprint": fingerprint,
			"path":        paths.PrivateKey,
		})
		if err != nil {
			return err
		}
		stored = true
		log.InfoWithFields("Private key stored", map[string]interface{}{"backend": store.Backend().String()})
		out.VerbosePrintf("Private key saved in the %s credential store\n", store.Backend())
	}

	if keygenQuiet {
		fmt.Fprintln(ui.Output, paths.PrivateKey)
		fmt.Fprintln(ui.Output, paths.PublicKey)
		return nil
	}

	printKeyReport(out, kp, paths, fingerprint, appConfig.Snowflake.User, stored)
	return nil
}

func printKeyReport(out *ui.UI, kp *keypair.KeyPair, paths keypair.Paths, fingerprint, user string, stored bool) {
	out.Success("Keys generated successfully")

	ui.PrintSection("Files created")
	ui.PrintKeyValue("Private key", relative(paths.PrivateKey)+" (for CI secrets)")
	ui.PrintKeyValue("Public key", relative(paths.PublicKey)+" (for the Snowflake user)")
	ui.PrintKeyValue("Fingerprint", fingerprint)
	if stored {
		ui.PrintKeyValue("Credential store", security.PrivateKeyCredential)
	}

	ui.PrintSection("Private key for CI secret SNOWFLAKE_PRIVATE_KEY")
	ui.PrintBlock(string(kp.PrivateKey))

	ui.PrintSection("Public key for the Snowflake user")
	ui.PrintBlock(string(kp.PublicKey))

	ui.PrintSection("Next steps")
	out.Println("1. Store the private key above as the CI secret SNOWFLAKE_PRIVATE_KEY")
	out.Println("2. Register the public key with your Snowflake user:")
	out.Printf("   %s\n", kp.AlterUserStatement(user))
	out.Println("3. Configure key-pair authentication, either with")
	out.Printf("   snowflake.private_key_path: %s\n", relative(paths.PrivateKey))
	out.Println("   or the SNOWFLAKE_PRIVATE_KEY environment variable")
	out.Printf("4. Check the fingerprint with DESC USER %s (RSA_PUBLIC_KEY_FP)\n", displayUser(user))

	out.Println()
	out.Warning("The private key is not encrypted. Keep rsa_key.pem out of version control.")
}

func displayUser(user string) string {
	if user == "" {
		return "<user>"
	}
	return user
}

// relative shortens paths below the working directory for display.
func relative(path string) string {
	wd, err := os.Getwd()
	if err != nil {
		return path
	}
	rel, err := filepath.Rel(wd, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return path
	}
	return rel
}
