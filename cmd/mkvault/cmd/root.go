package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mknotes/mkvault/notes"
	"github.com/mknotes/mkvault/remote"
	bboltstorage "github.com/mknotes/mkvault/storage/bbolt"
	"github.com/mknotes/mkvault/vault"
)

// Local namespace for CLI bookkeeping, separate from the vault and
// security namespaces the engine owns.
const (
	nsCLI          = "mkvault_cli"
	keyPrincipalID = "principal_id"
)

var (
	cfgFile string

	kvStore   *bboltstorage.Store
	noteStore *notes.Store
	keys      *vault.KeyManager
	legacy    *vault.Legacy
	locker    *vault.AutoLock
)

var rootCmd = &cobra.Command{
	Use:   "mkvault",
	Short: "MKVault is the local secrets engine behind MKNotes",
	Long: `A local vault engine that derives keys from a master password, keeps
note fields encrypted at rest, and mirrors wrapped key material to an
object store for recovery after reinstall.`,
	PersistentPreRunE:  openEngine,
	PersistentPostRunE: closeEngine,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.mkvault.yaml)")
	rootCmd.PersistentFlags().String("data-dir", "", "directory holding the vault and note databases")
	rootCmd.PersistentFlags().Bool("verbose", false, "log engine internals")

	bindFlagOrPanic("data_dir", "data-dir")
	bindFlagOrPanic("verbose", "verbose")
}

func bindFlagOrPanic(configKey, flagName string) {
	if err := viper.BindPFlag(configKey, rootCmd.PersistentFlags().Lookup(flagName)); err != nil {
		panic(fmt.Sprintf("failed to bind %s flag: %v", flagName, err))
	}
}

func initConfig() {
	setDefaults()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
		}
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".mkvault")
	}

	viper.SetEnvPrefix("MKVAULT")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			fmt.Fprintf(os.Stderr, "Error reading config file: %v\n", err)
		}
	}
}

func setDefaults() {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	viper.SetDefault("data_dir", filepath.Join(home, ".mkvault"))
	viper.SetDefault("remote.use_ssl", true)
	viper.SetDefault("remote.region", "us-east-1")
}

func openEngine(cmd *cobra.Command, args []string) error {
	switch cmd.Name() {
	case "help", "completion", "__complete", "version":
		return nil
	}

	dataDir := viper.GetString("data_dir")
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	var err error
	kvStore, err = bboltstorage.NewStoreFromFile(filepath.Join(dataDir, "vault.db"), nil)
	if err != nil {
		return fmt.Errorf("failed to open vault storage: %w", err)
	}

	noteStore, err = notes.Open(filepath.Join(dataDir, "mknotes.db"))
	if err != nil {
		return fmt.Errorf("failed to open note database: %w", err)
	}

	return buildKeyManager(cmd.Context())
}

// buildKeyManager assembles the engine over the open stores. Init calls it
// again after persisting a fresh principal id so its first push lands.
func buildKeyManager(ctx context.Context) error {
	opts := []vault.Option{vault.WithLogger(engineLogger())}

	mirror, principal, err := configuredMirror(ctx)
	if err != nil {
		return err
	}
	if mirror != nil {
		opts = append(opts, vault.WithMirror(mirror, principal))
	}

	keys = vault.NewKeyManager(kvStore, opts...)
	legacy = vault.NewLegacy(kvStore)
	locker = vault.NewAutoLock(keys)
	return nil
}

func engineLogger() *slog.Logger {
	level := slog.LevelWarn
	if viper.GetBool("verbose") {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// configuredMirror connects to the object store when the config names one.
// Without an endpoint and bucket the engine runs purely local.
func configuredMirror(ctx context.Context) (remote.Mirror, string, error) {
	endpoint := viper.GetString("remote.endpoint")
	bucket := viper.GetString("remote.bucket")
	if endpoint == "" || bucket == "" {
		return nil, "", nil
	}

	principal := storedPrincipal()
	if principal == "" {
		// No id yet; init creates one. Until then the engine stays local.
		return nil, "", nil
	}

	mirror, err := remote.NewS3Mirror(ctx, remote.S3Config{
		Endpoint:        endpoint,
		AccessKeyID:     viper.GetString("remote.access_key"),
		SecretAccessKey: viper.GetString("remote.secret_key"),
		Bucket:          bucket,
		UseSSL:          viper.GetBool("remote.use_ssl"),
		Region:          viper.GetString("remote.region"),
	})
	if err != nil {
		return nil, "", fmt.Errorf("failed to connect to metadata mirror: %w", err)
	}
	return mirror, principal, nil
}

// storedPrincipal resolves the principal id: explicit config wins, then the
// one persisted by init.
func storedPrincipal() string {
	if p := viper.GetString("remote.principal"); p != "" {
		return p
	}
	p, err := kvStore.Get(nsCLI, keyPrincipalID)
	if err != nil {
		return ""
	}
	return p
}

func closeEngine(cmd *cobra.Command, args []string) error {
	var first error
	if noteStore != nil {
		if err := noteStore.Close(); err != nil {
			first = err
		}
	}
	if kvStore != nil {
		if err := kvStore.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
