package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/henrycmeen/dimo/internal/utils"
	"github.com/henrycmeen/dimo/internal/validate"
	"github.com/henrycmeen/dimo/internal/version"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	envPrefix      = "DIMO"
	configFileName = "dimo"
	envFileName    = ".env"
)

var home, _ = os.UserHomeDir()

func newRootCmd() *cobra.Command {
	v := viper.New()

	rootCmd := &cobra.Command{
		Use:           "dimo",
		Short:         "Keep archival METS metadata in step with its content",
		Version:       version.Detailed(),
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(cmd, v)
		},
	}

	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "Workspace root")
	rootCmd.PersistentFlags().StringP("config", "c", "", "Config file (default: dimo.yaml in the workspace or ~/.config/dimo)")

	rootCmd.AddCommand(newUpdateMetsCmd(v))
	rootCmd.AddCommand(newInitCmd(v))
	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	err := newRootCmd().ExecuteContext(ctx)
	stop()
	validate.Shutdown()

	if err != nil {
		fmt.Fprintln(os.Stderr, red.Render("Error:"), err)
		os.Exit(exitCode(err))
	}
}

// loadConfig layers flags over DIMO_* env vars over the config file. A .env in
// the workspace is loaded first and never overrides the real environment.
func loadConfig(cmd *cobra.Command, v *viper.Viper) error {
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlag("workspace", cmd.Flag("workspace")); err != nil {
		return err
	}
	ws := v.GetString("workspace")

	envFile := filepath.Join(ws, envFileName)
	if utils.FileExists(envFile) {
		if err := godotenv.Load(envFile); err != nil {
			return fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	if f := cmd.Flag("config"); f != nil && f.Changed {
		v.SetConfigFile(f.Value.String())
	} else {
		v.AddConfigPath(ws)
		v.AddConfigPath(filepath.Join(home, ".config", "dimo"))
		v.SetConfigName(configFileName)
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		enoent := errors.Is(err, os.ErrNotExist)
		_, ok := err.(viper.ConfigFileNotFoundError)
		if !enoent && !ok {
			return fmt.Errorf("config read '%s': %w", v.ConfigFileUsed(), err)
		}
	}
	return nil
}
