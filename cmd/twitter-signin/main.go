package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	// .env es opcional: en prod las variables vienen del entorno.
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath = envOr("CONFIG_PATH", "")

	root := &cobra.Command{
		Use:           "twitter-signin",
		Short:         "Login con Twitter (OAuth 1.0a) con pinning de certificados",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", configPath, "Archivo YAML de configuración (env CONFIG_PATH); vacío = solo env")

	root.AddCommand(newServeCmd(&configPath))
	root.AddCommand(newSignCmd())
	root.AddCommand(newPinsCmd(&configPath))
	return root
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
