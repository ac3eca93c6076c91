package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	serverURL   string
	token       string
	providerKey string
	timeout     time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "brandbook-cli",
	Short: "A CLI client for the brand playbook assistant",
	Long: `A command-line interface for uploading brand guideline documents to the
playbook assistant and asking questions about them.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Whoops. There was an error while executing your CLI: %s\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", envOr("BRANDBOOK_SERVER", "http://localhost:8080"), "playbook assistant base URL")
	rootCmd.PersistentFlags().StringVar(&token, "token", os.Getenv("BRANDBOOK_TOKEN"), "bearer token when the server uses jwt auth")
	rootCmd.PersistentFlags().StringVar(&providerKey, "provider-key", os.Getenv("BRANDBOOK_PROVIDER_KEY"), "model provider API key sent with this call only")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 5*time.Minute, "request timeout")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func newClient() *Client {
	return NewClient(serverURL, token, providerKey, timeout)
}
