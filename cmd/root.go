package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command for the gmail-mcp-server application
var rootCmd = &cobra.Command{
	Use:   "gmail-mcp-server",
	Short: "MCP server that brokers access to Gmail via Google OAuth",
	Long: `gmail-mcp-server is a Model Context Protocol server that gives AI
assistants access to a user's Gmail account.

It issues its own session tokens to MCP clients, walks users through the
Google OAuth consent flow, and keeps refresh tokens encrypted at rest.`,
	SilenceUsage: true,
}

// version will be set by main
var version = "dev"

// SetVersion sets the version for the root command
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "gmail-mcp-server version %s\n" .Version}}`)

	// If no subcommand is provided, run the serve command by default
	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newGenerateSecretsCmd())
	rootCmd.AddCommand(newVersionCmd())
}
