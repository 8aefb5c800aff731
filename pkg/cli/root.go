package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		output, _ := rootCmd.PersistentFlags().GetString("output")
		if output == "json" {
			_ = printJSON(os.Stdout, map[string]interface{}{"error": err.Error()})
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	var (
		host   string
		output string
	)

	rootCmd := &cobra.Command{
		Use:           "tablectl",
		Short:         "Table analysis engine CLI",
		Long:          "Command-line interface for the table analysis workflow engine API.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&host, "host", "http://localhost:8080", "API host URL")
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", "table", "Output format (table, json)")

	client := NewClient(host)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		// Precedence: flag > env > default.
		if !cmd.Flags().Changed("host") {
			if v := os.Getenv("TABLECTL_HOST"); v != "" {
				host = v
			}
		}
		if !cmd.Flags().Changed("output") {
			if v := os.Getenv("TABLECTL_OUTPUT"); v != "" {
				output = v
			}
		}
		if err := validateOutputFormat(output); err != nil {
			return err
		}
		client.BaseURL = host
		return nil
	}

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newCategoriesCmd(client))
	rootCmd.AddCommand(newEstimateCmd(client))
	rootCmd.AddCommand(newWorkflowCmd(client))
	rootCmd.AddCommand(newJobCmd(client))

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the CLI version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}
