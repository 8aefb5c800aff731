package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newWorkflowCmd(client *Client) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workflow",
		Short: "Manage complete analysis workflows",
	}

	cmd.AddCommand(newWorkflowStartCmd(client))
	cmd.AddCommand(newWorkflowStatusCmd(client))
	cmd.AddCommand(newWorkflowResultsCmd(client))
	cmd.AddCommand(newWorkflowCancelCmd(client))
	cmd.AddCommand(newWorkflowListCmd(client))
	cmd.AddCommand(newWorkflowEstimateCmd(client))

	return cmd
}

func newWorkflowStartCmd(client *Client) *cobra.Command {
	var (
		metadataSource   string
		metadataTable    string
		targetSources    []string
		categories       []string
		batchSize        int
		maxConcurrent    int
		noUpdate         bool
		qualityThreshold float64
	)

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a complete analysis workflow",
		RunE: func(cmd *cobra.Command, _ []string) error {
			autoUpdate := !noUpdate
			body := map[string]interface{}{
				"metadata_source_id": metadataSource,
				"metadata_table_id":  metadataTable,
				"auto_update":        &autoUpdate,
			}
			if len(targetSources) > 0 {
				body["target_source_ids"] = targetSources
			}
			if len(categories) > 0 {
				body["categories"] = categories
			}
			if batchSize > 0 {
				body["batch_size"] = batchSize
			}
			if maxConcurrent > 0 {
				body["max_concurrent"] = maxConcurrent
			}
			if qualityThreshold > 0 {
				body["quality_threshold"] = qualityThreshold
			}

			var resp struct {
				WorkflowID string `json:"workflow_id"`
				Status     string `json:"status"`
				Message    string `json:"message"`
			}
			if err := client.Post("/api/v1/workflow/start-complete-analysis", body, &resp); err != nil {
				return err
			}

			if getOutputFormat(cmd) == "json" {
				return printJSON(cmd.OutOrStdout(), resp)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Workflow %s %s\n", resp.WorkflowID, resp.Status)
			return nil
		},
	}

	cmd.Flags().StringVar(&metadataSource, "metadata-source", "", "Source ID containing the metadata table")
	cmd.Flags().StringVar(&metadataTable, "metadata-table", "", "Table ID for storing analysis results")
	cmd.Flags().StringSliceVar(&targetSources, "sources", nil, "Specific source IDs to analyze (default: all)")
	cmd.Flags().StringSliceVar(&categories, "categories", nil, "Analysis categories (default: all)")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "Tables per processing batch")
	cmd.Flags().IntVar(&maxConcurrent, "max-concurrent", 0, "Maximum concurrent table analyses")
	cmd.Flags().BoolVar(&noUpdate, "no-update", false, "Skip writing results to the metadata table")
	cmd.Flags().Float64Var(&qualityThreshold, "quality-threshold", 0, "Minimum confidence for kept findings")
	return cmd
}

func newWorkflowStatusCmd(client *Client) *cobra.Command {
	return &cobra.Command{
		Use:   "status <workflow-id>",
		Short: "Show workflow status and progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp struct {
				ID       string `json:"workflow_id"`
				Status   string `json:"status"`
				Progress struct {
					Phase     string `json:"phase"`
					Completed int    `json:"completed"`
					Total     int    `json:"total"`
				} `json:"progress"`
				Error string `json:"error"`
			}
			if err := client.Get("/api/v1/workflow/status/"+args[0], &resp); err != nil {
				return err
			}

			if getOutputFormat(cmd) == "json" {
				return printJSON(cmd.OutOrStdout(), resp)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Status:    %s\n", resp.Status)
			fmt.Fprintf(out, "Phase:     %s (%d/%d)\n", resp.Progress.Phase, resp.Progress.Completed, resp.Progress.Total)
			if resp.Error != "" {
				fmt.Fprintf(out, "Error:     %s\n", resp.Error)
			}
			return nil
		},
	}
}

func newWorkflowResultsCmd(client *Client) *cobra.Command {
	return &cobra.Command{
		Use:   "results <workflow-id>",
		Short: "Fetch the summary of a completed workflow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp map[string]interface{}
			if err := client.Get("/api/v1/workflow/results/"+args[0], &resp); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp)
		},
	}
}

func newWorkflowCancelCmd(client *Client) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <workflow-id>",
		Short: "Request cancellation of a running workflow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp struct {
				Message string `json:"message"`
			}
			if err := client.Delete("/api/v1/workflow/"+args[0], &resp); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), resp.Message)
			return nil
		},
	}
}

func newWorkflowListCmd(client *Client) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List workflows bucketed by state",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var resp struct {
				Active []struct {
					ID       string `json:"workflow_id"`
					State    string `json:"status"`
					Progress struct {
						Phase string `json:"phase"`
					} `json:"progress"`
				} `json:"active_workflows"`
				Completed []struct {
					ID    string `json:"workflow_id"`
					State string `json:"status"`
				} `json:"completed_workflows"`
				Failed []struct {
					ID    string `json:"workflow_id"`
					State string `json:"status"`
				} `json:"failed_workflows"`
				Total int `json:"total_workflows"`
			}
			if err := client.Get("/api/v1/workflow/active-workflows", &resp); err != nil {
				return err
			}

			if getOutputFormat(cmd) == "json" {
				return printJSON(cmd.OutOrStdout(), resp)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "WORKFLOW\tSTATUS\tPHASE")
			for _, j := range resp.Active {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", j.ID, j.State, j.Progress.Phase)
			}
			for _, j := range resp.Completed {
				fmt.Fprintf(tw, "%s\t%s\t\n", j.ID, j.State)
			}
			for _, j := range resp.Failed {
				fmt.Fprintf(tw, "%s\t%s\t\n", j.ID, j.State)
			}
			return tw.Flush()
		},
	}
}

func newWorkflowEstimateCmd(client *Client) *cobra.Command {
	var (
		tableCount int
		categories []string
	)

	cmd := &cobra.Command{
		Use:   "estimate",
		Short: "Estimate cost and time for a complete workflow",
		RunE: func(cmd *cobra.Command, _ []string) error {
			body := map[string]interface{}{}
			if tableCount > 0 {
				body["table_count"] = tableCount
			}
			if len(categories) > 0 {
				body["categories"] = categories
			}

			var resp map[string]interface{}
			if err := client.Post("/api/v1/workflow/estimate-workflow-cost", body, &resp); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp)
		},
	}

	cmd.Flags().IntVar(&tableCount, "tables", 0, "Expected table count (default: server heuristic)")
	cmd.Flags().StringSliceVar(&categories, "categories", nil, "Analysis categories (default: all)")
	return cmd
}
