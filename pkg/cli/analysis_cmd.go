package cli

import (
	"fmt"
	"net/url"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newCategoriesCmd(client *Client) *cobra.Command {
	return &cobra.Command{
		Use:   "categories",
		Short: "List the available analysis categories",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var resp struct {
				Categories []struct {
					Name        string `json:"name"`
					Description string `json:"description"`
				} `json:"categories"`
				Total int `json:"total"`
			}
			if err := client.Get("/api/v1/analysis/categories", &resp); err != nil {
				return err
			}

			if getOutputFormat(cmd) == "json" {
				return printJSON(cmd.OutOrStdout(), resp)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "CATEGORY\tDESCRIPTION")
			for _, c := range resp.Categories {
				fmt.Fprintf(tw, "%s\t%s\n", c.Name, c.Description)
			}
			return tw.Flush()
		},
	}
}

func newEstimateCmd(client *Client) *cobra.Command {
	var (
		tableCount int
		categories []string
	)

	cmd := &cobra.Command{
		Use:   "estimate",
		Short: "Estimate cost and time for a batch analysis",
		RunE: func(cmd *cobra.Command, _ []string) error {
			params := url.Values{}
			params.Set("table_count", fmt.Sprintf("%d", tableCount))
			if len(categories) > 0 {
				params.Set("categories", strings.Join(categories, ","))
			}

			var resp struct {
				EstimatedTotalCost   float64 `json:"estimated_total_cost"`
				CostPerTable         float64 `json:"cost_per_table"`
				CategoriesCount      int     `json:"categories_count"`
				TableCount           int     `json:"table_count"`
				EstimatedTimeMinutes float64 `json:"estimated_time_minutes"`
			}
			if err := client.Get("/api/v1/analysis/estimate-cost?"+params.Encode(), &resp); err != nil {
				return err
			}

			if getOutputFormat(cmd) == "json" {
				return printJSON(cmd.OutOrStdout(), resp)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Tables:          %d\n", resp.TableCount)
			fmt.Fprintf(out, "Categories:      %d\n", resp.CategoriesCount)
			fmt.Fprintf(out, "Estimated cost:  $%.4f (total), $%.4f per table\n", resp.EstimatedTotalCost, resp.CostPerTable)
			fmt.Fprintf(out, "Estimated time:  %.1f minutes\n", resp.EstimatedTimeMinutes)
			return nil
		},
	}

	cmd.Flags().IntVar(&tableCount, "tables", 1, "Number of tables to analyze")
	cmd.Flags().StringSliceVar(&categories, "categories", nil, "Analysis categories (default: all)")
	return cmd
}

func newJobCmd(client *Client) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "job",
		Short: "Inspect batch analysis jobs",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "status <job-id>",
		Short: "Show the status of a batch job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp map[string]interface{}
			if err := client.Get("/api/v1/analysis/batch/"+args[0]+"/status", &resp); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "results <job-id>",
		Short: "Fetch the findings of a completed batch job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp map[string]interface{}
			if err := client.Get("/api/v1/analysis/batch/"+args[0]+"/results", &resp); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp)
		},
	})

	return cmd
}
