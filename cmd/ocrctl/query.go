package main

import (
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status <job-id>",
	Short: "Print the current record of a job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rec, err := api.Status(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), rec)
	},
}

var resultCmd = &cobra.Command{
	Use:   "result <job-id>",
	Short: "Print a job's result, or its record if it has not finished",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rec, err := api.Result(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if contentOnly && rec.Result != nil {
			_, err := cmd.OutOrStdout().Write([]byte(rec.Result.Content))
			return err
		}
		return printJSON(cmd.OutOrStdout(), rec)
	},
}

var contentOnly bool

func init() {
	resultCmd.Flags().BoolVar(&contentOnly, "content", false, "Print only the extracted content")
	rootCmd.AddCommand(statusCmd, resultCmd)
}
