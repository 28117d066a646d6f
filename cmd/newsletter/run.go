package main

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"TopicNewsletter/internal/usecase"
)

func runCMD(v *viper.Viper) *cobra.Command {
	var (
		topics      []string
		parallelism int
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute one newsletter run and exit",
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			application, err := newApplication(cmd, v)
			if err != nil {
				return err
			}
			defer func() { err = errors.Join(err, application.Close()) }()

			res, runErr := application.RunOnce(cmd.Context(), topics, parallelism)
			printResult(cmd.OutOrStdout(), res)
			if usecase.IsSkipped(runErr) {
				fmt.Fprintf(cmd.OutOrStdout(), "skipped: %v\n", runErr)
				return nil
			}
			return runErr
		},
	}
	cmd.Flags().StringArrayVarP(&topics, "topic", "t", nil, "restrict the run to a configured sub-topic (repeatable)")
	cmd.Flags().IntVarP(&parallelism, "parallel", "p", 0, "topics processed concurrently (0 keeps config)")
	return cmd
}

func printResult(w io.Writer, res usecase.Result) {
	if res.State == nil {
		return
	}
	m := res.State.Metrics(time.Now())
	fmt.Fprintf(w, "run %s: %s\n", res.State.RunID, res.State.Status)
	fmt.Fprintf(w, "  topics: %d processed, %d failed\n", m.TopicsProcessed, m.TopicsFailed)
	fmt.Fprintf(w, "  articles: %d, average quality %.2f\n", m.TotalArticles, m.AverageQuality)
	fmt.Fprintf(w, "  errors: %d, warnings: %d, duration %s\n", m.ErrorCount, m.WarningCount, m.Duration)
	if nl := res.Newsletter; nl != nil {
		fmt.Fprintf(w, "  newsletter: %s\n", nl.Subject)
		for _, path := range []string{nl.Artifacts.MarkdownPath, nl.Artifacts.HTMLPath, nl.Artifacts.JSONPath} {
			if path != "" {
				fmt.Fprintf(w, "    %s\n", path)
			}
		}
	}
}
