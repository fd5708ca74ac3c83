package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

// NewRunCmd создаёт группу команд для управления runs.
func NewRunCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Manage runs",
	}

	cmd.AddCommand(
		newRunListCmd(clientFn, outputFn),
		newRunTriggerCmd(clientFn, outputFn),
		newRunShowCmd(clientFn, outputFn),
		newRunCancelCmd(clientFn, outputFn),
		newRunRerunCmd(clientFn, outputFn),
		newRunLogsCmd(clientFn, outputFn),
		newRunWatchCmd(clientFn, outputFn),
	)

	return cmd
}

func newRunListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var pipelineID string
	var status string
	var repo string
	var branch string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			runs, err := client.ListRuns(ListRunsOpts{
				PipelineID: pipelineID,
				Status:     status,
				Repo:       repo,
				Branch:     branch,
				Limit:      limit,
			})
			if err != nil {
				return err
			}

			headers := []string{"ID", "PIPELINE_ID", "STATUS", "TRIGGERED_BY", "CREATED"}
			rows := make([][]string, len(runs))
			for i, r := range runs {
				rows[i] = []string{r.ID, r.PipelineID, r.Status, r.TriggeredBy, r.CreatedAt}
			}

			out.Print(headers, rows, runs)
			return nil
		},
	}

	cmd.Flags().StringVar(&pipelineID, "pipeline-id", "", "Filter by pipeline ID")
	cmd.Flags().StringVar(&status, "status", "", "Filter by status (queued, running, success, failed, cancelled)")
	cmd.Flags().StringVar(&repo, "repo", "", "Filter by repository")
	cmd.Flags().StringVar(&branch, "branch", "", "Filter by branch")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of results")

	return cmd
}

func newRunTriggerCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var repo string
	var branch string
	var triggeredBy string

	cmd := &cobra.Command{
		Use:   "trigger PIPELINE_ID",
		Short: "Trigger a new run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			run, err := client.TriggerRun(args[0], TriggerRunRequest{
				Repo:        repo,
				Branch:      branch,
				TriggeredBy: triggeredBy,
			})
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Run triggered: %s", run.ID))
			out.Print(
				[]string{"ID", "PIPELINE_ID", "STATUS", "CREATED"},
				[][]string{{run.ID, run.PipelineID, run.Status, run.CreatedAt}},
				run,
			)
			return nil
		},
	}

	cmd.Flags().StringVar(&repo, "repo", "", "Repository the run is for")
	cmd.Flags().StringVar(&branch, "branch", "", "Branch the run is for")
	cmd.Flags().StringVar(&triggeredBy, "triggered-by", "", "Who or what triggered the run")

	return cmd
}

func newRunShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show run details with steps",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			run, err := client.GetRun(args[0])
			if err != nil {
				return err
			}

			if out.jsonMode {
				out.JSON(run)
				return nil
			}

			out.Table(
				[]string{"ID", "PIPELINE_ID", "STATUS", "ERROR", "CREATED"},
				[][]string{{run.ID, run.PipelineID, run.Status, run.Error, run.CreatedAt}},
			)

			if len(run.Steps) > 0 {
				out.Line("")
				rows := make([][]string, len(run.Steps))
				for i, s := range run.Steps {
					rows[i] = []string{
						fmt.Sprintf("%d", s.Seq), s.Name, s.Stage, s.Status,
						fmt.Sprintf("%dms", s.DurationMs),
					}
				}
				out.Table([]string{"SEQ", "NAME", "STAGE", "STATUS", "DURATION"}, rows)
			}
			return nil
		},
	}
}

func newRunCancelCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel ID",
		Short: "Cancel a queued or running run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			run, err := client.CancelRun(args[0])
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Run %s: %s", run.ID, run.Status))
			return nil
		},
	}
}

func newRunRerunCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "rerun ID",
		Short: "Restart a run with the same parameters",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			run, err := client.RerunRun(args[0])
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Run restarted: %s", run.ID))
			return nil
		},
	}
}

func newRunLogsCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "logs RUN_ID",
		Short: "Show stored logs of a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			lines, err := client.RunLogs(args[0], limit)
			if err != nil {
				return err
			}

			if out.jsonMode {
				out.JSON(lines)
				return nil
			}

			for _, line := range lines {
				out.Line("%s [%s] %s", line.Ts, line.Level, line.Message)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of lines")

	return cmd
}

func newRunWatchCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "watch RUN_ID",
		Short: "Stream run events until the run finishes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			// errRunFinished останавливает поток после финального статуса.
			errRunFinished := fmt.Errorf("run finished")

			err := client.WatchRun(cmd.Context(), args[0], func(event string, data json.RawMessage) error {
				switch event {
				case "run:status":
					var payload struct {
						Status string `json:"status"`
						Error  string `json:"error"`
					}
					if err := json.Unmarshal(data, &payload); err != nil {
						return nil
					}
					out.Line("run %s", payload.Status)
					if payload.Error != "" {
						out.Line("  error: %s", payload.Error)
					}
					switch payload.Status {
					case "success", "failed", "cancelled":
						return errRunFinished
					}
				case "run:step:update":
					var payload struct {
						Name   string `json:"name"`
						Stage  string `json:"stage"`
						Status string `json:"status"`
					}
					if err := json.Unmarshal(data, &payload); err != nil {
						return nil
					}
					out.Line("  [%s] %s: %s", payload.Stage, payload.Name, payload.Status)
				case "run:log":
					var payload struct {
						Level   string `json:"level"`
						Message string `json:"message"`
					}
					if err := json.Unmarshal(data, &payload); err != nil {
						return nil
					}
					out.Line("    %s %s", payload.Level, payload.Message)
				case "run:cancelled":
					out.Line("run cancelled")
					return errRunFinished
				}
				return nil
			})
			if err != nil && err != errRunFinished {
				return err
			}
			return nil
		},
	}
}
