package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/shaiso/promptflow/internal/domain"
	"github.com/shaiso/promptflow/internal/engine"
)

// NewRequestCmd создаёт группу команд для управления запросами.
func NewRequestCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "request",
		Aliases: []string{"req"},
		Short:   "Manage prompt pipeline requests",
	}

	cmd.AddCommand(
		newRequestListCmd(clientFn, outputFn),
		newRequestCreateCmd(clientFn, outputFn),
		newRequestShowCmd(clientFn, outputFn),
		newRequestProgressCmd(clientFn, outputFn),
		newRequestResultCmd(clientFn, outputFn),
		newRequestActionCmd(clientFn, outputFn, "resume", "Resume from the first unfinished step"),
		newRequestActionCmd(clientFn, outputFn, "reprocess", "Run all steps again from scratch"),
		newRequestActionCmd(clientFn, outputFn, "cancel", "Cancel an active request"),
		newRequestDeleteCmd(clientFn, outputFn),
	)

	return cmd
}

func newRequestListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var status string
	var limit, offset int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List requests",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			requests, err := client.ListRequests(ListRequestsOpts{
				Status: status,
				Limit:  limit,
				Offset: offset,
			})
			if err != nil {
				return err
			}

			headers := []string{"PROTOCOL", "STATUS", "CREATED", "DURATION_MS", "ERROR"}
			rows := make([][]string, len(requests))
			for i, r := range requests {
				rows[i] = []string{r.Protocol, r.Status, r.CreatedAt, formatDuration(r.DurationMs), r.Error}
			}

			out.Print(headers, rows, requests)
			return nil
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "Filter by status (created, processing, completed, failed)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of results")
	cmd.Flags().IntVar(&offset, "offset", 0, "Number of results to skip")

	return cmd
}

func newRequestCreateCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var file string
	var sched ScheduleOpts

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Submit a pipeline from a YAML or JSON file",
		RunE: func(cmd *cobra.Command, args []string) error {
			spec, err := LoadSpecFile(file)
			if err != nil {
				return err
			}

			client := clientFn()
			out := outputFn()

			created, err := client.CreateRequest(spec, sched)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Request accepted: %s", created.Protocol))
			for _, order := range sortedKeys(created.Warnings) {
				out.Success(fmt.Sprintf("Warning: step %d has unbound placeholders: %s",
					order, strings.Join(created.Warnings[order], ", ")))
			}

			pairs := [][2]string{{"Protocol", created.Protocol}}
			if s := created.Schedule; s != nil {
				pairs = append(pairs,
					[2]string{"Cron", s.CronExpr},
					[2]string{"Timezone", s.Timezone},
					[2]string{"Next due", s.NextDueAt},
				)
			}
			out.KeyValues(pairs, created)
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Path to pipeline file, .yaml/.yml or .json (required)")
	cmd.Flags().StringVar(&sched.CronExpr, "cron", "", "Cron expression for repeated runs")
	cmd.Flags().StringVar(&sched.Timezone, "cron-timezone", "", "IANA timezone for the cron expression")
	cmd.Flags().StringVar(&sched.StartAt, "cron-start-at", "", "RFC 3339 time before which the schedule does not fire")
	cmd.Flags().StringVar(&sched.EndAt, "cron-end-at", "", "RFC 3339 time after which the schedule is disabled")
	cmd.MarkFlagRequired("file")

	return cmd
}

func newRequestShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show PROTOCOL",
		Short: "Show request details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := clientFn().GetRequest(args[0])
			if err != nil {
				return err
			}

			outputFn().KeyValues([][2]string{
				{"Protocol", req.Protocol},
				{"Status", req.Status},
				{"Created", req.CreatedAt},
				{"Started", req.StartedAt},
				{"Finished", req.FinishedAt},
				{"Duration", formatDuration(req.DurationMs)},
				{"Error", req.Error},
			}, req)
			return nil
		},
	}
}

func newRequestProgressCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "progress PROTOCOL",
		Short: "Show per-step progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			progress, err := clientFn().GetProgress(args[0])
			if err != nil {
				return err
			}

			headers := []string{"ORDER", "ENGINE", "MODEL", "DONE", "COMPLETED_AT"}
			rows := make([][]string, len(progress.Steps))
			for i, s := range progress.Steps {
				rows[i] = []string{strconv.Itoa(s.Order), s.Engine, s.Model, yesNo(s.Completed), s.CompletedAt}
			}

			if !out.jsonMode {
				out.Success(fmt.Sprintf("%s: %s (%d/%d steps)",
					progress.Protocol, progress.Status, progress.CompletedSteps, progress.TotalSteps))
				if progress.Error != "" {
					out.Error(progress.Error)
				}
			}
			out.Print(headers, rows, progress)
			return nil
		},
	}
}

func newRequestResultCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "result PROTOCOL",
		Short: "Print the aggregated result as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := clientFn().GetResult(args[0])
			if err != nil {
				return err
			}

			// Результат — произвольное дерево, таблицы для него нет.
			outputFn().JSON(result)
			return nil
		},
	}
}

func newRequestActionCmd(clientFn func() *Client, outputFn func() *Output, action, short string) *cobra.Command {
	return &cobra.Command{
		Use:   action + " PROTOCOL",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()

			var resp *ActionResponse
			var err error
			switch action {
			case "resume":
				resp, err = client.Resume(args[0])
			case "reprocess":
				resp, err = client.Reprocess(args[0])
			default:
				resp, err = client.Cancel(args[0])
			}
			if err != nil {
				return err
			}

			outputFn().Success(fmt.Sprintf("Request %s: %s accepted", resp.Protocol, resp.Action))
			return nil
		},
	}
}

func newRequestDeleteCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "delete PROTOCOL",
		Short: "Delete a request with its steps, results and schedules",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := clientFn().DeleteRequest(args[0]); err != nil {
				return err
			}

			outputFn().Success(fmt.Sprintf("Request deleted: %s", args[0]))
			return nil
		},
	}
}

// LoadSpecFile читает описание конвейера. Формат определяется по расширению:
// .yaml/.yml разбираются как YAML, остальное как JSON.
func LoadSpecFile(path string) (*domain.RequestSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read pipeline file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return engine.ParseRequestSpecYAML(data)
	default:
		return engine.ParseRequestSpec(data)
	}
}

func formatDuration(ms int64) string {
	if ms <= 0 {
		return ""
	}
	return strconv.FormatInt(ms, 10)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func sortedKeys(m map[int][]string) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}
