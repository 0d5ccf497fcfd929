package cli

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/shaiso/courier/internal/domain"
	"github.com/shaiso/courier/internal/repo"
)

// NewOutcomesCmd создаёт группу команд для просмотра outcomes.
func NewOutcomesCmd(backendFn func() Backend, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "outcomes",
		Short: "Inspect recorded task outcomes",
	}

	cmd.AddCommand(
		newOutcomesListCmd(backendFn, outputFn),
		newOutcomesShowCmd(backendFn, outputFn),
		newOutcomesStatsCmd(backendFn, outputFn),
	)

	return cmd
}

func newOutcomesListCmd(backendFn func() Backend, outputFn func() *Output) *cobra.Command {
	var status string
	var kind string
	var since time.Duration
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List outcomes, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := repo.OutcomeFilter{
				Kind:  domain.TaskKind(kind),
				Limit: limit,
			}
			if status != "" {
				s, ok := domain.ParseOutcomeStatus(status)
				if !ok {
					return fmt.Errorf("invalid status %q, expected succeeded or failed-permanent", status)
				}
				filter.Status = s
			}
			if since > 0 {
				filter.Since = time.Now().Add(-since)
			}

			outcomes, err := backendFn().Outcomes(cmd.Context())
			if err != nil {
				return err
			}
			list, err := outcomes.List(cmd.Context(), filter)
			if err != nil {
				return err
			}

			headers := []string{"TASK_ID", "KIND", "STATUS", "ATTEMPTS", "COMPLETED", "DETAIL"}
			rows := make([][]string, len(list))
			for i, o := range list {
				rows[i] = outcomeRow(o)
			}

			outputFn().Print(headers, rows, list)
			return nil
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "Filter by status (succeeded, failed-permanent)")
	cmd.Flags().StringVar(&kind, "kind", "", "Filter by task kind")
	cmd.Flags().DurationVar(&since, "since", 0, "Only outcomes completed within this window (e.g. 24h)")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum number of results")

	return cmd
}

func newOutcomesShowCmd(backendFn func() Backend, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show TASK_ID",
		Short: "Show the outcome of a task and how often it was delivered",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			backend := backendFn()
			outcomes, err := backend.Outcomes(cmd.Context())
			if err != nil {
				return err
			}
			receipts, err := backend.Receipts(cmd.Context())
			if err != nil {
				return err
			}

			taskID := args[0]
			o, err := outcomes.GetByTaskID(cmd.Context(), taskID)
			if err != nil && !errors.Is(err, repo.ErrNotFound) {
				return err
			}

			// Аудит best-effort: его отсутствие не мешает показать outcome.
			rc, rcErr := receipts.Get(cmd.Context(), taskID)
			if rcErr != nil && !errors.Is(rcErr, repo.ErrNotFound) {
				return rcErr
			}

			if o == nil {
				if rc != nil {
					return fmt.Errorf("no outcome for task %s yet (delivered %d times)", taskID, rc.Deliveries)
				}
				return fmt.Errorf("no outcome for task %s (not processed yet?)", taskID)
			}

			deliveries := "-"
			result := outcomeDetail{TaskOutcome: *o}
			if rc != nil {
				deliveries = strconv.Itoa(rc.Deliveries)
				result.Deliveries = rc.Deliveries
			}

			row := slices.Insert(outcomeRow(*o), 4, deliveries)

			outputFn().Print(
				[]string{"TASK_ID", "KIND", "STATUS", "ATTEMPTS", "DELIVERIES", "COMPLETED", "DETAIL"},
				[][]string{row},
				result,
			)
			return nil
		},
	}
}

// outcomeDetail — outcome вместе с числом доставок брокером.
type outcomeDetail struct {
	domain.TaskOutcome
	Deliveries int `json:"deliveries,omitempty"`
}

func newOutcomesStatsCmd(backendFn func() Backend, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Count outcomes by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			outcomes, err := backendFn().Outcomes(cmd.Context())
			if err != nil {
				return err
			}

			counts, err := outcomes.CountByStatus(cmd.Context())
			if err != nil {
				return err
			}

			statuses := []domain.OutcomeStatus{domain.OutcomeSucceeded, domain.OutcomeFailedPermanent}
			rows := make([][]string, len(statuses))
			data := make(map[string]int64, len(statuses))
			for i, s := range statuses {
				rows[i] = []string{s.String(), strconv.FormatInt(counts[s], 10)}
				data[s.String()] = counts[s]
			}

			outputFn().Print([]string{"STATUS", "COUNT"}, rows, data)
			return nil
		},
	}
}

func outcomeRow(o domain.TaskOutcome) []string {
	return []string{
		o.TaskID,
		string(o.Kind),
		o.Status.String(),
		strconv.Itoa(o.Attempts),
		o.CompletedAt.Format(time.RFC3339),
		o.Detail,
	}
}
