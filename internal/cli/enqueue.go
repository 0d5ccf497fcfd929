package cli

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/shaiso/courier/internal/domain"
)

// NewEnqueueCmd создаёт группу команд для постановки задач в очередь.
func NewEnqueueCmd(backendFn func() Backend, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "Publish tasks to the worker queue",
	}

	cmd.AddCommand(
		newEnqueueNotificationCmd(backendFn, outputFn),
		newEnqueueWelcomeCmd(backendFn, outputFn),
	)

	return cmd
}

func newEnqueueNotificationCmd(backendFn func() Backend, outputFn func() *Output) *cobra.Command {
	var id string
	var payload domain.NotificationPayload

	cmd := &cobra.Command{
		Use:   "notification",
		Short: "Enqueue a send-notification task",
		RunE: func(cmd *cobra.Command, args []string) error {
			if id == "" {
				id = uuid.NewString()
			}
			task, err := newTask(id, domain.TaskKindSendNotification, payload)
			if err != nil {
				return err
			}
			return publish(cmd, backendFn(), outputFn(), task)
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "Task ID (idempotency key, random UUID if not specified)")
	cmd.Flags().StringVar(&payload.Recipient, "recipient", "", "Telegram chat ID or @username")
	cmd.Flags().StringVar(&payload.Content, "content", "", "Message text")
	_ = cmd.MarkFlagRequired("recipient")
	_ = cmd.MarkFlagRequired("content")

	return cmd
}

func newEnqueueWelcomeCmd(backendFn func() Backend, outputFn func() *Output) *cobra.Command {
	var id string
	var payload domain.WelcomePayload

	cmd := &cobra.Command{
		Use:   "welcome",
		Short: "Enqueue a send-welcome task",
		RunE: func(cmd *cobra.Command, args []string) error {
			if payload.UserID <= 0 {
				return fmt.Errorf("--user-id must be a positive integer")
			}
			// одно приветствие на пользователя, как у legacy-продюсера
			if id == "" {
				id = "welcome:" + strconv.FormatInt(payload.UserID, 10)
			}
			task, err := newTask(id, domain.TaskKindSendWelcome, payload)
			if err != nil {
				return err
			}
			return publish(cmd, backendFn(), outputFn(), task)
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "Task ID (welcome:<user-id> if not specified)")
	cmd.Flags().Int64Var(&payload.UserID, "user-id", 0, "Registered user ID")
	cmd.Flags().StringVar(&payload.TelegramUsername, "username", "", "Telegram username or chat ID")
	cmd.Flags().StringVar(&payload.Name, "name", "", "Display name (username if not specified)")
	_ = cmd.MarkFlagRequired("user-id")
	_ = cmd.MarkFlagRequired("username")

	return cmd
}

func newTask(id string, kind domain.TaskKind, payload any) (*domain.Task, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return &domain.Task{
		ID:         id,
		Kind:       kind,
		Payload:    raw,
		EnqueuedAt: time.Now().UTC(),
	}, nil
}

func publish(cmd *cobra.Command, backend Backend, out *Output, task *domain.Task) error {
	ctx := cmd.Context()

	p, err := backend.Publisher(ctx)
	if err != nil {
		return err
	}
	if err := p.PublishTask(ctx, task); err != nil {
		return fmt.Errorf("publish task: %w", err)
	}

	out.Success(fmt.Sprintf("Task enqueued: %s", task.ID))
	out.Print(
		[]string{"ID", "KIND", "ENQUEUED"},
		[][]string{{task.ID, string(task.Kind), task.EnqueuedAt.Format(time.RFC3339)}},
		task,
	)
	return nil
}
