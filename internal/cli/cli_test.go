package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/courier/internal/domain"
	"github.com/shaiso/courier/internal/repo"
)

type fakeBackend struct {
	published  []*domain.Task
	publishErr error

	outcomes []domain.TaskOutcome
	counts   map[domain.OutcomeStatus]int64
	filter   repo.OutcomeFilter

	receipts map[string]*repo.Receipt
}

func (b *fakeBackend) Publisher(context.Context) (TaskPublisher, error) { return b, nil }
func (b *fakeBackend) Outcomes(context.Context) (OutcomeReader, error)  { return b, nil }
func (b *fakeBackend) Receipts(context.Context) (ReceiptReader, error)  { return b, nil }

func (b *fakeBackend) PublishTask(_ context.Context, task *domain.Task) error {
	if b.publishErr != nil {
		return b.publishErr
	}
	b.published = append(b.published, task)
	return nil
}

func (b *fakeBackend) GetByTaskID(_ context.Context, id string) (*domain.TaskOutcome, error) {
	for _, o := range b.outcomes {
		if o.TaskID == id {
			return &o, nil
		}
	}
	return nil, repo.ErrNotFound
}

func (b *fakeBackend) Get(_ context.Context, id string) (*repo.Receipt, error) {
	if rc, ok := b.receipts[id]; ok {
		return rc, nil
	}
	return nil, repo.ErrNotFound
}

func (b *fakeBackend) List(_ context.Context, f repo.OutcomeFilter) ([]domain.TaskOutcome, error) {
	b.filter = f
	return b.outcomes, nil
}

func (b *fakeBackend) CountByStatus(context.Context) (map[domain.OutcomeStatus]int64, error) {
	return b.counts, nil
}

// execute запускает root-команду с args и возвращает stdout и stderr.
func execute(t *testing.T, backend Backend, jsonMode bool, args ...string) (string, string, error) {
	t.Helper()

	var stdout, stderr bytes.Buffer
	root := &cobra.Command{Use: "courier", SilenceUsage: true, SilenceErrors: true}
	backendFn := func() Backend { return backend }
	outputFn := func() *Output { return NewOutputTo(jsonMode, &stdout, &stderr) }
	root.AddCommand(NewEnqueueCmd(backendFn, outputFn), NewOutcomesCmd(backendFn, outputFn))
	root.SetArgs(args)
	root.SetOut(&stderr)
	root.SetErr(&stderr)

	err := root.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func TestEnqueueNotification(t *testing.T) {
	backend := &fakeBackend{}

	stdout, stderr, err := execute(t, backend, false,
		"enqueue", "notification", "--recipient", "@alice", "--content", "hi", "--id", "t1")
	require.NoError(t, err)

	require.Len(t, backend.published, 1)
	task := backend.published[0]
	assert.Equal(t, "t1", task.ID)
	assert.Equal(t, domain.TaskKindSendNotification, task.Kind)
	assert.JSONEq(t, `{"recipient":"@alice","content":"hi"}`, string(task.Payload))
	assert.False(t, task.EnqueuedAt.IsZero())

	assert.Contains(t, stderr, "Task enqueued: t1")
	assert.Contains(t, stdout, "send-notification")
}

func TestEnqueueNotification_GeneratesID(t *testing.T) {
	backend := &fakeBackend{}

	_, _, err := execute(t, backend, false, "enqueue", "notification", "--recipient", "1", "--content", "x")
	require.NoError(t, err)

	require.Len(t, backend.published, 1)
	assert.Len(t, backend.published[0].ID, 36)
}

func TestEnqueueNotification_RequiredFlags(t *testing.T) {
	backend := &fakeBackend{}

	_, _, err := execute(t, backend, false, "enqueue", "notification", "--content", "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "recipient")
	assert.Empty(t, backend.published)
}

func TestEnqueueWelcome(t *testing.T) {
	backend := &fakeBackend{}

	_, _, err := execute(t, backend, true,
		"enqueue", "welcome", "--user-id", "42", "--username", "alice", "--name", "Алиса")
	require.NoError(t, err)

	require.Len(t, backend.published, 1)
	task := backend.published[0]
	assert.Equal(t, "welcome:42", task.ID)
	assert.Equal(t, domain.TaskKindSendWelcome, task.Kind)

	var p domain.WelcomePayload
	require.NoError(t, json.Unmarshal(task.Payload, &p))
	assert.Equal(t, int64(42), p.UserID)
	assert.Equal(t, "alice", p.TelegramUsername)
	assert.Equal(t, "Алиса", p.Name)
}

func TestEnqueue_PublishError(t *testing.T) {
	backend := &fakeBackend{publishErr: errors.New("publish not confirmed by broker")}

	_, _, err := execute(t, backend, false, "enqueue", "notification", "--recipient", "1", "--content", "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "publish task")
}

func sampleOutcomes() []domain.TaskOutcome {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return []domain.TaskOutcome{
		{TaskID: "t1", Kind: domain.TaskKindSendNotification, Status: domain.OutcomeSucceeded, Attempts: 1, CompletedAt: at},
		{TaskID: "t2", Kind: "unknown-kind", Status: domain.OutcomeFailedPermanent, CompletedAt: at,
			Detail: "unknown task kind: \"unknown-kind\""},
	}
}

func TestOutcomesList(t *testing.T) {
	backend := &fakeBackend{outcomes: sampleOutcomes()}

	stdout, _, err := execute(t, backend, false,
		"outcomes", "list", "--status", "failed-permanent", "--kind", "unknown-kind", "--since", "1h", "--limit", "10")
	require.NoError(t, err)

	assert.Equal(t, domain.OutcomeFailedPermanent, backend.filter.Status)
	assert.Equal(t, domain.TaskKind("unknown-kind"), backend.filter.Kind)
	assert.Equal(t, 10, backend.filter.Limit)
	assert.WithinDuration(t, time.Now().Add(-time.Hour), backend.filter.Since, time.Minute)

	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[0], "TASK_ID"))
	assert.Contains(t, lines[2], "t1")
	assert.Contains(t, lines[3], "failed-permanent")
}

func TestOutcomesList_InvalidStatus(t *testing.T) {
	_, _, err := execute(t, &fakeBackend{}, false, "outcomes", "list", "--status", "pending")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid status")
}

func TestOutcomesShow(t *testing.T) {
	backend := &fakeBackend{outcomes: sampleOutcomes()}

	stdout, _, err := execute(t, backend, true, "outcomes", "show", "t1")
	require.NoError(t, err)

	var o domain.TaskOutcome
	require.NoError(t, json.Unmarshal([]byte(stdout), &o))
	assert.Equal(t, "t1", o.TaskID)
	assert.Equal(t, domain.OutcomeSucceeded, o.Status)
	assert.NotContains(t, stdout, "deliveries")

	_, _, err = execute(t, backend, false, "outcomes", "show", "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no outcome for task missing")
}

func TestOutcomesShow_Deliveries(t *testing.T) {
	backend := &fakeBackend{
		outcomes: sampleOutcomes(),
		receipts: map[string]*repo.Receipt{
			"t1":      {TaskID: "t1", Deliveries: 3},
			"pending": {TaskID: "pending", Deliveries: 2},
		},
	}

	stdout, _, err := execute(t, backend, true, "outcomes", "show", "t1")
	require.NoError(t, err)

	var got struct {
		TaskID     string `json:"task_id"`
		Deliveries int    `json:"deliveries"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &got))
	assert.Equal(t, "t1", got.TaskID)
	assert.Equal(t, 3, got.Deliveries)

	stdout, _, err = execute(t, backend, false, "outcomes", "show", "t1")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "DELIVERIES")
	assert.Equal(t, "3", strings.Fields(lines[2])[4])

	_, _, err = execute(t, backend, false, "outcomes", "show", "pending")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no outcome for task pending yet (delivered 2 times)")
}

func TestOutcomesStats(t *testing.T) {
	backend := &fakeBackend{counts: map[domain.OutcomeStatus]int64{
		domain.OutcomeSucceeded:       7,
		domain.OutcomeFailedPermanent: 2,
	}}

	stdout, _, err := execute(t, backend, true, "outcomes", "stats")
	require.NoError(t, err)
	assert.JSONEq(t, `{"succeeded":7,"failed-permanent":2}`, stdout)
}

func TestOutput_TableClipsLongCells(t *testing.T) {
	var buf bytes.Buffer
	out := NewOutputTo(false, &buf, &buf)

	out.Table([]string{"DETAIL"}, [][]string{{strings.Repeat("x", 100) + "\nsecond line"}})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "------", lines[1])
	assert.Len(t, lines[2], maxCellWidth)
	assert.True(t, strings.HasSuffix(lines[2], "..."))
}
