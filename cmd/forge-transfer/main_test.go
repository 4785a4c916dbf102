package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/input-output-hk/catalyst-forge-libs/transfer/domain"
	"github.com/input-output-hk/catalyst-forge-libs/transfer/errors"
)

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	t.Setenv("AWS_EC2_METADATA_DISABLED", "true")

	var stdout, stderr bytes.Buffer
	cmd := newRootCommand()
	cmd.SetArgs(args)
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func TestPlanCommand(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want domain.Strategy
	}{
		{
			name: "same account copy",
			args: []string{"plan", "s3://reports/2025/q1.csv", "s3://archive/", "--size", "50MiB"},
			want: domain.StrategyServerSideCopy,
		},
		{
			name: "small upload",
			args: []string{"plan", "file:///srv/data/a.txt", "s3://archive/", "--size", "1KiB"},
			want: domain.StrategySingleShot,
		},
		{
			name: "large upload",
			args: []string{"plan", "file:///srv/data/a.bin", "s3://archive/", "--size", "1GiB"},
			want: domain.StrategyStreaming,
		},
		{
			name: "unknown size streams",
			args: []string{"plan", "file:///srv/data/a.bin", "minio://localhost:9000/archive/"},
			want: domain.StrategyStreaming,
		},
		{
			name: "threshold flag",
			args: []string{"plan", "file:///srv/data/a.bin", "s3://archive/", "--size", "20MiB", "--multipart-threshold", "64MiB"},
			want: domain.StrategySingleShot,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, _, err := execute(t, tt.args...)
			require.NoError(t, err)

			var plan domain.TransferPlan
			require.NoError(t, json.Unmarshal([]byte(out), &plan))
			assert.Equal(t, tt.want, plan.Strategy)
		})
	}
}

func TestPlanCommand_DerivesDestinationKey(t *testing.T) {
	out, _, err := execute(t, "plan", "s3://reports/2025/q1.csv", "s3://archive/?folder=quarterly", "--size", "1KiB")
	require.NoError(t, err)

	var plan domain.TransferPlan
	require.NoError(t, json.Unmarshal([]byte(out), &plan))
	assert.Equal(t, "quarterly/2025/q1.csv", plan.Destination.Key)
}

func TestPlanCommand_RejectsBadInput(t *testing.T) {
	_, _, err := execute(t, "plan", "ftp://host/file", "s3://archive/")
	assert.Error(t, err)

	_, _, err = execute(t, "plan", "s3://reports/a", "s3://archive/", "--size", "huge")
	assert.Error(t, err)

	_, _, err = execute(t, "plan", "s3://reports/a", "s3://archive/", "--part-size", "1KiB")
	assert.Error(t, err)
}

func TestCopyCommand_FileToFile(t *testing.T) {
	root := t.TempDir()
	srcDir := filepath.Join(root, "src")
	dstDir := filepath.Join(root, "dst")
	require.NoError(t, os.MkdirAll(srcDir, 0o755))
	require.NoError(t, os.MkdirAll(dstDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(srcDir, "report.csv"), []byte("a,b,c\n1,2,3\n"), 0o644))

	out, stderr, err := execute(t, "copy",
		"file://"+filepath.ToSlash(filepath.Join(srcDir, "report.csv")),
		"file://"+filepath.ToSlash(dstDir)+"/",
		"--progress", "--log-level", "error")
	require.NoError(t, err, stderr)

	var res struct {
		Outcome          domain.SessionState `json:"outcome"`
		State            domain.SessionState `json:"state"`
		BytesTransferred int64               `json:"bytes_transferred"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, domain.StateCompleted, res.Outcome)
	assert.Equal(t, domain.StateDeprovisioned, res.State)
	assert.Equal(t, int64(12), res.BytesTransferred)
	assert.Contains(t, stderr, "DONE DEPROVISIONED")

	got, err := os.ReadFile(filepath.Join(dstDir, "report.csv"))
	require.NoError(t, err)
	assert.Equal(t, "a,b,c\n1,2,3\n", string(got))
}

func TestCopyCommand_MissingSourceFails(t *testing.T) {
	root := t.TempDir()

	out, _, err := execute(t, "copy",
		"file://"+filepath.ToSlash(root)+"/missing.bin",
		"file://"+filepath.ToSlash(root)+"/out/",
		"--log-level", "error")
	require.Error(t, err)

	var res struct {
		Outcome   domain.SessionState `json:"outcome"`
		ErrorCode string              `json:"error_code"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, domain.StateCopyFailed, res.Outcome)
	assert.NotEmpty(t, res.ErrorCode)
}

func TestWriteResult_ReportsPerObjectFailures(t *testing.T) {
	failed := errors.NewCopyError(errors.CopySourceUnreadable, "getObject", "logs/b.txt", errors.ErrObjectNotFound)
	res := &domain.TransferResult{
		SessionID: "s-1",
		State:     domain.StateDeprovisioned,
		Outcome:   domain.StateCopyFailed,
		Objects: []domain.ObjectResult{
			{SourceKey: "logs/a.txt", DestinationKey: "logs/a.txt", Bytes: 3},
			{
				SourceKey:      "logs/b.txt",
				DestinationKey: "logs/b.txt",
				Err:            failed,
				CleanupErrors:  []error{errors.NewCleanupError("abortMultipartUpload", "logs/b.txt (u-1)", errors.New("gone"))},
			},
		},
		Err: errors.Join(failed),
	}

	var buf bytes.Buffer
	require.NoError(t, writeResult(&buf, res))

	var out struct {
		Error   string `json:"error"`
		Objects []struct {
			SourceKey     string   `json:"source_key"`
			Bytes         int64    `json:"bytes"`
			Error         string   `json:"error"`
			ErrorCode     string   `json:"error_code"`
			ErrorKind     string   `json:"error_kind"`
			CleanupErrors []string `json:"cleanup_errors"`
		} `json:"objects"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	assert.NotEmpty(t, out.Error)
	require.Len(t, out.Objects, 2)

	assert.Equal(t, "logs/a.txt", out.Objects[0].SourceKey)
	assert.Equal(t, int64(3), out.Objects[0].Bytes)
	assert.Empty(t, out.Objects[0].Error)

	assert.Equal(t, "logs/b.txt", out.Objects[1].SourceKey)
	assert.Contains(t, out.Objects[1].Error, "SourceUnreadable")
	assert.Equal(t, string(errors.CodeSourceUnreadable), out.Objects[1].ErrorCode)
	assert.Equal(t, "SourceUnreadable", out.Objects[1].ErrorKind)
	require.Len(t, out.Objects[1].CleanupErrors, 1)
	assert.Contains(t, out.Objects[1].CleanupErrors[0], "gone")
}
