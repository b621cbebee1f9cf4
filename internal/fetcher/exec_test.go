package fetcher

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nhle/studiosync/internal/model"
)

var testCreds = model.Credentials{
	Identity: "montse",
	Username: "montse@studio.example",
	Secret:   "hunter2",
	Host:     "imap.example.com",
	Port:     "993",
}

// scriptedRun returns a runner that records its argv and replies with res.
func scriptedRun(res runResult, gotArgv, gotEnv *[]string) runner {
	return func(_ context.Context, argv []string, env []string) runResult {
		if gotArgv != nil {
			*gotArgv = argv
		}
		if gotEnv != nil {
			*gotEnv = env
		}
		return res
	}
}

func newTestBridge(run runner) *ExecBridge {
	b := NewExecBridge(ExecConfig{Command: []string{"python3", "fetch_mails.py"}})
	b.run = run
	return b
}

func TestExecFetchDecodesMessages(t *testing.T) {
	var argv, env []string
	b := newTestBridge(scriptedRun(runResult{stdout: []byte(`[
		{"id": 4321, "from": "a@example.com", "subject": "Hola",
		 "body": "cos", "date": "Mon, 2 Mar 2026 10:00:00 +0100"},
		{"id": "abc", "from": "b@example.com", "subject": "Adeu"}
	]`)}, &argv, &env))

	msgs, err := b.Fetch(context.Background(), testCreds, "INBOX")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	require.Equal(t, model.ExternalID("4321"), msgs[0].ExternalID)
	require.Equal(t, model.ExternalID("abc"), msgs[1].ExternalID)

	require.Equal(t, []string{
		"python3", "fetch_mails.py", "montse@studio.example", "hunter2",
		"--headers-only", "INBOX",
	}, argv)
	require.ElementsMatch(t, []string{
		"IMAP_HOST=imap.example.com", "IMAP_PORT=993",
	}, env)
}

func TestExecFetchEmptyFolder(t *testing.T) {
	b := newTestBridge(scriptedRun(runResult{stdout: []byte("[]\n")}, nil, nil))

	msgs, err := b.Fetch(context.Background(), testCreds, "Enviados")
	require.NoError(t, err)
	require.NotNil(t, msgs)
	require.Empty(t, msgs)
}

func TestExecFetchErrorPayload(t *testing.T) {
	b := newTestBridge(scriptedRun(runResult{
		stdout: []byte(`{"error": "LOGIN failed"}`),
	}, nil, nil))

	_, err := b.Fetch(context.Background(), testCreds, "INBOX")
	require.Error(t, err)

	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	require.Equal(t, OpFetch, fetchErr.Op)
	require.Equal(t, "LOGIN failed", fetchErr.Detail)
}

func TestExecFetchNonZeroExit(t *testing.T) {
	tests := []struct {
		name       string
		res        runResult
		wantErr    bool
		wantDetail string
		wantLen    int
	}{{
		name: "payload still usable",
		res: runResult{
			stdout: []byte(`[{"id": 1, "subject": "x"}]`),
			stderr: []byte("warning: slow server"),
			err:    errors.New("exit status 1"),
		},
		wantLen: 1,
	}, {
		name: "error payload",
		res: runResult{
			stdout: []byte(`{"error": "mailbox locked"}`),
			err:    errors.New("exit status 1"),
		},
		wantErr:    true,
		wantDetail: "mailbox locked",
	}, {
		name: "stderr only",
		res: runResult{
			stderr: []byte("Traceback: ConnectionRefusedError"),
			err:    errors.New("exit status 1"),
		},
		wantErr:    true,
		wantDetail: "Traceback: ConnectionRefusedError",
	}}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			b := newTestBridge(scriptedRun(tc.res, nil, nil))

			msgs, err := b.Fetch(context.Background(), testCreds, "INBOX")
			if !tc.wantErr {
				require.NoError(t, err)
				require.Len(t, msgs, tc.wantLen)
				return
			}

			require.True(t, IsFetchError(err))
			var fetchErr *FetchError
			require.ErrorAs(t, err, &fetchErr)
			require.Equal(t, tc.wantDetail, fetchErr.Detail)
		})
	}
}

func TestExecFetchUnparseableOutput(t *testing.T) {
	b := newTestBridge(scriptedRun(runResult{
		stdout: []byte("Connecting...\n[{"),
	}, nil, nil))

	_, err := b.Fetch(context.Background(), testCreds, "INBOX")
	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	require.Equal(t, "unparseable output", fetchErr.Detail)
}

func TestExecFetchTimeout(t *testing.T) {
	b := newTestBridge(func(ctx context.Context, _, _ []string) runResult {
		<-ctx.Done()
		return runResult{err: ctx.Err()}
	})
	b.timeout = 20 * time.Millisecond

	_, err := b.Fetch(context.Background(), testCreds, "INBOX")
	require.True(t, IsFetchError(err))
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestExecMove(t *testing.T) {
	tests := []struct {
		name    string
		stdout  string
		wantErr string
	}{
		{name: "success", stdout: `{"success": true}`},
		{name: "status", stdout: `{"status": "moved"}`},
		{name: "error", stdout: `{"error": "no such folder"}`, wantErr: "no such folder"},
		{name: "unacknowledged", stdout: `{}`, wantErr: "move not acknowledged"},
		{name: "garbage", stdout: `ok`, wantErr: "unparseable output"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var argv []string
			b := newTestBridge(scriptedRun(runResult{
				stdout: []byte(tc.stdout),
			}, &argv, nil))

			err := b.Move(context.Background(), testCreds, "77",
				"INBOX", "Gestionados")

			require.Equal(t, []string{
				"python3", "fetch_mails.py", "montse@studio.example",
				"hunter2", "--move", "77", "INBOX", "Gestionados",
			}, argv)

			if tc.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorContains(t, err, tc.wantErr)
		})
	}
}

func TestTruncateDiagnostic(t *testing.T) {
	long := strings.Repeat("x", maxDiagnostic*2)
	require.Len(t, truncateDiagnostic([]byte(long)), maxDiagnostic+3)
	require.Equal(t, "boom", truncateDiagnostic([]byte("  boom\n")))
}
