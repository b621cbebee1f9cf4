package fetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/nhle/studiosync/internal/model"
)

// maxDiagnostic bounds how much stderr is copied into an error detail.
const maxDiagnostic = 512

// runResult is the captured outcome of one external process run.
type runResult struct {
	stdout []byte
	stderr []byte

	// err is non-nil when the process could not start or exited non-zero.
	err error
}

// runner executes argv with extra environment and captures both streams.
type runner func(ctx context.Context, argv []string, env []string) runResult

// ExecConfig configures the subprocess bridge.
type ExecConfig struct {
	// Command is the argv prefix, e.g. ["python3", "fetch_mails.py"].
	Command []string

	// Timeout bounds one invocation. Zero means the caller's context
	// alone bounds it.
	Timeout time.Duration

	Log *slog.Logger
}

// ExecBridge calls an out-of-process mail program once per request. The
// program prints a JSON payload on stdout and diagnostics on stderr.
type ExecBridge struct {
	command []string
	timeout time.Duration
	log     *slog.Logger
	run     runner
}

// NewExecBridge creates a subprocess bridge.
func NewExecBridge(cfg ExecConfig) *ExecBridge {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	return &ExecBridge{
		command: cfg.Command,
		timeout: cfg.Timeout,
		log:     log,
		run:     runProcess,
	}
}

// errorPayload is the structured failure shape emitted by the program.
type errorPayload struct {
	Error string `json:"error"`
}

// moveResponse is the program's answer to a move directive.
type moveResponse struct {
	Success bool   `json:"success"`
	Status  string `json:"status"`
	Error   string `json:"error"`
}

// Fetch implements Fetcher.
func (b *ExecBridge) Fetch(
	ctx context.Context, creds model.Credentials, folder string,
) ([]model.Message, error) {
	args := []string{creds.Username, creds.Secret, "--headers-only", folder}

	res, err := b.invoke(ctx, creds, args)
	if err != nil {
		return nil, &FetchError{Op: OpFetch, Folder: folder, Detail: "timed out", Err: err}
	}

	msgs, decodeErr := decodeMessages(res.stdout)
	if res.err != nil {
		// A failing run may still have printed a structured payload.
		if decodeErr == nil {
			b.log.WarnContext(ctx, "Fetch program exited non-zero with "+
				"a message payload", "folder", folder,
				"diagnostic", truncateDiagnostic(res.stderr))
			return msgs, nil
		}
		return nil, &FetchError{
			Op:     OpFetch,
			Folder: folder,
			Detail: failureDetail(res),
			Err:    res.err,
		}
	}

	var payloadErr *payloadError
	if errors.As(decodeErr, &payloadErr) {
		return nil, &FetchError{
			Op: OpFetch, Folder: folder, Detail: payloadErr.detail,
		}
	}
	if decodeErr != nil {
		return nil, &FetchError{
			Op:     OpFetch,
			Folder: folder,
			Detail: "unparseable output",
			Err:    decodeErr,
		}
	}

	return msgs, nil
}

// Move implements Mover.
func (b *ExecBridge) Move(
	ctx context.Context, creds model.Credentials,
	id model.ExternalID, fromFolder, toFolder string,
) error {
	args := []string{
		creds.Username, creds.Secret, "--move", id.String(),
		fromFolder, toFolder,
	}

	res, err := b.invoke(ctx, creds, args)
	if err != nil {
		return &FetchError{Op: OpMove, Folder: fromFolder, Detail: "timed out", Err: err}
	}

	var resp moveResponse
	if jsonErr := json.Unmarshal(bytes.TrimSpace(res.stdout), &resp); jsonErr != nil {
		detail := "unparseable output"
		if res.err != nil {
			detail = failureDetail(res)
		}
		return &FetchError{Op: OpMove, Folder: fromFolder, Detail: detail, Err: jsonErr}
	}

	switch {
	case resp.Error != "":
		return &FetchError{Op: OpMove, Folder: fromFolder, Detail: resp.Error}
	case !resp.Success && resp.Status == "":
		return &FetchError{
			Op: OpMove, Folder: fromFolder,
			Detail: "move not acknowledged", Err: res.err,
		}
	}

	return nil
}

// invoke runs the program under the bridge timeout. The returned error is
// only set when the context expired, which turns a hang into a failure.
func (b *ExecBridge) invoke(
	ctx context.Context, creds model.Credentials, args []string,
) (runResult, error) {
	if len(b.command) == 0 {
		return runResult{err: errors.New("no bridge command configured")}, nil
	}

	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	argv := make([]string, 0, len(b.command)+len(args))
	argv = append(argv, b.command...)
	argv = append(argv, args...)

	var env []string
	if creds.Host != "" {
		env = append(env, "IMAP_HOST="+creds.Host)
	}
	if creds.Port != "" {
		env = append(env, "IMAP_PORT="+creds.Port)
	}

	res := b.run(ctx, argv, env)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return res, ctxErr
	}
	return res, nil
}

// decodeMessages parses a program payload. A JSON object carrying an error
// field is reported as a failure, never as an empty batch.
func decodeMessages(stdout []byte) ([]model.Message, error) {
	data := bytes.TrimSpace(stdout)
	if len(data) == 0 {
		return nil, errors.New("empty output")
	}

	if data[0] == '{' {
		var payload errorPayload
		if err := json.Unmarshal(data, &payload); err != nil {
			return nil, fmt.Errorf("decoding error payload: %w", err)
		}
		if payload.Error == "" {
			return nil, errors.New("object payload without messages")
		}
		return nil, &payloadError{detail: payload.Error}
	}

	var msgs []model.Message
	if err := json.Unmarshal(data, &msgs); err != nil {
		return nil, fmt.Errorf("decoding message list: %w", err)
	}
	if msgs == nil {
		msgs = []model.Message{}
	}
	return msgs, nil
}

// payloadError is a failure reported by the program itself.
type payloadError struct {
	detail string
}

func (e *payloadError) Error() string {
	return e.detail
}

// failureDetail picks the most useful description of a failed run: the
// structured payload first, then stderr.
func failureDetail(res runResult) string {
	var payload errorPayload
	if err := json.Unmarshal(bytes.TrimSpace(res.stdout), &payload); err == nil &&
		payload.Error != "" {

		return payload.Error
	}
	if diag := truncateDiagnostic(res.stderr); diag != "" {
		return diag
	}
	return "unknown bridge error"
}

func truncateDiagnostic(stderr []byte) string {
	s := strings.TrimSpace(string(stderr))
	if len(s) > maxDiagnostic {
		s = s[:maxDiagnostic] + "..."
	}
	return s
}

// runProcess is the production runner.
func runProcess(ctx context.Context, argv []string, env []string) runResult {
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Env = append(os.Environ(), env...)
	cmd.WaitDelay = 5 * time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	return runResult{
		stdout: stdout.Bytes(),
		stderr: stderr.Bytes(),
		err:    err,
	}
}
