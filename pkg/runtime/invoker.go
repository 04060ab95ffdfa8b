// Package runtime is the fixed contract between the host and installed
// extension code. Extensions are untrusted: every invocation runs in its
// own short-lived subprocess of an external JS runtime and exchanges only
// serialized data with the host, so a broken or hostile extension can never
// crash the host or block other extensions.
package runtime

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/kerbaras/mangetsu/pkg/data"
)

// Invoker executes one method of an extension's payload and returns the raw
// JSON result.
type Invoker interface {
	Invoke(ctx context.Context, ext data.InstalledExtension, method string, args map[string]any) (json.RawMessage, error)
}

// invokeRequest is the JSON envelope written to the extension's stdin.
type invokeRequest struct {
	Method string         `json:"method"`
	Args   map[string]any `json:"args,omitempty"`
}

// invokeResponse is the JSON envelope read back from stdout.
type invokeResponse struct {
	Status string          `json:"status"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// harness is appended after the extension payload. It reads one request
// from stdin, dispatches to the payload's exported method, and writes the
// response envelope to stdout. The payload itself stays a black box.
const harness = `
;(function () {
	var chunks = [];
	process.stdin.on("data", function (c) { chunks.push(c); });
	process.stdin.on("end", function () {
		function fail(err) {
			var msg = err && err.message ? err.message : String(err);
			process.stdout.write(JSON.stringify({ status: "error", error: msg }));
		}
		try {
			var req = JSON.parse(Buffer.concat(chunks).toString("utf8"));
			var target = (typeof module !== "undefined" && module.exports &&
				Object.keys(module.exports).length > 0) ? module.exports : globalThis;
			var fn = target[req.method];
			if (typeof fn !== "function") {
				throw new Error("method not implemented: " + req.method);
			}
			Promise.resolve(fn.call(target, req.args || {})).then(function (result) {
				process.stdout.write(JSON.stringify({
					status: "ok",
					result: result === undefined ? null : result,
				}));
			}, fail);
		} catch (err) {
			fail(err);
		}
	});
})();
`

// ProcessInvoker runs extension payloads through an external JS runtime
// executable, one subprocess per call.
type ProcessInvoker struct {
	// Runtime is the JS runtime command, e.g. "node".
	Runtime string
	// Timeout bounds a single invocation.
	Timeout time.Duration
	// WorkDir receives the temporary script files. Empty means os.TempDir.
	WorkDir string
}

// NewProcessInvoker returns a ProcessInvoker for the given runtime command.
func NewProcessInvoker(runtimeCmd string) *ProcessInvoker {
	return &ProcessInvoker{Runtime: runtimeCmd, Timeout: 30 * time.Second}
}

// Invoke writes the payload plus harness to a temporary script, runs it and
// decodes the response envelope. Any runtime failure, non-zero exit or
// malformed envelope comes back as an error for the bridge to isolate.
func (p *ProcessInvoker) Invoke(ctx context.Context, ext data.InstalledExtension, method string, args map[string]any) (json.RawMessage, error) {
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	script, err := p.writeScript(ext)
	if err != nil {
		return nil, err
	}
	defer os.Remove(script)

	reqBody, err := json.Marshal(invokeRequest{Method: method, Args: args})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	cmd := exec.CommandContext(ctx, p.Runtime, script)
	cmd.Stdin = bytes.NewReader(reqBody)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("extension process failed: %w (stderr: %s)", err, truncate(stderr.String(), 512))
	}

	var resp invokeResponse
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		return nil, fmt.Errorf("invalid response from extension: %w", err)
	}
	if resp.Status != "ok" {
		return nil, fmt.Errorf("extension error: %s", resp.Error)
	}
	return resp.Result, nil
}

func (p *ProcessInvoker) writeScript(ext data.InstalledExtension) (string, error) {
	dir := p.WorkDir
	if dir == "" {
		dir = os.TempDir()
	}
	f, err := os.CreateTemp(dir, "mangetsu-ext-*.js")
	if err != nil {
		return "", fmt.Errorf("failed to create script file: %w", err)
	}
	if _, err := f.WriteString(ext.Payload + harness); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to write script file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
