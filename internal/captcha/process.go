package captcha

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// ddddocrScript reads a base64 image on stdin and prints the recognition.
const ddddocrScript = `import base64, sys
import ddddocr
ocr = ddddocr.DdddOcr(show_ad=False)
print(ocr.classification(base64.b64decode(sys.stdin.read().strip())))
`

const defaultProcessTimeout = 10 * time.Second

// Process runs an external recognizer once per call. The stripped base64
// payload is written to its stdin and the first line of stdout is the answer.
type Process struct {
	name    string
	command []string
	timeout time.Duration
}

// NewScript runs a user supplied command.
func NewScript(command []string, timeout time.Duration) *Process {
	return &Process{name: "script", command: command, timeout: timeout}
}

// NewDdddOCR runs the ddddocr python package. command overrides the interpreter
// invocation; by default the bundled script is run with python3.
func NewDdddOCR(command []string, timeout time.Duration) *Process {
	if len(command) == 0 {
		command = []string{"python3", "-c", ddddocrScript}
	}
	return &Process{name: "ocr", command: command, timeout: timeout}
}

func (p *Process) Name() string { return p.name }

func (p *Process) Resolve(ctx context.Context, image string) (string, error) {
	if len(p.command) == 0 {
		return "", errors.New("no recognizer command configured")
	}
	payload := StripDataURI(image)
	if payload == "" {
		return "", errors.New("empty captcha image")
	}

	timeout := p.timeout
	if timeout <= 0 {
		timeout = defaultProcessTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, p.command[0], p.command[1:]...)
	cmd.Stdin = strings.NewReader(payload)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if len(msg) > 200 {
			msg = msg[:200]
		}
		return "", fmt.Errorf("%s recognizer failed: %w (%s)", p.name, err, msg)
	}

	line, _, _ := strings.Cut(stdout.String(), "\n")
	return strings.TrimSpace(line), nil
}
