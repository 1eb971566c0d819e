package fclones

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
)

// Executor runs fclones commands
type Executor struct {
	binaryPath string
}

// NewExecutor creates a new fclones executor
func NewExecutor() *Executor {
	return &Executor{
		binaryPath: "fclones",
	}
}

// SetBinaryPath sets a custom path to the fclones binary
func (e *Executor) SetBinaryPath(path string) {
	if path != "" {
		e.binaryPath = path
	}
}

// CheckInstalled verifies that fclones is installed and accessible
func (e *Executor) CheckInstalled(ctx context.Context) error {
	_, err := e.Version(ctx)
	return err
}

// Version returns the output of fclones --version
func (e *Executor) Version(ctx context.Context) (string, error) {
	cmd := exec.CommandContext(ctx, e.binaryPath, "--version")
	output, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("fclones not found or not executable: %w", err)
	}
	if !strings.Contains(string(output), "fclones") {
		return "", fmt.Errorf("unexpected output from fclones --version: %s", output)
	}
	return strings.TrimSpace(string(output)), nil
}

// groupArgs builds the fclones group command line
func groupArgs(opts ScanOptions) []string {
	args := []string{"group", "--format", "json"}

	if opts.MinSize > 0 {
		args = append(args, "-s", strconv.FormatInt(opts.MinSize, 10))
	}
	if opts.MaxSize != nil {
		args = append(args, "--max-size", strconv.FormatInt(*opts.MaxSize, 10))
	}
	for _, pattern := range opts.IncludePatterns {
		args = append(args, "--name", pattern)
	}
	for _, pattern := range opts.ExcludePatterns {
		args = append(args, "--exclude", pattern)
	}
	if opts.HashFunction != "" {
		args = append(args, "--hash-fn", opts.HashFunction)
	}
	if opts.Threads > 0 {
		args = append(args, "--threads", strconv.Itoa(opts.Threads))
	}

	return append(args, opts.Paths...)
}

// Group runs fclones group and returns duplicate groups
func (e *Executor) Group(ctx context.Context, opts ScanOptions, progressChan chan<- Progress) (*GroupOutput, error) {
	cmd := exec.CommandContext(ctx, e.binaryPath, groupArgs(opts)...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start fclones: %w", err)
	}

	// fclones writes progress bars to stderr
	done := make(chan struct{})
	go func() {
		defer close(done)
		readProgress(stderr, progressChan)
	}()

	output, err := io.ReadAll(stdout)
	if err != nil {
		return nil, fmt.Errorf("failed to read output: %w", err)
	}
	<-done

	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("fclones exited with error: %w", err)
	}

	var result GroupOutput
	if err := json.Unmarshal(output, &result); err != nil {
		return nil, fmt.Errorf("failed to parse fclones output: %w", err)
	}

	return &result, nil
}

// readProgress parses fclones stderr for progress updates
func readProgress(r io.Reader, progressChan chan<- Progress) {
	if progressChan == nil {
		io.Copy(io.Discard, r)
		return
	}

	scanner := bufio.NewScanner(r)
	scanner.Split(scanTerminalLines)

	for scanner.Scan() {
		p := parseProgressBar(scanner.Text())
		if p == nil {
			continue
		}
		select {
		case progressChan <- *p:
		default:
			// Don't block if channel is full
		}
	}
}

// scanTerminalLines splits on \n and on the \r that progress bars use to
// redraw in place.
func scanTerminalLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}
