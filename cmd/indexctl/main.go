// Command indexctl talks to a running coordinator.
//
// Usage:
//
//	indexctl [-coordinator URL] [-timeout D] job <id>
//	indexctl [-coordinator URL] [-timeout D] jobs
//	indexctl [-coordinator URL] [-timeout D] create <request.json | ->
//	indexctl [-coordinator URL] [-timeout D] workers
//
// The coordinator URL defaults to $INDEXCTL_COORDINATOR, then
// http://localhost:8080.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/exp/slices"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7D56F4"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#F45E6E"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#6EF4A1"))
	infoStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#6EC4F4"))
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// run executes one command and returns the process exit code.
func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("indexctl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	defaultURL := os.Getenv("INDEXCTL_COORDINATOR")
	if defaultURL == "" {
		defaultURL = "http://localhost:8080"
	}
	base := fs.String("coordinator", defaultURL, "coordinator base URL")
	timeout := fs.Duration("timeout", 30*time.Second, "request timeout")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	c := &client{base: strings.TrimRight(*base, "/"), http: &http.Client{Timeout: *timeout}}
	ctx := context.Background()

	rest := fs.Args()
	if len(rest) == 0 {
		fmt.Fprintln(stderr, "usage: indexctl [flags] job <id> | jobs | create <file> | workers")
		return 2
	}

	var err error
	switch cmd := rest[0]; {
	case cmd == "job" && len(rest) == 2:
		err = c.job(ctx, stdout, rest[1])
	case cmd == "jobs" && len(rest) == 1:
		err = c.jobs(ctx, stdout)
	case cmd == "create" && len(rest) == 2:
		err = c.create(ctx, stdin, stdout, rest[1])
	case cmd == "workers" && len(rest) == 1:
		err = c.workers(ctx, stdout)
	default:
		fmt.Fprintf(stderr, "unknown command or wrong arguments: %s\n", strings.Join(rest, " "))
		return 2
	}
	if err != nil {
		fmt.Fprintln(stderr, errorStyle.Render("error: "+err.Error()))
		return 1
	}
	return 0
}

type client struct {
	http *http.Client
	base string
}

// statusError is a non-2xx answer from the coordinator.
type statusError struct {
	body   string
	status int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("coordinator returned %d: %s", e.status, strings.TrimSpace(e.body))
}

func (c *client) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &statusError{status: resp.StatusCode, body: string(out)}
	}
	return out, nil
}

// jobSummary is the part of a job record indexctl displays.
type jobSummary struct {
	Timings *struct {
		TotalTime float64 `json:"totalTime"`
	} `json:"timings"`
	Status string `json:"status"`
	Error  string `json:"error"`
}

func (c *client) job(ctx context.Context, w io.Writer, id string) error {
	raw, err := c.do(ctx, http.MethodGet, "/job/"+url.PathEscape(id), nil)
	var se *statusError
	if errors.As(err, &se) && se.status == http.StatusNotFound {
		return fmt.Errorf("job %s not found on any worker", id)
	}
	if err != nil {
		return err
	}
	var s jobSummary
	if err := json.Unmarshal(raw, &s); err != nil {
		fmt.Fprintln(w, titleStyle.Render("job "+id))
		fmt.Fprintln(w, errorStyle.Render("response is not a job record: "+err.Error()))
		return writeIndented(w, raw)
	}
	fmt.Fprintf(w, "%s %s\n", titleStyle.Render("job "+id), statusStyle(s.Status).Render(s.Status))
	if s.Timings != nil {
		fmt.Fprintf(w, "total time: %.3fs\n", s.Timings.TotalTime)
	}
	if s.Error != "" {
		fmt.Fprintln(w, errorStyle.Render(s.Error))
	}
	return writeIndented(w, raw)
}

func (c *client) jobs(ctx context.Context, w io.Writer) error {
	raw, err := c.do(ctx, http.MethodGet, "/jobs", nil)
	if err != nil {
		return err
	}
	var jobs map[string]jobSummary
	if err := json.Unmarshal(raw, &jobs); err != nil {
		return fmt.Errorf("decode job list: %w", err)
	}

	ids := make([]string, 0, len(jobs))
	width := len("JOB")
	for id := range jobs {
		ids = append(ids, id)
		width = max(width, len(id))
	}
	slices.Sort(ids)

	fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("%-*s  %s", width, "JOB", "STATUS")))
	for _, id := range ids {
		status := jobs[id].Status
		fmt.Fprintf(w, "%-*s  %s\n", width, id, statusStyle(status).Render(status))
	}
	fmt.Fprintln(w, infoStyle.Render(fmt.Sprintf("%d jobs", len(ids))))
	return nil
}

func (c *client) create(ctx context.Context, stdin io.Reader, w io.Writer, path string) error {
	var body []byte
	var err error
	if path == "-" {
		body, err = io.ReadAll(stdin)
	} else {
		body, err = os.ReadFile(path)
	}
	if err != nil {
		return err
	}
	if !json.Valid(body) {
		return fmt.Errorf("%s is not valid JSON", path)
	}
	raw, err := c.do(ctx, http.MethodPost, "/create_index", body)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, successStyle.Render("submitted"))
	return writeIndented(w, raw)
}

func (c *client) workers(ctx context.Context, w io.Writer) error {
	raw, err := c.do(ctx, http.MethodGet, "/workers", nil)
	if err != nil {
		return err
	}
	var resp struct {
		Workers []struct {
			Worker string `json:"worker"`
			Status string `json:"status"`
		} `json:"workers"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return fmt.Errorf("decode workers: %w", err)
	}
	for _, wk := range resp.Workers {
		fmt.Fprintf(w, "%-24s %s\n", wk.Worker, statusStyle(wk.Status).Render(wk.Status))
	}
	return nil
}

func statusStyle(status string) lipgloss.Style {
	switch status {
	case "completed", "healthy":
		return successStyle
	case "failed", "unhealthy":
		return errorStyle
	default:
		return infoStyle
	}
}

func writeIndented(w io.Writer, raw []byte) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		_, err = w.Write(raw)
		return err
	}
	buf.WriteByte('\n')
	_, err := buf.WriteTo(w)
	return err
}
