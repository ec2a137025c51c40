package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/throw-if-null/rexec/internal/api"
	"github.com/throw-if-null/rexec/internal/version"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "run":
		run(os.Args[2:])
	case "history":
		history(os.Args[2:])
	case "version":
		fmt.Printf("rexec %s (%s)\n", version.Version, version.Commit)
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	_, _ = fmt.Fprintln(os.Stderr, "usage:")
	_, _ = fmt.Fprintln(os.Stderr, "  rexec run --prompt <text> [--max-attempts <n>] [--addr <host:port>]")
	_, _ = fmt.Fprintln(os.Stderr, "  rexec history [-n <limit>] [--addr <host:port>]")
	_, _ = fmt.Fprintln(os.Stderr, "  rexec version")
}

func defaultAddr() string {
	return fmt.Sprintf("%s:%d", api.DefaultHost, api.DefaultPort)
}

func run(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	var prompt string
	var maxAttempts int
	var addr string
	fs.StringVar(&prompt, "prompt", "", "task description")
	fs.IntVar(&maxAttempts, "max-attempts", 0, "attempt budget (0 = server default)")
	fs.StringVar(&addr, "addr", defaultAddr(), "rexecd address")
	_ = fs.Parse(args)

	if prompt == "" {
		fs.Usage()
		os.Exit(2)
	}

	req := api.ExecuteRequest{Prompt: prompt, MaxAttempts: maxAttempts}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(&req); err != nil {
		fatal(err)
	}

	// Generation and up to N executions happen inside this call, so the
	// client timeout has to be generous.
	client := &http.Client{Timeout: 10 * time.Minute}
	resp, err := client.Post(fmt.Sprintf("http://%s/api/execute", addr), "application/json", &buf)
	if err != nil {
		fatal(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		fatal(err)
	}
	if resp.StatusCode >= 400 {
		fatal(fmt.Errorf("request failed: %s: %s", resp.Status, string(body)))
	}

	fmt.Println(string(body))
}

func history(args []string) {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	var limit int
	var addr string
	fs.IntVar(&limit, "n", 20, "maximum runs to list")
	fs.StringVar(&addr, "addr", defaultAddr(), "rexecd address")
	_ = fs.Parse(args)

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Get(fmt.Sprintf("http://%s/v1/runs?limit=%d", addr, limit))
	if err != nil {
		fatal(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		fatal(err)
	}
	if resp.StatusCode >= 400 {
		fatal(fmt.Errorf("request failed: %s: %s", resp.Status, string(body)))
	}

	fmt.Println(string(body))
}

func fatal(err error) {
	_, _ = fmt.Fprintln(os.Stderr, err.Error())
	os.Exit(1)
}
