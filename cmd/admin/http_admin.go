package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

var getPaths = map[string]string{
	"state":     "/v1/state",
	"scenarios": "/admin/v1/scenarios",
	"runs":      "/admin/v1/runs",
	"events":    "/admin/v1/events",
}

func getCmd(name string, args []string) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	runID := fs.String("run", "", "run_id filter (events)")
	_ = fs.Parse(args)

	u := strings.TrimRight(strings.TrimSpace(*baseURL), "/") + getPaths[name]
	if name == "events" && *runID != "" {
		u += "?run_id=" + *runID
	}
	req, _ := http.NewRequest(http.MethodGet, u, nil)
	send(req, 5*time.Second)
}

func postCmd(name string, args []string) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	_ = fs.Parse(args)

	u := strings.TrimRight(strings.TrimSpace(*baseURL), "/") + "/admin/v1/" + name
	req, _ := http.NewRequest(http.MethodPost, u, nil)
	send(req, 10*time.Second)
}

func loadCmd(args []string) {
	fs := flag.NewFlagSet("load", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	file := fs.String("file", "", "scenario file name inside the server's scenario dir")
	_ = fs.Parse(args)
	if strings.TrimSpace(*file) == "" {
		fmt.Fprintln(os.Stderr, "missing -file")
		os.Exit(2)
	}

	body, _ := json.Marshal(map[string]string{"file": *file})
	u := strings.TrimRight(strings.TrimSpace(*baseURL), "/") + "/admin/v1/scenario"
	req, _ := http.NewRequest(http.MethodPost, u, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	send(req, 10*time.Second)
}

func send(req *http.Request, timeout time.Duration) {
	cl := &http.Client{Timeout: timeout}
	resp, err := cl.Do(req)
	if err != nil {
		fmt.Fprintln(os.Stderr, "request:", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	fmt.Println(string(b))
	if resp.StatusCode/100 != 2 {
		os.Exit(1)
	}
}
