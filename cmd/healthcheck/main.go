// Healthcheck probes a running taskd daemon. Exit code 0 means the
// daemon answered its liveness endpoint; anything else is a failure.
// Intended for container HEALTHCHECK directives and deploy scripts.
//
// The target address comes from TASKD_ADDR (default 127.0.0.1:8090).
// When TASKD_TOKEN is set, the probe additionally reads the monitoring
// snapshot with that bearer credential, so a broken auth or monitoring
// path also fails the check.
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"
)

func main() {
	os.Exit(check())
}

func check() int {
	addr := normalizeAddr(os.Getenv("TASKD_ADDR"))

	client := &http.Client{Timeout: 2 * time.Second}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if code := probe(ctx, client, fmt.Sprintf("http://%s/health", addr), ""); code != 0 {
		return code
	}

	if token := os.Getenv("TASKD_TOKEN"); token != "" {
		return probe(ctx, client, fmt.Sprintf("http://%s/api/v1/monitoring/metrics", addr), token)
	}

	return 0
}

func probe(ctx context.Context, client *http.Client, url, token string) int {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "healthcheck: %v\n", err)
		return 1
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := client.Do(req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "healthcheck: %v\n", err)
		return 1
	}
	_ = resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "healthcheck: %s: status %d\n", url, resp.StatusCode)
		return 1
	}

	return 0
}

// normalizeAddr ensures the probe connects to loopback rather than the
// bind-all address. Containers bind 0.0.0.0 but the probe runs inside
// the same container, so loopback is reachable and more correct.
func normalizeAddr(raw string) string {
	if raw == "" {
		return "127.0.0.1:8090"
	}

	host, port, err := net.SplitHostPort(raw)
	if err != nil {
		return "127.0.0.1:8090"
	}

	if host == "" || host == "0.0.0.0" {
		host = "127.0.0.1"
	}

	return net.JoinHostPort(host, port)
}
