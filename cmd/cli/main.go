// cli is an interactive client for a running judge server.
package main

import (
	"context"
	"flag"
	"time"

	httpclient "judged/internal/cli/http"
	"judged/internal/cli/repl"
)

func main() {
	baseURL := flag.String("base", "http://127.0.0.1:8080", "judge server base URL")
	token := flag.String("token", "", "shared judge server token")
	timeout := flag.Duration("timeout", 30*time.Second, "request timeout")
	pretty := flag.Bool("pretty", true, "pretty-print JSON responses")
	flag.Parse()

	client := httpclient.New(*baseURL, *timeout, *token)
	session := repl.New(client, *pretty)
	session.Run(context.Background())
}
