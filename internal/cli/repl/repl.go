// Package repl implements the interactive judge server client.
package repl

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/shlex"

	httpclient "judged/internal/cli/http"
)

// Session holds REPL state.
type Session struct {
	client       *httpclient.Client
	prettyJSON   bool
	outputWriter *bufio.Writer
}

func New(client *httpclient.Client, prettyJSON bool) *Session {
	return &Session{
		client:       client,
		prettyJSON:   prettyJSON,
		outputWriter: bufio.NewWriter(os.Stdout),
	}
}

func (s *Session) Run(ctx context.Context) {
	reader := bufio.NewReader(os.Stdin)
	for {
		_, _ = s.outputWriter.WriteString("judged> ")
		_ = s.outputWriter.Flush()
		line, err := reader.ReadString('\n')
		if err != nil {
			s.printLine("read input failed: %v", err)
			return
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if s.handleSystemCommand(line) {
			continue
		}
		if err := s.handleCommand(ctx, line); err != nil {
			s.printLine("error: %v", err)
		}
	}
}

func (s *Session) handleSystemCommand(line string) bool {
	switch line {
	case "exit", "quit":
		s.printLine("bye")
		os.Exit(0)
	case "help":
		s.printHelp()
		return true
	}
	if strings.HasPrefix(line, "set ") {
		s.handleSet(strings.TrimSpace(strings.TrimPrefix(line, "set ")))
		return true
	}
	return false
}

func (s *Session) handleSet(args string) {
	parts := strings.Fields(args)
	if len(parts) < 2 {
		s.printLine("usage: set base|token|timeout <value>")
		return
	}
	switch parts[0] {
	case "base":
		s.client.SetBaseURL(parts[1])
		s.printLine("base set to %s", parts[1])
	case "token":
		s.client.SetToken(parts[1])
		s.printLine("token updated")
	case "timeout":
		dur, err := time.ParseDuration(parts[1])
		if err != nil {
			s.printLine("invalid duration: %v", err)
			return
		}
		s.client.SetTimeout(dur)
		s.printLine("timeout set to %s", dur)
	default:
		s.printLine("unknown setting %q", parts[0])
	}
}

func (s *Session) handleCommand(ctx context.Context, line string) error {
	fields, err := shlex.Split(line)
	if err != nil {
		return fmt.Errorf("parse command failed: %w", err)
	}
	if len(fields) == 0 {
		return nil
	}
	switch fields[0] {
	case "ping":
		return s.post(ctx, "/ping", nil)
	case "judge":
		if len(fields) < 2 {
			return fmt.Errorf("usage: judge <request.json>")
		}
		return s.postFile(ctx, "/judge", fields[1])
	case "compile_spj":
		if len(fields) < 2 {
			return fmt.Errorf("usage: compile_spj <request.json>")
		}
		return s.postFile(ctx, "/compile_spj", fields[1])
	default:
		return fmt.Errorf("unknown command %q, try help", fields[0])
	}
}

func (s *Session) postFile(ctx context.Context, path, file string) error {
	body, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("read request file failed: %w", err)
	}
	if !json.Valid(body) {
		return fmt.Errorf("request file is not valid JSON")
	}
	return s.post(ctx, path, body)
}

func (s *Session) post(ctx context.Context, path string, body []byte) error {
	info, err := s.client.Post(ctx, path, body)
	if err != nil {
		return err
	}
	s.printLine("HTTP %d (%s)", info.StatusCode, info.Duration.Round(time.Millisecond))
	s.printBody(info.Body)
	return nil
}

func (s *Session) printBody(body []byte) {
	if len(body) == 0 {
		return
	}
	if s.prettyJSON {
		var buf bytes.Buffer
		if err := json.Indent(&buf, body, "", "  "); err == nil {
			s.printLine("%s", buf.String())
			return
		}
	}
	s.printLine("%s", string(body))
}

func (s *Session) printHelp() {
	s.printLine("commands:")
	s.printLine("  ping                       probe server health")
	s.printLine("  judge <request.json>       submit a judge request from file")
	s.printLine("  compile_spj <request.json> precompile a special judge")
	s.printLine("  set base|token|timeout     change connection settings")
	s.printLine("  help, exit")
}

func (s *Session) printLine(format string, args ...interface{}) {
	_, _ = fmt.Fprintf(s.outputWriter, format+"\n", args...)
	_ = s.outputWriter.Flush()
}
