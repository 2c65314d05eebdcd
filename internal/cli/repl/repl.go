package repl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"learnhub/internal/cli/command"
	httpclient "learnhub/internal/cli/http"
	"learnhub/internal/cli/state"

	"github.com/chzyer/readline"
	"github.com/google/shlex"
)

const defaultPrompt = "learnhub> "

// Session holds REPL state.
type Session struct {
	client     *httpclient.Client
	commands   map[string]command.Command
	profile    *state.Profile
	statePath  string
	prettyJSON bool
	out        io.Writer
	// ask reads a value for a missing required field. Nil disables prompting.
	ask func(label string) (string, error)
}

func New(client *httpclient.Client, commands map[string]command.Command, profile *state.Profile, statePath string, prettyJSON bool) *Session {
	return &Session{
		client:     client,
		commands:   commands,
		profile:    profile,
		statePath:  statePath,
		prettyJSON: prettyJSON,
		out:        os.Stdout,
	}
}

// Run reads commands until exit, EOF or an interrupt on an empty line.
func (s *Session) Run(ctx context.Context, historyPath string) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:            defaultPrompt,
		HistoryFile:       historyPath,
		HistoryLimit:      500,
		AutoComplete:      s.completer(),
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
	})
	if err != nil {
		return fmt.Errorf("init readline failed: %w", err)
	}
	defer func() { _ = rl.Close() }()

	s.out = rl.Stdout()
	s.ask = func(label string) (string, error) {
		rl.SetPrompt(label + ": ")
		defer rl.SetPrompt(defaultPrompt)
		line, err := rl.Readline()
		if err != nil {
			return "", fmt.Errorf("read input failed: %w", err)
		}
		return strings.TrimSpace(line), nil
	}

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if strings.TrimSpace(line) == "" {
				return nil
			}
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read input failed: %w", err)
		}
		quit, err := s.Execute(ctx, line)
		if err != nil {
			s.printLine("error: %v", err)
		}
		if quit {
			return nil
		}
	}
}

// Execute handles one input line and reports whether the session should end.
func (s *Session) Execute(ctx context.Context, line string) (bool, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return false, nil
	}
	switch line {
	case "exit", "quit":
		s.printLine("bye")
		return true, nil
	case "help":
		s.printHelp()
		return false, nil
	}
	if strings.HasPrefix(line, "set ") {
		s.handleSet(strings.TrimSpace(strings.TrimPrefix(line, "set ")))
		return false, nil
	}
	if line == "show" || strings.HasPrefix(line, "show ") {
		s.handleShow(strings.TrimSpace(strings.TrimPrefix(line, "show")))
		return false, nil
	}
	return false, s.handleCommand(ctx, line)
}

func (s *Session) handleSet(args string) {
	parts := strings.Fields(args)
	if len(parts) == 0 {
		s.printLine("usage: set base|timeout|user|language <value>")
		return
	}
	switch parts[0] {
	case "base":
		if len(parts) < 2 {
			s.printLine("usage: set base http://127.0.0.1:8080")
			return
		}
		s.client.SetBaseURL(parts[1])
		s.printLine("base set to %s", parts[1])
	case "timeout":
		if len(parts) < 2 {
			s.printLine("usage: set timeout 30s")
			return
		}
		dur, err := time.ParseDuration(parts[1])
		if err != nil {
			s.printLine("invalid duration: %v", err)
			return
		}
		s.client.SetTimeout(dur)
		s.printLine("timeout set to %s", dur)
	case "user":
		if len(parts) < 2 {
			s.printLine("usage: set user <username>")
			return
		}
		s.profile.Username = parts[1]
		s.saveProfile()
		s.printLine("user set to %s", parts[1])
	case "language":
		if len(parts) < 2 {
			s.printLine("usage: set language <language>")
			return
		}
		s.profile.Language = strings.ToLower(parts[1])
		s.saveProfile()
		s.printLine("language set to %s", s.profile.Language)
	default:
		s.printLine("unknown set command")
	}
}

func (s *Session) saveProfile() {
	if s.statePath == "" {
		return
	}
	if err := state.Save(s.statePath, *s.profile); err != nil {
		s.printLine("save profile failed: %v", err)
	}
}

func (s *Session) handleShow(args string) {
	switch args {
	case "", "profile":
		user := s.profile.Username
		if user == "" {
			user = "<empty>"
		}
		lang := s.profile.Language
		if lang == "" {
			lang = "<empty>"
		}
		s.printLine("user: %s", user)
		s.printLine("language: %s", lang)
	case "config":
		s.printLine("base: %s", s.client.BaseURL())
		s.printLine("statePath: %s", s.statePath)
	default:
		s.printLine("usage: show profile|config")
	}
}

func (s *Session) handleCommand(ctx context.Context, line string) error {
	tokens, err := shlex.Split(line)
	if err != nil {
		return fmt.Errorf("parse command failed: %w", err)
	}
	if len(tokens) < 2 {
		return fmt.Errorf("invalid command, use: <service> <action> key=value ...")
	}
	cmd, ok := s.commands[tokens[0]+" "+tokens[1]]
	if !ok {
		return fmt.Errorf("unknown command: %s %s", tokens[0], tokens[1])
	}
	params := command.Params{}
	for _, token := range tokens[2:] {
		parts := strings.SplitN(token, "=", 2)
		if len(parts) != 2 {
			return fmt.Errorf("invalid param: %s", token)
		}
		params.Set(parts[0], parts[1])
	}
	params.Canonicalize(cmd.Fields)

	s.applyProfile(cmd, params)
	if err := s.promptMissing(cmd, params); err != nil {
		return err
	}
	req, err := command.BuildRequest(cmd, params)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(ctx, req.Method, req.Path, req.Headers, req.Body)
	if err != nil {
		return err
	}
	s.renderResponse(resp)
	return nil
}

func (s *Session) applyProfile(cmd command.Command, params command.Params) {
	if s.profile.Username != "" && cmd.HasField("username") && params.Get("username") == "" {
		params.Set("username", s.profile.Username)
	}
	if s.profile.Language != "" && cmd.HasField("language") && params.Get("language") == "" {
		params.Set("language", s.profile.Language)
	}
}

func (s *Session) promptMissing(cmd command.Command, params command.Params) error {
	for _, field := range cmd.Missing(params) {
		if s.ask == nil {
			return fmt.Errorf("missing parameter: %s", field.Name)
		}
		label := field.Prompt
		if label == "" {
			label = field.Name
		}
		value, err := s.ask(label)
		if err != nil {
			return err
		}
		params.Set(field.Name, value)
	}
	return nil
}

func (s *Session) renderResponse(resp httpclient.ResponseInfo) {
	s.printLine("HTTP %d (%s)", resp.StatusCode, resp.Duration)
	if len(resp.Body) == 0 {
		return
	}
	if s.prettyJSON {
		var raw interface{}
		if err := json.Unmarshal(resp.Body, &raw); err == nil {
			formatted, _ := json.MarshalIndent(raw, "", "  ")
			s.printLine("%s", string(formatted))
			return
		}
	}
	s.printLine("%s", string(resp.Body))
}

func (s *Session) completer() *readline.PrefixCompleter {
	actions := map[string][]readline.PrefixCompleterInterface{}
	for _, cmd := range s.commands {
		actions[cmd.Service] = append(actions[cmd.Service], readline.PcItem(cmd.Action))
	}
	services := make([]string, 0, len(actions))
	for service := range actions {
		services = append(services, service)
	}
	sort.Strings(services)

	items := []readline.PrefixCompleterInterface{
		readline.PcItem("help"),
		readline.PcItem("exit"),
		readline.PcItem("set",
			readline.PcItem("base"),
			readline.PcItem("timeout"),
			readline.PcItem("user"),
			readline.PcItem("language"),
		),
		readline.PcItem("show", readline.PcItem("profile"), readline.PcItem("config")),
	}
	for _, service := range services {
		items = append(items, readline.PcItem(service, actions[service]...))
	}
	return readline.NewPrefixCompleter(items...)
}

func (s *Session) printHelp() {
	s.printLine("usage: <service> <action> key=value ...")
	s.printLine("system: help | exit | set base|timeout|user|language | show profile|config")
	s.printLine("commands:")
	for _, name := range command.Names(s.commands) {
		cmd := s.commands[name]
		fields := make([]string, 0, len(cmd.Fields))
		for _, field := range cmd.Fields {
			if field.Required {
				fields = append(fields, field.Name)
			} else {
				fields = append(fields, "["+field.Name+"]")
			}
		}
		s.printLine("  %-20s %s", name, cmd.Summary)
		if len(fields) > 0 {
			s.printLine("  %-20s %s", "", strings.Join(fields, " "))
		}
	}
	s.printLine("examples:")
	s.printLine("  set user ada")
	s.printLine("  challenge next topic=Arrays difficulty=easy")
	s.printLine("  challenge run id=arrays-two-sum lang=python file=./two_sum.py")
	s.printLine("  quiz generate lang=go")
}

func (s *Session) printLine(format string, args ...interface{}) {
	_, _ = fmt.Fprintf(s.out, format+"\n", args...)
}
