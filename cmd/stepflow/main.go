// stepflow is a command-line companion for multi-step form definitions: it
// validates and inspects form markup, exports the field schema, and drives a
// form session interactively for debugging branch and skip behavior.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/pflag"

	stepflow "github.com/formsmith/stepflow-go"
	"github.com/formsmith/stepflow-go/internal/logctx"
	"github.com/formsmith/stepflow-go/markup"
	"github.com/formsmith/stepflow-go/persist"
	"github.com/formsmith/stepflow-go/persist/memory"
	persistredis "github.com/formsmith/stepflow-go/persist/redis"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	if len(os.Args) < 2 {
		printUsage()
		return fmt.Errorf("a command is required")
	}

	command := os.Args[1]
	args := os.Args[2:]

	switch command {
	case "inspect":
		return runInspect(args)
	case "schema":
		return runSchema(args)
	case "run":
		return runSession(args)
	case "watch":
		return runWatch(args)
	case "help", "--help", "-h":
		printUsage()
		return nil
	default:
		printUsage()
		return fmt.Errorf("unknown command: %s", command)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `stepflow: multi-step form toolkit

Usage:
  stepflow inspect [--json] FORM     validate a form definition and list its steps
  stepflow schema FORM               print the form's field schema as JSON Schema
  stepflow run [flags] FORM          drive a form session interactively
  stepflow watch FORM                re-validate the form whenever the file changes

FORM is an HTML file or a YAML form definition (.yaml/.yml).

Run flags:
  --form-id ID      session identifier for save/resume (default: file basename)
  --redis           persist sessions in Redis (REDIS_ADDR env, default localhost:6379)
  --log-level LVL   debug, info, warn, or error (default: warn)
`)
}

func newLogger(level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	base := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	return slog.New(logctx.Handler{Handler: base}), nil
}

// loadDocument parses a form definition, dispatching on the file extension.
func loadDocument(path string) (*markup.Document, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		doc, err := markup.ParseYAML(data)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		return doc, nil
	default:
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		doc, err := markup.ParseHTML(f)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		return doc, nil
	}
}

// --- inspect ---

type stepReport struct {
	ID       string   `json:"id"`
	Index    int      `json:"index"`
	Type     string   `json:"type,omitempty"`
	Subtype  string   `json:"subtype,omitempty"`
	ShowIf   string   `json:"show_if,omitempty"`
	SkipIf   string   `json:"skip_if,omitempty"`
	SkipTo   string   `json:"skip_to,omitempty"`
	Fields   []string `json:"fields,omitempty"`
	Branches []string `json:"branches,omitempty"`
}

func runInspect(args []string) error {
	flags := pflag.NewFlagSet("inspect", pflag.ContinueOnError)
	asJSON := flags.Bool("json", false, "emit the report as JSON")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if flags.NArg() != 1 {
		return fmt.Errorf("inspect requires exactly one FORM argument")
	}

	doc, err := loadDocument(flags.Arg(0))
	if err != nil {
		return err
	}

	var reports []stepReport
	for i, stepEl := range doc.Steps() {
		r := stepReport{
			ID:      stepEl.Attr(markup.AttrAnswer),
			Index:   i,
			Type:    stepEl.Attr(markup.AttrStepType),
			Subtype: stepEl.Attr(markup.AttrStepSubtype),
			ShowIf:  stepEl.Attr(markup.AttrShowIf),
			SkipIf:  stepEl.Attr(markup.AttrSkipIf),
			SkipTo:  stepEl.Attr(markup.AttrSkipTo),
			Fields:  doc.FieldNamesIn(stepEl),
		}
		if r.SkipIf == "" {
			if unless := stepEl.Attr(markup.AttrSkipUnless); unless != "" {
				r.SkipIf = "!(" + unless + ")"
			}
		}
		for _, el := range doc.FieldsIn(stepEl) {
			if target := el.Attr(markup.AttrGoTo); target != "" {
				r.Branches = append(r.Branches, fmt.Sprintf("%s -> %s", el.FieldName(), target))
			}
		}
		reports = append(reports, r)
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(reports)
	}

	for _, r := range reports {
		fmt.Printf("%2d  %s", r.Index, displayID(r.ID))
		if r.Type != "" {
			fmt.Printf("  [%s]", r.Type)
		}
		fmt.Println()
		if len(r.Fields) > 0 {
			fmt.Printf("      fields: %s\n", strings.Join(r.Fields, ", "))
		}
		for _, b := range r.Branches {
			fmt.Printf("      branch: %s\n", b)
		}
		if r.ShowIf != "" {
			fmt.Printf("      show-if: %s\n", r.ShowIf)
		}
		if r.SkipIf != "" {
			line := "      skip-if: " + r.SkipIf
			if r.SkipTo != "" {
				line += " -> " + r.SkipTo
			}
			fmt.Println(line)
		}
	}
	return nil
}

func displayID(id string) string {
	if id == "" {
		return "(unnamed)"
	}
	return id
}

// --- schema ---

func runSchema(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("schema requires exactly one FORM argument")
	}
	doc, err := loadDocument(args[0])
	if err != nil {
		return err
	}
	schema := stepflow.FieldSchema(doc)
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(schema)
}

// --- run ---

func runSession(args []string) error {
	flags := pflag.NewFlagSet("run", pflag.ContinueOnError)
	formID := flags.String("form-id", "", "session identifier for save/resume")
	useRedis := flags.Bool("redis", false, "persist sessions in Redis")
	logLevel := flags.String("log-level", "warn", "debug, info, warn, or error")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if flags.NArg() != 1 {
		return fmt.Errorf("run requires exactly one FORM argument")
	}
	path := flags.Arg(0)

	log, err := newLogger(*logLevel)
	if err != nil {
		return err
	}
	doc, err := loadDocument(path)
	if err != nil {
		return err
	}
	if *formID == "" {
		*formID = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	var snaps persist.Store
	if *useRedis {
		store, err := persistredis.NewFromEnv()
		if err != nil {
			return fmt.Errorf("redis store: %w", err)
		}
		snaps = store
	} else {
		snaps = memory.New()
	}
	defer snaps.Close()

	engine := stepflow.New(
		stepflow.WithLogger(log),
		stepflow.WithFormID(*formID),
		stepflow.WithSnapshotStore(snaps),
	)
	if err := engine.Init(doc); err != nil {
		return err
	}

	// Every log line emitted under this context names the session it
	// belongs to; step data is attached per command below.
	ctx := logctx.WithFormData(context.Background(), &logctx.FormData{
		FormID: *formID,
		Source: path,
	})
	log.InfoContext(ctx, "cli.session_started", slog.String("form", *formID))

	fmt.Printf("session %q started; type \"help\" for commands\n", *formID)
	printCurrent(engine)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if quit := dispatch(ctx, engine, line); quit {
			return nil
		}
		cur := engine.CurrentStep()
		log.DebugContext(
			logctx.WithStepData(ctx, &logctx.StepData{StepID: cur.ID, Index: cur.Index}),
			"cli.command_handled",
			slog.String("command", line))
		printCurrent(engine)
	}
}

func dispatch(ctx context.Context, engine *stepflow.Engine, line string) (quit bool) {
	fields := strings.Fields(line)
	cmd, rest := fields[0], fields[1:]

	switch cmd {
	case "help":
		fmt.Print(`commands:
  next | back                     sequential navigation
  goto STEP_ID                    jump to a step or step-item
  radio NAME VALUE                select a radio option
  check NAME [VALUE]              check a checkbox (VALUE for groups)
  uncheck NAME [VALUE]            uncheck a checkbox
  text NAME VALUE...              set a text field (empty VALUE clears)
  skip TARGET [REASON]            skip the current step
  undo STEP_ID                    undo a skip
  state                           dump the session state
  save | resume                   persist / restore the session
  quit
`)
	case "next":
		engine.Next()
	case "back":
		engine.Back()
	case "goto":
		if len(rest) == 1 {
			engine.GoToStepID(rest[0])
		}
	case "radio":
		if len(rest) == 2 {
			engine.Radio(rest[0], rest[1])
		}
	case "check", "uncheck":
		if len(rest) >= 1 {
			value := ""
			if len(rest) > 1 {
				value = rest[1]
			}
			engine.CheckboxValue(rest[0], value, cmd == "check")
		}
	case "text":
		if len(rest) >= 1 {
			engine.Text(rest[0], strings.Join(rest[1:], " "))
		}
	case "skip":
		if len(rest) >= 1 {
			reason := ""
			if len(rest) > 1 {
				reason = rest[1]
			}
			if !engine.Skip(rest[0], reason) {
				fmt.Println("skip rejected")
			}
		}
	case "undo":
		if len(rest) == 1 && !engine.UndoSkip(rest[0]) {
			fmt.Println("undo rejected")
		}
	case "state":
		out, err := json.MarshalIndent(engine.GetDebugState(), "", "  ")
		if err == nil {
			fmt.Println(string(out))
		}
	case "save":
		if err := engine.Save(ctx); err != nil {
			fmt.Printf("save failed: %v\n", err)
		} else {
			fmt.Println("saved")
		}
	case "resume":
		if err := engine.Resume(ctx); err != nil {
			fmt.Printf("resume failed: %v\n", err)
		} else {
			fmt.Println("resumed")
		}
	case "quit", "exit":
		return true
	default:
		fmt.Printf("unknown command %q; type \"help\"\n", cmd)
	}
	return false
}

func printCurrent(engine *stepflow.Engine) {
	cur := engine.CurrentStep()
	fmt.Printf("step %d: %s\n", cur.Index, displayID(cur.ID))
}

// --- watch ---

func runWatch(args []string) error {
	flags := pflag.NewFlagSet("watch", pflag.ContinueOnError)
	logLevel := flags.String("log-level", "info", "debug, info, warn, or error")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if flags.NArg() != 1 {
		return fmt.Errorf("watch requires exactly one FORM argument")
	}
	path := flags.Arg(0)

	log, err := newLogger(*logLevel)
	if err != nil {
		return err
	}
	if _, err := loadDocument(path); err != nil {
		return err
	}
	fmt.Printf("watching %s; edit the file to re-validate\n", path)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return stepflow.WatchDocument(ctx, path, log, func(doc *markup.Document) {
		fmt.Printf("reloaded: %d steps\n", len(doc.Steps()))
	})
}
