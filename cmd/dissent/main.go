// Command dissent runs one debate from the command line. The query fans
// out to the configured panel, reflection rounds run, a synthesizer
// folds the exchange into a final answer, and the transcript is written
// as JSON to stdout or a file. Progress logs go to stderr so the JSON
// stream stays clean for piping.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/richardspicer/questionable-ai/internal/debate"
	"github.com/richardspicer/questionable-ai/pkg/dissent"
)

// contextFlags collects repeatable -context alias=text pairs.
type contextFlags map[string]string

func (c contextFlags) String() string {
	pairs := make([]string, 0, len(c))
	for alias, text := range c {
		pairs = append(pairs, alias+"="+text)
	}
	sort.Strings(pairs)
	return strings.Join(pairs, ",")
}

func (c contextFlags) Set(v string) error {
	alias, text, ok := strings.Cut(v, "=")
	if !ok || alias == "" {
		return fmt.Errorf("expected alias=text, got %q", v)
	}
	c[alias] = text
	return nil
}

func main() {
	os.Exit(run())
}

func run() int {
	_ = godotenv.Load()

	var query string
	flag.StringVar(&query, "q", "", "Query to put to the panel.")
	flag.StringVar(&query, "query", "", "Query to put to the panel (same as -q).")
	fromStdin := flag.Bool("stdin", false, "Read the query from standard input instead of -q.")
	panelCSV := flag.String("panel", "", "Comma-separated panel aliases (default: configured panel).")
	synthesizer := flag.String("synthesizer", "", "Alias that writes the final answer (default: configured).")
	rounds := flag.Int("rounds", 0, "Reflection rounds, 1 to 3 (default: configured).")
	configPath := flag.String("config", "", "Path to a config file.")
	score := flag.String("score", "", "Reference answer to score the synthesis against (adds one judge call).")
	scoreFile := flag.String("score-file", "", "File containing the reference answer.")
	outPath := flag.String("o", "", "Write the transcript to this file instead of stdout.")
	verbose := flag.Bool("v", false, "Enable debug logging.")
	panelContext := contextFlags{}
	flag.Var(panelContext, "context", "Extra context for one member as alias=text. Repeatable.")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if *fromStdin {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: cannot read query from stdin: %v\n", err)
			return 1
		}
		query = strings.TrimSpace(string(data))
	}
	if strings.TrimSpace(query) == "" {
		fmt.Fprintln(os.Stderr, "Error: a query is required. Pass -q or pipe one with -stdin.")
		flag.Usage()
		return 2
	}

	groundTruth, err := resolveGroundTruth(*score, *scoreFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}

	opts := []dissent.Option{dissent.WithLogger(logger)}
	if *configPath != "" {
		opts = append(opts, dissent.WithConfigFile(*configPath))
	}
	app, err := dissent.New(opts...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer app.Close()

	if !app.Config().Credentials().Any() {
		fmt.Fprintln(os.Stderr, "Error: No API key found.\n"+
			"Set OPENROUTER_API_KEY (or another provider key) in the environment\n"+
			"or configure backend keys in the config file.")
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	req := &dissent.Request{
		Query:       query,
		Synthesizer: *synthesizer,
		Rounds:      *rounds,
	}
	if *panelCSV != "" {
		req.Panel = splitPanel(*panelCSV)
	}
	if len(panelContext) > 0 {
		req.PanelContext = panelContext
	}

	transcript, err := app.Orchestrator().Run(ctx, req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	if groundTruth != "" {
		scoreTranscript(ctx, app, transcript, groundTruth, logger)
	}

	return emit(transcript, *outPath, logger)
}

// resolveGroundTruth returns the reference answer from the inline flag
// or a file, never both.
func resolveGroundTruth(inline, file string) (string, error) {
	if inline != "" && file != "" {
		return "", errors.New("Cannot use both -score and -score-file. Pick one.")
	}
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("cannot read %s: %v", file, err)
		}
		return strings.TrimSpace(string(data)), nil
	}
	return inline, nil
}

// splitPanel parses a comma-separated alias list, dropping empty parts.
func splitPanel(csv string) []string {
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// scoreTranscript judges the synthesis against the reference answer and
// attaches the verdict to the transcript. The debate already succeeded,
// so a scoring failure is reported without failing the run.
func scoreTranscript(ctx context.Context, app *dissent.App, t *dissent.Transcript, groundTruth string, logger *slog.Logger) {
	cfg := app.Config()
	judge, err := debate.BindMember(cfg, cfg.Credentials(), t.SynthesizerID)
	if err == nil {
		err = judge.BindErr
	}
	if err != nil {
		logger.Warn("scoring skipped", "error", err)
		return
	}
	verdict, err := app.Scorer().Evaluate(ctx, t, judge.PanelMember, groundTruth)
	if err != nil {
		logger.Warn("scoring failed", "error", err)
		return
	}
	logger.Info("synthesis scored",
		"accuracy", verdict.Accuracy,
		"completeness", verdict.Completeness,
		"overall", verdict.Overall)
}

// emit writes the transcript as indented JSON with a trailing newline.
func emit(t *dissent.Transcript, path string, logger *slog.Logger) int {
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot encode transcript: %v\n", err)
		return 1
	}
	data = append(data, '\n')
	if path == "" {
		_, _ = os.Stdout.Write(data)
		return 0
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "Error: Cannot write to %s: %v\n", path, err)
		return 1
	}
	logger.Info("output written", "path", path)
	return 0
}
