package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/aqua777/krait"

	"github.com/aqua777/go-callrag/config"
)

// Command-local config keys.
const (
	KeyVerbose     = "verbose"
	KeyLogJSON     = "log.json"
	KeyCount       = "generate.count"
	KeyOutput      = "generate.output"
	KeyFlat        = "generate.flat"
	KeySeed        = "generate.seed"
	KeyInputs      = "input.files"
	KeyColumns     = "index.columns"
	KeyListLiteral = "index.list-literal"
	KeyQuestion    = "query.question"
	KeyUser        = "query.user"
	KeySession     = "chat.session"
	KeyStream      = "chat.stream"
	KeyInput       = "route.input"
	KeyRules       = "route.rules"
	KeyExplain     = "route.explain"
	KeyConcurrency = "route.concurrency"
	KeyLimit       = "eval.limit"
	KeyWorkers     = "eval.workers"
	KeyJudge       = "eval.judge"
)

// Defaults for command-local flags.
const (
	DefaultCount  = 100
	DefaultOutput = "sample_cdrs_for_analysis.jsonl"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	krait.App("callrag", "Teams call quality RAG", "Generate, index, route and chat over Microsoft Teams call detail records.").
		WithCommand(generateCommand()).
		WithCommand(indexCommand()).
		WithCommand(queryCommand()).
		WithCommand(chatCommand()).
		WithCommand(routeCommand()).
		WithCommand(evalCommand()).
		WithRun(func(args []string) error {
			fmt.Println("callrag - use 'callrag --help' to list commands")
			return nil
		})

	if err := krait.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// command creates a subcommand carrying the shared settings. krait flags are
// local to a command, so every subcommand registers them.
func command(name, short, long string) *krait.Command {
	return krait.New(name, short, long).
		WithConfig("", "config", "", "CALLRAG_CONFIG").
		WithParams(config.Params()).
		WithBoolP(KeyVerbose, "Enable debug logging", "verbose", "v", "CALLRAG_VERBOSE", false).
		WithBool(KeyLogJSON, "Write logs as JSON", "log-json", "CALLRAG_LOG_JSON", false)
}

// run builds the app from the resolved settings and calls fn with a context
// canceled on interrupt.
func run(fn func(ctx context.Context, a *app) error) func(args []string) error {
	return func(args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		logger := newLogger(os.Stderr, krait.GetBool(KeyVerbose), krait.GetBool(KeyLogJSON))
		return fn(ctx, newApp(config.Load(), logger, os.Stdin, os.Stdout))
	}
}

func generateCommand() *krait.Command {
	return command("generate", "Generate synthetic call records", "Write synthetic Teams call detail records as JSON lines.").
		WithIntP(KeyCount, "Number of records", "count", "n", "CALLRAG_COUNT", DefaultCount).
		WithStringP(KeyOutput, "Output file, - for stdout", "output", "o", "CALLRAG_OUTPUT", DefaultOutput).
		WithBool(KeyFlat, "Write the flat record shape", "flat", "CALLRAG_FLAT", false).
		WithInt64(KeySeed, "Random seed, 0 for time based", "seed", "CALLRAG_SEED", 0).
		WithRun(run(func(ctx context.Context, a *app) error {
			return a.generate(generateOptions{
				Count:  krait.GetInt(KeyCount),
				Output: krait.GetString(KeyOutput),
				Flat:   krait.GetBool(KeyFlat),
				Seed:   krait.GetInt64(KeySeed),
			})
		}))
}

func indexCommand() *krait.Command {
	return command("index", "Build the vector index", "Load call records, CSV rows, PDFs or datasets, embed them and store the vectors under the data directory.").
		WithStringSliceP(KeyInputs, "Files or directories to index", "input", "i", "CALLRAG_INPUT").
		WithStringSlice(KeyColumns, "CSV columns holding the text", "column", "CALLRAG_COLUMNS").
		WithBool(KeyListLiteral, "CSV text cells hold list literals such as ['a', 'b']", "list-literal", "CALLRAG_LIST_LITERAL", false).
		WithRun(run(func(ctx context.Context, a *app) error {
			_, err := a.index(ctx, indexOptions{
				Inputs:      krait.GetStringSlice(KeyInputs),
				Columns:     krait.GetStringSlice(KeyColumns),
				ListLiteral: krait.GetBool(KeyListLiteral),
			})
			return err
		}))
}

func queryCommand() *krait.Command {
	return command("query", "Ask one question", "Answer a question from the indexed call records.").
		WithStringP(KeyQuestion, "Question to ask", "question", "q", "CALLRAG_QUESTION", "").
		WithStringP(KeyUser, "Only use calls organized by this UPN", "user", "u", "CALLRAG_USER", "").
		WithRun(run(func(ctx context.Context, a *app) error {
			return a.query(ctx, queryOptions{
				Question: krait.GetString(KeyQuestion),
				User:     krait.GetString(KeyUser),
			})
		}))
}

func chatCommand() *krait.Command {
	return command("chat", "Chat about the call records", "Interactive chat over the indexed call records. History is kept per session in the chat database.").
		WithStringP(KeySession, "Session id, new when empty", "session", "s", "CALLRAG_SESSION", "").
		WithStringP(KeyUser, "Only use calls organized by this UPN", "user", "u", "CALLRAG_USER", "").
		WithBool(KeyStream, "Stream answers token by token", "stream", "CALLRAG_STREAM", false).
		WithRun(run(func(ctx context.Context, a *app) error {
			return a.chat(ctx, chatOptions{
				Session: krait.GetString(KeySession),
				User:    krait.GetString(KeyUser),
				Stream:  krait.GetBool(KeyStream),
			})
		}))
}

func routeCommand() *krait.Command {
	return command("route", "Route call records to agents", "Apply the quality thresholds to every record and report which agent handles it.").
		WithStringP(KeyInput, "JSONL file of call records", "input", "i", "CALLRAG_ROUTE_INPUT", "").
		WithString(KeyRules, "JSON file replacing the default rules", "rules", "CALLRAG_RULES", "").
		WithBool(KeyExplain, "Ask the chat model to explain each routed record", "explain", "CALLRAG_EXPLAIN", false).
		WithInt(KeyConcurrency, "Records handled at once", "concurrency", "CALLRAG_CONCURRENCY", 4).
		WithRun(run(func(ctx context.Context, a *app) error {
			return a.route(ctx, routeOptions{
				Input:       krait.GetString(KeyInput),
				Rules:       krait.GetString(KeyRules),
				Explain:     krait.GetBool(KeyExplain),
				Concurrency: krait.GetInt(KeyConcurrency),
			})
		}))
}

func evalCommand() *krait.Command {
	return command("eval", "Evaluate answers on a QA dataset", "Answer dataset questions from their context passages and score them against the reference answers.").
		WithStringSliceP(KeyInputs, "Dataset files (CSV, JSONL or XLSX)", "input", "i", "CALLRAG_EVAL_INPUT").
		WithInt(KeyLimit, "Samples to evaluate, 0 for all", "limit", "CALLRAG_EVAL_LIMIT", 3).
		WithInt(KeyWorkers, "Samples evaluated at once", "workers", "CALLRAG_EVAL_WORKERS", 1).
		WithBool(KeyJudge, "Also grade answers with the chat model", "judge", "CALLRAG_EVAL_JUDGE", false).
		WithRun(run(func(ctx context.Context, a *app) error {
			_, err := a.eval(ctx, evalOptions{
				Inputs:  krait.GetStringSlice(KeyInputs),
				Limit:   krait.GetInt(KeyLimit),
				Workers: krait.GetInt(KeyWorkers),
				Judge:   krait.GetBool(KeyJudge),
			})
			return err
		}))
}
