package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"

	"github.com/aqua777/go-callrag/agent"
	"github.com/aqua777/go-callrag/cdr"
	"github.com/aqua777/go-callrag/chatengine"
	"github.com/aqua777/go-callrag/config"
	"github.com/aqua777/go-callrag/embedding"
	"github.com/aqua777/go-callrag/evaluation"
	"github.com/aqua777/go-callrag/ingestion"
	"github.com/aqua777/go-callrag/llm"
	"github.com/aqua777/go-callrag/memory"
	"github.com/aqua777/go-callrag/postprocessor"
	"github.com/aqua777/go-callrag/rag/reader"
	"github.com/aqua777/go-callrag/rag/retriever"
	"github.com/aqua777/go-callrag/rag/store"
	"github.com/aqua777/go-callrag/router"
	"github.com/aqua777/go-callrag/schema"
)

// app holds what every command needs. The model constructors are fields so
// tests can swap in offline doubles.
type app struct {
	cfg    config.Config
	logger *slog.Logger
	in     io.Reader
	out    io.Writer

	newLLM       func(ctx context.Context, cfg config.Config, logger *slog.Logger) (llm.LLM, error)
	newEmbedding func(ctx context.Context, cfg config.Config, logger *slog.Logger) (embedding.EmbeddingModel, error)
}

func newApp(cfg config.Config, logger *slog.Logger, in io.Reader, out io.Writer) *app {
	if logger == nil {
		logger = slog.Default()
	}
	return &app{
		cfg:          cfg,
		logger:       logger,
		in:           in,
		out:          out,
		newLLM:       config.NewLLM,
		newEmbedding: config.NewEmbeddingModel,
	}
}

// newLogger builds the process logger and installs it as the slog default.
func newLogger(w io.Writer, verbose, asJSON bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if asJSON {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

type generateOptions struct {
	Count  int
	Output string
	Flat   bool
	Seed   int64
}

func (a *app) generate(opts generateOptions) error {
	if opts.Count < 1 {
		return fmt.Errorf("count must be at least 1, got %d", opts.Count)
	}
	genOpts := []cdr.GeneratorOption{cdr.WithGeneratorLogger(a.logger)}
	if opts.Seed != 0 {
		genOpts = append(genOpts, cdr.WithSeed(opts.Seed))
	}
	gen := cdr.NewGenerator(genOpts...)

	write := func(w io.Writer) error {
		if opts.Flat {
			return cdr.WriteFlatJSONL(w, gen.GenerateFlat(opts.Count))
		}
		return cdr.WriteJSONL(w, gen.Generate(opts.Count))
	}

	if opts.Output == "" || opts.Output == "-" {
		if err := write(a.out); err != nil {
			return fmt.Errorf("failed to write records: %w", err)
		}
		return nil
	}

	f, err := os.Create(opts.Output)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("failed to write records: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close output file: %w", err)
	}
	fmt.Fprintf(a.out, "Wrote %d records to %s\n", opts.Count, opts.Output)
	return nil
}

type indexOptions struct {
	Inputs      []string
	Columns     []string
	ListLiteral bool
}

func (a *app) index(ctx context.Context, opts indexOptions) (ingestion.Stats, error) {
	if len(opts.Inputs) == 0 {
		return ingestion.Stats{}, fmt.Errorf("no input given, use --input")
	}
	if err := a.cfg.Validate(); err != nil {
		return ingestion.Stats{}, err
	}

	var docs []schema.Node
	for _, in := range opts.Inputs {
		d, err := a.loadDocuments(ctx, in, opts)
		if err != nil {
			return ingestion.Stats{}, err
		}
		docs = append(docs, d...)
	}
	a.logger.Info("loaded documents", "count", len(docs))

	embed, err := a.newEmbedding(ctx, a.cfg, a.logger)
	if err != nil {
		return ingestion.Stats{}, err
	}
	vs, err := config.OpenVectorStore(a.cfg, a.logger)
	if err != nil {
		return ingestion.Stats{}, err
	}
	splitter, err := config.NewSplitter(a.cfg)
	if err != nil {
		return ingestion.Stats{}, err
	}
	cache, err := ingestion.NewEmbeddingCacheFromPath(a.cfg.EmbeddingCachePath(), ingestion.WithCacheCollection(a.cfg.EmbeddingCacheCollection()))
	if err != nil {
		return ingestion.Stats{}, err
	}

	pipeline := ingestion.NewPipeline(embed, vs,
		ingestion.WithSplitter(splitter),
		ingestion.WithBatchSize(a.cfg.EmbedBatchSize),
		ingestion.WithCache(cache),
		ingestion.WithLogger(a.logger),
		ingestion.WithProgress(func(current, total int) {
			a.logger.Debug("embedding progress", "current", current, "total", total)
		}),
	)
	stats, err := pipeline.Run(ctx, docs)
	if err != nil {
		return stats, err
	}

	if err := os.MkdirAll(a.cfg.DataDir, 0o755); err != nil {
		return stats, fmt.Errorf("failed to create data directory: %w", err)
	}
	if err := config.SaveVectorStore(a.cfg, vs); err != nil {
		return stats, err
	}
	if err := cache.Persist(a.cfg.EmbeddingCachePath()); err != nil {
		return stats, err
	}

	fmt.Fprintf(a.out, "Indexed %d documents into %d chunks (%d duplicates, %d cached, %d dimensions) in %s\n",
		stats.Documents, stats.Chunks, stats.Duplicates, stats.Cached, stats.Dimensions, stats.Elapsed.Round(time.Millisecond))
	return stats, nil
}

// loadDocuments picks a reader by path: directories are walked, files are
// read by extension.
func (a *app) loadDocuments(ctx context.Context, path string, opts indexOptions) ([]schema.Node, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat input: %w", err)
	}

	csvReader := func(files ...string) *reader.CSVReader {
		r := reader.NewCSVReader(files...).WithListLiteral(opts.ListLiteral)
		if len(opts.Columns) > 0 {
			r = r.WithTextColumns(opts.Columns...)
		}
		return r
	}

	var r reader.ReaderWithContext
	if info.IsDir() {
		dr := reader.NewSimpleDirectoryReader(path)
		dr.CSV = csvReader()
		r = dr
	} else {
		switch strings.ToLower(filepath.Ext(path)) {
		case ".jsonl", ".ndjson":
			r = reader.NewCDRReader(path)
		case ".csv":
			r = csvReader(path)
		case ".tsv":
			r = csvReader(path).WithDelimiter('\t')
		case ".pdf":
			r = reader.NewPDFReader([]string{path})
		case ".xlsx", ".xlsm":
			r = reader.NewDatasetReader(path)
		default:
			return nil, fmt.Errorf("unsupported input %s", path)
		}
	}
	return r.LoadDataWithContext(ctx)
}

type queryOptions struct {
	Question string
	User     string
}

func (a *app) query(ctx context.Context, opts queryOptions) error {
	if strings.TrimSpace(opts.Question) == "" {
		return fmt.Errorf("no question given, use --question")
	}
	if err := a.cfg.Validate(); err != nil {
		return err
	}
	eng, err := a.chatEngine(ctx, nil, opts.User)
	if err != nil {
		return err
	}
	resp, err := eng.Chat(ctx, opts.Question)
	if err != nil {
		return err
	}

	fmt.Fprintln(a.out, resp.Response)
	if len(resp.SourceNodes) > 0 {
		fmt.Fprintln(a.out, "\nSources:")
		for _, n := range resp.SourceNodes {
			fmt.Fprintf(a.out, "  %.3f  %s\n", n.Score, n.Node.ID)
		}
	}
	return nil
}

// chatEngine answers from the index, or directly from the model when
// nothing has been indexed yet.
func (a *app) chatEngine(ctx context.Context, mem memory.Memory, user string) (chatengine.ChatEngine, error) {
	model, err := a.newLLM(ctx, a.cfg, a.logger)
	if err != nil {
		return nil, err
	}
	vs, err := config.OpenVectorStore(a.cfg, a.logger)
	if err != nil {
		return nil, err
	}
	if c, ok := vs.(store.Counter); ok && c.Count() == 0 {
		a.logger.Warn("index is empty, answering without retrieval", "dataDir", a.cfg.DataDir)
		return chatengine.NewSimpleChatEngine(model, mem, chatengine.DefaultSystemPrompt).WithLogger(a.logger), nil
	}

	embed, err := a.newEmbedding(ctx, a.cfg, a.logger)
	if err != nil {
		return nil, err
	}
	retOpts := []retriever.VectorRetrieverOption{
		retriever.WithTopK(a.cfg.TopK),
		retriever.WithLogger(a.logger),
	}
	if user != "" {
		retOpts = append(retOpts, retriever.WithFilters(retriever.UserFilter(user)))
	}
	ret := retriever.NewVectorRetriever(vs, embed, retOpts...)

	engOpts := []chatengine.ContextChatEngineOption{chatengine.WithLogger(a.logger)}
	if a.cfg.MinScore > 0 {
		engOpts = append(engOpts, chatengine.WithPostprocessors(postprocessor.NewSimilarityCutoff(a.cfg.MinScore)))
	}
	if mem != nil {
		engOpts = append(engOpts, chatengine.WithMemory(mem))
	}
	return chatengine.NewContextChatEngine(ret, model, engOpts...), nil
}

type chatOptions struct {
	Session string
	User    string
	Stream  bool
}

func (a *app) chat(ctx context.Context, opts chatOptions) error {
	if err := a.cfg.Validate(); err != nil {
		return err
	}
	if opts.Session == "" {
		opts.Session = uuid.NewString()
	}
	cs, err := config.OpenChatStore(a.cfg, a.logger)
	if err != nil {
		return err
	}
	defer cs.Close()

	eng, err := a.chatEngine(ctx, memory.NewChatMemoryBuffer(cs, opts.Session), opts.User)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "Session %s. Type 'exit' to quit, 'clear' to forget the conversation.\n", opts.Session)
	scanner := bufio.NewScanner(a.in)
	for {
		fmt.Fprint(a.out, "> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		switch strings.ToLower(line) {
		case "":
			continue
		case "exit", "quit":
			fmt.Fprintln(a.out, "Goodbye!")
			return nil
		case "clear":
			if err := eng.Reset(ctx); err != nil {
				fmt.Fprintf(a.out, "Error: %v\n", err)
			} else {
				fmt.Fprintln(a.out, "History cleared.")
			}
			continue
		}

		if err := a.answer(ctx, eng, line, opts.Stream); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			fmt.Fprintf(a.out, "Error: %v\n", err)
		}
	}
	fmt.Fprintln(a.out)
	return scanner.Err()
}

func (a *app) answer(ctx context.Context, eng chatengine.ChatEngine, message string, stream bool) error {
	if !stream {
		resp, err := eng.Chat(ctx, message)
		if err != nil {
			return err
		}
		fmt.Fprintln(a.out, resp.Response)
		return nil
	}
	resp, err := eng.StreamChat(ctx, message)
	if err != nil {
		return err
	}
	for chunk := range resp.ResponseChan {
		if chunk.Err != nil {
			fmt.Fprintln(a.out)
			return chunk.Err
		}
		fmt.Fprint(a.out, chunk.Delta)
	}
	fmt.Fprintln(a.out)
	return nil
}

type routeOptions struct {
	Input       string
	Rules       string
	Explain     bool
	Concurrency int
}

func (a *app) route(ctx context.Context, opts routeOptions) error {
	if opts.Input == "" {
		return fmt.Errorf("no input given, use --input")
	}
	entries, err := cdr.ReadFile(opts.Input)
	if err != nil {
		return err
	}
	recs := make([]router.Record, 0, len(entries))
	for _, e := range entries {
		sum, err := e.Summary()
		if err != nil {
			return fmt.Errorf("line %d: %w", e.Line, err)
		}
		recs = append(recs, router.RecordFromSummary(sum))
	}

	routerOpts := []router.Option{router.WithLogger(a.logger)}
	if opts.Rules != "" {
		rules, err := router.LoadRules(opts.Rules)
		if err != nil {
			return err
		}
		routerOpts = append(routerOpts, router.WithRules(rules))
	}

	dispOpts := []agent.DispatcherOption{agent.WithDispatcherLogger(a.logger)}
	if opts.Concurrency > 0 {
		dispOpts = append(dispOpts, agent.WithConcurrency(opts.Concurrency))
	}
	if opts.Explain {
		model, err := a.newLLM(ctx, a.cfg, a.logger)
		if err != nil {
			return err
		}
		agentOpts := []agent.Option{agent.WithAgentLLM(model), agent.WithLogger(a.logger)}
		dispOpts = append(dispOpts,
			agent.WithAgent(agent.NewNetworkAgent(agentOpts...)),
			agent.WithAgent(agent.NewVDIAgent(agentOpts...)),
			agent.WithAgent(agent.NewLogAgent(agentOpts...)),
		)
	}

	reports, counts, err := agent.NewDispatcher(router.NewRouter(routerOpts...), dispOpts...).DispatchAll(ctx, recs)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RECORD\tCATEGORY\tAGENT\tSUMMARY")
	for _, r := range reports {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.RecordID, r.Category, r.Agent, r.Summary)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if opts.Explain {
		for _, r := range reports {
			if r.Category != router.CategoryNone {
				fmt.Fprintf(a.out, "\n%s\n", r)
			}
		}
	}

	fmt.Fprintln(a.out)
	for _, c := range append(append([]router.Category{}, router.Categories...), router.CategoryNone) {
		fmt.Fprintf(a.out, "%-8s %d\n", c, counts[c])
	}
	return nil
}

type evalOptions struct {
	Inputs  []string
	Limit   int
	Workers int
	Judge   bool
}

func (a *app) eval(ctx context.Context, opts evalOptions) (*evaluation.Report, error) {
	if len(opts.Inputs) == 0 {
		return nil, fmt.Errorf("no dataset given, use --input")
	}
	if err := a.cfg.Validate(); err != nil {
		return nil, err
	}
	samples, err := reader.NewDatasetReader(opts.Inputs...).LoadSamples(ctx)
	if err != nil {
		return nil, err
	}

	model, err := a.newLLM(ctx, a.cfg, a.logger)
	if err != nil {
		return nil, err
	}
	embed, err := a.newEmbedding(ctx, a.cfg, a.logger)
	if err != nil {
		return nil, err
	}
	evaluators := []evaluation.Evaluator{evaluation.NewSemanticSimilarityEvaluator(embed)}
	if opts.Judge {
		evaluators = append(evaluators, evaluation.NewCorrectnessEvaluator(model))
	}

	report, err := evaluation.NewRunner(model, evaluators,
		evaluation.WithLimit(opts.Limit),
		evaluation.WithWorkers(opts.Workers),
		evaluation.WithLogger(a.logger),
	).Run(ctx, samples)
	if err != nil {
		return nil, err
	}

	for i, res := range report.Results {
		fmt.Fprintf(a.out, "--- Sample %d (%s)\n", i+1, res.Sample.ID)
		fmt.Fprintf(a.out, "Question: %s\n", res.Sample.Question)
		fmt.Fprintf(a.out, "Expected: %s\n", res.Sample.Answer)
		if res.Err != nil {
			fmt.Fprintf(a.out, "Error: %v\n", res.Err)
			continue
		}
		fmt.Fprintf(a.out, "Answer: %s\n", res.Answer)
		for _, ev := range evaluators {
			if r, ok := res.Evaluations[ev.Name()]; ok {
				status := "FAIL"
				switch {
				case r.InvalidResult:
					status = "INVALID"
				case r.IsPassing():
					status = "PASS"
				}
				fmt.Fprintf(a.out, "%s: %s %s\n", ev.Name(), status, r.Feedback)
			}
		}
	}
	fmt.Fprintf(a.out, "\nPassed %d/%d (%.0f%%)\n", report.Passed(), report.Total(), report.PassRate()*100)
	return report, nil
}
