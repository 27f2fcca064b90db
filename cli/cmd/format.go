package cmd

import (
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/msgfmt/adapter"
	"github.com/pithecene-io/msgfmt/adapter/redis"
	"github.com/pithecene-io/msgfmt/adapter/webhook"
	"github.com/pithecene-io/msgfmt/cli/config"
	"github.com/pithecene-io/msgfmt/iox"
	"github.com/pithecene-io/msgfmt/lode"
	"github.com/pithecene-io/msgfmt/log"
	"github.com/pithecene-io/msgfmt/metrics"
	"github.com/pithecene-io/msgfmt/runtime"
	"github.com/pithecene-io/msgfmt/sink"
)

// FormatCommand returns the format command.
// This is the only command that consumes a frame stream.
func FormatCommand() *cli.Command {
	return &cli.Command{
		Name:      "format",
		Usage:     "Convert a test-run frame stream into NDJSON protocol messages",
		ArgsUsage: "[-- engine command...]",
		Description: "Reads length-prefixed msgpack frames from --input (stdin by default), or from the\n" +
			"stdout of an engine command given after --, and writes one protocol envelope per\n" +
			"event to --output. Exit codes: 0 success, 1 usage, 2 stream error or canceled,\n" +
			"3 emit failure.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "Path to msgfmt.yaml"},
			&cli.StringFlag{Name: "input", Aliases: []string{"i"}, Usage: "Frame stream path (\"-\" for stdin)", Value: iox.Stdio},
			&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "NDJSON output path (\"-\" for stdout)", Value: iox.Stdio},
			&cli.StringFlag{Name: "run-id", Usage: "Run ID (default: random UUID)"},
			&cli.StringFlag{Name: "log-level", Usage: "Log level: debug, info, warn, error", Value: "info"},
			&cli.StringFlag{Name: "report", Usage: "Write the run report JSON to this path (\"-\" for stderr)"},
			&cli.DurationFlag{Name: "flush-timeout", Usage: "Bound on post-stream flush and notification", Value: runtime.DefaultFlushTimeout},
			&cli.BoolFlag{Name: "quiet", Aliases: []string{"q"}, Usage: "Suppress the summary line"},
			// Engine
			&cli.StringFlag{Name: "engine-dir", Usage: "Working directory for the engine command"},
			&cli.StringSliceFlag{Name: "engine-env", Usage: "Extra engine environment (KEY=VALUE, repeatable)"},
			// Lode storage
			&cli.StringFlag{Name: "storage-dataset", Usage: "Lode dataset ID", Value: lode.DefaultDataset},
			&cli.StringFlag{Name: "storage-backend", Usage: "Also persist messages to Lode: fs or s3"},
			&cli.StringFlag{Name: "storage-path", Usage: "Storage path (fs: directory, s3: bucket/prefix)"},
			&cli.StringFlag{Name: "storage-region", Usage: "AWS region for S3 backend"},
			&cli.StringFlag{Name: "storage-endpoint", Usage: "Custom S3 endpoint (R2, MinIO)"},
			&cli.BoolFlag{Name: "storage-s3-path-style", Usage: "Force path-style S3 addressing"},
			&cli.IntFlag{Name: "storage-batch-size", Usage: "Envelopes per storage write", Value: lode.DefaultBatchSize},
			&cli.DurationFlag{Name: "storage-flush-interval", Usage: "Also write partial batches on this interval (0 disables)"},
			// Completion adapter
			&cli.StringFlag{Name: "adapter", Usage: "Completion notification: webhook or redis"},
			&cli.StringFlag{Name: "adapter-url", Usage: "Webhook URL or Redis URL"},
			&cli.StringFlag{Name: "adapter-channel", Usage: "Redis channel or stream key", Value: redis.DefaultChannel},
			&cli.StringFlag{Name: "adapter-mode", Usage: "Redis delivery: publish or stream", Value: string(redis.ModePublish)},
			&cli.Int64Flag{Name: "adapter-max-len", Usage: "Approximate Redis stream length cap (stream mode)"},
			&cli.StringSliceFlag{Name: "adapter-header", Usage: "Webhook header (Key=Value, repeatable)"},
			&cli.DurationFlag{Name: "adapter-timeout", Usage: "Per-attempt notification timeout"},
			&cli.IntFlag{Name: "adapter-retries", Usage: "Notification retry attempts", Value: webhook.DefaultRetries},
		},
		Action: formatAction,
	}
}

// formatChoice is the resolved configuration of one format invocation:
// flags override msgfmt.yaml, which overrides flag defaults.
type formatChoice struct {
	runID        string
	input        string
	output       string
	report       string
	logLevel     string
	flushTimeout time.Duration
	quiet        bool
	engine       *runtime.EngineConfig
	storage      storageChoice
	adapter      adapterChoice
}

// adapterChoice holds parsed completion adapter configuration.
type adapterChoice struct {
	kind    string
	url     string
	channel string
	mode    string
	maxLen  int64
	headers map[string]string
	timeout time.Duration
	retries int
}

func formatAction(c *cli.Context) error {
	cfg := &config.Config{}
	if path := c.String("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return cli.Exit(err.Error(), runtime.ExitCodeUsage)
		}
		cfg = loaded
	}

	choice, err := resolveFormatChoice(c, cfg)
	if err != nil {
		return cli.Exit(fmt.Sprintf("invalid format config: %v", err), runtime.ExitCodeUsage)
	}
	level, err := log.ParseLevel(choice.logLevel)
	if err != nil {
		return cli.Exit(err.Error(), runtime.ExitCodeUsage)
	}

	inputName := choice.input
	if choice.engine != nil {
		inputName = "engine:" + choice.engine.Command[0]
	}
	logger := log.NewLogger(log.RunContext{RunID: choice.runID, Input: inputName}).WithOutput(c.App.ErrWriter)
	logger.SetLevel(level)
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	startTime := time.Now()
	day := lode.DeriveDay(startTime)
	collector := metrics.NewCollector(choice.output, choice.storage.backend, choice.runID)

	runCfg := &runtime.RunConfig{
		RunID:        choice.runID,
		Day:          day,
		InputName:    inputName,
		Engine:       choice.engine,
		Output:       choice.output,
		StoragePath:  choice.storage.location(day, choice.runID),
		Collector:    collector,
		Logger:       logger,
		FlushTimeout: choice.flushTimeout,
	}

	if choice.engine == nil {
		in, err := openInput(c, choice.input)
		if err != nil {
			return cli.Exit(fmt.Sprintf("cannot open input: %v", err), runtime.ExitCodeUsage)
		}
		defer iox.DiscardClose(in)
		runCfg.Input = in
	}

	out, err := openOutput(c, choice.output)
	if err != nil {
		return cli.Exit(fmt.Sprintf("cannot open output: %v", err), runtime.ExitCodeUsage)
	}
	sinks := []sink.Sink{sink.NewOwnedNDJSONSink(out)}

	if choice.storage.enabled() {
		lodeCfg := lode.Config{
			Dataset:   choice.storage.dataset,
			Day:       day,
			RunID:     choice.runID,
			BatchSize: choice.storage.batchSize,
		}
		client, err := buildLodeClient(ctx, choice.storage, lodeCfg)
		if err != nil {
			iox.DiscardClose(out)
			return cli.Exit(fmt.Sprintf("failed to create storage client: %v", err), runtime.ExitCodeUsage)
		}
		lodeSink, err := lode.NewSink(lodeCfg, client)
		if err != nil {
			iox.DiscardClose(out)
			return cli.Exit(fmt.Sprintf("failed to create storage sink: %v", err), runtime.ExitCodeUsage)
		}
		sinks = append(sinks, sink.NewIntervalSink(lodeSink, choice.storage.flushInterval, logger))
		runCfg.Metrics = lodeSink
		runCfg.FileWriter = client
	}
	runCfg.Sink = sink.NewInstrumentedSink(sink.NewMulti(sinks...), collector)

	if choice.adapter.kind != "" {
		a, err := buildAdapter(choice.adapter)
		if err != nil {
			iox.DiscardClose(runCfg.Sink)
			return cli.Exit(fmt.Sprintf("invalid adapter config: %v", err), runtime.ExitCodeUsage)
		}
		defer iox.DiscardClose(a)
		runCfg.Adapter = a
	}

	orchestrator, err := runtime.NewRunOrchestrator(runCfg)
	if err != nil {
		iox.DiscardClose(runCfg.Sink)
		return cli.Exit(fmt.Sprintf("failed to create orchestrator: %v", err), runtime.ExitCodeUsage)
	}

	result, err := orchestrator.Execute(ctx)
	closeErr := runCfg.Sink.Close()
	if err != nil {
		return cli.Exit(fmt.Sprintf("execution failed: %v", err), runtime.ExitCodeUsage)
	}

	if choice.report != "" {
		if err := runtime.WriteRunReport(result.Report, choice.report); err != nil {
			logger.Warn("report write failed (best effort)", map[string]any{"error": err.Error()})
		}
	}
	if !choice.quiet {
		printFormatSummary(c.App.ErrWriter, result)
	}

	code := result.Outcome.Status.ExitCode()
	switch {
	case result.Err != nil:
		return cli.Exit(result.Err.Error(), code)
	case closeErr != nil:
		return cli.Exit(fmt.Sprintf("failed to close output: %v", closeErr), runtime.ExitCodeEmit)
	case code != runtime.ExitCodeSuccess:
		return cli.Exit(result.Outcome.Message, code)
	default:
		return nil
	}
}

// resolveFormatChoice merges flags over the config file.
func resolveFormatChoice(c *cli.Context, cfg *config.Config) (formatChoice, error) {
	choice := formatChoice{
		runID:        pickString(c, "run-id", cfg.RunID),
		input:        c.String("input"),
		output:       pickString(c, "output", cfg.Output),
		report:       pickString(c, "report", cfg.Report),
		logLevel:     pickString(c, "log-level", cfg.LogLevel),
		flushTimeout: pickDuration(c, "flush-timeout", cfg.FlushTimeout.Duration),
		quiet:        c.Bool("quiet"),
		storage: storageChoice{
			dataset:       pickString(c, "storage-dataset", cfg.Storage.Dataset),
			backend:       pickString(c, "storage-backend", cfg.Storage.Backend),
			path:          pickString(c, "storage-path", cfg.Storage.Path),
			region:        pickString(c, "storage-region", cfg.Storage.Region),
			endpoint:      pickString(c, "storage-endpoint", cfg.Storage.Endpoint),
			pathStyle:     c.Bool("storage-s3-path-style") || cfg.Storage.S3PathStyle,
			batchSize:     pickInt(c, "storage-batch-size", cfg.Storage.BatchSize),
			flushInterval: pickDuration(c, "storage-flush-interval", cfg.Storage.FlushInterval.Duration),
		},
		adapter: adapterChoice{
			kind:    pickString(c, "adapter", cfg.Adapter.Type),
			url:     pickString(c, "adapter-url", cfg.Adapter.URL),
			channel: pickString(c, "adapter-channel", cfg.Adapter.Channel),
			mode:    pickString(c, "adapter-mode", cfg.Adapter.Mode),
			maxLen:  cfg.Adapter.MaxLen,
			timeout: pickDuration(c, "adapter-timeout", cfg.Adapter.Timeout.Duration),
			retries: c.Int("adapter-retries"),
		},
	}
	if choice.runID == "" {
		choice.runID = uuid.NewString()
	}
	if c.IsSet("adapter-max-len") {
		choice.adapter.maxLen = c.Int64("adapter-max-len")
	}
	if !c.IsSet("adapter-retries") && cfg.Adapter.Retries != nil {
		choice.adapter.retries = *cfg.Adapter.Retries
	}

	headers, err := parseKeyValues(c.StringSlice("adapter-header"))
	if err != nil {
		return formatChoice{}, fmt.Errorf("--adapter-header: %w", err)
	}
	choice.adapter.headers = mergeMaps(cfg.Adapter.Headers, headers)

	engine, err := resolveEngine(c, cfg.Engine)
	if err != nil {
		return formatChoice{}, err
	}
	choice.engine = engine
	if engine != nil && c.IsSet("input") {
		return formatChoice{}, errors.New("--input cannot be combined with an engine command")
	}

	if err := choice.storage.validate(); err != nil {
		return formatChoice{}, err
	}
	if choice.storage.batchSize < 0 {
		return formatChoice{}, fmt.Errorf("--storage-batch-size must be >= 0, got %d", choice.storage.batchSize)
	}
	if choice.storage.flushInterval < 0 {
		return formatChoice{}, fmt.Errorf("--storage-flush-interval must be >= 0, got %s", choice.storage.flushInterval)
	}
	switch choice.adapter.kind {
	case "", "webhook", "redis":
	default:
		return formatChoice{}, fmt.Errorf("unsupported adapter: %s (must be webhook or redis)", choice.adapter.kind)
	}
	if choice.adapter.kind != "" && choice.adapter.url == "" {
		return formatChoice{}, fmt.Errorf("--adapter %s requires --adapter-url", choice.adapter.kind)
	}
	return choice, nil
}

// resolveEngine takes the command after "--" over the configured one.
func resolveEngine(c *cli.Context, cfg config.EngineConfig) (*runtime.EngineConfig, error) {
	command := cfg.Command
	if c.Args().Len() > 0 {
		command = c.Args().Slice()
	}
	if len(command) == 0 {
		return nil, nil
	}

	flagEnv, err := parseKeyValues(c.StringSlice("engine-env"))
	if err != nil {
		return nil, fmt.Errorf("--engine-env: %w", err)
	}
	env := mergeMaps(cfg.Env, flagEnv)
	pairs := make([]string, 0, len(env))
	for _, k := range slices.Sorted(maps.Keys(env)) {
		pairs = append(pairs, k+"="+env[k])
	}

	return &runtime.EngineConfig{
		Command: command,
		Env:     pairs,
		Dir:     pickString(c, "engine-dir", cfg.Dir),
	}, nil
}

func buildAdapter(a adapterChoice) (adapter.Adapter, error) {
	switch a.kind {
	case "webhook":
		return webhook.New(webhook.Config{
			URL:     a.url,
			Headers: a.headers,
			Timeout: a.timeout,
			Retries: a.retries,
		})
	case "redis":
		return redis.New(redis.Config{
			URL:     a.url,
			Channel: a.channel,
			Mode:    redis.Mode(a.mode),
			MaxLen:  a.maxLen,
			Timeout: a.timeout,
			Retries: a.retries,
		})
	default:
		return nil, fmt.Errorf("unsupported adapter: %s", a.kind)
	}
}

// openInput resolves "-" to the app's reader so tests can inject stdin.
func openInput(c *cli.Context, path string) (io.ReadCloser, error) {
	if iox.IsStdio(path) && c.App.Reader != nil {
		return io.NopCloser(c.App.Reader), nil
	}
	return iox.OpenInput(path)
}

// openOutput resolves "-" to the app's writer so tests can capture stdout.
func openOutput(c *cli.Context, path string) (io.WriteCloser, error) {
	if iox.IsStdio(path) && c.App.Writer != nil {
		return nopWriteCloser{c.App.Writer}, nil
	}
	return iox.OpenOutput(path)
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

func printFormatSummary(w io.Writer, result *runtime.RunResult) {
	if w == nil {
		w = os.Stderr
	}
	var messages int64
	if result.Report != nil {
		messages = result.Report.Metrics.MessagesEmitted
	}
	fmt.Fprintf(w, "run_id=%s outcome=%s frames=%d messages=%d test_cases=%d duration=%s\n",
		result.RunID,
		result.Outcome.Status,
		result.FrameCount,
		messages,
		result.TestCases,
		result.Duration.Round(time.Millisecond),
	)
	if result.EngineExitCode != nil && *result.EngineExitCode != 0 {
		fmt.Fprintf(w, "engine exited with code %d\n", *result.EngineExitCode)
	}
	if result.StoragePath != "" {
		fmt.Fprintf(w, "storage=%s\n", result.StoragePath)
	}
}

func pickString(c *cli.Context, flag, fromConfig string) string {
	if c.IsSet(flag) || fromConfig == "" {
		return c.String(flag)
	}
	return fromConfig
}

func pickInt(c *cli.Context, flag string, fromConfig int) int {
	if c.IsSet(flag) || fromConfig == 0 {
		return c.Int(flag)
	}
	return fromConfig
}

func pickDuration(c *cli.Context, flag string, fromConfig time.Duration) time.Duration {
	if c.IsSet(flag) || fromConfig == 0 {
		return c.Duration(flag)
	}
	return fromConfig
}

// parseKeyValues parses KEY=VALUE pairs.
func parseKeyValues(pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("expected KEY=VALUE, got %q", p)
		}
		out[k] = v
	}
	return out, nil
}

// mergeMaps returns base overlaid with override.
func mergeMaps(base, override map[string]string) map[string]string {
	if len(base) == 0 && len(override) == 0 {
		return nil
	}
	out := make(map[string]string, len(base)+len(override))
	maps.Copy(out, base)
	maps.Copy(out, override)
	return out
}
