package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/imagine/adapter"
	"github.com/pithecene-io/imagine/adapter/redis"
	"github.com/pithecene-io/imagine/adapter/webhook"
	"github.com/pithecene-io/imagine/archive"
	"github.com/pithecene-io/imagine/cli/config"
	"github.com/pithecene-io/imagine/cli/tui"
	"github.com/pithecene-io/imagine/gallery"
	"github.com/pithecene-io/imagine/log"
	"github.com/pithecene-io/imagine/metrics"
	"github.com/pithecene-io/imagine/runtime"
	"github.com/pithecene-io/imagine/state"
	"github.com/pithecene-io/imagine/types"
)

// Exit codes for generate.
const (
	exitCompleted   = 0
	exitDrained     = 1
	exitStreamError = 2
	exitCanceled    = 3
)

// defaultDataset is the archive dataset name.
const defaultDataset = "imagine"

// GenerateCommand returns the generate command, the only command that
// starts a run.
func GenerateCommand() *cli.Command {
	return &cli.Command{
		Name:  "generate",
		Usage: "Stream a themed generation run and reconcile its results",
		Flags: []cli.Flag{
			ConfigFlag,
			BaseURLFlag,
			TUIFlag,
			SessionFlag,
			&cli.StringFlag{
				Name:  "theme",
				Usage: "Theme to generate for (e.g. halloween)",
			},
			&cli.StringFlag{
				Name:  "type",
				Usage: "Paperware type to generate (e.g. invitation)",
			},
			&cli.StringFlag{
				Name:  "selections",
				Usage: "Design attribute selections as JSON (e.g. '{\"motif\":\"pumpkins\"}')",
				Value: "{}",
			},
			&cli.StringFlag{
				Name:  "extra-detail",
				Usage: "Free-form detail appended to the prompt",
			},
			&cli.StringFlag{
				Name:  "run-id",
				Usage: "Run ID (generated when omitted)",
			},
			&cli.BoolFlag{
				Name:  "quiet",
				Usage: "Suppress streaming output",
			},
			// Archive flags
			&cli.StringFlag{
				Name:  "archive-backend",
				Usage: "Archive backend: fs, memory, or s3 (omit to disable archiving)",
			},
			&cli.StringFlag{
				Name:  "archive-path",
				Usage: "Archive path (fs: directory, s3: bucket/prefix)",
			},
			&cli.StringFlag{
				Name:  "archive-dataset",
				Usage: "Archive dataset name",
				Value: defaultDataset,
			},
			// Adapter flags
			&cli.StringFlag{
				Name:  "notify-type",
				Usage: "Completion adapter: webhook or redis (overrides config)",
			},
			&cli.StringFlag{
				Name:  "notify-url",
				Usage: "Completion adapter URL (overrides config)",
			},
		},
		Action: generateAction,
	}
}

func generateAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	baseURL, err := resolveBaseURL(c, cfg)
	if err != nil {
		return cli.Exit(err.Error(), exitStreamError)
	}

	theme := c.String("theme")
	if theme == "" {
		theme = cfg.Theme
	}
	if theme == "" {
		return cli.Exit("no theme: set --theme or theme in imagine.yaml", exitStreamError)
	}
	rtype := c.String("type")
	if rtype == "" {
		rtype = cfg.Type
	}
	if rtype == "" {
		return cli.Exit("no type: set --type or type in imagine.yaml", exitStreamError)
	}

	var selections map[string]string
	if err := json.Unmarshal([]byte(c.String("selections")), &selections); err != nil {
		return fmt.Errorf("invalid selections JSON: %w", err)
	}

	runID := c.String("run-id")
	if runID == "" {
		runID = uuid.NewString()
	}

	sink, err := buildSink(c, cfg)
	if err != nil {
		return fmt.Errorf("failed to create archive sink: %w", err)
	}
	defer func() { _ = sink.Close() }()

	notifier, err := buildAdapter(c, cfg)
	if err != nil {
		return fmt.Errorf("failed to create adapter: %w", err)
	}
	if notifier != nil {
		defer func() { _ = notifier.Close() }()
	}

	logger := log.NewLogger(runID)

	runCfg := &runtime.RunConfig{
		Request: &types.GenerateRequest{
			Theme:       theme,
			Enhancement: rtype,
			ExtraDetail: c.String("extra-detail"),
			Selections:  selections,
		},
		Opener:    &runtime.HTTPOpener{BaseURL: baseURL},
		Sink:      sink,
		Collector: metrics.NewCollector(theme, rtype, runID),
		RunID:     runID,
		Logger:    logger,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	start := time.Now()

	var run *runtime.Run
	if c.Bool("tui") {
		run, err = startWithTUI(ctx, runCfg, theme, rtype, runID)
	} else {
		run, err = startPlain(ctx, runCfg, c.Bool("quiet"))
	}
	if err != nil {
		return cli.Exit(fmt.Sprintf("failed to start run: %v", err), exitStreamError)
	}

	if err := run.Wait(ctx); err != nil {
		// Context fired; the run resolves itself as canceled.
		run.Cancel()
		<-run.Done()
	}

	outcome := run.Outcome()
	duration := time.Since(start)

	if notifier != nil {
		stats := run.Stats()
		event := adapter.NewRunCompletedEvent(runID, theme, rtype, outcome,
			len(run.Sets()), stats.EventsReceived, duration)
		publishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
		if err := notifier.Publish(publishCtx, event); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: completion notification failed: %v\n", err)
		}
	}

	if store, sessionPath := loadSession(c, cfg, cfg.Gallery.PageLimit); store != nil {
		if outcome.Status == runtime.OutcomeCompleted {
			store.AdoptRun(runID, theme, rtype, run.Sets())
			prefetchRelated(ctx, store, baseURL, cfg)
		}
		saveSession(store, sessionPath)
	}

	if !c.Bool("quiet") && !c.Bool("tui") {
		printRunSummary(run, runID, duration)
	}

	return cli.Exit("", outcomeToExitCode(outcome.Status))
}

// startPlain starts the run with line-based progress output.
func startPlain(ctx context.Context, runCfg *runtime.RunConfig, quiet bool) (*runtime.Run, error) {
	if !quiet {
		runCfg.Observer = runtime.Observer{
			OnPrompt: func(prompt string) {
				fmt.Printf("prompt: %s\n", prompt)
			},
			OnVariant: func(slot int, set *types.ImageSet) {
				fmt.Printf("slot %d: %s (%d variants)\n", slot+1, set.ID, len(set.Variants))
			},
			OnError: func(message string) {
				fmt.Fprintf(os.Stderr, "stream error: %s\n", message)
			},
		}
	}
	return runtime.Start(ctx, runCfg)
}

// runHandle hands the live run across goroutines. The TUI's quit
// callback can fire on the Bubble Tea goroutine before Start has
// returned on the command goroutine.
type runHandle struct {
	mu  sync.Mutex
	run *runtime.Run
}

func (h *runHandle) set(r *runtime.Run) {
	h.mu.Lock()
	h.run = r
	h.mu.Unlock()
}

// cancel stops the run once it has started; before that it is a no-op.
func (h *runHandle) cancel() {
	h.mu.Lock()
	r := h.run
	h.mu.Unlock()
	if r != nil {
		r.Cancel()
	}
}

// startWithTUI starts the run behind a live Bubble Tea view. The view
// owns the terminal until the run resolves or the user quits.
func startWithTUI(ctx context.Context, runCfg *runtime.RunConfig, theme, rtype, runID string) (*runtime.Run, error) {
	handle := &runHandle{}
	model := tui.NewLiveModel(theme, rtype, runID, handle.cancel)
	p := tui.RunLiveTUI(model)

	runCfg.Observer = runtime.Observer{
		OnPrompt: func(prompt string) {
			p.Send(tui.PromptMsg{Prompt: prompt})
		},
		OnVariant: func(slot int, set *types.ImageSet) {
			variant := "original"
			if set.Edited() {
				variant = "edited"
			}
			p.Send(tui.SlotMsg{Slot: slot, Variant: variant, ID: set.ID})
		},
		OnError: func(message string) {
			p.Send(tui.StreamErrMsg{Message: message})
		},
	}

	run, err := runtime.Start(ctx, runCfg)
	if err != nil {
		p.Kill()
		return nil, err
	}
	handle.set(run)

	go func() {
		<-run.Done()
		outcome := run.Outcome()
		p.Send(tui.OutcomeMsg{Outcome: string(outcome.Status), Message: outcome.Message})
	}()

	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: TUI failed: %v\n", err)
	}
	return run, nil
}

// prefetchRelated warms the session's related gallery for the adopted
// run's focused set, so a later related command starts from cache.
// Fetch failures degrade inside the collection and never fail generate.
func prefetchRelated(ctx context.Context, store *state.Store, baseURL string, cfg *config.Config) {
	query := store.RelatedQuery()
	if query == nil || query.ID == "" {
		return
	}
	client, err := gallery.NewClient(gallery.ClientConfig{
		BaseURL: baseURL,
		Timeout: cfg.Timeout.Duration,
	})
	if err != nil {
		return
	}

	store.SetRelatedKey(query.Key())
	fetch := func(ctx context.Context, offset, limit int) (types.Page, error) {
		return client.Related(ctx, *query, offset, limit)
	}
	_ = store.Related().LoadPage(ctx, fetch, 0, false)
	store.MarkRelatedLoaded(query.Key())
}

// buildSink creates the archive sink from flags and config.
// Returns a stub sink when no archive backend is configured.
func buildSink(c *cli.Context, cfg *config.Config) (archive.Sink, error) {
	backend := c.String("archive-backend")
	if backend == "" {
		backend = cfg.Archive.Backend
	}
	if backend == "" {
		return archive.NewStubSink(), nil
	}

	dataset := c.String("archive-dataset")
	if dataset == "" {
		dataset = defaultDataset
	}
	path := c.String("archive-path")
	if path == "" {
		path = cfg.Archive.Path
	}

	var writer archive.Writer
	var err error
	switch backend {
	case "fs":
		if path == "" {
			return nil, fmt.Errorf("fs archive requires --archive-path")
		}
		writer, err = archive.NewLodeWriter(dataset, path)
	case "memory":
		writer, err = archive.NewLodeWriterMemory(dataset)
	case "s3":
		s3cfg := cfg.S3Config()
		if path != "" {
			bucket, prefix, _ := strings.Cut(path, "/")
			s3cfg.Bucket = bucket
			s3cfg.Prefix = prefix
		}
		writer, err = archive.NewLodeWriterS3(dataset, s3cfg)
	default:
		return nil, fmt.Errorf("unknown archive-backend: %s (must be fs, memory, or s3)", backend)
	}
	if err != nil {
		return nil, err
	}

	return archive.NewBufferedSink(writer, cfg.BufferedConfig())
}

// buildAdapter creates the completion adapter from flags and config.
// Returns nil when no adapter is configured.
func buildAdapter(c *cli.Context, cfg *config.Config) (adapter.Adapter, error) {
	kind := c.String("notify-type")
	if kind == "" {
		kind = cfg.Adapter.Type
	}
	if kind == "" {
		return nil, nil
	}

	url := c.String("notify-url")
	if url == "" {
		url = cfg.Adapter.URL
	}

	retries := -1
	if cfg.Adapter.Retries != nil {
		retries = *cfg.Adapter.Retries
	}

	switch kind {
	case "webhook":
		wcfg := webhook.Config{
			URL:     url,
			Headers: cfg.Adapter.Headers,
			Timeout: cfg.Adapter.Timeout.Duration,
		}
		if retries >= 0 {
			wcfg.Retries = retries
		} else {
			wcfg.Retries = webhook.DefaultRetries
		}
		return webhook.New(wcfg)
	case "redis":
		rcfg := redis.Config{
			URL:     url,
			Channel: cfg.Adapter.Channel,
			Timeout: cfg.Adapter.Timeout.Duration,
		}
		if retries >= 0 {
			rcfg.Retries = retries
		} else {
			rcfg.Retries = redis.DefaultRetries
		}
		return redis.New(rcfg)
	default:
		return nil, fmt.Errorf("unknown adapter type: %s (must be webhook or redis)", kind)
	}
}

func outcomeToExitCode(status runtime.OutcomeStatus) int {
	switch status {
	case runtime.OutcomeCompleted:
		return exitCompleted
	case runtime.OutcomeDrained:
		return exitDrained
	case runtime.OutcomeCanceled:
		return exitCanceled
	default:
		return exitStreamError
	}
}

func printRunSummary(run *runtime.Run, runID string, duration time.Duration) {
	outcome := run.Outcome()
	stats := run.Stats()
	sets := run.Sets()

	fmt.Printf("\nrun_id=%s, outcome=%s, duration=%s\n",
		runID, outcome.Status, duration.Round(time.Millisecond))

	fmt.Printf("\n=== Run Result ===\n")
	fmt.Printf("Run ID:    %s\n", runID)
	fmt.Printf("Outcome:   %s\n", outcome.Status)
	fmt.Printf("Message:   %s\n", outcome.Message)
	fmt.Printf("Sets:      %d\n", len(sets))
	fmt.Printf("Events:    %d\n", stats.EventsReceived)
	fmt.Printf("Applied:   %d\n", stats.VariantsApplied)
	fmt.Printf("Ignored:   %d\n", stats.EventsIgnored)

	for i, set := range sets {
		fmt.Printf("\n--- Slot %d ---\n", i+1)
		fmt.Printf("ID:       %s\n", set.ID)
		fmt.Printf("Variants: %d\n", len(set.Variants))
		if set.Rationale != "" {
			fmt.Printf("Why:      %s\n", set.Rationale)
		}
	}

	if errs := run.Errors(); len(errs) > 0 {
		fmt.Printf("\n=== Stream Errors ===\n")
		for _, e := range errs {
			fmt.Printf("  - %s\n", e)
		}
	}
}
