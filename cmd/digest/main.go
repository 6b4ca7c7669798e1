// Command digest is the engine's entry point: load the source document and
// runtime toggles, run the category orchestrator, hand its output to the
// summarization and rendering collaborators, apply the importance filter,
// and mail (or write, under DRY_RUN) the result. Adapted from the teacher's
// cli/root.go Cobra/Viper wiring, replacing its Rabbit/CouchDB/Echo-API
// service wiring with the digest pipeline's own.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/evalgo/digestengine/cache"
	"github.com/evalgo/digestengine/collect"
	"github.com/evalgo/digestengine/common"
	"github.com/evalgo/digestengine/config"
	"github.com/evalgo/digestengine/forge"
	"github.com/evalgo/digestengine/httpclient"
	"github.com/evalgo/digestengine/model"
	"github.com/evalgo/digestengine/notify"
	"github.com/evalgo/digestengine/orchestrator"
	"github.com/evalgo/digestengine/prcontext"
	"github.com/evalgo/digestengine/render"
	"github.com/evalgo/digestengine/summarize"
)

var (
	cfgFile         string
	sourceFile      string
	platformBaseURL string
)

// RootCmd is the engine's single command: one run produces one digest.
var RootCmd = &cobra.Command{
	Use:   "digest",
	Short: "Collect, summarize, and deliver the technology digest",
	RunE:  runDigest,
}

func init() {
	RootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./digest.yaml)")
	RootCmd.PersistentFlags().StringVar(&sourceFile, "sources", "sources.yaml", "source document listing tracked repos, feeds, registries, and advisories")
	RootCmd.PersistentFlags().StringVar(&platformBaseURL, "platform-url", "https://api.github.com", "base URL of the code-hosting API")
	_ = viper.BindPFlag("sources", RootCmd.PersistentFlags().Lookup("sources"))
	_ = viper.BindPFlag("platform_url", RootCmd.PersistentFlags().Lookup("platform-url"))
	cobra.OnInitialize(initConfig)
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName("digest")
	}
	viper.AutomaticEnv()
	_ = viper.ReadInConfig()
}

func main() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runDigest(cmd *cobra.Command, _ []string) error {
	runID := uuid.NewString()
	logger := common.NewContextLogger(nil, map[string]interface{}{"component": "digest", "run_id": runID})

	opts := config.LoadRuntimeOptions("DIGEST")
	if err := opts.Validate(); err != nil {
		return fmt.Errorf("invalid runtime options: %w", err)
	}

	path := viper.GetString("sources")
	if path == "" {
		path = sourceFile
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading source document %s: %w", path, err)
	}
	doc, err := config.LoadSourceDocument(raw)
	if err != nil {
		return fmt.Errorf("parsing source document: %w", err)
	}
	categories := doc.ToModel()

	base := viper.GetString("platform_url")
	if base == "" {
		base = platformBaseURL
	}
	hc := httpclient.New(httpclient.Config{BaseURL: base, Token: opts.PlatformToken, Logger: logger})
	c := cache.New(logger)
	fc := forge.New(hc, c)
	pb := prcontext.New(fc, opts.DeepPRCrawl, 0)

	co := orchestrator.New(
		collect.NewReleaseCollector(fc, pb, 0),
		collect.NewIssueCollector(fc, pb, 0),
		collect.NewAdvisoryCollector(hc),
		collect.NewFeedCollector(fc, pb),
		collect.NewRegistryCollector(),
		logger,
	)

	ctx := cmd.Context()
	cutoff := opts.Cutoff(time.Now())

	results := make(map[model.Category][]model.Item, len(categories))
	for i, cc := range categories {
		results[cc.Name] = co.RunCategory(ctx, cc, opts, cutoff)
		if i < len(categories)-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(5 * time.Second):
			}
		}
	}

	var summarizer summarize.Collaborator = summarize.NoOp{}
	var mailer notify.Mailer = notify.NoOp{}
	if !opts.DryRun {
		if apiUser, apiPass := os.Getenv("RAPIDMAIL_USER"), os.Getenv("RAPIDMAIL_PASSWORD"); apiUser != "" && apiPass != "" {
			mailer = notify.NewRapidMail(apiUser, apiPass, os.Getenv("DIGEST_FROM_NAME"), os.Getenv("DIGEST_FROM_EMAIL"))
		}
	}

	summarized, err := summarizer.Summarize(ctx, results)
	if err != nil {
		return fmt.Errorf("summarization: %w", err)
	}

	filtered := filterByImportance(summarized, opts.MinImportance)

	var renderer render.Collaborator = render.PlainHTML{}
	html, err := renderer.Render(filtered)
	if err != nil {
		return fmt.Errorf("rendering digest: %w", err)
	}

	if opts.DryRun {
		if err := os.WriteFile("digest.html", []byte(html), 0o644); err != nil {
			return fmt.Errorf("writing dry-run artifact: %w", err)
		}
		logger.WithField("path", "digest.html").Info("dry run: digest written, not sent")
		return servePreview(html, logger)
	}

	recipients := splitRecipients(os.Getenv("DIGEST_RECIPIENTS"))
	if err := mailer.Send(ctx, "Technology Digest", html, recipients); err != nil {
		return fmt.Errorf("sending digest: %w", err)
	}
	logger.WithField("recipients", len(recipients)).Info("digest sent")
	return nil
}

// filterByImportance drops items below threshold, treating an item the
// summarization collaborator never annotated as medium.
func filterByImportance(items map[model.Category][]model.Item, threshold config.Importance) map[model.Category][]model.Item {
	out := make(map[model.Category][]model.Item, len(items))
	for cat, list := range items {
		var kept []model.Item
		for _, it := range list {
			tier := config.Importance(it.Importance)
			if tier == "" {
				tier = config.ImportanceMedium
			}
			if threshold.Meets(tier) {
				kept = append(kept, it)
			}
		}
		out[cat] = kept
	}
	return out
}

func splitRecipients(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// servePreview serves the rendered dry-run digest at "/" until interrupted,
// the optional preview surface DRY_RUN runs offer instead of a mail send.
func servePreview(html string, logger *common.ContextLogger) error {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.GET("/", func(c echo.Context) error {
		return c.HTML(http.StatusOK, html)
	})

	addr := os.Getenv("DIGEST_PREVIEW_ADDR")
	if addr == "" {
		addr = ":8089"
	}

	go func() {
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Warn("preview server stopped")
		}
	}()
	logger.WithField("addr", addr).Info("dry run: preview server listening")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return e.Shutdown(ctx)
}
