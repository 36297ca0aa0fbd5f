package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gorilla/mux"
	"github.com/panjf2000/ants/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"iptv-organizer/work/checker"
	"iptv-organizer/work/client"
	"iptv-organizer/work/collector"
	"iptv-organizer/work/config"
	"iptv-organizer/work/deadstreams"
	"iptv-organizer/work/epg"
	"iptv-organizer/work/logger"
	"iptv-organizer/work/metrics"
	"iptv-organizer/work/normalize"
	"iptv-organizer/work/playlist"
	"iptv-organizer/work/probe"
	"iptv-organizer/work/resolver"
	"iptv-organizer/work/types"
	"iptv-organizer/work/verify"
)

var (
	Version = "v0.1.0" // default version

	configPath string
	noCheck    bool
	noEPG      bool
)

// our main app worker
func main() {
	rootCmd := &cobra.Command{
		Use:   "iptv-organizer",
		Short: "Collects, validates and merges IPTV live-stream playlists",
		Long: `iptv-organizer aggregates live-stream playlists from many remote sources
into one deduplicated, validated, categorized playlist. Every candidate
URL is probed for liveness, suspicious channels are cross-checked against
their embedded service metadata, duplicate channel identities are merged
under canonical names, and the result is written ordered by category.`,
		RunE: run,
	}

	rootCmd.Flags().StringVar(&configPath, "config", "config.json", "Path to the configuration file")
	rootCmd.Flags().BoolVar(&noCheck, "no-check", false, "Skip liveness checking and keep every candidate URL")
	rootCmd.Flags().BoolVar(&noEPG, "no-epg", false, "Skip EPG download and channel enrichment")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	// load our config; a missing required key is the only fatal error
	// class and aborts before any work is dispatched
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if cfg.Debug {
		logger.SetLogLevel("DEBUG")
	}

	logger.Info("Starting IPTV Organizer %s", Version)
	logger.Info("  - Sources: %d", len(cfg.Sources))
	logger.Info("  - Workers: %d", cfg.MaxWorkers)
	logger.Info("  - Check Timeout: %s", cfg.CheckTimeout)
	logger.Info("  - Categories: %d", len(cfg.Categories))
	logger.Info("  - Keep Top K: %d", cfg.KeepTopK)

	// expose prometheus metrics for the duration of the run if asked to
	if cfg.MetricsPort > 0 {
		router := mux.NewRouter()
		router.Handle("/metrics", promhttp.Handler()).Methods("GET")
		go func() {
			addr := fmt.Sprintf(":%d", cfg.MetricsPort)
			if err := http.ListenAndServe(addr, router); err != nil {
				logger.Error("Metrics listener failed: %v", err)
			}
		}()
	}

	ctx := context.Background()
	httpClient := client.NewHeaderSettingClient(cfg.UserAgent)

	// collect the source playlists and parse them into one channel set
	files := collector.New(httpClient, cfg.Sources, cfg.SourcesDir, cfg.ObfuscateUrls).Collect(ctx)

	channels := make(map[string]*types.Channel)
	urlCount := 0
	for _, file := range files {
		parsed, err := playlist.ParseFile(file)
		if err != nil {
			logger.Error("Failed to parse %s: %v", file, err)
			continue
		}
		playlist.Merge(channels, parsed)
	}
	for _, channel := range channels {
		urlCount += len(channel.URLs)
	}
	metrics.ChannelsParsed.Set(float64(len(channels)))
	logger.Info("Parsed %d channels with %d candidate URLs", len(channels), urlCount)

	// enrich tvg-id/tvg-logo from the programme guides
	if !noEPG && len(cfg.EPGURLs) > 0 {
		epg.Download(ctx, httpClient, cfg.EPGURLs).Enrich(channels)
	}

	// drop candidates that previous runs found dead over and over
	var deadStore *deadstreams.Store
	if cfg.DeadStreamsDB != "" {
		deadStore, err = deadstreams.Open(cfg.DeadStreamsDB, cfg.DeadURLThreshold)
		if err != nil {
			logger.Error("Dead-URL registry unavailable: %v", err)
		} else {
			defer deadStore.Close()
			deadStore.FilterKnownDead(channels)
		}
	}

	// probe everything, or synthesize trusted results when skipping
	var reports map[string]*types.Report
	if noCheck {
		reports = trustAll(channels)
	} else {
		pool, err := ants.NewPool(cfg.MaxWorkers, ants.WithPreAlloc(true))
		if err != nil {
			return fmt.Errorf("create worker pool: %w", err)
		}
		defer pool.Release()

		runner := probe.NewFFProbeRunner("ffprobe")
		executor := probe.NewExecutor(runner, cfg.CheckTimeout, cfg.ObfuscateUrls)
		reports = checker.New(executor, pool, cfg.ProbeRateLimit, cfg.ObfuscateUrls).Check(ctx, channels)
	}

	// resolve: normalize names, verify suspicious channels, rank and merge
	verifier := verify.New(probe.NewFFProbeRunner("ffprobe"), cfg.VerifyTimeout,
		cfg.SuspiciousKeywords, cfg.BroadcasterPrefix, cfg.ObfuscateUrls)
	normalizer := normalize.New(cfg.ChannelNameMap)
	resolved := resolver.New(normalizer, verifier, cfg.KeepTopK).Resolve(ctx, reports)

	// write the final playlist
	if err := os.MkdirAll(cfg.OutputDir, 0755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	outputPath := filepath.Join(cfg.OutputDir, cfg.OutputFile)
	if err := playlist.Write(resolved, cfg.Categories, outputPath); err != nil {
		return err
	}

	// remember what was unreachable for the next run
	if deadStore != nil && !noCheck {
		if err := deadStore.Record(reports); err != nil {
			logger.Error("Failed to update dead-URL registry: %v", err)
		}
	}

	logger.Info("Run complete: %d channels in, %d probed, %d in output",
		len(channels), len(reports), len(resolved))

	return nil
}

// trustAll builds reports that mark every candidate URL valid with zero
// latency, used by --no-check runs where the caller vouches for the list.
func trustAll(channels map[string]*types.Channel) map[string]*types.Report {
	reports := make(map[string]*types.Report, len(channels))
	for id, channel := range channels {
		report := types.NewReport(channel.Attributes)
		for _, url := range channel.URLs {
			report.Append(types.ProbeResult{URL: url, Valid: true, Latency: types.MeasuredLatency(0)})
		}
		reports[id] = report
	}
	return reports
}
