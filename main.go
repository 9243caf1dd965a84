package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/aep/docsql/client"
	"github.com/aep/docsql/config"
	kv "github.com/aep/docsql/kv/cmd"
	sr "github.com/aep/docsql/server"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "docsql",
	Short:         "SQL-like queries over a schemaless document store",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cmd)
		if err != nil {
			return err
		}
		setupLogging(cfg.LogLevel)
		return nil
	},
}

func setupLogging(level string) {
	var l slog.Level
	switch strings.ToLower(level) {
	case "debug":
		l = slog.LevelDebug
	case "warn", "warning":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}

	slog.SetDefault(slog.New(
		tint.NewHandler(os.Stderr, &tint.Options{
			Level:      l,
			TimeFormat: time.Kitchen,
		}),
	))
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "config file (yaml, json or toml)")
	pf.String("log-level", "info", "debug, info, warn or error")
	pf.String("endpoint", "http://localhost:5052", "docsql server url, or \"local\" to open the kv backend directly")
	pf.String("kv", "mem", "kv backend: mem, pebble or tikv")
	pf.String("kv-path", "docsql-data", "pebble data directory")
	pf.StringSlice("pd", nil, "tikv placement driver endpoints")
	pf.String("otlp-endpoint", "", "export traces to this OTLP collector")

	rootCmd.AddCommand(sr.CMD)
	rootCmd.AddCommand(kv.CMD)
	client.RegisterCommands(rootCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
