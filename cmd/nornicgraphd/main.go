// Package main provides the nornicgraphd server entry point.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/spf13/cobra"

	"github.com/nornicgraph/nornicgraph/internal/config"
	"github.com/nornicgraph/nornicgraph/internal/server"
	"github.com/nornicgraph/nornicgraph/internal/storage"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "nornicgraphd",
		Short: "nornicgraphd - transactional knowledge-graph server",
		Long: `nornicgraphd serves a Grakn-style schema+instance knowledge
graph: strongly-typed entities, relations and attributes, global schema
consistency checking at commit, and rule-based inference.`,
	}

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("nornicgraphd v%s (%s)\n", version, commit)
		},
	})

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the nornicgraphd server",
		RunE:  runServe,
	}
	serveCmd.Flags().String("data-dir", "", "Data directory (defaults to config or ./data)")
	serveCmd.Flags().String("config", "", "Path to a YAML config file")
	serveCmd.Flags().StringSlice("keyspace", []string{"default"}, "Keyspaces to open on startup")
	rootCmd.AddCommand(serveCmd)

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Create the data directory for a new deployment",
		RunE:  runInit,
	}
	initCmd.Flags().String("data-dir", "./data", "Data directory")
	rootCmd.AddCommand(initCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		path = config.FindConfigFile()
	}
	cfg, err := config.LoadFromFile(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if dataDir, _ := cmd.Flags().GetString("data-dir"); dataDir != "" {
		cfg.Database.DataDir = dataDir
	}
	return cfg, nil
}

func runInit(cmd *cobra.Command, args []string) error {
	dataDir, _ := cmd.Flags().GetString("data-dir")
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	fmt.Printf("initialized data directory %s\n", dataDir)
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	vertexDir := filepath.Join(cfg.Database.DataDir, "vertices")
	idDir := filepath.Join(cfg.Database.DataDir, "ids")
	if err := os.MkdirAll(vertexDir, 0o755); err != nil {
		return fmt.Errorf("create vertex store dir: %w", err)
	}
	if err := os.MkdirAll(idDir, 0o755); err != nil {
		return fmt.Errorf("create id authority dir: %w", err)
	}

	store, err := storage.NewBadgerVertexStore(vertexDir)
	if err != nil {
		return fmt.Errorf("open vertex store: %w", err)
	}

	idOpts := badger.DefaultOptions(idDir)
	idOpts.Logger = nil
	idDB, err := badger.Open(idOpts)
	if err != nil {
		return fmt.Errorf("open id authority store: %w", err)
	}
	authority := storage.NewBadgerIDAuthority(idDB, 0)

	srv := server.New(cfg, authority, store)

	keyspaces, _ := cmd.Flags().GetStringSlice("keyspace")
	for _, ks := range keyspaces {
		if _, err := srv.OpenKeyspace(ks); err != nil {
			return fmt.Errorf("open keyspace %q: %w", ks, err)
		}
		log.Printf("opened keyspace %q", ks)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ticker := time.NewTicker(server.FlushInterval())
	defer ticker.Stop()

	log.Printf("nornicgraphd v%s listening for internal commands (data-dir=%s)", version, cfg.Database.DataDir)
	for {
		select {
		case <-ticker.C:
			for _, ks := range srv.ListKeyspaces() {
				if err := srv.Flush(ks); err != nil {
					log.Printf("flush keyspace %q: %v", ks, err)
				}
			}
		case <-ctx.Done():
			log.Printf("shutting down")
			if err := srv.Close(context.Background()); err != nil {
				log.Printf("close: %v", err)
			}
			return idDB.Close()
		}
	}
}
