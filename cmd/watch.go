package cmd

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/conneroisu/treebind/internal/bind"
	"github.com/conneroisu/treebind/internal/config"
	"github.com/conneroisu/treebind/internal/document"
	"github.com/conneroisu/treebind/internal/host/memtree"
	"github.com/conneroisu/treebind/internal/logging"
	"github.com/conneroisu/treebind/internal/watcher"
)

var watchCmd = &cobra.Command{
	Use:     "watch <document>",
	Aliases: []string{"w"},
	Short:   "Mirror a YAML document into a live node tree",
	Long: `Watch loads a YAML document into a session, keeps the node tree in
sync as the file changes on disk, and logs edits made to the tree from the
other side. With --write-back, externally-originated edits are persisted to
the document file.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWatch(cmd.Context(), args[0], nil)
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().String("strategy", "folder", "representation strategy (folder, attribute)")
	watchCmd.Flags().Bool("write-back", false, "persist external edits to the document file")
	mustBind("session.strategy", watchCmd.Flags().Lookup("strategy"))
	mustBind("document.write_back", watchCmd.Flags().Lookup("write-back"))
}

// runWatch is the shared watch loop. onOpen, when non-nil, receives the
// session before the loop starts (used by serve to attach the inspector).
func runWatch(ctx context.Context, path string, onOpen func(context.Context, *config.Config, *bind.Session, logging.Logger)) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	cfg.Document.Path = path
	if cfg.Session.Name == "" {
		base := filepath.Base(path)
		cfg.Session.Name = strings.TrimSuffix(base, filepath.Ext(base))
	}

	logger := logging.NewLogger(&logging.LoggerConfig{
		Level:  logging.ParseLevel(cfg.Log.Level),
		Format: cfg.Log.Format,
		Output: os.Stderr,
	})

	data, err := document.Load(path, logger)
	if err != nil {
		return err
	}

	session, err := bind.Open(memtree.New(), cfg.Session.Name, data,
		bind.WithStrategy(bind.StrategyByName(cfg.Session.Strategy)),
		bind.WithLogger(logger))
	if err != nil {
		return err
	}
	defer session.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if onOpen != nil {
		onOpen(ctx, cfg, session, logger)
	}

	dw, err := watcher.New(path, time.Duration(cfg.Document.Debounce)*time.Millisecond, logger)
	if err != nil {
		return err
	}
	defer dw.Stop()

	// All engine mutations stay on this goroutine: the file watcher and
	// the event stream both funnel into one select loop. The inspector,
	// when attached, only reads via Session.Snapshot and the event
	// channel, both safe across goroutines.
	reloads := make(chan struct{}, 1)
	dw.AddHandler(func([]watcher.ChangeEvent) error {
		select {
		case reloads <- struct{}{}:
		default:
		}
		return nil
	})
	dw.Start(ctx)

	events := session.Watch()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)

	logger.Info(ctx, "watching document",
		"path", path,
		"session", cfg.Session.Name,
		"strategy", cfg.Session.Strategy)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-sigs:
			logger.Info(ctx, "shutting down")
			return nil
		case <-reloads:
			m, err := document.Load(path, logger)
			if err != nil {
				logger.Warn(ctx, err, "document reload failed; keeping last good tree")
				continue
			}
			if err := session.Replace(m); err != nil {
				return err
			}
			logger.Info(ctx, "document reloaded", "path", path)
		case event, ok := <-events:
			if !ok {
				return nil
			}
			logger.Info(ctx, "tree changed",
				"type", event.Type.String(),
				"path", event.Path,
				"external", event.External)
			if event.External && cfg.Document.WriteBack {
				if err := document.Store(path, session.Snapshot()); err != nil {
					logger.Warn(ctx, err, "write-back failed")
				}
			}
		}
	}
}
