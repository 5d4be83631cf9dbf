package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/conneroisu/treebind/internal/bind"
	"github.com/conneroisu/treebind/internal/config"
	"github.com/conneroisu/treebind/internal/logging"
	"github.com/conneroisu/treebind/internal/server"
)

var serveCmd = &cobra.Command{
	Use:     "serve <document>",
	Aliases: []string{"s"},
	Short:   "Watch a document and serve the live tree inspector",
	Long: `Serve runs the watch loop and additionally exposes the session over
HTTP: a JSON snapshot of the logical tree at /api/tree and a WebSocket
stream of change events at /ws.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWatch(cmd.Context(), args[0], startInspector)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("host", "localhost", "inspector host")
	serveCmd.Flags().IntP("port", "p", 8321, "inspector port")
	mustBind("server.host", serveCmd.Flags().Lookup("host"))
	mustBind("server.port", serveCmd.Flags().Lookup("port"))
}

func startInspector(ctx context.Context, cfg *config.Config, session *bind.Session, logger logging.Logger) {
	srv := server.New(cfg, session, logger)
	go func() {
		if err := srv.Start(ctx); err != nil {
			logger.Error(ctx, err, "inspector server stopped")
		}
	}()
}
