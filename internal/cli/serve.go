package semsearch

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mwiater/semsearch/internal/search"
	"github.com/mwiater/semsearch/internal/vectorstore"
	"github.com/mwiater/semsearch/internal/web"
)

// runServer blocks serving the dashboard. Tests replace it.
var runServer = func(ctx context.Context, srv *web.Server, addr string) error {
	return srv.Run(ctx, addr)
}

// serveCmd starts the dashboard. A failed engine construction still serves
// the page so the error is visible in the browser.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web dashboard",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		out := cmd.OutOrStdout()
		cfg := loadedConfig()

		engine, initErr := openEngine(ctx, out)
		if engine != nil {
			defer engine.Close()
			if err := loadExisting(ctx, engine); err != nil {
				return err
			}
		}

		srv, err := web.New(cfg, engine, initErr)
		if err != nil {
			return err
		}
		success(out, "Dashboard listening on http://localhost%s", cfg.Server.Addr)
		return runServer(ctx, srv, cfg.Server.Addr)
	},
}

// loadExisting connects to a previously built index so its vectors are
// searchable right away.
func loadExisting(ctx context.Context, engine *search.Engine) error {
	err := engine.LoadIndex(ctx)
	if err == nil || errors.Is(err, vectorstore.ErrIndexNotFound) {
		return nil
	}
	return err
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address (defaults to server.addr)")
	_ = viper.BindPFlag("server.addr", serveCmd.Flags().Lookup("addr"))
	rootCmd.AddCommand(serveCmd)
}
