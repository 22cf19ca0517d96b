package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/net/netutil"

	"github.com/ppiankov/islamcheck/internal/web"
)

const (
	shutdownTimeout      = 15 * time.Second
	upstreamCheckTimeout = 20 * time.Second
)

var checkUpstream bool

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and web pages",
	Long: `Serve starts the fact-check HTTP server:
- POST /factcheck            analyse a claim (cached for 24h)
- GET  /claim/{id}           fetch a stored analysis
- GET  /api/history          paginated history, newest first
- GET  /api/search           full-text search over stored claims
- GET  /robots.txt, /sitemap.xml

Example:
  islamcheck serve
  islamcheck serve --port 8080 --db ./data/factcheck.db
  islamcheck serve --check-upstream
  OPENROUTER_API_KEY=sk-or-... islamcheck serve`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("host", "", "listen address")
	serveCmd.Flags().Int("port", 0, "listen port")
	serveCmd.Flags().String("public-url", "", "public base URL used in robots.txt and sitemap.xml")
	serveCmd.Flags().Bool("debug", false, "include failure context in error responses")
	serveCmd.Flags().BoolVar(&checkUpstream, "check-upstream", false, "refuse to start unless the AI provider is reachable")

	_ = viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	_ = viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	_ = viper.BindPFlag("server.public_url", serveCmd.Flags().Lookup("public-url"))
	_ = viper.BindPFlag("server.debug", serveCmd.Flags().Lookup("debug"))
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	if checkUpstream {
		checkCtx, cancel := context.WithTimeout(ctx, upstreamCheckTimeout)
		err := a.analyzer.Available(checkCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("upstream check: %w", err)
		}
		a.logger.Info("upstream reachable")
	} else if err := a.analyzer.Ready(); err != nil {
		a.logger.Warn("upstream not ready, /factcheck will return errors for uncached claims", zap.Error(err))
	}

	cfg := a.cfg.Server
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	if cfg.MaxConnections > 0 {
		ln = netutil.LimitListener(ln, cfg.MaxConnections)
	}

	handler := web.NewServer(a.service, cfg, a.logger.Named("http")).Handler()
	srv := &http.Server{
		Handler:           handler,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       2 * time.Minute,
		ErrorLog:          zap.NewStdLog(a.logger.Named("http")),
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("listening",
			zap.String("addr", ln.Addr().String()),
			zap.Int("max_connections", cfg.MaxConnections))
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	a.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
