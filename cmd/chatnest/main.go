package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"chatnest/internal/app"
)

var rootCmd = &cobra.Command{
	Use:           "chatnest",
	Short:         "Terminal group chat with photo sharing",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runClient,
}

var clientCmd = &cobra.Command{
	Use:   "client",
	Short: "Connect the terminal client to a relay",
	RunE:  runClient,
}

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Run the chat relay",
	RunE:  runServer,
}

var localCmd = &cobra.Command{
	Use:   "local",
	Short: "Start a private relay and connect a client to it",
	RunE:  runLocal,
}

var (
	flagServerURL string
	flagUser      string
	flagJoin      bool
	flagLogFile   string
	flagAddr      string
	flagLocalAddr string
	flagPath      string
	flagDBPath    string
	flagUploadDir string
	flagQuiet     bool
)

func init() {
	persistent := rootCmd.PersistentFlags()
	persistent.BoolVar(&flagQuiet, "quiet", false, "suppress informational logs")

	for _, cmd := range []*cobra.Command{rootCmd, clientCmd, localCmd} {
		flags := cmd.Flags()
		flags.StringVar(&flagUser, "user", app.Env("CHATNEST_USER", ""), "display name to prefill (env CHATNEST_USER)")
		flags.BoolVar(&flagJoin, "join", false, "join as --user as soon as the relay answers")
		flags.StringVar(&flagLogFile, "log-file", app.Env("CHATNEST_LOG_FILE", ""), "write client logs to this file (env CHATNEST_LOG_FILE)")
	}
	for _, cmd := range []*cobra.Command{rootCmd, clientCmd} {
		cmd.Flags().StringVar(&flagServerURL, "server-url", app.Env("CHATNEST_SERVER", ""), "relay websocket URL (env CHATNEST_SERVER, default "+app.DefaultServerURL+")")
	}
	for _, cmd := range []*cobra.Command{serverCmd, localCmd} {
		flags := cmd.Flags()
		flags.StringVar(&flagPath, "path", app.Env("CHATNEST_PATH", app.DefaultJoinPath), "websocket join path")
		flags.StringVar(&flagDBPath, "db", app.Env("CHATNEST_DB_PATH", ""), "sqlite database path (defaults to a per-user path)")
		flags.StringVar(&flagUploadDir, "upload-dir", app.Env("CHATNEST_UPLOAD_DIR", ""), "directory for uploaded photos")
	}
	serverCmd.Flags().StringVar(&flagAddr, "addr", app.Env("CHATNEST_ADDR", app.DefaultAddr), "listen address")
	localCmd.Flags().StringVar(&flagLocalAddr, "addr", "127.0.0.1:0", "listen address for the private relay")

	rootCmd.AddCommand(clientCmd, serverCmd, localCmd, versionCmd)
}

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	cobra.OnInitialize(func() {
		if flagQuiet {
			zerolog.SetGlobalLevel(zerolog.WarnLevel)
		}
	})
	if err := rootCmd.Execute(); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "chatnest: %v\n", err)
		os.Exit(1)
	}
}

func clientConfig() app.ClientConfig {
	return app.ClientConfig{
		ServerURL: flagServerURL,
		Username:  flagUser,
		AutoJoin:  flagJoin,
		LogFile:   flagLogFile,
	}
}

func serverConfig() app.ServerConfig {
	cfg := app.ServerConfig{
		Addr:      flagAddr,
		Path:      app.NormalizeJoinPath(flagPath),
		DBPath:    flagDBPath,
		UploadDir: flagUploadDir,
	}
	if cfg.DBPath == "" {
		cfg.DBPath = app.DefaultDBPath()
	}
	return cfg
}

func runClient(cmd *cobra.Command, args []string) error {
	return app.RunClient(clientConfig())
}

func runServer(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	handle, err := app.RunServer(ctx, serverConfig())
	if err != nil {
		return err
	}
	err = handle.Wait()
	log.Info().Msg("relay stopped")
	return err
}

func runLocal(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// the TUI owns the terminal from here on
	zerolog.SetGlobalLevel(zerolog.WarnLevel)

	serverCfg := serverConfig()
	serverCfg.Addr = flagLocalAddr
	handle, err := app.RunServer(ctx, serverCfg)
	if err != nil {
		return err
	}
	defer stopServer(handle)

	if err := waitForServer(handle.Addr(), 5*time.Second); err != nil {
		return err
	}

	clientCfg := clientConfig()
	clientCfg.ServerURL = buildWebsocketURL(handle.Addr(), serverCfg.Path)
	if err := app.RunClient(clientCfg); err != nil {
		return err
	}
	stopServer(handle)
	return handle.Wait()
}

func waitForServer(addr string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		conn, err := net.DialTimeout("tcp", addr, 500*time.Millisecond)
		if err == nil {
			_ = conn.Close()
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("server did not become ready: %w", err)
		}
		time.Sleep(100 * time.Millisecond)
	}
}

func buildWebsocketURL(addr, path string) string {
	path = app.NormalizeJoinPath(path)
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Sprintf("ws://%s%s", addr, path)
	}
	if host == "" || host == "::" || host == "0.0.0.0" {
		host = "127.0.0.1"
	}
	return fmt.Sprintf("ws://%s%s", net.JoinHostPort(host, port), path)
}

func stopServer(handle *app.ServerHandle) {
	if handle == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = handle.Stop(shutdownCtx)
}
