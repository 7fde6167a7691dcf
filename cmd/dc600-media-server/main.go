// TCP server for the JT/T 1078 media/attachment channel: a device that
// received a 0x9208 alarm attachment upload request on the main channel
// dials this port separately to deliver the file list and the sub-packaged
// multimedia payload itself. It shares the engine package with
// cmd/dc600-server but runs a narrower dispatcher, since nothing else ever
// crosses this port.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/fleetwave/dc600core/internal/sinks"
	"github.com/fleetwave/dc600core/pkg/dc600/config"
	"github.com/fleetwave/dc600core/pkg/dc600/dispatch"
	"github.com/fleetwave/dc600core/pkg/dc600/engine"
)

var (
	configPath  = flag.String("config", "", "path to dc600.yaml (defaults are used if empty)")
	readTimeout = flag.Duration("read-timeout", 10*time.Minute, "per-connection read deadline (media uploads run longer than heartbeats)")
)

func main() {
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	sinksBundle := dispatch.Sinks{}
	mediaDir := os.Getenv("DC600_MEDIA_DIR")
	if mediaDir == "" {
		mediaDir = "media"
	}
	store, err := sinks.NewGzipFileMediaStore(mediaDir)
	if err != nil {
		logger.Fatal("failed to initialize media store", zap.Error(err))
	}
	sinksBundle.Media = store
	if dsn := os.Getenv("DC600_POSTGRES_DSN"); dsn != "" {
		pool, err := sinks.NewPostgresPool(context.Background(), dsn, 4, 1)
		if err != nil {
			logger.Fatal("failed to connect to postgres", zap.Error(err))
		}
		defer pool.Close()
		sinksBundle.Positions = sinks.NewPostgresPositionSink(pool, logger)
	}

	e := engine.New(cfg,
		engine.WithLogger(logger),
		engine.WithSinks(sinksBundle),
		engine.WithDispatcher(engine.NewMediaChannelDispatcher()),
	)
	defer e.Close()

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.JT1078Port))
	if err != nil {
		logger.Fatal("failed to start listener", zap.Int("port", cfg.JT1078Port), zap.Error(err))
	}
	defer listener.Close()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutting down media server")
		listener.Close()
		os.Exit(0)
	}()

	logger.Info("dc600 media server listening", zap.Int("port", cfg.JT1078Port))

	for {
		conn, err := listener.Accept()
		if err != nil {
			logger.Warn("accept failed", zap.Error(err))
			continue
		}
		go handleConnection(conn, e, logger)
	}
}

func handleConnection(conn net.Conn, e *engine.Engine, logger *zap.Logger) {
	defer conn.Close()

	remote := conn.RemoteAddr().String()
	logger.Info("media connection accepted", zap.String("remote", remote))

	buffer := make([]byte, 0, 64*1024)
	readBuf := make([]byte, 8192)
	ctx := context.Background()

	for {
		conn.SetReadDeadline(time.Now().Add(*readTimeout))
		n, err := conn.Read(readBuf)
		if err != nil {
			if err != io.EOF {
				logger.Info("media connection read error", zap.String("remote", remote), zap.Error(err))
			} else {
				logger.Info("media connection closed by peer", zap.String("remote", remote))
			}
			return
		}
		if n == 0 {
			continue
		}

		buffer = append(buffer, readBuf[:n]...)

		outbound, residue, err := e.ProcessStream(ctx, buffer)
		if err != nil {
			logger.Warn("media stream processing error", zap.String("remote", remote), zap.Error(err))
		}
		buffer = residue

		for _, frame := range outbound {
			if _, err := conn.Write(frame); err != nil {
				logger.Warn("failed to write media response", zap.String("remote", remote), zap.Error(err))
				return
			}
		}
	}
}
