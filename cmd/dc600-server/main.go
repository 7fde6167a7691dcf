// TCP server for the main JT/T 808 channel: terminal registration,
// authentication, heartbeats, location reports and alarm/multimedia
// event handling. The media upload channel (JT/T 1078) is a separate
// binary, cmd/dc600-media-server, since devices dial it on its own port.
package main

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/fleetwave/dc600core/internal/sinks"
	"github.com/fleetwave/dc600core/pkg/dc600/config"
	"github.com/fleetwave/dc600core/pkg/dc600/dispatch"
	"github.com/fleetwave/dc600core/pkg/dc600/engine"
	"github.com/fleetwave/dc600core/pkg/dc600/metrics"
)

var (
	configPath = flag.String("config", "", "path to dc600.yaml (defaults are used if empty)")
	verbose    = flag.Bool("verbose", false, "log raw frame bytes at debug level")
	readTimeout = flag.Duration("read-timeout", 5*time.Minute, "per-connection read deadline")
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

	metrics.Register()

	sinksBundle := dispatch.Sinks{}
	if dsn := os.Getenv("DC600_POSTGRES_DSN"); dsn != "" {
		pool, err := sinks.NewPostgresPool(context.Background(), dsn, 8, 1)
		if err != nil {
			logger.Fatal("failed to connect to postgres", zap.Error(err))
		}
		defer pool.Close()
		sinksBundle.Positions = sinks.NewPostgresPositionSink(pool, logger)
	}
	if dir := os.Getenv("DC600_MEDIA_DIR"); dir != "" {
		store, err := sinks.NewGzipFileMediaStore(dir)
		if err != nil {
			logger.Fatal("failed to initialize media store", zap.Error(err))
		}
		sinksBundle.Media = store
	}
	if brokers := os.Getenv("DC600_KAFKA_BROKERS"); brokers != "" {
		forwarder, err := sinks.NewKafkaAlarmForwarder(
			strings.Split(brokers, ","),
			envOrDefault("DC600_KAFKA_ALARM_TOPIC", "dc600.alarms"),
			"dc600-server",
			logger,
		)
		if err != nil {
			logger.Fatal("failed to initialize kafka alarm forwarder", zap.Error(err))
		}
		defer forwarder.Close()
		sinksBundle.Alarms = forwarder
	}

	e := engine.New(cfg, engine.WithLogger(logger), engine.WithSinks(sinksBundle))
	defer e.Close()

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.DC600Port))
	if err != nil {
		logger.Fatal("failed to start listener", zap.Int("port", cfg.DC600Port), zap.Error(err))
	}
	defer listener.Close()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutting down", zap.Int("activeSessions", e.ActiveSessions()))
		listener.Close()
		os.Exit(0)
	}()

	logger.Info("dc600 server listening", zap.Int("port", cfg.DC600Port))

	for {
		conn, err := listener.Accept()
		if err != nil {
			logger.Warn("accept failed", zap.Error(err))
			continue
		}
		go handleConnection(conn, e, logger)
	}
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func handleConnection(conn net.Conn, e *engine.Engine, logger *zap.Logger) {
	defer conn.Close()

	remote := conn.RemoteAddr().String()
	logger.Info("connection accepted", zap.String("remote", remote))

	buffer := make([]byte, 0, 4096)
	readBuf := make([]byte, 2048)
	ctx := context.Background()

	for {
		conn.SetReadDeadline(time.Now().Add(*readTimeout))
		n, err := conn.Read(readBuf)
		if err != nil {
			if err != io.EOF {
				logger.Info("connection read error", zap.String("remote", remote), zap.Error(err))
			} else {
				logger.Info("connection closed by peer", zap.String("remote", remote))
			}
			return
		}
		if n == 0 {
			continue
		}

		buffer = append(buffer, readBuf[:n]...)
		if *verbose {
			logger.Debug("raw rx", zap.String("remote", remote), zap.String("hex", hex.EncodeToString(readBuf[:n])))
		}

		outbound, residue, err := e.ProcessStream(ctx, buffer)
		if err != nil {
			logger.Warn("stream processing error", zap.String("remote", remote), zap.Error(err))
		}
		buffer = residue

		for _, frame := range outbound {
			if _, err := conn.Write(frame); err != nil {
				logger.Warn("failed to write response", zap.String("remote", remote), zap.Error(err))
				return
			}
		}
	}
}
