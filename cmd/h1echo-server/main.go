// Command h1echo-server is a minimal h1x server: it accepts TCP
// connections and echoes each request's body back as the response body,
// preserving the request's Content-Type.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/nyxio/h1x"
	"github.com/nyxio/h1x/config"
	"github.com/nyxio/h1x/internal/herr"
	"github.com/nyxio/h1x/transport"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	cmd := &cobra.Command{
		Use:   "h1echo-server",
		Short: "Serve HTTP/1.x requests, echoing each body back",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), v)
		},
	}

	flags := cmd.Flags()
	flags.String("listen", ":8080", "address to listen on")
	flags.Int64("max-initial-size", config.DefaultMaxInitialSize, "max request/response initial section size, in bytes")
	flags.Int64("max-buf-len", config.DefaultMaxBufLen, "max in-memory body buffer, in bytes")
	flags.String("log-level", "info", "logrus level (debug, info, warn, error)")

	_ = v.BindPFlags(flags)
	v.SetEnvPrefix("H1ECHO")
	v.AutomaticEnv()

	return cmd
}

func runServer(ctx context.Context, v *viper.Viper) error {
	logger := logrus.New()
	level, err := logrus.ParseLevel(v.GetString("log-level"))
	if err != nil {
		return fmt.Errorf("h1echo-server: %w", err)
	}
	logger.SetLevel(level)

	ln, err := net.Listen("tcp", v.GetString("listen"))
	if err != nil {
		return fmt.Errorf("h1echo-server: listen: %w", err)
	}
	defer ln.Close()
	logger.WithField("addr", ln.Addr().String()).Info("listening")

	cfg := config.Config{
		MaxInitialSize: v.GetInt64("max-initial-size"),
		MaxBufLen:      v.GetInt64("max-buf-len"),
		Product:        config.DefaultProduct,
		ProductVersion: config.DefaultProductVersion,
	}

	for {
		conn, err := ln.Accept()
		if err != nil {
			return fmt.Errorf("h1echo-server: accept: %w", err)
		}
		go serveConn(conn, cfg, logger)
	}
}

func serveConn(conn net.Conn, cfg config.Config, logger logrus.FieldLogger) {
	defer conn.Close()
	tr := transport.NewTCP(conn)
	srv := h1x.NewServer(tr, cfg, logger)
	ctx := context.Background()

	for {
		ex, err := srv.NextRequest(ctx)
		if err != nil {
			if !errors.Is(err, herr.ErrConnectionClosed) {
				logger.WithField("error", err).Warn("connection ended")
			}
			return
		}

		if err := echo(ctx, ex); err != nil {
			logger.WithField("error", err).Warn("exchange failed")
			return
		}
	}
}

func echo(ctx context.Context, ex *h1x.Exchange) error {
	body, err := ex.Reader.Read(ctx, -1, false)
	if err != nil && !errors.Is(err, herr.ErrReadFinished) {
		return err
	}

	header := h1x.NewHeader()
	if ct := ex.Request.Header.Get("Content-Type"); ct != "" {
		if err := header.Set("Content-Type", ct); err != nil {
			return err
		}
	}

	w, err := ex.WriteResponse(ctx, 200, header)
	if err != nil {
		return err
	}
	return w.Finish(ctx, body)
}
