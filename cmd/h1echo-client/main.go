// Command h1echo-client dials an h1x server, writes one request, prints
// the response status and body, then closes the connection.
package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/nyxio/h1x"
	"github.com/nyxio/h1x/config"
	"github.com/nyxio/h1x/internal/httpx"
	"github.com/nyxio/h1x/transport"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	cmd := &cobra.Command{
		Use:   "h1echo-client",
		Short: "Send one HTTP/1.x request and print the response",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClient(cmd.Context(), v)
		},
	}

	flags := cmd.Flags()
	flags.String("dial", "localhost:8080", "address to dial")
	flags.String("method", "GET", "request method")
	flags.String("uri", "/", "request URI")
	flags.String("body", "", "request body")
	flags.Int64("max-initial-size", config.DefaultMaxInitialSize, "max request/response initial section size, in bytes")
	flags.Int64("max-buf-len", config.DefaultMaxBufLen, "max in-memory body buffer, in bytes")
	flags.String("log-level", "warn", "logrus level (debug, info, warn, error)")

	_ = v.BindPFlags(flags)
	v.SetEnvPrefix("H1ECHO")
	v.AutomaticEnv()

	return cmd
}

func runClient(ctx context.Context, v *viper.Viper) error {
	logger := logrus.New()
	level, err := logrus.ParseLevel(v.GetString("log-level"))
	if err != nil {
		return fmt.Errorf("h1echo-client: %w", err)
	}
	logger.SetLevel(level)

	method, ok := httpx.ParseMethod(strings.ToUpper(v.GetString("method")))
	if !ok {
		return fmt.Errorf("h1echo-client: invalid method %q", v.GetString("method"))
	}

	conn, err := net.Dial("tcp", v.GetString("dial"))
	if err != nil {
		return fmt.Errorf("h1echo-client: dial: %w", err)
	}
	defer conn.Close()

	cfg := config.Config{
		MaxInitialSize: v.GetInt64("max-initial-size"),
		MaxBufLen:      v.GetInt64("max-buf-len"),
		Product:        config.DefaultProduct,
		ProductVersion: config.DefaultProductVersion,
	}

	tr := transport.NewTCP(conn)
	client := h1x.NewClient(tr, cfg, logger)
	defer client.Close()

	body := []byte(v.GetString("body"))
	header := h1x.NewHeader()
	if len(body) > 0 {
		if err := header.Set("Content-Length", fmt.Sprintf("%d", len(body))); err != nil {
			return err
		}
	}

	host, _, _ := net.SplitHostPort(v.GetString("dial"))
	ex, err := client.WriteRequest(ctx, method, v.GetString("uri"), host, "http", header)
	if err != nil {
		return fmt.Errorf("h1echo-client: write request: %w", err)
	}
	if len(body) > 0 {
		if err := ex.Writer.Write(body); err != nil {
			return err
		}
	}
	if err := ex.Writer.Finish(ctx, nil); err != nil {
		return fmt.Errorf("h1echo-client: finish request: %w", err)
	}

	resp, reader, err := ex.ReadResponse(ctx)
	if err != nil {
		return fmt.Errorf("h1echo-client: read response: %w", err)
	}
	respBody, err := reader.Read(ctx, -1, false)
	if err != nil {
		return fmt.Errorf("h1echo-client: read response body: %w", err)
	}

	fmt.Printf("%s %d %s\n", resp.Version, resp.StatusCode, resp.Reason)
	if len(respBody) > 0 {
		if _, err := io.Copy(os.Stdout, strings.NewReader(string(respBody)+"\n")); err != nil {
			return err
		}
	}
	return nil
}
