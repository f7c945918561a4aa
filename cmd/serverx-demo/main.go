// Command serverx-demo runs an httpd server with two routes: an echo
// endpoint on /test and a server-sent-events feed on /events.
package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"dqx0.com/go/serverx/httpd"
	"dqx0.com/go/serverx/internal/obs"
)

func main() {
	cmd := &cobra.Command{
		Use:          "serverx-demo",
		Short:        "Demo HTTP/1.1 server with echo and SSE routes",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run()
		},
	}
	flags := cmd.Flags()
	flags.Int("port", 8080, "listening port")
	flags.String("hostname", "localhost", "bind hostname")
	flags.Int64("max-request-size", 65536, "maximum request body size in bytes")
	flags.String("tls-cert", "", "path to a PKCS#12 certificate (empty disables TLS)")
	flags.Bool("inline", false, "serve connections inline instead of pooled")
	flags.Bool("count", false, "log the active connection count")

	viper.SetEnvPrefix("SERVERX")
	viper.AutomaticEnv()
	_ = viper.BindPFlags(flags)

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run() error {
	zl, err := zap.NewDevelopment()
	if err != nil {
		return err
	}
	defer func() { _ = zl.Sync() }()
	obs.SetDefault(obs.NewZapLogger(zl))

	s := httpd.NewServer(httpd.HandlerFunc(handle))
	if err := s.SetPort(viper.GetInt("port")); err != nil {
		return err
	}
	if err := s.SetHostname(viper.GetString("hostname")); err != nil {
		return err
	}
	if err := s.SetMaxRequestSize(viper.GetInt64("max-request-size")); err != nil {
		return err
	}
	switch {
	case viper.GetBool("inline"):
		err = s.SetDispatcher(httpd.InlineDispatcher{})
	case viper.GetBool("count"):
		err = s.SetDispatcher(&httpd.CountingDispatcher{
			Meter: obs.NewOTelMeter("dqx0.com/go/serverx/httpd"),
		})
	}
	if err != nil {
		return err
	}
	if path := viper.GetString("tls-cert"); path != "" {
		p12, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		b := httpd.NewHTTPSBuilder()
		if err := b.Certificate(p12); err != nil {
			return err
		}
		id, err := b.Build()
		if err != nil {
			return err
		}
		if err := s.SetHTTPS(id); err != nil {
			return err
		}
	}

	if err := s.Start(); err != nil {
		return err
	}
	zl.Info("listening", zap.String("addr", s.Addr()))

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	s.Shutdown()
	return nil
}

func handle(r *httpd.Request) *httpd.Response {
	switch {
	case r.Path == "/test":
		resp := httpd.NewResponse(200)
		for i := 0; i < r.Header.Len(); i++ {
			name, value := r.Header.Field(i)
			resp.Header().Add(name, value)
		}
		if r.Body != nil {
			return resp.SetBody(r.Header.Get("Content-Type"), r.Body)
		}
		return resp.NoBody()
	case r.Path == "/events":
		return httpd.NewResponse(200).SetStream("text/event-stream", eventFeed(10))
	case r.Method == "GET":
		return httpd.NewResponse(404).NoBody()
	default:
		return httpd.NewResponse(405).NoBody()
	}
}

// eventFeed emits n SSE ticks, one per second.
func eventFeed(n int) io.Reader {
	pr, pw := io.Pipe()
	go func() {
		defer func() { _ = pw.Close() }()
		for i := 0; i < n; i++ {
			if _, err := fmt.Fprintf(pw, "data: tick %d\n\n", i); err != nil {
				return
			}
			time.Sleep(time.Second)
		}
	}()
	return pr
}
