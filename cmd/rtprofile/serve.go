package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/CAFxX/httpcompression"
	"github.com/getsentry/sentry-go"
	sentryhttp "github.com/getsentry/sentry-go/http"
	"github.com/julienschmidt/httprouter"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
	"github.com/spf13/cobra"
	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/memblob"

	"github.com/getsentry/rtprofile/internal/httputil"
	"github.com/getsentry/rtprofile/internal/publish"
	"github.com/getsentry/rtprofile/internal/storageutil"
)

const profilesPrefix = "profiles/"

type environment struct {
	config ServiceConfig

	profilesBucket  *blob.Bucket
	functionsWriter publish.Writer
}

func newEnvironment(ctx context.Context, config ServiceConfig) (*environment, error) {
	e := environment{config: config}
	var err error
	e.profilesBucket, err = blob.OpenBucket(ctx, config.BucketURL)
	if err != nil {
		return nil, err
	}
	if len(config.KafkaBrokers) > 0 {
		e.functionsWriter = &kafka.Writer{
			Addr:         kafka.TCP(config.KafkaBrokers...),
			Async:        true,
			Balancer:     kafka.CRC32Balancer{},
			BatchSize:    10,
			Compression:  kafka.Lz4,
			ReadTimeout:  3 * time.Second,
			Topic:        config.FunctionsKafkaTopic,
			WriteTimeout: 3 * time.Second,
		}
	}
	return &e, nil
}

func (e *environment) shutdown() {
	err := e.profilesBucket.Close()
	if err != nil {
		sentry.CaptureException(err)
	}
	if e.functionsWriter != nil {
		err = e.functionsWriter.Close()
		if err != nil {
			sentry.CaptureException(err)
		}
	}
	sentry.Flush(5 * time.Second)
}

func (e *environment) newRouter() (*httprouter.Router, error) {
	compress, err := httpcompression.DefaultAdapter()
	if err != nil {
		return nil, err
	}

	routes := []struct {
		method  string
		path    string
		handler http.HandlerFunc
	}{
		{http.MethodGet, "/health", e.getHealth},
		{http.MethodPost, "/profiles", e.postProfile},
		{http.MethodGet, "/profiles/:profile_id/call_tree", e.getCallTree},
		{http.MethodGet, "/profiles/:profile_id/functions", e.getFunctions},
		{http.MethodGet, "/profiles/:profile_id/speedscope", e.getSpeedscope},
		{http.MethodGet, "/profiles/:profile_id/pprof", e.getPprof},
	}

	router := httprouter.New()

	for _, route := range routes {
		handlerFunc := httputil.DecompressPayload(route.handler)
		handler := compress(handlerFunc)

		router.Handler(route.method, route.path, handler)
	}

	return router, nil
}

// newHandler returns the router behind the sentry middleware, which puts a
// hub on every request context.
func (e *environment) newHandler() (http.Handler, error) {
	router, err := e.newRouter()
	if err != nil {
		return nil, err
	}
	return sentryhttp.New(sentryhttp.Options{}).Handle(router), nil
}

// sweep deletes the stored sessions older than the retention window.
func (e *environment) sweep(ctx context.Context) {
	cutoff := time.Now().Add(-24 * time.Hour * time.Duration(e.config.RetentionDays))
	deleted, err := storageutil.DeleteOlderThan(ctx, e.profilesBucket, profilesPrefix, cutoff)
	if err != nil {
		sentry.CaptureException(err)
		log.Error().Err(err).Msg("error cleaning up stored profiles")
	}
	log.Info().Int("deleted", deleted).Time("cutoff", cutoff).Msg("stored profiles cleaned up")
}

func newServeCommand(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the profile ingestion and query service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(o.config)
		},
	}
}

func serve(config ServiceConfig) error {
	env, err := newEnvironment(context.Background(), config)
	if err != nil {
		log.Error().Err(err).Msg("error setting up environment")
		return err
	}

	err = sentry.Init(sentry.ClientOptions{
		Dsn:                   config.SentryDSN,
		EnableTracing:         true,
		Environment:           config.Environment,
		Release:               release,
		TracesSampleRate:      1.0,
		BeforeSendTransaction: httputil.SetHTTPStatusCodeTag,
	})
	if err != nil {
		log.Error().Err(err).Msg("can't initialize sentry")
		return err
	}

	handler, err := env.newHandler()
	if err != nil {
		sentry.CaptureException(err)
		log.Error().Err(err).Msg("error setting up the router")
		return err
	}

	if config.RetentionDays > 0 {
		c := cron.New()
		_, err = c.AddFunc("@daily", func() {
			env.sweep(context.Background())
		})
		if err != nil {
			log.Error().Err(err).Msg("can't set up cron function")
			return err
		}
		c.Start()
		defer c.Stop()
	}

	server := http.Server{
		Addr:              ":" + config.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	waitForShutdown := make(chan struct{})
	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, os.Interrupt, syscall.SIGTERM)
		<-c

		cctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(cctx); err != nil {
			sentry.CaptureException(err)
			log.Err(err).Msg("error shutting down server")
		}

		close(waitForShutdown)
	}()

	log.Info().Str("addr", server.Addr).Msg("serving")
	err = server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		sentry.CaptureException(err)
		log.Err(err).Msg("server failed")
		return err
	}

	<-waitForShutdown

	// Shutdown the rest of the environment after the HTTP connections are closed
	env.shutdown()
	return nil
}
