package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/aponysus/procedure/classify"
	grpcint "github.com/aponysus/procedure/integrations/grpc"
	httpint "github.com/aponysus/procedure/integrations/http"
	"github.com/aponysus/procedure/logger"
	"github.com/aponysus/procedure/observe"
	"github.com/aponysus/procedure/queue"
)

type fetchFlags struct {
	method     string
	headers    []string
	data       string
	classifier string
	printBody  bool
}

// FetchCmd sends one HTTP request as a network data task and prints how the
// result classifies.
func FetchCmd() *cobra.Command {
	var f fetchFlags
	cmd := &cobra.Command{
		Use:   "fetch URL",
		Short: "Fetch a URL on a queue and print its classification",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFetch(cmd, args[0], f)
		},
	}
	cmd.Flags().StringVarP(&f.method, "method", "X", http.MethodGet, "request method")
	cmd.Flags().StringArrayVarP(&f.headers, "header", "H", nil, "request header as 'Name: value'")
	cmd.Flags().StringVarP(&f.data, "data", "d", "", "request body")
	cmd.Flags().StringVar(&f.classifier, "classifier", classify.ClassifierAuto, "classifier used for the outcome")
	cmd.Flags().BoolVar(&f.printBody, "body", false, "print the response body")
	return cmd
}

func classifiers() *classify.Registry {
	reg := classify.NewDefaultRegistry()
	grpcint.Register(reg)
	return reg
}

func runFetch(cmd *cobra.Command, url string, f fetchFlags) error {
	ctx := cmd.Context()
	cfg, err := configFrom(ctx)
	if err != nil {
		return err
	}
	log := logger.FromContext(ctx)

	reg := classifiers()
	if _, ok := reg.Get(f.classifier); !ok {
		return fmt.Errorf("unknown classifier %q (have %s)", f.classifier, strings.Join(reg.Names(), ", "))
	}
	classifier := reg.Lookup(f.classifier)

	req, err := newRequest(ctx, url, f)
	if err != nil {
		return err
	}

	observers := observe.MultiObserver{}
	otelObs, err := observe.NewOTelObserver(nil)
	if err != nil {
		return err
	}
	observers.Observers = append(observers.Observers, otelObs)

	if cfg.Metrics.Enabled {
		promReg := prometheus.NewRegistry()
		promObs, err := observe.NewPrometheusObserver(promReg, cfg.Metrics.Namespace)
		if err != nil {
			return err
		}
		observers.Observers = append(observers.Observers, promObs)

		stop, err := serveMetrics(log, cfg.Metrics.Address, promReg)
		if err != nil {
			return err
		}
		defer stop()
	}

	q := queue.New(ctx,
		queue.WithName(cfg.Queue.Name),
		queue.WithWorkers(cfg.Queue.Workers),
		queue.WithBuffer(cfg.Queue.Buffer),
		queue.WithTaskTimeout(cfg.Queue.TaskTimeout),
		queue.WithLogger(log),
		queue.WithObserver(observers),
		queue.WithClassifier(classifier),
	)

	client := &http.Client{Timeout: cfg.HTTP.Timeout}
	payload, resp, fetchErr := httpint.Fetch(ctx, q, client, req, httpint.WithMaxBodyBytes(cfg.HTTP.MaxBodyBytes))
	if err := q.Close(); err != nil && !errors.Is(err, context.Canceled) {
		log.Warn("queue close", "queue", q.Name(), "error", err)
	}

	printResult(cmd.OutOrStdout(), classifier, payload, resp, fetchErr, f.printBody)

	return fetchErr
}

func newRequest(ctx context.Context, url string, f fetchFlags) (*http.Request, error) {
	var body io.Reader
	if f.data != "" {
		body = strings.NewReader(f.data)
	}
	req, err := http.NewRequestWithContext(ctx, strings.ToUpper(f.method), url, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for _, h := range f.headers {
		name, value, ok := strings.Cut(h, ":")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("malformed header %q", h)
		}
		req.Header.Add(strings.TrimSpace(name), strings.TrimSpace(value))
	}
	return req, nil
}

func printResult(w io.Writer, c classify.Classifier, p httpint.Payload, resp classify.ClassifiedResponse, err error, body bool) {
	if sc, ok := resp.HTTPStatusCode(); ok {
		fmt.Fprintf(w, "status:  %s\n", sc)
	} else if r := resp.Response(); r != nil {
		fmt.Fprintf(w, "status:  %d\n", r.StatusCode)
	} else {
		fmt.Fprintln(w, "status:  none")
	}

	ce := resp.Err()
	fmt.Fprintf(w, "network: %s\n", ce.Code())

	out := c.Classify(resp.Response(), err)
	fmt.Fprintf(w, "outcome: %s (%s)\n", out.Kind, out.Reason)
	if out.BackoffOverride > 0 {
		fmt.Fprintf(w, "backoff: %s\n", out.BackoffOverride)
	}
	if ce != nil {
		fmt.Fprintf(w, "hints:   transient=%t timeout=%t await_reachability=%t\n",
			ce.IsTransient(), ce.IsTimeout(), ce.WaitForReachabilityChange())
	}
	if p.Truncated {
		fmt.Fprintf(w, "bytes:   %d (truncated)\n", len(p.Data))
	} else {
		fmt.Fprintf(w, "bytes:   %d\n", len(p.Data))
	}
	if body && len(p.Data) > 0 {
		fmt.Fprintln(w)
		_, _ = w.Write(p.Data)
	}
}

// serveMetrics starts the Prometheus endpoint and returns its shutdown func.
func serveMetrics(log logger.Logger, addr string, reg *prometheus.Registry) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listener: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		log.Info("metrics available", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server", "error", err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}
