// Package pinecone implements vectorstore.Store on the official Pinecone Go
// SDK: a serverless index managed through the control plane and read and
// written through its data plane connection.
package pinecone

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pinecone-io/go-pinecone/v3/pinecone"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/mwiater/semsearch/internal/appconfig"
	"github.com/mwiater/semsearch/internal/logging"
	"github.com/mwiater/semsearch/internal/resilience"
	"github.com/mwiater/semsearch/internal/vectorstore"
)

const defaultBatch = 100

// controlPlane is the part of *pinecone.Client the store manages indexes with.
type controlPlane interface {
	CreateServerlessIndex(ctx context.Context, in *pinecone.CreateServerlessIndexRequest) (*pinecone.Index, error)
	DescribeIndex(ctx context.Context, idxName string) (*pinecone.Index, error)
	DeleteIndex(ctx context.Context, idxName string) error
}

// dataPlane is the part of *pinecone.IndexConnection the store uses.
type dataPlane interface {
	UpsertVectors(ctx context.Context, in []*pinecone.Vector) (uint32, error)
	QueryByVectorValues(ctx context.Context, in *pinecone.QueryByVectorValuesRequest) (*pinecone.QueryVectorsResponse, error)
	DescribeIndexStats(ctx context.Context) (*pinecone.DescribeIndexStatsResponse, error)
	Close() error
}

// Store talks to one Pinecone serverless index.
type Store struct {
	control      controlPlane
	connect      func(host, namespace string) (dataPlane, error)
	name         string
	metric       string
	cloud        string
	region       string
	namespace    string
	batchSize    int
	timeout      time.Duration
	readyTimeout time.Duration
	pollInterval time.Duration
	retry        resilience.RetryConfig

	mu   sync.Mutex
	host string
	conn dataPlane
}

// New builds a store from the vector store configuration. A nil httpClient
// uses the SDK default.
func New(cfg appconfig.VectorStoreConfig, timeout, readyTimeout time.Duration, httpClient *http.Client) (*Store, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("pinecone api key is not set (PINECONE_API_KEY)")
	}
	if strings.TrimSpace(cfg.IndexName) == "" {
		return nil, fmt.Errorf("pinecone index name is empty")
	}
	params := pinecone.NewClientParams{
		ApiKey:     cfg.APIKey,
		RestClient: httpClient,
		SourceTag:  "semsearch",
	}
	if host := strings.TrimRight(cfg.ControlPlaneURL, "/"); host != "" {
		params.Host = host
	}
	client, err := pinecone.NewClient(params)
	if err != nil {
		return nil, fmt.Errorf("create pinecone client: %w", err)
	}
	connect := func(host, namespace string) (dataPlane, error) {
		conn, err := client.Index(pinecone.NewIndexConnParams{Host: host, Namespace: namespace})
		if err != nil {
			return nil, err
		}
		return conn, nil
	}
	return newStore(cfg, timeout, readyTimeout, client, connect), nil
}

func newStore(cfg appconfig.VectorStoreConfig, timeout, readyTimeout time.Duration, control controlPlane, connect func(host, namespace string) (dataPlane, error)) *Store {
	batch := cfg.UpsertBatchSize
	if batch <= 0 {
		batch = defaultBatch
	}
	return &Store{
		control:      control,
		connect:      connect,
		name:         cfg.IndexName,
		metric:       cfg.Metric,
		cloud:        cfg.Cloud,
		region:       cfg.Region,
		namespace:    cfg.Namespace,
		batchSize:    batch,
		timeout:      timeout,
		readyTimeout: readyTimeout,
		pollInterval: time.Second,
		retry:        resilience.DefaultRetryConfig(cfg.MaxRetries),
	}
}

// Backend returns "pinecone".
func (s *Store) Backend() string { return appconfig.BackendPinecone }

// Name returns the index name.
func (s *Store) Name() string { return s.name }

// Close releases the data plane connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropConn()
}

func (s *Store) dropConn() error {
	s.host = ""
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}

// Exists reports whether the index is present in the project. An index that
// is still terminating after a delete counts as missing once it is gone.
func (s *Store) Exists(ctx context.Context) (bool, error) {
	idx, err := s.describe(ctx)
	if errors.Is(err, vectorstore.ErrIndexNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if terminating(idx) {
		logging.LogEvent("[INDEX] Index %q is terminating; waiting for the delete to finish", s.name)
		if err := s.waitGone(ctx); err != nil {
			return false, err
		}
		return false, nil
	}
	return true, nil
}

// Describe returns the index's configuration and readiness.
func (s *Store) Describe(ctx context.Context) (vectorstore.IndexDescription, error) {
	idx, err := s.describe(ctx)
	if err != nil {
		return vectorstore.IndexDescription{}, err
	}
	desc := vectorstore.IndexDescription{
		Name:   idx.Name,
		Metric: string(idx.Metric),
		Host:   idx.Host,
	}
	if idx.Dimension != nil {
		desc.Dimension = int(*idx.Dimension)
	}
	if idx.Spec != nil && idx.Spec.Serverless != nil {
		desc.Cloud = string(idx.Spec.Serverless.Cloud)
		desc.Region = idx.Spec.Serverless.Region
	}
	if idx.Status != nil {
		desc.Ready = idx.Status.Ready && !terminating(idx)
	}
	return desc, nil
}

func (s *Store) describe(ctx context.Context) (*pinecone.Index, error) {
	var idx *pinecone.Index
	err := s.call(ctx, "describe_index", func(ctx context.Context) error {
		var err error
		idx, err = s.control.DescribeIndex(ctx, s.name)
		return err
	})
	if notFound(err) {
		return nil, fmt.Errorf("%w: %s", vectorstore.ErrIndexNotFound, s.name)
	}
	if err != nil {
		return nil, err
	}
	if idx == nil {
		return nil, fmt.Errorf("%w: %s", vectorstore.ErrIndexNotFound, s.name)
	}
	if idx.Host != "" && !terminating(idx) {
		s.mu.Lock()
		if s.host != idx.Host {
			_ = s.dropConn()
			s.host = idx.Host
		}
		s.mu.Unlock()
	}
	return idx, nil
}

func terminating(idx *pinecone.Index) bool {
	return idx.Status != nil && idx.Status.State == pinecone.Terminating
}

// Create creates a serverless index and waits until it reports ready.
func (s *Store) Create(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("invalid index dimension %d", dimension)
	}
	dim := int32(dimension)
	metric := pinecone.IndexMetric(s.metric)
	req := &pinecone.CreateServerlessIndexRequest{
		Name:      s.name,
		Dimension: &dim,
		Metric:    &metric,
		Cloud:     pinecone.Cloud(s.cloud),
		Region:    s.region,
	}
	err := s.call(ctx, "create_index", func(ctx context.Context) error {
		_, err := s.control.CreateServerlessIndex(ctx, req)
		return err
	})
	if err != nil {
		return err
	}
	return s.waitReady(ctx)
}

func (s *Store) waitReady(ctx context.Context) error {
	return s.poll(ctx, func() error {
		desc, err := s.Describe(ctx)
		if err != nil {
			if errors.Is(err, vectorstore.ErrIndexNotFound) {
				return err
			}
			return backoff.Permanent(err)
		}
		if !desc.Ready {
			logging.LogEvent("[INDEX] Waiting for index %q to become ready", s.name)
			return fmt.Errorf("index %q not ready", s.name)
		}
		return nil
	})
}

// waitGone polls until describe reports the index missing. Pinecone deletes
// asynchronously and keeps answering for a terminating index.
func (s *Store) waitGone(ctx context.Context) error {
	return s.poll(ctx, func() error {
		_, err := s.describe(ctx)
		switch {
		case errors.Is(err, vectorstore.ErrIndexNotFound):
			return nil
		case err != nil:
			return backoff.Permanent(err)
		default:
			logging.LogEvent("[INDEX] Waiting for index %q to finish terminating", s.name)
			return fmt.Errorf("index %q still terminating", s.name)
		}
	})
}

func (s *Store) poll(ctx context.Context, check func() error) error {
	if s.readyTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.readyTimeout)
		defer cancel()
	}
	return backoff.Retry(check, backoff.WithContext(backoff.NewConstantBackOff(s.pollInterval), ctx))
}

// Delete removes the index and returns once Pinecone no longer lists it.
func (s *Store) Delete(ctx context.Context) (bool, error) {
	err := s.call(ctx, "delete_index", func(ctx context.Context) error {
		return s.control.DeleteIndex(ctx, s.name)
	})
	if notFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	s.mu.Lock()
	_ = s.dropConn()
	s.mu.Unlock()
	if err := s.waitGone(ctx); err != nil {
		return true, fmt.Errorf("wait for index %q deletion: %w", s.name, err)
	}
	return true, nil
}

// Upsert writes records in batches and returns the number upserted.
func (s *Store) Upsert(ctx context.Context, records []vectorstore.Record) (int, error) {
	conn, err := s.dataPlane(ctx)
	if err != nil {
		return 0, err
	}
	total := 0
	for start := 0; start < len(records); start += s.batchSize {
		end := start + s.batchSize
		if end > len(records) {
			end = len(records)
		}
		vectors := make([]*pinecone.Vector, 0, end-start)
		for _, r := range records[start:end] {
			meta, err := structpb.NewStruct(r.Metadata)
			if err != nil {
				return total, fmt.Errorf("encode metadata for %s: %w", r.ID, err)
			}
			values := r.Values
			vectors = append(vectors, &pinecone.Vector{Id: r.ID, Values: &values, Metadata: meta})
		}
		var n uint32
		err := s.call(ctx, "upsert", func(ctx context.Context) error {
			var err error
			n, err = conn.UpsertVectors(ctx, vectors)
			return err
		})
		if err != nil {
			return total, err
		}
		total += int(n)
	}
	return total, nil
}

// Query returns the topK nearest vectors with their metadata.
func (s *Store) Query(ctx context.Context, values []float32, topK int) ([]vectorstore.Match, error) {
	conn, err := s.dataPlane(ctx)
	if err != nil {
		return nil, err
	}
	if topK < 0 {
		topK = 0
	}
	req := &pinecone.QueryByVectorValuesRequest{
		Vector:          values,
		TopK:            uint32(topK),
		IncludeMetadata: true,
	}
	var resp *pinecone.QueryVectorsResponse
	err = s.call(ctx, "query", func(ctx context.Context) error {
		var err error
		resp, err = conn.QueryByVectorValues(ctx, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, nil
	}
	matches := make([]vectorstore.Match, 0, len(resp.Matches))
	for _, m := range resp.Matches {
		if m == nil || m.Vector == nil {
			continue
		}
		match := vectorstore.Match{ID: m.Vector.Id, Score: m.Score}
		if m.Vector.Metadata != nil {
			match.Metadata = m.Vector.Metadata.AsMap()
		}
		matches = append(matches, match)
	}
	return matches, nil
}

// Stats returns the index's vector counts.
func (s *Store) Stats(ctx context.Context) (vectorstore.Stats, error) {
	conn, err := s.dataPlane(ctx)
	if err != nil {
		return vectorstore.Stats{}, err
	}
	var resp *pinecone.DescribeIndexStatsResponse
	err = s.call(ctx, "describe_index_stats", func(ctx context.Context) error {
		var err error
		resp, err = conn.DescribeIndexStats(ctx)
		return err
	})
	if err != nil {
		return vectorstore.Stats{}, err
	}
	stats := vectorstore.Stats{Namespaces: make(map[string]int)}
	if resp == nil {
		return stats, nil
	}
	if resp.Dimension != nil {
		stats.Dimension = int(*resp.Dimension)
	}
	stats.TotalVectorCount = int(resp.TotalVectorCount)
	for ns, summary := range resp.Namespaces {
		if summary != nil {
			stats.Namespaces[ns] = int(summary.VectorCount)
		}
	}
	return stats, nil
}

// dataPlane returns the cached index connection, describing the index first
// when its host is not known yet.
func (s *Store) dataPlane(ctx context.Context) (dataPlane, error) {
	s.mu.Lock()
	conn, host := s.conn, s.host
	s.mu.Unlock()
	if conn != nil {
		return conn, nil
	}
	if host == "" {
		idx, err := s.describe(ctx)
		if err != nil {
			return nil, err
		}
		if terminating(idx) {
			return nil, fmt.Errorf("%w: %s is terminating", vectorstore.ErrIndexNotFound, s.name)
		}
		host = idx.Host
		if host == "" {
			return nil, fmt.Errorf("index %q has no host yet", s.name)
		}
	}

	conn, err := s.connect(host, s.namespace)
	if err != nil {
		return nil, fmt.Errorf("connect to index %q: %w", s.name, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		_ = conn.Close()
		return s.conn, nil
	}
	s.host, s.conn = host, conn
	return conn, nil
}

// call runs one SDK operation with a per-attempt timeout, retries, and the
// pinecone circuit breaker.
func (s *Store) call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	return resilience.Retry(ctx, s.retry, retryable, func() error {
		_, err := resilience.Execute("pinecone", resilience.BreakerConfig{}, countsAsFailure, func() (struct{}, error) {
			attemptCtx := ctx
			if s.timeout > 0 {
				var cancel context.CancelFunc
				attemptCtx, cancel = context.WithTimeout(ctx, s.timeout)
				defer cancel()
			}
			logging.LogRequest(logging.Send, "pinecone", s.name, op, "")
			start := time.Now()
			err := fn(attemptCtx)
			logging.LogResult("pinecone", s.name, op, time.Since(start), err)
			return struct{}{}, err
		})
		return err
	})
}

func notFound(err error) bool {
	var pcErr *pinecone.PineconeError
	if errors.As(err, &pcErr) {
		return pcErr.Code == http.StatusNotFound
	}
	return status.Code(err) == codes.NotFound
}

func retryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var pcErr *pinecone.PineconeError
	if errors.As(err, &pcErr) {
		return pcErr.Code == http.StatusTooManyRequests || pcErr.Code >= 500
	}
	switch status.Code(err) {
	case codes.Unavailable, codes.ResourceExhausted, codes.Aborted, codes.Internal, codes.DeadlineExceeded:
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

func countsAsFailure(err error) bool {
	var pcErr *pinecone.PineconeError
	if errors.As(err, &pcErr) {
		return pcErr.Code >= 500
	}
	switch status.Code(err) {
	case codes.InvalidArgument, codes.NotFound, codes.AlreadyExists, codes.PermissionDenied, codes.Unauthenticated, codes.ResourceExhausted:
		return false
	}
	return !errors.Is(err, context.Canceled)
}
