// Package metering talks to the metering and alarm services over gRPC with
// JSON-encoded messages.
package metering

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"

	"skynet-agent/internal/model"
)

const (
	DefaultStatisticsMethod = "/skynet.metering.v1.MeteringService/GetStatistics"
	DefaultAlarmsMethod     = "/skynet.metering.v1.AlarmService/ListAlarms"
)

type statisticsRequest struct {
	Resources []string `json:"resources"`
	Meter     string   `json:"meter"`
	Start     int64    `json:"start_unix"`
	End       int64    `json:"end_unix"`
}

type statisticsResponse struct {
	Statistics []model.MeterStatistic `json:"statistics"`
}

type alarmsRequest struct{}

type alarmsResponse struct {
	Alarms []model.Alarm `json:"alarms"`
}

type Options struct {
	Addr             string
	TLS              *tls.Config
	Token            string
	StatisticsMethod string
	AlarmsMethod     string
	DialTimeout      time.Duration
}

// GRPCClient implements the meter statistics and alarm listing
// collaborators. The connection is dialed on first use.
type GRPCClient struct {
	mu   sync.Mutex
	conn *grpc.ClientConn

	logger *slog.Logger
	opts   Options
}

func NewGRPCClient(opts Options, logger *slog.Logger) *GRPCClient {
	if opts.StatisticsMethod == "" {
		opts.StatisticsMethod = DefaultStatisticsMethod
	}
	if opts.AlarmsMethod == "" {
		opts.AlarmsMethod = DefaultAlarmsMethod
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = 8 * time.Second
	}
	return &GRPCClient{logger: logger, opts: opts}
}

// MeterStatistics returns the per-resource aggregate of meter over the
// filter's window.
func (c *GRPCClient) MeterStatistics(ctx context.Context, filter model.SampleFilter) ([]model.MeterStatistic, error) {
	req := statisticsRequest{
		Resources: filter.Resources,
		Meter:     filter.Meter,
		Start:     filter.Start.Unix(),
		End:       filter.End.Unix(),
	}
	var resp statisticsResponse
	if err := c.invoke(ctx, c.opts.StatisticsMethod, req, &resp); err != nil {
		return nil, err
	}
	return resp.Statistics, nil
}

func (c *GRPCClient) ListAlarms(ctx context.Context) ([]model.Alarm, error) {
	var resp alarmsResponse
	if err := c.invoke(ctx, c.opts.AlarmsMethod, alarmsRequest{}, &resp); err != nil {
		return nil, err
	}
	return resp.Alarms, nil
}

func (c *GRPCClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

func (c *GRPCClient) invoke(ctx context.Context, method string, req, resp any) error {
	conn, err := c.ensureConn(ctx)
	if err != nil {
		return err
	}
	if err := conn.Invoke(c.decorateContext(ctx), method, req, resp); err != nil {
		return fmt.Errorf("grpc %s: %w", method, err)
	}
	return nil
}

func (c *GRPCClient) ensureConn(ctx context.Context) (*grpc.ClientConn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		return c.conn, nil
	}

	dialCtx, cancel := context.WithTimeout(ctx, c.opts.DialTimeout)
	defer cancel()

	var creds credentials.TransportCredentials
	if c.opts.TLS != nil {
		creds = credentials.NewTLS(c.opts.TLS)
	} else {
		creds = insecure.NewCredentials()
	}

	conn, err := grpc.DialContext(
		dialCtx,
		c.opts.Addr,
		grpc.WithTransportCredentials(creds),
		grpc.WithBlock(),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(jsonCodec{}), grpc.CallContentSubtype("json")),
	)
	if err != nil {
		return nil, fmt.Errorf("grpc dial %s: %w", c.opts.Addr, err)
	}
	c.conn = conn
	c.logger.Info("metering grpc connected", "addr", c.opts.Addr)
	return conn, nil
}

func (c *GRPCClient) decorateContext(ctx context.Context) context.Context {
	if c.opts.Token == "" {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+c.opts.Token)
}
