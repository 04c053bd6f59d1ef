package metering

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"skynet-agent/internal/model"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeMetering answers unary JSON calls on any method.
type fakeMetering struct {
	mu       sync.Mutex
	methods  []string
	auth     []string
	requests []json.RawMessage

	stats  []model.MeterStatistic
	alarms []model.Alarm
}

func (f *fakeMetering) handle(_ any, stream grpc.ServerStream) error {
	method, _ := grpc.MethodFromServerStream(stream)
	md, _ := metadata.FromIncomingContext(stream.Context())

	var req json.RawMessage
	if err := stream.RecvMsg(&req); err != nil {
		return err
	}

	f.mu.Lock()
	f.methods = append(f.methods, method)
	f.auth = append(f.auth, md.Get("authorization")...)
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	switch method {
	case DefaultStatisticsMethod:
		return stream.SendMsg(statisticsResponse{Statistics: f.stats})
	case DefaultAlarmsMethod:
		return stream.SendMsg(alarmsResponse{Alarms: f.alarms})
	default:
		return status.Errorf(codes.Unimplemented, "unknown method %s", method)
	}
}

func startFake(t *testing.T, f *fakeMetering) string {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	srv := grpc.NewServer(grpc.UnknownServiceHandler(f.handle))
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)
	return lis.Addr().String()
}

func TestMeterStatistics(t *testing.T) {
	f := &fakeMetering{stats: []model.MeterStatistic{
		{ResourceID: "v1", Avg: 42.5, Count: 3},
		{ResourceID: "v2", Avg: 7},
	}}
	addr := startFake(t, f)
	c := NewGRPCClient(Options{Addr: addr, Token: "secret"}, discardLogger())
	defer c.Close()

	end := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)
	got, err := c.MeterStatistics(context.Background(), model.SampleFilter{
		Resources: []string{"v1", "v2"},
		Meter:     "cpu_util",
		Start:     end.Add(-3 * time.Minute),
		End:       end,
	})
	require.NoError(t, err)
	assert.Equal(t, f.stats, got)

	f.mu.Lock()
	defer f.mu.Unlock()
	assert.Equal(t, []string{DefaultStatisticsMethod}, f.methods)
	assert.Equal(t, []string{"Bearer secret"}, f.auth)
	assert.JSONEq(t,
		`{"resources":["v1","v2"],"meter":"cpu_util","start_unix":1792065420,"end_unix":1792065600}`,
		string(f.requests[0]))
}

func TestListAlarmsWithoutToken(t *testing.T) {
	f := &fakeMetering{alarms: []model.Alarm{
		{AlarmID: "a1", Name: "cpu high", State: model.AlarmStateAlarm},
		{AlarmID: "a2", Name: "disk", State: model.AlarmStateOK},
	}}
	c := NewGRPCClient(Options{Addr: startFake(t, f)}, discardLogger())
	defer c.Close()

	got, err := c.ListAlarms(context.Background())
	require.NoError(t, err)
	assert.Equal(t, f.alarms, got)

	f.mu.Lock()
	defer f.mu.Unlock()
	assert.Empty(t, f.auth)
}

func TestUnknownMethodFails(t *testing.T) {
	f := &fakeMetering{}
	c := NewGRPCClient(Options{Addr: startFake(t, f), AlarmsMethod: "/skynet.v0.Alarms/List"}, discardLogger())
	defer c.Close()

	_, err := c.ListAlarms(context.Background())
	require.Error(t, err)
	assert.Equal(t, codes.Unimplemented, status.Code(err))
}

func TestDialTimeout(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := lis.Addr().String()
	require.NoError(t, lis.Close())

	c := NewGRPCClient(Options{Addr: addr, DialTimeout: 200 * time.Millisecond}, discardLogger())
	_, err = c.ListAlarms(context.Background())
	assert.Error(t, err)
	assert.NoError(t, c.Close())
}
