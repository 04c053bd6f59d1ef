package zabbix

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skynet-agent/internal/metrics"
	"skynet-agent/internal/model"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeTrapper accepts one connection, hands the decoded request to the
// received channel and answers with reply.
func fakeTrapper(t *testing.T, reply func(conn net.Conn)) (host string, port int, received <-chan json.RawMessage) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	ch := make(chan json.RawMessage, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		body, err := ReadFrame(conn)
		if err == nil {
			ch <- body
		}
		reply(conn)
	}()

	h, p, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	portNum, err := strconv.Atoi(p)
	require.NoError(t, err)
	return h, portNum, ch
}

func writeAck(conn net.Conn) {
	frame, _ := Encode(map[string]string{
		"response": "success",
		"info":     "processed: 2; failed: 1; total: 3; seconds spent: 0.000055",
	})
	_, _ = conn.Write(frame)
}

func TestSendBatchSuccess(t *testing.T) {
	host, port, received := fakeTrapper(t, writeAck)
	m := metrics.New()
	s := NewSender(host, port, time.Second, discardLogger(), m)

	resp := s.SendBatch(context.Background(),
		model.SenderItem{Host: "openstack", Key: "a", Value: "1"},
		model.SenderItem{Host: "openstack", Key: "b", Value: "2"},
	)
	require.NotNil(t, resp)
	assert.True(t, resp.Success())
	assert.Equal(t, 2, resp.Processed)
	assert.Equal(t, 1, resp.Failed)
	assert.Equal(t, 3, resp.Total)
	assert.InDelta(t, 0.000055, resp.SecondsSpent, 1e-9)

	var req model.SenderRequest
	require.NoError(t, json.Unmarshal(<-received, &req))
	assert.Equal(t, "sender data", req.Request)
	require.Len(t, req.Data, 2)
	assert.Equal(t, "a", req.Data[0].Key)
	assert.Equal(t, "b", req.Data[1].Key)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.PushCounter(metrics.PushSuccess)))
}

func TestSendBatchSingleItemIsWrappedInList(t *testing.T) {
	host, port, received := fakeTrapper(t, writeAck)
	s := NewSender(host, port, time.Second, discardLogger(), nil)

	require.NotNil(t, s.SendBatch(context.Background(), model.SenderItem{Host: "h", Key: "k", Value: "v"}))

	var req map[string]any
	require.NoError(t, json.Unmarshal(<-received, &req))
	data, ok := req["data"].([]any)
	require.True(t, ok)
	assert.Len(t, data, 1)
}

func TestSendBadMagicReturnsNil(t *testing.T) {
	host, port, _ := fakeTrapper(t, func(conn net.Conn) {
		_, _ = conn.Write([]byte("HTTP/1.1 400 Bad Request\r\n\r\n"))
	})
	m := metrics.New()
	s := NewSender(host, port, time.Second, discardLogger(), m)

	assert.Nil(t, s.Send(context.Background(), map[string]string{"k": "v"}))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PushCounter(metrics.PushProtocolError)))
}

func TestExchangeShortBody(t *testing.T) {
	host, port, _ := fakeTrapper(t, func(conn net.Conn) {
		frame, _ := Encode(map[string]string{"response": "success"})
		_, _ = conn.Write(frame[:len(frame)-4])
	})
	s := NewSender(host, port, time.Second, discardLogger(), nil)

	_, err := s.Exchange(context.Background(), map[string]string{"k": "v"})
	assert.ErrorIs(t, err, ErrShortRead)
}

func TestExchangeTimeout(t *testing.T) {
	done := make(chan struct{})
	t.Cleanup(func() { close(done) })
	host, port, _ := fakeTrapper(t, func(conn net.Conn) {
		<-done
	})
	s := NewSender(host, port, 100*time.Millisecond, discardLogger(), nil)

	start := time.Now()
	_, err := s.Exchange(context.Background(), map[string]string{"k": "v"})
	var transportErr *TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.Equal(t, "read", transportErr.Op)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestSendConnectionRefusedReturnsNil(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().(*net.TCPAddr)
	require.NoError(t, ln.Close())

	m := metrics.New()
	s := NewSender("127.0.0.1", addr.Port, 200*time.Millisecond, discardLogger(), m)

	_, err = s.Exchange(context.Background(), map[string]string{"k": "v"})
	var transportErr *TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.Equal(t, "connect", transportErr.Op)

	assert.Nil(t, s.Send(context.Background(), map[string]string{"k": "v"}))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.PushCounter(metrics.PushTransportError)))
}

func TestSenderResponseString(t *testing.T) {
	var nilResp *SenderResponse
	assert.Equal(t, "no response", nilResp.String())
	assert.False(t, nilResp.Success())
}
