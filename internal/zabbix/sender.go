package zabbix

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"skynet-agent/internal/metrics"
	"skynet-agent/internal/model"
)

// Sender pushes history samples to the backend trapper port. Each exchange
// uses its own connection: connect, write one frame, read one acknowledgement
// frame, close.
type Sender struct {
	addr    string
	timeout time.Duration
	logger  *slog.Logger
	metrics *metrics.Metrics
	dial    func(ctx context.Context, network, addr string) (net.Conn, error)
}

func NewSender(host string, port int, timeout time.Duration, logger *slog.Logger, m *metrics.Metrics) *Sender {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	d := &net.Dialer{Timeout: timeout}
	return &Sender{
		addr:    net.JoinHostPort(host, strconv.Itoa(port)),
		timeout: timeout,
		logger:  logger,
		metrics: m,
		dial:    d.DialContext,
	}
}

// SenderResponse is the backend acknowledgement of a pushed batch.
type SenderResponse struct {
	Response     string  `json:"response"`
	Info         string  `json:"info"`
	Processed    int     `json:"-"`
	Failed       int     `json:"-"`
	Total        int     `json:"-"`
	SecondsSpent float64 `json:"-"`
}

func (r *SenderResponse) Success() bool {
	return r != nil && r.Response == "success"
}

// parseInfo fills the counters from an info string such as
// "processed: 1; failed: 0; total: 1; seconds spent: 0.000055".
func (r *SenderResponse) parseInfo() {
	for _, part := range strings.Split(r.Info, ";") {
		key, value, ok := strings.Cut(part, ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		switch key {
		case "processed":
			r.Processed, _ = strconv.Atoi(value)
		case "failed":
			r.Failed, _ = strconv.Atoi(value)
		case "total":
			r.Total, _ = strconv.Atoi(value)
		case "seconds spent":
			r.SecondsSpent, _ = strconv.ParseFloat(value, 64)
		}
	}
}

// Send pushes payload and returns the parsed acknowledgement. Protocol and
// transport failures are logged and yield nil: the push was attempted and its
// outcome is unknown.
func (s *Sender) Send(ctx context.Context, payload any) *SenderResponse {
	resp, err := s.Exchange(ctx, payload)
	if err != nil {
		var protoErr *ProtocolError
		if errors.As(err, &protoErr) && errors.Is(err, ErrBadMagic) {
			s.logger.Error("failed to send sender data, got invalid response", "addr", s.addr, "error", err)
		} else {
			s.logger.Error("sender exchange failed", "addr", s.addr, "error", err)
		}
		return nil
	}
	s.logger.Info("sender data acknowledged", "addr", s.addr, "response", resp.Response, "info", resp.Info)
	return resp
}

// SendBatch wraps items in a "sender data" request and sends it.
func (s *Sender) SendBatch(ctx context.Context, items ...model.SenderItem) *SenderResponse {
	req := model.SenderRequest{Request: model.SenderRequestData, Data: items}
	if req.Data == nil {
		req.Data = []model.SenderItem{}
	}
	return s.Send(ctx, req)
}

// Exchange performs one framed request/acknowledgement round trip and returns
// the typed failure. The connection is closed on every path.
func (s *Sender) Exchange(ctx context.Context, payload any) (resp *SenderResponse, err error) {
	start := time.Now()
	defer func() {
		s.metrics.ObservePush(outcomeOf(err), time.Since(start))
	}()

	frame, err := Encode(payload)
	if err != nil {
		return nil, err
	}

	conn, err := s.dial(ctx, "tcp", s.addr)
	if err != nil {
		return nil, &TransportError{Addr: s.addr, Op: "connect", Err: err}
	}
	defer func() { _ = conn.Close() }()

	if err := conn.SetWriteDeadline(time.Now().Add(s.timeout)); err != nil {
		return nil, &TransportError{Addr: s.addr, Op: "set deadline", Err: err}
	}
	if _, err := conn.Write(frame); err != nil {
		return nil, &TransportError{Addr: s.addr, Op: "write", Err: err}
	}

	body, err := ReadFrame(&deadlineReader{conn: conn, timeout: s.timeout})
	if err != nil {
		var protoErr *ProtocolError
		if errors.As(err, &protoErr) {
			return nil, err
		}
		return nil, &TransportError{Addr: s.addr, Op: "read", Err: err}
	}

	resp = &SenderResponse{}
	if err := json.Unmarshal(body, resp); err != nil {
		return nil, &ProtocolError{Op: "decode acknowledgement", Err: err}
	}
	resp.parseInfo()
	return resp, nil
}

// deadlineReader re-arms the read deadline before every socket read, so a
// stalled receive fails after timeout instead of hanging.
type deadlineReader struct {
	conn    net.Conn
	timeout time.Duration
}

func (r *deadlineReader) Read(p []byte) (int, error) {
	if err := r.conn.SetReadDeadline(time.Now().Add(r.timeout)); err != nil {
		return 0, err
	}
	return r.conn.Read(p)
}

func outcomeOf(err error) string {
	if err == nil {
		return metrics.PushSuccess
	}
	var protoErr *ProtocolError
	var transportErr *TransportError
	switch {
	case errors.As(err, &protoErr):
		return metrics.PushProtocolError
	case errors.As(err, &transportErr):
		return metrics.PushTransportError
	default:
		return metrics.PushEncodeError
	}
}

// String renders an acknowledgement for CLI output.
func (r *SenderResponse) String() string {
	if r == nil {
		return "no response"
	}
	return fmt.Sprintf("%s (processed=%d failed=%d total=%d)", r.Response, r.Processed, r.Failed, r.Total)
}
