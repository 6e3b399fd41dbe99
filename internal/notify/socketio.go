package notify

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"

	"github.com/vk/phylogrid/internal/ctxlog"
)

const defaultConnectTimeout = 15 * time.Second

// Options configures the socket.io connection.
type Options struct {
	URL                string
	Namespace          string
	InsecureSkipVerify bool
	// ConnectTimeout defaults to 15s.
	ConnectTimeout time.Duration
}

// Dial connects to a socket.io server and returns a Publisher emitting on
// that connection. It blocks until the server accepts the connection.
func Dial(ctx context.Context, runID string, opts Options) (*Publisher, error) {
	logger := ctxlog.FromContext(ctx).With("url", opts.URL)

	parsed, err := url.Parse(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing events URL: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("events URL %q must be absolute", opts.URL)
	}
	timeout := opts.ConnectTimeout
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}

	sopts := socket.DefaultOptions()
	if parsed.Path != "" {
		sopts.SetPath(parsed.Path)
	}
	if opts.InsecureSkipVerify {
		logger.Warn("Skipping TLS certificate verification.")
		sopts.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	}
	sopts.SetTransports(types.NewSet(transports.WebSocket))

	manager := socket.NewManager(fmt.Sprintf("%s://%s", parsed.Scheme, parsed.Host), sopts)
	io := manager.Socket(opts.Namespace, sopts)

	connected := make(chan error, 1)
	io.Once(types.EventName("connect"), func(...any) {
		connected <- nil
	})
	io.Once(types.EventName("connect_error"), func(args ...any) {
		err := errors.New("connection refused")
		if len(args) > 0 {
			if e, ok := args[0].(error); ok {
				err = e
			}
		}
		connected <- err
	})

	logger.Debug("Connecting to events endpoint.")
	io.Connect()

	select {
	case err := <-connected:
		if err != nil {
			io.Disconnect()
			return nil, fmt.Errorf("socket.io connection failed: %w", err)
		}
	case <-ctx.Done():
		io.Disconnect()
		return nil, fmt.Errorf("waiting for socket.io connection: %w", ctx.Err())
	case <-time.After(timeout):
		io.Disconnect()
		return nil, fmt.Errorf("timed out after %v waiting for socket.io connection", timeout)
	}

	logger.Info("Connected to events endpoint.", "sid", io.Id())
	return NewPublisher(runID, &socketEmitter{io: io}), nil
}

// socketEmitter adapts a socket.io client to Emitter.
type socketEmitter struct {
	io *socket.Socket
}

func (s *socketEmitter) Emit(event string, args ...any) error {
	if !s.io.Connected() {
		return errors.New("socket.io client is not connected")
	}
	return s.io.Emit(event, args...)
}

func (s *socketEmitter) Close() error {
	s.io.Disconnect()
	return nil
}
