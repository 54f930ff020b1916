package grpcfeed

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/url"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/rickgao/slotrace/internal/feed"
)

const (
	defaultConnectTimeout = 10 * time.Second
	maxRecvMsgSize        = 64 << 20 // Entry batches can be large
	tokenMetadataKey      = "x-token"
)

// ConnConfig describes how to reach a gRPC feed.
type ConnConfig struct {
	URL            string        // https://host[:port] uses TLS, http://host[:port] plaintext
	Token          string        // Sent as x-token metadata when set
	ConnectTimeout time.Duration // Bound on dial + stream open + response headers
	DialOptions    []grpc.DialOption
}

// tokenAuth attaches the provider token to every RPC.
type tokenAuth struct {
	token  string
	secure bool
}

func (a tokenAuth) GetRequestMetadata(ctx context.Context, uri ...string) (map[string]string, error) {
	return map[string]string{tokenMetadataKey: a.token}, nil
}

func (a tokenAuth) RequireTransportSecurity() bool {
	return a.secure
}

// dial creates a client connection. Nothing touches the network until the
// first stream is opened.
func dial(cfg ConnConfig) (*grpc.ClientConn, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}

	var (
		creds       credentials.TransportCredentials
		defaultPort string
		secure      bool
	)
	switch u.Scheme {
	case "https":
		creds = credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12})
		defaultPort = "443"
		secure = true
	case "http":
		creds = insecure.NewCredentials()
		defaultPort = "80"
	default:
		return nil, fmt.Errorf("url %q: scheme must be http or https", cfg.URL)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("url %q: missing host", cfg.URL)
	}

	host := u.Host
	if u.Port() == "" {
		host = net.JoinHostPort(u.Hostname(), defaultPort)
	}

	opts := []grpc.DialOption{
		grpc.WithTransportCredentials(creds),
		grpc.WithDefaultCallOptions(
			grpc.ForceCodec(Codec{}),
			grpc.MaxCallRecvMsgSize(maxRecvMsgSize),
		),
	}
	if cfg.Token != "" {
		opts = append(opts, grpc.WithPerRPCCredentials(tokenAuth{token: cfg.Token, secure: secure}))
	}
	opts = append(opts, cfg.DialOptions...)

	return grpc.NewClient("passthrough:///"+host, opts...)
}

// openStream starts an RPC, sends the initial request and waits for the
// server's response headers, all within the connect timeout. The stream
// lives until ctx is cancelled or the returned cancel func is called.
func openStream(ctx context.Context, conn *grpc.ClientConn, desc *grpc.StreamDesc, method string, req Frame, timeout time.Duration) (grpc.ClientStream, context.CancelFunc, error) {
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}

	streamCtx, cancel := context.WithCancel(ctx)
	timer := time.AfterFunc(timeout, cancel)

	stream, err := func() (grpc.ClientStream, error) {
		stream, err := conn.NewStream(streamCtx, desc, method)
		if err != nil {
			return nil, err
		}
		if err := stream.SendMsg(&req); err != nil {
			return nil, fmt.Errorf("send request: %w", err)
		}
		if !desc.ClientStreams {
			if err := stream.CloseSend(); err != nil {
				return nil, fmt.Errorf("close send: %w", err)
			}
		}
		if _, err := stream.Header(); err != nil {
			return nil, fmt.Errorf("await headers: %w", err)
		}
		return stream, nil
	}()

	if !timer.Stop() {
		cancel()
		return nil, nil, fmt.Errorf("%s: %w", method, feed.ErrConnectTimeout)
	}
	if err != nil {
		cancel()
		return nil, nil, fmt.Errorf("%s: %w", method, err)
	}
	return stream, cancel, nil
}
