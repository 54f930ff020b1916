package runner

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/rickgao/slotrace/internal/config"
	"github.com/rickgao/slotrace/internal/feed"
	"github.com/rickgao/slotrace/internal/feed/grpcfeed"
	"github.com/rickgao/slotrace/internal/feed/wsfeed"
)

// DialerFor builds the stream dialer for a configured feed kind.
func DialerFor(fc config.FeedConfig, connectTimeout time.Duration, logger *slog.Logger) (feed.Dialer, error) {
	conn := grpcfeed.ConnConfig{
		URL:            fc.URL,
		Token:          fc.Token,
		ConnectTimeout: connectTimeout,
	}

	switch fc.Kind {
	case config.KindGeyser:
		return grpcfeed.NewGeyserDialer(grpcfeed.GeyserConfig{ConnConfig: conn}), nil
	case config.KindShredstream:
		return grpcfeed.NewShredDialer(conn), nil
	case config.KindWebsocket:
		ws := wsfeed.DefaultConfig()
		ws.URL = fc.URL
		ws.Token = fc.Token
		ws.HandshakeTimeout = connectTimeout
		if fc.Method != "" {
			ws.Method = fc.Method
		}
		if fc.PingTimeout > 0 {
			ws.PingTimeout = fc.PingTimeout
		}
		return wsfeed.NewDialer(ws, logger.With("feed", fc.Name)), nil
	default:
		return nil, fmt.Errorf("feed %s kind %q: %w", fc.Name, fc.Kind, feed.ErrUnsupportedKind)
	}
}

// BuildAdapter wires a dialer into a feed adapter using the feed's dedup
// and queue settings.
func BuildAdapter(fc config.FeedConfig, dialer feed.Dialer, logger *slog.Logger, rec feed.Recorder) (*feed.Adapter, error) {
	filter, err := feed.NewFilter(feed.DedupPolicy(fc.Dedup), fc.DedupHorizon)
	if err != nil {
		return nil, fmt.Errorf("feed %s: %w", fc.Name, err)
	}
	policy, err := feed.ParseOverflowPolicy(fc.Overflow)
	if err != nil {
		return nil, fmt.Errorf("feed %s: %w", fc.Name, err)
	}

	queue := feed.NewQueue(fc.QueueSize, policy)
	return feed.NewAdapter(fc.Name, dialer, filter, queue, logger, feed.WithRecorder(rec)), nil
}
