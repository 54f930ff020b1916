package grpcfeed

import (
	"context"
	"fmt"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/rickgao/slotrace/internal/feed"
)

const geyserSubscribeMethod = "/geyser.Geyser/Subscribe"

var geyserSubscribeDesc = &grpc.StreamDesc{
	StreamName:    "Subscribe",
	ServerStreams: true,
	ClientStreams: true,
}

// SubscribeRequest field numbers.
const (
	reqTransactions = 3
	reqCommitment   = 6
	reqPing         = 9

	txFilterVote   = 1
	txFilterFailed = 2

	commitmentProcessed = 0
)

// SubscribeUpdate field numbers.
const (
	updTransaction = 4
	updPing        = 6
	updPong        = 9

	txUpdateSlot = 2
)

const geyserPingID = 1

// GeyserConfig configures a Geyser subscription.
type GeyserConfig struct {
	ConnConfig
	FilterName string // Name of the transaction filter in the request
}

// GeyserDialer opens Geyser transaction subscriptions.
type GeyserDialer struct {
	cfg GeyserConfig
}

// NewGeyserDialer creates a dialer.
func NewGeyserDialer(cfg GeyserConfig) *GeyserDialer {
	if cfg.FilterName == "" {
		cfg.FilterName = "client"
	}
	return &GeyserDialer{cfg: cfg}
}

// Dial subscribes to non-vote, non-failed transactions at processed
// commitment. ctx bounds the lifetime of the returned stream.
func (d *GeyserDialer) Dial(ctx context.Context) (feed.Stream, error) {
	conn, err := dial(d.cfg.ConnConfig)
	if err != nil {
		return nil, err
	}

	req := geyserSubscribeRequest(d.cfg.FilterName)
	stream, cancel, err := openStream(ctx, conn, geyserSubscribeDesc, geyserSubscribeMethod, req, d.cfg.ConnectTimeout)
	if err != nil {
		conn.Close()
		return nil, err
	}

	return &geyserStream{conn: conn, stream: stream, cancel: cancel}, nil
}

type geyserStream struct {
	conn   *grpc.ClientConn
	stream grpc.ClientStream
	cancel context.CancelFunc

	closeOnce sync.Once
	closeErr  error
}

// Next returns the slot of the next transaction update. Server pings are
// answered on the same stream before reading on.
func (s *geyserStream) Next(ctx context.Context) (feed.Sighting, error) {
	for {
		if err := ctx.Err(); err != nil {
			return feed.Sighting{}, err
		}

		var frame Frame
		if err := s.stream.RecvMsg(&frame); err != nil {
			return feed.Sighting{}, err
		}
		receivedAt := time.Now()

		upd, err := decodeGeyserUpdate(frame)
		if err != nil {
			return feed.Sighting{}, &feed.DecodeError{Err: err}
		}

		switch upd.kind {
		case geyserTransaction:
			return feed.Sighting{Slot: upd.slot, ReceivedAt: receivedAt}, nil
		case geyserPing:
			pong := geyserPingRequest(geyserPingID)
			if err := s.stream.SendMsg(&pong); err != nil {
				return feed.Sighting{}, fmt.Errorf("answer ping: %w", err)
			}
		}
	}
}

func (s *geyserStream) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		s.closeErr = s.conn.Close()
	})
	return s.closeErr
}

type geyserUpdateKind int

const (
	geyserOther geyserUpdateKind = iota
	geyserTransaction
	geyserPing
	geyserPong
)

type geyserUpdate struct {
	kind geyserUpdateKind
	slot uint64
}

func decodeGeyserUpdate(b []byte) (geyserUpdate, error) {
	fields, err := parseFields(b)
	if err != nil {
		return geyserUpdate{}, fmt.Errorf("subscribe update: %w", err)
	}

	for _, f := range fields {
		switch f.Num {
		case updTransaction:
			if f.Type != protowire.BytesType {
				return geyserUpdate{}, fmt.Errorf("transaction update has wire type %d", f.Type)
			}
			slot, err := decodeTransactionSlot(f.Bytes)
			if err != nil {
				return geyserUpdate{}, err
			}
			return geyserUpdate{kind: geyserTransaction, slot: slot}, nil
		case updPing:
			return geyserUpdate{kind: geyserPing}, nil
		case updPong:
			return geyserUpdate{kind: geyserPong}, nil
		}
	}
	return geyserUpdate{kind: geyserOther}, nil
}

func decodeTransactionSlot(b []byte) (uint64, error) {
	fields, err := parseFields(b)
	if err != nil {
		return 0, fmt.Errorf("transaction update: %w", err)
	}
	var slot uint64
	for _, f := range fields {
		if f.Num == txUpdateSlot && f.Type == protowire.VarintType {
			slot = f.Varint
		}
	}
	return slot, nil
}

func geyserSubscribeRequest(filterName string) Frame {
	var filter []byte
	filter = appendVarintField(filter, txFilterVote, 0)
	filter = appendVarintField(filter, txFilterFailed, 0)

	// map<string, SubscribeRequestFilterTransactions> entry
	var entry []byte
	entry = appendBytesField(entry, 1, []byte(filterName))
	entry = appendBytesField(entry, 2, filter)

	var req []byte
	req = appendBytesField(req, reqTransactions, entry)
	req = appendVarintField(req, reqCommitment, commitmentProcessed)
	return req
}

func geyserPingRequest(id int32) Frame {
	ping := appendVarintField(nil, 1, uint64(id))
	return appendBytesField(nil, reqPing, ping)
}
