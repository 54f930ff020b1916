package grpcfeed

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/rickgao/slotrace/internal/feed"
)

const shredSubscribeMethod = "/shredstream.ShredstreamProxy/SubscribeEntries"

var shredSubscribeDesc = &grpc.StreamDesc{
	StreamName:    "SubscribeEntries",
	ServerStreams: true,
}

// Entry field numbers.
const (
	entrySlot    = 1
	entryEntries = 2
)

// Smallest bincode-encoded solana Entry: num_hashes u64, hash [32]u8 and the
// u64 length of an empty transaction vector.
const minEncodedEntry = 8 + 32 + 8

var errShortEntries = errors.New("entries payload shorter than vector length")

// ShredDialer opens ShredStream entry subscriptions.
type ShredDialer struct {
	cfg ConnConfig
}

// NewShredDialer creates a dialer.
func NewShredDialer(cfg ConnConfig) *ShredDialer {
	return &ShredDialer{cfg: cfg}
}

// Dial subscribes to all entries. ctx bounds the lifetime of the stream.
func (d *ShredDialer) Dial(ctx context.Context) (feed.Stream, error) {
	conn, err := dial(d.cfg)
	if err != nil {
		return nil, err
	}

	stream, cancel, err := openStream(ctx, conn, shredSubscribeDesc, shredSubscribeMethod, Frame{}, d.cfg.ConnectTimeout)
	if err != nil {
		conn.Close()
		return nil, err
	}

	return &shredStream{conn: conn, stream: stream, cancel: cancel}, nil
}

type shredStream struct {
	conn   *grpc.ClientConn
	stream grpc.ClientStream
	cancel context.CancelFunc

	closeOnce sync.Once
	closeErr  error
}

// Next returns the slot of the next entry batch whose payload decodes.
func (s *shredStream) Next(ctx context.Context) (feed.Sighting, error) {
	if err := ctx.Err(); err != nil {
		return feed.Sighting{}, err
	}

	var frame Frame
	if err := s.stream.RecvMsg(&frame); err != nil {
		return feed.Sighting{}, err
	}
	receivedAt := time.Now()

	slot, err := decodeEntry(frame)
	if err != nil {
		return feed.Sighting{}, &feed.DecodeError{Err: err}
	}
	return feed.Sighting{Slot: slot, ReceivedAt: receivedAt}, nil
}

func (s *shredStream) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		s.closeErr = s.conn.Close()
	})
	return s.closeErr
}

func decodeEntry(b []byte) (uint64, error) {
	fields, err := parseFields(b)
	if err != nil {
		return 0, fmt.Errorf("entry: %w", err)
	}

	var (
		slot    uint64
		entries []byte
	)
	for _, f := range fields {
		switch {
		case f.Num == entrySlot && f.Type == protowire.VarintType:
			slot = f.Varint
		case f.Num == entryEntries && f.Type == protowire.BytesType:
			entries = f.Bytes
		}
	}

	if err := checkEntries(entries); err != nil {
		return 0, fmt.Errorf("slot %d: %w", slot, err)
	}
	return slot, nil
}

// checkEntries verifies that b starts like a bincode Vec<Entry>: a
// little-endian u64 count followed by at least that many minimal entries.
func checkEntries(b []byte) error {
	if len(b) < 8 {
		return errShortEntries
	}
	count := binary.LittleEndian.Uint64(b)
	if count > uint64(len(b)-8)/minEncodedEntry {
		return fmt.Errorf("entry count %d does not fit in %d bytes", count, len(b)-8)
	}
	return nil
}
