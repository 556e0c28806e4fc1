package services

import (
	"context"
	"errors"
)

// ErrNil is returned by Store.Get when the key does not exist.
var ErrNil = errors.New("kv: nil")

// Store is the key-value gateway: strings, sets and sorted sets. Values are
// opaque strings, JSON-encoded by the callers. Single-key operations are
// atomic; Atomic applies a batch of writes as one unit.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	SAdd(ctx context.Context, key string, members ...string) error
	SRem(ctx context.Context, key string, members ...string) error
	SIsMember(ctx context.Context, key, member string) (bool, error)
	SMembers(ctx context.Context, key string) ([]string, error)
	ZAdd(ctx context.Context, key string, score float64, member string) error
	// ZRange follows Redis index semantics, negative indexes count from the end.
	ZRange(ctx context.Context, key string, start, stop int64) ([]string, error)
	Atomic(ctx context.Context, ops *Ops) error
	Ping(ctx context.Context) error
	Close() error
}

type OpKind string

const (
	OpSet  OpKind = "SET"
	OpSAdd OpKind = "SADD"
	OpSRem OpKind = "SREM"
	OpZAdd OpKind = "ZADD"
)

type Op struct {
	Kind    OpKind
	Key     string
	Value   string
	Members []string
	Score   float64
}

// Ops collects writes for Store.Atomic.
type Ops struct {
	list []Op
}

func NewOps() *Ops {
	return &Ops{}
}

func (o *Ops) Set(key, value string) *Ops {
	o.list = append(o.list, Op{Kind: OpSet, Key: key, Value: value})
	return o
}

func (o *Ops) SAdd(key string, members ...string) *Ops {
	if len(members) == 0 {
		return o
	}
	o.list = append(o.list, Op{Kind: OpSAdd, Key: key, Members: members})
	return o
}

func (o *Ops) SRem(key string, members ...string) *Ops {
	if len(members) == 0 {
		return o
	}
	o.list = append(o.list, Op{Kind: OpSRem, Key: key, Members: members})
	return o
}

func (o *Ops) ZAdd(key string, score float64, member string) *Ops {
	o.list = append(o.list, Op{Kind: OpZAdd, Key: key, Score: score, Members: []string{member}})
	return o
}

func (o *Ops) List() []Op {
	return o.list
}

func (o *Ops) Len() int {
	return len(o.list)
}

// normalizeRange converts Redis style start/stop into [from, to] over n items.
// ok is false when the range is empty.
func normalizeRange(n, start, stop int64) (from, to int64, ok bool) {
	if start < 0 {
		start = n + start
	}
	if stop < 0 {
		stop = n + stop
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if n == 0 || start > stop {
		return 0, 0, false
	}
	return start, stop, true
}
