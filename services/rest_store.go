package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// RESTStore talks to an Upstash-compatible Redis REST endpoint. Every command
// is a POST of a JSON array, batches go to /multi-exec as a transaction.
type RESTStore struct {
	client  *http.Client
	baseURL string
	token   string
}

type restReply struct {
	Result json.RawMessage `json:"result"`
	Error  string          `json:"error"`
}

func NewRESTStore(baseURL, token string) *RESTStore {
	return &RESTStore{
		client:  &http.Client{Timeout: 10 * time.Second},
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
	}
}

func (s *RESTStore) post(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var reply restReply
		if json.NewDecoder(resp.Body).Decode(&reply) == nil && reply.Error != "" {
			return fmt.Errorf("kv rest returned status %d: %s", resp.StatusCode, reply.Error)
		}
		return fmt.Errorf("kv rest returned status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (s *RESTStore) command(ctx context.Context, args ...string) (json.RawMessage, error) {
	var reply restReply
	if err := s.post(ctx, "/", args, &reply); err != nil {
		return nil, err
	}
	if reply.Error != "" {
		return nil, fmt.Errorf("kv %s: %s", args[0], reply.Error)
	}
	return reply.Result, nil
}

func (s *RESTStore) Get(ctx context.Context, key string) (string, error) {
	raw, err := s.command(ctx, "GET", key)
	if err != nil {
		return "", err
	}
	if len(raw) == 0 || string(raw) == "null" {
		return "", ErrNil
	}
	var val string
	if err := json.Unmarshal(raw, &val); err != nil {
		return "", fmt.Errorf("kv GET %s: %w", key, err)
	}
	return val, nil
}

func (s *RESTStore) Set(ctx context.Context, key, value string) error {
	_, err := s.command(ctx, "SET", key, value)
	return err
}

func (s *RESTStore) SAdd(ctx context.Context, key string, members ...string) error {
	_, err := s.command(ctx, append([]string{"SADD", key}, members...)...)
	return err
}

func (s *RESTStore) SRem(ctx context.Context, key string, members ...string) error {
	_, err := s.command(ctx, append([]string{"SREM", key}, members...)...)
	return err
}

func (s *RESTStore) SIsMember(ctx context.Context, key, member string) (bool, error) {
	raw, err := s.command(ctx, "SISMEMBER", key, member)
	if err != nil {
		return false, err
	}
	var n int64
	if err := json.Unmarshal(raw, &n); err != nil {
		return false, fmt.Errorf("kv SISMEMBER %s: %w", key, err)
	}
	return n == 1, nil
}

func (s *RESTStore) SMembers(ctx context.Context, key string) ([]string, error) {
	return s.stringList(ctx, "SMEMBERS", key)
}

func (s *RESTStore) ZAdd(ctx context.Context, key string, score float64, member string) error {
	_, err := s.command(ctx, "ZADD", key, formatScore(score), member)
	return err
}

func (s *RESTStore) ZRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	return s.stringList(ctx, "ZRANGE", key, strconv.FormatInt(start, 10), strconv.FormatInt(stop, 10))
}

func (s *RESTStore) stringList(ctx context.Context, args ...string) ([]string, error) {
	raw, err := s.command(ctx, args...)
	if err != nil {
		return nil, err
	}
	var out []string
	if len(raw) == 0 || string(raw) == "null" {
		return []string{}, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("kv %s %s: %w", args[0], args[1], err)
	}
	return out, nil
}

func (s *RESTStore) Atomic(ctx context.Context, ops *Ops) error {
	if ops.Len() == 0 {
		return nil
	}
	cmds := make([][]string, 0, ops.Len())
	for _, op := range ops.List() {
		switch op.Kind {
		case OpSet:
			cmds = append(cmds, []string{"SET", op.Key, op.Value})
		case OpSAdd, OpSRem:
			cmds = append(cmds, append([]string{string(op.Kind), op.Key}, op.Members...))
		case OpZAdd:
			cmds = append(cmds, []string{"ZADD", op.Key, formatScore(op.Score), op.Members[0]})
		default:
			return fmt.Errorf("unsupported op %s", op.Kind)
		}
	}

	var replies []restReply
	if err := s.post(ctx, "/multi-exec", cmds, &replies); err != nil {
		return err
	}
	for i, reply := range replies {
		if reply.Error != "" {
			return fmt.Errorf("kv multi-exec command %d (%s): %s", i, cmds[i][0], reply.Error)
		}
	}
	return nil
}

func (s *RESTStore) Ping(ctx context.Context) error {
	_, err := s.command(ctx, "PING")
	return err
}

func (s *RESTStore) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

func formatScore(score float64) string {
	return strconv.FormatFloat(score, 'f', -1, 64)
}
