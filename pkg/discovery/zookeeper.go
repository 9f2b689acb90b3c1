package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/go-zookeeper/zk"

	"bloomd/pkg/config"
)

const (
	sessionTimeout = 5 * time.Second
	connectTimeout = 10 * time.Second
	watchBackoff   = 2 * time.Second
)

// Membership announces this server under <root>/nodes as an ephemeral
// znode, so it disappears with the session.
type Membership struct {
	conn           *zk.Conn
	rootPath       string
	local          string
	connectTimeout time.Duration
}

// zkLogger routes client library logs into slog.
type zkLogger struct{}

func (zkLogger) Printf(format string, args ...interface{}) {
	slog.Debug(fmt.Sprintf(format, args...), "component", "zk")
}

func New(cfg config.DiscoveryConfig) (*Membership, error) {
	if len(cfg.ZKServers) == 0 {
		return nil, errors.New("discovery: no zookeeper servers configured")
	}
	conn, _, err := zk.Connect(cfg.ZKServers, sessionTimeout, zk.WithLogger(zkLogger{}))
	if err != nil {
		return nil, fmt.Errorf("zk connect: %w", err)
	}
	return &Membership{
		conn:           conn,
		rootPath:       cfg.RootPath,
		local:          cfg.AdvertiseAddr,
		connectTimeout: connectTimeout,
	}, nil
}

func (m *Membership) Close() error {
	m.conn.Close()
	return nil
}

func (m *Membership) nodesPath() string {
	return path.Join("/", m.rootPath, "nodes")
}

func (m *Membership) ensurePath(p string) error {
	cur := ""
	for _, part := range strings.Split(p, "/") {
		if part == "" {
			continue
		}
		cur = cur + "/" + part
		exists, _, err := m.conn.Exists(cur)
		if err != nil {
			return err
		}
		if !exists {
			_, err = m.conn.Create(cur, nil, 0, zk.WorldACL(zk.PermAll))
			if err != nil && !errors.Is(err, zk.ErrNodeExists) {
				return err
			}
		}
	}
	return nil
}

// Register creates the ephemeral node for this server.
func (m *Membership) Register(ctx context.Context) error {
	if err := m.waitConnected(ctx); err != nil {
		return err
	}
	if err := m.ensurePath(m.nodesPath()); err != nil {
		return fmt.Errorf("ensure nodes path: %w", err)
	}

	nodePath := m.nodesPath() + "/" + m.local
	_, err := m.conn.Create(nodePath, nil, zk.FlagEphemeral, zk.WorldACL(zk.PermAll))
	if err != nil && !errors.Is(err, zk.ErrNodeExists) {
		return fmt.Errorf("create ephemeral node: %w", err)
	}

	slog.Info("registered in zookeeper", "path", nodePath)
	return nil
}

// Watch logs membership changes until ctx is done.
func (m *Membership) Watch(ctx context.Context) {
	for {
		children, _, ch, err := m.conn.ChildrenW(m.nodesPath())
		if err != nil {
			slog.Warn("zk watch failed", "error", err)
			select {
			case <-time.After(watchBackoff):
				continue
			case <-ctx.Done():
				return
			}
		}
		slog.Info("bloomd nodes", "nodes", children)

		select {
		case ev := <-ch:
			slog.Debug("zk event", "type", ev.Type.String(), "path", ev.Path)
		case <-ctx.Done():
			return
		}
	}
}

func (m *Membership) waitConnected(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, m.connectTimeout)
	defer cancel()

	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for {
		st := m.conn.State()
		if st == zk.StateConnected || st == zk.StateHasSession {
			return nil
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return fmt.Errorf("zk: not connected, state=%v: %w", st, ctx.Err())
		}
	}
}
