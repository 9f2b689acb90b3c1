package discovery

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bloomd/pkg/config"
)

func TestNewRequiresServers(t *testing.T) {
	_, err := New(config.DiscoveryConfig{RootPath: "/bloomd"})
	assert.Error(t, err)
}

func TestNodesPath(t *testing.T) {
	for _, root := range []string{"/bloomd", "bloomd", "/bloomd/"} {
		m := &Membership{rootPath: root}
		assert.Equal(t, "/bloomd/nodes", m.nodesPath(), root)
	}
}

func TestRegisterTimesOutWithoutQuorum(t *testing.T) {
	m, err := New(config.DiscoveryConfig{
		ZKServers:     []string{"127.0.0.1:1"},
		RootPath:      "/bloomd",
		AdvertiseAddr: "127.0.0.1:8673",
	})
	require.NoError(t, err)
	defer m.Close()
	m.connectTimeout = 300 * time.Millisecond

	start := time.Now()
	err = m.Register(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
}
