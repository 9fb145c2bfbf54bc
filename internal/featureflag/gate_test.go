package featureflag

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashBucketingIsStable(t *testing.T) {
	g := New(Config{Strategy: StrategyHash, Percentage: 37})
	for i := 0; i < 50; i++ {
		id := fmt.Sprintf("+9198765%05d", i)
		first := g.ShouldUseNewPath(id, "whatsapp")
		for j := 0; j < 5; j++ {
			assert.Equal(t, first, g.ShouldUseNewPath(id, "whatsapp"), id)
		}
	}
}

func TestHashBucketingIsRoughlyUniform(t *testing.T) {
	counts := make([]int, 10)
	const n = 20000
	for i := 0; i < n; i++ {
		counts[Bucket(fmt.Sprintf("telegram:%d", i))/10]++
	}
	for i, c := range counts {
		// Each decile should hold about 10% of identifiers.
		assert.InDelta(t, n/10, c, n/50, "decile %d", i)
	}
}

func TestPercentageBounds(t *testing.T) {
	all := New(Config{Strategy: StrategyHash, Percentage: 100})
	none := New(Config{Strategy: StrategyHash, Percentage: 0})
	for i := 0; i < 100; i++ {
		id := fmt.Sprintf("web:%d", i)
		assert.True(t, all.ShouldUseNewPath(id, "web"))
		assert.False(t, none.ShouldUseNewPath(id, "web"))
	}
}

func TestKillSwitchWins(t *testing.T) {
	for _, s := range []string{StrategyHash, StrategyRandom, StrategyChannel} {
		g := New(Config{Strategy: s, Percentage: 100, KillSwitch: true})
		assert.False(t, g.ShouldUseNewPath("+14155550100", "voice"), s)
	}
}

func TestRandomStrategy(t *testing.T) {
	g := New(Config{Strategy: StrategyRandom, Percentage: 50})
	g.intn = func(int) int { return 49 }
	assert.True(t, g.ShouldUseNewPath("x", "web"))
	g.intn = func(int) int { return 50 }
	assert.False(t, g.ShouldUseNewPath("x", "web"))
}

func TestChannelStrategy(t *testing.T) {
	g := New(Config{
		Strategy:           StrategyChannel,
		Percentage:         0,
		ChannelPercentages: map[string]int{"telegram": 100},
	})
	assert.True(t, g.ShouldUseNewPath("telegram:1", "telegram"))
	assert.False(t, g.ShouldUseNewPath("discord:1", "discord"), "unlisted channel uses base percentage")
}

func TestUpdateSwapsSnapshot(t *testing.T) {
	g := New(Config{Percentage: 100})
	assert.Equal(t, StrategyHash, g.Snapshot().Strategy)
	g.Update(Config{Percentage: 100, KillSwitch: true})
	assert.False(t, g.ShouldUseNewPath("web:1", "web"))
}

func TestOnUpdateNotifies(t *testing.T) {
	g := New(Config{Percentage: 10})
	var got []Config
	g.OnUpdate(func(c Config) { got = append(got, c) })

	g.Update(Config{Strategy: " Random ", Percentage: 40})
	require.Len(t, got, 1)
	assert.Equal(t, StrategyRandom, got[0].Strategy)
	assert.Equal(t, 40, got[0].Percentage)
}

func TestWatchReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flags.json5")
	require.NoError(t, os.WriteFile(path, []byte(`{percentage: 100}`), 0600))

	g := New(Config{Percentage: 0})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, Watch(ctx, path, g))
	assert.Equal(t, 100, g.Snapshot().Percentage, "initial load")

	require.NoError(t, os.WriteFile(path, []byte(`{percentage: 100, kill_switch: true}`), 0600))
	assert.Eventually(t, func() bool { return g.Snapshot().KillSwitch }, 3*time.Second, 20*time.Millisecond)
}
