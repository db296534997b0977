package chrome

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArgsCarryProfileAndProxy(t *testing.T) {
	args := Args(LaunchOptions{
		ProfileDir: "/tmp/profiles/dash-1",
		Proxy:      "http://proxy.internal:3128",
		Headless:   true,
		Stealth:    true,
		Width:      1280,
		Height:     720,
	}, 9300)

	assert.Contains(t, args, "--remote-debugging-port=9300")
	assert.Contains(t, args, "--user-data-dir=/tmp/profiles/dash-1")
	assert.Contains(t, args, "--proxy-server=http://proxy.internal:3128")
	assert.Contains(t, args, "--window-size=1280,720")
	assert.Contains(t, args, "--headless=new")
	assert.Contains(t, args, "--disable-blink-features=AutomationControlled")
	assert.NotContains(t, args, "--enable-automation")
	assert.Equal(t, "about:blank", args[len(args)-1])
}

func TestArgsWithoutStealth(t *testing.T) {
	args := Args(LaunchOptions{ProfileDir: "/tmp/p"}, 9222)
	assert.Contains(t, args, "--enable-automation")
	assert.NotContains(t, args, "--headless=new")
	for _, a := range args {
		assert.NotContains(t, a, "--proxy-server")
	}
}

func TestFindAvailablePortSkipsBusyPorts(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	busy := l.Addr().(*net.TCPAddr).Port

	port := findAvailablePort(busy)
	assert.NotZero(t, port)
	assert.NotEqual(t, busy, port)
	assert.Greater(t, port, busy)
}

func TestKillIgnoresMissingPid(t *testing.T) {
	assert.NoError(t, Kill(0))
}
