package webadmin

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	psnet "github.com/shirou/gopsutil/v4/net"
	"github.com/stretchr/testify/require"
)

func TestOpenCreatesDefaults(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "cuberite-server")

	f, err := Open(dir)
	require.NoError(t, err)
	require.FileExists(t, filepath.Join(dir, FileName))

	port, err := f.Port()
	require.NoError(t, err)
	require.Equal(t, DefaultPort, port)
	require.True(t, f.Enabled())
	require.Empty(t, f.Users())
}

func TestPortFallsBackAndSaves(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FileName)
	require.NoError(t, os.WriteFile(path, []byte("[WebAdmin]\nPorts=eighty\nEnabled=1\n"), 0o644))

	f, err := Open(dir)
	require.NoError(t, err)
	port, err := f.Port()
	require.NoError(t, err)
	require.Equal(t, DefaultPort, port)

	reopened, err := Open(dir)
	require.NoError(t, err)
	port, err = reopened.Port()
	require.NoError(t, err)
	require.Equal(t, DefaultPort, port)
}

func TestSetPort(t *testing.T) {
	f, err := Open(t.TempDir())
	require.NoError(t, err)

	require.Error(t, f.SetPort(0))
	require.Error(t, f.SetPort(70000))
	require.NoError(t, f.SetPort(9090))
	require.NoError(t, f.Save())

	reopened, err := Open(filepath.Dir(f.Path()))
	require.NoError(t, err)
	port, err := reopened.Port()
	require.NoError(t, err)
	require.Equal(t, 9090, port)
}

func TestSetLoginReplacesSection(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName),
		[]byte("[WebAdmin]\nPorts=8080\nEnabled=1\n\n[User:admin]\nPassword=admin\n"), 0o644))

	f, err := Open(dir)
	require.NoError(t, err)
	login, ok := f.Login()
	require.True(t, ok)
	require.Equal(t, User{Name: "admin", Password: "admin"}, login)

	require.NoError(t, f.SetLogin(login.Name, "steve", "diamonds"))
	require.NoError(t, f.Save())

	reopened, err := Open(dir)
	require.NoError(t, err)
	require.Equal(t, []User{{Name: "steve", Password: "diamonds"}}, reopened.Users())

	port, err := reopened.Port()
	require.NoError(t, err)
	require.Equal(t, 8080, port)
}

func TestSetLoginRejectsBadNames(t *testing.T) {
	f, err := Open(t.TempDir())
	require.NoError(t, err)
	require.Error(t, f.SetLogin("", "", "pw"))
	require.Error(t, f.SetLogin("", "a]b", "pw"))
}

func TestSetEnabled(t *testing.T) {
	f, err := Open(t.TempDir())
	require.NoError(t, err)
	f.SetEnabled(false)
	require.False(t, f.Enabled())
	f.SetEnabled(true)
	require.True(t, f.Enabled())
}

func TestURL(t *testing.T) {
	require.Equal(t, "http://192.168.1.20:8080", URL("192.168.1.20", 8080))
	require.Equal(t, "http://[fe80::1]:8080", URL("fe80::1", 8080))
}

func TestPickIPv4(t *testing.T) {
	tests := []struct {
		name   string
		ifaces psnet.InterfaceStatList
		want   string
	}{
		{name: "none", want: "127.0.0.1"},
		{
			name: "loopback only",
			ifaces: psnet.InterfaceStatList{
				{Name: "lo", Flags: []string{"up", "loopback"}, Addrs: psnet.InterfaceAddrList{{Addr: "127.0.0.1/8"}}},
			},
			want: "127.0.0.1",
		},
		{
			name: "skips down and ipv6",
			ifaces: psnet.InterfaceStatList{
				{Name: "lo", Flags: []string{"up", "loopback"}, Addrs: psnet.InterfaceAddrList{{Addr: "127.0.0.1/8"}}},
				{Name: "eth1", Flags: []string{"broadcast"}, Addrs: psnet.InterfaceAddrList{{Addr: "10.0.0.9/8"}}},
				{Name: "wlan0", Flags: []string{"up", "broadcast"}, Addrs: psnet.InterfaceAddrList{
					{Addr: "fe80::1/64"},
					{Addr: "192.168.1.20/24"},
				}},
			},
			want: "192.168.1.20",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, pickIPv4(tt.ifaces))
		})
	}
}

func TestLocalIPv4(t *testing.T) {
	ip, err := LocalIPv4(context.Background())
	if err != nil {
		t.Skipf("interfaces unavailable: %v", err)
	}
	require.NotEmpty(t, ip)
}
