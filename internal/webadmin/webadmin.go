// Package webadmin edits the server's webadmin.ini and builds the address
// the web interface is reachable on.
package webadmin

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	psnet "github.com/shirou/gopsutil/v4/net"
	"gopkg.in/ini.v1"
)

const (
	FileName    = "webadmin.ini"
	DefaultPort = 8080

	sectionWebAdmin = "WebAdmin"
	keyPorts        = "Ports"
	keyEnabled      = "Enabled"
	keyPassword     = "Password"
	userPrefix      = "User:"

	loopbackIPv4 = "127.0.0.1"
)

// User is one webadmin login.
type User struct {
	Name     string
	Password string
}

// File is an open webadmin.ini.
type File struct {
	path string
	cfg  *ini.File
}

// Open loads webadmin.ini from serverDir, creating it with the web
// interface enabled on DefaultPort when it does not exist.
func Open(serverDir string) (*File, error) {
	path := filepath.Join(serverDir, FileName)

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		f := &File{path: path, cfg: ini.Empty()}
		sec := f.cfg.Section(sectionWebAdmin)
		sec.Key(keyPorts).SetValue(strconv.Itoa(DefaultPort))
		sec.Key(keyEnabled).SetValue("1")
		if err := os.MkdirAll(serverDir, 0o755); err != nil {
			return nil, fmt.Errorf("create server directory: %w", err)
		}
		if err := f.Save(); err != nil {
			return nil, err
		}
		return f, nil
	} else if err != nil {
		return nil, fmt.Errorf("stat %s: %w", FileName, err)
	}

	cfg, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", FileName, err)
	}
	return &File{path: path, cfg: cfg}, nil
}

// Path returns the location of the file.
func (f *File) Path() string {
	return f.path
}

// Save writes the file back to disk.
func (f *File) Save() error {
	if err := f.cfg.SaveTo(f.path); err != nil {
		return fmt.Errorf("save %s: %w", FileName, err)
	}
	return nil
}

// Port returns the configured port. A value that is not a number is
// replaced with DefaultPort and the file is saved.
func (f *File) Port() (int, error) {
	key := f.cfg.Section(sectionWebAdmin).Key(keyPorts)
	port, err := key.Int()
	if err == nil {
		return port, nil
	}
	key.SetValue(strconv.Itoa(DefaultPort))
	if err := f.Save(); err != nil {
		return 0, err
	}
	return DefaultPort, nil
}

// SetPort changes the port. Call Save to persist it.
func (f *File) SetPort(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("port %d out of range", port)
	}
	f.cfg.Section(sectionWebAdmin).Key(keyPorts).SetValue(strconv.Itoa(port))
	return nil
}

func (f *File) Enabled() bool {
	return f.cfg.Section(sectionWebAdmin).Key(keyEnabled).MustInt(0) != 0
}

func (f *File) SetEnabled(enabled bool) {
	v := "0"
	if enabled {
		v = "1"
	}
	f.cfg.Section(sectionWebAdmin).Key(keyEnabled).SetValue(v)
}

// Users returns the logins in file order.
func (f *File) Users() []User {
	var users []User
	for _, sec := range f.cfg.Sections() {
		name, ok := strings.CutPrefix(sec.Name(), userPrefix)
		if !ok {
			continue
		}
		users = append(users, User{Name: name, Password: sec.Key(keyPassword).String()})
	}
	return users
}

// Login returns the last login in the file, which is the one SetLogin edits.
func (f *File) Login() (User, bool) {
	users := f.Users()
	if len(users) == 0 {
		return User{}, false
	}
	return users[len(users)-1], true
}

// SetLogin replaces the login oldName with name and password. An empty
// oldName only adds. Call Save to persist it.
func (f *File) SetLogin(oldName, name, password string) error {
	if name == "" {
		return errors.New("username must not be empty")
	}
	if strings.ContainsAny(name, "[]\n") {
		return fmt.Errorf("invalid username %q", name)
	}
	if oldName != "" {
		f.cfg.DeleteSection(userPrefix + oldName)
	}
	f.cfg.Section(userPrefix + name).Key(keyPassword).SetValue(password)
	return nil
}

// URL returns the web interface address for ip and port.
func URL(ip string, port int) string {
	return "http://" + net.JoinHostPort(ip, strconv.Itoa(port))
}

// LocalIPv4 returns the first non-loopback IPv4 address of an interface
// that is up, or 127.0.0.1 when there is none.
func LocalIPv4(ctx context.Context) (string, error) {
	ifaces, err := psnet.InterfacesWithContext(ctx)
	if err != nil {
		return loopbackIPv4, fmt.Errorf("list interfaces: %w", err)
	}
	return pickIPv4(ifaces), nil
}

func pickIPv4(ifaces psnet.InterfaceStatList) string {
	for _, iface := range ifaces {
		if !hasFlag(iface.Flags, "up") || hasFlag(iface.Flags, "loopback") {
			continue
		}
		for _, addr := range iface.Addrs {
			ip, _, err := net.ParseCIDR(addr.Addr)
			if err != nil {
				ip = net.ParseIP(addr.Addr)
			}
			if ip == nil || ip.IsLoopback() {
				continue
			}
			if v4 := ip.To4(); v4 != nil {
				return v4.String()
			}
		}
	}
	return loopbackIPv4
}

func hasFlag(flags []string, want string) bool {
	for _, f := range flags {
		if strings.EqualFold(f, want) {
			return true
		}
	}
	return false
}
