// Package discovery advertises hosted sessions on the LAN over mDNS and lets clients
// find them.
package discovery

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"

	"github.com/grandcat/zeroconf"
	"github.com/pkg/errors"

	"github.com/zeusync/zombiebox/internal/core/config"
	"github.com/zeusync/zombiebox/internal/core/observability/log"
)

// Domain is the mDNS domain browsed and registered in.
const Domain = "local."

// ServiceFor returns the service type a transport is advertised under.
func ServiceFor(transportName string) string {
	if transportName == config.TransportQUIC {
		return "_zombiebox._udp"
	}
	return "_zombiebox._tcp"
}

// Session is one host found on the network.
type Session struct {
	Instance  string
	Host      string
	Port      int
	Addrs     []net.IP
	Transport string
	Text      []string
}

// Addr is a dialable host:port, preferring the first IPv4 address.
func (s Session) Addr() string {
	host := strings.TrimSuffix(s.Host, ".")
	if len(s.Addrs) > 0 {
		host = s.Addrs[0].String()
	}
	return net.JoinHostPort(host, strconv.Itoa(s.Port))
}

// Advertiser keeps a session registered until Shutdown.
type Advertiser struct {
	server *zeroconf.Server
	once   sync.Once
}

// Advertise registers a session served on port.
func Advertise(instance, transportName string, port int, text []string, logger log.Log) (*Advertiser, error) {
	txt := append([]string{"transport=" + transportName}, text...)
	server, err := zeroconf.Register(instance, ServiceFor(transportName), Domain, port, txt, nil)
	if err != nil {
		return nil, errors.Wrap(err, "register mdns service")
	}
	log.OrNop(logger).Info("advertising session",
		log.String("instance", instance),
		log.String("service", ServiceFor(transportName)),
		log.Int("port", port),
	)
	return &Advertiser{server: server}, nil
}

func (a *Advertiser) Shutdown() {
	a.once.Do(a.server.Shutdown)
}

// Browse collects sessions of the given transport until ctx is done.
func Browse(ctx context.Context, transportName string) ([]Session, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, errors.Wrap(err, "mdns resolver")
	}
	entries := make(chan *zeroconf.ServiceEntry)
	var (
		mu    sync.Mutex
		found []Session
	)
	go func() {
		seen := make(map[string]bool)
		for entry := range entries {
			s := fromEntry(entry, transportName)
			if seen[s.Instance] {
				continue
			}
			seen[s.Instance] = true
			mu.Lock()
			found = append(found, s)
			mu.Unlock()
		}
	}()
	if err := resolver.Browse(ctx, ServiceFor(transportName), Domain, entries); err != nil {
		return nil, errors.Wrap(err, "mdns browse")
	}
	<-ctx.Done()
	mu.Lock()
	defer mu.Unlock()
	return append([]Session(nil), found...), nil
}

func fromEntry(e *zeroconf.ServiceEntry, transportName string) Session {
	return Session{
		Instance:  e.Instance,
		Host:      e.HostName,
		Port:      e.Port,
		Addrs:     append([]net.IP(nil), e.AddrIPv4...),
		Transport: transportName,
		Text:      append([]string(nil), e.Text...),
	}
}

// InstanceName builds a readable instance label for a host.
func InstanceName(hostname string, port int) string {
	return fmt.Sprintf("zombiebox-%s-%d", hostname, port)
}
