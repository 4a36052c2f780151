package store

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"

	"github.com/mini-docker/mini-docker/internal/ioerr"
)

// leaseDoc mirrors network/leases.json: ip -> container_id.
type leaseDoc map[string]string

func (s *Store) leasesPath() string { return filepath.Join(s.NetworkDir(), "leases.json") }

func (s *Store) loadLeases() (leaseDoc, error) {
	data, err := os.ReadFile(s.leasesPath())
	if os.IsNotExist(err) {
		return leaseDoc{}, nil
	}
	if err != nil {
		return nil, err
	}
	var d leaseDoc
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, err
	}
	return d, nil
}

func (s *Store) saveLeases(d leaseDoc) error {
	if err := os.MkdirAll(s.NetworkDir(), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return err
	}
	return writeAtomic(s.leasesPath(), data)
}

// AllocateIP assigns the first free address in 10.0.0.2..10.0.0.254 to
// containerID, per spec.md §4.4. Callers must hold LockNetwork.
func (s *Store) AllocateIP(containerID string) (net.IP, error) {
	leases, err := s.loadLeases()
	if err != nil {
		return nil, err
	}
	for i := 2; i <= 254; i++ {
		ip := fmt.Sprintf("10.0.0.%d", i)
		if _, taken := leases[ip]; !taken {
			leases[ip] = containerID
			if err := s.saveLeases(leases); err != nil {
				return nil, err
			}
			return net.ParseIP(ip), nil
		}
	}
	return nil, ioerr.New(ioerr.KindNetBridgeUnavailable, "no free IP addresses in 10.0.0.0/24")
}

// ReleaseIP frees containerID's lease, if any. Callers must hold
// LockNetwork.
func (s *Store) ReleaseIP(containerID string) error {
	leases, err := s.loadLeases()
	if err != nil {
		return err
	}
	changed := false
	for ip, id := range leases {
		if id == containerID {
			delete(leases, ip)
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return s.saveLeases(leases)
}

// LeaseCount reports how many IPs are currently leased, used by `cleanup
// --all` to decide whether the bridge/NAT are still referenced.
func (s *Store) LeaseCount() (int, error) {
	leases, err := s.loadLeases()
	if err != nil {
		return 0, err
	}
	return len(leases), nil
}
