// Package network implements the network builder of spec.md §4.4: a host
// bridge, a veth pair per container, IP allocation, and NAT, built on
// github.com/vishvananda/netlink the way the teacher's sibling runc
// networking code (and containerd/CNI implementations in the example
// corpus) drive netlink rtnetlink sockets rather than shelling out to
// `ip`. The NAT rule is the one exception: nat.go runs `iptables`.
package network

import (
	"fmt"
	"net"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"

	"github.com/mini-docker/mini-docker/internal/ioerr"
	"github.com/mini-docker/mini-docker/internal/runtime"
	"github.com/mini-docker/mini-docker/internal/sysnr"
)

const (
	BridgeName = "mini-docker0"
	BridgeCIDR = "10.0.0.1/24"
	subnet     = "10.0.0.0/24"
)

// Builder creates bridge-mode networking for containers, or a loopback-only
// namespace in rootless/none mode.
type Builder struct {
	rt  *runtime.Runtime
	log *logrus.Entry
}

func New(rt *runtime.Runtime) *Builder {
	return &Builder{rt: rt, log: rt.Log.WithField("component", "network")}
}

// EnsureBridge creates mini-docker0 and its NAT rule if they do not exist.
// Callers must hold the network/.lock flock (spec.md §5) before calling.
func (b *Builder) EnsureBridge() error {
	if !b.rt.Caps.CanCreateVeth {
		return nil
	}

	if _, err := netlink.LinkByName(BridgeName); err == nil {
		return nil
	}

	br := &netlink.Bridge{LinkAttrs: netlink.LinkAttrs{Name: BridgeName}}
	if err := netlink.LinkAdd(br); err != nil {
		return ioerr.Wrap(ioerr.KindNetBridgeUnavailable, err, "creating bridge")
	}

	addr, err := netlink.ParseAddr(BridgeCIDR)
	if err != nil {
		return err
	}
	if err := netlink.AddrAdd(br, addr); err != nil {
		return ioerr.Wrap(ioerr.KindNetBridgeUnavailable, err, "assigning bridge address")
	}
	if err := netlink.LinkSetUp(br); err != nil {
		return ioerr.Wrap(ioerr.KindNetBridgeUnavailable, err, "bringing bridge up")
	}

	if err := installMasquerade(); err != nil {
		b.log.WithError(err).Warn("installing MASQUERADE rule failed")
	}

	return nil
}

// RemoveBridge tears down mini-docker0 and its NAT rule; called from
// `cleanup --all` once reference counting shows no container uses it.
func (b *Builder) RemoveBridge() error {
	link, err := netlink.LinkByName(BridgeName)
	if err != nil {
		return nil
	}
	removeMasquerade()
	return netlink.LinkDel(link)
}

// Veth is the per-container host-side network device pair.
type Veth struct {
	HostName string
	IP       net.IP
}

// CreateVeth creates a veth pair, attaches the host end to the bridge, and
// moves the peer into the target network namespace's pid.
func (b *Builder) CreateVeth(containerPid int, ip net.IP, hostSuffix string) (*Veth, error) {
	hostName := fmt.Sprintf("veth%s", hostSuffix)
	peerName := "eth0"

	la := netlink.NewLinkAttrs()
	la.Name = hostName
	veth := &netlink.Veth{LinkAttrs: la, PeerName: peerName}
	if err := netlink.LinkAdd(veth); err != nil {
		return nil, ioerr.Wrap(ioerr.KindNetBridgeUnavailable, err, "creating veth pair")
	}

	br, err := netlink.LinkByName(BridgeName)
	if err != nil {
		return nil, ioerr.Wrap(ioerr.KindNetBridgeUnavailable, err, "bridge missing")
	}
	hostLink, err := netlink.LinkByName(hostName)
	if err != nil {
		return nil, err
	}
	if err := netlink.LinkSetMaster(hostLink, br.(*netlink.Bridge)); err != nil {
		return nil, err
	}
	if err := netlink.LinkSetUp(hostLink); err != nil {
		return nil, err
	}

	peerLink, err := netlink.LinkByName(peerName)
	if err != nil {
		return nil, err
	}
	if err := netlink.LinkSetNsPid(peerLink, containerPid); err != nil {
		return nil, ioerr.Wrap(ioerr.KindNetBridgeUnavailable, err, "moving veth peer into container netns")
	}

	return &Veth{HostName: hostName, IP: ip}, nil
}

// ConfigureInNamespace runs inside the container's network namespace
// (after setns) to bring lo and eth0 up, assign the IP, and set the
// default route via the bridge address.
func ConfigureInNamespace(ip net.IP) error {
	lo, err := netlink.LinkByName("lo")
	if err != nil {
		return err
	}
	if err := netlink.LinkSetUp(lo); err != nil {
		return err
	}

	eth0, err := netlink.LinkByName("eth0")
	if err != nil {
		return err
	}
	addr := &netlink.Addr{IPNet: &net.IPNet{IP: ip, Mask: net.CIDRMask(24, 32)}}
	if err := netlink.AddrAdd(eth0, addr); err != nil {
		return err
	}
	if err := netlink.LinkSetUp(eth0); err != nil {
		return err
	}

	gw := net.ParseIP("10.0.0.1")
	route := &netlink.Route{LinkIndex: eth0.Attrs().Index, Gw: gw}
	return netlink.RouteAdd(route)
}

// ConfigureLoopbackOnly brings up lo only, for none/rootless mode.
func ConfigureLoopbackOnly() error {
	lo, err := netlink.LinkByName("lo")
	if err != nil {
		return err
	}
	return netlink.LinkSetUp(lo)
}

// RemoveVeth deletes the host side; the kernel removes the peer
// automatically when the container's netns dies.
func (b *Builder) RemoveVeth(hostName string) error {
	link, err := netlink.LinkByName(hostName)
	if err != nil {
		return nil
	}
	return netlink.LinkDel(link)
}

// JoinPodNetns opens the pod's pinned net namespace handle and setns(2)s
// into it, per spec.md §4.4 pod mode.
func JoinPodNetns(path string) error {
	fd, err := os.Open(path)
	if err != nil {
		return ioerr.Wrap(ioerr.KindResourceKernel, err, "opening pod netns handle")
	}
	defer fd.Close()
	return sysnr.Setns(int(fd.Fd()), unix.CLONE_NEWNET)
}
