// Package security implements spec.md §4.5: capability dropping,
// NO_NEW_PRIVS, and the seccomp-BPF allow-list filter. Grounded on the
// teacher's cfgCapabilities in libsysbox/syscont/spec.go (which computes a
// Bounding/Effective/Inheritable/Permitted/Ambient set from a caps list)
// and on github.com/moby/sys/capability for the actual capset(2) plumbing
// plus prctl bounding-set drops, the library lazydocker's go.mod pulls in
// for the same purpose in its podman/docker backends.
package security

import (
	mapset "github.com/deckarep/golang-set"
	"github.com/moby/sys/capability"
	"github.com/willf/bitset"

	"github.com/mini-docker/mini-docker/internal/ioerr"
	"github.com/mini-docker/mini-docker/internal/sysnr"
)

// AllowList is the minimal capability set spec.md §4.5 permits to survive
// past the security layer.
var AllowList = []capability.Cap{
	capability.CAP_CHOWN,
	capability.CAP_SETUID,
	capability.CAP_SETGID,
	capability.CAP_KILL,
}

// allCaps is every capability number from 0 through capability.CAP_LAST_CAP,
// used to compute the bounding-set bitmask to drop.
func allCaps() []capability.Cap {
	last := capability.CAP_LAST_CAP
	caps := make([]capability.Cap, 0, int(last)+1)
	for c := capability.Cap(0); c <= last; c++ {
		caps = append(caps, c)
	}
	return caps
}

// boundingSetMask builds a bitset marking which capability numbers are on
// the allow list, so DropAll can iterate once and ask O(1) "keep this one?"
// instead of a linear set scan per capability -- the same shape as the
// teacher's mapset-based allow/deny-set diffing in cfgSeccomp.
func boundingSetMask(allow []capability.Cap) *bitset.BitSet {
	bs := bitset.New(uint(capability.CAP_LAST_CAP) + 1)
	for _, c := range allow {
		bs.Set(uint(c))
	}
	return bs
}

// DropSet returns every capability not on AllowList, as a mapset so
// callers can log/diff it the way the teacher's cfgSeccomp diffs
// allow/deny syscall sets.
func DropSet() mapset.Set {
	allow := mapset.NewSet()
	for _, c := range AllowList {
		allow.Add(c)
	}
	all := mapset.NewSet()
	for _, c := range allCaps() {
		all.Add(c)
	}
	return all.Difference(allow)
}

// DropAll drops every capability not on AllowList from the bounding set
// via prctl(PR_CAPBSET_DROP) and sets effective/permitted/inheritable to
// exactly AllowList, ambient empty, matching the ordering requirement of
// spec.md §4.5 (after mounts/cgroup writes, before seccomp).
func DropAll() error {
	mask := boundingSetMask(AllowList)
	for _, c := range allCaps() {
		if mask.Test(uint(c)) {
			continue
		}
		if err := sysnr.CapBsetDrop(uintptr(c)); err != nil {
			return ioerr.Wrap(ioerr.KindResourceKernel, err, "dropping bounding capability")
		}
	}

	caps, err := capability.NewPid2(0)
	if err != nil {
		return ioerr.Wrap(ioerr.KindResourceKernel, err, "loading process capabilities")
	}
	caps.Clear(capability.CAPS | capability.BOUNDING | capability.AMBIENT)
	caps.Set(capability.EFFECTIVE|capability.PERMITTED|capability.INHERITABLE, AllowList...)
	if err := caps.Apply(capability.CAPS); err != nil {
		return ioerr.Wrap(ioerr.KindResourceKernel, err, "applying capability set")
	}

	return nil
}

// SetNoNewPrivs sets PR_SET_NO_NEW_PRIVS, which must happen before the
// seccomp filter is installed and before execve, per spec.md §4.5.
func SetNoNewPrivs() error {
	return sysnr.SetNoNewPrivs()
}
