package security

import (
	"testing"

	"github.com/moby/sys/capability"
)

func TestDropSetExcludesAllowList(t *testing.T) {
	dropped := DropSet()
	for _, c := range AllowList {
		if dropped.Contains(c) {
			t.Errorf("DropSet contains %v, which is on AllowList", c)
		}
	}
}

func TestDropSetIncludesNonAllowedCapability(t *testing.T) {
	dropped := DropSet()
	if !dropped.Contains(capability.CAP_SYS_ADMIN) {
		t.Error("DropSet should contain CAP_SYS_ADMIN, which is not on AllowList")
	}
}

func TestBoundingSetMaskMarksOnlyAllowList(t *testing.T) {
	mask := boundingSetMask(AllowList)
	for _, c := range AllowList {
		if !mask.Test(uint(c)) {
			t.Errorf("mask does not mark allow-listed %v", c)
		}
	}
	if mask.Test(uint(capability.CAP_SYS_ADMIN)) {
		t.Error("mask should not mark CAP_SYS_ADMIN")
	}
}
