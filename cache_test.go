package twinsync

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestCache(t *testing.T) {
	var c Cache
	if c.HasEntity("a") || c.HasComponentType("a") {
		t.Fatal("zero Cache reports known ids")
	}
	c.MarkEntity("b")
	c.MarkEntity("a")
	c.MarkEntity("a")
	c.MarkComponentType("ct")

	if !c.HasEntity("a") || c.HasEntity("ct") {
		t.Error("HasEntity() mixes up entities and component types")
	}
	if !c.HasComponentType("ct") || c.HasComponentType("a") {
		t.Error("HasComponentType() mixes up entities and component types")
	}
	if diff := cmp.Diff([]string{"a", "b"}, c.Entities()); diff != "" {
		t.Errorf("Entities() mismatch (-want +got):\n%v", diff)
	}
	if diff := cmp.Diff([]string{"ct"}, c.ComponentTypes()); diff != "" {
		t.Errorf("ComponentTypes() mismatch (-want +got):\n%v", diff)
	}
}
