package catalog

import "testing"

func TestDefaultLookup(t *testing.T) {
	c := Default()

	g, ok := c.ByID("what-is-a-prop-firm")
	if !ok {
		t.Fatal("known guide not found")
	}
	if g.Title == "" || g.Href == "" || g.Group == "" {
		t.Errorf("incomplete metadata: %+v", g)
	}

	if _, ok := c.ByID("no-such-guide"); ok {
		t.Error("unknown guide resolved")
	}
}

func TestByGroupSorted(t *testing.T) {
	c := Default()

	guides := c.ByGroup("Beginner Basics")
	if len(guides) == 0 {
		t.Fatal("no guides in group")
	}
	for i := 1; i < len(guides); i++ {
		if guides[i-1].ID >= guides[i].ID {
			t.Errorf("not sorted at %d: %q >= %q", i, guides[i-1].ID, guides[i].ID)
		}
		if guides[i].Group != "Beginner Basics" {
			t.Errorf("wrong group: %+v", guides[i])
		}
	}
}

func TestAllCoversEveryGuide(t *testing.T) {
	c := Default()

	all := c.All()
	if len(all) != len(defaultGuides) {
		t.Fatalf("len = %d, want %d", len(all), len(defaultGuides))
	}
	for _, g := range all {
		if _, ok := c.ByID(g.ID); !ok {
			t.Errorf("guide %q not resolvable", g.ID)
		}
	}
}
