package types

import "testing"

func TestMetadataPatch_Empty(t *testing.T) {
	t.Parallel()

	if !(MetadataPatch{}).Empty() {
		t.Error("zero patch should report empty")
	}

	personal := true
	if (MetadataPatch{Personal: &personal}).Empty() {
		t.Error("patch with a field set should not report empty")
	}
	collection := "projects"
	if (MetadataPatch{Collection: &collection}).Empty() {
		t.Error("patch with a collection should not report empty")
	}
}
