package core

import (
	"bytes"
	"strings"
	"testing"
)

func TestReadLabels(t *testing.T) {
	input := strings.Join([]string{
		"variant_id,name,value,corrected",
		"v1,fitness,1.25,false",
		"v1,expression,0.8,true",
		"v2,fitness,-3.5,",
	}, "\n")

	labels, err := ReadLabels(strings.NewReader(input))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(labels) != 3 {
		t.Fatalf("parsed %d labels, want 3", len(labels))
	}
	if labels[0].VariantID != "v1" || labels[0].Name != "fitness" || labels[0].Value != 1.25 {
		t.Fatalf("first label = %+v", labels[0])
	}
	if !labels[1].Corrected {
		t.Fatalf("corrected flag lost: %+v", labels[1])
	}
	if labels[2].Corrected {
		t.Fatalf("blank corrected column should default false")
	}
}

func TestReadLabelsHeaderIsCaseInsensitive(t *testing.T) {
	input := "Variant_ID,Name,Value\nv1,fitness,2\n"
	labels, err := ReadLabels(strings.NewReader(input))
	if err != nil || len(labels) != 1 {
		t.Fatalf("read: %v (%d labels)", err, len(labels))
	}
}

func TestReadLabelsErrors(t *testing.T) {
	cases := []struct {
		name  string
		input string
	}{
		{"missing column", "variant_id,value\nv1,2\n"},
		{"bad value", "variant_id,name,value\nv1,fitness,abc\n"},
		{"empty variant", "variant_id,name,value\n,fitness,2\n"},
		{"empty name", "variant_id,name,value\nv1,,2\n"},
	}
	for _, tc := range cases {
		if _, err := ReadLabels(strings.NewReader(tc.input)); err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
	}
}

func TestWriteLabelsRoundTrip(t *testing.T) {
	in := []Label{
		{VariantID: "v1", Name: "fitness", Value: 1.5},
		{VariantID: "v2", Name: "fitness", Value: 0.25, Corrected: true},
	}
	var buf bytes.Buffer
	if err := WriteLabels(&buf, in); err != nil {
		t.Fatalf("write: %v", err)
	}
	out, err := ReadLabels(&buf)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("round trip count = %d", len(out))
	}
	if out[1].Value != 0.25 || !out[1].Corrected {
		t.Fatalf("round trip label = %+v", out[1])
	}
}
