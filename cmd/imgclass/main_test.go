package main

import (
	"reflect"
	"testing"

	"github.com/vanlife/go-imgclass"
)

func TestParseClasses(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want []imgclass.ClassSpec
	}{
		{name: "empty", in: "", want: nil},
		{
			name: "with names",
			in:   "n02084071:Dog, n02121808:domestic cat",
			want: []imgclass.ClassSpec{
				{WNID: "n02084071", Name: "dog"},
				{WNID: "n02121808", Name: "domestic_cat"},
			},
		},
		{
			name: "name omitted",
			in:   "n02084071,",
			want: []imgclass.ClassSpec{{WNID: "n02084071"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := parseClasses(tt.in); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("parseClasses(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestSplitList(t *testing.T) {
	t.Parallel()

	got := splitList(" cat, ,dog ")
	want := []string{"cat", "dog"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("splitList = %v, want %v", got, want)
	}
}
