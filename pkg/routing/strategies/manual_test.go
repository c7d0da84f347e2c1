package strategies

import "testing"

func TestManual_Pin(t *testing.T) {
	tests := []struct {
		name      string
		fallback  bool
		preferred string
		want      []string
		wantFound bool
	}{
		{name: "no preference", fallback: true, preferred: "", want: []string{"a", "b", "c"}},
		{name: "moved to head", fallback: true, preferred: "c", want: []string{"c", "a", "b"}, wantFound: true},
		{name: "already first", fallback: true, preferred: "a", want: []string{"a", "b", "c"}, wantFound: true},
		{name: "missing with fallback", fallback: true, preferred: "z", want: []string{"a", "b", "c"}},
		{name: "strict keeps only the pinned channel", fallback: false, preferred: "b", want: []string{"b"}, wantFound: true},
		{name: "missing without fallback", fallback: false, preferred: "z", want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			list := tierOf(map[string]int{"a": 1, "b": 1, "c": 1}, "a", "b", "c")
			got, found := Manual{AllowFallback: tt.fallback}.Pin(list, tt.preferred)
			if found != tt.wantFound {
				t.Errorf("found = %v, want %v", found, tt.wantFound)
			}
			if !equal(ids(got), tt.want) {
				t.Errorf("order = %v, want %v", ids(got), tt.want)
			}
		})
	}
}
