package domain

import "testing"

func TestStringArrayValueAndScan(t *testing.T) {
	tests := []struct {
		name string
		in   StringArray
		want string
	}{
		{name: "nil", in: nil, want: "[]"},
		{name: "empty", in: StringArray{}, want: "[]"},
		{name: "values", in: StringArray{"tech", "ai"}, want: `["tech","ai"]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := tt.in.Value()
			if err != nil {
				t.Fatalf("Value() error = %v", err)
			}
			if v.(string) != tt.want {
				t.Fatalf("Value() = %v, want %v", v, tt.want)
			}

			var back StringArray
			if err := back.Scan([]byte(tt.want)); err != nil {
				t.Fatalf("Scan() error = %v", err)
			}
			if len(back) != len(tt.in) {
				t.Fatalf("Scan() len = %d, want %d", len(back), len(tt.in))
			}
		})
	}
}

func TestStringArrayScanRejectsUnknownType(t *testing.T) {
	var a StringArray
	if err := a.Scan(42); err == nil {
		t.Fatal("expected error for int input")
	}
	if err := a.Scan(nil); err != nil || len(a) != 0 {
		t.Fatalf("Scan(nil) = %v, %v", a, err)
	}
}

func TestRunStatusTerminal(t *testing.T) {
	for _, s := range []RunStatus{RunStatusFetching, RunStatusNormalizing, RunStatusEmbedding, RunStatusIndexing} {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
	if !RunStatusDone.Terminal() || !RunStatusFailed.Terminal() {
		t.Error("done and failed must be terminal")
	}
}
