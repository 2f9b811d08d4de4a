package translator

import (
	"reflect"
	"testing"
)

func TestParseToolArguments(t *testing.T) {
	tests := []struct {
		name string
		args string
		want map[string]any
	}{
		{"empty", "", map[string]any{}},
		{"whitespace", "  \n", map[string]any{}},
		{"valid", `{"location":"Oslo","days":3}`, map[string]any{"location": "Oslo", "days": float64(3)}},
		{"windows path", `{"path":"C:\Users\me\docs"}`, map[string]any{"path": `C:\Users\me\docs`}},
		{"regex", `{"pattern":"\d+\.\d+"}`, map[string]any{"pattern": `\d+\.\d+`}},
		{"valid escapes kept", `{"s":"a\"b\\c\u0041"}`, map[string]any{"s": `a"b\cA`}},
		{"garbage", `{"unterminated`, map[string]any{}},
		{"array is not a mapping", `[1,2]`, map[string]any{}},
		{"null", `null`, map[string]any{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseToolArguments(tt.args)
			if got == nil {
				t.Fatal("ParseToolArguments must never return nil")
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ParseToolArguments(%q) = %#v, want %#v", tt.args, got, tt.want)
			}
		})
	}
}

func TestRepairBackslashes(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{`no slashes`, `no slashes`},
		{`C:\Users`, `C:\\Users`},
		{`\n\t\"\\\/`, `\n\t\"\\\/`},
		{`\u00e9`, `\u00e9`},
		{`\u00zz`, `\\u00zz`},
		{`\u12`, `\\u12`},
		{`trailing\`, `trailing\\`},
		{`\d\w`, `\\d\\w`},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := RepairBackslashes(tt.in); got != tt.want {
				t.Errorf("RepairBackslashes(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
