package money

import "testing"

func TestParse(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"1.00", "100"},
		{"0.50", "50"},
		{"10", "1000"},
		{"0.05", "5"},
		{"100.999", "10099"}, // truncated, not rounded
		{"-23.75", "-2375"},
		{"", "0"},
	}

	for _, tt := range tests {
		result, ok := Parse(tt.input)
		if !ok {
			t.Errorf("Parse(%q) failed", tt.input)
			continue
		}
		if result.String() != tt.expected {
			t.Errorf("Parse(%q) = %s, want %s", tt.input, result.String(), tt.expected)
		}
	}
}

func TestParseInvalid(t *testing.T) {
	for _, input := range []string{"1.2.3", "abc", "-", "1,50"} {
		if _, ok := Parse(input); ok {
			t.Errorf("Parse(%q) should fail", input)
		}
	}
}

func TestParsePositive(t *testing.T) {
	if _, ok := ParsePositive("0"); ok {
		t.Error("ParsePositive(0) should fail")
	}
	if _, ok := ParsePositive("-5.00"); ok {
		t.Error("ParsePositive(-5.00) should fail")
	}
	if v, ok := ParsePositive("5.00"); !ok || v.String() != "500" {
		t.Errorf("ParsePositive(5.00) = %v, %v", v, ok)
	}
}

func TestFormat(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"100.00", "100.00"},
		{"0.05", "0.05"},
		{"-23.75", "-23.75"},
		{"0", "0.00"},
	}
	for _, tt := range tests {
		v, _ := Parse(tt.input)
		if got := Format(v); got != tt.expected {
			t.Errorf("Format(Parse(%q)) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestArithmetic(t *testing.T) {
	if got := Add("100.00", "-25.00"); got != "75.00" {
		t.Errorf("Add = %s, want 75.00", got)
	}
	if got := Sub("75.00", "75.00"); got != "0.00" {
		t.Errorf("Sub = %s, want 0.00", got)
	}
	if got := Neg("23.75"); got != "-23.75" {
		t.Errorf("Neg = %s, want -23.75", got)
	}
	if Cmp("0.00", "25.00") != -1 {
		t.Error("Cmp(0, 25) should be -1")
	}
	if !IsNegative("-0.01") {
		t.Error("IsNegative(-0.01) should be true")
	}
}

func TestApplyPercent(t *testing.T) {
	tests := []struct {
		amount, pct, expected string
	}{
		{"25.00", "5", "1.25"},
		{"25.00", "4.50", "1.13"}, // 1.125 rounds half-up
		{"100.00", "2.50", "2.50"},
		{"10.00", "0", "0.00"},
	}
	for _, tt := range tests {
		got, ok := ApplyPercent(tt.amount, tt.pct)
		if !ok {
			t.Errorf("ApplyPercent(%s, %s) failed", tt.amount, tt.pct)
			continue
		}
		if got != tt.expected {
			t.Errorf("ApplyPercent(%s, %s) = %s, want %s", tt.amount, tt.pct, got, tt.expected)
		}
	}
}
