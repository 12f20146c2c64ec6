package language

import "testing"

func TestFromCode(t *testing.T) {
	tests := []struct {
		code     string
		wantCode string
		wantName string
	}{
		{"en", "en", "English"},
		{"es", "es", "Spanish"},
		{"zh", "zh", "Chinese"},
		{"en-US", "en", "English"},
		{"pt-BR", "pt", "Portuguese"},
		{"invalid", "", "Auto-detect"},
		{"", "", "Auto-detect"},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			got := FromCode(tt.code)
			if got.Code != tt.wantCode {
				t.Errorf("FromCode(%q).Code = %q, want %q", tt.code, got.Code, tt.wantCode)
			}
			if got.Name != tt.wantName {
				t.Errorf("FromCode(%q).Name = %q, want %q", tt.code, got.Name, tt.wantName)
			}
		})
	}
}

func TestIsValidCode(t *testing.T) {
	tests := []struct {
		code string
		want bool
	}{
		{"en", true},
		{"es", true},
		{"zh", true},
		{"en-US", true},
		{"en-GB", true},
		{"pt-BR", true},
		{"invalid", false},
		{"xx-YY", false},
		{"", true}, // auto is valid
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			got := IsValidCode(tt.code)
			if got != tt.want {
				t.Errorf("IsValidCode(%q) = %v, want %v", tt.code, got, tt.want)
			}
		})
	}
}

func TestList(t *testing.T) {
	list := List()
	if len(list) != 33 {
		t.Errorf("List() returned %d languages, want 33", len(list))
	}

	found := false
	for _, lang := range list {
		if lang.Code == "en" {
			found = true
			break
		}
	}
	if !found {
		t.Error("List() does not contain English")
	}
}

func TestCodes(t *testing.T) {
	codes := Codes()
	if len(codes) != 33 {
		t.Errorf("Codes() returned %d codes, want 33", len(codes))
	}
}

func TestAuto(t *testing.T) {
	if Auto.Code != "" {
		t.Errorf("Auto.Code = %q, want empty string", Auto.Code)
	}
	if Auto.Name != "Auto-detect" {
		t.Errorf("Auto.Name = %q, want 'Auto-detect'", Auto.Name)
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		code   string
		want   string
		wantOK bool
	}{
		{"en", "en-US", true},
		{"pt", "pt-BR", true},
		{"zh", "zh-CN", true},
		{"es", "es", true}, // no locale override, passthrough
		{"fr", "fr", true},
		{"en-GB", "en-GB", true}, // explicit locale wins
		{"pt-PT", "pt-PT", true},
		{"", "", true}, // auto-detect
		{"invalid", "", false},
		{"xx-YY", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			got, ok := Normalize(tt.code)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("Normalize(%q) = (%q, %v), want (%q, %v)", tt.code, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}
