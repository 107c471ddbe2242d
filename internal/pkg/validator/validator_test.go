package validator

import "testing"

type impressionInput struct {
	AdType   string `json:"ad_type" validate:"required,slug"`
	AdFormat string `json:"ad_format" validate:"required,ad_format"`
	Note     string `json:"note" validate:"max=5"`
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		in    impressionInput
		field string
		want  string
	}{
		{name: "valid", in: impressionInput{AdType: "monetag", AdFormat: "rewarded"}},
		{name: "missing type", in: impressionInput{AdFormat: "banner"}, field: "ad_type", want: "This field is required"},
		{name: "bad slug", in: impressionInput{AdType: "Mone Tag", AdFormat: "banner"}, field: "ad_type", want: "Must be lowercase letters, digits, '-' or '_'"},
		{name: "bad format", in: impressionInput{AdType: "cpx", AdFormat: "popup"}, field: "ad_format"},
		{name: "too long", in: impressionInput{AdType: "cpx", AdFormat: "survey", Note: "toolong"}, field: "note", want: "Value is too long (max: 5)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := Validate(tt.in)
			if tt.field == "" {
				if errs != nil {
					t.Fatalf("expected no errors, got %v", errs)
				}
				return
			}
			msg, ok := errs[tt.field]
			if !ok {
				t.Fatalf("expected error on %s, got %v", tt.field, errs)
			}
			if tt.want != "" && msg != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, msg)
			}
		})
	}
}

func TestValidateVar(t *testing.T) {
	if err := ValidateVar("offer", "ad_format"); err != nil {
		t.Fatalf("expected offer to be valid, got %v", err)
	}
	if err := ValidateVar("", "required"); err == nil {
		t.Fatal("expected error for empty required value")
	}
}
