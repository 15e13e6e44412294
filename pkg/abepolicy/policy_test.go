package abepolicy_test

import (
	"strings"
	"testing"

	"github.com/jmerrifield20/vitalsguard/pkg/abepolicy"
)

func TestString(t *testing.T) {
	base := abepolicy.And(abepolicy.Attr("Role", "Doctor"), abepolicy.Attr("Dept", "Cardiology"))

	cases := []struct {
		name string
		node abepolicy.Node
		want string
	}{
		{"leaf", abepolicy.Attr("Role", "Doctor"), "Role:Doctor"},
		{"base only", base, "Role:Doctor AND Dept:Cardiology"},
		{"single child collapses", abepolicy.Or(base), "Role:Doctor AND Dept:Cardiology"},
		{
			"base with consent",
			abepolicy.Or(base, abepolicy.Attr("Consent", "CONSENT_ab12cd34")),
			"(Role:Doctor AND Dept:Cardiology) OR Consent:CONSENT_ab12cd34",
		},
		{
			"nested",
			abepolicy.And(abepolicy.Or(abepolicy.Attr("a", "1"), abepolicy.Attr("b", "2")), abepolicy.Attr("c", "3")),
			"(a:1 OR b:2) AND c:3",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := tc.node.String()
			if got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
			if strings.Count(got, "(") != strings.Count(got, ")") {
				t.Errorf("unbalanced parentheses in %q", got)
			}
		})
	}
}

func TestSatisfied(t *testing.T) {
	policy := abepolicy.Or(
		abepolicy.And(abepolicy.Attr("Role", "Doctor"), abepolicy.Attr("Dept", "Cardiology")),
		abepolicy.Attr("Consent", "CONSENT_ab12cd34"),
	)

	cases := []struct {
		name  string
		attrs abepolicy.Attributes
		want  bool
	}{
		{"cardiologist", abepolicy.Attributes{"Role": {"Doctor"}, "Dept": {"Cardiology"}}, true},
		{"wrong department", abepolicy.Attributes{"Role": {"Doctor"}, "Dept": {"Oncology"}}, false},
		{"consent holder", abepolicy.Attributes{"Consent": {"CONSENT_00000000", "CONSENT_ab12cd34"}}, true},
		{"nothing", abepolicy.Attributes{}, false},
	}
	for _, tc := range cases {
		if got := policy.Satisfied(tc.attrs); got != tc.want {
			t.Errorf("%s: got %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestNewAttr_invalid(t *testing.T) {
	cases := [][2]string{
		{"", "x"},
		{"Role", ""},
		{"Ro le", "x"},
		{"Role", "Doc(tor"},
		{"Ro:le", "x"},
	}
	for _, c := range cases {
		if _, err := abepolicy.NewAttr(c[0], c[1]); err == nil {
			t.Errorf("NewAttr(%q, %q): expected error", c[0], c[1])
		}
	}
}

func TestParse_roundTrip(t *testing.T) {
	inputs := []string{
		"Role:Doctor",
		"Role:Doctor AND Dept:Cardiology",
		"(Role:Doctor AND Dept:Cardiology) OR Consent:CONSENT_ab12cd34 OR Consent:CONSENT_ffff0000",
		"(a:1 OR b:2) AND c:3",
	}
	for _, in := range inputs {
		n, err := abepolicy.Parse(in)
		if err != nil {
			t.Errorf("Parse(%q): %v", in, err)
			continue
		}
		if n.String() != in {
			t.Errorf("round trip: got %q, want %q", n.String(), in)
		}
	}
}

func TestParse_legacyParenthesised(t *testing.T) {
	n, err := abepolicy.Parse("(Role:Doctor and Dept:Cardiology) or (Consent:CONSENT_ab12cd34)")
	if err != nil {
		t.Fatal(err)
	}
	want := "(Role:Doctor AND Dept:Cardiology) OR Consent:CONSENT_ab12cd34"
	if n.String() != want {
		t.Errorf("got %q, want %q", n.String(), want)
	}
}

func TestParse_precedence(t *testing.T) {
	n, err := abepolicy.Parse("a:1 OR b:2 AND c:3")
	if err != nil {
		t.Fatal(err)
	}
	if n.String() != "a:1 OR (b:2 AND c:3)" {
		t.Errorf("AND should bind tighter than OR, got %q", n.String())
	}
}

func TestParse_invalid(t *testing.T) {
	inputs := []string{
		"",
		"(Role:Doctor",
		"Role:Doctor)",
		"Role:Doctor AND",
		"AND Role:Doctor",
		"Role",
		"Role:Doctor Dept:Cardiology",
	}
	for _, in := range inputs {
		if _, err := abepolicy.Parse(in); err == nil {
			t.Errorf("Parse(%q): expected error", in)
		}
	}
}
