package circuit

import (
	"strings"
	"testing"
)

func findIssue(issues []Issue, sev Severity, substr string) bool {
	for _, i := range issues {
		if i.Severity == sev && strings.Contains(i.Message, substr) {
			return true
		}
	}
	return false
}

func TestValidate(t *testing.T) {
	a := NewArena()
	root := a.NewCircuit("")
	if _, err := a.AddSubcircuit(root, "EMPTY"); err != nil {
		t.Fatal(err)
	}

	noSymbol := &Component{Reference: "U1", Pins: []Pin{{Number: "1"}, {}}}
	noPins := &Component{Reference: "J1", Symbol: "Connector:Conn_01x02"}
	_ = a.AddComponent(root, noSymbol)
	_ = a.AddComponent(root, noPins)
	_ = a.AddComponent(root, resistor("R1"))

	dangling := &Net{Name: "DANGLING"}
	dangling.Add("R1", "1")
	ghost := &Net{Name: "GHOST"}
	ghost.Add("R1", "2")
	ghost.Add("X9", "1")
	ghost.Add("R1", "7")
	_ = a.AddNet(root, dangling)
	_ = a.AddNet(root, ghost)

	// a reference edited after registration
	c, _ := a.Circuit(root)
	c.index["J1"].Reference = "J2"

	issues := a.Validate(root)

	checks := []struct {
		sev    Severity
		substr string
	}{
		{SeverityError, "circuit name is empty"},
		{SeverityWarning, "circuit has no components"},
		{SeverityError, "component has no symbol"},
		{SeverityWarning, "component has no pins"},
		{SeverityError, "pin has neither name nor number"},
		{SeverityWarning, "net has 1 connection(s)"},
		{SeverityError, `unknown component "X9"`},
		{SeverityWarning, `has no pin "7"`},
		{SeverityWarning, `does not match its key "J1"`},
	}
	for _, check := range checks {
		if !findIssue(issues, check.sev, check.substr) {
			t.Errorf("missing %s issue %q in %v", check.sev, check.substr, issues)
		}
	}
	if !HasErrors(issues) {
		t.Errorf("HasErrors() = false")
	}
}

func TestValidateNoNets(t *testing.T) {
	a := NewArena()
	root := a.NewCircuit("top")
	_ = a.AddComponent(root, resistor("R1"))
	_ = a.AddComponent(root, resistor("R2"))

	issues := a.Validate(root)
	if !findIssue(issues, SeverityWarning, "no nets") {
		t.Errorf("expected no-nets warning, got %v", issues)
	}
	if HasErrors(issues) {
		t.Errorf("unexpected errors: %v", issues)
	}
}

func TestValidatePending(t *testing.T) {
	a := NewArena()
	root := a.NewCircuit("top")
	r := resistor("")
	other := resistor("R1")
	_ = a.AddComponent(root, r)
	_ = a.AddComponent(root, other)
	net := &Net{Name: "SIG"}
	net.Connect(r, "1")
	net.Connect(other, "2")
	_ = a.AddNet(root, net)

	issues := a.Validate(root)
	if !findIssue(issues, SeverityInfo, "reference pending") {
		t.Errorf("expected pending info, got %v", issues)
	}
	if HasErrors(issues) {
		t.Errorf("connections to deferred components are valid: %v", issues)
	}

	if err := a.FinalizeReferences(root); err != nil {
		t.Fatal(err)
	}
	if issues := a.Validate(root); len(issues) != 0 {
		t.Errorf("expected a clean circuit, got %v", issues)
	}
}

func TestIssueString(t *testing.T) {
	i := Issue{Severity: SeverityError, Message: "boom", FieldPath: "/.components[U1]", Suggestion: "fix it"}
	if got := i.String(); got != "error: /.components[U1]: boom (fix it)" {
		t.Errorf("String() = %q", got)
	}
}
