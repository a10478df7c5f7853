package netproc

import "testing"

func TestClassify(t *testing.T) {
	tests := []struct {
		name         string
		hierarchical bool
		want         NetClass
	}{
		{"GND", false, ClassGlobal},
		{"GND", true, ClassGlobal},
		{"VCC", false, ClassGlobal},
		{"GNDA", false, ClassGlobal},
		{"+3V3", false, ClassGlobal},
		{"+1V8", false, ClassGlobal},
		{"-5V", true, ClassGlobal},
		{"DATA", true, ClassHierarchical},
		{"DATA", false, ClassLocal},
		{"vcc", false, ClassLocal},
		{"N$1", false, ClassLocal},
	}
	for _, tt := range tests {
		if got := Classify(tt.name, tt.hierarchical); got != tt.want {
			t.Errorf("Classify(%q, %v) = %v, want %v", tt.name, tt.hierarchical, got, tt.want)
		}
	}
}

func TestResolveName(t *testing.T) {
	tests := []struct {
		name  string
		class NetClass
		path  string
		want  string
	}{
		{"DATA", ClassHierarchical, "/MCU", "/MCU/DATA"},
		{"DATA", ClassHierarchical, "/", "/DATA"},
		{"DATA", ClassHierarchical, "", "/DATA"},
		{"DATA", ClassHierarchical, "/MCU/ADC", "/MCU/ADC/DATA"},
		{"/MCU/DATA", ClassHierarchical, "/MCU", "/MCU/DATA"},
		{"GND", ClassGlobal, "/MCU", "GND"},
		{"LED_A", ClassLocal, "/MCU", "LED_A"},
	}
	for _, tt := range tests {
		if got := ResolveName(tt.name, tt.class, tt.path); got != tt.want {
			t.Errorf("ResolveName(%q, %v, %q) = %q, want %q", tt.name, tt.class, tt.path, got, tt.want)
		}
	}
}

func TestNetClassString(t *testing.T) {
	for class, want := range map[NetClass]string{
		ClassLocal:        "local",
		ClassHierarchical: "hierarchical",
		ClassGlobal:       "global",
		ClassUnconnected:  "unconnected",
	} {
		if got := class.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", class, got, want)
		}
	}
	if got := UnconnectedName("U1", "3"); got != "unconnected-U1-3" {
		t.Errorf("UnconnectedName() = %q", got)
	}
}
