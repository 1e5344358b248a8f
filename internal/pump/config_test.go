package pump

import "testing"

func TestSlugFromDisplayName(t *testing.T) {
	cases := map[string]string{
		"Left Tank":     "left_tank",
		"Sump-Pump":     "sump_pump",
		"Reef Wave 2":   "reef_wave_2",
		"already_snake": "already_snake",
	}
	for in, want := range cases {
		if got := SlugFromDisplayName(in); got != want {
			t.Errorf("SlugFromDisplayName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestApplyDefaultsDerivesID(t *testing.T) {
	c := Config{DisplayName: "Left Tank"}
	c.ApplyDefaults()

	if c.ID != "left_tank" {
		t.Errorf("ID = %q, want left_tank", c.ID)
	}
	if c.FlowMin != defaultFlowMin || c.FlowMax != defaultFlowMax {
		t.Errorf("flow bounds = [%d,%d], want [%d,%d]", c.FlowMin, c.FlowMax, defaultFlowMin, defaultFlowMax)
	}
	if c.FrequencyMin != defaultFrequencyMin || c.FrequencyMax != defaultFrequencyMax {
		t.Errorf("frequency bounds = [%d,%d], want [%d,%d]", c.FrequencyMin, c.FrequencyMax, defaultFrequencyMin, defaultFrequencyMax)
	}
}

func TestApplyDefaultsKeepsExplicitID(t *testing.T) {
	c := Config{DisplayName: "Left Tank", ID: "tank1"}
	c.ApplyDefaults()
	if c.ID != "tank1" {
		t.Errorf("ID = %q, want explicit tank1 to be kept", c.ID)
	}
}

func TestClampFlowAndFrequency(t *testing.T) {
	c := Config{FlowMin: 30, FlowMax: 100, FrequencyMin: 5, FrequencyMax: 20}

	if got := c.ClampFlow(10); got != 30 {
		t.Errorf("ClampFlow(10) = %d, want 30", got)
	}
	if got := c.ClampFlow(150); got != 100 {
		t.Errorf("ClampFlow(150) = %d, want 100", got)
	}
	if got := c.ClampFlow(55); got != 55 {
		t.Errorf("ClampFlow(55) = %d, want 55 (within bounds)", got)
	}
	if got := c.ClampFrequency(1); got != 5 {
		t.Errorf("ClampFrequency(1) = %d, want 5", got)
	}
	if got := c.ClampFrequency(99); got != 20 {
		t.Errorf("ClampFrequency(99) = %d, want 20", got)
	}
}
