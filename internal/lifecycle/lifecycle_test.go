package lifecycle

import "testing"

func TestIsShuttingDown_DefaultFalse(t *testing.T) {
	SetShuttingDown(false)
	if IsShuttingDown() {
		t.Error("IsShuttingDown() = true, want false by default")
	}
}

func TestSetShuttingDown_True(t *testing.T) {
	SetShuttingDown(true)
	defer SetShuttingDown(false)
	if !IsShuttingDown() {
		t.Error("IsShuttingDown() = false after SetShuttingDown(true), want true")
	}
}

func TestSetShuttingDown_False(t *testing.T) {
	SetShuttingDown(true)
	SetShuttingDown(false)
	if IsShuttingDown() {
		t.Error("IsShuttingDown() = true after SetShuttingDown(false), want false")
	}
}

func resetState(t *testing.T) {
	t.Helper()
	Transition(Active)
	t.Cleanup(func() { Transition(Active) })
}

func TestTransition_ReloadAfterInactive(t *testing.T) {
	resetState(t)

	if Transition(Active) {
		t.Error("Transition(Active) without leaving = reload, want none")
	}
	if Transition(Inactive) {
		t.Error("Transition(Inactive) = reload, want none")
	}
	if !ReloadPending() {
		t.Error("ReloadPending() = false after going inactive")
	}
	if Current() != Inactive {
		t.Errorf("Current() = %v, want inactive", Current())
	}
	if !Transition(Active) {
		t.Error("Transition(Active) after inactive = no reload, want reload")
	}
	if Transition(Active) {
		t.Error("second Transition(Active) = reload, want the schedule consumed")
	}
}

func TestTransition_BackgroundThenInactive(t *testing.T) {
	resetState(t)

	Transition(Background)
	Transition(Inactive)
	if !Transition(Active) {
		t.Error("Transition(Active) = no reload, want one reload")
	}
	if ReloadPending() {
		t.Error("ReloadPending() = true after activation")
	}
}

func TestParseState(t *testing.T) {
	tests := []struct {
		in      string
		want    State
		wantErr bool
	}{
		{"active", Active, false},
		{"Foreground", Active, false},
		{" inactive ", Inactive, false},
		{"BACKGROUND", Background, false},
		{"asleep", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseState(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseState(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("ParseState(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestState_String(t *testing.T) {
	if Background.String() != "background" || State(9).String() != "state(9)" {
		t.Errorf("String() = %q, %q", Background.String(), State(9).String())
	}
}
