package model

import "testing"

func TestIsTerminal(t *testing.T) {
	tests := []struct {
		status ScheduleStatus
		want   bool
	}{
		{StatusPending, false},
		{StatusRunning, false},
		{StatusUpdating, false},
		{StatusKilling, false},
		{StatusFinished, true},
		{StatusFailed, true},
		{StatusKilled, true},
		{StatusLost, true},
	}

	for _, tt := range tests {
		if got := IsTerminal(tt.status); got != tt.want {
			t.Errorf("IsTerminal(%s) = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestActiveStatusesExcludesTerminal(t *testing.T) {
	for _, s := range ActiveStatuses() {
		if IsTerminal(s) {
			t.Errorf("ActiveStatuses() included terminal status %s", s)
		}
	}
}

func TestActiveStatusesReturnsACopy(t *testing.T) {
	first := ActiveStatuses()
	first[0] = StatusFinished
	second := ActiveStatuses()
	if second[0] == StatusFinished {
		t.Fatal("mutating one ActiveStatuses() result affected another call")
	}
}
