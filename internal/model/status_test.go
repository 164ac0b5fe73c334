package model

import "testing"

func TestTaskStatus_IsActive(t *testing.T) {
	tests := []struct {
		status   TaskStatus
		expected bool
	}{
		{TaskStatusPending, false},
		{TaskStatusDownloading, true},
		{TaskStatusStopped, false},
		{TaskStatusCompleted, false},
		{TaskStatusError, false},
	}

	for _, test := range tests {
		result := test.status.IsActive()
		if result != test.expected {
			t.Errorf("TaskStatus(%s).IsActive() = %v, expected %v", test.status, result, test.expected)
		}
	}
}

func TestTaskStatus_IsFinished(t *testing.T) {
	tests := []struct {
		status   TaskStatus
		expected bool
	}{
		{TaskStatusPending, false},
		{TaskStatusDownloading, false},
		{TaskStatusStopped, true},
		{TaskStatusCompleted, true},
		{TaskStatusError, true},
	}

	for _, test := range tests {
		result := test.status.IsFinished()
		if result != test.expected {
			t.Errorf("TaskStatus(%s).IsFinished() = %v, expected %v", test.status, result, test.expected)
		}
	}
}

func TestTaskStatus_CanTransitionTo(t *testing.T) {
	all := []TaskStatus{
		TaskStatusPending,
		TaskStatusDownloading,
		TaskStatusStopped,
		TaskStatusCompleted,
		TaskStatusError,
	}

	allowed := map[TaskStatus]map[TaskStatus]bool{
		TaskStatusPending: {
			TaskStatusDownloading: true,
			TaskStatusStopped:     true,
		},
		TaskStatusDownloading: {
			TaskStatusStopped:   true,
			TaskStatusCompleted: true,
			TaskStatusError:     true,
		},
	}

	for _, from := range all {
		for _, to := range all {
			expected := allowed[from][to]
			if got := from.CanTransitionTo(to); got != expected {
				t.Errorf("%s -> %s: got %v, expected %v", from, to, got, expected)
			}
		}
	}
}

func TestTaskStatus_String(t *testing.T) {
	status := TaskStatusDownloading
	expected := "Downloading"
	result := status.String()

	if result != expected {
		t.Errorf("TaskStatus.String() = %s, expected %s", result, expected)
	}
}
