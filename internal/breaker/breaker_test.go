package breaker

import (
	"errors"
	"testing"
)

func TestBreaker_OpensOnFailureRate(t *testing.T) {
	cb := New[int](Settings{Name: "test-open", MinRequests: 4, FailureRate: 0.5}, nil)
	boom := errors.New("boom")

	for range 4 {
		_, _ = Execute(cb, func() (int, error) { return 0, boom })
	}

	_, err := Execute(cb, func() (int, error) { return 1, nil })
	if !Rejected(err) {
		t.Errorf("error = %v, want breaker rejection", err)
	}
}

func TestBreaker_IsSuccessfulExcludesErrors(t *testing.T) {
	notFound := errors.New("not found")
	cb := New[int](Settings{
		Name:         "test-success",
		MinRequests:  2,
		IsSuccessful: func(err error) bool { return err == nil || errors.Is(err, notFound) },
	}, nil)

	for range 5 {
		if _, err := Execute(cb, func() (int, error) { return 0, notFound }); !errors.Is(err, notFound) {
			t.Fatalf("error = %v, want notFound", err)
		}
	}
	if v, err := Execute(cb, func() (int, error) { return 7, nil }); err != nil || v != 7 {
		t.Errorf("Execute = %d, %v", v, err)
	}
}
