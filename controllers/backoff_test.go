package controllers

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFibonacciBackoff(t *testing.T) {
	b := newFibonacciBackoff(time.Minute, 10*time.Minute)

	var got []time.Duration
	for i := 0; i < 9; i++ {
		got = append(got, b.Next("team/billing"))
	}
	want := []time.Duration{
		time.Minute, time.Minute, 2 * time.Minute, 3 * time.Minute, 5 * time.Minute,
		8 * time.Minute, 10 * time.Minute, 10 * time.Minute, 10 * time.Minute,
	}
	assert.Equal(t, want, got)

	// keys are independent
	assert.Equal(t, time.Minute, b.Next("team/other"))

	b.Reset("team/billing")
	assert.Equal(t, time.Minute, b.Next("team/billing"))
}
