package util

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEventSetWait(t *testing.T) {
	e := NewEvent()
	assert.False(t, e.IsSet())

	go e.Set()
	e.Wait()
	assert.True(t, e.IsSet())
	assert.True(t, e.Set(), "second Set reports already set")
}

func TestEventWaitTimeout(t *testing.T) {
	e := NewEvent()
	assert.False(t, e.WaitTimeout(5*time.Millisecond))
	e.Set()
	assert.True(t, e.WaitTimeout(5*time.Millisecond))
}
