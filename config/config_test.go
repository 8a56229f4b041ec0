package config

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func ExampleOpenRaw() {
	config, _ := OpenRaw([]byte(ExampleYaml))
	fmt.Println(config.Broker.Topics)
	fmt.Println(config.Client.Server)
	// Output:
	// topics.dat
	// http://127.0.0.1:8723
}

func TestDurations(t *testing.T) {
	config, err := OpenRaw([]byte("broker:\n  retry: 250ms\nclient:\n  retry: 2s\n"))
	assert.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, config.RetryInterval())
	assert.Equal(t, 2*time.Second, config.ClientRetryInterval())
}

func TestDefaults(t *testing.T) {
	config := Default()
	assert.Equal(t, time.Second, config.RetryInterval())
	assert.Equal(t, ":8723", config.ApiListen())
	assert.Equal(t, 100, config.ClientTries())
	assert.Equal(t, time.Second, config.ClientRetryInterval())
}

func TestBadDuration(t *testing.T) {
	_, err := OpenRaw([]byte("broker:\n  retry: xyz\n"))
	assert.Error(t, err)
}

func TestBadYaml(t *testing.T) {
	_, err := OpenRaw([]byte(":\n bad"))
	assert.Error(t, err)
}
