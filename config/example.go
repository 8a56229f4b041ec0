package config

// ExampleYaml is a complete configuration used by tests.
var ExampleYaml = `
broker:
  retry: 1s
  topics: topics.dat
api:
  listen: :8723
client:
  server: http://127.0.0.1:8723
  tries: 100
  retry: 1s
  snapshot: agent.json
`

var ExampleConfig *Config

func init() {
	ExampleConfig, _ = OpenRaw([]byte(ExampleYaml))
}
