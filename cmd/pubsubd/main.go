// Command pubsubd runs the broker with its HTTP API.
package main

import (
	"flag"
	"log"

	"github.com/mcrae/pubsub/config"
	"github.com/mcrae/pubsub/services"
	"github.com/mcrae/pubsub/services/api"
)

var (
	configPath = flag.String("config", "", "path to YAML configuration")
	listen     = flag.String("listen", "", "HTTP listen address (overrides config)")
	topics     = flag.String("topics", "", "bootstrap topics file (overrides config)")
)

func main() {
	services.SetupLogging()
	flag.Parse()

	if *configPath != "" {
		conf, err := config.Open(*configPath)
		if err != nil {
			log.Fatalln("Error loading config:", err)
		}
		services.Config = conf
	} else {
		services.Config = config.Default()
	}
	if *listen != "" {
		services.Config.Api.Listen = *listen
	}
	if *topics != "" {
		services.Config.Broker.Topics = *topics
	}

	services.SetupBroker()
	defer services.Shutdown()

	services.Register(&api.Service{})
	services.Launch([]string{"api"})
}
