package services

import (
	"flag"
	"log"
	"os"

	"github.com/mcrae/pubsub/config"
	"github.com/mcrae/pubsub/pubsub"
)

// Service interface
type Service interface {
	ID() string
	Run() error
}

// ServiceInit interface
type ServiceInit interface {
	Service
	Init() error
}

type Flags interface {
	Flags()
}

var serviceMap map[string]Service = map[string]Service{}
var enabled []Service

var Config *config.Config
var Broker *pubsub.Broker

func SetupLogging() {
	log.SetFlags(log.Ltime | log.Lmicroseconds)
	log.SetOutput(os.Stdout)
}

func SetupFlags() {
	for _, service := range enabled {
		// any service specific flags
		if f, ok := service.(Flags); ok {
			f.Flags()
		}
	}
	flag.Parse()
}

// SetupBroker creates the broker, loads the bootstrap topics and starts
// the retry worker.
func SetupBroker() {
	if Config == nil {
		Config = config.Default()
	}
	Broker = pubsub.NewBroker()
	Broker.RetryInterval = Config.RetryInterval()
	if path := Config.Broker.Topics; path != "" {
		count, err := pubsub.LoadTopicsFile(path, Broker)
		if err != nil {
			log.Println("Error loading prebuilt topics:", err)
		} else {
			log.Printf("Loaded %d topics from %s", count, path)
		}
	}
	Broker.Start()
}

func Launch(ss []string) {
	enabled = []Service{}
	for _, name := range ss {
		if service, ok := serviceMap[name]; ok {
			enabled = append(enabled, service)
		} else {
			log.Fatalf("Service %s does not exist", name)
		}
	}

	SetupFlags()

	for _, service := range enabled {
		if service, ok := service.(ServiceInit); ok {
			err := service.Init()
			if err != nil {
				log.Fatalf("Error init service %s: %s", service.ID(), err.Error())
			}
			log.Printf("Initialized %s\n", service.ID())
		}
	}

	for _, service := range enabled {
		log.Printf("Starting %s\n", service.ID())
		err := service.Run()
		if err != nil {
			log.Fatalf("Error running service %s: %s", service.ID(), err.Error())
		}
	}
}

func Register(service Service) {
	if _, exists := serviceMap[service.ID()]; exists {
		log.Fatalf("Duplicate service registered: %s", service.ID())
	}
	serviceMap[service.ID()] = service
}

func Shutdown() {
	if Broker != nil {
		Broker.Stop()
	}
}
