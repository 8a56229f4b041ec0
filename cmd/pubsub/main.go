// Command pubsub is a command line client for the broker.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/mcrae/pubsub/agent"
	"github.com/mcrae/pubsub/config"
	"github.com/mcrae/pubsub/pubsub"
	"github.com/mcrae/pubsub/services"
)

func usage() {
	fmt.Println("Usage: pubsub [flags] COMMAND [args]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("   topics                            List topics")
	fmt.Println("   advertise NAME [KEYWORD...]       Advertise a topic")
	fmt.Println("   publish   TOPIC TITLE CONTENT [KEYWORD...]")
	fmt.Println("                                     Publish an event")
	fmt.Println("   watch     [TOPIC|kw:KEYWORD...]   Subscribe and print events")
	fmt.Println()
	flag.PrintDefaults()
}

var (
	configPath = flag.String("config", "", "path to YAML configuration")
	server     = flag.String("server", "", "broker address (overrides config)")
	snapshot   = flag.String("snapshot", "", "agent snapshot file (overrides config)")
)

func main() {
	services.SetupLogging()
	flag.Usage = usage
	flag.Parse()
	if flag.NArg() < 1 {
		usage()
		os.Exit(1)
	}

	conf := config.Default()
	if *configPath != "" {
		var err error
		conf, err = config.Open(*configPath)
		if err != nil {
			log.Fatalln("Error loading config:", err)
		}
	}
	if *server != "" {
		conf.Client.Server = *server
	}
	if *snapshot != "" {
		conf.Client.Snapshot = *snapshot
	}
	if conf.Client.Server == "" {
		conf.Client.Server = "http://localhost:8723"
	}

	client := agent.NewClient(conf.Client.Server)
	args := flag.Args()[1:]
	switch flag.Args()[0] {
	case "topics":
		listTopics(client)
	case "advertise":
		if len(args) < 1 {
			usage()
			os.Exit(1)
		}
		advertise(client, args[0], args[1:])
	case "publish":
		if len(args) < 3 {
			usage()
			os.Exit(1)
		}
		publish(client, args)
	case "watch":
		watch(conf, client, args)
	default:
		usage()
		os.Exit(1)
	}
}

func listTopics(client *agent.Client) {
	topics, err := client.Topics()
	if err != nil {
		log.Fatalln("Error listing topics:", err)
	}
	for _, topic := range topics {
		fmt.Printf("%d: %s [%s]\n", topic.ID, topic.Name, strings.Join(topic.Keywords, " "))
	}
}

func advertise(client *agent.Client, name string, keywords []string) {
	topic := pubsub.NewTopic(name, keywords...)
	id, err := client.Advertise(topic)
	if err != nil {
		log.Fatalln("Error advertising topic:", err)
	}
	if id == 0 {
		log.Fatalf("Topic %s already exists", name)
	}
	fmt.Println("Advertised topic", id)
}

func findTopic(client *agent.Client, name string) *pubsub.Topic {
	topics, err := client.Topics()
	if err != nil {
		log.Fatalln("Error listing topics:", err)
	}
	for _, topic := range topics {
		if topic.Name == name {
			return topic
		}
	}
	log.Fatalf("Topic %s not found", name)
	return nil
}

func publish(client *agent.Client, args []string) {
	topic := findTopic(client, args[0])
	ev := pubsub.NewEvent(topic, args[1], args[2], args[3:]...)
	id, err := client.Publish(ev)
	if err != nil {
		log.Fatalln("Error publishing:", err)
	}
	if id == 0 {
		log.Fatalln("Event rejected by broker")
	}
	fmt.Println("Published event", id)
}

// watch registers (or resumes) an agent, subscribes to the given topics
// and kw:keyword arguments and prints events until interrupted. With a
// snapshot configured the agent goes offline on exit and picks up held
// events on the next run.
func watch(conf *config.Config, client *agent.Client, args []string) {
	a := connect(conf, client)
	a.MaxTries = conf.ClientTries()
	a.RetryInterval = conf.ClientRetryInterval()
	a.OnEvent = func(ev *pubsub.Event) {
		fmt.Println(ev)
	}

	for _, arg := range args {
		if keyword := strings.TrimPrefix(arg, "kw:"); keyword != arg {
			a.SubscribeKeyword(keyword).Wait()
			continue
		}
		a.Subscribe(findTopic(client, arg)).Wait()
	}
	log.Printf("Watching as subscriber %d", a.ID())

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	if path := conf.Client.Snapshot; path != "" {
		if err := a.Save(path); err != nil {
			log.Println("Error saving snapshot:", err)
		}
		if err := a.GoOffline(); err != nil {
			log.Println("Error going offline:", err)
		}
		a.Close()
		return
	}
	if err := a.Quit(); err != nil {
		log.Println("Error leaving broker:", err)
	}
}

// connect resumes from the snapshot when one exists, otherwise registers
// a first-time agent.
func connect(conf *config.Config, client *agent.Client) *agent.Agent {
	if path := conf.Client.Snapshot; path != "" {
		if _, err := os.Stat(path); err == nil {
			snap, err := agent.LoadSnapshot(path)
			if err != nil {
				log.Fatalln("Error loading snapshot:", err)
			}
			a, err := agent.Resume(client, snap)
			if err != nil {
				log.Fatalln("Error resuming:", err)
			}
			log.Printf("Resumed subscriber %d with %d events", a.ID(), len(a.Received()))
			return a
		}
	}
	a, err := agent.New(client)
	if err != nil {
		log.Fatalln("Error registering:", err)
	}
	return a
}
