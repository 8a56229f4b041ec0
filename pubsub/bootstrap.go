package pubsub

import (
	"bufio"
	"io"
	"log"
	"os"
	"strings"

	"github.com/pkg/errors"
)

// LoadTopics reads a line-oriented topic list and advertises each entry
// on the broker. The format is one topic per line:
//
//	name:keyword keyword keyword
//
// Malformed lines and duplicate names are logged and skipped; loading
// continues. Returns the number of topics registered.
func LoadTopics(r io.Reader, b *Broker) int {
	count := 0
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 || parts[0] == "" {
			log.Printf("skipping malformed topic line: %q", line)
			continue
		}
		topic := NewTopic(parts[0], strings.Fields(parts[1])...)
		if b.AdvertiseTopic(topic) == 0 {
			log.Printf("skipping duplicate topic: %q", topic.Name)
			continue
		}
		count++
	}
	return count
}

// LoadTopicsFile loads the topic bootstrap file at path.
func LoadTopicsFile(path string, b *Broker) (int, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, errors.Wrap(err, "opening topics file")
	}
	defer file.Close()
	return LoadTopics(file, b), nil
}
