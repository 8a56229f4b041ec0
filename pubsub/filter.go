package pubsub

import (
	"sort"
	"sync"
)

// ContentFilterIndex maps keywords to the subscribers that asked for them.
// Buckets are created lazily on first subscription. One lock covers the
// whole index - keyword operations are far less frequent than topic ones.
type ContentFilterIndex struct {
	mu      sync.Mutex
	buckets map[string]*idSet
}

func NewContentFilterIndex() *ContentFilterIndex {
	return &ContentFilterIndex{buckets: map[string]*idSet{}}
}

// AddSubscriber returns false if the subscriber already follows the keyword.
func (x *ContentFilterIndex) AddSubscriber(keyword string, subID int) bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	bucket := x.buckets[keyword]
	if bucket == nil {
		bucket = newIDSet()
		x.buckets[keyword] = bucket
	}
	return bucket.Add(subID)
}

// RemoveSubscriber returns false if the subscriber did not follow the keyword.
func (x *ContentFilterIndex) RemoveSubscriber(keyword string, subID int) bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	bucket := x.buckets[keyword]
	if bucket == nil {
		return false
	}
	return bucket.Remove(subID)
}

// RemoveSubscriberAll removes the subscriber from every keyword bucket.
func (x *ContentFilterIndex) RemoveSubscriberAll(subID int) {
	x.mu.Lock()
	defer x.mu.Unlock()
	for _, bucket := range x.buckets {
		bucket.Remove(subID)
	}
}

// SubscribersOf returns a snapshot of the subscribers of a keyword, which
// may be empty.
func (x *ContentFilterIndex) SubscribersOf(keyword string) []int {
	x.mu.Lock()
	defer x.mu.Unlock()
	bucket := x.buckets[keyword]
	if bucket == nil {
		return nil
	}
	return bucket.IDs()
}

// Keywords lists the keywords with a bucket, sorted.
func (x *ContentFilterIndex) Keywords() []string {
	x.mu.Lock()
	defer x.mu.Unlock()
	keywords := []string{}
	for keyword := range x.buckets {
		keywords = append(keywords, keyword)
	}
	sort.Strings(keywords)
	return keywords
}
