package server

import (
	"encoding/json"
	"sync"

	"github.com/playperu/stampquest/internal/quest"
)

// message is one encoded event as delivered to a stream subscriber.
type message struct {
	Type string
	Data []byte
}

// Broker is an in-process pub/sub for game events, keyed by player ID.
type Broker struct {
	mu   sync.RWMutex
	subs map[string]map[chan message]struct{}
}

func NewBroker() *Broker {
	return &Broker{
		subs: make(map[string]map[chan message]struct{}),
	}
}

// Subscribe returns a channel that receives the player's events.
func (b *Broker) Subscribe(playerID string) chan message {
	ch := make(chan message, 16)
	b.mu.Lock()
	if b.subs[playerID] == nil {
		b.subs[playerID] = make(map[chan message]struct{})
	}
	b.subs[playerID][ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *Broker) Unsubscribe(playerID string, ch chan message) {
	b.mu.Lock()
	delete(b.subs[playerID], ch)
	if len(b.subs[playerID]) == 0 {
		delete(b.subs, playerID)
	}
	b.mu.Unlock()
}

// Publish implements quest.Publisher.
func (b *Broker) Publish(playerID string, e quest.Event) {
	data, err := json.Marshal(e)
	if err != nil {
		return
	}
	msg := message{Type: e.Type, Data: data}

	b.mu.RLock()
	for ch := range b.subs[playerID] {
		select {
		case ch <- msg:
		default:
			// Drop if subscriber is slow.
		}
	}
	b.mu.RUnlock()
}

func (b *Broker) subscribers(playerID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[playerID])
}
