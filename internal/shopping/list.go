// Package shopping keeps the products a user has saved from search results.
package shopping

import (
	"errors"
	"sync"

	"github.com/bowerhall/roomchat/internal/chat"
)

var ErrUnknownProduct = errors.New("product not found")

type List struct {
	mu    sync.Mutex
	items []chat.ProductListing
}

func NewList() *List {
	return &List{}
}

// Add appends p unless a product with the same id is already saved. It
// reports whether the list changed.
func (l *List) Add(p chat.ProductListing) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, existing := range l.items {
		if existing.ID == p.ID {
			return false
		}
	}
	l.items = append(l.items, p)
	return true
}

// Remove drops the product with id and reports whether it was there.
func (l *List) Remove(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i, p := range l.items {
		if p.ID == id {
			l.items = append(l.items[:i], l.items[i+1:]...)
			return true
		}
	}
	return false
}

func (l *List) Items() []chat.ProductListing {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]chat.ProductListing(nil), l.items...)
}

func (l *List) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.items)
}

// Find looks id up among the products shown in messages, newest first.
func Find(messages []chat.Message, id string) (chat.ProductListing, error) {
	for i := len(messages) - 1; i >= 0; i-- {
		for _, p := range messages[i].Products {
			if p.ID == id {
				return p, nil
			}
		}
	}
	return chat.ProductListing{}, ErrUnknownProduct
}
