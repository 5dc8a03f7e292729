package shopping

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bowerhall/roomchat/internal/chat"
)

func TestAddDedupesByID(t *testing.T) {
	l := NewList()

	assert.True(t, l.Add(chat.ProductListing{ID: "p1", Title: "Sofa"}))
	assert.False(t, l.Add(chat.ProductListing{ID: "p1", Title: "Sofa again"}))
	assert.True(t, l.Add(chat.ProductListing{ID: "p2", Title: "Lamp"}))

	items := l.Items()
	require.Len(t, items, 2)
	assert.Equal(t, "Sofa", items[0].Title)
	assert.Equal(t, "p2", items[1].ID)
}

func TestRemove(t *testing.T) {
	l := NewList()
	l.Add(chat.ProductListing{ID: "p1"})
	l.Add(chat.ProductListing{ID: "p2"})

	assert.True(t, l.Remove("p1"))
	assert.False(t, l.Remove("p1"))
	assert.Equal(t, 1, l.Len())
	assert.Equal(t, "p2", l.Items()[0].ID)
}

func TestItemsIsCopy(t *testing.T) {
	l := NewList()
	l.Add(chat.ProductListing{ID: "p1", Title: "Sofa"})

	items := l.Items()
	items[0].Title = "changed"

	assert.Equal(t, "Sofa", l.Items()[0].Title)
}

func TestFindPrefersNewestMessage(t *testing.T) {
	messages := []chat.Message{
		{Products: []chat.ProductListing{{ID: "p1", Title: "old"}}},
		{Content: "no products"},
		{Products: []chat.ProductListing{{ID: "p1", Title: "new"}, {ID: "p2"}}},
	}

	p, err := Find(messages, "p1")
	require.NoError(t, err)
	assert.Equal(t, "new", p.Title)

	_, err = Find(messages, "missing")
	assert.ErrorIs(t, err, ErrUnknownProduct)
}
