package observe

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegistry_NotifyInOrder(t *testing.T) {
	r := NewRegistry[int]()

	var got []string
	r.Add(func(v int) { got = append(got, "first") })
	r.Add(func(v int) { got = append(got, "second") })
	r.Add(func(v int) { got = append(got, "third") })

	r.Notify(1)
	assert.Equal(t, []string{"first", "second", "third"}, got)
}

func TestRegistry_Remove(t *testing.T) {
	r := NewRegistry[string]()

	var got []string
	id := r.Add(func(v string) { got = append(got, "a:"+v) })
	r.Add(func(v string) { got = append(got, "b:"+v) })

	r.Remove(id)
	r.Notify("x")
	assert.Equal(t, []string{"b:x"}, got)
	assert.Equal(t, 1, r.Count())

	// Unknown IDs are ignored.
	r.Remove("nope")
	assert.Equal(t, 1, r.Count())
}

func TestRegistry_NotifyPayload(t *testing.T) {
	r := NewRegistry[int]()

	var sum int
	r.Add(func(v int) { sum += v })
	r.Notify(3)
	r.Notify(4)
	assert.Equal(t, 7, sum)
}

func TestRegistry_NotifyEmpty(t *testing.T) {
	r := NewRegistry[struct{}]()
	assert.NotPanics(t, func() { r.Notify(struct{}{}) })
}
