// Author: Eryk Kulikowski @ KU Leuven (2026). Apache 2.0 License

package tree

// Collection is a map that remembers insertion order. Putting an existing id replaces the value in place.
type Collection[T any] struct {
	ids  []string
	byId map[string]T
}

func NewCollection[T any]() *Collection[T] {
	return &Collection[T]{byId: map[string]T{}}
}

func (c *Collection[T]) Put(id string, v T) {
	if _, ok := c.byId[id]; !ok {
		c.ids = append(c.ids, id)
	}
	c.byId[id] = v
}

func (c *Collection[T]) Get(id string) (T, bool) {
	if c == nil {
		var zero T
		return zero, false
	}
	v, ok := c.byId[id]
	return v, ok
}

func (c *Collection[T]) Has(id string) bool {
	_, ok := c.Get(id)
	return ok
}

func (c *Collection[T]) Len() int {
	if c == nil {
		return 0
	}
	return len(c.ids)
}

func (c *Collection[T]) Ids() []string {
	if c == nil {
		return nil
	}
	return append([]string(nil), c.ids...)
}

// Values returns the values in insertion order.
func (c *Collection[T]) Values() []T {
	if c == nil {
		return nil
	}
	res := make([]T, 0, len(c.ids))
	for _, id := range c.ids {
		res = append(res, c.byId[id])
	}
	return res
}
