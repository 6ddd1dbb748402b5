// internal/category/collection.go
package category

// Collection maps ids to categories and remembers insertion order.
type Collection struct {
	order []string
	items map[string]*Category
}

func NewCollection() *Collection {
	return &Collection{items: make(map[string]*Category)}
}

// Put stores c under its id. Replacing an existing id keeps its position.
func (col *Collection) Put(c *Category) {
	if _, ok := col.items[c.ID()]; !ok {
		col.order = append(col.order, c.ID())
	}
	col.items[c.ID()] = c
}

func (col *Collection) Get(id string) (*Category, bool) {
	c, ok := col.items[id]
	return c, ok
}

// Delete removes id and reports whether it was present.
func (col *Collection) Delete(id string) bool {
	if _, ok := col.items[id]; !ok {
		return false
	}
	delete(col.items, id)
	for i, existing := range col.order {
		if existing == id {
			col.order = append(col.order[:i], col.order[i+1:]...)
			break
		}
	}
	return true
}

// All returns the categories in insertion order.
func (col *Collection) All() []*Category {
	out := make([]*Category, 0, len(col.order))
	for _, id := range col.order {
		out = append(out, col.items[id])
	}
	return out
}

func (col *Collection) Len() int {
	return len(col.order)
}
