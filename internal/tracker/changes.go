package tracker

// ChangedWorkItems partitions the dirty wrappers of a session.
// The four buckets are disjoint and each keeps tracking order.
type ChangedWorkItems struct {
	Created  []*Wrapper // temporary id, dirty, no recycle mark
	Updated  []*Wrapper // permanent id, dirty, no recycle mark
	Deleted  []*Wrapper // marked ToDelete
	Restored []*Wrapper // marked ToRestore
}

// Len returns the total number of wrappers across buckets.
func (c ChangedWorkItems) Len() int {
	return len(c.Created) + len(c.Updated) + len(c.Deleted) + len(c.Restored)
}

// IsEmpty reports whether nothing needs committing.
func (c ChangedWorkItems) IsEmpty() bool {
	return c.Len() == 0
}

// GetChangedWorkItems partitions tracked wrappers into change buckets.
// It has no side effects and returns the same result until a wrapper changes.
func (t *Tracker) GetChangedWorkItems() ChangedWorkItems {
	var c ChangedWorkItems
	for _, w := range t.order {
		switch {
		case w.recycle == RecycleToDelete:
			c.Deleted = append(c.Deleted, w)
		case w.recycle == RecycleToRestore:
			c.Restored = append(c.Restored, w)
		case !w.IsDirty():
		case w.IsNew():
			c.Created = append(c.Created, w)
		default:
			c.Updated = append(c.Updated, w)
		}
	}
	return c
}
