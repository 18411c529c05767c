// Package resource maps opaque handles to host-side values.
//
// A Table hands out non-zero uint32 handles that can cross a C boundary as
// pointer-sized tokens. Slots are recycled, but every reuse bumps the slot's
// generation, so a handle that was removed never resolves again:
//
//	table := resource.NewTable[*slave.Adapter]()
//
//	h, err := table.Insert(adapter)
//	a, ok := table.Get(h)     // ok
//	table.Remove(h)
//	a, ok = table.Get(h)      // !ok, even after the slot is reused
//
// # Observers
//
// Observers are notified after every insert and remove:
//
//	table.Subscribe(resource.ObserverFunc(func(e resource.Event) {
//	    log.Printf("handle %d %s", e.Handle, e.Type)
//	}))
//
// # Memory Management
//
// Values are not garbage collected while in the table. Close drops every
// remaining value, calling Drop on those implementing Dropper.
package resource
