package listing_test

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/estatedesk/listingkeeper/internal/domain/activity"
	"github.com/estatedesk/listingkeeper/internal/imaging"
	"github.com/estatedesk/listingkeeper/internal/repository"
)

var baseTime = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

// memSlots is an in-memory SlotStore whose Get and Set can be made to fail.
type memSlots struct {
	mu      sync.Mutex
	data    map[string]string
	getErrs []error
	setErrs []error
	sets    int
}

func newMemSlots() *memSlots {
	return &memSlots{data: map[string]string{}}
}

func (m *memSlots) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.getErrs) > 0 {
		err := m.getErrs[0]
		m.getErrs = m.getErrs[1:]
		return "", err
	}
	v, ok := m.data[key]
	if !ok {
		return "", repository.ErrNotFound
	}
	return v, nil
}

func (m *memSlots) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sets++
	if len(m.setErrs) > 0 {
		err := m.setErrs[0]
		m.setErrs = m.setErrs[1:]
		if err != nil {
			return err
		}
	}
	m.data[key] = value
	return nil
}

func (m *memSlots) Remove(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *memSlots) Keys(context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *memSlots) raw(key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok
}

func (m *memSlots) failNextGets(errs ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getErrs = append(m.getErrs, errs...)
}

func (m *memSlots) failNextSets(errs ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setErrs = append(m.setErrs, errs...)
}

// passthroughImages returns each input's URI, or a fixed URI for raw bytes.
type passthroughImages struct{}

func (passthroughImages) EncodeAll(_ context.Context, inputs []imaging.Input) ([]string, error) {
	out := []string{}
	for _, in := range inputs {
		switch {
		case in.URI != "":
			out = append(out, in.URI)
		case len(in.Data) > 0:
			out = append(out, "data:image/jpeg;base64,AAAA")
		}
	}
	return out, nil
}

type recordedActivities struct {
	mu      sync.Mutex
	entries []activity.Entry
}

func (r *recordedActivities) Record(_ context.Context, e *activity.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, *e)
	return nil
}

func (r *recordedActivities) types() []activity.Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []activity.Type
	for _, e := range r.entries {
		out = append(out, e.Type)
	}
	return out
}

// chanNotifier delivers keys pushed by the test.
type chanNotifier struct {
	ch chan string
}

func (n *chanNotifier) Subscribe(context.Context) (<-chan string, error) {
	return n.ch, nil
}
