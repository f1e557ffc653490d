// Package store holds all simulation state in one keyed container with
// per-key subscribers and write-through snapshot persistence.
package store

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
)

// Listener receives the full new value of a key after every mutation.
type Listener func(value interface{})

// Persister is told about every mutation after the write lock is released.
type Persister interface {
	SaveSnapshot(s *Store)
}

type definition struct {
	zero   func() interface{}
	decode func(raw json.RawMessage) (interface{}, error)
}

type subscription struct {
	id uint64
	fn Listener
}

// Store is the single source of truth for entity collections. Values are
// treated as immutable: writers build a new slice/map/struct and hand it to
// Set, Update or Mutate instead of editing what Get returned.
type Store struct {
	mu        sync.RWMutex
	state     map[string]interface{}
	defs      map[string]definition
	subs      map[string][]subscription
	nextSubID uint64

	persister Persister
	logger    *logrus.Logger
}

// New creates an empty store.
func New(logger *logrus.Logger) *Store {
	return &Store{
		state:  make(map[string]interface{}),
		defs:   make(map[string]definition),
		subs:   make(map[string][]subscription),
		logger: logger,
	}
}

// SetPersister installs the write-through persister. nil disables it.
func (s *Store) SetPersister(p Persister) {
	s.mu.Lock()
	s.persister = p
	s.mu.Unlock()
}

// Define registers the default value and restore type for key.
func Define[T any](s *Store, key string, zero func() T) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.defs[key] = definition{
		zero: func() interface{} { return zero() },
		decode: func(raw json.RawMessage) (interface{}, error) {
			var v T
			if err := json.Unmarshal(raw, &v); err != nil {
				return nil, err
			}
			return v, nil
		},
	}
}

// Get returns the value stored at key, its registered default, or an empty
// object for keys nobody defined.
func (s *Store) Get(key string) interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getLocked(key)
}

func (s *Store) getLocked(key string) interface{} {
	if v, ok := s.state[key]; ok {
		return v
	}
	if def, ok := s.defs[key]; ok {
		return def.zero()
	}
	return map[string]interface{}{}
}

// GetAs returns the value at key as T, or T's zero value on a type mismatch.
func GetAs[T any](s *Store, key string) T {
	v, _ := s.Get(key).(T)
	return v
}

// Set replaces the value at key, persists and notifies.
func (s *Store) Set(key string, value interface{}) {
	s.mu.Lock()
	s.state[key] = value
	s.mu.Unlock()

	s.afterWrite(key, value)
}

// Update shallow-merges a map patch into a record value (map or struct);
// anything else replaces the stored value.
func (s *Store) Update(key string, patch interface{}) {
	s.mu.Lock()
	merged, err := merge(s.getLocked(key), patch)
	if err != nil {
		s.mu.Unlock()
		s.logger.WithError(err).WithField("key", key).Warn("Store update could not merge patch, replacing value")
		s.Set(key, patch)
		return
	}
	s.state[key] = merged
	s.mu.Unlock()

	s.afterWrite(key, merged)
}

// Mutate runs fn under the write lock with the current value. When fn
// reports a change the returned value is stored, persisted and published.
// fn must not call back into the store.
func (s *Store) Mutate(key string, fn func(current interface{}) (interface{}, bool)) bool {
	s.mu.Lock()
	next, changed := fn(s.getLocked(key))
	if !changed {
		s.mu.Unlock()
		return false
	}
	s.state[key] = next
	s.mu.Unlock()

	s.afterWrite(key, next)
	return true
}

// MutateAs is the typed form of Mutate.
func MutateAs[T any](s *Store, key string, fn func(current T) (T, bool)) bool {
	return s.Mutate(key, func(current interface{}) (interface{}, bool) {
		typed, _ := current.(T)
		return fn(typed)
	})
}

// Subscribe registers fn for key. The returned function removes exactly this
// subscription and may be called more than once.
func (s *Store) Subscribe(key string, fn Listener) func() {
	s.mu.Lock()
	s.nextSubID++
	id := s.nextSubID
	s.subs[key] = append(s.subs[key], subscription{id: id, fn: fn})
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()

			subs := s.subs[key]
			for i, sub := range subs {
				if sub.id == id {
					next := make([]subscription, 0, len(subs)-1)
					next = append(next, subs[:i]...)
					next = append(next, subs[i+1:]...)
					s.subs[key] = next
					break
				}
			}
		})
	}
}

// SubscribeAs subscribes with a typed callback.
func SubscribeAs[T any](s *Store, key string, fn func(T)) func() {
	return s.Subscribe(key, func(value interface{}) {
		typed, _ := value.(T)
		fn(typed)
	})
}

// Keys returns every defined key plus any key that holds a written value,
// sorted. Defined keys are listed before their first write.
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.defs)+len(s.state))
	for k := range s.defs {
		keys = append(keys, k)
	}
	for k := range s.state {
		if _, ok := s.defs[k]; !ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// MarshalState serializes every stored key.
func (s *Store) MarshalState() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return json.Marshal(s.state)
}

// Restore decodes a snapshot into the store without persisting or notifying.
// Keys that fail to decode keep their defaults.
func (s *Store) Restore(snapshot map[string]json.RawMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, raw := range snapshot {
		if def, ok := s.defs[key]; ok {
			v, err := def.decode(raw)
			if err != nil {
				s.logger.WithError(err).WithField("key", key).Warn("Skipping undecodable snapshot key")
				continue
			}
			s.state[key] = v
			continue
		}

		var v interface{}
		if err := json.Unmarshal(raw, &v); err != nil {
			s.logger.WithError(err).WithField("key", key).Warn("Skipping undecodable snapshot key")
			continue
		}
		s.state[key] = v
	}
}

func (s *Store) afterWrite(key string, value interface{}) {
	s.mu.RLock()
	persister := s.persister
	subs := s.subs[key]
	s.mu.RUnlock()

	if persister != nil {
		persister.SaveSnapshot(s)
	}

	// subs is never mutated in place, so iterating the captured slice is safe
	// even if a listener unsubscribes.
	for _, sub := range subs {
		sub.fn(value)
	}
}

func merge(current, patch interface{}) (interface{}, error) {
	p, ok := patch.(map[string]interface{})
	if !ok {
		return patch, nil
	}

	switch cur := current.(type) {
	case nil:
		return patch, nil
	case map[string]interface{}:
		out := make(map[string]interface{}, len(cur)+len(p))
		for k, v := range cur {
			out[k] = v
		}
		for k, v := range p {
			out[k] = v
		}
		return out, nil
	}

	if isRecord(current) {
		return mergeRecord(current, p)
	}
	return patch, nil
}

func isRecord(v interface{}) bool {
	t := reflect.TypeOf(v)
	if t == nil {
		return false
	}
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Kind() == reflect.Struct
}

// mergeRecord overlays top-level JSON fields of patch onto a struct value and
// returns a new value of the same type.
func mergeRecord(current interface{}, patch map[string]interface{}) (interface{}, error) {
	base, err := json.Marshal(current)
	if err != nil {
		return nil, fmt.Errorf("marshal current: %w", err)
	}

	fields := make(map[string]json.RawMessage)
	if err := json.Unmarshal(base, &fields); err != nil {
		return nil, fmt.Errorf("unmarshal current: %w", err)
	}
	for k, v := range patch {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("marshal field %s: %w", k, err)
		}
		fields[k] = raw
	}

	merged, err := json.Marshal(fields)
	if err != nil {
		return nil, err
	}

	t := reflect.TypeOf(current)
	isPtr := t.Kind() == reflect.Ptr
	if isPtr {
		t = t.Elem()
	}
	out := reflect.New(t)
	if err := json.Unmarshal(merged, out.Interface()); err != nil {
		return nil, fmt.Errorf("unmarshal merged: %w", err)
	}
	if isPtr {
		return out.Interface(), nil
	}
	return out.Elem().Interface(), nil
}
