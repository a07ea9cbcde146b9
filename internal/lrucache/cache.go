// Copyright 2025 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package lrucache provides a doubly-linked-list LRU ordering of string
// keys. The tiered peer (spec §4.4) uses it to track which object ids are
// resident in its hot tier, front = least recently used.
package lrucache

import "container/list"

// Cache tracks LRU order over a set of string keys. It does not itself
// store values — the tiered peer keeps those in the hot peer; Cache only
// answers "what's the least recently used id" and "bump this id".
type Cache struct {
	order *list.List               // list.Element.Value is a string key
	index map[string]*list.Element // key -> its element in order
}

// New returns an empty Cache.
func New() *Cache {
	return &Cache{
		order: list.New(),
		index: make(map[string]*list.Element),
	}
}

// Len returns the number of tracked keys.
func (c *Cache) Len() int {
	return c.order.Len()
}

// Touch records key as most recently used, inserting it if new.
func (c *Cache) Touch(key string) {
	if e, ok := c.index[key]; ok {
		c.order.MoveToBack(e)
		return
	}
	c.index[key] = c.order.PushBack(key)
}

// Contains reports whether key is tracked.
func (c *Cache) Contains(key string) bool {
	_, ok := c.index[key]
	return ok
}

// Remove stops tracking key, if present.
func (c *Cache) Remove(key string) {
	if e, ok := c.index[key]; ok {
		c.order.Remove(e)
		delete(c.index, key)
	}
}

// Front returns the least recently used key and true, or "", false if empty.
func (c *Cache) Front() (string, bool) {
	e := c.order.Front()
	if e == nil {
		return "", false
	}
	return e.Value.(string), true
}

// CheckInvariants panics if the index and the list have drifted apart;
// intended to be wired into a syncutil.InvariantMutex by callers the way
// mutable content and the peer core tables are.
func (c *Cache) CheckInvariants() {
	if c.order.Len() != len(c.index) {
		panic("lrucache: index/order length mismatch")
	}
	for e := c.order.Front(); e != nil; e = e.Next() {
		key := e.Value.(string)
		if c.index[key] != e {
			panic("lrucache: index points to wrong element for key " + key)
		}
	}
}
