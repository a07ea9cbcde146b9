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

package lrucache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTouchOrdersByRecency(t *testing.T) {
	c := New()
	c.Touch("o1")
	c.Touch("o2")
	c.Touch("o3")

	front, ok := c.Front()
	assert.True(t, ok)
	assert.Equal(t, "o1", front)

	c.Touch("o1") // bump to back
	front, ok = c.Front()
	assert.True(t, ok)
	assert.Equal(t, "o2", front)

	c.CheckInvariants()
}

func TestRemove(t *testing.T) {
	c := New()
	c.Touch("a")
	c.Touch("b")
	c.Remove("a")

	assert.False(t, c.Contains("a"))
	assert.Equal(t, 1, c.Len())

	front, ok := c.Front()
	assert.True(t, ok)
	assert.Equal(t, "b", front)
	c.CheckInvariants()
}

func TestFrontOnEmpty(t *testing.T) {
	c := New()
	_, ok := c.Front()
	assert.False(t, ok)
}
