/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package poller

import (
	"bytes"
	"sync"

	"github.com/carverauto/tagradar/pkg/models"
)

// ChangeCache remembers the last advertisement payload seen per tag MAC
// and reports which records in a snapshot carry bytes it has not seen
// for that tag. Only the payload participates in comparison; RSSI and
// timestamp movement alone is not a change. Entries are never evicted:
// a tag that drops out of range keeps its last payload, so reappearing
// with identical bytes is not reported again.
type ChangeCache struct {
	mu    sync.RWMutex
	known map[string][]byte
}

// NewChangeCache returns an empty cache.
func NewChangeCache() *ChangeCache {
	return &ChangeCache{known: make(map[string][]byte)}
}

// Diff returns the records whose payload differs byte for byte from the
// cached one, in input order. Records for unseen MACs always count as
// changed. Diff never modifies the cache; pair it with Commit once the
// cycle has fully succeeded.
func (c *ChangeCache) Diff(records []models.TagRecord) []models.TagRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var changed []models.TagRecord

	for _, rec := range records {
		prev, seen := c.known[rec.MAC]
		if seen && bytes.Equal(prev, rec.Data) {
			continue
		}

		changed = append(changed, rec)
	}

	return changed
}

// Commit stores the payload of every given record, overwriting earlier
// entries for the same MAC. MACs absent from records keep their entry.
func (c *ChangeCache) Commit(records []models.TagRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, rec := range records {
		c.known[rec.MAC] = bytes.Clone(rec.Data)
	}
}

// Len reports how many distinct tags the cache has recorded.
func (c *ChangeCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.known)
}
