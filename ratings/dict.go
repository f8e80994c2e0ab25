// Copyright 2026 sorrel Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package ratings

// Dict maps external 64-bit ids to dense indices and counts the frequency of
// each id. For items the frequency is the number of raters, which doubles as
// the popularity used by the fallback recommender.
type Dict struct {
	si  map[int64]int32
	is  []int64
	cnt []int
}

func NewDict() (d *Dict) {
	d = &Dict{map[int64]int32{}, []int64{}, []int{}}
	return
}

func (d *Dict) Count() int {
	return len(d.is)
}

// Id returns the dense index of v and increases its frequency. Unseen ids are
// assigned the next free index.
func (d *Dict) Id(v int64) (y int32) {
	if y, ok := d.si[v]; ok {
		d.cnt[y]++
		return y
	}

	y = int32(len(d.is))
	d.si[v] = y
	d.is = append(d.is, v)
	d.cnt = append(d.cnt, 1)
	return
}

// NotCount returns the dense index of v without touching its frequency.
func (d *Dict) NotCount(v int64) (y int32) {
	if y, ok := d.si[v]; ok {
		return y
	}

	y = int32(len(d.is))
	d.si[v] = y
	d.is = append(d.is, v)
	d.cnt = append(d.cnt, 0)
	return
}

// Index looks up the dense index of v without inserting.
func (d *Dict) Index(v int64) (int32, bool) {
	y, ok := d.si[v]
	return y, ok
}

func (d *Dict) Value(id int32) (v int64, ok bool) {
	if int(id) >= len(d.is) {
		return 0, false
	}
	return d.is[id], true
}

func (d *Dict) Freq(id int32) int {
	if int(id) >= len(d.cnt) {
		return 0
	}
	return d.cnt[id]
}

// Values returns all known ids in index order.
func (d *Dict) Values() []int64 {
	return d.is
}

func (d *Dict) clone() *Dict {
	si := make(map[int64]int32, len(d.si))
	for k, v := range d.si {
		si[k] = v
	}
	is := make([]int64, len(d.is))
	copy(is, d.is)
	cnt := make([]int, len(d.cnt))
	copy(cnt, d.cnt)
	return &Dict{si, is, cnt}
}
