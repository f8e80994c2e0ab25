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

package heap

import (
	"golang.org/x/exp/constraints"
)

type Elem[E any, W constraints.Ordered] struct {
	Value  E
	Weight W
}

type _heap[T any, W constraints.Ordered] struct {
	elems []Elem[T, W]
	desc  bool
}

func (e *_heap[T, W]) Len() int {
	return len(e.elems)
}

func (e *_heap[T, W]) Less(i, j int) bool {
	if e.desc {
		return e.elems[i].Weight > e.elems[j].Weight
	} else {
		return e.elems[i].Weight < e.elems[j].Weight
	}
}

func (e *_heap[T, W]) Swap(i, j int) {
	e.elems[i], e.elems[j] = e.elems[j], e.elems[i]
}

func (e *_heap[T, W]) Push(x interface{}) {
	it := x.(Elem[T, W])
	e.elems = append(e.elems, it)
}

func (e *_heap[T, W]) Pop() interface{} {
	old := e.elems
	item := e.elems[len(old)-1]
	e.elems = old[0 : len(old)-1]
	return item
}
