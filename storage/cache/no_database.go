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

package cache

import "context"

// NoDatabase stands in when no cache backend is configured. Every call
// fails with ErrNoDatabase.
type NoDatabase struct{}

func (NoDatabase) Init() error {
	return ErrNoDatabase
}

func (NoDatabase) Ping() error {
	return ErrNoDatabase
}

func (NoDatabase) Close() error {
	return ErrNoDatabase
}

func (NoDatabase) Purge() error {
	return ErrNoDatabase
}

func (NoDatabase) Set(_ context.Context, _ ...Value) error {
	return ErrNoDatabase
}

func (NoDatabase) Get(_ context.Context, _ string) *ReturnValue {
	return &ReturnValue{err: ErrNoDatabase}
}

func (NoDatabase) Delete(_ context.Context, _ ...string) error {
	return ErrNoDatabase
}

func (NoDatabase) SetScores(_ context.Context, _, _ string, _ []Score) error {
	return ErrNoDatabase
}

func (NoDatabase) GetScores(_ context.Context, _, _ string) ([]Score, error) {
	return nil, ErrNoDatabase
}

func (NoDatabase) DeleteScores(_ context.Context, _ string, _ ...string) error {
	return ErrNoDatabase
}
