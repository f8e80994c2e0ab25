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

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNoDatabase(t *testing.T) {
	ctx := context.Background()
	var database NoDatabase
	assert.ErrorIs(t, database.Init(), ErrNoDatabase)
	assert.ErrorIs(t, database.Ping(), ErrNoDatabase)
	assert.ErrorIs(t, database.Close(), ErrNoDatabase)
	assert.ErrorIs(t, database.Purge(), ErrNoDatabase)
	assert.ErrorIs(t, database.Set(ctx), ErrNoDatabase)
	_, err := database.Get(ctx, "").String()
	assert.ErrorIs(t, err, ErrNoDatabase)
	assert.ErrorIs(t, database.Delete(ctx, ""), ErrNoDatabase)
	assert.ErrorIs(t, database.SetScores(ctx, "", "", nil), ErrNoDatabase)
	_, err = database.GetScores(ctx, "", "")
	assert.ErrorIs(t, err, ErrNoDatabase)
	assert.ErrorIs(t, database.DeleteScores(ctx, ""), ErrNoDatabase)
}
