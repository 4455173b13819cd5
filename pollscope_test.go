package kokia

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func key(id uint64) TaskKey { return TaskKey{ID: TaskId(id)} }

func Test_PollScope_PushPopOrdering(t *testing.T) {
	ps := newPollScope()
	ps.push(key(1))
	ps.push(key(2))

	top, ok := ps.top()
	assert.True(t, ok)
	assert.Equal(t, key(2), top)

	popped, mismatch, ok := ps.pop(key(2))
	assert.True(t, ok)
	assert.False(t, mismatch)
	assert.Equal(t, key(2), popped)
}

func Test_PollScope_Pop_DetectsMismatch(t *testing.T) {
	ps := newPollScope()
	ps.push(key(1))

	_, mismatch, ok := ps.pop(key(99))
	assert.True(t, ok)
	assert.True(t, mismatch)
}

func Test_PollScope_Snapshot_IsInnermostFirst(t *testing.T) {
	ps := newPollScope()
	ps.push(key(1))
	ps.push(key(2))
	ps.push(key(3))

	assert.Equal(t, []TaskKey{key(3), key(2), key(1)}, ps.snapshot())
}

func Test_PollScope_LongestCommonPrefix(t *testing.T) {
	ps := newPollScope()
	ps.push(key(1))
	ps.push(key(2))
	ps.push(key(3))

	assert.Equal(t, 2, ps.longestCommonPrefix([]TaskKey{key(1), key(2)}))
	assert.Equal(t, 3, ps.longestCommonPrefix([]TaskKey{key(1), key(2), key(3)}))
	assert.Equal(t, 0, ps.longestCommonPrefix([]TaskKey{key(9)}))
}

func Test_PollScope_ResyncTo_PopsDivergentTailAndPushesMissing(t *testing.T) {
	ps := newPollScope()
	ps.push(key(1))
	ps.push(key(2))

	poppedTail := ps.resyncTo([]TaskKey{key(1), key(3), key(4)})

	assert.Equal(t, []TaskKey{key(2)}, poppedTail)
	assert.Equal(t, []TaskKey{key(4), key(3), key(1)}, ps.snapshot())
}

func Test_PollScope_PopAll(t *testing.T) {
	ps := newPollScope()
	ps.push(key(1))
	ps.push(key(2))

	popped := ps.popAll()
	assert.Equal(t, []TaskKey{key(1), key(2)}, popped)
	assert.Equal(t, 0, ps.depth())
}
