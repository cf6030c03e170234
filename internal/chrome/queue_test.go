package chrome

import (
	"testing"
	"time"

	"github.com/mailru/easyjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventQueue(t *testing.T) {
	t.Parallel()

	q := newEventQueue()
	for _, s := range []string{"1", "2", "3"} {
		q.push(easyjson.RawMessage(s))
	}
	q.close()
	q.push(easyjson.RawMessage("4"))

	var got []string
	for {
		raw, ok := q.pop()
		if !ok {
			break
		}
		got = append(got, string(raw))
	}
	assert.Equal(t, []string{"1", "2", "3"}, got, "items queued before close are drained, later ones ignored")
}

func TestEventQueue_PopWaits(t *testing.T) {
	t.Parallel()

	q := newEventQueue()
	popped := make(chan string, 1)
	go func() {
		raw, _ := q.pop()
		popped <- string(raw)
	}()

	select {
	case <-popped:
		t.Fatal("pop returned from an empty queue")
	case <-time.After(50 * time.Millisecond):
	}

	q.push(easyjson.RawMessage(`"x"`))
	select {
	case got := <-popped:
		require.Equal(t, `"x"`, got)
	case <-time.After(5 * time.Second):
		t.Fatal("pop not woken by push")
	}
}
