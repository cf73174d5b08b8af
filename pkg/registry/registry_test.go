package registry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DeBrosOfficial/cogmesh/pkg/errors"
	"github.com/DeBrosOfficial/cogmesh/pkg/protocol"
)

func collect(into *[]Payload) func(Payload) error {
	return func(p Payload) error {
		*into = append(*into, p)
		return nil
	}
}

func TestRegisterStartsEmpty(t *testing.T) {
	r := New()
	_, err := r.Register("blackboard", "object", nil)
	require.NoError(t, err)

	assert.Equal(t, 0, r.Count("blackboard"))
	assert.Equal(t, 0, r.Count("missing"))
}

func TestRegisterDuplicate(t *testing.T) {
	r := New()
	_, err := r.Register("blackboard", "object", nil)
	require.NoError(t, err)

	_, err = r.Register("blackboard", "other", nil)
	require.Error(t, err)
	assert.True(t, errors.IsDuplicateTopic(err))

	_, err = r.Register("", "object", nil)
	assert.True(t, errors.IsValidation(err))
}

func TestResetAllowsReRegister(t *testing.T) {
	r := New()
	_, err := r.Register("blackboard", "object", nil)
	require.NoError(t, err)

	dropped := r.Reset()
	require.Len(t, dropped, 1)
	assert.Equal(t, 0, r.Len())

	_, err = r.Register("blackboard", "object", nil)
	assert.NoError(t, err)
}

func TestTopicsSorted(t *testing.T) {
	r := New()
	for _, id := range []string{"zeta", "alpha", "mid"} {
		_, err := r.Register(id, "t-"+id, nil)
		require.NoError(t, err)
	}
	assert.Equal(t, []protocol.TopicInfo{
		{ID: "alpha", Type: "t-alpha"},
		{ID: "mid", Type: "t-mid"},
		{ID: "zeta", Type: "t-zeta"},
	}, r.Topics())
}

func TestAttachAndDetach(t *testing.T) {
	r := New()
	_, err := r.Register("blackboard", "object", nil)
	require.NoError(t, err)

	var got []Payload
	_, a, err := r.Attach("blackboard", LocalSubscriber, "A", collect(&got))
	require.NoError(t, err)
	_, b, err := r.Attach("blackboard", RelaySubscriber, "C", collect(&got))
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, 2, r.Count("blackboard"))

	assert.True(t, r.Detach("blackboard", a.ID))
	assert.False(t, r.Detach("blackboard", a.ID))
	assert.Equal(t, 1, r.Count("blackboard"))

	_, _, err = r.Attach("missing", LocalSubscriber, "A", collect(&got))
	assert.True(t, errors.IsUnknownTopic(err))
}

func TestPublishUnknownTopic(t *testing.T) {
	r := New()
	_, err := r.Publish("missing", []byte("x"), "A", false)
	assert.True(t, errors.IsUnknownTopic(err))
}

func TestPublishPrunesUnreachable(t *testing.T) {
	r := New()
	_, err := r.Register("blackboard", "object", nil)
	require.NoError(t, err)

	var got []Payload
	_, _, err = r.Attach("blackboard", LocalSubscriber, "B", collect(&got))
	require.NoError(t, err)
	_, dead, err := r.Attach("blackboard", RelaySubscriber, "A", func(Payload) error {
		return errors.ErrLinkClosed
	})
	require.NoError(t, err)
	_, _, err = r.Attach("blackboard", LocalSubscriber, "B", collect(&got))
	require.NoError(t, err)

	res, err := r.Publish("blackboard", []byte("x"), "B", false)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Delivered)
	require.Len(t, res.Pruned, 1)
	assert.Equal(t, dead.ID, res.Pruned[0].ID)
	assert.Len(t, got, 2)
	assert.Equal(t, 2, r.Count("blackboard"))

	perr := res.Err("blackboard")
	require.Error(t, perr)
	assert.True(t, errors.IsLinkDown(perr))

	var delivery *errors.DeliveryError
	require.True(t, errors.As(perr, &delivery))
	assert.Equal(t, 1, delivery.Failed)

	res, err = r.Publish("blackboard", []byte("y"), "B", false)
	require.NoError(t, err)
	assert.NoError(t, res.Err("blackboard"))
}

func TestLostSubscriberReportedOnce(t *testing.T) {
	r := New()
	topic, err := r.Register("blackboard", "object", nil)
	require.NoError(t, err)

	var got []Payload
	_, _, err = r.Attach("blackboard", LocalSubscriber, "B", collect(&got))
	require.NoError(t, err)
	_, relay, err := r.Attach("blackboard", RelaySubscriber, "A", collect(&got))
	require.NoError(t, err)

	assert.True(t, r.Lose("blackboard", relay.ID))
	assert.False(t, r.Lose("blackboard", relay.ID))
	assert.False(t, r.Lose("missing", relay.ID))
	assert.Equal(t, 1, r.Count("blackboard"))
	assert.Equal(t, 1, topic.Lost())

	res, err := r.Publish("blackboard", []byte("x"), "B", false)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Delivered)
	assert.Equal(t, 1, res.Lost)
	assert.Empty(t, res.Pruned)

	perr := res.Err("blackboard")
	require.Error(t, perr)
	assert.True(t, errors.IsLinkDown(perr))
	assert.Equal(t, 0, topic.Lost())

	res, err = r.Publish("blackboard", []byte("y"), "B", false)
	require.NoError(t, err)
	assert.NoError(t, res.Err("blackboard"))
	assert.Len(t, got, 2)
}

func TestDetachIsNotReportedAsLost(t *testing.T) {
	r := New()
	_, err := r.Register("blackboard", "object", nil)
	require.NoError(t, err)
	_, relay, err := r.Attach("blackboard", RelaySubscriber, "A", func(Payload) error { return nil })
	require.NoError(t, err)

	require.True(t, r.Detach("blackboard", relay.ID))
	res, err := r.Publish("blackboard", []byte("x"), "B", false)
	require.NoError(t, err)
	assert.NoError(t, res.Err("blackboard"))
}

func TestPersistedSlotKeepsLatest(t *testing.T) {
	r := New()
	topic, err := r.Register("blackboard", "object", nil)
	require.NoError(t, err)

	_, ok := topic.Persisted()
	assert.False(t, ok)

	_, err = r.Publish("blackboard", []byte("first"), "C", true)
	require.NoError(t, err)
	_, err = r.Publish("blackboard", []byte("transient"), "C", false)
	require.NoError(t, err)
	_, err = r.Publish("blackboard", []byte("second"), "C", true)
	require.NoError(t, err)

	p, ok := topic.Persisted()
	require.True(t, ok)
	assert.Equal(t, "second", string(p.Data))
	assert.Equal(t, "C", p.Origin)
	assert.True(t, p.Persisted)
}

func TestSeedDoesNotOverwriteNewer(t *testing.T) {
	r := New()
	now := time.Unix(1000, 0)
	r.now = func() time.Time { return now }

	topic, err := r.Register("blackboard", "object", nil)
	require.NoError(t, err)

	assert.True(t, topic.Seed(Payload{Data: []byte("stored"), Time: now.Add(-time.Minute)}))
	p, _ := topic.Persisted()
	assert.Equal(t, "stored", string(p.Data))
	assert.Equal(t, "blackboard", p.Topic)

	_, err = r.Publish("blackboard", []byte("live"), "C", true)
	require.NoError(t, err)
	assert.False(t, topic.Seed(Payload{Data: []byte("older"), Time: now.Add(-time.Second)}))

	p, _ = topic.Persisted()
	assert.Equal(t, "live", string(p.Data))
}
