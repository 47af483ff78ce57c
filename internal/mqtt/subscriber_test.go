package mqtt

import (
	"context"
	"errors"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"

	"printstatus/internal/model"
)

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return QoS }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 1 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

type recordingIngester struct {
	got [][]byte
	err error
}

func (r *recordingIngester) Ingest(_ context.Context, raw []byte) (model.JobState, error) {
	r.got = append(r.got, raw)
	return model.JobState{}, r.err
}

func TestHandlerForwardsPayload(t *testing.T) {
	ing := &recordingIngester{}
	h := Handler(context.Background(), ing, hclog.NewNullLogger())

	h(nil, fakeMessage{topic: DefaultTopic, payload: []byte(`{"topic":"Print Done"}`)})

	assert.Equal(t, [][]byte{[]byte(`{"topic":"Print Done"}`)}, ing.got)
}

func TestHandlerSwallowsRejections(t *testing.T) {
	ing := &recordingIngester{err: errors.New("malformed")}
	h := Handler(context.Background(), ing, hclog.NewNullLogger())

	assert.NotPanics(t, func() {
		h(nil, fakeMessage{topic: DefaultTopic, payload: []byte(`{`)})
	})
	assert.Len(t, ing.got, 1)
}
