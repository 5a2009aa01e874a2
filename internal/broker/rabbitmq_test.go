package broker

import (
	"encoding/json"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/record-sync/internal/models"
)

func TestToDelivery(t *testing.T) {
	job := models.NewPersistenceJob(models.RecordTypeCampaign, []json.RawMessage{
		json.RawMessage(`{"id":1}`),
	})
	body, err := json.Marshal(job)
	require.NoError(t, err)

	d, err := toDelivery(amqp.Delivery{Body: body}, func() {})
	require.NoError(t, err)
	assert.Equal(t, job.ID, d.Job.ID)
	assert.Equal(t, models.RecordTypeCampaign, d.Job.Type)
	assert.JSONEq(t, `{"id":1}`, string(d.Job.Records[0]))
	assert.NotNil(t, d.Ack)
}

func TestToDelivery_Rejects(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", `<xml/>`},
		{"unknown type", `{"id":"x","type":"order","records":[]}`},
		{"missing type", `{"id":"x","records":[]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := toDelivery(amqp.Delivery{Body: []byte(tt.body)}, func() {})
			assert.Error(t, err)
		})
	}
}

type recordingAcknowledger struct {
	acks int
}

func (a *recordingAcknowledger) Ack(tag uint64, multiple bool) error {
	a.acks++
	return nil
}

func (a *recordingAcknowledger) Nack(tag uint64, multiple bool, requeue bool) error { return nil }

func (a *recordingAcknowledger) Reject(tag uint64, requeue bool) error { return nil }

func TestToDelivery_AckReleasesOnce(t *testing.T) {
	body, err := json.Marshal(models.NewPersistenceJob(models.RecordTypeCustomer, nil))
	require.NoError(t, err)

	ack := &recordingAcknowledger{}
	released := 0
	d, err := toDelivery(amqp.Delivery{Acknowledger: ack, DeliveryTag: 3, Body: body}, func() { released++ })
	require.NoError(t, err)
	assert.Equal(t, 0, released)

	require.NoError(t, d.Ack())
	_ = d.Ack()

	assert.Equal(t, 2, ack.acks)
	assert.Equal(t, 1, released)
}
