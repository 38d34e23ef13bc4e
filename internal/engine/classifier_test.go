package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShreyashF130/copit-backend/internal/domain"
)

func envelope(message string) []byte {
	return []byte(`{"entry":[{"changes":[{"value":{"messages":[` + message + `]}}]}]}`)
}

func TestClassifyText(t *testing.T) {
	ev, err := Classify(envelope(`{"from":"919900112233","type":"text","text":{"body":"buy_item_12"}}`))

	require.NoError(t, err)
	require.NotNil(t, ev)
	assert.Equal(t, domain.EventText, ev.Kind)
	assert.Equal(t, "919900112233", ev.Shopper)
	assert.Equal(t, "buy_item_12", ev.Text)
}

func TestClassifyButtonReply(t *testing.T) {
	ev, err := Classify(envelope(`{"from":"919900112233","type":"interactive",
		"interactive":{"type":"button_reply","button_reply":{"id":"pay_cod","title":"Cash on Delivery"}}}`))

	require.NoError(t, err)
	require.NotNil(t, ev)
	assert.Equal(t, domain.EventButton, ev.Kind)
	assert.Equal(t, "pay_cod", ev.Button.ID)
	assert.Equal(t, "Cash on Delivery", ev.Button.Title)
}

func TestClassifyFormReply(t *testing.T) {
	ev, err := Classify(envelope(`{"from":"919900112233","type":"interactive",
		"interactive":{"type":"nfm_reply","nfm_reply":{"response_json":"{\"pincode\":\"560001\",\"house_no\":\"42\"}"}}}`))

	require.NoError(t, err)
	require.NotNil(t, ev)
	assert.Equal(t, domain.EventForm, ev.Kind)
	assert.Equal(t, "560001", ev.Form["pincode"])
	assert.Equal(t, "42", ev.Form["house_no"])
}

func TestClassifyImage(t *testing.T) {
	ev, err := Classify(envelope(`{"from":"919900112233","type":"image","image":{"id":"media-883","caption":"paid"}}`))

	require.NoError(t, err)
	require.NotNil(t, ev)
	assert.Equal(t, domain.EventImage, ev.Kind)
	assert.Equal(t, "media-883", ev.Image.ProviderID)
	assert.Equal(t, "paid", ev.Image.Caption)
}

func TestClassifyStatusOnlyDelivery(t *testing.T) {
	ev, err := Classify([]byte(`{"entry":[{"changes":[{"value":{"statuses":[{"id":"wamid.x","status":"delivered"}]}}]}]}`))

	require.NoError(t, err)
	assert.Nil(t, ev)
}

func TestClassifyUnsupportedType(t *testing.T) {
	ev, err := Classify(envelope(`{"from":"919900112233","type":"audio"}`))

	require.NoError(t, err)
	assert.Nil(t, ev)
}

func TestClassifyEmptyEnvelope(t *testing.T) {
	ev, err := Classify([]byte(`{}`))

	require.NoError(t, err)
	assert.Nil(t, ev)
}

func TestClassifyMalformedBody(t *testing.T) {
	_, err := Classify([]byte(`not json`))
	assert.Error(t, err)
}

func TestClassifyMalformedFormJSON(t *testing.T) {
	_, err := Classify(envelope(`{"from":"919900112233","type":"interactive",
		"interactive":{"type":"nfm_reply","nfm_reply":{"response_json":"oops"}}}`))
	assert.Error(t, err)
}
