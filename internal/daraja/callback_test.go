package daraja

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const successCallbackJSON = `{
  "Body": {
    "stkCallback": {
      "MerchantRequestID": "29115-34620561-1",
      "CheckoutRequestID": "ws_CO_191220191020363925",
      "ResultCode": 0,
      "ResultDesc": "The service request is processed successfully.",
      "CallbackMetadata": {
        "Item": [
          {"Name": "Amount", "Value": 1360.00},
          {"Name": "MpesaReceiptNumber", "Value": "NLJ7RT61SV"},
          {"Name": "TransactionDate", "Value": 20191219102115},
          {"Name": "PhoneNumber", "Value": 254708374149}
        ]
      }
    }
  }
}`

const failureCallbackJSON = `{
  "Body": {
    "stkCallback": {
      "MerchantRequestID": "29115-34620561-1",
      "CheckoutRequestID": "ws_CO_191220191020363925",
      "ResultCode": 1032,
      "ResultDesc": "Request cancelled by user"
    }
  }
}`

func TestCallbackMetadata(t *testing.T) {
	var env CallbackEnvelope
	require.NoError(t, json.Unmarshal([]byte(successCallbackJSON), &env))

	cb := env.Body.StkCallback
	assert.Equal(t, "ws_CO_191220191020363925", cb.CheckoutRequestID)
	assert.Equal(t, 0, cb.ResultCode)

	meta := cb.Metadata()
	assert.Equal(t, "NLJ7RT61SV", meta.ReceiptNumber)
	assert.True(t, meta.HasAmount)
	assert.Equal(t, int64(1360), meta.Amount)
	require.NotNil(t, meta.TransactionDate)
	want := time.Date(2019, 12, 19, 10, 21, 15, 0, gatewayTZ)
	assert.True(t, meta.TransactionDate.Equal(want))
}

func TestCallbackMetadataAbsentOnFailure(t *testing.T) {
	var env CallbackEnvelope
	require.NoError(t, json.Unmarshal([]byte(failureCallbackJSON), &env))

	cb := env.Body.StkCallback
	assert.Equal(t, 1032, cb.ResultCode)

	meta := cb.Metadata()
	assert.False(t, meta.HasAmount)
	assert.Empty(t, meta.ReceiptNumber)
	assert.Nil(t, meta.TransactionDate)
}

func TestCallbackMetadataStringValues(t *testing.T) {
	cb := StkCallback{
		CheckoutRequestID: "ws_CO_1",
		CallbackMetadata: &CallbackMetadata{Item: []MetadataItem{
			{Name: "Amount", Value: "1360"},
			{Name: "TransactionDate", Value: "20250901143000"},
		}},
	}

	meta := cb.Metadata()
	assert.True(t, meta.HasAmount)
	assert.Equal(t, int64(1360), meta.Amount)
	require.NotNil(t, meta.TransactionDate)
	assert.Equal(t, 14, meta.TransactionDate.Hour())
}

func TestCallbackMetadataTolerantOfJunk(t *testing.T) {
	cb := StkCallback{
		CallbackMetadata: &CallbackMetadata{Item: []MetadataItem{
			{Name: "Amount", Value: true},
			{Name: "TransactionDate", Value: "not-a-date"},
			{Name: "MpesaReceiptNumber"},
		}},
	}

	meta := cb.Metadata()
	assert.False(t, meta.HasAmount)
	assert.Nil(t, meta.TransactionDate)
	assert.Empty(t, meta.ReceiptNumber)
}

func TestAcks(t *testing.T) {
	assert.Equal(t, Ack{ResultCode: 0, ResultDesc: "Accepted"}, AckAccepted())
	assert.Equal(t, Ack{ResultCode: 1, ResultDesc: "Invalid callback data"}, AckError("Invalid callback data"))
}
