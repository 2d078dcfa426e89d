package lifecycle

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNext(t *testing.T) {
	tests := []struct {
		from    Status
		event   Event
		to      Status
		stamp   Stamp
		wantErr bool
	}{
		{StatusActive, EventOfferSent, StatusPending, StampNone, false},
		{StatusRejected, EventOfferSent, StatusPending, StampNone, false},
		{StatusPending, EventOfferSent, "", StampNone, true},
		{StatusActive, EventDonorAccepts, StatusMatched, StampMatched, false},
		{StatusPending, EventDonorAccepts, StatusMatched, StampMatched, false},
		{StatusRejected, EventDonorAccepts, StatusMatched, StampMatched, false},
		{StatusMatched, EventDonorAccepts, "", StampNone, true},
		{StatusPending, EventDonorRejects, StatusRejected, StampNone, false},
		{StatusActive, EventDonorRejects, "", StampNone, true},
		{StatusRejected, EventDonorRejects, "", StampNone, true},
		{StatusMatched, EventDonorRejects, "", StampNone, true},
		{StatusActive, EventMarkMatched, StatusMatched, StampMatched, false},
		{StatusPending, EventMarkMatched, "", StampNone, true},
		{StatusMatched, EventMarkComplete, StatusCompleted, StampCompleted, false},
		{StatusActive, EventMarkComplete, StatusCompleted, StampCompleted, false},
		{StatusCompleted, EventMarkComplete, "", StampNone, true},
		{StatusRejected, EventMarkComplete, "", StampNone, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"/"+string(tt.event), func(t *testing.T) {
			tr, err := Next(tt.from, tt.event)
			if tt.wantErr {
				var invalid *ErrInvalidTransition
				require.True(t, errors.As(err, &invalid))
				assert.Equal(t, tt.from, invalid.From)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.to, tr.To)
			assert.Equal(t, tt.stamp, tr.Stamp)
		})
	}
}

func TestCompletedIsTerminal(t *testing.T) {
	for _, ev := range []Event{EventOfferSent, EventDonorAccepts, EventDonorRejects, EventMarkMatched, EventMarkComplete} {
		_, err := Next(StatusCompleted, ev)
		assert.Error(t, err, ev)
	}
}

func TestNothingReturnsToActive(t *testing.T) {
	for ev, tr := range table {
		assert.NotEqual(t, StatusActive, tr.To, ev)
	}
}

func TestParseStatus(t *testing.T) {
	st, err := ParseStatus("matched")
	require.NoError(t, err)
	assert.Equal(t, StatusMatched, st)

	_, err = ParseStatus("Matched")
	assert.Error(t, err)
}

func TestStatusScan(t *testing.T) {
	var st Status
	require.NoError(t, st.Scan("pending"))
	assert.Equal(t, StatusPending, st)

	require.NoError(t, st.Scan([]byte("completed")))
	assert.Equal(t, StatusCompleted, st)

	assert.Error(t, st.Scan("archived"))
	assert.Equal(t, StatusCompleted, st, "failed scan leaves the value alone")
	assert.Error(t, st.Scan(42))
}

func TestParseResponse(t *testing.T) {
	for _, in := range []string{"accepted", "rejected"} {
		r, err := ParseResponse(in)
		require.NoError(t, err)
		assert.Equal(t, in, r.String())
	}

	for _, in := range []string{"pending", "", "yes"} {
		_, err := ParseResponse(in)
		assert.Error(t, err, in)
	}
}

func TestResponseLabel(t *testing.T) {
	assert.Equal(t, "Accepted", ResponseAccepted.Label())
	assert.Equal(t, "Rejected", ResponseRejected.Label())
	assert.Equal(t, EventDonorAccepts, EventFor(ResponseAccepted))
	assert.Equal(t, EventDonorRejects, EventFor(ResponseRejected))
}

func TestOpen(t *testing.T) {
	assert.True(t, StatusActive.Open())
	assert.True(t, StatusPending.Open())
	assert.True(t, StatusRejected.Open())
	assert.False(t, StatusMatched.Open())
	assert.False(t, StatusCompleted.Open())
}
