package workitem

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode(t *testing.T) {
	msg, err := Encode(Item{JobID: "6f1c", ItemKey: "00000002"})
	require.NoError(t, err)

	assert.Equal(t, "6f1c-00000002", msg.ID)
	assert.JSONEq(t, `{"job_id":"6f1c","item_key":"00000002"}`, string(msg.Body))
}

func TestEncode_MissingFields(t *testing.T) {
	_, err := Encode(Item{JobID: "6f1c"})
	assert.ErrorIs(t, err, ErrMalformedMessage)
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    Item
		wantErr error
	}{
		{
			name: "valid body",
			body: `{"job_id":"6f1c","item_key":"01001000"}`,
			want: Item{JobID: "6f1c", ItemKey: "01001000"},
		},
		{
			name:    "empty body",
			body:    "",
			wantErr: ErrEmptyMessage,
		},
		{
			name:    "whitespace body",
			body:    "  \n",
			wantErr: ErrEmptyMessage,
		},
		{
			name:    "not json",
			body:    "{oops",
			wantErr: ErrMalformedMessage,
		},
		{
			name:    "missing item key",
			body:    `{"job_id":"6f1c"}`,
			wantErr: ErrMalformedMessage,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode([]byte(tt.body))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecode_RoundTripsEncode(t *testing.T) {
	item := Item{JobID: "a", ItemKey: "99999999"}
	msg, err := Encode(item)
	require.NoError(t, err)

	got, err := Decode(msg.Body)
	require.NoError(t, err)
	assert.Equal(t, item, got)
}
