package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestExternalIDUnmarshal(t *testing.T) {
	tests := []struct {
		in   string
		want ExternalID
	}{
		{`1234`, "1234"},
		{`"1234"`, "1234"},
		{`"<abc@mail.example>"`, "<abc@mail.example>"},
		{`null`, ""},
	}

	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			var id ExternalID
			require.NoError(t, json.Unmarshal([]byte(tc.in), &id))
			require.Equal(t, tc.want, id)
		})
	}

	var id ExternalID
	require.Error(t, json.Unmarshal([]byte(`{}`), &id))
}

func TestMessageListDecoding(t *testing.T) {
	var msgs []Message
	err := json.Unmarshal([]byte(`[
		{"id": 7, "from": "a@example.com", "subject": "Hola",
		 "attachments": [{"filename": "a.pdf"}, {"filename": "b.png"}]},
		{"id": "8", "from": "b@example.com", "subject": ""}
	]`), &msgs)
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	require.True(t, msgs[0].HasAttachments())
	require.Equal(t, []string{"a.pdf", "b.png"}, msgs[0].AttachmentNames())
	require.False(t, msgs[1].HasAttachments())
	require.Empty(t, msgs[1].AttachmentNames())
}

func TestUIDFromExternalID(t *testing.T) {
	uid, err := UIDFromExternalID("42")
	require.NoError(t, err)
	require.EqualValues(t, 42, uid)

	_, err = UIDFromExternalID("<abc@mail>")
	require.Error(t, err)

	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.Uint32().Draw(rt, "uid")

		var id ExternalID
		data, _ := json.Marshal(n)
		require.NoError(rt, json.Unmarshal(data, &id))

		got, err := UIDFromExternalID(id)
		require.NoError(rt, err)
		require.Equal(rt, n, got)
	})
}
