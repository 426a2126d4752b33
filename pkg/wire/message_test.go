package wire

import (
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBind(t *testing.T) {
	tests := []struct {
		name    string
		frame   string
		want    string
		wantErr bool
	}{
		{name: "plain", frame: "bind abc", want: "abc"},
		{name: "surrounding whitespace", frame: "  bind 123 \n", want: "123"},
		{name: "extra spaces before id", frame: "bind   x-1", want: "x-1"},
		{name: "missing id", frame: "bind", wantErr: true},
		{name: "blank id", frame: "bind   ", wantErr: true},
		{name: "two ids", frame: "bind a b", wantErr: true},
		{name: "other verb", frame: "bound abc", wantErr: true},
		{name: "upper case verb", frame: "BIND abc", wantErr: true},
		{name: "empty", frame: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseBind(tt.frame)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrNotBind)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatFrames(t *testing.T) {
	assert.Equal(t, "bind 42", Bind("42"))
	assert.Equal(t, "bound 42", Bound("42"))
	assert.Equal(t, "ping 42", Ping("42"))
}

func TestClassify(t *testing.T) {
	kind, id := Classify("bound 7")
	assert.Equal(t, FrameBound, kind)
	assert.Equal(t, "7", id)

	kind, id = Classify("ping 7")
	assert.Equal(t, FramePing, kind)
	assert.Equal(t, "7", id)

	kind, id = Classify(`{"resourceType":"Patient","id":"1"}`)
	assert.Equal(t, FramePayload, kind)
	assert.Empty(t, id)

	kind, _ = Classify("<Patient xmlns=\"http://hl7.org/fhir\"><id value=\"1\"/></Patient>")
	assert.Equal(t, FramePayload, kind)
}

func TestCloseReasonCodes(t *testing.T) {
	assert.Equal(t, websocket.CloseUnsupportedData, CloseReasonCannotAccept.Code())
	assert.Equal(t, websocket.ClosePolicyViolation, CloseReasonPolicyViolated.Code())
	assert.Equal(t, websocket.CloseNormalClosure, CloseReasonNormal.Code())
	assert.Equal(t, websocket.CloseGoingAway, CloseReasonGoingAway.Code())

	for _, r := range []CloseReason{CloseReasonNormal, CloseReasonCannotAccept, CloseReasonPolicyViolated, CloseReasonGoingAway} {
		assert.Equal(t, r, ReasonFromCode(r.Code()), r.String())
	}
	assert.Equal(t, "cannot accept", CloseReasonCannotAccept.String())
	assert.Equal(t, "policy violated", CloseReasonPolicyViolated.String())
}
