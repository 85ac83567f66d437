package artifact

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/uicheck/pkg/logging"
)

type mockSink struct {
	mock.Mock
}

func (m *mockSink) Attach(name, mimeType string, data []byte) error {
	args := m.Called(name, mimeType, data)
	return args.Error(0)
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		mime string
		want Kind
	}{
		{MIMEPNG, KindScreenshot},
		{MIMEZip, KindTrace},
		{MIMEHTML, KindDOMSnapshot},
		{MIMEText, KindLog},
		{"video/webm", KindOther},
	}

	for _, tt := range tests {
		t.Run(tt.mime, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.mime))
			assert.Equal(t, tt.want, New("x", tt.mime, "w", nil).Kind())
		})
	}
}

func TestMultiSink_AttemptsEverySink(t *testing.T) {
	data := []byte("png")

	failing := &mockSink{}
	failing.On("Attach", "shot.png", MIMEPNG, data).Return(errors.New("disk full")).Once()

	ok := &mockSink{}
	ok.On("Attach", "shot.png", MIMEPNG, data).Return(nil).Once()

	err := MultiSink{failing, nil, ok}.Attach("shot.png", MIMEPNG, data)
	assert.ErrorContains(t, err, "disk full")

	failing.AssertExpectations(t)
	ok.AssertExpectations(t)
}

func TestMultiSink_Empty(t *testing.T) {
	assert.NoError(t, MultiSink{}.Attach("a", MIMEText, nil))
}

func TestMemorySink(t *testing.T) {
	sink := NewMemorySink()

	data := []byte("trace")
	require.NoError(t, sink.Attach("w1-trace.zip", MIMEZip, data))
	require.NoError(t, sink.Attach("failure.log", MIMEText, []byte("boom")))
	data[0] = 'X'

	all := sink.Artifacts()
	require.Len(t, all, 2)
	assert.Equal(t, "trace", string(all[0].Data), "sink must copy payloads")
	assert.Equal(t, 5, all[0].Size())
	assert.False(t, all[0].CreatedAt.IsZero())

	traces := sink.ByKind(KindTrace)
	require.Len(t, traces, 1)
	assert.Equal(t, "w1-trace.zip", traces[0].Name)

	assert.Error(t, sink.Attach("", MIMEText, nil))

	sink.Reset()
	assert.Empty(t, sink.Artifacts())
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	sink := LogSink{Logger: logging.New(&buf, "artifact")}

	require.NoError(t, sink.Attach("login.png", MIMEPNG, []byte{1, 2, 3}))
	assert.Contains(t, buf.String(), `attached screenshot artifact "login.png" (image/png, 3 bytes)`)

	assert.NoError(t, LogSink{}.Attach("nil-logger", MIMEText, nil))
}

func TestSinkFunc(t *testing.T) {
	var got string
	sink := SinkFunc(func(name, _ string, _ []byte) error {
		got = name
		return nil
	})
	require.NoError(t, sink.Attach("called", MIMEText, nil))
	assert.Equal(t, "called", got)
}
