package httpclient

import (
	"errors"
	"io"
	"net/http"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// These tests intercept requests at the transport, so delivery paths can
// be exercised against external-looking URLs without opening sockets.

func newMockedClient(t *testing.T) (*Client, *httpmock.MockTransport) {
	t.Helper()
	mt := httpmock.NewMockTransport()
	client := New(&Config{Transport: mt})
	t.Cleanup(func() { client.Close() })
	return client, mt
}

func TestDo_MockedTransport(t *testing.T) {
	client, mt := newMockedClient(t)
	mt.RegisterResponder(http.MethodGet, "https://hooks.example.com/health",
		httpmock.NewStringResponder(http.StatusOK, `{"status":"ok"}`))

	req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, "https://hooks.example.com/health", http.NoBody)
	require.NoError(t, err, "failed to create request")

	resp, err := client.Do(t.Context(), req)
	require.NoError(t, err, "request failed")
	defer closeResponseBody(t, resp)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err, "failed to read body")
	assert.JSONEq(t, `{"status":"ok"}`, string(body), "expected mocked body")
	assert.Equal(t, 1, mt.GetTotalCallCount(), "expected exactly one intercepted call")
}

func TestDo_TransportError(t *testing.T) {
	client, mt := newMockedClient(t)
	mt.RegisterResponder(http.MethodPost, "https://hooks.example.com/webhook",
		httpmock.NewErrorResponder(errors.New("connection refused")))

	resp, err := client.Post(t.Context(), "https://hooks.example.com/webhook", "application/json", map[string]string{"event": "test"})
	if resp != nil {
		closeResponseBody(t, resp)
	}
	require.Error(t, err, "expected transport error to surface")
	assert.Contains(t, err.Error(), "connection refused", "expected the responder error")
}

func TestPost_MockedDeliveryBody(t *testing.T) {
	client, mt := newMockedClient(t)

	var delivered []byte
	mt.RegisterResponder(http.MethodPost, "https://hooks.example.com/notify",
		func(req *http.Request) (*http.Response, error) {
			var err error
			delivered, err = io.ReadAll(req.Body)
			if err != nil {
				return nil, err
			}
			assert.Equal(t, "application/json", req.Header.Get("Content-Type"), "expected JSON content type")
			return httpmock.NewStringResponse(http.StatusNoContent, ""), nil
		})

	resp, err := client.Post(t.Context(), "https://hooks.example.com/notify", "", map[string]string{"species": "Sitta europaea"})
	require.NoError(t, err, "post failed")
	defer closeResponseBody(t, resp)

	assert.Equal(t, http.StatusNoContent, resp.StatusCode, "expected status 204")
	assert.JSONEq(t, `{"species":"Sitta europaea"}`, string(delivered), "expected marshaled body")
}
