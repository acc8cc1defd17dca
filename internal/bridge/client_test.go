package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingTransport captures sent requests so tests can answer them by hand.
type recordingTransport struct {
	mu       sync.Mutex
	requests []Request
	sendErr  error
}

func (t *recordingTransport) Send(req Request) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sendErr != nil {
		return t.sendErr
	}
	t.requests = append(t.requests, req)
	return nil
}

func (t *recordingTransport) last() Request {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.requests[len(t.requests)-1]
}

// waitForRequests blocks until the transport has observed n requests.
func waitForRequests(t *recordingTransport, n int) {
	for {
		t.mu.Lock()
		got := len(t.requests)
		t.mu.Unlock()
		if got >= n {
			return
		}
		time.Sleep(time.Millisecond)
	}
}

// echoTransport answers every request immediately with its payload.
type echoTransport struct {
	client *Client
}

func (t *echoTransport) Send(req Request) error {
	go t.client.HandleResponse(Response{
		CallbackID: req.CallbackID,
		Status:     StatusOK,
		Payload:    req.Payload,
	})
	return nil
}

func TestCall_RoundTrip(t *testing.T) {
	transport := &echoTransport{}
	c := NewClient(transport)
	transport.client = c

	payload, err := c.Call(context.Background(), OpGetRecipe, map[string]string{"uuid": "r1"})

	require.NoError(t, err)
	var decoded map[string]string
	require.NoError(t, json.Unmarshal(payload, &decoded))
	assert.Equal(t, "r1", decoded["uuid"])
}

func TestCall_CallbackIDShape(t *testing.T) {
	transport := &recordingTransport{}
	c := NewClient(transport, WithTimeout(50*time.Millisecond))

	c.Call(context.Background(), OpInitialise, nil)

	req := transport.last()
	assert.True(t, strings.HasPrefix(req.CallbackID, "storage-"),
		"callback id %q should carry the storage- prefix", req.CallbackID)
	assert.Equal(t, OpInitialise, req.Op)
	assert.Nil(t, req.Payload)
}

func TestCall_OutOfOrderResponses(t *testing.T) {
	transport := &recordingTransport{}
	c := NewClient(transport, WithTimeout(2*time.Second))

	type outcome struct {
		payload json.RawMessage
		err     error
	}

	first := make(chan outcome, 1)
	second := make(chan outcome, 1)

	go func() {
		p, err := c.Call(context.Background(), OpGetRecipe, map[string]string{"n": "1"})
		first <- outcome{p, err}
	}()
	go func() {
		p, err := c.Call(context.Background(), OpGetRecipe, map[string]string{"n": "2"})
		second <- outcome{p, err}
	}()

	// Wait for both requests to land, then answer them in reverse order.
	require.Eventually(t, func() bool {
		transport.mu.Lock()
		defer transport.mu.Unlock()
		return len(transport.requests) == 2
	}, time.Second, 5*time.Millisecond)

	transport.mu.Lock()
	reqs := append([]Request(nil), transport.requests...)
	transport.mu.Unlock()

	for i := len(reqs) - 1; i >= 0; i-- {
		c.HandleResponse(Response{
			CallbackID: reqs[i].CallbackID,
			Status:     StatusOK,
			Payload:    reqs[i].Payload,
		})
	}

	// Each call gets back exactly the payload it sent, despite the reversed
	// delivery order.
	for _, ch := range []chan outcome{first, second} {
		out := <-ch
		require.NoError(t, out.err)
		var decoded map[string]string
		require.NoError(t, json.Unmarshal(out.payload, &decoded))

		var sent map[string]string
		matched := false
		for _, req := range reqs {
			require.NoError(t, json.Unmarshal(req.Payload, &sent))
			if sent["n"] == decoded["n"] {
				matched = true
				break
			}
		}
		assert.True(t, matched, "response %v matches no request", decoded)
	}
}

func TestCall_Timeout(t *testing.T) {
	transport := &recordingTransport{}
	c := NewClient(transport, WithTimeout(20*time.Millisecond))

	_, err := c.Call(context.Background(), OpListRecipes, nil)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")
}

func TestCall_ContextCancellation(t *testing.T) {
	transport := &recordingTransport{}
	c := NewClient(transport, WithTimeout(time.Minute))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := c.Call(ctx, OpListRecipes, nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCall_HostError(t *testing.T) {
	transport := &recordingTransport{}
	c := NewClient(transport, WithTimeout(time.Second))

	go func() {
		waitForRequests(transport, 1)
		c.HandleResponse(Response{
			CallbackID: transport.last().CallbackID,
			Status:     StatusError,
			Message:    "record is gone",
		})
	}()

	_, err := c.Call(context.Background(), OpGetRecipe, map[string]string{"uuid": "r1"})

	var hostErr *HostError
	require.ErrorAs(t, err, &hostErr)
	assert.Equal(t, OpGetRecipe, hostErr.Op)
	assert.Equal(t, "record is gone", hostErr.Message)
}

func TestCall_HostErrorWithoutMessage(t *testing.T) {
	transport := &recordingTransport{}
	c := NewClient(transport, WithTimeout(time.Second))

	go func() {
		waitForRequests(transport, 1)
		c.HandleResponse(Response{
			CallbackID: transport.last().CallbackID,
			Status:     StatusError,
		})
	}()

	_, err := c.Call(context.Background(), OpGetRecipe, nil)

	var hostErr *HostError
	require.ErrorAs(t, err, &hostErr)
	assert.Equal(t, "unknown bridge error", hostErr.Message)
}

func TestCall_SendFailure(t *testing.T) {
	transport := &recordingTransport{sendErr: errors.New("pipe broken")}
	c := NewClient(transport)

	_, err := c.Call(context.Background(), OpInitialise, nil)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "pipe broken")
}

func TestHandleResponse_UnknownCallbackDropped(t *testing.T) {
	transport := &recordingTransport{}
	c := NewClient(transport)

	// A late answer for a call that already timed out must not panic or leak.
	c.HandleResponse(Response{CallbackID: "storage-0-gone", Status: StatusOK})
}

func TestClose_RejectsPendingAndNewCalls(t *testing.T) {
	transport := &recordingTransport{}
	c := NewClient(transport, WithTimeout(time.Minute))

	done := make(chan error, 1)
	go func() {
		_, err := c.Call(context.Background(), OpListRecipes, nil)
		done <- err
	}()

	require.Eventually(t, func() bool {
		transport.mu.Lock()
		defer transport.mu.Unlock()
		return len(transport.requests) == 1
	}, time.Second, 5*time.Millisecond)

	c.Close()

	err := <-done
	var hostErr *HostError
	require.ErrorAs(t, err, &hostErr)
	assert.Equal(t, "client closed", hostErr.Message)

	_, err = c.Call(context.Background(), OpListRecipes, nil)
	assert.ErrorIs(t, err, ErrClosed)
}
