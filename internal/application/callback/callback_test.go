package callback

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"novel-orchestrator/internal/config"
)

func payloadAt(at time.Time) []byte {
	return []byte(`{"success":true,"timestamp":"` + at.UTC().Format(time.RFC3339Nano) + `"}`)
}

func TestSigner_SignVerifyRoundTrip(t *testing.T) {
	s := NewSigner("secret", 0)
	at := time.Now().Add(-time.Second)
	payload := payloadAt(at)

	sig, ts, err := s.Sign(payload)
	require.NoError(t, err)
	assert.Regexp(t, `^sha256=[0-9a-f]{64}$`, sig)
	assert.Equal(t, strconv.FormatInt(at.UnixMilli(), 10), ts)
	require.NoError(t, s.Verify(payload, sig, ts))

	assert.ErrorIs(t, s.Verify([]byte(`{"success":false}`), sig, ts), ErrSignatureMismatch)
	assert.ErrorIs(t, NewSigner("other", 0).Verify(payload, sig, ts), ErrSignatureMismatch)
	assert.ErrorIs(t, s.Verify(payload, sig, "not-a-number"), ErrMalformedTimestamp)

	altered := strconv.FormatInt(at.UnixMilli()+1, 10)
	assert.ErrorIs(t, s.Verify(payload, sig, altered), ErrTimestampMismatch)
}

func TestSigner_SignatureCoversPayloadBytesOnly(t *testing.T) {
	s := NewSigner("shared", 0)
	payload := payloadAt(time.Now())

	sig, _, err := s.Sign(payload)
	require.NoError(t, err)

	// 接收方只用共享密钥和原始载荷即可复算签名
	mac := hmac.New(sha256.New, []byte("shared"))
	mac.Write(payload)
	assert.Equal(t, "sha256="+hex.EncodeToString(mac.Sum(nil)), sig)
}

func TestSigner_SignRequiresPayloadTimestamp(t *testing.T) {
	s := NewSigner("secret", 0)
	_, _, err := s.Sign([]byte(`{"success":true}`))
	assert.ErrorIs(t, err, ErrMalformedTimestamp)
	_, _, err = s.Sign([]byte("not json"))
	assert.ErrorIs(t, err, ErrMalformedTimestamp)
}

func TestSigner_SkewWindow(t *testing.T) {
	s := NewSigner("secret", 5*time.Minute)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	check := func(at time.Time) error {
		payload := payloadAt(at)
		sig, ts, err := s.Sign(payload)
		require.NoError(t, err)
		return s.Verify(payload, sig, ts)
	}
	assert.ErrorIs(t, check(now.Add(-6*time.Minute)), ErrStaleTimestamp)
	assert.NoError(t, check(now.Add(-4*time.Minute)))
	assert.ErrorIs(t, check(now.Add(6*time.Minute)), ErrStaleTimestamp)
}

func TestSender_DeliversSignedPayload(t *testing.T) {
	sender := NewSender(&config.CallbackConfig{Secret: "secret"})
	var verifyErr error
	var got Payload
	var gotTS string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		gotTS = r.Header.Get(HeaderTimestamp)
		verifyErr = sender.Signer().Verify(body, r.Header.Get(HeaderSignature), r.Header.Get(HeaderTimestamp))
		_ = json.Unmarshal(body, &got)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	err := sender.Send(context.Background(), srv.URL, Payload{Success: true, Data: map[string]any{"chapter": 3}, RequestID: "r1"})
	require.NoError(t, err)
	assert.NoError(t, verifyErr)
	assert.True(t, got.Success)
	assert.Equal(t, "r1", got.RequestID)
	assert.False(t, got.Timestamp.IsZero())
	assert.Equal(t, strconv.FormatInt(got.Timestamp.UnixMilli(), 10), gotTS)
}

func TestSender_NonSuccessStatus(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := NewSender(&config.CallbackConfig{Secret: "s"}).Send(context.Background(), srv.URL, Payload{Error: "boom"})
	assert.ErrorIs(t, err, ErrDeliveryFailed)
	assert.Equal(t, 1, calls)
}
