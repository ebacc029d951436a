package service_test

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aussiebroadwan/trustcore/internal/trust/kv"
	kvredis "github.com/aussiebroadwan/trustcore/internal/trust/kv/drivers/redis"
	"github.com/aussiebroadwan/trustcore/internal/trust/service"
	"github.com/aussiebroadwan/trustcore/pkg/paysdk"
	"github.com/prometheus/client_golang/prometheus/testutil"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type signatureFixture struct {
	verifier *service.SignatureVerifier
	nonces   *service.NonceStore
	clock    *testClock
	apiKey   string
	secret   string
}

func newSignatureFixture(t *testing.T) *signatureFixture {
	t.Helper()
	clock := newTestClock(time.Unix(1700000000, 0))
	st := newTestStore(t)
	cipher := newTestCipher(t)

	keys := &service.APIKeyService{Store: st, Cipher: cipher, Now: clock.Now}
	apiKey, secret, err := keys.Create(context.Background(), "merchant-1")
	require.NoError(t, err)

	nonces := &service.NonceStore{KV: newMemoryKV(clock)}
	return &signatureFixture{
		verifier: &service.SignatureVerifier{
			Store:  st,
			Cipher: cipher,
			Nonces: nonces,
			Skew:   5 * time.Minute,
			Now:    clock.Now,
		},
		nonces: nonces,
		clock:  clock,
		apiKey: apiKey,
		secret: secret,
	}
}

func (f *signatureFixture) signed(ts time.Time, nonce, body string) service.SignedRequest {
	canonical := paysdk.CanonicalMessage(ts.Unix(), nonce, "POST", "/v1/payments/check", []byte(body))
	return service.SignedRequest{
		APIKey:    f.apiKey,
		Timestamp: strconv.FormatInt(ts.Unix(), 10),
		Nonce:     nonce,
		Method:    "POST",
		Path:      "/v1/payments/check",
		Body:      []byte(body),
		Signature: paysdk.Sign(f.secret, canonical),
	}
}

func TestSignatureVerifySucceedsOncePerNonce(t *testing.T) {
	ctx := context.Background()
	f := newSignatureFixture(t)
	req := f.signed(f.clock.Now(), "nonce-1", `{"amount_cents":100}`)

	key, err := f.verifier.Verify(ctx, req)
	require.NoError(t, err)
	require.Equal(t, "merchant-1", key.MerchantID)

	_, err = f.verifier.Verify(ctx, req)
	require.ErrorIs(t, err, service.ErrReplayedNonce)
}

func TestConcurrentSignedRequestExactlyOneWins(t *testing.T) {
	drivers := []struct {
		name string
		kv   func(t *testing.T, clock *testClock) kv.Store
	}{
		{"memory", func(_ *testing.T, clock *testClock) kv.Store { return newMemoryKV(clock) }},
		{"redis", func(t *testing.T, _ *testClock) kv.Store {
			m := miniredis.RunT(t)
			return kvredis.New(goredis.NewClient(&goredis.Options{Addr: m.Addr()}))
		}},
	}

	for _, d := range drivers {
		t.Run(d.name, func(t *testing.T) {
			ctx := context.Background()
			f := newSignatureFixture(t)
			f.verifier.Nonces = &service.NonceStore{KV: d.kv(t, f.clock)}
			req := f.signed(f.clock.Now(), "nonce-race", `{"amount_cents":4200}`)

			const n = 20
			var (
				wg       sync.WaitGroup
				mu       sync.Mutex
				wins     int
				replayed int
				start    = make(chan struct{})
			)
			for range n {
				wg.Add(1)
				go func() {
					defer wg.Done()
					<-start
					_, err := f.verifier.Verify(ctx, req)
					mu.Lock()
					defer mu.Unlock()
					if err == nil {
						wins++
						return
					}
					assert.ErrorIs(t, err, service.ErrReplayedNonce)
					replayed++
				}()
			}
			close(start)
			wg.Wait()

			require.Equal(t, 1, wins)
			require.Equal(t, n-1, replayed)
		})
	}
}

func TestSignatureVerifyRejectsSkew(t *testing.T) {
	ctx := context.Background()
	f := newSignatureFixture(t)

	for _, offset := range []time.Duration{-5*time.Minute - time.Second, 5*time.Minute + time.Second, -time.Hour} {
		t.Run(offset.String(), func(t *testing.T) {
			req := f.signed(f.clock.Now().Add(offset), "skew-"+offset.String(), "")
			_, err := f.verifier.Verify(ctx, req)
			require.ErrorIs(t, err, service.ErrTimestampSkew)
		})
	}

	t.Run("edge of window is accepted", func(t *testing.T) {
		req := f.signed(f.clock.Now().Add(-5*time.Minute), "edge", "")
		_, err := f.verifier.Verify(ctx, req)
		require.NoError(t, err)
	})
}

func TestSignatureFailureDoesNotConsumeNonce(t *testing.T) {
	ctx := context.Background()
	f := newSignatureFixture(t)

	good := f.signed(f.clock.Now(), "retry-me", "body")
	bad := good
	bad.Signature = paysdk.Sign("wrong secret", "whatever")

	_, err := f.verifier.Verify(ctx, bad)
	require.ErrorIs(t, err, service.ErrInvalidSignature)

	seen, err := f.nonces.Seen(ctx, f.apiKey, "retry-me")
	require.NoError(t, err)
	require.False(t, seen)

	_, err = f.verifier.Verify(ctx, good)
	require.NoError(t, err)
}

func TestSignatureRejections(t *testing.T) {
	ctx := context.Background()
	f := newSignatureFixture(t)
	now := f.clock.Now()

	cases := []struct {
		name   string
		mutate func(r *service.SignedRequest)
		want   error
	}{
		{"tampered body", func(r *service.SignedRequest) { r.Body = []byte("other") }, service.ErrInvalidSignature},
		{"tampered path", func(r *service.SignedRequest) { r.Path = "/v1/other" }, service.ErrInvalidSignature},
		{"unknown key", func(r *service.SignedRequest) { r.APIKey = "ak_nope" }, service.ErrUnknownAPIKey},
		{"missing nonce", func(r *service.SignedRequest) { r.Nonce = "" }, service.ErrMalformedRequest},
		{"non numeric timestamp", func(r *service.SignedRequest) { r.Timestamp = "yesterday" }, service.ErrMalformedRequest},
		{"padded timestamp", func(r *service.SignedRequest) { r.Timestamp = "0" + r.Timestamp }, service.ErrMalformedRequest},
		{"nonce with separator", func(r *service.SignedRequest) { r.Nonce = "a.b" }, service.ErrMalformedRequest},
	}
	for i, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := f.signed(now, "case-"+strconv.Itoa(i), "body")
			tc.mutate(&req)
			_, err := f.verifier.Verify(ctx, req)
			require.ErrorIs(t, err, tc.want)
		})
	}
}

func TestSignatureRevokedKey(t *testing.T) {
	ctx := context.Background()
	f := newSignatureFixture(t)

	keys := &service.APIKeyService{Store: f.verifier.Store, Cipher: f.verifier.Cipher}
	require.NoError(t, keys.Revoke(ctx, f.apiKey))
	require.ErrorIs(t, keys.Revoke(ctx, f.apiKey), service.ErrAPIKeyNotFound)

	_, err := f.verifier.Verify(ctx, f.signed(f.clock.Now(), "n", ""))
	require.ErrorIs(t, err, service.ErrUnknownAPIKey)
}

func TestSignatureFailsClosedWhenNonceStoreDown(t *testing.T) {
	ctx := context.Background()
	f := newSignatureFixture(t)
	f.verifier.Nonces = &service.NonceStore{KV: downKV{}}

	_, err := f.verifier.Verify(ctx, f.signed(f.clock.Now(), "n", ""))
	require.ErrorIs(t, err, service.ErrStorageUnavailable)
}

func TestSignatureMetrics(t *testing.T) {
	ctx := context.Background()
	f := newSignatureFixture(t)
	before := testutil.ToFloat64(service.SignatureVerifications.WithLabelValues("replay"))

	req := f.signed(f.clock.Now(), "metric", "")
	_, err := f.verifier.Verify(ctx, req)
	require.NoError(t, err)
	_, err = f.verifier.Verify(ctx, req)
	require.Error(t, err)

	after := testutil.ToFloat64(service.SignatureVerifications.WithLabelValues("replay"))
	require.Equal(t, before+1, after)
}

func TestNonceTTLCoversSkewWindow(t *testing.T) {
	v := &service.SignatureVerifier{Skew: 5 * time.Minute, NonceMargin: time.Minute}
	require.Equal(t, 11*time.Minute, v.NonceTTL())
}
