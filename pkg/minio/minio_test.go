package minio

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakePresigner struct {
	calls []string
	err   error
}

func (f *fakePresigner) PresignedGetObject(_ context.Context, bucket, object string, expiry time.Duration, _ url.Values) (*url.URL, error) {
	f.calls = append(f.calls, bucket+"/"+object)
	if f.err != nil {
		return nil, f.err
	}
	return url.Parse("https://files.local/" + bucket + "/" + object + "?X-Amz-Expires=" + expiry.String())
}

func TestResolveURLPresignsObjectKeys(t *testing.T) {
	fp := &fakePresigner{}
	s := newSigner(fp, "content", time.Minute)

	got, err := s.ResolveURL(context.Background(), "/campaigns/1/video.mp4")
	require.NoError(t, err)
	require.Contains(t, got, "https://files.local/content/campaigns/1/video.mp4")
	require.Equal(t, []string{"content/campaigns/1/video.mp4"}, fp.calls)
}

func TestResolveURLPassesThroughAbsoluteURLs(t *testing.T) {
	fp := &fakePresigner{}
	s := newSigner(fp, "content", 0)

	got, err := s.ResolveURL(context.Background(), "https://cdn.example.com/a.jpg")
	require.NoError(t, err)
	require.Equal(t, "https://cdn.example.com/a.jpg", got)
	require.Empty(t, fp.calls)
	require.Equal(t, 15*time.Minute, s.expiry)
}

func TestResolveURLPropagatesError(t *testing.T) {
	s := newSigner(&fakePresigner{err: errors.New("boom")}, "content", time.Minute)
	_, err := s.ResolveURL(context.Background(), "a.jpg")
	require.Error(t, err)
}
