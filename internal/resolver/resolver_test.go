package resolver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thinesjs/tag2sha/internal/github"
)

const (
	shaA   = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	shaB   = "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
	shaC   = "cccccccccccccccccccccccccccccccccccccccc"
	tagObj = "dddddddddddddddddddddddddddddddddddddddd"
)

var repo = github.Repository{Owner: "actions", Name: "checkout"}

type fakeGateway struct {
	mu sync.Mutex

	release    string
	releaseErr error
	tags       []string
	tagsErr    error
	refs       map[string]github.Ref
	refErr     error
	tagObjects map[string]string

	calls []string
}

func (f *fakeGateway) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeGateway) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeGateway) LatestRelease(_ context.Context, _ github.Repository) (*github.Release, error) {
	f.record("LatestRelease")
	if f.releaseErr != nil {
		return nil, f.releaseErr
	}
	if f.release == "" {
		return nil, github.ErrNotFound
	}
	return &github.Release{TagName: f.release}, nil
}

func (f *fakeGateway) ListTags(_ context.Context, _ github.Repository) ([]github.Tag, error) {
	f.record("ListTags")
	if f.tagsErr != nil {
		return nil, f.tagsErr
	}
	tags := make([]github.Tag, len(f.tags))
	for i, name := range f.tags {
		tags[i] = github.Tag{Name: name, SHA: shaC, Kind: github.ObjectCommit}
	}
	return tags, nil
}

func (f *fakeGateway) ResolveRef(_ context.Context, _ github.Repository, name string) (*github.Ref, error) {
	f.record("ResolveRef " + name)
	if f.refErr != nil {
		return nil, f.refErr
	}
	ref, ok := f.refs[name]
	if !ok {
		return nil, github.ErrNotFound
	}
	return &ref, nil
}

func (f *fakeGateway) DereferenceTag(_ context.Context, _ github.Repository, sha string) (string, error) {
	f.record("DereferenceTag " + sha)
	commit, ok := f.tagObjects[sha]
	if !ok {
		return "", github.ErrNotFound
	}
	return commit, nil
}

func commitRef(sha string) github.Ref {
	return github.Ref{SHA: sha, Kind: github.ObjectCommit}
}

func TestCommitSpecifierIsNeverResolved(t *testing.T) {
	for _, mode := range []Mode{ModePlain, ModeConvertBranches} {
		t.Run(mode.String(), func(t *testing.T) {
			gw := &fakeGateway{}
			r := New(gw, WithMode(mode))

			res, err := r.Resolve(context.Background(), Reference{Repository: repo, Specifier: shaA, Label: "v4.1.0"})
			require.NoError(t, err)
			assert.False(t, res.Rewritten)
			assert.Equal(t, shaA, res.SHA)
			assert.Equal(t, "v4.1.0", res.Label)
			assert.Empty(t, gw.callLog())
		})
	}
}

func TestFloatingMajorPicksNewestRelease(t *testing.T) {
	gw := &fakeGateway{
		tags: []string{"v4.0.0", "v4.1.0-beta", "v4.1.0", "v3.9.9"},
		refs: map[string]github.Ref{"v4.1.0": commitRef(shaB)},
	}
	r := New(gw)

	res, err := r.Resolve(context.Background(), Reference{Repository: repo, Specifier: "v4"})
	require.NoError(t, err)
	assert.Equal(t, Resolution{SHA: shaB, Label: "v4.1.0", Rewritten: true}, res)
	assert.Equal(t, []string{"ListTags", "ResolveRef v4.1.0"}, gw.callLog())
}

func TestFloatingMajorWithoutMatchKeepsSpecifier(t *testing.T) {
	gw := &fakeGateway{
		tags: []string{"v1.0.0", "v2.0.0"},
		refs: map[string]github.Ref{"v9": commitRef(shaA)},
	}
	r := New(gw)

	res, err := r.Resolve(context.Background(), Reference{Repository: repo, Specifier: "v9"})
	require.NoError(t, err)
	assert.Equal(t, "v9", res.Label)
	assert.Equal(t, shaA, res.SHA)
}

func TestFloatingMajorWithFreeFormTags(t *testing.T) {
	gw := &fakeGateway{
		tags: []string{"v1-latest", "v1-stable", "v2-latest"},
		refs: map[string]github.Ref{"v1-latest": commitRef(shaA)},
	}
	r := New(gw)

	res, err := r.Resolve(context.Background(), Reference{Repository: repo, Specifier: "v1"})
	require.NoError(t, err)
	assert.Equal(t, "v1-latest", res.Label)
}

func TestAnnotatedTagResolvesToCommit(t *testing.T) {
	gw := &fakeGateway{
		refs:       map[string]github.Ref{"v2.0.0": {SHA: tagObj, Kind: github.ObjectTag}},
		tagObjects: map[string]string{tagObj: shaC},
	}
	r := New(gw)

	res, err := r.Resolve(context.Background(), Reference{Repository: repo, Specifier: "v2.0.0"})
	require.NoError(t, err)
	assert.Equal(t, shaC, res.SHA)
	assert.NotEqual(t, tagObj, res.SHA)
	assert.Equal(t, "v2.0.0", res.Label)
}

func TestUpdateToLatestNoOp(t *testing.T) {
	tests := []struct {
		name string
		ref  Reference
	}{
		{name: "exact tag", ref: Reference{Repository: repo, Specifier: "v2.0.0"}},
		{name: "annotated commit", ref: Reference{Repository: repo, Specifier: shaA, Label: " v2.0.0 "}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := &fakeGateway{release: "v2.0.0", refs: map[string]github.Ref{"v2.0.0": commitRef(shaB)}}
			r := New(gw, WithMode(ModeUpdateToLatest))

			res, err := r.Resolve(context.Background(), tt.ref)
			require.NoError(t, err)
			assert.False(t, res.Rewritten)
			assert.Equal(t, []string{"LatestRelease"}, gw.callLog())
		})
	}
}

func TestUpdateToLatestRewrites(t *testing.T) {
	tests := []struct {
		name string
		ref  Reference
	}{
		{name: "older tag", ref: Reference{Repository: repo, Specifier: "v1.0.0"}},
		{name: "commit with older label", ref: Reference{Repository: repo, Specifier: shaA, Label: "v1.0.0"}},
		{name: "commit without label", ref: Reference{Repository: repo, Specifier: shaA}},
		{name: "branch", ref: Reference{Repository: repo, Specifier: "main"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := &fakeGateway{release: "v2.0.0", refs: map[string]github.Ref{"v2.0.0": commitRef(shaB)}}
			r := New(gw, WithMode(ModeUpdateToLatest))

			res, err := r.Resolve(context.Background(), tt.ref)
			require.NoError(t, err)
			assert.Equal(t, Resolution{SHA: shaB, Label: "v2.0.0", Rewritten: true}, res)
		})
	}
}

func TestUpdateToLatestWithoutRelease(t *testing.T) {
	gw := &fakeGateway{}
	r := New(gw, WithMode(ModeUpdateToLatest))

	_, err := r.Resolve(context.Background(), Reference{Repository: repo, Specifier: "v1"})
	require.ErrorIs(t, err, ErrNoReleaseAvailable)

	var rerr *Error
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, repo, rerr.Repository)
	assert.Equal(t, "v1", rerr.Specifier)
}

func TestLatestReleaseFallsBackToTags(t *testing.T) {
	gw := &fakeGateway{
		tags: []string{"nightly", "1.2.0", "v1.10.0", "v1.9.0"},
		refs: map[string]github.Ref{"v1.10.0": commitRef(shaA)},
	}
	r := New(gw, WithMode(ModeUpdateToLatest))

	res, err := r.Resolve(context.Background(), Reference{Repository: repo, Specifier: "v1.9.0"})
	require.NoError(t, err)
	assert.Equal(t, "v1.10.0", res.Label)
	assert.Equal(t, []string{"LatestRelease", "ListTags", "ResolveRef v1.10.0"}, gw.callLog())
}

func TestConvertBranchRoundTrip(t *testing.T) {
	gw := &fakeGateway{
		release: "v2.0.0",
		refs: map[string]github.Ref{
			"v2.0.0": {SHA: tagObj, Kind: github.ObjectTag},
			"main":   commitRef(shaA),
		},
		tagObjects: map[string]string{tagObj: shaB},
	}

	converted, err := New(gw, WithMode(ModeConvertBranches)).
		Resolve(context.Background(), Reference{Repository: repo, Specifier: "main"})
	require.NoError(t, err)
	assert.Equal(t, "v2.0.0", converted.Label)
	assert.Equal(t, shaB, converted.SHA)

	plain, err := New(gw).Resolve(context.Background(), Reference{Repository: repo, Specifier: converted.Label})
	require.NoError(t, err)
	assert.Equal(t, converted.SHA, plain.SHA)
}

func TestConvertBranchWithoutReleaseKeepsBranch(t *testing.T) {
	gw := &fakeGateway{refs: map[string]github.Ref{"master": commitRef(shaA)}}
	r := New(gw, WithMode(ModeConvertBranches))

	res, err := r.Resolve(context.Background(), Reference{Repository: repo, Specifier: "master"})
	require.NoError(t, err)
	assert.Equal(t, Resolution{SHA: shaA, Label: "master", Rewritten: true}, res)
}

func TestPlainModeResolvesBranchAsIs(t *testing.T) {
	gw := &fakeGateway{release: "v2.0.0", refs: map[string]github.Ref{"main": commitRef(shaA)}}
	r := New(gw)

	res, err := r.Resolve(context.Background(), Reference{Repository: repo, Specifier: "main"})
	require.NoError(t, err)
	assert.Equal(t, "main", res.Label)
	assert.NotContains(t, gw.callLog(), "LatestRelease")
}

func TestRefNotFound(t *testing.T) {
	gw := &fakeGateway{}
	r := New(gw)

	_, err := r.Resolve(context.Background(), Reference{Repository: repo, Specifier: "does-not-exist"})
	assert.ErrorIs(t, err, ErrRefNotFound)
	assert.ErrorContains(t, err, "actions/checkout@does-not-exist")
}

func TestTransportErrorsAreTyped(t *testing.T) {
	transport := &github.TransportError{Op: "ref", StatusCode: http.StatusInternalServerError, Body: "boom"}

	tests := []struct {
		name string
		gw   *fakeGateway
		ref  Reference
		mode Mode
	}{
		{name: "resolve ref", gw: &fakeGateway{refErr: transport}, ref: Reference{Repository: repo, Specifier: "v1.0.0"}},
		{name: "list tags", gw: &fakeGateway{tagsErr: transport}, ref: Reference{Repository: repo, Specifier: "v1"}},
		{name: "latest release", gw: &fakeGateway{releaseErr: transport}, ref: Reference{Repository: repo, Specifier: "v1"}, mode: ModeUpdateToLatest},
		{name: "branch conversion", gw: &fakeGateway{releaseErr: transport}, ref: Reference{Repository: repo, Specifier: "main"}, mode: ModeConvertBranches},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.gw, WithMode(tt.mode)).Resolve(context.Background(), tt.ref)
			require.Error(t, err)

			var terr *github.TransportError
			require.ErrorAs(t, err, &terr)
			assert.Equal(t, http.StatusInternalServerError, terr.StatusCode)
			assert.Equal(t, "boom", terr.Body)
		})
	}
}

func TestMalformedCommitIsRejected(t *testing.T) {
	gw := &fakeGateway{refs: map[string]github.Ref{"v1.0.0": commitRef("not-a-sha")}}

	_, err := New(gw).Resolve(context.Background(), Reference{Repository: repo, Specifier: "v1.0.0"})
	assert.ErrorContains(t, err, "malformed commit id")
}

func TestUppercaseCommitIsNormalized(t *testing.T) {
	gw := &fakeGateway{refs: map[string]github.Ref{"v1.0.0": commitRef(strings.ToUpper(shaA))}}

	res, err := New(gw).Resolve(context.Background(), Reference{Repository: repo, Specifier: "v1.0.0"})
	require.NoError(t, err)
	assert.Equal(t, shaA, res.SHA)
}

func TestCacheMemoizesSuccessfulResolutions(t *testing.T) {
	gw := &fakeGateway{refs: map[string]github.Ref{"v1.0.0": commitRef(shaA)}}
	r := New(gw, WithCache())
	ref := Reference{Repository: repo, Specifier: "v1.0.0"}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := r.Resolve(context.Background(), ref)
			assert.NoError(t, err)
			assert.Equal(t, shaA, res.SHA)
		}()
	}
	wg.Wait()

	_, err := r.Resolve(context.Background(), ref)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(gw.callLog()), 8)
	assert.GreaterOrEqual(t, len(gw.callLog()), 1)

	before := len(gw.callLog())
	_, err = r.Resolve(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, before, len(gw.callLog()))
}

func TestCacheDoesNotStoreFailures(t *testing.T) {
	gw := &fakeGateway{}
	r := New(gw, WithCache())
	ref := Reference{Repository: repo, Specifier: "v1.0.0"}

	_, err := r.Resolve(context.Background(), ref)
	require.ErrorIs(t, err, ErrRefNotFound)

	gw.refs = map[string]github.Ref{"v1.0.0": commitRef(shaA)}
	res, err := r.Resolve(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, shaA, res.SHA)
}

func TestMissingRepositoryYieldsTypedErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"Not Found"}`))
	}))
	t.Cleanup(srv.Close)

	client, err := github.NewClient(github.Options{BaseURL: srv.URL})
	require.NoError(t, err)

	tests := []struct {
		mode      Mode
		specifier string
		want      error
	}{
		{ModePlain, "v4", ErrRefNotFound},
		{ModePlain, "v4.1.7", ErrRefNotFound},
		{ModeConvertBranches, "main", ErrRefNotFound},
		{ModeUpdateToLatest, "v1.0.0", ErrNoReleaseAvailable},
	}
	for _, tt := range tests {
		t.Run(tt.mode.String()+"/"+tt.specifier, func(t *testing.T) {
			r := New(client, WithMode(tt.mode))

			_, err := r.Resolve(context.Background(), Reference{Repository: repo, Specifier: tt.specifier})
			require.Error(t, err)

			var resErr *Error
			require.ErrorAs(t, err, &resErr)
			assert.ErrorIs(t, err, tt.want)
			assert.NotErrorIs(t, resErr.Err, github.ErrNotFound)
		})
	}
}

func TestMissingTagObjectIsRefNotFound(t *testing.T) {
	gw := &fakeGateway{
		refs: map[string]github.Ref{"v1.0.0": {SHA: tagObj, Kind: github.ObjectTag}},
	}

	_, err := New(gw).Resolve(context.Background(), Reference{Repository: repo, Specifier: "v1.0.0"})
	assert.ErrorIs(t, err, ErrRefNotFound)
	assert.NotErrorIs(t, err, github.ErrNotFound)
	assert.Equal(t, []string{"ResolveRef v1.0.0", "DereferenceTag " + tagObj}, gw.callLog())
}

func TestFloatingMajorWithMissingTagListKeepsSpecifier(t *testing.T) {
	gw := &fakeGateway{
		tagsErr: github.ErrNotFound,
		refs:    map[string]github.Ref{"v4": commitRef(shaA)},
	}

	res, err := New(gw).Resolve(context.Background(), Reference{Repository: repo, Specifier: "v4"})
	require.NoError(t, err)
	assert.Equal(t, Resolution{SHA: shaA, Label: "v4", Rewritten: true}, res)
}
