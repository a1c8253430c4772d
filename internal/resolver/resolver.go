package resolver

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gobwas/glob"
	slogcontext "github.com/veqryn/slog-context"

	"github.com/thinesjs/tag2sha/internal/github"
)

// Mode selects how aggressively references are rewritten.
type Mode int

const (
	// ModePlain pins mutable references and leaves pinned ones alone.
	ModePlain Mode = iota
	// ModeConvertBranches additionally replaces main/master with the latest
	// release.
	ModeConvertBranches
	// ModeUpdateToLatest moves every reference, pinned or not, to the latest
	// release.
	ModeUpdateToLatest
)

func (m Mode) String() string {
	switch m {
	case ModeConvertBranches:
		return "convert-branches"
	case ModeUpdateToLatest:
		return "update-to-latest"
	default:
		return "plain"
	}
}

// Gateway is the read-only view of the hosting service the resolver needs.
// *github.Client implements it.
type Gateway interface {
	LatestRelease(ctx context.Context, repo github.Repository) (*github.Release, error)
	ListTags(ctx context.Context, repo github.Repository) ([]github.Tag, error)
	ResolveRef(ctx context.Context, repo github.Repository, name string) (*github.Ref, error)
	DereferenceTag(ctx context.Context, repo github.Repository, sha string) (string, error)
}

// Reference is one occurrence of an action reference. Label is the comment
// currently next to it, if any.
type Reference struct {
	Repository github.Repository
	Specifier  string
	Label      string
}

// Resolution is the outcome of resolving a Reference. When Rewritten is
// false the reference is already canonical and must be left untouched.
type Resolution struct {
	SHA       string
	Label     string
	Rewritten bool
}

type Option func(*Resolver)

func WithMode(mode Mode) Option {
	return func(r *Resolver) {
		r.mode = mode
	}
}

// WithCache memoizes successful resolutions for the lifetime of the
// Resolver.
func WithCache() Option {
	return func(r *Resolver) {
		r.cache = newCache()
	}
}

type Resolver struct {
	gateway Gateway
	mode    Mode
	cache   *cache
}

func New(gateway Gateway, opts ...Option) *Resolver {
	r := &Resolver{gateway: gateway}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve maps ref to an immutable commit SHA and a human readable label.
// Failures are returned as *Error.
func (r *Resolver) Resolve(ctx context.Context, ref Reference) (Resolution, error) {
	if r.cache == nil {
		return r.resolve(ctx, ref)
	}
	return r.cache.do(ref, func() (Resolution, error) {
		return r.resolve(ctx, ref)
	})
}

func (r *Resolver) resolve(ctx context.Context, ref Reference) (Resolution, error) {
	res, err := r.resolveUnwrapped(ctx, ref)
	if err != nil {
		return Resolution{}, &Error{Repository: ref.Repository, Specifier: ref.Specifier, Err: err}
	}
	return res, nil
}

func (r *Resolver) resolveUnwrapped(ctx context.Context, ref Reference) (Resolution, error) {
	logger := slogcontext.FromCtx(ctx).With("repository", ref.Repository.String(), "specifier", ref.Specifier)
	kind := Classify(ref.Specifier)

	if r.mode == ModeUpdateToLatest {
		return r.updateToLatest(ctx, ref, kind)
	}

	if kind == KindCommit {
		return unchanged(ref), nil
	}

	name := ref.Specifier
	switch {
	case r.mode == ModeConvertBranches && kind == KindBranchAlias:
		tag, err := r.latestReleaseTag(ctx, ref.Repository)
		switch {
		case errors.Is(err, ErrNoReleaseAvailable):
			logger.Warn("no releases found, keeping branch reference")
		case err != nil:
			return Resolution{}, err
		default:
			logger.Info("converting branch to latest release", "release", tag)
			name = tag
		}

	case kind == KindFloatingMajor:
		tag, err := r.newestMatchingTag(ctx, ref.Repository, ref.Specifier)
		if err != nil {
			return Resolution{}, err
		}
		if tag != "" && tag != name {
			logger.Debug("expanded floating version", "tag", tag)
			name = tag
		}
	}

	sha, err := r.commitFor(ctx, ref.Repository, name)
	if err != nil {
		return Resolution{}, err
	}
	return Resolution{SHA: sha, Label: name, Rewritten: true}, nil
}

func (r *Resolver) updateToLatest(ctx context.Context, ref Reference, kind Kind) (Resolution, error) {
	tag, err := r.latestReleaseTag(ctx, ref.Repository)
	if err != nil {
		return Resolution{}, err
	}

	// Compared by label: a commit annotated with the release tag counts as
	// up to date even if the tag has since moved.
	if kind == KindCommit && strings.TrimSpace(ref.Label) == tag {
		return unchanged(ref), nil
	}
	if kind != KindCommit && ref.Specifier == tag {
		return unchanged(ref), nil
	}

	sha, err := r.commitFor(ctx, ref.Repository, tag)
	if err != nil {
		return Resolution{}, err
	}
	return Resolution{SHA: sha, Label: tag, Rewritten: true}, nil
}

// latestReleaseTag returns the tag of the latest release, falling back to
// the newest tag for repositories that publish tags without releases.
func (r *Resolver) latestReleaseTag(ctx context.Context, repo github.Repository) (string, error) {
	release, err := r.gateway.LatestRelease(ctx, repo)
	if err == nil && release.TagName != "" {
		return release.TagName, nil
	}
	if err != nil && !errors.Is(err, github.ErrNotFound) {
		return "", err
	}

	tags, err := r.gateway.ListTags(ctx, repo)
	if errors.Is(err, github.ErrNotFound) {
		return "", ErrNoReleaseAvailable
	}
	if err != nil {
		return "", err
	}

	tag, ok := Newest(tagNames(tags))
	if !ok {
		return "", ErrNoReleaseAvailable
	}
	return tag, nil
}

// newestMatchingTag expands a floating version such as "v4" to the newest
// tag matching "v4*". It returns "" when nothing matches or the tag listing
// does not exist.
func (r *Resolver) newestMatchingTag(ctx context.Context, repo github.Repository, specifier string) (string, error) {
	pattern, err := glob.Compile(specifier + "*")
	if err != nil {
		return "", fmt.Errorf("invalid tag pattern %q: %w", specifier+"*", err)
	}

	tags, err := r.gateway.ListTags(ctx, repo)
	if errors.Is(err, github.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}

	var matching []string
	for _, name := range tagNames(tags) {
		if pattern.Match(name) {
			matching = append(matching, name)
		}
	}

	tag, _ := Newest(matching)
	return tag, nil
}

func (r *Resolver) commitFor(ctx context.Context, repo github.Repository, name string) (string, error) {
	ref, err := r.gateway.ResolveRef(ctx, repo, name)
	if errors.Is(err, github.ErrNotFound) {
		return "", fmt.Errorf("%w: %s", ErrRefNotFound, name)
	}
	if err != nil {
		return "", err
	}

	sha := ref.SHA
	if ref.Kind == github.ObjectTag {
		sha, err = r.gateway.DereferenceTag(ctx, repo, ref.SHA)
		if errors.Is(err, github.ErrNotFound) {
			return "", fmt.Errorf("%w: tag object of %s", ErrRefNotFound, name)
		}
		if err != nil {
			return "", err
		}
	}

	sha = strings.ToLower(sha)
	if !IsCommitSHA(sha) {
		return "", fmt.Errorf("%s resolved to malformed commit id %q", name, sha)
	}
	return sha, nil
}

func unchanged(ref Reference) Resolution {
	res := Resolution{Label: strings.TrimSpace(ref.Label)}
	if IsCommitSHA(ref.Specifier) {
		res.SHA = ref.Specifier
	}
	if res.Label == "" {
		res.Label = ref.Specifier
	}
	return res
}

func tagNames(tags []github.Tag) []string {
	names := make([]string, len(tags))
	for i, t := range tags {
		names[i] = t.Name
	}
	return names
}
