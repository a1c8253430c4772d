package github

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/go-github/v58/github"
)

// ObjectKind is the kind of git object a ref or tag points at.
type ObjectKind string

const (
	ObjectCommit ObjectKind = "commit"
	// ObjectTag is an annotated tag object; it must be dereferenced to reach
	// the commit.
	ObjectTag ObjectKind = "tag"
)

// maxTagDepth limits how many nested annotated tag objects are followed.
const maxTagDepth = 8

const tagsPerPage = 100

type Release struct {
	TagName string
}

type Tag struct {
	Name string
	SHA  string
	Kind ObjectKind
}

type Ref struct {
	Name string
	SHA  string
	Kind ObjectKind
}

// LatestRelease returns the repository's latest published release, or
// ErrNotFound when it has none.
func (c *Client) LatestRelease(ctx context.Context, repo Repository) (*Release, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	release, resp, err := c.client.Repositories.GetLatestRelease(ctx, repo.Owner, repo.Name)
	if err != nil {
		return nil, classify(ctx, fmt.Sprintf("latest release of %s", repo), resp, err)
	}
	return &Release{TagName: release.GetTagName()}, nil
}

// ListTags returns every tag of the repository in the order the API lists
// them.
func (c *Client) ListTags(ctx context.Context, repo Repository) ([]Tag, error) {
	opts := &github.ListOptions{PerPage: tagsPerPage}
	tags := []Tag{}

	for {
		page, next, err := c.listTagsPage(ctx, repo, opts)
		if err != nil {
			return nil, err
		}
		tags = append(tags, page...)
		if next == 0 {
			break
		}
		opts.Page = next
	}

	return tags, nil
}

func (c *Client) listTagsPage(ctx context.Context, repo Repository, opts *github.ListOptions) ([]Tag, int, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	repoTags, resp, err := c.client.Repositories.ListTags(ctx, repo.Owner, repo.Name, opts)
	if err != nil {
		return nil, 0, classify(ctx, fmt.Sprintf("list tags of %s", repo), resp, err)
	}

	tags := make([]Tag, 0, len(repoTags))
	for _, t := range repoTags {
		tags = append(tags, Tag{
			Name: t.GetName(),
			SHA:  t.GetCommit().GetSHA(),
			Kind: ObjectCommit,
		})
	}
	return tags, resp.NextPage, nil
}

// ResolveRef looks name up as a tag first and as a branch second.
func (c *Client) ResolveRef(ctx context.Context, repo Repository, name string) (*Ref, error) {
	ref, err := c.getRef(ctx, repo, "tags/"+name)
	if errors.Is(err, ErrNotFound) {
		ref, err = c.getRef(ctx, repo, "heads/"+name)
	}
	if err != nil {
		return nil, err
	}
	return ref, nil
}

func (c *Client) getRef(ctx context.Context, repo Repository, path string) (*Ref, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	gitRef, resp, err := c.client.Git.GetRef(ctx, repo.Owner, repo.Name, path)
	if err != nil {
		return nil, classify(ctx, fmt.Sprintf("ref %s of %s", path, repo), resp, err)
	}

	obj := gitRef.GetObject()
	if obj.GetSHA() == "" {
		return nil, fmt.Errorf("ref %s of %s has no target object", path, repo)
	}

	kind, err := objectKind(obj.GetType())
	if err != nil {
		return nil, fmt.Errorf("ref %s of %s: %w", path, repo, err)
	}

	return &Ref{
		Name: gitRef.GetRef(),
		SHA:  obj.GetSHA(),
		Kind: kind,
	}, nil
}

// DereferenceTag follows an annotated tag object to the commit it
// ultimately points at.
func (c *Client) DereferenceTag(ctx context.Context, repo Repository, sha string) (string, error) {
	for depth := 0; depth < maxTagDepth; depth++ {
		target, kind, err := c.getTagObject(ctx, repo, sha)
		if err != nil {
			return "", err
		}
		if kind == ObjectCommit {
			return target, nil
		}
		sha = target
	}
	return "", fmt.Errorf("tag object %s of %s: more than %d nested tags", sha, repo, maxTagDepth)
}

func (c *Client) getTagObject(ctx context.Context, repo Repository, sha string) (string, ObjectKind, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	tag, resp, err := c.client.Git.GetTag(ctx, repo.Owner, repo.Name, sha)
	if err != nil {
		return "", "", classify(ctx, fmt.Sprintf("tag object %s of %s", sha, repo), resp, err)
	}

	obj := tag.GetObject()
	kind, err := objectKind(obj.GetType())
	if err != nil {
		return "", "", fmt.Errorf("tag object %s of %s: %w", sha, repo, err)
	}
	return obj.GetSHA(), kind, nil
}

func objectKind(t string) (ObjectKind, error) {
	switch ObjectKind(t) {
	case ObjectCommit:
		return ObjectCommit, nil
	case ObjectTag:
		return ObjectTag, nil
	default:
		return "", fmt.Errorf("unsupported object type %q", t)
	}
}
