package system

import (
	"context"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/matzehuels/depot/pkg/artifact"
	"github.com/matzehuels/depot/pkg/collect"
	"github.com/matzehuels/depot/pkg/conflict"
	"github.com/matzehuels/depot/pkg/errors"
	"github.com/matzehuels/depot/pkg/event"
	"github.com/matzehuels/depot/pkg/graph"
	"github.com/matzehuels/depot/pkg/observability"
	"github.com/matzehuels/depot/pkg/repository"
	"github.com/matzehuels/depot/pkg/session"
	"github.com/matzehuels/depot/pkg/transfer"
)

// requestContext tags downloads made for dependency resolution.
const requestContext = "resolve"

// ArtifactRequest asks for one artifact from a list of repositories, tried
// in order after the local repository.
type ArtifactRequest struct {
	Artifact       artifact.Artifact
	Repositories   []repository.RemoteRepository
	RequestContext string
	// Edge is the graph edge the request was made for. Only
	// [System.ResolveDependencies] sets it.
	Edge graph.EdgeID
}

// ArtifactResult is the outcome of an [ArtifactRequest].
type ArtifactResult struct {
	Request ArtifactRequest
	// Artifact carries the local file once resolved.
	Artifact artifact.Artifact
	// Repository is the ID of the repository the file came from; "local"
	// when it was already present.
	Repository string
	Errors     []error
}

// AddError records err. Nil is ignored.
func (r *ArtifactResult) AddError(err error) {
	if err != nil {
		r.Errors = append(r.Errors, err)
	}
}

// IsResolved reports whether the artifact has a local file.
func (r *ArtifactResult) IsResolved() bool { return r.Artifact.File != "" }

// DependencyResult is everything [System.ResolveDependencies] produced.
type DependencyResult struct {
	Graph      *graph.Graph
	Root       graph.EdgeID
	Resolution *conflict.Resolution
	Cycles     [][]string
	Artifacts  []*ArtifactResult
	// CollectErrors are the non-fatal errors of the collection.
	CollectErrors []error
}

// Files returns the resolved files keyed by artifact coordinate.
func (r *DependencyResult) Files() map[string]string {
	out := make(map[string]string, len(r.Artifacts))
	for _, a := range r.Artifacts {
		if a.IsResolved() {
			out[a.Artifact.String()] = a.Artifact.File
		}
	}
	return out
}

// ResolveDependencies collects req, resolves conflicts and downloads every
// winning artifact. When a winner could not be resolved the result is
// returned together with a [*ResolutionError]. Collection errors alone stay
// in [DependencyResult.CollectErrors] unless the system is strict.
func (s *System) ResolveDependencies(ctx context.Context, sess *session.Session, req collect.Request) (*DependencyResult, error) {
	root := "(dependencies)"
	if req.HasRoot() {
		root = req.Root.Artifact.String()
	}
	hooks := observability.Resolve()

	start := time.Now()
	hooks.OnCollectStart(ctx, root)
	collected, err := s.CollectDependencies(ctx, sess, req)
	nodes := 0
	if collected != nil && collected.Graph != nil {
		nodes = collected.Graph.NodeCount()
	}
	hooks.OnCollectComplete(ctx, root, nodes, time.Since(start), err)
	if collected == nil {
		return nil, err
	}
	res := &DependencyResult{
		Graph:         collected.Graph,
		Root:          collected.Root,
		Cycles:        collected.Cycles,
		CollectErrors: collected.Errors,
	}
	if err != nil {
		return res, err
	}

	start = time.Now()
	resolution, err := s.Resolver.Resolve(res.Graph, res.Root)
	if err != nil {
		return res, err
	}
	res.Resolution = resolution
	hooks.OnConflictsResolved(ctx, root, len(resolution.Winners), len(resolution.Conflicts), time.Since(start))
	s.Logger.Debug("conflicts resolved", "root", root, "winners", len(resolution.Winners), "conflicts", len(resolution.Conflicts))

	reqs := make([]ArtifactRequest, 0, len(resolution.Winners))
	for i, id := range resolution.Winners {
		repos := res.Graph.EdgeRepositories(id)
		if len(repos) == 0 {
			repos = req.Repositories
		}
		reqs = append(reqs, ArtifactRequest{
			Artifact:       resolution.Artifacts[i],
			Repositories:   repos,
			RequestContext: res.Graph.Edge(id).RequestContext(),
			Edge:           id,
		})
	}
	artifacts, err := s.ResolveArtifacts(ctx, sess, reqs)
	res.Artifacts = artifacts
	for _, r := range artifacts {
		if r.IsResolved() {
			e := res.Graph.Edge(r.Request.Edge)
			e.SetArtifact(r.Artifact)
			graph.SetNodeState(res.Graph.Node(e.Target), graph.Done)
		}
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return res, errors.Wrap(errors.ErrCodeCancelled, ctxErr, "resolution of %s cancelled", root)
	}

	if err == nil && (len(res.CollectErrors) == 0 || !s.Strict) {
		if len(res.CollectErrors) > 0 {
			s.Logger.Warn("resolved with collection errors", "root", root, "errors", len(res.CollectErrors))
		}
		return res, nil
	}
	var errs []error
	if s.Strict {
		errs = append(errs, res.CollectErrors...)
	}
	for _, r := range artifacts {
		if !r.IsResolved() {
			errs = append(errs, r.Errors...)
		}
	}
	rerr := newResolutionError("could not resolve dependencies of "+root, artifacts, errs)
	rerr.Result = res
	return res, rerr
}

// ResolveArtifacts makes every requested artifact available locally.
//
// An artifact already present in the local repository is used as is. The
// rest are downloaded: in round i every pending request asks its i-th
// repository, one batch per repository, and the batches of a round run
// concurrently. Results keep the order of reqs. When any artifact stays
// unresolved a [*ResolutionError] is returned with the results.
func (s *System) ResolveArtifacts(ctx context.Context, sess *session.Session, reqs []ArtifactRequest) ([]*ArtifactResult, error) {
	if sess == nil {
		return nil, errors.New(errors.ErrCodeUsage, "artifact resolution needs a session")
	}
	start := time.Now()
	results := make([]*ArtifactResult, len(reqs))
	var pending []*ArtifactResult
	for i, req := range reqs {
		r := &ArtifactResult{Request: req, Artifact: req.Artifact}
		results[i] = r
		if err := req.Artifact.Validate(); err != nil {
			r.AddError(err)
			continue
		}
		sess.Fire(event.New(event.ArtifactResolving, event.WithArtifact(req.Artifact)))
		if s.local(sess, r) {
			sess.Fire(event.New(event.ArtifactResolved, event.WithArtifact(r.Artifact), event.WithFile(r.Artifact.File)))
			continue
		}
		if sess.Offline && len(req.Repositories) == 0 {
			r.AddError(errors.New(errors.ErrCodeOffline, "%s is not in the local repository", req.Artifact))
		}
		pending = append(pending, r)
	}

	for round := 0; len(pending) > 0; round++ {
		batches := map[string][]*ArtifactResult{}
		repos := map[string]repository.RemoteRepository{}
		var order []string
		var next []*ArtifactResult
		for _, r := range pending {
			if round >= len(r.Request.Repositories) {
				continue
			}
			repo := r.Request.Repositories[round]
			key := repo.ID + "|" + repo.URL
			if _, ok := batches[key]; !ok {
				order = append(order, key)
				repos[key] = repo
			}
			batches[key] = append(batches[key], r)
			next = append(next, r)
		}
		if len(order) == 0 {
			break
		}
		eg, gctx := errgroup.WithContext(ctx)
		for _, key := range order {
			repo, batch := repos[key], batches[key]
			eg.Go(func() error {
				s.download(gctx, sess, repo, batch)
				return nil
			})
		}
		eg.Wait()
		if ctx.Err() != nil {
			break
		}
		pending = pending[:0]
		for _, r := range next {
			if !r.IsResolved() {
				pending = append(pending, r)
			}
		}
	}

	missing := 0
	var errs []error
	for _, r := range results {
		if r.IsResolved() {
			continue
		}
		missing++
		if len(r.Errors) == 0 {
			r.AddError(errors.New(errors.ErrCodeNotFound, "%s: no repository to resolve from", r.Request.Artifact))
		}
		if r.Request.Artifact.Validate() == nil {
			sess.Fire(event.New(event.ArtifactResolved, event.WithArtifact(r.Request.Artifact), event.WithErrors(r.Errors...)))
		}
		errs = append(errs, r.Errors...)
	}
	observability.Resolve().OnArtifactsResolved(ctx, len(reqs), missing, time.Since(start))
	if missing > 0 {
		return results, newResolutionError("could not resolve artifacts", results, errs)
	}
	return results, nil
}

// local resolves r from a file it already names or from the local
// repository.
func (s *System) local(sess *session.Session, r *ArtifactResult) bool {
	a := r.Request.Artifact
	if a.File != "" {
		if _, err := os.Stat(a.File); err == nil {
			r.Repository = "local"
			return true
		}
	}
	p := sess.Local.ArtifactPath(a)
	if _, err := os.Stat(p); err != nil {
		return false
	}
	r.Artifact = a.SetFile(p)
	r.Repository = "local"
	return true
}

// download fetches one batch from repo. Each result belongs to exactly one
// batch per round, so results are written without locking.
func (s *System) download(ctx context.Context, sess *session.Session, repo repository.RemoteRepository, batch []*ArtifactResult) {
	conn, err := sess.Connector(ctx, s.Manager, repo)
	if err != nil {
		for _, r := range batch {
			r.AddError(err)
		}
		return
	}
	var items []*transfer.ArtifactDownload
	var owners []*ArtifactResult
	for _, r := range batch {
		a := r.Request.Artifact
		policy := sess.Policy(s.Manager, repo, !a.IsSnapshot(), a.IsSnapshot())
		if !policy.Enabled {
			r.AddError(errors.New(errors.ErrCodeNotFound, "%s: repository %s is disabled for this version", a, repo.ID))
			continue
		}
		rc := r.Request.RequestContext
		if rc == "" {
			rc = requestContext
		}
		items = append(items, &transfer.ArtifactDownload{
			Artifact:       a,
			File:           sess.Local.ArtifactPath(a),
			ChecksumPolicy: policy.ChecksumPolicy,
			RequestContext: rc,
		})
		owners = append(owners, r)
	}
	if len(items) == 0 {
		return
	}
	if err := conn.Get(ctx, items, nil); err != nil {
		for _, r := range owners {
			r.AddError(err)
		}
		return
	}
	for i, d := range items {
		r := owners[i]
		if d.Err != nil {
			r.AddError(d.Err)
			continue
		}
		r.Artifact = d.Artifact.SetFile(d.File)
		r.Repository = repo.ID
		sess.Fire(event.New(event.ArtifactResolved,
			event.WithArtifact(r.Artifact), event.WithRepository(repo), event.WithFile(d.File)))
	}
	s.Logger.Debug("batch downloaded", "repository", repo.ID, "items", len(items))
}
